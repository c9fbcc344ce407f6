package capture

import (
	"context"
	"fmt"

	"github.com/tphakala/fieldlog/internal/observation"
)

// ReportedLocation is a Geolocator for coordinates the client sampled itself.
// A nil coordinate means the client sent none.
type ReportedLocation struct {
	Latitude  *float64
	Longitude *float64
	// Denied is set when the client reports that location permission was
	// refused.
	Denied bool
}

// CurrentLocation returns the reported coordinates or ErrLocationUnavailable.
func (r ReportedLocation) CurrentLocation(_ context.Context) (observation.Location, error) {
	switch {
	case r.Denied:
		return observation.Location{}, fmt.Errorf("%w: permission denied", observation.ErrLocationUnavailable)
	case r.Latitude == nil || r.Longitude == nil:
		return observation.Location{}, fmt.Errorf("%w: no coordinates reported", observation.ErrLocationUnavailable)
	}

	loc := observation.Location{Latitude: *r.Latitude, Longitude: *r.Longitude}
	if !loc.Valid() {
		return observation.Location{}, fmt.Errorf("%w: coordinates out of range %s", observation.ErrLocationUnavailable, loc)
	}
	return loc, nil
}
