// Package mapper provides conversion functions between domain models and database entities.
package mapper

import (
	"github.com/tphakala/fieldlog/internal/datastore/entities"
	"github.com/tphakala/fieldlog/internal/observation"
)

// DraftToEntity converts a normalized draft for userID into its row.
func DraftToEntity(userID string, d observation.Draft) *entities.DraftEntity {
	e := &entities.DraftEntity{
		UserID:          userID,
		ImageRef:        d.ImageRef,
		ObservationText: d.ObservationText,
		Title:           d.Title,
		Source:          string(d.Source),
		CapturedAt:      d.CapturedAt,
		Fingerprint:     d.Fingerprint(),
	}
	if d.Location != nil {
		lat, lon := d.Location.Latitude, d.Location.Longitude
		e.Latitude = &lat
		e.Longitude = &lon
	}
	return e
}

// EntityToDraft converts a draft row back into a domain Draft.
func EntityToDraft(e *entities.DraftEntity) observation.Draft {
	d := observation.Draft{
		ImageRef:        e.ImageRef,
		ObservationText: e.ObservationText,
		Title:           e.Title,
		Source:          observation.Source(e.Source),
		CapturedAt:      e.CapturedAt,
	}
	if e.Latitude != nil && e.Longitude != nil {
		d.Location = &observation.Location{Latitude: *e.Latitude, Longitude: *e.Longitude}
	}
	return d.Normalize()
}

// EntityToSpecies converts a catalog row to a SpeciesRecord.
func EntityToSpecies(e *entities.SpeciesEntity) observation.SpeciesRecord {
	return observation.SpeciesRecord{
		CommonName:     e.CommonName,
		ScientificName: e.ScientificName,
		ImageURL:       e.ImageURL,
		Category:       observation.Category(e.Category),
	}
}

// LogEntryToEntity converts a LogEntry to its row. Times are stored in UTC.
func LogEntryToEntity(l *observation.LogEntry) *entities.LogEntryEntity {
	return &entities.LogEntryEntity{
		ID:             l.ID,
		UserID:         l.UserID,
		Category:       string(l.Category),
		CommonName:     l.CommonName,
		ScientificName: l.ScientificName,
		FieldNotes:     l.FieldNotes,
		PhotoRef:       l.PhotoRef,
		PhotoAuthor:    l.PhotoAuthor,
		Timestamp:      l.Timestamp.UTC(),
		Latitude:       l.Location.Latitude,
		Longitude:      l.Location.Longitude,
		Status:         string(l.Status),
		DraftToken:     l.DraftToken,
		CreatedAt:      l.CreatedAt.UTC(),
	}
}

// EntityToLogEntry converts a log_entries row to a LogEntry.
func EntityToLogEntry(e *entities.LogEntryEntity) observation.LogEntry {
	return observation.LogEntry{
		ID:             e.ID,
		UserID:         e.UserID,
		Category:       observation.Category(e.Category),
		CommonName:     e.CommonName,
		ScientificName: e.ScientificName,
		FieldNotes:     e.FieldNotes,
		PhotoRef:       e.PhotoRef,
		PhotoAuthor:    e.PhotoAuthor,
		Timestamp:      e.Timestamp.UTC(),
		Location:       observation.Location{Latitude: e.Latitude, Longitude: e.Longitude},
		Status:         observation.Status(e.Status),
		DraftToken:     e.DraftToken,
		CreatedAt:      e.CreatedAt.UTC(),
	}
}

// SightingToEntity converts an ActiveSighting to its row.
func SightingToEntity(s *observation.ActiveSighting) *entities.ActiveSightingEntity {
	return &entities.ActiveSightingEntity{
		EntryID:    s.EntryID,
		UserID:     s.UserID,
		Category:   string(s.Category),
		CommonName: s.CommonName,
		PhotoRef:   s.PhotoRef,
		Latitude:   s.Location.Latitude,
		Longitude:  s.Location.Longitude,
		CreatedAt:  s.CreatedAt.UTC(),
		DecayAt:    s.DecayAt.UTC(),
	}
}

// EntityToSighting converts an active_sightings row to an ActiveSighting.
func EntityToSighting(e *entities.ActiveSightingEntity) observation.ActiveSighting {
	return observation.ActiveSighting{
		EntryID:    e.EntryID,
		UserID:     e.UserID,
		Category:   observation.Category(e.Category),
		CommonName: e.CommonName,
		PhotoRef:   e.PhotoRef,
		Location:   observation.Location{Latitude: e.Latitude, Longitude: e.Longitude},
		CreatedAt:  e.CreatedAt.UTC(),
		DecayAt:    e.DecayAt.UTC(),
	}
}
