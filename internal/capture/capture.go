// Package capture turns a capture trigger into a draft candidate. The image
// itself comes from an Adapter and the coordinates from a Geolocator; both
// are external collaborators and every call into them is time bounded.
package capture

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/tphakala/fieldlog/internal/errors"
	"github.com/tphakala/fieldlog/internal/logger"
	"github.com/tphakala/fieldlog/internal/observability/metrics"
	"github.com/tphakala/fieldlog/internal/observation"
)

// Adapter acquires an image and returns an opaque reference to it.
type Adapter interface {
	Capture(ctx context.Context) (string, error)
	PickFromGallery(ctx context.Context) (string, error)
}

// Geolocator samples the device position.
type Geolocator interface {
	CurrentLocation(ctx context.Context) (observation.Location, error)
}

// Notes is the free text a user attaches at capture time.
type Notes struct {
	Title string
	Text  string
}

// Candidate is a draft that has been captured but not yet staged.
type Candidate struct {
	Draft observation.Draft
	// LocationErr is set when the image was captured but no position could
	// be attached.
	LocationErr error
}

// Stage runs one capture at a time and keeps the last candidate until it is
// taken or discarded.
type Stage struct {
	adapter         Adapter
	geo             Geolocator
	timeout         time.Duration
	locationTimeout time.Duration
	now             func() time.Time
	log             logger.Logger
	metrics         metrics.Recorder

	mu        sync.Mutex
	candidate *Candidate
}

// Option configures a Stage.
type Option func(*Stage)

// WithTimeouts bounds the adapter and geolocation calls.
func WithTimeouts(capture, location time.Duration) Option {
	return func(s *Stage) {
		s.timeout = capture
		s.locationTimeout = location
	}
}

// WithClock overrides the source of capturedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Stage) { s.now = now }
}

func WithLogger(l logger.Logger) Option {
	return func(s *Stage) { s.log = l }
}

func WithRecorder(r metrics.Recorder) Option {
	return func(s *Stage) { s.metrics = r }
}

// NewStage creates a capture stage over adapter and geo.
func NewStage(adapter Adapter, geo Geolocator, opts ...Option) *Stage {
	s := &Stage{
		adapter:         adapter,
		geo:             geo,
		timeout:         30 * time.Second,
		locationTimeout: 10 * time.Second,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.Global().Module("capture")
	}
	s.metrics = metrics.OrNop(s.metrics)
	return s
}

// Capture takes a photo with the camera and builds a candidate.
//
// When the position cannot be sampled, the returned candidate has no location
// and the error wraps ErrLocationUnavailable. Such a candidate may still be
// staged. Any other error means no candidate was produced.
func (s *Stage) Capture(ctx context.Context, userID string, notes Notes) (Candidate, error) {
	return s.run(ctx, userID, notes, observation.SourceCamera, s.adapter.Capture)
}

// PickFromGallery builds a candidate from an existing image. It behaves like
// Capture apart from the recorded source.
func (s *Stage) PickFromGallery(ctx context.Context, userID string, notes Notes) (Candidate, error) {
	return s.run(ctx, userID, notes, observation.SourceGallery, s.adapter.PickFromGallery)
}

// Candidate returns the last candidate that has not been retaken.
func (s *Stage) Candidate() (Candidate, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.candidate == nil {
		return Candidate{}, false
	}
	return *s.candidate, true
}

// Retake discards the in-memory candidate. The staged draft is not touched.
func (s *Stage) Retake() {
	s.mu.Lock()
	s.candidate = nil
	s.mu.Unlock()
}

func (s *Stage) run(ctx context.Context, userID string, notes Notes, source observation.Source, acquire func(context.Context) (string, error)) (Candidate, error) {
	start := time.Now()
	defer func() {
		s.metrics.RecordDuration(metrics.OpCapture, time.Since(start).Seconds())
	}()

	imageRef, err := observation.CallWithTimeout(ctx, s.timeout, acquire)
	if err == nil && strings.TrimSpace(imageRef) == "" {
		err = fmt.Errorf("adapter returned no image")
	}
	if err != nil {
		s.metrics.RecordOperation(metrics.OpCapture, metrics.StatusError)
		return Candidate{}, s.captureError(err, userID, source)
	}

	cand := Candidate{Draft: observation.Draft{
		ImageRef:        imageRef,
		ObservationText: notes.Text,
		Title:           strings.TrimSpace(notes.Title),
		Source:          source,
		CapturedAt:      s.now(),
	}}

	loc, locErr := observation.CallWithTimeout(ctx, s.locationTimeout, s.geo.CurrentLocation)
	if locErr == nil && !loc.Valid() {
		locErr = fmt.Errorf("coordinates out of range: %s", loc)
	}
	if locErr != nil {
		cand.LocationErr = s.locationError(locErr, userID)
		s.metrics.RecordError(metrics.OpCapture, metrics.ErrorTypeLocation)
		s.log.Info("captured without location",
			logger.String("user_id", userID),
			logger.String("image_ref", imageRef),
			logger.Error(locErr))
	} else {
		cand.Draft.Location = &loc
	}

	s.mu.Lock()
	s.candidate = &cand
	s.mu.Unlock()

	s.metrics.RecordOperation(metrics.OpCapture, metrics.StatusSuccess)
	s.log.Debug("candidate captured",
		logger.String("user_id", userID),
		logger.String("source", string(source)),
		logger.Bool("has_location", cand.Draft.HasLocation()))
	return cand, cand.LocationErr
}

func (s *Stage) captureError(err error, userID string, source observation.Source) error {
	category := errors.CategoryCapture
	var inner *errors.EnhancedError
	if errors.As(err, &inner) && inner.Category == errors.CategoryValidation {
		// rejected input keeps its category so callers can report it as such
		category = errors.CategoryValidation
		s.metrics.RecordError(metrics.OpCapture, metrics.ErrorTypeValidation)
	} else if errors.Is(err, observation.ErrTimedOut) {
		category = errors.CategoryTimeout
		s.metrics.RecordError(metrics.OpCapture, metrics.ErrorTypeTimeout)
	} else {
		s.metrics.RecordError(metrics.OpCapture, metrics.ErrorTypeCapture)
	}
	if !errors.Is(err, observation.ErrCaptureUnavailable) {
		err = fmt.Errorf("%w: %w", observation.ErrCaptureUnavailable, err)
	}
	return errors.New(err).
		Component("capture").
		Category(category).
		Context("user_id", userID).
		Context("source", string(source)).
		Build()
}

func (s *Stage) locationError(err error, userID string) error {
	if !errors.Is(err, observation.ErrLocationUnavailable) {
		err = fmt.Errorf("%w: %w", observation.ErrLocationUnavailable, err)
	}
	return errors.New(err).
		Component("capture").
		Category(errors.CategoryCapture).
		Context("user_id", userID).
		Priority(errors.PriorityLow).
		Build()
}
