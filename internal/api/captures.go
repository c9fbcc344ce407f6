package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/tphakala/fieldlog/internal/capture"
	"github.com/tphakala/fieldlog/internal/errors"
	"github.com/tphakala/fieldlog/internal/logger"
	"github.com/tphakala/fieldlog/internal/observation"
)

// CaptureResponse is returned after a capture was staged.
type CaptureResponse struct {
	Draft               observation.Draft `json:"draft"`
	LocationUnavailable bool              `json:"location_unavailable"`
	Warning             string            `json:"warning,omitempty"`
}

// CreateCapture handles POST /captures. The multipart form carries the image
// and the coordinates the client sampled. The resulting draft replaces the
// user's previous one and restarts the user's pipeline session.
func (c *Controller) CreateCapture(ctx echo.Context) error {
	userID := currentUser(ctx)

	source := observation.Source(strings.ToLower(ctx.FormValue("source")))
	if source == "" {
		source = observation.SourceCamera
	}
	if source != observation.SourceCamera && source != observation.SourceGallery {
		return c.HandleError(ctx, nil, fmt.Sprintf("unknown source %q", source), http.StatusBadRequest)
	}

	geo, err := reportedLocation(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "invalid coordinates", http.StatusBadRequest)
	}

	upload := capture.Upload{}
	if fh, err := ctx.FormFile("image"); err == nil {
		f, err := fh.Open()
		if err != nil {
			return c.HandleError(ctx, err, "failed to read image", http.StatusBadRequest)
		}
		defer f.Close()
		upload = capture.Upload{
			Body:        f,
			Filename:    fh.Filename,
			ContentType: fh.Header.Get(echo.HeaderContentType),
		}
	}

	adapter := capture.NewUploadAdapter(c.Photos, userID, upload, c.Settings.Photos.MaxSizeBytes, c.log.Module("capture"), c.recorder)
	stage := capture.NewStage(adapter, geo,
		capture.WithTimeouts(c.Settings.Capture.Timeout, c.Settings.Capture.LocationTimeout),
		capture.WithLogger(c.log.Module("capture")),
		capture.WithRecorder(c.recorder))

	notes := capture.Notes{Title: ctx.FormValue("title"), Text: ctx.FormValue("notes")}
	reqCtx := ctx.Request().Context()

	var cand capture.Candidate
	if source == observation.SourceGallery {
		cand, err = stage.PickFromGallery(reqCtx, userID, notes)
	} else {
		cand, err = stage.Capture(reqCtx, userID, notes)
	}
	if err != nil && !errors.Is(err, observation.ErrLocationUnavailable) {
		return c.HandlePipelineError(ctx, err, "capture failed")
	}

	staged, err := c.Drafts.Stage(reqCtx, userID, cand.Draft)
	if err != nil {
		return c.HandlePipelineError(ctx, err, "failed to stage draft")
	}

	if _, err := c.Sessions.Restart(reqCtx, userID, staged); err != nil {
		c.log.Warn("pipeline session not restarted",
			logger.String("user_id", userID),
			logger.Error(err))
	}

	resp := CaptureResponse{Draft: staged}
	if cand.LocationErr != nil {
		resp.LocationUnavailable = true
		resp.Warning = "location unavailable; the draft cannot be confirmed without one"
	}
	return ctx.JSON(http.StatusCreated, resp)
}

// reportedLocation reads latitude, longitude and location_denied.
func reportedLocation(ctx echo.Context) (capture.ReportedLocation, error) {
	var loc capture.ReportedLocation

	if denied := ctx.FormValue("location_denied"); denied != "" {
		v, err := strconv.ParseBool(denied)
		if err != nil {
			return loc, fmt.Errorf("location_denied: %w", err)
		}
		loc.Denied = v
	}

	parse := func(name string) (*float64, error) {
		raw := strings.TrimSpace(ctx.FormValue(name))
		if raw == "" {
			return nil, nil
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		return &v, nil
	}

	var err error
	if loc.Latitude, err = parse("latitude"); err != nil {
		return loc, err
	}
	if loc.Longitude, err = parse("longitude"); err != nil {
		return loc, err
	}
	return loc, nil
}
