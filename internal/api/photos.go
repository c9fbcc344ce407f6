package api

import (
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/tphakala/fieldlog/internal/photostore"
)

// GetPhoto handles GET /photos/*, streaming the stored bytes. Users read
// their own photos, and anyone may read a photo that backs an active
// sighting on the shared map. Everything else is reported as missing.
func (c *Controller) GetPhoto(ctx echo.Context) error {
	key := path.Join("photos", ctx.Param("*"))

	visible, err := c.photoVisible(ctx, key)
	if err != nil {
		return c.HandleError(ctx, err, "photo unavailable", http.StatusInternalServerError)
	}
	if !visible {
		return c.HandleError(ctx, photostore.ErrNotFound, "photo unavailable", http.StatusNotFound)
	}

	info, rc, err := c.Photos.Get(ctx.Request().Context(), key)
	if err != nil {
		return c.HandlePipelineError(ctx, err, "photo unavailable")
	}
	defer rc.Close()

	contentType := info.ContentType
	if contentType == "" {
		contentType = photostore.ContentTypeFor(key)
	}
	if info.Size > 0 {
		ctx.Response().Header().Set(echo.HeaderContentLength, strconv.FormatInt(info.Size, 10))
	}
	ctx.Response().Header().Set("Cache-Control", "private, max-age=86400")
	return ctx.Stream(http.StatusOK, contentType, rc)
}

func (c *Controller) photoVisible(ctx echo.Context, key string) (bool, error) {
	if strings.HasPrefix(key, "photos/"+currentUser(ctx)+"/") {
		return true, nil
	}

	sightings, err := c.DS.ActiveSightings(ctx.Request().Context(), time.Now())
	if err != nil {
		return false, err
	}
	for i := range sightings {
		if sightings[i].PhotoRef == key {
			return true, nil
		}
	}
	return false, nil
}
