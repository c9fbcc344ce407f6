package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/tphakala/fieldlog/internal/conf"
	"github.com/tphakala/fieldlog/internal/logger"
)

// HealthResponse reports service and dependency status.
type HealthResponse struct {
	Status     string `json:"status"`
	Datastore  string `json:"datastore"`
	Photos     string `json:"photos"`
	CommitMode string `json:"commit_mode"`
	Sessions   int    `json:"sessions"`
	Version    string `json:"version,omitempty"`
	Uptime     string `json:"uptime"`
	// DiskFree is the free space under the local photo root, in bytes.
	DiskFree uint64 `json:"disk_free_bytes,omitempty"`
}

// Health handles GET /health. It needs no identity.
func (c *Controller) Health(ctx echo.Context) error {
	resp := HealthResponse{
		Status:     "ok",
		Datastore:  "ok",
		Photos:     string(c.Photos.Driver()),
		CommitMode: c.Committer.Mode(),
		Sessions:   c.Sessions.Len(),
		Version:    c.Settings.Version,
		Uptime:     time.Since(c.startTime).Round(time.Second).String(),
	}

	if c.Settings.Photos.Driver == conf.PhotoDriverFS && c.Settings.Photos.Path != "" {
		if usage, err := disk.UsageWithContext(ctx.Request().Context(), c.Settings.Photos.Path); err == nil {
			resp.DiskFree = usage.Free
		} else {
			c.log.Debug("disk usage unavailable", logger.String("path", c.Settings.Photos.Path), logger.Error(err))
		}
	}

	code := http.StatusOK
	if err := c.DS.Ping(ctx.Request().Context()); err != nil {
		resp.Status = "degraded"
		resp.Datastore = err.Error()
		code = http.StatusServiceUnavailable
	}
	return ctx.JSON(code, resp)
}
