// Package api exposes the observation pipeline over HTTP.
package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/tphakala/fieldlog/internal/capture"
	"github.com/tphakala/fieldlog/internal/catalog"
	"github.com/tphakala/fieldlog/internal/committer"
	"github.com/tphakala/fieldlog/internal/conf"
	"github.com/tphakala/fieldlog/internal/datastore"
	"github.com/tphakala/fieldlog/internal/drafts"
	"github.com/tphakala/fieldlog/internal/logger"
	"github.com/tphakala/fieldlog/internal/observability"
	"github.com/tphakala/fieldlog/internal/observability/metrics"
	"github.com/tphakala/fieldlog/internal/photostore"
	"github.com/tphakala/fieldlog/internal/pipeline"
)

const (
	basePath   = "/api/v1"
	healthPath = basePath + "/health"

	// DefaultIdentityHeader carries the opaque user id when none is configured.
	DefaultIdentityHeader = "X-User-ID"

	userIDKey = "user_id"
)

// Controller manages the API routes and handlers.
type Controller struct {
	Echo      *echo.Echo
	Group     *echo.Group
	DS        datastore.Interface
	Settings  *conf.Settings
	Drafts    *drafts.Store
	Catalog   *catalog.Lookup
	Committer *committer.Committer
	Sessions  *pipeline.Manager
	Photos    photostore.Store

	identityHeader string
	metrics        *observability.Metrics
	recorder       metrics.Recorder
	log            logger.Logger
	startTime      time.Time
}

// Option is a functional option for configuring the Controller.
type Option func(*Controller)

// WithMetrics exposes /metrics and records pipeline metrics through m.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

func WithLogger(l logger.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// Deps are the pipeline components the controller serves.
type Deps struct {
	DS        datastore.Interface
	Drafts    *drafts.Store
	Catalog   *catalog.Lookup
	Committer *committer.Committer
	Sessions  *pipeline.Manager
	Photos    photostore.Store
}

// New creates the controller and registers its routes on e.
func New(e *echo.Echo, settings *conf.Settings, deps Deps, opts ...Option) *Controller {
	c := &Controller{
		Echo:           e,
		DS:             deps.DS,
		Settings:       settings,
		Drafts:         deps.Drafts,
		Catalog:        deps.Catalog,
		Committer:      deps.Committer,
		Sessions:       deps.Sessions,
		Photos:         deps.Photos,
		identityHeader: settings.WebServer.IdentityHeader,
		startTime:      time.Now(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = logger.Global().Module("api")
	}
	if c.identityHeader == "" {
		c.identityHeader = DefaultIdentityHeader
	}
	if c.metrics != nil {
		c.recorder = c.metrics.Pipeline
	}
	c.recorder = metrics.OrNop(c.recorder)

	c.Group = e.Group(basePath)
	c.Group.Use(middleware.Recover())
	c.Group.Use(middleware.RequestID())
	c.Group.Use(middleware.BodyLimit(bodyLimit(settings)))
	c.Group.Use(c.LoggingMiddleware())
	c.Group.Use(c.IdentityMiddleware())

	c.initRoutes()
	return c
}

func (c *Controller) initRoutes() {
	c.Group.GET("/health", c.Health)

	c.Group.POST("/captures", c.CreateCapture)
	c.Group.GET("/draft", c.GetDraft)
	c.Group.DELETE("/draft", c.DeleteDraft)

	c.Group.GET("/catalog/:category", c.GetCatalog)

	c.Group.POST("/confirm", c.Confirm)
	c.Group.GET("/logs/:category", c.ListLogs)
	c.Group.GET("/sightings/active", c.ActiveSightings)

	c.Group.GET("/pipeline", c.GetPipeline)
	c.Group.POST("/pipeline/events", c.DispatchEvent)

	c.Group.GET("/photos/*", c.GetPhoto)

	if c.metrics != nil && c.Settings.Metrics.Enabled {
		c.Echo.GET("/metrics", echo.WrapHandler(c.metrics.Handler()))
	}
}

// bodyLimit leaves room for the multipart envelope around the largest photo.
func bodyLimit(settings *conf.Settings) string {
	limit := settings.Photos.MaxSizeBytes
	if limit <= 0 {
		limit = capture.DefaultMaxUploadBytes
	}
	return fmt.Sprintf("%dK", (limit+1<<20+1023)/1024)
}

// IdentityMiddleware requires the identity header on every route except the
// health check and stores the user id in the echo context.
func (c *Controller) IdentityMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if ctx.Path() == healthPath {
				return next(ctx)
			}
			userID := strings.TrimSpace(ctx.Request().Header.Get(c.identityHeader))
			if userID == "" {
				return c.HandleError(ctx, nil, "missing "+c.identityHeader+" header", http.StatusUnauthorized)
			}
			ctx.Set(userIDKey, userID)
			return next(ctx)
		}
	}
}

// LoggingMiddleware logs each request and attaches the request id as trace id
// to the request context.
func (c *Controller) LoggingMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			start := time.Now()

			req := ctx.Request()
			if id := ctx.Response().Header().Get(echo.HeaderXRequestID); id != "" {
				ctx.SetRequest(req.WithContext(logger.WithTraceID(req.Context(), id)))
			}

			err := next(ctx)
			if err != nil {
				ctx.Error(err)
			}

			c.log.WithContext(ctx.Request().Context()).Info("api request",
				logger.String("method", req.Method),
				logger.String("path", ctx.Path()),
				logger.Int("status", ctx.Response().Status),
				logger.Duration("latency", time.Since(start)),
				logger.String("user_id", currentUser(ctx)))
			return nil
		}
	}
}

func currentUser(ctx echo.Context) string {
	userID, _ := ctx.Get(userIDKey).(string)
	return userID
}
