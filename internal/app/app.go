// Package app wires the fieldlog components together from settings.
package app

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/tphakala/fieldlog/internal/api"
	"github.com/tphakala/fieldlog/internal/catalog"
	"github.com/tphakala/fieldlog/internal/committer"
	"github.com/tphakala/fieldlog/internal/conf"
	"github.com/tphakala/fieldlog/internal/datastore"
	"github.com/tphakala/fieldlog/internal/drafts"
	"github.com/tphakala/fieldlog/internal/errors"
	"github.com/tphakala/fieldlog/internal/logger"
	"github.com/tphakala/fieldlog/internal/mqtt"
	"github.com/tphakala/fieldlog/internal/notification"
	"github.com/tphakala/fieldlog/internal/observability"
	"github.com/tphakala/fieldlog/internal/photostore"
	"github.com/tphakala/fieldlog/internal/pipeline"
)

const shutdownTimeout = 10 * time.Second

// App holds the running components.
type App struct {
	Settings  *conf.Settings
	DS        datastore.Interface
	Photos    photostore.Store
	Metrics   *observability.Metrics
	Drafts    *drafts.Store
	Catalog   *catalog.Lookup
	Committer *committer.Committer
	Sessions  *pipeline.Manager

	broker mqtt.Client
	log    logger.Logger
}

// New opens the datastore and photo store and builds the pipeline. The MQTT
// publisher and push notifier are attached when enabled; a broker that cannot
// be reached or a bad push URL is logged and that channel stays off.
func New(ctx context.Context, settings *conf.Settings) (*App, error) {
	a := &App{Settings: settings, log: logger.Global().Module("app")}

	ds, err := datastore.New(settings, nil)
	if err != nil {
		return nil, err
	}
	if err := ds.Open(); err != nil {
		return nil, err
	}
	a.DS = ds

	photos, err := photostore.Open(ctx, &settings.Photos)
	if err != nil {
		_ = ds.Close()
		return nil, err
	}
	a.Photos = photos

	m, err := observability.NewMetrics()
	if err != nil {
		_ = ds.Close()
		return nil, errors.New(err).
			Component("app").
			Category(errors.CategorySystem).
			Context("operation", "init_metrics").
			Build()
	}
	a.Metrics = m

	locks := drafts.NewKeyLock()
	a.Drafts = drafts.New(ds,
		drafts.WithKeyLock(locks),
		drafts.WithTimeout(settings.Pipeline.StoreTimeout))
	a.Catalog = catalog.New(ds,
		catalog.WithCacheTTL(settings.Catalog.CacheTTL),
		catalog.WithFetchTimeout(settings.Catalog.FetchTimeout),
		catalog.WithRecorder(m.Pipeline))

	opts := []committer.Option{
		committer.WithMode(settings.Pipeline.CommitMode),
		committer.WithStoreTimeout(settings.Pipeline.StoreTimeout),
		committer.WithSightingDecay(settings.Sightings.Decay),
		committer.WithKeyLock(locks),
		committer.WithRecorder(m.Pipeline),
	}
	if settings.MQTT.Enabled {
		if publisher := a.connectBroker(ctx); publisher != nil {
			opts = append(opts, committer.WithNotifier(publisher))
		}
	}
	if settings.Push.Enabled {
		push, err := notification.NewPush(settings.Push.URLs, settings.Push.Timeout, nil, m.Pipeline)
		if err != nil {
			a.log.Warn("push notifications disabled", logger.Error(err))
		} else {
			opts = append(opts, committer.WithNotifier(push))
		}
	}
	a.Committer = committer.New(ds, a.Catalog, opts...)

	a.Sessions = pipeline.NewManager(a.Catalog, a.Committer, a.Drafts,
		pipeline.WithSessionTTL(settings.Pipeline.SessionTTL),
		pipeline.WithRecorder(m.Pipeline))

	a.log.Info("fieldlog initialized",
		logger.String("datastore", settings.Datastore.Type),
		logger.String("photos", string(photos.Driver())),
		logger.String("commit_mode", a.Committer.Mode()),
		logger.Bool("mqtt", a.broker != nil),
		logger.Bool("push", settings.Push.Enabled))
	return a, nil
}

func (a *App) connectBroker(ctx context.Context) *mqtt.Publisher {
	cfg := mqtt.ConfigFromSettings(a.Settings)
	client := mqtt.NewClient(cfg, a.Metrics.MQTT, nil)
	if err := client.Connect(ctx); err != nil {
		a.log.Warn("MQTT broker unavailable, sightings will not be published",
			logger.String("broker", cfg.Broker),
			logger.Error(err))
		return nil
	}
	a.broker = client
	return mqtt.NewPublisher(client, cfg.Topic, nil, a.Metrics.Pipeline)
}

// Serve runs the HTTP API and the reconciliation sweep until ctx is done,
// then shuts both down.
func (a *App) Serve(ctx context.Context) error {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Debug = a.Settings.WebServer.Debug
	e.Logger = logger.NewEchoLoggerAdapter(logger.Global().Module("echo"))

	api.New(e, a.Settings, api.Deps{
		DS:        a.DS,
		Drafts:    a.Drafts,
		Catalog:   a.Catalog,
		Committer: a.Committer,
		Sessions:  a.Sessions,
		Photos:    a.Photos,
	}, api.WithMetrics(a.Metrics))

	var wg sync.WaitGroup
	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	wg.Go(func() {
		a.Committer.RunReconciler(sweepCtx, a.Settings.Pipeline.ReconcileInterval, a.Settings.Pipeline.ReconcileGrace)
	})

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("HTTP API listening", logger.String("listen", a.Settings.WebServer.Listen))
		if err := e.Start(a.Settings.WebServer.Listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	a.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		a.log.Warn("HTTP shutdown incomplete", logger.Error(err))
	}
	stopSweep()
	wg.Wait()

	if serveErr != nil {
		return errors.New(serveErr).
			Component("app").
			Category(errors.CategoryNetwork).
			Context("operation", "serve_http").
			Build()
	}
	return nil
}

// Close releases the sessions, the broker connection and the datastore.
func (a *App) Close() error {
	if a.Sessions != nil {
		a.Sessions.Close()
	}
	if a.broker != nil {
		a.broker.Disconnect()
	}
	if a.DS != nil {
		return a.DS.Close()
	}
	return nil
}
