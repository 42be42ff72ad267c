// Package server assembles the scraper's dependencies and runs the HTTP API.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/JakeFAU/usn-result-scraper/internal/api"
	"github.com/JakeFAU/usn-result-scraper/internal/artifact"
	"github.com/JakeFAU/usn-result-scraper/internal/artifact/gcs"
	"github.com/JakeFAU/usn-result-scraper/internal/artifact/local"
	"github.com/JakeFAU/usn-result-scraper/internal/config"
	"github.com/JakeFAU/usn-result-scraper/internal/job"
	"github.com/JakeFAU/usn-result-scraper/internal/notify"
	notifypubsub "github.com/JakeFAU/usn-result-scraper/internal/notify/pubsub"
	"github.com/JakeFAU/usn-result-scraper/internal/pdftext"
	"github.com/JakeFAU/usn-result-scraper/internal/portal"
	"github.com/JakeFAU/usn-result-scraper/internal/progress"
	progresssinks "github.com/JakeFAU/usn-result-scraper/internal/progress/sinks"
	"github.com/JakeFAU/usn-result-scraper/internal/scrape"
)

// Options overrides infrastructure that tests and embedders need to control.
type Options struct {
	// Logger defaults to zap.L().
	Logger *zap.Logger
	// Fs backs the local artifact store; defaults to the OS filesystem.
	Fs afero.Fs
	// Registerer receives the progress collectors; defaults to the global registry.
	Registerer prometheus.Registerer
}

// App contains the application's dependencies.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	Manager   *job.Manager
	Store     artifact.Store
	Publisher notify.Publisher
	apiServer *api.Server

	progressHub  *progress.Hub
	gcsClient    *storage.Client
	pubsubCloser interface{ Close() error }
}

// Build creates the application's dependencies from cfg.
func Build(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.L()
	}
	app := &App{cfg: cfg, logger: logger}
	logger.Info("building application dependencies",
		zap.Int("server_port", cfg.Server.Port),
		zap.String("storage_backend", cfg.Storage.Backend),
	)

	client, err := portal.New(cfg.PortalClient(), pdftext.New(), logger.Named("portal"))
	if err != nil {
		return nil, fmt.Errorf("portal client init failed: %w", err)
	}
	if err := app.setupStorage(ctx, opts.Fs); err != nil {
		app.closeInfrastructure(ctx)
		return nil, err
	}
	if err := app.setupPublisher(ctx); err != nil {
		app.closeInfrastructure(ctx)
		return nil, err
	}
	if err := app.setupProgress(opts.Registerer); err != nil {
		app.closeInfrastructure(ctx)
		return nil, err
	}

	enumerator := scrape.New(
		client,
		app.Store,
		app.progressHub,
		app.Publisher,
		cfg.Enumerator(),
		logger.Named("scrape"),
	)
	app.Manager = job.NewManager(enumerator, client, app.Store, logger.Named("job"))
	app.apiServer = api.NewServer(app.Manager, logger.Named("api"))
	return app, nil
}

func (a *App) setupStorage(ctx context.Context, fsys afero.Fs) error {
	switch a.cfg.Storage.Backend {
	case config.BackendGCS:
		a.logger.Info("using GCS storage backend", zap.String("bucket", a.cfg.Storage.GCSBucket))
		var err error
		a.gcsClient, err = storage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("gcs client init failed: %w", err)
		}
		store, err := gcs.New(a.gcsClient, a.cfg.GCSStore(), a.logger.Named("gcs"))
		if err != nil {
			return fmt.Errorf("gcs store init failed: %w", err)
		}
		a.Store = store
	default:
		a.logger.Info("using local storage backend", zap.String("root", a.cfg.Storage.RootDir))
		store, err := local.New(fsys, a.cfg.LocalStore(), a.logger.Named("local"))
		if err != nil {
			return fmt.Errorf("local store init failed: %w", err)
		}
		a.Store = store
	}
	return nil
}

func (a *App) setupPublisher(ctx context.Context) error {
	psCfg, enabled := a.cfg.Notifications()
	if !enabled {
		a.logger.Info("no Pub/Sub topic configured, artifact notifications disabled")
		a.Publisher = notify.Nop{}
		return nil
	}
	pub, err := notifypubsub.Connect(ctx, psCfg, a.logger.Named("pubsub"))
	if err != nil {
		return fmt.Errorf("pubsub publisher init failed: %w", err)
	}
	a.Publisher = pub
	a.pubsubCloser = pub
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", psCfg.ProjectID),
		zap.String("topic", psCfg.Topic),
	)
	return nil
}

func (a *App) setupProgress(reg prometheus.Registerer) error {
	promSink, err := progresssinks.NewPrometheusSink(reg)
	if err != nil {
		return fmt.Errorf("progress metrics init failed: %w", err)
	}
	a.progressHub = progress.NewHub(progress.Config{Logger: a.logger.Named("progress_hub")},
		promSink,
		progresssinks.NewLogSink(a.logger.Named("progress")),
	)
	return nil
}

// Handler exposes the HTTP API.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Run serves the API until ctx is canceled or SIGINT/SIGTERM arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			stop()
		}
		close(serveErr)
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	closeErr := a.Close(shutdownCtx)
	if err := <-serveErr; err != nil {
		return fmt.Errorf("http server: %w", err)
	}
	return closeErr
}

// Close cancels any running job, waits for it and releases clients.
func (a *App) Close(ctx context.Context) error {
	if a.Manager != nil {
		if err := a.Manager.Cancel(); err == nil {
			a.logger.Info("canceled running scrape job")
		}
		if err := a.Manager.Wait(ctx); err != nil {
			a.logger.Warn("scrape job did not stop in time", zap.Error(err))
		}
	}
	a.closeInfrastructure(ctx)
	a.logger.Info("shutdown complete")
	return nil
}

func (a *App) closeInfrastructure(ctx context.Context) {
	if a.progressHub != nil {
		if err := a.progressHub.Close(ctx); err != nil {
			a.logger.Warn("progress hub close failed", zap.Error(err))
		}
	}
	if a.pubsubCloser != nil {
		if err := a.pubsubCloser.Close(); err != nil {
			a.logger.Warn("pubsub publisher close failed", zap.Error(err))
		}
	}
	if a.gcsClient != nil {
		if err := a.gcsClient.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
}
