// Package app provides application initialization and wiring.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ngds/geobridge/internal/adapters/auth"
	"github.com/ngds/geobridge/internal/adapters/geoserver"
	httpAdapter "github.com/ngds/geobridge/internal/adapters/http"
	"github.com/ngds/geobridge/internal/adapters/ledger"
	"github.com/ngds/geobridge/internal/adapters/metrics"
	"github.com/ngds/geobridge/internal/adapters/postgis"
	"github.com/ngds/geobridge/internal/adapters/storage"
	tlsAdapter "github.com/ngds/geobridge/internal/adapters/tls"
	"github.com/ngds/geobridge/internal/adapters/watcher"
	"github.com/ngds/geobridge/internal/application"
	"github.com/ngds/geobridge/internal/config"
	"github.com/ngds/geobridge/internal/domain"
	"github.com/ngds/geobridge/internal/ports/output"
)

// App holds all application components.
type App struct {
	Config  *config.Config
	Logger  *slog.Logger
	Metrics *metrics.Collector

	Datastore *postgis.Datastore
	Catalogs  *geoserver.Provider
	Ledger    *ledger.Ledger
	Styles    output.StyleSource
	Tokens    *auth.TokenVerifier

	SpatializeService *application.SpatializeService
	PublishService    *application.PublishService
	CatalogService    *application.CatalogService
	StyleService      *application.StyleService
	HealthService     *application.HealthService
	Reconciler        *application.Reconciler

	HTTPServer    *httpAdapter.Server
	Listener      *tlsAdapter.Listener
	MetricsServer *metrics.Server
	Watcher       *watcher.Watcher

	reconciling bool
}

// New creates the application with its servers.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	app, err := Open(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := app.initServers(); err != nil {
		app.Close()
		return nil, err
	}
	return app, nil
}

// Open creates the adapters and action services without any server, for
// running actions from the command line. Close releases it.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *App, err error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}
	defer func() {
		if err != nil {
			app.Close()
		}
	}()

	var metricsCollector output.MetricsCollector = &output.NoOpMetrics{}
	if cfg.Metrics.Enabled {
		app.Metrics = metrics.NewCollector("geobridge", prometheus.NewRegistry())
		metricsCollector = app.Metrics
	}

	app.Datastore, err = postgis.Open(ctx, postgis.Config{
		URL:              cfg.Datastore.WriteURL,
		MaxOpenConns:     cfg.Datastore.MaxOpenConns,
		StatementTimeout: cfg.Datastore.StatementTimeout,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("opening datastore: %w", err)
	}

	servers := make([]geoserver.Server, 0, len(cfg.GeoServer.Servers))
	for _, s := range cfg.GeoServer.Servers {
		servers = append(servers, geoserver.Server{URL: s.URL, Username: s.Username, Password: s.Password})
	}
	app.Catalogs = geoserver.NewProvider(geoserver.Config{
		URL:      cfg.GeoServer.URL,
		Username: cfg.GeoServer.Username,
		Password: cfg.GeoServer.Password,
		Timeout:  cfg.GeoServer.Timeout,
		CacheTTL: cfg.GeoServer.CacheTTL,
	}, servers, metricsCollector, logger)

	app.Ledger, err = ledger.Open(ctx, cfg.Ledger.Path)
	if err != nil {
		return nil, fmt.Errorf("opening ledger: %w", err)
	}

	app.Styles, err = initStyles(ctx, cfg.Styles, metricsCollector)
	if err != nil {
		return nil, fmt.Errorf("initializing styles: %w", err)
	}

	app.Tokens = auth.NewTokenVerifier(auth.TokenConfig{
		Secret:    cfg.Auth.Secret,
		Issuer:    cfg.Auth.Issuer,
		Sysadmins: cfg.Auth.Sysadmins,
	})
	authorizer := auth.NewAuthorizer(cfg.Auth.Grants)

	app.SpatializeService = application.NewSpatializeService(app.Datastore, authorizer, metricsCollector, logger)
	storeDefaults := domain.StoreConnection{
		PgHost:     cfg.StoreDefaults.Host,
		PgPort:     cfg.StoreDefaults.PortString(),
		PgDB:       cfg.StoreDefaults.Database,
		PgUser:     cfg.StoreDefaults.User,
		PgPassword: cfg.StoreDefaults.Password,
		DBType:     cfg.StoreDefaults.DBType,
	}
	app.PublishService = application.NewPublishService(
		app.Catalogs,
		app.Datastore,
		app.Ledger,
		app.Styles,
		authorizer,
		metricsCollector,
		logger,
		application.PublishServiceConfig{
			NamespaceURIBase: cfg.GeoServer.NamespaceURIBase,
			DefaultWorkspace: cfg.GeoServer.DefaultWorkspace,
			DefaultStore:     cfg.GeoServer.DefaultStore,
			StoreDefaults:    storeDefaults,
		},
	)
	app.CatalogService = application.NewCatalogService(app.Catalogs, app.Datastore, authorizer, metricsCollector, logger, storeDefaults)
	app.HealthService = application.NewHealthService(app.Datastore, app.Catalogs)
	app.Reconciler = application.NewReconciler(app.Catalogs, app.Ledger, cfg.Ledger.ReconcileInterval, logger)
	if app.Styles != nil {
		app.StyleService = application.NewStyleService(app.Catalogs, app.Ledger, app.Styles, logger)
	}

	return app, nil
}

// initServers creates the action API, its TLS listener, the metrics server
// and the style watcher.
func (a *App) initServers() error {
	cfg, logger := a.Config, a.Logger

	opts := httpAdapter.Options{}
	if a.Tokens.Enabled() {
		opts.Authenticator = a.Tokens
	}
	if a.Metrics != nil {
		opts.MetricsMiddleware = a.Metrics.Middleware
		if cfg.Metrics.Port == 0 {
			opts.MetricsHandler = a.Metrics.Handler()
			opts.MetricsPath = cfg.Metrics.Path
		} else {
			a.MetricsServer = metrics.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, a.Metrics.Handler(), logger)
		}
	}

	a.HTTPServer = httpAdapter.NewServer(
		cfg.Server,
		httpAdapter.Services{
			Spatializer: a.SpatializeService,
			Publisher:   a.PublishService,
			Catalog:     a.CatalogService,
			Health:      a.HealthService,
		},
		opts,
		logger,
	)

	listener, err := tlsAdapter.NewListener(tlsAdapter.Config{
		Enabled:  cfg.TLS.Enabled,
		Domains:  cfg.TLS.Domains,
		Email:    cfg.TLS.Email,
		CacheDir: cfg.TLS.CacheDir,
		Staging:  cfg.TLS.Staging,
		DNS: tlsAdapter.DNSConfig{
			SubscriptionID:    cfg.TLS.DNS.SubscriptionID,
			ResourceGroupName: cfg.TLS.DNS.ResourceGroupName,
			ClientID:          cfg.TLS.DNS.ClientID,
		},
	}, a.HTTPServer.HTTPServer(), logger)
	if err != nil {
		return fmt.Errorf("initializing TLS: %w", err)
	}
	a.Listener = listener

	if cfg.Styles.Watch && a.StyleService != nil {
		w, err := watcher.New(
			watcher.Config{
				Root:     cfg.Styles.LocalPath,
				Debounce: cfg.Styles.Debounce,
			},
			a.handleStyleEvent,
			logger,
		)
		if err != nil {
			logger.Warn("failed to initialize style watcher", "error", err)
		} else {
			a.Watcher = w
		}
	}

	return nil
}

// Start starts all application components and serves the action API
// until Shutdown.
func (a *App) Start(ctx context.Context) error {
	if a.Watcher != nil {
		if err := a.Watcher.Start(ctx); err != nil {
			a.Logger.Warn("failed to start style watcher", "error", err)
		}
	}

	if a.Config.Ledger.ReconcileInterval > 0 {
		a.Reconciler.Start(ctx)
		a.reconciling = true
	}

	if a.MetricsServer != nil {
		go func() {
			if err := a.MetricsServer.Start(); err != nil {
				a.Logger.Error("metrics server error", "error", err)
			}
		}()
	}

	return a.Listener.ListenAndServe()
}

// Shutdown gracefully shuts down all components.
func (a *App) Shutdown(ctx context.Context) error {
	a.Logger.Info("shutting down application")

	var errs []error
	if err := a.Listener.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("HTTP server: %w", err))
	}
	if a.MetricsServer != nil {
		if err := a.MetricsServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("metrics server: %w", err))
		}
	}

	if a.reconciling {
		a.Reconciler.Stop()
	}

	a.Close()
	return errors.Join(errs...)
}

// Close releases the watcher, the catalog clients, the ledger and the
// datastore pool.
func (a *App) Close() {
	if a.Watcher != nil {
		_ = a.Watcher.Stop()
	}
	if a.Catalogs != nil {
		a.Catalogs.Close()
	}
	if a.Ledger != nil {
		if err := a.Ledger.Close(); err != nil {
			a.Logger.Error("failed to close ledger", "error", err)
		}
	}
	if a.Datastore != nil {
		if err := a.Datastore.Close(); err != nil {
			a.Logger.Error("failed to close datastore", "error", err)
		}
	}
}

// handleStyleEvent pushes an edited style to the workspaces using it.
func (a *App) handleStyleEvent(ctx context.Context, event watcher.Event) error {
	if event.Operation == watcher.OpDelete {
		a.Logger.Info("style removed, published copies are kept", "key", event.Key)
		return nil
	}

	n, err := a.StyleService.Refresh(ctx, event.Key)
	if err != nil {
		return err
	}
	a.Logger.Debug("style event handled", "key", event.Key, "workspaces", n)
	return nil
}

// initStyles initializes the configured style source, nil when none is.
func initStyles(ctx context.Context, cfg config.StylesConfig, mc output.MetricsCollector) (output.StyleSource, error) {
	var (
		src output.StyleSource
		err error
	)

	switch output.StorageType(cfg.Type) {
	case "":
		return nil, nil

	case output.StorageTypeLocal:
		src = storage.NewLocalStorage(cfg.LocalPath)

	case output.StorageTypeS3:
		src, err = storage.NewS3Storage(ctx, storage.S3Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Prefix:          cfg.S3.Prefix,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
		})

	case output.StorageTypeAzure:
		src, err = storage.NewAzureStorage(storage.AzureConfig{
			Container:        cfg.Azure.Container,
			AccountName:      cfg.Azure.AccountName,
			AccountKey:       cfg.Azure.AccountKey,
			ConnectionString: cfg.Azure.ConnectionString,
			Prefix:           cfg.Azure.Prefix,
		})

	case output.StorageTypeHTTP:
		src = storage.NewHTTPStorage(storage.HTTPConfig{
			BaseURL:   cfg.HTTP.BaseURL,
			IndexFile: cfg.HTTP.IndexFile,
			Timeout:   cfg.HTTP.Timeout,
			Username:  cfg.HTTP.Username,
			Password:  cfg.HTTP.Password,
		})

	default:
		return nil, fmt.Errorf("unknown styles type: %s", cfg.Type)
	}
	if err != nil {
		return nil, err
	}

	return storage.NewInstrumented(src, mc), nil
}
