// Package bootstrap assembles the fiber application from configuration,
// hooks and the dependency container, and runs its HTTP/HTTPS listeners.
package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"svcboot/internal/config"
	"svcboot/internal/container"
	"svcboot/internal/database"
	"svcboot/internal/database/migration"
	"svcboot/internal/http/handler"
	"svcboot/internal/http/middleware"
	"svcboot/internal/logging"
	"svcboot/internal/tlsbundle"
)

var (
	newMongo          = database.NewMongo
	newPostgres       = database.NewPostgres
	ensureCollections = migration.EnsureCollections
)

var ErrNoConfig = errors.New("bootstrap: config is required")

// InitFunc customizes the application at a startup stage.
type InitFunc func(ctx context.Context, app *fiber.App, cfg *config.Config, c *container.Container) error

// Hooks run around the built-in middleware. When Test is set, Run executes
// it against the initialized application instead of starting listeners.
type Hooks struct {
	Creating InitFunc
	Created  InitFunc
	Test     InitFunc
}

type Options struct {
	// Config must already be normalized.
	Config *config.Config
	// BaseDir resolves relative PFX paths; defaults to the install base
	// directory derived from the executable location.
	BaseDir   string
	Container *container.Container
	Hooks     Hooks
	Logger    *zap.Logger
	// Bundles loads the PFX bundle; defaults to a FileLoader on BaseDir.
	Bundles tlsbundle.Loader
	// Registry collects request metrics and backs /metrics.
	Registry *prometheus.Registry
	// OnClose runs after the persistence handles are released, in reverse
	// order, when the application stops.
	OnClose []func(context.Context) error
}

// App is an initialized application together with the resources it owns.
type App struct {
	Fiber     *fiber.App
	Config    *config.Config
	Container *container.Container

	log     *zap.Logger
	closers []func(context.Context) error
}

// Close releases the persistence handles opened by Init.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (o *Options) defaults() error {
	if o.Config == nil {
		return ErrNoConfig
	}
	if o.Container == nil {
		o.Container = container.New()
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Registry == nil {
		o.Registry = prometheus.NewRegistry()
	}
	if o.BaseDir == "" {
		if exe, err := os.Executable(); err == nil {
			o.BaseDir = o.Config.BaseDir(filepath.Dir(exe))
		}
	}
	if o.Bundles == nil {
		o.Bundles = tlsbundle.FileLoader{BaseDir: o.BaseDir}
	}
	return nil
}

// Init opens persistence, builds the fiber app and wires middleware, hooks,
// controllers and the built-in routes. The first failing hook aborts Init.
func Init(ctx context.Context, opts Options) (*App, error) {
	if err := opts.defaults(); err != nil {
		return nil, err
	}
	cfg := opts.Config
	log := logging.Component(opts.Logger, cfg.Log, "bootstrap")

	a := &App{Config: cfg, Container: opts.Container, log: log}
	a.closers = append(a.closers, opts.OnClose...)
	if err := errors.Join(
		container.Provide(a.Container, cfg),
		container.Provide(a.Container, opts.Logger),
	); err != nil {
		_ = a.Close(ctx)
		return nil, err
	}

	pinger, err := a.openPersistence(ctx, opts.Logger)
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}

	app := fiber.New(fiber.Config{
		AppName:               cfg.Log,
		BodyLimit:             cfg.BodyLimit(),
		ErrorHandler:          handler.ErrorHandler(logging.Component(opts.Logger, cfg.Log, "http")),
		DisableStartupMessage: true,
	})
	a.Fiber = app

	if err := a.build(ctx, opts, pinger); err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	return a, nil
}

func (a *App) openPersistence(ctx context.Context, base *zap.Logger) (handler.Pinger, error) {
	p := a.Config.Persistence
	log := logging.Component(base, a.Config.Log, "database")

	switch p.Driver {
	case config.DriverMongo:
		m, err := newMongo(ctx, p.Mongo, log)
		if err != nil {
			return nil, fmt.Errorf("mongo: %w", err)
		}
		a.closers = append(a.closers, m.Close)
		if err := container.Provide(a.Container, m); err != nil {
			return nil, err
		}
		return m, nil

	case config.DriverPostgres:
		db, err := newPostgres(ctx, p.Postgres, log)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { return db.Close() })
		if err := ensureCollections(ctx, db, log, p.Collections...); err != nil {
			return nil, fmt.Errorf("postgres migration: %w", err)
		}
		if err := container.Provide[*sql.DB](a.Container, db); err != nil {
			return nil, err
		}
		return handler.PingFunc(db.PingContext), nil
	}
	return nil, nil
}

func (a *App) build(ctx context.Context, opts Options, pinger handler.Pinger) error {
	app, cfg := a.Fiber, a.Config

	if h := opts.Hooks.Creating; h != nil {
		if err := h(ctx, app, cfg, a.Container); err != nil {
			return fmt.Errorf("creating hook: %w", err)
		}
	}

	prom, err := middleware.NewPrometheusMiddleware(opts.Registry)
	if err != nil {
		return err
	}

	// otelfiber hands route errors to the error handler itself and returns
	// nil, so everything that must see the error sits outside it and recover
	// sits inside it.
	app.Use(middleware.RequestID())
	app.Use(middleware.Logger(logging.Component(opts.Logger, cfg.Log, "access")))
	app.Use(prom.Handler())
	app.Use(otelfiber.Middleware(otelfiber.WithServerName(cfg.Name)))
	app.Use(recover.New())
	app.Use(middleware.CORS(cfg.CORS))
	app.Use(middleware.BodyParser())
	app.Use(middleware.CookieParser())

	if h := opts.Hooks.Created; h != nil {
		if err := h(ctx, app, cfg, a.Container); err != nil {
			return fmt.Errorf("created hook: %w", err)
		}
	}

	for _, ctrl := range a.Container.Controllers() {
		ctrl.Routes(app)
	}
	handler.RegisterBuiltins(app, handler.Builtins{Pinger: pinger, Gatherer: opts.Registry})
	app.Use(handler.NotFound())

	return nil
}

func stageOf(opts Options) string {
	if opts.Hooks.Test != nil {
		return "UNIT-TEST"
	}
	return "APPLICATION"
}

func sources(cfg *config.Config) string {
	return strings.Join(cfg.Sources(), ",")
}

// configFields summarizes cfg for the startup log without credentials.
func configFields(cfg *config.Config) []zap.Field {
	fields := []zap.Field{
		zap.String("sources", sources(cfg)),
		zap.String("env", cfg.Env),
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.String("url", cfg.URL),
		zap.Strings("cors", cfg.CORS),
		zap.String("persistence", cfg.Persistence.Driver),
	}
	if cfg.HTTPS != nil {
		fields = append(fields, zap.Int("https_port", cfg.TLSPort()), zap.String("https_url", cfg.HTTPS.URL))
	}
	return fields
}
