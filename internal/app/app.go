package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/marianozunino/gatedrop/internal/clock"
	"github.com/marianozunino/gatedrop/internal/config"
	"github.com/marianozunino/gatedrop/internal/db"
	"github.com/marianozunino/gatedrop/internal/expiration"
	"github.com/marianozunino/gatedrop/internal/handler"
	"github.com/marianozunino/gatedrop/internal/identity"
	middie "github.com/marianozunino/gatedrop/internal/middleware"
	"github.com/marianozunino/gatedrop/internal/migration"
	"github.com/marianozunino/gatedrop/internal/policy"
	"github.com/marianozunino/gatedrop/internal/registry"
	"github.com/marianozunino/gatedrop/internal/service"
	"github.com/marianozunino/gatedrop/internal/storage"
)

// App represents the application
type App struct {
	server            *echo.Echo
	expirationManager *expiration.ExpirationManager
	config            *config.Config
	db                *db.DB
	files             *service.FileService
}

// Option customizes New
type Option func(*options)

type options struct {
	clock clock.Clock
}

// WithClock replaces the system clock, used by tests to travel in time
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// New creates a new application instance from cfg
func New(cfg *config.Config, opts ...Option) (*App, error) {
	o := options{clock: clock.System{}}
	for _, opt := range opts {
		opt(&o)
	}

	log.Printf("Configuration: port=%d storage=%s registry=%s share=%s",
		cfg.Port, cfg.Storage.Backend, cfg.Registry.Backend, cfg.ShareLinkBase())

	ctx := context.Background()
	if err := setup(cfg); err != nil {
		return nil, err
	}

	blobs, err := newBlobStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	app := &App{config: cfg}

	reg, policies, err := app.newRegistry(ctx, cfg)
	if err != nil {
		return nil, err
	}

	directory := identity.NewDirectory()
	if err := directory.Seed(ctx, cfg.Auth.Users); err != nil {
		app.closeDB()
		return nil, fmt.Errorf("failed to seed users: %w", err)
	}

	secret := cfg.Auth.JWTSecret
	if secret == "" {
		secret = randomSecret()
		log.Printf("Warning: auth.jwt_secret is not set, tokens will not survive a restart")
	}
	sessions := identity.NewSessions(secret, cfg.TokenTTL(), cfg.Auth.RevocationCacheSize, o.clock, directory)

	app.files = service.New(reg, blobs, policies, service.Options{
		ShareBaseURL:          cfg.ShareLinkBase(),
		EnforceValidityBounds: cfg.Upload.EnforceValidityBounds,
		Clock:                 o.clock,
	})
	app.expirationManager = expiration.NewExpirationManager(app.files, cfg.CheckIntervalDuration(), cfg.Expiration.Enabled)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Configure timeouts for large file uploads
	e.Server.ReadTimeout = 10 * time.Minute
	e.Server.WriteTimeout = 10 * time.Minute
	e.Server.IdleTimeout = 15 * time.Minute
	e.Server.ReadHeaderTimeout = 30 * time.Second

	e.HTTPErrorHandler = handler.ErrorHandler
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middie.SecurityHeaders())
	e.Use(middie.Metrics())

	app.server = e
	registerRoutes(e, handler.NewHandler(app.files, sessions, directory, cfg))
	return app, nil
}

// Handler exposes the HTTP handler, used to serve the app in tests
func (a *App) Handler() http.Handler {
	return a.server
}

// Files exposes the file service
func (a *App) Files() *service.FileService {
	return a.files
}

// Start starts the application
func (a *App) Start() {
	a.expirationManager.Start()

	serverAddr := fmt.Sprintf(":%d", a.config.Port)

	go func() {
		if err := a.server.Start(serverAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("Server stopped: %v", err)
		}
	}()

	log.Printf("Server started on %s", serverAddr)
}

// Stop stops all application services
func (a *App) Stop() {
	a.expirationManager.Stop()
	a.closeDB()
}

// Shutdown gracefully shuts down the server
func (a *App) Shutdown(ctx context.Context) error {
	return a.server.Shutdown(ctx)
}

func (a *App) closeDB() {
	if a.db == nil {
		return
	}
	if err := a.db.Close(); err != nil {
		log.Printf("Warning: Failed to close database: %v", err)
	}
	a.db = nil
}

// newRegistry opens the configured registry backend and the policy store living next to it
func (a *App) newRegistry(ctx context.Context, cfg *config.Config) (registry.Registry, policy.Store, error) {
	if cfg.Registry.Backend == config.BackendMemory {
		log.Printf("Warning: Using in-memory registry, files are forgotten on restart")
		return registry.NewMemory(), policy.NewMemoryStore(cfg.Policy), nil
	}

	database, err := db.NewDB(cfg.Registry.SQLitePath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	a.db = database

	manager, err := migration.NewManagerWithDB(database.DB)
	if err != nil {
		a.closeDB()
		return nil, nil, err
	}
	if err := manager.Up(); err != nil {
		a.closeDB()
		return nil, nil, err
	}

	policies, err := db.NewPolicyStore(ctx, database, cfg.Policy)
	if err != nil {
		a.closeDB()
		return nil, nil, err
	}
	return db.NewRegistry(database), policies, nil
}

func newBlobStore(ctx context.Context, cfg *config.Config) (storage.BlobStore, error) {
	if cfg.Storage.Backend == config.BackendS3 {
		return storage.NewS3(ctx, cfg.Storage.S3)
	}
	return storage.NewLocal(cfg.Storage.UploadPath)
}

// setup ensures all necessary directories exist
func setup(cfg *config.Config) error {
	if cfg.Storage.Backend != config.BackendLocal {
		return nil
	}
	return os.MkdirAll(cfg.Storage.UploadPath, 0o755)
}

func randomSecret() string {
	b := make([]byte, 32)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// registerRoutes registers all HTTP routes
func registerRoutes(e *echo.Echo, h *handler.Handler) {
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	handler.RegisterRoutes(e, h)
}
