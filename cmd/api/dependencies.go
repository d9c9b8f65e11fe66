package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/store-usage/internal/domain/access"
	"github.com/FACorreiaa/store-usage/internal/domain/usage/conversion"
	"github.com/FACorreiaa/store-usage/internal/domain/usage/extractor"
	usagehandler "github.com/FACorreiaa/store-usage/internal/domain/usage/handler"
	"github.com/FACorreiaa/store-usage/internal/domain/usage/repository"
	"github.com/FACorreiaa/store-usage/internal/domain/usage/service"
	"github.com/FACorreiaa/store-usage/pkg/config"
	"github.com/FACorreiaa/store-usage/pkg/db"
	"github.com/FACorreiaa/store-usage/pkg/interceptors"
	"github.com/FACorreiaa/store-usage/pkg/observability"
)

// Dependencies holds all application dependencies
type Dependencies struct {
	Config *config.Config
	DB     *db.DB
	Logger *slog.Logger

	Registry *prometheus.Registry
	Metrics  *observability.Metrics
	Tracer   trace.Tracer

	// Repositories
	UsageRepo     repository.UsageRepository
	AccessChecker *access.Checker

	// Services
	Conversions   *conversion.Table
	UsageService  *service.Service
	Authenticator *interceptors.Authenticator

	// Handlers
	UsageHandler *usagehandler.UsageHandler
}

// InitDependencies initializes all application dependencies
func InitDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	deps.initObservability()

	if err := deps.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to init database: %w", err)
	}

	if err := deps.initRepositories(); err != nil {
		return nil, fmt.Errorf("failed to init repositories: %w", err)
	}

	if err := deps.initServices(); err != nil {
		return nil, fmt.Errorf("failed to init services: %w", err)
	}

	if err := deps.initHandlers(); err != nil {
		return nil, fmt.Errorf("failed to init handlers: %w", err)
	}

	logger.Info("all dependencies initialized successfully")

	return deps, nil
}

func (d *Dependencies) initObservability() {
	d.Registry = prometheus.NewRegistry()
	d.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	d.Metrics = observability.NewMetrics(d.Registry)
	d.Tracer = observability.NewTracer(d.Config.Observability.TracingEnabled)
}

// initDatabase initializes the database connection and runs migrations
func (d *Dependencies) initDatabase() error {
	database, err := db.New(db.Config{
		DSN:             d.Config.Database.DSN(),
		MaxConns:        d.Config.Database.MaxConns,
		MinConns:        d.Config.Database.MinConns,
		MaxConnLifetime: 5 * time.Minute,
		MaxConnIdleTime: 10 * time.Minute,
	}, d.Logger)
	if err != nil {
		return err
	}

	d.DB = database

	if err := d.DB.RunMigrations(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	d.Logger.Info("database connected and migrations completed successfully")
	return nil
}

// initRepositories initializes all repository layer dependencies
func (d *Dependencies) initRepositories() error {
	d.UsageRepo = repository.NewPostgresUsageRepository(d.DB.Pool)
	d.AccessChecker = access.NewChecker(d.DB.Pool)

	d.Logger.Info("repositories initialized")
	return nil
}

// initServices initializes all service layer dependencies
func (d *Dependencies) initServices() error {
	jwtSecret := []byte(d.Config.Auth.JWTSecret)
	if len(jwtSecret) == 0 {
		return fmt.Errorf("jwt secret is required")
	}
	d.Authenticator = interceptors.NewAuthenticator(jwtSecret, d.Logger)

	conversions, err := loadConversions(d.Config.Usage.ConversionFile)
	if err != nil {
		return err
	}
	d.Conversions = conversions

	d.UsageService = service.NewService(
		d.UsageRepo,
		extractor.New(d.Logger),
		d.Conversions,
		d.Metrics,
		d.Tracer,
		d.Logger,
	)

	d.Logger.Info("services initialized", slog.Int("conversion_products", d.Conversions.Len()))
	return nil
}

// initHandlers initializes all handler dependencies
func (d *Dependencies) initHandlers() error {
	d.UsageHandler = usagehandler.NewUsageHandler(
		d.UsageService,
		d.AccessChecker,
		d.Config.Server.MaxUploadBytes,
		d.Logger,
	)

	d.Logger.Info("handlers initialized")
	return nil
}

// Cleanup closes all resources
func (d *Dependencies) Cleanup() {
	if d.DB != nil {
		d.DB.Close()
	}
	d.Logger.Info("cleanup completed")
}

func loadConversions(path string) (*conversion.Table, error) {
	if path == "" {
		return conversion.Default(), nil
	}
	table, err := conversion.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversion catalog: %w", err)
	}
	return table, nil
}
