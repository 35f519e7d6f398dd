// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	_ "scanner-service/docs"
	"scanner-service/internal/config"
	"scanner-service/internal/database"
	"scanner-service/internal/handler"
	"scanner-service/internal/repository"
	"scanner-service/internal/routes"
	"scanner-service/internal/service"
	"scanner-service/internal/utils"
)

// Application represents the main application
type Application struct {
	config   *config.Config
	logger   *zap.Logger
	server   *http.Server
	database *database.DB

	runRepo        repository.SessionRunRepository
	eventBus       *handler.EventBus
	wsHandler      *handler.WebSocketHandler
	scannerService *service.ScannerService

	// background cancels the event bus, log stream and cleanup loops
	background context.CancelFunc
}

// @title Scanner Service API
// @version 1.0.0
// @description Reads radio scanner configuration over the serial programming protocol

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8085
// @BasePath /
func main() {
	app, err := NewApplication()
	if err != nil {
		fmt.Printf("Failed to initialize application: %v\n", err)
		os.Exit(1)
	}

	if err := app.Start(); err != nil {
		app.logger.Fatal("Failed to start application", zap.Error(err))
	}
}

// NewApplication creates a new application instance
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := utils.NewLogger(&cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	serviceLogger := utils.NewServiceLogger(logger, "scanner-service")
	serviceLogger.LogServiceStart(cfg.App.Version, cfg.Scanner)

	app := &Application{
		config: cfg,
		logger: logger,
	}

	if err := app.initializeDatabase(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	app.initializeRepositories()
	app.initializeServices()
	app.initializeServer()

	return app, nil
}

// initializeDatabase connects to PostgreSQL and runs migrations when the
// database is enabled
func (app *Application) initializeDatabase() error {
	if !app.config.Database.Enabled {
		app.logger.Info("Database disabled, session history kept in memory",
			zap.Int("max_runs", app.config.History.MaxRuns),
		)
		return nil
	}

	db, err := database.NewConnection(&app.config.Database, app.logger)
	if err != nil {
		return fmt.Errorf("failed to create database connection: %w", err)
	}
	app.database = db

	migrator := database.NewMigrator(app.logger, &app.config.Database)
	if err := migrator.Up(); err != nil {
		db.Close()
		return fmt.Errorf("failed to run database migrations: %w", err)
	}

	app.logger.Info("Database initialized successfully")
	return nil
}

// initializeRepositories creates repository instances
func (app *Application) initializeRepositories() {
	if app.database != nil {
		app.runRepo = repository.NewSessionRunRepository(app.database, app.logger)
	} else {
		app.runRepo = repository.NewMemorySessionRunRepository(app.config.History.MaxRuns)
	}

	app.logger.Info("Repositories initialized successfully")
}

// initializeServices creates the event hub and scanner service
func (app *Application) initializeServices() {
	app.eventBus = handler.NewEventBus(app.logger)
	app.wsHandler = handler.NewWebSocketHandler(app.eventBus, app.config.Security.AllowedOrigins, app.logger)

	app.scannerService = service.NewScannerService(
		app.runRepo,
		nil,
		app.eventBus,
		&app.config.Scanner,
		app.logger,
	)

	app.logger.Info("Services initialized successfully")
}

// initializeServer sets up HTTP server and routes
func (app *Application) initializeServer() {
	routerManager := routes.NewRouter(
		app.config,
		app.logger,
		app.database,
		app.scannerService,
		app.wsHandler,
	)

	app.server = &http.Server{
		Addr:         app.config.GetServerAddr(),
		Handler:      routerManager.SetupRouter(),
		ReadTimeout:  app.config.Server.ReadTimeout,
		WriteTimeout: app.config.Server.WriteTimeout,
		IdleTimeout:  app.config.Server.IdleTimeout,
	}

	app.logger.Info("HTTP server initialized",
		zap.String("address", app.config.GetServerAddr()),
		zap.Bool("tls_enabled", app.config.Server.TLS.Enabled),
	)
}

// Start serves HTTP until a shutdown signal arrives
func (app *Application) Start() error {
	go func() {
		app.logger.Info("Starting HTTP server",
			zap.String("address", app.server.Addr),
		)

		var err error
		if app.config.Server.TLS.Enabled {
			err = app.server.ListenAndServeTLS(
				app.config.Server.TLS.CertFile,
				app.config.Server.TLS.KeyFile,
			)
		} else {
			err = app.server.ListenAndServe()
		}

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.logger.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	app.startBackgroundServices()
	app.waitForShutdown()
	return nil
}

// startBackgroundServices starts background services
func (app *Application) startBackgroundServices() {
	ctx, cancel := context.WithCancel(context.Background())
	app.background = cancel

	go app.eventBus.Start(ctx)
	go app.wsHandler.Start(ctx)

	if app.config.History.Retention > 0 {
		go app.startCleanupService(ctx)
	}

	app.logger.Info("Background services started")
}

// startCleanupService prunes finished session history past retention
func (app *Application) startCleanupService(ctx context.Context) {
	ticker := time.NewTicker(app.config.History.CleanupInterval)
	defer ticker.Stop()

	app.logger.Info("History cleanup started",
		zap.Duration("retention", app.config.History.Retention),
		zap.Duration("interval", app.config.History.CleanupInterval),
	)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			app.pruneHistory(ctx)
		}
	}
}

func (app *Application) pruneHistory(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	cutoff := time.Now().Add(-app.config.History.Retention)
	deleted, err := app.runRepo.DeleteFinishedBefore(ctx, cutoff)
	if err != nil {
		app.logger.Error("Failed to prune session history", zap.Error(err))
		return
	}
	if deleted > 0 {
		app.logger.Info("Pruned session history", zap.Int64("deleted", deleted))
	}
}

// waitForShutdown waits for shutdown signal and performs graceful shutdown
func (app *Application) waitForShutdown() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	app.logger.Info("Received shutdown signal", zap.String("signal", sig.String()))

	app.shutdown()
}

// shutdown performs graceful shutdown
func (app *Application) shutdown() {
	serviceLogger := utils.NewServiceLogger(app.logger, "scanner-service")
	serviceLogger.LogServiceStop("shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// in-flight sessions finish and close their ports before this returns
	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("HTTP server shutdown error", zap.Error(err))
	} else {
		app.logger.Info("HTTP server stopped")
	}

	if app.background != nil {
		app.background()
	}

	if app.database != nil {
		if err := app.database.Close(); err != nil {
			app.logger.Error("Database close error", zap.Error(err))
		} else {
			app.logger.Info("Database connection closed")
		}
	}

	app.logger.Info("Application shutdown completed")

	if err := utils.CloseLogger(app.logger); err != nil {
		fmt.Printf("Logger close error: %v\n", err)
	}
}
