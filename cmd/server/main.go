// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"v850-service/internal/config"
	"v850-service/internal/database"
	"v850-service/internal/handler"
	"v850-service/internal/repository"
	"v850-service/internal/routes"
	"v850-service/internal/service"
	"v850-service/internal/utils"
)

// Application represents the main application
type Application struct {
	config   *config.Config
	logger   *zap.Logger
	server   *http.Server
	database *database.DB

	sessionRepo repository.SessionRepository

	targetService    *service.TargetService
	discoveryService *service.DiscoveryService

	eventBus   *handler.EventBus
	wsHandler  *handler.WebSocketHandler
	stopEvents context.CancelFunc
}

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	app, err := NewApplication(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize application: %v\n", err)
		os.Exit(1)
	}

	if err := app.Start(); err != nil {
		app.logger.Fatal("Failed to start application", zap.Error(err))
	}
}

// NewApplication creates a new application instance
func NewApplication(configPath string) (*Application, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := utils.NewLogger(&cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	serviceLogger := utils.NewServiceLogger(logger, "v850-service")
	serviceLogger.LogServiceStart(cfg.App.Version, cfg)

	app := &Application{
		config: cfg,
		logger: logger,
	}

	if err := app.initializeStorage(); err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	app.initializeEvents()
	app.initializeServices()
	app.initializeServer()

	return app, nil
}

// initializeStorage connects to PostgreSQL and migrates it, or falls back
// to the in-memory session store.
func (app *Application) initializeStorage() error {
	if !app.config.Database.Enabled {
		app.sessionRepo = repository.NewMemorySessionRepository(0)
		app.logger.Info("Database disabled, sessions kept in memory")
		return nil
	}

	db, err := database.NewConnection(app.config, app.logger)
	if err != nil {
		return fmt.Errorf("failed to create database connection: %w", err)
	}
	app.database = db

	migrator := database.NewMigrator(db, app.logger, &app.config.Database)
	if err := migrator.Up(); err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}

	app.sessionRepo = repository.NewSessionRepository(db, app.logger)
	app.logger.Info("Database initialized successfully")
	return nil
}

func (app *Application) initializeEvents() {
	app.eventBus = handler.NewEventBus(app.logger)
	app.wsHandler = handler.NewWebSocketHandler(app.eventBus, app.config.Server.AllowedOrigins, app.logger)
}

// initializeServices creates service instances
func (app *Application) initializeServices() {
	app.targetService = service.NewTargetService(app.config, app.sessionRepo, app.eventBus, app.logger)
	app.discoveryService = service.NewDiscoveryService(app.config, app.logger)
	app.logger.Info("Services initialized successfully",
		zap.String("transfer_mode", app.config.USB.TransferMode),
	)
}

// initializeServer sets up HTTP server and routes
func (app *Application) initializeServer() {
	routerManager := routes.NewRouter(
		app.config,
		app.logger,
		app.database,
		app.targetService,
		app.discoveryService,
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
	)
}

// startBackgroundServices starts the event bus and the websocket fan-out.
func (app *Application) startBackgroundServices() {
	ctx, cancel := context.WithCancel(context.Background())
	app.stopEvents = cancel
	go app.eventBus.Start(ctx)
	app.wsHandler.Start(ctx)
	app.logger.Info("Background services started")
}

// waitForShutdown waits for shutdown signal and performs graceful shutdown
func (app *Application) waitForShutdown(serverErr <-chan error) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		app.logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
	case err := <-serverErr:
		app.logger.Error("HTTP server failed", zap.Error(err))
	}

	app.shutdown()
}

// shutdown performs graceful shutdown
func (app *Application) shutdown() {
	serviceLogger := utils.NewServiceLogger(app.logger, "v850-service")
	serviceLogger.LogServiceStop("shutdown signal received")

	// In-flight sessions get 30s to finish.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("HTTP server shutdown error", zap.Error(err))
	} else {
		app.logger.Info("HTTP server stopped")
	}

	if app.stopEvents != nil {
		app.stopEvents()
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
		fmt.Fprintf(os.Stderr, "Logger close error: %v\n", err)
	}
}

// Start serves until a shutdown signal arrives.
func (app *Application) Start() error {
	app.startBackgroundServices()

	serverErr := make(chan error, 1)
	go func() {
		app.logger.Info("Starting HTTP server",
			zap.String("address", app.server.Addr),
		)
		if err := app.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	app.waitForShutdown(serverErr)
	return nil
}
