package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/companionlab/billing-service/internal/config"
	"github.com/companionlab/billing-service/internal/infrastructure/database"
	httpServer "github.com/companionlab/billing-service/internal/infrastructure/http"
	"github.com/companionlab/billing-service/internal/infrastructure/messaging"
	stripeinfra "github.com/companionlab/billing-service/internal/infrastructure/stripe"
	"github.com/companionlab/billing-service/internal/usecase"
	"github.com/companionlab/billing-service/pkg/logger"
)

func main() {
	// Load .env if present; real deployments set the environment directly
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	zapLogger, err := logger.NewZapLogger(logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		Output:      cfg.Log.Output,
		FilePath:    cfg.Log.FilePath,
		Development: cfg.Log.Development,
	})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zapLogger.Sync()

	// Initialize database connection
	client, err := database.Connect(&cfg.Database, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := database.Close(ctx, client, zapLogger); err != nil {
			zapLogger.Error("Failed to close database connection", zap.Error(err))
		}
	}()

	db := client.Database(cfg.Database.Name)

	// Ensure collection indexes
	indexCtx, indexCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := database.EnsureIndexes(indexCtx, db, zapLogger); err != nil {
		indexCancel()
		zapLogger.Fatal("Failed to ensure indexes", zap.Error(err))
	}
	indexCancel()

	// Initialize repositories
	repos := database.NewRepositories(db, zapLogger)

	// Optional plan-change publisher
	var notifier usecase.PlanNotifier
	if cfg.Service.Redis.Addr != "" {
		publisher, err := messaging.NewRedisPublisher(
			cfg.Service.Redis.Addr,
			cfg.Service.Redis.Password,
			cfg.Service.Redis.DB,
			cfg.Service.Redis.Channel,
			zapLogger,
		)
		if err != nil {
			zapLogger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer publisher.Close()
		notifier = publisher
	}

	// Wire usecases
	gateway := stripeinfra.NewGateway(zapLogger)
	reconciler := usecase.NewReconciler(repos.Users, repos.InvoicePayments, gateway, notifier, zapLogger)
	userService := usecase.NewUserService(repos.Users, zapLogger)

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize and start the HTTP server
	srv := httpServer.NewServer(cfg, zapLogger, repos, reconciler, userService)

	go func() {
		if err := srv.Start(); err != nil {
			zapLogger.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	zapLogger.Info("Shutting down server...")

	if err := srv.Shutdown(ctx); err != nil {
		zapLogger.Error("Failed to shutdown HTTP server", zap.Error(err))
	}

	zapLogger.Info("Server shut down successfully")
}
