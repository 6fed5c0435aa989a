package database

import (
	"context"
	"fmt"
	"sync"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/companionlab/billing-service/internal/config"
)

var (
	connectOnce sync.Once
	client      *mongo.Client
	connectErr  error
)

// Connect returns the process-wide Mongo client, dialing on first use.
// Initialization runs exactly once; concurrent callers share the same
// in-flight connect.
func Connect(cfg *config.DatabaseConfig, logger *zap.Logger) (*mongo.Client, error) {
	connectOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.EffectiveConnectTimeout())
		defer cancel()

		clientOptions := options.Client().ApplyURI(cfg.URI)
		if cfg.Username != "" {
			clientOptions = clientOptions.SetAuth(options.Credential{
				Username: cfg.Username,
				Password: cfg.Password,
			})
		}

		c, err := mongo.Connect(ctx, clientOptions)
		if err != nil {
			connectErr = fmt.Errorf("failed to connect to MongoDB: %w", err)
			return
		}

		if err := c.Ping(ctx, nil); err != nil {
			connectErr = fmt.Errorf("failed to ping MongoDB: %w", err)
			return
		}

		client = c
		logger.Info("MongoDB connected successfully")
	})

	return client, connectErr
}

// Close disconnects the shared client.
func Close(ctx context.Context, c *mongo.Client, logger *zap.Logger) error {
	if c == nil {
		return nil
	}
	if err := c.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to disconnect from MongoDB: %w", err)
	}
	logger.Info("MongoDB connection closed")
	return nil
}
