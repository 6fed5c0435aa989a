// Package messaging publishes plan-change notifications over Redis so
// other parts of the platform can react without polling the store.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/companionlab/billing-service/internal/domain/entity"
)

const defaultChannel = "billing.plan.changed"

// PlanChangedMessage is the wire shape published on the channel.
type PlanChangedMessage struct {
	ID         string      `json:"id"`
	ClerkID    string      `json:"clerk_id"`
	Plan       entity.Plan `json:"plan"`
	OccurredAt time.Time   `json:"occurred_at"`
}

// RedisPublisher implements usecase.PlanNotifier on a Redis channel.
type RedisPublisher struct {
	client  *redis.Client
	channel string
	logger  *zap.Logger
}

func NewRedisPublisher(addr, password string, db int, channel string, logger *zap.Logger) (*RedisPublisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	if channel == "" {
		channel = defaultChannel
	}

	logger.Info("Redis publisher connected", zap.String("channel", channel))

	return &RedisPublisher{
		client:  client,
		channel: channel,
		logger:  logger,
	}, nil
}

func (p *RedisPublisher) NotifyPlanChanged(ctx context.Context, clerkID string, plan entity.Plan) error {
	msg := PlanChangedMessage{
		ID:         uuid.NewString(),
		ClerkID:    clerkID,
		Plan:       plan,
		OccurredAt: time.Now().UTC(),
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal plan change message: %w", err)
	}

	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish plan change: %w", err)
	}

	p.logger.Debug("Plan change published",
		zap.String("clerk_id", clerkID),
		zap.String("message_id", msg.ID))
	return nil
}

func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
