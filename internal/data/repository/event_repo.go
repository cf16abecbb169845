package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// WebhookEventRepository remembers provider event ids that were already handled.
type WebhookEventRepository interface {
	// MarkProcessed records eventID and reports whether this is its first delivery.
	MarkProcessed(ctx context.Context, eventID string) (bool, error)
	// Forget drops eventID so a redelivery is handled again.
	Forget(ctx context.Context, eventID string) error
}

type redisEventRepository struct {
	client *redis.Client
	ttl    time.Duration
	log    *zap.Logger
}

// NewWebhookEventRepository returns a Redis-backed store, or a pass-through
// store that treats every delivery as new when client is nil.
func NewWebhookEventRepository(client *redis.Client, ttl time.Duration, log *zap.Logger) WebhookEventRepository {
	if client == nil {
		return noopEventRepository{}
	}
	return &redisEventRepository{
		client: client,
		ttl:    ttl,
		log:    log.With(zap.String("repository", "webhook_event")),
	}
}

func eventKey(eventID string) string {
	return "paymongo:event:" + eventID
}

func (r *redisEventRepository) MarkProcessed(ctx context.Context, eventID string) (bool, error) {
	first, err := r.client.SetNX(ctx, eventKey(eventID), time.Now().UTC().Format(time.RFC3339), r.ttl).Result()
	if err != nil {
		r.log.Error("Failed to record webhook event",
			zap.Error(err),
			zap.String("event_id", eventID),
		)
		return false, fmt.Errorf("record webhook event %s: %w", eventID, err)
	}
	return first, nil
}

func (r *redisEventRepository) Forget(ctx context.Context, eventID string) error {
	if err := r.client.Del(ctx, eventKey(eventID)).Err(); err != nil {
		r.log.Error("Failed to forget webhook event",
			zap.Error(err),
			zap.String("event_id", eventID),
		)
		return fmt.Errorf("forget webhook event %s: %w", eventID, err)
	}
	return nil
}

type noopEventRepository struct{}

func (noopEventRepository) MarkProcessed(context.Context, string) (bool, error) { return true, nil }

func (noopEventRepository) Forget(context.Context, string) error { return nil }
