package events

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const inboundKeyPrefix = "inbound_seen:"

// RedisDeduper claims ids with SET NX so a redelivered message is dropped
// for the TTL window.
type RedisDeduper struct {
	redis  *redis.Client
	ttl    time.Duration
	tracer trace.Tracer
}

func NewRedisDeduper(client *redis.Client, ttl time.Duration) *RedisDeduper {
	if client == nil {
		panic("events: redis client required")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisDeduper{
		redis:  client,
		ttl:    ttl,
		tracer: otel.Tracer("marco.internal.events.redis_deduper"),
	}
}

func (d *RedisDeduper) Claim(ctx context.Context, provider, eventID string) (bool, error) {
	ctx, span := d.tracer.Start(ctx, "events.redis_deduper.claim")
	defer span.End()

	ok, err := d.redis.SetNX(ctx, dedupeKey(provider, eventID), time.Now().UTC().Format(time.RFC3339), d.ttl).Result()
	if err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("events: claim %s/%s: %w", provider, eventID, err)
	}
	return ok, nil
}

func (d *RedisDeduper) Release(ctx context.Context, provider, eventID string) error {
	if err := d.redis.Del(ctx, dedupeKey(provider, eventID)).Err(); err != nil {
		return fmt.Errorf("events: release %s/%s: %w", provider, eventID, err)
	}
	return nil
}

func dedupeKey(provider, eventID string) string {
	return inboundKeyPrefix + provider + ":" + eventID
}
