package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Deduplicator absorbs duplicate recognition events: the same spoken
// transcript arriving twice inside a short window is answered once. Checked
// only at the external intake boundary; correction rounds and synthetic
// transcripts repeat text on purpose and are never deduplicated.
type Deduplicator interface {
	// Seen marks the transcript and reports whether it was already marked
	// inside the window.
	Seen(ctx context.Context, transcript string) (bool, error)
}

type redisDeduplicator struct {
	client *redis.Client
	window time.Duration
	logger *zap.Logger
}

// NewRedisDeduplicator creates a Redis-backed deduplicator. SET NX with a TTL
// gives both the mark and the window in one call.
func NewRedisDeduplicator(client *redis.Client, window time.Duration, logger *zap.Logger) Deduplicator {
	return &redisDeduplicator{
		client: client,
		window: window,
		logger: logger.Named("Dedup"),
	}
}

func (d *redisDeduplicator) Seen(ctx context.Context, transcript string) (bool, error) {
	sum := sha256.Sum256([]byte(transcript))
	key := "transcript_dedup:" + hex.EncodeToString(sum[:])

	set, err := d.client.SetNX(ctx, key, 1, d.window).Result()
	if err != nil {
		// Redis being down must not stall the game; fail open.
		d.logger.Warn("Dedup check failed, allowing transcript through", zap.Error(err))
		return false, err
	}
	if !set {
		dedupHitsTotal.Inc()
		d.logger.Info("Duplicate transcript absorbed by dedup window")
	}
	return !set, nil
}
