package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/postboard/postboard/backend/go-services/pkg/logger"
)

// Open returns the object store for cfg. An unconfigured endpoint or bucket
// yields an in-memory store for local development. A configured endpoint is
// retried with doubling backoff and never replaced by memory.
func Open(ctx context.Context, cfg *S3Config, attempts int) (ObjectStore, error) {
	if cfg == nil || cfg.Endpoint == "" || cfg.Bucket == "" {
		base := ""
		if cfg != nil {
			base = cfg.PublicBaseURL()
		}
		logger.Warnf("object storage not configured, using in-memory store")
		return NewMemoryStorage(base), nil
	}
	if attempts < 1 {
		attempts = 1
	}
	backoff := time.Second
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		s, err := NewMinIOStorage(ctx, cfg)
		if err == nil {
			return s, nil
		}
		lastErr = err
		logger.Warnf("attempt %d/%d: object storage unavailable: %v", attempt, attempts, err)
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return nil, fmt.Errorf("object storage unavailable after %d attempts: %w", attempts, lastErr)
}
