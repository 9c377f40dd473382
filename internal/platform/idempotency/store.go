// Package idempotency replays the stored response of a completed request
// that is retried with the same Idempotency-Key header.
package idempotency

import (
	"context"
	"time"
)

// Record is a captured response. Completed is false while the first request
// carrying the key is still running.
type Record struct {
	Status      int               `json:"status"`
	ContentType string            `json:"content_type"`
	Headers     map[string]string `json:"headers,omitempty"`
	Body        []byte            `json:"body"`
	Completed   bool              `json:"completed"`
}

type Store interface {
	// Reserve claims key for ttl. When the key is already held it returns
	// the existing record and reserved=false.
	Reserve(ctx context.Context, key string, ttl time.Duration) (existing *Record, reserved bool, err error)
	Complete(ctx context.Context, key string, rec Record, ttl time.Duration) error
	Release(ctx context.Context, key string) error
}
