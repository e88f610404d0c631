package cache

import (
	"context"
	"time"
)

// Cache holds read-side projections for a short time.
type Cache interface {
	// Get decodes the value stored under key into v. It reports false on a miss.
	Get(ctx context.Context, key string, v any) (bool, error)
	// Set stores v under key for ttl.
	Set(ctx context.Context, key string, v any, ttl time.Duration) error
	// Delete removes keys.
	Delete(ctx context.Context, keys ...string) error
}

var _ Cache = Nop{}

// Nop never hits.
type Nop struct{}

func NewNop() Nop {
	return Nop{}
}

func (Nop) Get(context.Context, string, any) (bool, error) {
	return false, nil
}

func (Nop) Set(context.Context, string, any, time.Duration) error {
	return nil
}

func (Nop) Delete(context.Context, ...string) error {
	return nil
}

func RollupKey(docID string, from, to *time.Time) string {
	key := "rollup:" + docID
	if from != nil {
		key += ":from:" + from.UTC().Format(time.RFC3339)
	}
	if to != nil {
		key += ":to:" + to.UTC().Format(time.RFC3339)
	}

	return key
}
