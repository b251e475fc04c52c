// Package kv defines the storage abstraction the watcher builds every other
// component on top of: Jobs, Status blobs, the Seen dedup guard and the
// optional deposit Ledger all live behind this interface. A single
// implementation (Redis) backs production; an in-memory implementation
// backs tests.
package kv

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// TransientError wraps a network or 5xx-class failure talking to the
// backing store. Callers (the Scheduler in particular) treat it as a
// signal to back off rather than as a reason to mutate a Job.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("kv: transient error during %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// NotFoundError marks a missing key for operations where absence is
// distinguishable from an empty value.
type NotFoundError struct {
	Key string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("kv: key not found: %s", e.Key) }

// Store is the operation set every backend must provide, per the KV
// Abstraction component: scan/hash/string primitives plus a JSON
// convenience layer used by the Status and Ledger records.
type Store interface {
	// Scan returns keys matching pattern in batches of up to batchSize.
	// cursor starts at "0"; the caller stops paging once the returned
	// cursor is "0" again. No ordering guarantee is made across calls.
	Scan(ctx context.Context, pattern string, batchSize int64, cursor string) (nextCursor string, keys []string, err error)

	// HGetAll returns an empty, non-nil map if the key is absent.
	HGetAll(ctx context.Context, key string) (map[string]string, error)

	// HSet upserts the given fields without disturbing any other field
	// already present on the hash.
	HSet(ctx context.Context, key string, fields map[string]string) error

	Expire(ctx context.Context, key string, ttl time.Duration) error

	// Get returns ("", false, nil) when the key is absent.
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	// Set writes value, applying ttl when positive; ttl <= 0 means no
	// expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	Exists(ctx context.Context, key string) (bool, error)

	Del(ctx context.Context, key string) error

	// GetJSON unmarshals the stored value into out. A missing key
	// returns (false, nil). A malformed value is treated as absent
	// (fail-open) per the Status read contract: it returns (false, nil)
	// rather than propagating a decode error.
	GetJSON(ctx context.Context, key string, out interface{}) (bool, error)

	SetJSON(ctx context.Context, key string, v interface{}, ttl time.Duration) error
}

// EncodeJSON is a small helper shared by the Store implementations so
// SetJSON has one place to change wire formatting.
func EncodeJSON(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
