// Package cache provides the optional shared snapshot cache.
//
// The shared layer sits behind the process-local cache owned by the service:
// a hit here saves an upstream fetch on a cold process, and entries written by
// one instance are visible to all others. Concurrent writers may race; the
// last write wins, which is fine because snapshots are immutable and any
// recent one is a valid answer.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bradfitz/gomemcache/memcache"

	"github.com/sakif/statscard/internal/model"
)

// ErrMiss is returned by Get when the key is absent or expired.
var ErrMiss = errors.New("cache miss")

// Snapshots is a key-value store of snapshots with per-key expiry.
type Snapshots interface {
	Get(ctx context.Context, key string) (*model.Snapshot, error)
	Set(ctx context.Context, key string, snapshot *model.Snapshot, ttl time.Duration) error
}

// Memcached implements Snapshots on a memcached cluster. Values are stored as
// JSON; the key is prefixed so a shared cluster can serve other applications.
type Memcached struct {
	client *memcache.Client
}

const keyPrefix = "statscard/"

// NewMemcached connects to the given address list (comma handling is done by
// the memcache client itself).
func NewMemcached(addr string) *Memcached {
	return &Memcached{client: memcache.New(addr)}
}

func (m *Memcached) Get(_ context.Context, key string) (*model.Snapshot, error) {
	item, err := m.client.Get(keyPrefix + key)
	if errors.Is(err, memcache.ErrCacheMiss) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("memcached get: %w", err)
	}

	var snapshot model.Snapshot
	if err := json.Unmarshal(item.Value, &snapshot); err != nil {
		// A corrupt value is indistinguishable from a miss for callers.
		return nil, fmt.Errorf("memcached decode: %w", err)
	}
	return &snapshot, nil
}

func (m *Memcached) Set(_ context.Context, key string, snapshot *model.Snapshot, ttl time.Duration) error {
	value, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("memcached encode: %w", err)
	}

	err = m.client.Set(&memcache.Item{
		Key:        keyPrefix + key,
		Value:      value,
		Expiration: int32(ttl.Seconds()),
	})
	if err != nil {
		return fmt.Errorf("memcached set: %w", err)
	}
	return nil
}
