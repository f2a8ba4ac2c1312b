// Package service contains the fetch/cache coordinator.
//
// GetSnapshot layers a process-local TTL cache over the optional shared
// cache, de-duplicates concurrent requests for the same key, and falls
// through to a paginated upstream fetch on a full miss. The local cache map
// is the single source of truth for what is cached and what is in flight;
// every mutation of it happens under one mutex, which is what makes the
// check-then-begin sequence race-free.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/statscard/internal/apperror"
	"github.com/sakif/statscard/internal/cache"
	"github.com/sakif/statscard/internal/model"
)

const (
	// DefaultTTL applies to both cache layers.
	DefaultTTL = 30 * time.Minute

	// MaxInFlight caps concurrent upstream fetches across all keys.
	// Exceeding it fails fast rather than queuing.
	MaxInFlight = 100
)

// Fetcher fetches a fully aggregated snapshot from the upstream source.
type Fetcher interface {
	FetchSnapshot(ctx context.Context, username string, includeLangs bool) (*model.Snapshot, error)
}

// entry is one slot in the local cache map. Exactly one of the two states is
// meaningful: done != nil means a fetch is in flight and snapshot/err are not
// yet readable; done == nil means snapshot is valid until expiresAt.
// snapshot and err are written before done is closed, so waiters may read
// them without the lock once the channel is closed.
type entry struct {
	snapshot  *model.Snapshot
	err       error
	expiresAt time.Time
	done      chan struct{}
}

// StatsService is the coordinator. Safe for concurrent use.
type StatsService struct {
	fetcher  Fetcher
	shared   cache.Snapshots // nil when no shared cache is configured
	logger   *slog.Logger
	ttl      time.Duration
	hasToken bool
	now      func() time.Time

	mu       sync.Mutex
	entries  map[string]*entry
	inFlight int
}

// NewStatsService wires the coordinator. shared may be nil; that decision is
// made once at startup, not re-probed per call. hasToken tells the service
// whether an upstream token was configured at all — without one every call
// fails before touching the network.
func NewStatsService(fetcher Fetcher, shared cache.Snapshots, hasToken bool, ttl time.Duration, logger *slog.Logger) *StatsService {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &StatsService{
		fetcher:  fetcher,
		shared:   shared,
		logger:   logger,
		ttl:      ttl,
		hasToken: hasToken,
		now:      time.Now,
		entries:  make(map[string]*entry),
	}
}

// cacheKey makes the language-inclusion flag part of the identity: the two
// variants carry different payloads and must never be served interchangeably.
func cacheKey(username string, includeLangs bool) string {
	if includeLangs {
		return username + "/with-langs"
	}
	return username + "/no-langs"
}

// GetSnapshot returns the cached or freshly fetched snapshot for a user.
//
// Lookup order: local cache, shared cache, in-flight fetch for the same key,
// new upstream fetch. Shared-cache failures are logged and treated as misses.
func (s *StatsService) GetSnapshot(ctx context.Context, username string, includeLangs bool) (*model.Snapshot, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, apperror.ValidationFailed("username", "username is required")
	}
	if !s.hasToken {
		return nil, apperror.MissingCredentials()
	}

	key := cacheKey(username, includeLangs)

	if snapshot, pending, ok := s.lookupLocal(key); ok {
		if pending == nil {
			return snapshot, nil
		}
		return s.await(ctx, pending)
	}

	if snapshot := s.lookupShared(ctx, key); snapshot != nil {
		s.storeLocal(key, snapshot)
		return snapshot, nil
	}

	e, begun, err := s.begin(key)
	if err != nil {
		return nil, err
	}
	if begun {
		go s.fetch(key, username, includeLangs, e)
	}
	return s.await(ctx, e)
}

// lookupLocal checks the local map. It returns a snapshot on a fresh hit, the
// in-flight entry when a fetch for the key is already running, and evicts
// lazily-expired entries.
func (s *StatsService) lookupLocal(key string) (*model.Snapshot, *entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return nil, nil, false
	}
	if e.done != nil {
		return nil, e, true
	}
	if s.now().Before(e.expiresAt) {
		return e.snapshot, nil, true
	}
	delete(s.entries, key)
	return nil, nil, false
}

// lookupShared consults the shared layer. Errors degrade to a miss — this
// layer is never allowed to fail a request.
func (s *StatsService) lookupShared(ctx context.Context, key string) *model.Snapshot {
	if s.shared == nil {
		return nil
	}
	snapshot, err := s.shared.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			s.logger.Warn("shared cache read failed",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
		}
		return nil
	}
	s.logger.Debug("shared cache hit", slog.String("key", key))
	return snapshot
}

func (s *StatsService) storeLocal(key string, snapshot *model.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = &entry{
		snapshot:  snapshot,
		expiresAt: s.now().Add(s.ttl),
	}
}

// begin atomically claims the key for a new fetch. If another goroutine got
// there first (or even completed the fetch) between our cache probes, its
// entry is reused instead — this re-check is what guarantees at most one
// upstream fetch per key.
func (s *StatsService) begin(key string) (*entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[key]; ok {
		if e.done != nil || s.now().Before(e.expiresAt) {
			return e, false, nil
		}
		delete(s.entries, key)
	}

	if s.inFlight >= MaxInFlight {
		return nil, false, apperror.TooManyInFlight(MaxInFlight)
	}
	s.inFlight++

	e := &entry{done: make(chan struct{})}
	s.entries[key] = e
	return e, true, nil
}

// await blocks until the entry's fetch completes. The caller's context only
// bounds the wait, not the fetch itself — an abandoned request leaves the
// fetch running so its result still lands in the cache for later callers.
func (s *StatsService) await(ctx context.Context, e *entry) (*model.Snapshot, error) {
	s.mu.Lock()
	done := e.done
	s.mu.Unlock()

	if done == nil {
		// The fetch settled between our lookup and here.
		return e.snapshot, e.err
	}
	select {
	case <-done:
		return e.snapshot, e.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// fetch runs the upstream fetch for one key and settles the entry. It runs
// with a background context: the upstream client carries its own timeouts,
// and callers abandoning their requests must not cancel a fetch that other
// waiters (or the cache) still want.
func (s *StatsService) fetch(key, username string, includeLangs bool, e *entry) {
	fetchID := xid.New().String()
	start := time.Now()
	s.logger.Info("upstream fetch started",
		slog.String("fetch_id", fetchID),
		slog.String("key", key),
	)

	snapshot, err := s.fetcher.FetchSnapshot(context.Background(), username, includeLangs)

	s.mu.Lock()
	s.inFlight--
	if err != nil {
		// Drop the placeholder so the next caller retries cleanly.
		delete(s.entries, key)
		e.err = err
	} else {
		e.snapshot = snapshot
		e.expiresAt = s.now().Add(s.ttl)
	}
	done := e.done
	e.done = nil
	s.mu.Unlock()
	close(done)

	if err != nil {
		s.logger.Error("upstream fetch failed",
			slog.String("fetch_id", fetchID),
			slog.String("key", key),
			slog.Duration("duration", time.Since(start)),
			slog.String("error", err.Error()),
		)
		return
	}

	s.logger.Info("upstream fetch completed",
		slog.String("fetch_id", fetchID),
		slog.String("key", key),
		slog.Duration("duration", time.Since(start)),
	)

	if s.shared != nil {
		if err := s.shared.Set(context.Background(), key, snapshot, s.ttl); err != nil {
			s.logger.Warn("shared cache write failed",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
		}
	}
}
