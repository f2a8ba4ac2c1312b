package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sakif/statscard/internal/apperror"
	"github.com/sakif/statscard/internal/cache"
	"github.com/sakif/statscard/internal/model"
)

// fakeFetcher counts calls and can block until released, which lets tests
// hold a fetch in flight while more callers pile up on the same key.
type fakeFetcher struct {
	calls    atomic.Int64
	snapshot *model.Snapshot
	err      error
	block    chan struct{} // if non-nil, FetchSnapshot waits on it
}

func (f *fakeFetcher) FetchSnapshot(_ context.Context, username string, _ bool) (*model.Snapshot, error) {
	f.calls.Add(1)
	if f.block != nil {
		<-f.block
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.snapshot != nil {
		return f.snapshot, nil
	}
	return &model.Snapshot{
		Profile: model.Profile{Username: username},
		Stats:   model.Stats{Stars: 7},
	}, nil
}

// fakeShared is an in-memory stand-in for memcached.
type fakeShared struct {
	mu     sync.Mutex
	data   map[string]*model.Snapshot
	getErr error
	setErr error
	gets   int
	sets   int
}

func newFakeShared() *fakeShared {
	return &fakeShared{data: make(map[string]*model.Snapshot)}
}

func (f *fakeShared) Get(_ context.Context, key string) (*model.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.getErr != nil {
		return nil, f.getErr
	}
	snapshot, ok := f.data[key]
	if !ok {
		return nil, cache.ErrMiss
	}
	return snapshot, nil
}

func (f *fakeShared) Set(_ context.Context, key string, snapshot *model.Snapshot, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sets++
	if f.setErr != nil {
		return f.setErr
	}
	f.data[key] = snapshot
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestService(t *testing.T, fetcher Fetcher, shared cache.Snapshots) *StatsService {
	t.Helper()
	return NewStatsService(fetcher, shared, true, DefaultTTL, testLogger())
}

func TestGetSnapshotMissingCredentials(t *testing.T) {
	fetcher := &fakeFetcher{}
	svc := NewStatsService(fetcher, nil, false, DefaultTTL, testLogger())

	_, err := svc.GetSnapshot(context.Background(), "octocat", true)
	if !errors.Is(err, apperror.ErrMissingCredentials) {
		t.Fatalf("err = %v, want ErrMissingCredentials", err)
	}
	if fetcher.calls.Load() != 0 {
		t.Error("fetcher must not be called without credentials")
	}
}

func TestGetSnapshotEmptyUsername(t *testing.T) {
	svc := newTestService(t, &fakeFetcher{}, nil)

	_, err := svc.GetSnapshot(context.Background(), "   ", true)
	if !errors.Is(err, apperror.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestGetSnapshotCachesLocally(t *testing.T) {
	fetcher := &fakeFetcher{}
	svc := newTestService(t, fetcher, nil)

	first, err := svc.GetSnapshot(context.Background(), "octocat", true)
	if err != nil {
		t.Fatalf("first call: %v", err)
	}
	second, err := svc.GetSnapshot(context.Background(), "octocat", true)
	if err != nil {
		t.Fatalf("second call: %v", err)
	}

	if fetcher.calls.Load() != 1 {
		t.Errorf("fetcher called %d times, want 1", fetcher.calls.Load())
	}
	if first != second {
		t.Error("cached call should return the identical snapshot")
	}
}

func TestGetSnapshotLanguageFlagIsPartOfKey(t *testing.T) {
	fetcher := &fakeFetcher{}
	svc := newTestService(t, fetcher, nil)

	if _, err := svc.GetSnapshot(context.Background(), "octocat", true); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.GetSnapshot(context.Background(), "octocat", false); err != nil {
		t.Fatal(err)
	}

	if fetcher.calls.Load() != 2 {
		t.Errorf("fetcher called %d times, want 2 (one per variant)", fetcher.calls.Load())
	}
}

func TestGetSnapshotTTLExpiry(t *testing.T) {
	fetcher := &fakeFetcher{}
	svc := newTestService(t, fetcher, nil)

	current := time.Now()
	svc.now = func() time.Time { return current }

	if _, err := svc.GetSnapshot(context.Background(), "octocat", true); err != nil {
		t.Fatal(err)
	}

	// Just before expiry: still served from cache.
	current = current.Add(DefaultTTL - time.Second)
	if _, err := svc.GetSnapshot(context.Background(), "octocat", true); err != nil {
		t.Fatal(err)
	}
	if fetcher.calls.Load() != 1 {
		t.Fatalf("fetcher called %d times before expiry, want 1", fetcher.calls.Load())
	}

	// Past expiry: the stale entry is evicted on read and refetched.
	current = current.Add(2 * time.Second)
	if _, err := svc.GetSnapshot(context.Background(), "octocat", true); err != nil {
		t.Fatal(err)
	}
	if fetcher.calls.Load() != 2 {
		t.Errorf("fetcher called %d times after expiry, want 2", fetcher.calls.Load())
	}
}

func TestGetSnapshotConcurrentDeduplication(t *testing.T) {
	fetcher := &fakeFetcher{block: make(chan struct{})}
	svc := newTestService(t, fetcher, nil)

	const callers = 25

	var wg sync.WaitGroup
	results := make([]*model.Snapshot, callers)
	errs := make([]error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.GetSnapshot(context.Background(), "octocat", true)
		}(i)
	}

	// Let the callers reach the wait point, then release the fetch.
	time.Sleep(50 * time.Millisecond)
	close(fetcher.block)
	wg.Wait()

	if got := fetcher.calls.Load(); got != 1 {
		t.Fatalf("fetcher called %d times, want exactly 1", got)
	}
	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if results[i] != results[0] {
			t.Fatalf("caller %d received a different snapshot", i)
		}
	}
}

func TestGetSnapshotFailureClearsPlaceholder(t *testing.T) {
	fetcher := &fakeFetcher{err: apperror.RateLimited("slow down")}
	svc := newTestService(t, fetcher, nil)

	_, err := svc.GetSnapshot(context.Background(), "octocat", true)
	if !errors.Is(err, apperror.ErrRateLimited) {
		t.Fatalf("err = %v, want ErrRateLimited", err)
	}

	// The key must be immediately retryable, not stuck on a broken slot.
	fetcher.err = nil
	if _, err := svc.GetSnapshot(context.Background(), "octocat", true); err != nil {
		t.Fatalf("retry after failure: %v", err)
	}
	if fetcher.calls.Load() != 2 {
		t.Errorf("fetcher called %d times, want 2", fetcher.calls.Load())
	}
}

func TestGetSnapshotConcurrentCallersShareError(t *testing.T) {
	fetcher := &fakeFetcher{
		err:   apperror.AuthFailed("bad token"),
		block: make(chan struct{}),
	}
	svc := newTestService(t, fetcher, nil)

	const callers = 10

	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.GetSnapshot(context.Background(), "octocat", true)
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(fetcher.block)
	wg.Wait()

	if got := fetcher.calls.Load(); got != 1 {
		t.Fatalf("fetcher called %d times, want exactly 1", got)
	}
	for i, err := range errs {
		if !errors.Is(err, apperror.ErrAuthFailed) {
			t.Errorf("caller %d: err = %v, want ErrAuthFailed", i, err)
		}
	}
}

func TestGetSnapshotInFlightCeiling(t *testing.T) {
	fetcher := &fakeFetcher{}
	svc := newTestService(t, fetcher, nil)

	svc.mu.Lock()
	svc.inFlight = MaxInFlight
	svc.mu.Unlock()

	_, err := svc.GetSnapshot(context.Background(), "octocat", true)
	if !errors.Is(err, apperror.ErrTooManyInFlight) {
		t.Fatalf("err = %v, want ErrTooManyInFlight", err)
	}
	if fetcher.calls.Load() != 0 {
		t.Error("fetcher must not be called above the ceiling")
	}
}

func TestGetSnapshotSharedCacheHit(t *testing.T) {
	fetcher := &fakeFetcher{}
	shared := newFakeShared()
	shared.data["octocat/with-langs"] = &model.Snapshot{
		Profile: model.Profile{Username: "octocat"},
		Stats:   model.Stats{Stars: 99},
	}
	svc := newTestService(t, fetcher, shared)

	snapshot, err := svc.GetSnapshot(context.Background(), "octocat", true)
	if err != nil {
		t.Fatal(err)
	}
	if snapshot.Stats.Stars != 99 {
		t.Errorf("Stars = %d, want 99 (from shared cache)", snapshot.Stats.Stars)
	}
	if fetcher.calls.Load() != 0 {
		t.Error("shared hit must not reach upstream")
	}

	// The hit must have populated the local layer too.
	if _, err := svc.GetSnapshot(context.Background(), "octocat", true); err != nil {
		t.Fatal(err)
	}
	shared.mu.Lock()
	gets := shared.gets
	shared.mu.Unlock()
	if gets != 1 {
		t.Errorf("shared cache consulted %d times, want 1 (second call is local)", gets)
	}
}

func TestGetSnapshotSharedCacheErrorsAreSwallowed(t *testing.T) {
	fetcher := &fakeFetcher{}
	shared := newFakeShared()
	shared.getErr = errors.New("memcached is down")
	shared.setErr = errors.New("memcached is down")
	svc := newTestService(t, fetcher, shared)

	if _, err := svc.GetSnapshot(context.Background(), "octocat", true); err != nil {
		t.Fatalf("shared cache failure must not surface: %v", err)
	}
	if fetcher.calls.Load() != 1 {
		t.Errorf("fetcher called %d times, want 1", fetcher.calls.Load())
	}
}

func TestGetSnapshotWritesSharedCacheOnSuccess(t *testing.T) {
	fetcher := &fakeFetcher{}
	shared := newFakeShared()
	svc := newTestService(t, fetcher, shared)

	if _, err := svc.GetSnapshot(context.Background(), "octocat", true); err != nil {
		t.Fatal(err)
	}

	// The shared write happens in the fetch goroutine after callers are
	// released; give it a moment.
	deadline := time.Now().Add(time.Second)
	for {
		shared.mu.Lock()
		_, ok := shared.data["octocat/with-langs"]
		shared.mu.Unlock()
		if ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("snapshot never written to the shared cache")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestGetSnapshotAbandonedCallerDoesNotCancelFetch(t *testing.T) {
	fetcher := &fakeFetcher{block: make(chan struct{})}
	svc := newTestService(t, fetcher, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := svc.GetSnapshot(ctx, "octocat", true)
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("abandoned caller: err = %v, want context.Canceled", err)
	}

	// The fetch keeps running and its result still lands in the cache.
	close(fetcher.block)
	if _, err := svc.GetSnapshot(context.Background(), "octocat", true); err != nil {
		t.Fatal(err)
	}
	if got := fetcher.calls.Load(); got != 1 {
		t.Errorf("fetcher called %d times, want 1 (cache populated by abandoned fetch)", got)
	}
}
