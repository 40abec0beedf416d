// Package testing provides mock implementations and helpers for use in
// tests. This package should only be imported by test files (*_test.go).
package testing

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/reelvault/reelvault/internal/catalog"
	"github.com/reelvault/reelvault/internal/debrid"
	"github.com/reelvault/reelvault/internal/events"
	"github.com/reelvault/reelvault/internal/store"
)

// NewTestStore creates an in-memory store for testing.
// The store is automatically closed when the test completes.
func NewTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

// MockDebrid is a mock implementation of debrid.Client for testing.
type MockDebrid struct {
	// OnUnlock overrides the default behavior.
	OnUnlock func(ctx context.Context, sourceURL string) (*debrid.UnlockResult, error)

	// Result and Err are returned when OnUnlock is nil.
	Result *debrid.UnlockResult
	Err    error

	mu    sync.Mutex
	calls []string
}

// Unlock implements debrid.Client.
func (m *MockDebrid) Unlock(ctx context.Context, sourceURL string) (*debrid.UnlockResult, error) {
	m.mu.Lock()
	m.calls = append(m.calls, sourceURL)
	m.mu.Unlock()

	if m.OnUnlock != nil {
		return m.OnUnlock(ctx, sourceURL)
	}
	return m.Result, m.Err
}

// Calls returns the source URLs Unlock was called with.
func (m *MockDebrid) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// MockMatcher is a mock implementation of catalog.Matcher for testing.
type MockMatcher struct {
	// OnMatch overrides the default behavior.
	OnMatch func(ctx context.Context, fileName string) *catalog.Metadata

	// Result is returned when OnMatch is nil.
	Result *catalog.Metadata

	mu    sync.Mutex
	calls []string
}

// Match implements catalog.Matcher.
func (m *MockMatcher) Match(ctx context.Context, fileName string) *catalog.Metadata {
	m.mu.Lock()
	m.calls = append(m.calls, fileName)
	m.mu.Unlock()

	if m.OnMatch != nil {
		return m.OnMatch(ctx, fileName)
	}
	return m.Result
}

// Calls returns the file names Match was called with.
func (m *MockMatcher) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// CollectEvents subscribes to the bus and returns a function that drains
// every event received so far. The subscription is removed when the test
// completes.
func CollectEvents(t *testing.T, bus *events.Bus, types ...events.Type) func() []events.Event {
	t.Helper()

	sub := bus.Subscribe(types...)
	t.Cleanup(func() { bus.Unsubscribe(sub) })

	return func() []events.Event {
		var collected []events.Event
		for {
			select {
			case ev, ok := <-sub:
				if !ok {
					return collected
				}
				collected = append(collected, ev)
			default:
				return collected
			}
		}
	}
}

// WaitForStatus polls the store until the job reaches the wanted status or
// the timeout elapses.
func WaitForStatus(t *testing.T, st *store.Store, jobID string, want store.Status, timeout time.Duration) *store.Job {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		job, err := st.GetJob(context.Background(), jobID)
		if err == nil && job.Status == want {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}

	t.Fatalf("job %s did not reach status %s within %s", jobID, want, timeout)
	return nil
}
