package monitor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/AgamJK/sentinel-final/internal/adapters/store"
	"github.com/AgamJK/sentinel-final/internal/core"
)

func newTestScheduler(t *testing.T, source core.MailSource) (*Scheduler, *store.MemoryStore) {
	t.Helper()
	mem := store.NewMemoryStore(zap.NewNop())
	gateway := core.NewClassifierGateway(stubClassifier{}, zap.NewNop(), "stub", time.Second)
	ingest := core.NewIngestionService(gateway, mem, nil, zap.NewNop())
	s := NewScheduler(mem, source, mem, ingest, zap.NewNop(), Options{
		PollInterval:      time.Hour,
		ReconcileInterval: time.Hour,
		MaxBackoff:        time.Hour,
		FetchTimeout:      time.Second,
		OpTimeout:         time.Second,
	})
	return s, mem
}

func putConfig(t *testing.T, mem *store.MemoryStore, userID *string, email string, active bool) {
	t.Helper()
	_, err := mem.PutConfig(context.Background(), &core.AccountConfig{
		UserID: userID,
		Email:  email,
		Active: active,
	})
	require.NoError(t, err)
}

func retireAll(t *testing.T, s *Scheduler, mem *store.MemoryStore) {
	t.Helper()
	ctx := context.Background()
	configs, err := mem.ListActiveConfigs(ctx)
	require.NoError(t, err)
	for _, cfg := range configs {
		cfg.Active = false
		_, err := mem.PutConfig(ctx, cfg)
		require.NoError(t, err)
	}
	require.NoError(t, s.Reconcile(ctx))
}

// blockingSource parks every Fetch until release is closed and tracks
// the peak number of concurrent calls.
type blockingSource struct {
	mu       sync.Mutex
	inFlight int
	maxSeen  int
	batch    []*core.InboundMessage
	release  chan struct{}
	started  chan struct{}
}

func newBlockingSource(batch []*core.InboundMessage) *blockingSource {
	return &blockingSource{
		batch:   batch,
		release: make(chan struct{}),
		started: make(chan struct{}, 8),
	}
}

func (s *blockingSource) Fetch(ctx context.Context, account *core.AccountConfig, cursor string) ([]*core.InboundMessage, error) {
	s.mu.Lock()
	s.inFlight++
	if s.inFlight > s.maxSeen {
		s.maxSeen = s.inFlight
	}
	s.mu.Unlock()

	s.started <- struct{}{}
	<-s.release

	s.mu.Lock()
	batch := s.batch
	s.batch = nil
	s.inFlight--
	s.mu.Unlock()
	return batch, nil
}

func (s *blockingSource) peakConcurrency() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxSeen
}

func TestReconcileSpawnsWorkersForActiveConfigs(t *testing.T) {
	s, mem := newTestScheduler(t, &scriptedSource{})
	defer retireAll(t, s, mem)
	ctx := context.Background()

	alice := "alice"
	putConfig(t, mem, &alice, "alice@acme.test", true)
	putConfig(t, mem, nil, "global@acme.test", true)
	putConfig(t, mem, nil, "inactive@acme.test", false)

	require.NoError(t, s.Reconcile(ctx))

	running := s.RunningAccounts()
	assert.ElementsMatch(t, []string{"alice/alice@acme.test", "/global@acme.test"}, running)
}

func TestReconcileRetiresDeactivatedConfig(t *testing.T) {
	s, mem := newTestScheduler(t, &scriptedSource{})
	ctx := context.Background()

	putConfig(t, mem, nil, "support@acme.test", true)
	require.NoError(t, s.Reconcile(ctx))
	require.Len(t, s.RunningAccounts(), 1)

	putConfig(t, mem, nil, "support@acme.test", false)
	require.NoError(t, s.Reconcile(ctx))
	assert.Empty(t, s.RunningAccounts())
}

func TestReconcileRespawnsOnConfigChange(t *testing.T) {
	s, mem := newTestScheduler(t, &scriptedSource{})
	defer retireAll(t, s, mem)
	ctx := context.Background()

	putConfig(t, mem, nil, "support@acme.test", true)
	require.NoError(t, s.Reconcile(ctx))

	s.mu.Lock()
	before := s.workers["/support@acme.test"]
	s.mu.Unlock()
	require.NotNil(t, before)

	// Re-saving the config bumps UpdatedAt, which replaces the worker.
	time.Sleep(10 * time.Millisecond)
	putConfig(t, mem, nil, "support@acme.test", true)
	require.NoError(t, s.Reconcile(ctx))

	s.mu.Lock()
	after := s.workers["/support@acme.test"]
	s.mu.Unlock()
	require.NotNil(t, after)
	assert.NotSame(t, before, after)
}

func TestRespawnWaitsForInFlightPoll(t *testing.T) {
	source := newBlockingSource(nil)
	s, mem := newTestScheduler(t, source)
	defer retireAll(t, s, mem)
	ctx := context.Background()

	putConfig(t, mem, nil, "support@acme.test", true)
	require.NoError(t, s.Reconcile(ctx))

	// The spawned worker's immediate first poll is now parked in Fetch.
	<-source.started

	// Re-save the config while that poll is in flight and reconcile.
	time.Sleep(10 * time.Millisecond)
	putConfig(t, mem, nil, "support@acme.test", true)
	require.NoError(t, s.Reconcile(ctx))

	// The replacement must not poll while the retired worker is still
	// in flight.
	select {
	case <-source.started:
		t.Fatal("replacement polled while the retired worker was in flight")
	case <-time.After(100 * time.Millisecond):
	}

	close(source.release)

	// Once the retired worker drains, the replacement's first poll runs.
	select {
	case <-source.started:
	case <-time.After(2 * time.Second):
		t.Fatal("replacement never polled after the retired worker drained")
	}

	assert.Equal(t, 1, source.peakConcurrency(),
		"polls on one account stay sequential across a restart")
}

func TestDeactivateMidPollCommitsInFlightBatch(t *testing.T) {
	source := newBlockingSource([]*core.InboundMessage{inbound("m-1", "please help")})
	s, mem := newTestScheduler(t, source)
	ctx := context.Background()

	putConfig(t, mem, nil, "support@acme.test", true)
	require.NoError(t, s.Reconcile(ctx))

	// First poll is in flight; deactivate the account under it.
	<-source.started
	putConfig(t, mem, nil, "support@acme.test", false)
	require.NoError(t, s.Reconcile(ctx))
	require.Empty(t, s.RunningAccounts())

	// The retired worker's in-flight poll still completes and commits
	// both the batch and the cursor before the worker exits.
	close(source.release)

	deadline := time.Now().Add(2 * time.Second)
	for {
		cursor, err := mem.GetCursor(ctx, "/support@acme.test")
		require.NoError(t, err)
		if cursor == "m-1" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("in-flight poll did not commit after deactivation")
		}
		time.Sleep(10 * time.Millisecond)
	}

	msgs, err := mem.ListMessages(ctx, core.MessageFilter{})
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestPollNowIngestsOnDemand(t *testing.T) {
	source := &scriptedSource{batches: [][]*core.InboundMessage{
		{inbound("m-1", "hello there")},
	}}
	s, mem := newTestScheduler(t, source)
	defer retireAll(t, s, mem)
	ctx := context.Background()

	putConfig(t, mem, nil, "support@acme.test", true)
	require.NoError(t, s.Reconcile(ctx))

	// The spawned worker polls immediately; wait for PollNow to be
	// serviceable and drain whatever the first poll consumed.
	require.NoError(t, s.PollNow(ctx, nil, "support@acme.test"))
	require.NoError(t, s.PollNow(ctx, nil, "support@acme.test"))

	msgs, err := mem.ListMessages(ctx, core.MessageFilter{})
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestPollNowUnknownAccount(t *testing.T) {
	s, _ := newTestScheduler(t, &scriptedSource{})

	err := s.PollNow(context.Background(), nil, "nobody@acme.test")
	assert.ErrorIs(t, err, core.ErrNotConfigured)
}

func TestStartStop(t *testing.T) {
	s, mem := newTestScheduler(t, &scriptedSource{})

	putConfig(t, mem, nil, "support@acme.test", true)

	require.NoError(t, s.Start())

	// The startup reconciliation runs asynchronously.
	deadline := time.Now().Add(2 * time.Second)
	for len(s.RunningAccounts()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("worker was not spawned after Start")
		}
		time.Sleep(10 * time.Millisecond)
	}

	require.NoError(t, s.Stop())
	assert.Empty(t, s.RunningAccounts())
}
