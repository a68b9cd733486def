package monitor

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/AgamJK/sentinel-final/internal/core"
)

// Options bundles the scheduler cadence settings.
type Options struct {
	PollInterval      time.Duration
	ReconcileInterval time.Duration
	MaxBackoff        time.Duration
	FetchTimeout      time.Duration
	OpTimeout         time.Duration
}

// handle tracks one running worker.
type handle struct {
	worker    *Worker
	cancel    context.CancelFunc
	done      chan struct{}
	updatedAt time.Time
}

// Scheduler reconciles the set of running account workers against the
// active configs in the config store. Each active account gets exactly
// one worker; configs deactivated or changed between ticks take effect
// by the next reconciliation without a restart.
type Scheduler struct {
	configs core.ConfigStore
	source  core.MailSource
	cursors core.CursorStore
	ingest  *core.IngestionService
	logger  *zap.Logger
	opts    Options

	mu      sync.Mutex
	workers map[string]*handle

	cancel context.CancelFunc
	done   chan struct{}
}

// NewScheduler creates a scheduler; Start begins reconciling.
func NewScheduler(
	configs core.ConfigStore,
	source core.MailSource,
	cursors core.CursorStore,
	ingest *core.IngestionService,
	logger *zap.Logger,
	opts Options,
) *Scheduler {
	return &Scheduler{
		configs: configs,
		source:  source,
		cursors: cursors,
		ingest:  ingest,
		logger:  logger,
		opts:    opts,
		workers: make(map[string]*handle),
	}
}

// Start launches the reconciliation loop.
func (s *Scheduler) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.loop(ctx)
	s.logger.Info("Monitoring scheduler started",
		zap.Duration("reconcile_interval", s.opts.ReconcileInterval),
		zap.Duration("poll_interval", s.opts.PollInterval))
	return nil
}

// Stop cancels all workers and waits for them to retire. In-flight
// polls finish and commit before their workers exit.
func (s *Scheduler) Stop() error {
	if s.cancel == nil {
		return nil
	}
	s.cancel()
	<-s.done

	s.mu.Lock()
	handles := make([]*handle, 0, len(s.workers))
	for key, h := range s.workers {
		h.cancel()
		handles = append(handles, h)
		delete(s.workers, key)
	}
	s.mu.Unlock()

	for _, h := range handles {
		<-h.done
	}
	s.logger.Info("Monitoring scheduler stopped")
	return nil
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.opts.ReconcileInterval)
	defer ticker.Stop()

	if err := s.Reconcile(ctx); err != nil {
		s.logger.Error("Initial reconciliation failed", zap.Error(err))
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Reconcile(ctx); err != nil {
				s.logger.Error("Reconciliation failed", zap.Error(err))
			}
		}
	}
}

// Reconcile diffs desired configs against running workers: spawns
// workers for newly active accounts, retires workers whose configs went
// inactive, and restarts workers whose configs changed.
func (s *Scheduler) Reconcile(ctx context.Context) error {
	active, err := s.configs.ListActiveConfigs(ctx)
	if err != nil {
		return err
	}

	desired := make(map[string]*core.AccountConfig, len(active))
	for _, cfg := range active {
		desired[cfg.Key()] = cfg
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	retired := make(map[string]chan struct{})
	for key, h := range s.workers {
		cfg, ok := desired[key]
		if ok && cfg.UpdatedAt.Equal(h.updatedAt) {
			continue
		}
		// Deactivated or changed; let any in-flight poll drain.
		h.cancel()
		delete(s.workers, key)
		if !ok {
			s.logger.Info("Retiring worker for inactive account",
				zap.String("account", key))
			continue
		}
		retired[key] = h.done
	}

	for key, cfg := range desired {
		if _, ok := s.workers[key]; ok {
			continue
		}
		s.spawnLocked(cfg, retired[key])
		s.logger.Info("Spawned worker for account", zap.String("account", key))
	}

	return nil
}

// spawnLocked registers and starts a worker. A non-nil predecessor
// channel gates the start: the replacement does not poll until the
// retired worker for the same account has drained, keeping polls on
// one account strictly sequential across a config change.
func (s *Scheduler) spawnLocked(cfg *core.AccountConfig, predecessor chan struct{}) {
	w := NewWorker(
		cfg,
		s.source,
		s.cursors,
		s.ingest,
		s.logger,
		s.opts.PollInterval,
		s.opts.MaxBackoff,
		s.opts.FetchTimeout,
		s.opts.OpTimeout,
	)

	wctx, cancel := context.WithCancel(context.Background())
	h := &handle{
		worker:    w,
		cancel:    cancel,
		done:      make(chan struct{}),
		updatedAt: cfg.UpdatedAt,
	}
	s.workers[cfg.Key()] = h

	go func() {
		defer close(h.done)
		if predecessor != nil {
			select {
			case <-predecessor:
			case <-wctx.Done():
				return
			}
		}
		w.Run(wctx)
	}()
}

// PollNow triggers an immediate poll for one account, bypassing the
// cadence, and waits for the poll to finish. Returns ErrNotConfigured
// when no worker is running for the account.
func (s *Scheduler) PollNow(ctx context.Context, userID *string, email string) error {
	key := core.ScopeKey(userID) + "/" + email

	s.mu.Lock()
	h, ok := s.workers[key]
	s.mu.Unlock()
	if !ok {
		return core.ErrNotConfigured
	}

	req := pollRequest{reply: make(chan error, 1)}
	select {
	case h.worker.pollNow <- req:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-req.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PollAll triggers an immediate poll on every running worker and
// returns once all have been requested; individual failures stay
// isolated to their accounts.
func (s *Scheduler) PollAll(ctx context.Context) {
	s.mu.Lock()
	handles := make([]*handle, 0, len(s.workers))
	for _, h := range s.workers {
		handles = append(handles, h)
	}
	s.mu.Unlock()

	for _, h := range handles {
		req := pollRequest{reply: make(chan error, 1)}
		select {
		case h.worker.pollNow <- req:
			<-req.reply
		case <-ctx.Done():
			return
		}
	}
}

// RunningAccounts lists the account keys with a live worker.
func (s *Scheduler) RunningAccounts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.workers))
	for key := range s.workers {
		keys = append(keys, key)
	}
	return keys
}
