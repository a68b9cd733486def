package monitor

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/AgamJK/sentinel-final/internal/core"
	"github.com/AgamJK/sentinel-final/internal/metrics"
)

// pollRequest asks a worker for an immediate out-of-cadence poll.
type pollRequest struct {
	reply chan error
}

// Worker owns the ingestion of exactly one account. Polls within an
// account are strictly sequential; the cursor is written by this worker
// only. Failures are isolated here and surface to the scheduler only as
// a longer delay before the next poll.
type Worker struct {
	account *core.AccountConfig
	source  core.MailSource
	cursors core.CursorStore
	ingest  *core.IngestionService
	logger  *zap.Logger

	pollInterval time.Duration
	fetchTimeout time.Duration
	opTimeout    time.Duration

	backoff  *backoff.ExponentialBackOff
	pollNow  chan pollRequest
	failures int
}

// NewWorker creates a worker for one account.
func NewWorker(
	account *core.AccountConfig,
	source core.MailSource,
	cursors core.CursorStore,
	ingest *core.IngestionService,
	logger *zap.Logger,
	pollInterval time.Duration,
	maxBackoff time.Duration,
	fetchTimeout time.Duration,
	opTimeout time.Duration,
) *Worker {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = pollInterval
	b.MaxInterval = maxBackoff
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0 // retry forever, the ceiling bounds the interval
	b.Reset()

	return &Worker{
		account:      account,
		source:       source,
		cursors:      cursors,
		ingest:       ingest,
		logger:       logger.With(zap.String("account", account.Key())),
		pollInterval: pollInterval,
		fetchTimeout: fetchTimeout,
		opTimeout:    opTimeout,
		backoff:      b,
		pollNow:      make(chan pollRequest),
	}
}

// Run polls until ctx is cancelled. Cancellation is only observed
// between polls: an in-flight poll always finishes and commits, which
// is why PollOnce runs against its own operation contexts rather than
// ctx.
func (w *Worker) Run(ctx context.Context) {
	// First poll right away so a freshly activated account does not
	// wait a full interval.
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Worker retired")
			return
		case <-timer.C:
			err := w.PollOnce(context.Background())
			timer.Reset(w.nextDelay(err))
		case req := <-w.pollNow:
			err := w.PollOnce(context.Background())
			req.reply <- err
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(w.nextDelay(err))
		}
	}
}

// PollOnce runs a single fetch-classify-store cycle. The cursor
// advances only past messages that were fully written: on a mid-batch
// failure it is left at the last committed message so the next poll
// re-attempts the remainder, and the messageId upsert dedupes any
// overlap.
func (w *Worker) PollOnce(ctx context.Context) error {
	key := w.account.Key()

	cursor, err := w.cursors.GetCursor(ctx, key)
	if err != nil {
		w.failurePoll(err, "cursor load failed")
		return err
	}

	fctx, cancel := context.WithTimeout(ctx, w.fetchTimeout)
	msgs, err := w.source.Fetch(fctx, w.account, cursor)
	cancel()
	if err != nil {
		w.failurePoll(err, "fetch failed")
		return err
	}

	committed := cursor
	for _, m := range msgs {
		ictx, cancel := context.WithTimeout(ctx, w.opTimeout)
		_, _, err := w.ingest.Ingest(ictx, w.account, m)
		cancel()
		if err != nil {
			w.commitCursor(ctx, key, cursor, committed)
			w.failurePoll(err, "ingest failed mid-batch")
			return err
		}
		if m.NativeID != "" {
			committed = m.NativeID
		}
	}
	w.commitCursor(ctx, key, cursor, committed)

	w.failures = 0
	metrics.IncrementPolls(w.account.Email, "success")
	w.logger.Debug("Poll completed", zap.Int("messages", len(msgs)))
	return nil
}

func (w *Worker) commitCursor(ctx context.Context, key, old, committed string) {
	if committed == old {
		return
	}
	if err := w.cursors.SetCursor(ctx, key, committed); err != nil {
		// The next poll re-fetches from the stale cursor; dedup makes
		// the replay harmless.
		w.logger.Error("Failed to persist cursor", zap.Error(err))
	}
}

func (w *Worker) failurePoll(err error, msg string) {
	w.failures++
	metrics.IncrementPolls(w.account.Email, "failure")
	w.logger.Warn(msg,
		zap.Error(err),
		zap.Int("consecutive_failures", w.failures))
}

// nextDelay returns the wait before the next poll: the base interval
// after success, exponential backoff up to the ceiling after failure.
func (w *Worker) nextDelay(err error) time.Duration {
	if err == nil {
		w.backoff.Reset()
		return w.pollInterval
	}
	return w.backoff.NextBackOff()
}

// Failures reports the consecutive-failure count since the last
// successful poll.
func (w *Worker) Failures() int {
	return w.failures
}
