package core

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/AgamJK/sentinel-final/internal/metrics"
)

// TrendAggregator computes hourly emotion-count buckets over a recent
// window. Buckets are recomputed from the message store on every query;
// nothing is cached, so the numbers are always consistent with stored
// messages.
type TrendAggregator struct {
	store  MessageStore
	logger *zap.Logger

	// now is swappable for deterministic tests.
	now func() time.Time
}

// NewTrendAggregator creates a trend aggregator backed by the store.
func NewTrendAggregator(store MessageStore, logger *zap.Logger) *TrendAggregator {
	return &TrendAggregator{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// Trends returns exactly windowHours hour-aligned buckets covering
// [now - windowHours, now], oldest first. Empty hours are still
// emitted with zero counts for every emotion so consumers can render a
// continuous time axis. A nil userID aggregates across all scopes,
// legacy global messages included.
func (a *TrendAggregator) Trends(ctx context.Context, userID *string, windowHours int) ([]*TrendBucket, error) {
	if windowHours <= 0 {
		return nil, fmt.Errorf("window must be positive, got %d", windowHours)
	}

	started := time.Now()
	now := a.now().UTC()
	first := now.Truncate(time.Hour).Add(-time.Duration(windowHours-1) * time.Hour)

	counts, err := a.store.EmotionCountsByHour(ctx, first, now, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate trends: %w", err)
	}

	buckets := make([]*TrendBucket, 0, windowHours)
	for i := 0; i < windowHours; i++ {
		start := first.Add(time.Duration(i) * time.Hour)
		bucket := &TrendBucket{
			BucketStart: start,
			Counts:      make(map[Emotion]int, len(Emotions)),
		}
		for _, e := range Emotions {
			bucket.Counts[e] = 0
		}
		for emotion, n := range counts[start] {
			bucket.Counts[emotion] = n
			bucket.Total += n
		}
		buckets = append(buckets, bucket)
	}

	metrics.ObserveTrendQueryDuration(time.Since(started))
	a.logger.Debug("Trend query served",
		zap.Int("window_hours", windowHours),
		zap.Time("first_bucket", first))

	return buckets, nil
}
