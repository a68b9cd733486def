package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func seedMessage(store *fakeMessageStore, id string, userID *string, emotion Emotion, ts time.Time) {
	store.messages[id] = &Message{
		MessageID:           id,
		UserID:              userID,
		Emotion:             emotion,
		NormalizedTimestamp: ts,
	}
}

func TestTrendsEmitContinuousBuckets(t *testing.T) {
	store := newFakeMessageStore()
	agg := NewTrendAggregator(store, zap.NewNop())
	now := time.Date(2026, 8, 26, 14, 30, 0, 0, time.UTC)
	agg.now = func() time.Time { return now }

	// Two messages this hour, one three hours ago, a gap in between.
	seedMessage(store, "m-1", nil, EmotionAnger, now.Add(-5*time.Minute))
	seedMessage(store, "m-2", nil, EmotionJoy, now.Add(-10*time.Minute))
	seedMessage(store, "m-3", nil, EmotionNeutral, now.Add(-3*time.Hour))

	buckets, err := agg.Trends(context.Background(), nil, 6)
	require.NoError(t, err)
	require.Len(t, buckets, 6, "empty hours still produce buckets")

	// Oldest first, hour aligned, one hour apart.
	first := time.Date(2026, 8, 26, 9, 0, 0, 0, time.UTC)
	for i, bucket := range buckets {
		assert.True(t, bucket.BucketStart.Equal(first.Add(time.Duration(i)*time.Hour)))
		assert.Len(t, bucket.Counts, len(Emotions), "every emotion is present in every bucket")
	}

	latest := buckets[5]
	assert.Equal(t, 2, latest.Total)
	assert.Equal(t, 1, latest.Counts[EmotionAnger])
	assert.Equal(t, 1, latest.Counts[EmotionJoy])
	assert.Equal(t, 0, latest.Counts[EmotionSadness])

	threeAgo := buckets[2]
	assert.Equal(t, 1, threeAgo.Total)
	assert.Equal(t, 1, threeAgo.Counts[EmotionNeutral])

	gap := buckets[4]
	assert.Equal(t, 0, gap.Total)
}

func TestTrendsScopeFiltering(t *testing.T) {
	store := newFakeMessageStore()
	agg := NewTrendAggregator(store, zap.NewNop())
	now := time.Date(2026, 8, 26, 14, 30, 0, 0, time.UTC)
	agg.now = func() time.Time { return now }

	alice := "alice"
	bob := "bob"
	seedMessage(store, "m-1", &alice, EmotionAnger, now.Add(-5*time.Minute))
	seedMessage(store, "m-2", &bob, EmotionJoy, now.Add(-5*time.Minute))
	seedMessage(store, "m-3", nil, EmotionNeutral, now.Add(-5*time.Minute))

	scoped, err := agg.Trends(context.Background(), &alice, 1)
	require.NoError(t, err)
	require.Len(t, scoped, 1)
	assert.Equal(t, 1, scoped[0].Total)
	assert.Equal(t, 1, scoped[0].Counts[EmotionAnger])

	// Nil scope aggregates everything, legacy global messages included.
	all, err := agg.Trends(context.Background(), nil, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, all[0].Total)
}

func TestTrendsExcludeMessagesOutsideWindow(t *testing.T) {
	store := newFakeMessageStore()
	agg := NewTrendAggregator(store, zap.NewNop())
	now := time.Date(2026, 8, 26, 14, 30, 0, 0, time.UTC)
	agg.now = func() time.Time { return now }

	seedMessage(store, "old", nil, EmotionAnger, now.Add(-7*time.Hour))
	seedMessage(store, "recent", nil, EmotionJoy, now.Add(-time.Hour))

	buckets, err := agg.Trends(context.Background(), nil, 2)
	require.NoError(t, err)
	require.Len(t, buckets, 2)

	total := 0
	for _, b := range buckets {
		total += b.Total
	}
	assert.Equal(t, 1, total)
}

func TestTrendsRejectNonPositiveWindow(t *testing.T) {
	agg := NewTrendAggregator(newFakeMessageStore(), zap.NewNop())

	_, err := agg.Trends(context.Background(), nil, 0)
	assert.Error(t, err)
	_, err = agg.Trends(context.Background(), nil, -1)
	assert.Error(t, err)
}
