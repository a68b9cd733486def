package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testAccount() *AccountConfig {
	user := "u-1"
	return &AccountConfig{
		ConfigID:     "cfg-1",
		UserID:       &user,
		Email:        "support@acme.test",
		NotifyTarget: "chat-123",
		Active:       true,
	}
}

func newTestIngestion(classifier *fakeClassifier, store *fakeMessageStore, alerts *AlertService) *IngestionService {
	gateway := NewClassifierGateway(classifier, zap.NewNop(), "test", time.Second)
	return NewIngestionService(gateway, store, alerts, zap.NewNop())
}

func TestIngestStoresClassifiedMessage(t *testing.T) {
	classifier := &fakeClassifier{results: map[string]*Classification{
		"refund": {Emotion: EmotionAnger, Confidence: 0.95},
	}}
	store := newFakeMessageStore()
	svc := newTestIngestion(classifier, store, nil)

	msg, inserted, err := svc.Ingest(context.Background(), testAccount(), &InboundMessage{
		NativeID:     "m-1",
		Sender:       "alice@example.com",
		RawTimestamp: "2026-01-02T10:30:00Z",
		Subject:      "Where is my refund",
		Text:         "I want my money back.",
	})
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.Equal(t, "support@acme.test:m-1", msg.MessageID)
	assert.Equal(t, EmotionAnger, msg.Emotion)
	assert.Equal(t, 0.95, msg.Confidence)
	assert.Equal(t, MessageStatusNew, msg.Status)
	assert.Equal(t, time.Date(2026, 1, 2, 10, 30, 0, 0, time.UTC), msg.NormalizedTimestamp)
	assert.Equal(t, "2026-01-02T10:30:00Z", msg.RawTimestamp)
}

func TestIngestIsIdempotent(t *testing.T) {
	classifier := &fakeClassifier{}
	store := newFakeMessageStore()
	svc := newTestIngestion(classifier, store, nil)

	in := &InboundMessage{
		NativeID:     "m-1",
		Sender:       "alice@example.com",
		RawTimestamp: "2026-01-02T10:30:00Z",
		Text:         "hello",
	}

	first, inserted, err := svc.Ingest(context.Background(), testAccount(), in)
	require.NoError(t, err)
	require.True(t, inserted)

	second, inserted, err := svc.Ingest(context.Background(), testAccount(), in)
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, first.MessageID, second.MessageID)

	all, err := store.ListMessages(context.Background(), MessageFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestIngestSurvivesClassifierOutage(t *testing.T) {
	classifier := &fakeClassifier{broken: true}
	store := newFakeMessageStore()
	svc := newTestIngestion(classifier, store, nil)

	msg, inserted, err := svc.Ingest(context.Background(), testAccount(), &InboundMessage{
		NativeID:     "m-1",
		Sender:       "alice@example.com",
		RawTimestamp: "2026-01-02T10:30:00Z",
		Text:         "hello",
	})
	require.NoError(t, err, "classifier failure must not fail ingestion")
	assert.True(t, inserted)
	assert.Equal(t, EmotionUnknown, msg.Emotion)
	assert.Equal(t, 0.0, msg.Confidence)
}

func TestIngestUnparseableTimestampFallsBack(t *testing.T) {
	classifier := &fakeClassifier{}
	store := newFakeMessageStore()
	svc := newTestIngestion(classifier, store, nil)

	before := time.Now().UTC()
	msg, _, err := svc.Ingest(context.Background(), testAccount(), &InboundMessage{
		NativeID:     "m-1",
		Sender:       "alice@example.com",
		RawTimestamp: "whenever",
		Text:         "hello",
	})
	require.NoError(t, err)
	assert.False(t, msg.NormalizedTimestamp.Before(before))
	assert.Equal(t, "whenever", msg.RawTimestamp, "raw value is kept verbatim")
}

func TestIngestRaisesAlertOnNegativeClassification(t *testing.T) {
	classifier := &fakeClassifier{results: map[string]*Classification{
		"furious":      {Emotion: EmotionAnger, Confidence: 0.92},
		"slightly odd": {Emotion: EmotionConfusion, Confidence: 0.95},
		"unhappy":      {Emotion: EmotionSadness, Confidence: 0.4},
	}}
	store := newFakeMessageStore()
	alertStore := newFakeAlertStore()
	notifier := &fakeNotifier{}
	alerts := NewAlertService(alertStore, notifier, zap.NewNop(),
		[]Emotion{EmotionAnger, EmotionFrustration, EmotionSadness, EmotionFear},
		0.7, map[Emotion]Severity{EmotionAnger: SeverityHigh})
	svc := newTestIngestion(classifier, store, alerts)

	account := testAccount()
	inputs := []*InboundMessage{
		{NativeID: "m-1", Sender: "a@x.test", RawTimestamp: "2026-01-02T10:00:00Z", Text: "I am furious"},
		{NativeID: "m-2", Sender: "b@x.test", RawTimestamp: "2026-01-02T10:01:00Z", Text: "this is slightly odd"},
		{NativeID: "m-3", Sender: "c@x.test", RawTimestamp: "2026-01-02T10:02:00Z", Text: "a bit unhappy"},
	}
	for _, in := range inputs {
		_, _, err := svc.Ingest(context.Background(), account, in)
		require.NoError(t, err)
	}

	// Only the high-confidence negative message crosses the predicate:
	// confusion is not in the negative set and low-confidence sadness is
	// below the threshold.
	active, err := alertStore.ListActiveAlerts(context.Background())
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "support@acme.test:m-1", active[0].MessageID)
	assert.Equal(t, SeverityHigh, active[0].Severity)
	assert.Equal(t, EmotionAnger, active[0].Emotion)

	angry, err := store.GetMessage(context.Background(), "support@acme.test:m-1")
	require.NoError(t, err)
	assert.Equal(t, PriorityHigh, angry.Priority)

	confused, err := store.GetMessage(context.Background(), "support@acme.test:m-2")
	require.NoError(t, err)
	assert.Equal(t, PriorityNormal, confused.Priority)

	assert.Equal(t, []string{"chat-123"}, notifier.targets)
}

func TestIngestDuplicateDoesNotRealert(t *testing.T) {
	classifier := &fakeClassifier{results: map[string]*Classification{
		"furious": {Emotion: EmotionAnger, Confidence: 0.92},
	}}
	store := newFakeMessageStore()
	alertStore := newFakeAlertStore()
	alerts := NewAlertService(alertStore, nil, zap.NewNop(),
		[]Emotion{EmotionAnger}, 0.7, nil)
	svc := newTestIngestion(classifier, store, alerts)

	in := &InboundMessage{NativeID: "m-1", Sender: "a@x.test", RawTimestamp: "2026-01-02T10:00:00Z", Text: "I am furious"}
	for i := 0; i < 3; i++ {
		_, _, err := svc.Ingest(context.Background(), testAccount(), in)
		require.NoError(t, err)
	}

	active, err := alertStore.ListActiveAlerts(context.Background())
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestIngestStoreFailure(t *testing.T) {
	classifier := &fakeClassifier{}
	store := newFakeMessageStore()
	store.failNext = true
	svc := newTestIngestion(classifier, store, nil)

	_, _, err := svc.Ingest(context.Background(), testAccount(), &InboundMessage{
		NativeID: "m-1", Sender: "a@x.test", RawTimestamp: "2026-01-02T10:00:00Z", Text: "hello",
	})
	assert.Error(t, err)
}
