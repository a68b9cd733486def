package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/AgamJK/sentinel-final/internal/core"
)

// Both backends are exercised through the same conformance suite so
// swapping store.type never changes observable behavior.
func backends(t *testing.T) map[string]core.Store {
	t.Helper()
	sqlite, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })
	return map[string]core.Store{
		"memory": NewMemoryStore(zap.NewNop()),
		"sqlite": sqlite,
	}
}

func testMessage(id string, userID *string, emotion core.Emotion, ts time.Time) *core.Message {
	return &core.Message{
		MessageID:           id,
		UserID:              userID,
		SourceAccount:       "support@acme.test",
		RawTimestamp:        ts.Format(time.RFC3339),
		NormalizedTimestamp: ts,
		Sender:              "alice@example.com",
		Text:                "some text",
		Emotion:             emotion,
		Confidence:          0.9,
		Priority:            core.PriorityNormal,
		Status:              core.MessageStatusNew,
		CreatedAt:           ts,
	}
}

func TestConfigUpsertAndScopeFallback(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			alice := "alice"

			// No config at all.
			_, err := s.GetConfig(ctx, &alice)
			assert.ErrorIs(t, err, core.ErrNotConfigured)

			// A global config serves any scope as fallback.
			_, err = s.PutConfig(ctx, &core.AccountConfig{
				Email:            "global@acme.test",
				CredentialSecret: "s1",
				Active:           true,
			})
			require.NoError(t, err)

			cfg, err := s.GetConfig(ctx, &alice)
			require.NoError(t, err)
			assert.Equal(t, "global@acme.test", cfg.Email)
			assert.Nil(t, cfg.UserID)

			// A user-specific config takes precedence over the fallback.
			_, err = s.PutConfig(ctx, &core.AccountConfig{
				UserID:           &alice,
				Email:            "alice@acme.test",
				CredentialSecret: "s2",
				Active:           true,
			})
			require.NoError(t, err)

			cfg, err = s.GetConfig(ctx, &alice)
			require.NoError(t, err)
			assert.Equal(t, "alice@acme.test", cfg.Email)
			require.NotNil(t, cfg.UserID)
			assert.Equal(t, "alice", *cfg.UserID)

			// The global scope never sees user-specific configs.
			cfg, err = s.GetConfig(ctx, nil)
			require.NoError(t, err)
			assert.Equal(t, "global@acme.test", cfg.Email)
		})
	}
}

func TestConfigUpsertKeepsIdentity(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			first, err := s.PutConfig(ctx, &core.AccountConfig{
				Email: "support@acme.test", CredentialSecret: "old", Active: true,
			})
			require.NoError(t, err)

			second, err := s.PutConfig(ctx, &core.AccountConfig{
				Email: "support@acme.test", CredentialSecret: "new", Active: false,
			})
			require.NoError(t, err)
			assert.Equal(t, first, second, "re-upsert keeps the config id")

			cfg, err := s.GetConfig(ctx, nil)
			require.NoError(t, err)
			assert.Equal(t, "new", cfg.CredentialSecret)
			assert.False(t, cfg.Active)
		})
	}
}

func TestListActiveConfigs(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			bob := "bob"

			_, err := s.PutConfig(ctx, &core.AccountConfig{Email: "a@acme.test", Active: true})
			require.NoError(t, err)
			_, err = s.PutConfig(ctx, &core.AccountConfig{UserID: &bob, Email: "b@acme.test", Active: true})
			require.NoError(t, err)
			_, err = s.PutConfig(ctx, &core.AccountConfig{Email: "off@acme.test", Active: false})
			require.NoError(t, err)

			active, err := s.ListActiveConfigs(ctx)
			require.NoError(t, err)
			require.Len(t, active, 2)

			keys := []string{active[0].Key(), active[1].Key()}
			assert.ElementsMatch(t, []string{"/a@acme.test", "bob/b@acme.test"}, keys)
		})
	}
}

func TestUpsertMessageDedup(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			ts := time.Date(2026, 1, 2, 10, 30, 0, 0, time.UTC)

			original := testMessage("acct:m-1", nil, core.EmotionAnger, ts)
			stored, inserted, err := s.UpsertMessage(ctx, original)
			require.NoError(t, err)
			assert.True(t, inserted)
			assert.Equal(t, core.EmotionAnger, stored.Emotion)

			// A replay with different content must not overwrite.
			replay := testMessage("acct:m-1", nil, core.EmotionJoy, ts.Add(time.Hour))
			stored, inserted, err = s.UpsertMessage(ctx, replay)
			require.NoError(t, err)
			assert.False(t, inserted)
			assert.Equal(t, core.EmotionAnger, stored.Emotion, "first write wins")

			got, err := s.GetMessage(ctx, "acct:m-1")
			require.NoError(t, err)
			assert.True(t, got.NormalizedTimestamp.Equal(ts))
		})
	}
}

func TestGetMessageNotFound(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.GetMessage(context.Background(), "missing")
			assert.ErrorIs(t, err, core.ErrNotFound)
		})
	}
}

func TestListMessagesFilterAndOrder(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			alice := "alice"
			base := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)

			msgs := []*core.Message{
				testMessage("m-1", &alice, core.EmotionAnger, base),
				testMessage("m-2", &alice, core.EmotionJoy, base.Add(time.Hour)),
				testMessage("m-3", nil, core.EmotionAnger, base.Add(2*time.Hour)),
			}
			for _, m := range msgs {
				_, _, err := s.UpsertMessage(ctx, m)
				require.NoError(t, err)
			}

			// Newest first, unfiltered.
			all, err := s.ListMessages(ctx, core.MessageFilter{})
			require.NoError(t, err)
			require.Len(t, all, 3)
			assert.Equal(t, "m-3", all[0].MessageID)
			assert.Equal(t, "m-1", all[2].MessageID)

			// Scope filter.
			scope := "alice"
			scoped, err := s.ListMessages(ctx, core.MessageFilter{UserID: &scope})
			require.NoError(t, err)
			assert.Len(t, scoped, 2)

			// Emotion filter.
			anger := core.EmotionAnger
			angry, err := s.ListMessages(ctx, core.MessageFilter{Emotion: &anger})
			require.NoError(t, err)
			assert.Len(t, angry, 2)

			// Limit.
			limited, err := s.ListMessages(ctx, core.MessageFilter{Limit: 1})
			require.NoError(t, err)
			require.Len(t, limited, 1)
			assert.Equal(t, "m-3", limited[0].MessageID)
		})
	}
}

func TestUpdateTriage(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			ts := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)

			_, _, err := s.UpsertMessage(ctx, testMessage("m-1", nil, core.EmotionAnger, ts))
			require.NoError(t, err)

			require.NoError(t, s.UpdateTriage(ctx, "m-1", core.MessageStatusTriaged, core.PriorityHigh))
			got, err := s.GetMessage(ctx, "m-1")
			require.NoError(t, err)
			assert.Equal(t, core.MessageStatusTriaged, got.Status)
			assert.Equal(t, core.PriorityHigh, got.Priority)

			assert.ErrorIs(t, s.UpdateTriage(ctx, "missing", core.MessageStatusTriaged, core.PriorityHigh), core.ErrNotFound)
		})
	}
}

func TestEmotionCountsByHour(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			alice := "alice"
			base := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)

			seeds := []*core.Message{
				testMessage("m-1", &alice, core.EmotionAnger, base.Add(5*time.Minute)),
				testMessage("m-2", &alice, core.EmotionAnger, base.Add(25*time.Minute)),
				testMessage("m-3", &alice, core.EmotionJoy, base.Add(45*time.Minute)),
				testMessage("m-4", &alice, core.EmotionNeutral, base.Add(90*time.Minute)),
				testMessage("m-5", nil, core.EmotionAnger, base.Add(10*time.Minute)),
				testMessage("m-6", &alice, core.EmotionFear, base.Add(-2*time.Hour)),
			}
			for _, m := range seeds {
				_, _, err := s.UpsertMessage(ctx, m)
				require.NoError(t, err)
			}

			counts, err := s.EmotionCountsByHour(ctx, base, base.Add(2*time.Hour), nil)
			require.NoError(t, err)

			hour0 := counts[base]
			require.NotNil(t, hour0)
			assert.Equal(t, 3, hour0[core.EmotionAnger])
			assert.Equal(t, 1, hour0[core.EmotionJoy])

			hour1 := counts[base.Add(time.Hour)]
			require.NotNil(t, hour1)
			assert.Equal(t, 1, hour1[core.EmotionNeutral])

			// Out-of-range messages never appear.
			_, ok := counts[base.Add(-2*time.Hour)]
			assert.False(t, ok)

			// Scoped aggregation drops other scopes.
			scoped, err := s.EmotionCountsByHour(ctx, base, base.Add(2*time.Hour), &alice)
			require.NoError(t, err)
			assert.Equal(t, 2, scoped[base][core.EmotionAnger])
		})
	}
}

func TestAlertLifecycle(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)

			alert := &core.Alert{
				AlertID:   "al-1",
				MessageID: "m-1",
				Severity:  core.SeverityHigh,
				Emotion:   core.EmotionAnger,
				Status:    core.AlertActive,
				CreatedAt: now,
			}
			require.NoError(t, s.CreateAlert(ctx, alert))
			require.NoError(t, s.CreateAlert(ctx, &core.Alert{
				AlertID: "al-2", MessageID: "m-2", Severity: core.SeverityMedium,
				Emotion: core.EmotionSadness, Status: core.AlertActive, CreatedAt: now.Add(time.Minute),
			}))

			active, err := s.ListActiveAlerts(ctx)
			require.NoError(t, err)
			require.Len(t, active, 2)
			assert.Equal(t, "al-1", active[0].AlertID, "oldest first")

			require.NoError(t, s.UpdateAlertStatus(ctx, "al-1", core.AlertAcknowledged))
			active, err = s.ListActiveAlerts(ctx)
			require.NoError(t, err)
			require.Len(t, active, 1)
			assert.Equal(t, "al-2", active[0].AlertID)

			got, err := s.GetAlert(ctx, "al-1")
			require.NoError(t, err)
			assert.Equal(t, core.AlertAcknowledged, got.Status)

			assert.ErrorIs(t, s.UpdateAlertStatus(ctx, "missing", core.AlertResolved), core.ErrNotFound)
			_, err = s.GetAlert(ctx, "missing")
			assert.ErrorIs(t, err, core.ErrNotFound)
		})
	}
}

func TestCursorRoundTrip(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			cursor, err := s.GetCursor(ctx, "/support@acme.test")
			require.NoError(t, err)
			assert.Equal(t, "", cursor, "missing cursor reads as empty")

			require.NoError(t, s.SetCursor(ctx, "/support@acme.test", "m-10"))
			require.NoError(t, s.SetCursor(ctx, "/support@acme.test", "m-20"))

			cursor, err = s.GetCursor(ctx, "/support@acme.test")
			require.NoError(t, err)
			assert.Equal(t, "m-20", cursor)

			// Cursors are per account key.
			other, err := s.GetCursor(ctx, "alice/other@acme.test")
			require.NoError(t, err)
			assert.Equal(t, "", other)
		})
	}
}
