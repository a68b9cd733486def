package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/AgamJK/sentinel-final/internal/core"
)

// MemoryStore is an in-memory implementation of the Store interface,
// used for development and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	configs  map[string]*core.AccountConfig // keyed by scope/email
	messages map[string]*core.Message
	alerts   map[string]*core.Alert
	cursors  map[string]string
	logger   *zap.Logger
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(logger *zap.Logger) *MemoryStore {
	return &MemoryStore{
		configs:  make(map[string]*core.AccountConfig),
		messages: make(map[string]*core.Message),
		alerts:   make(map[string]*core.Alert),
		cursors:  make(map[string]string),
		logger:   logger,
	}
}

// PutConfig upserts a config keyed on (userID, email).
func (s *MemoryStore) PutConfig(ctx context.Context, cfg *core.AccountConfig) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	key := cfg.Key()
	stored := *cfg
	if existing, ok := s.configs[key]; ok {
		stored.ConfigID = existing.ConfigID
		stored.CreatedAt = existing.CreatedAt
	} else {
		if stored.ConfigID == "" {
			stored.ConfigID = uuid.NewString()
		}
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	s.configs[key] = &stored
	return stored.ConfigID, nil
}

// GetConfig resolves a user scope, falling back to the global record.
func (s *MemoryStore) GetConfig(ctx context.Context, userID *string) (*core.AccountConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if cfg := s.lookupScope(core.ScopeKey(userID)); cfg != nil {
		return cfg, nil
	}
	if userID != nil {
		if cfg := s.lookupScope(""); cfg != nil {
			return cfg, nil
		}
	}
	return nil, core.ErrNotConfigured
}

// lookupScope returns the scope's config with the lowest email for a
// deterministic answer when a scope has several accounts.
func (s *MemoryStore) lookupScope(scope string) *core.AccountConfig {
	var best *core.AccountConfig
	for _, cfg := range s.configs {
		if core.ScopeKey(cfg.UserID) != scope {
			continue
		}
		if best == nil || cfg.Email < best.Email {
			best = cfg
		}
	}
	if best == nil {
		return nil
	}
	out := *best
	return &out
}

// ListActiveConfigs returns every active config.
func (s *MemoryStore) ListActiveConfigs(ctx context.Context) ([]*core.AccountConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*core.AccountConfig
	for _, cfg := range s.configs {
		if cfg.Active {
			c := *cfg
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out, nil
}

// UpsertMessage stores msg unless a record with the same id exists.
func (s *MemoryStore) UpsertMessage(ctx context.Context, msg *core.Message) (*core.Message, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.messages[msg.MessageID]; ok {
		out := *existing
		return &out, false, nil
	}
	stored := *msg
	s.messages[msg.MessageID] = &stored
	out := stored
	return &out, true, nil
}

// GetMessage fetches one message by id.
func (s *MemoryStore) GetMessage(ctx context.Context, messageID string) (*core.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msg, ok := s.messages[messageID]
	if !ok {
		return nil, core.ErrNotFound
	}
	out := *msg
	return &out, nil
}

// ListMessages returns matching messages, newest first.
func (s *MemoryStore) ListMessages(ctx context.Context, filter core.MessageFilter) ([]*core.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*core.Message
	for _, msg := range s.messages {
		if filter.UserID != nil && core.ScopeKey(msg.UserID) != *filter.UserID {
			continue
		}
		if filter.Emotion != nil && msg.Emotion != *filter.Emotion {
			continue
		}
		if filter.SourceAccount != "" && msg.SourceAccount != filter.SourceAccount {
			continue
		}
		if filter.Sender != "" && msg.Sender != filter.Sender {
			continue
		}
		m := *msg
		out = append(out, &m)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].NormalizedTimestamp.After(out[j].NormalizedTimestamp)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// UpdateTriage mutates a message's status and priority.
func (s *MemoryStore) UpdateTriage(ctx context.Context, messageID, status, priority string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.messages[messageID]
	if !ok {
		return core.ErrNotFound
	}
	msg.Status = status
	msg.Priority = priority
	return nil
}

// EmotionCountsByHour buckets stored messages by hour-aligned UTC instant.
func (s *MemoryStore) EmotionCountsByHour(ctx context.Context, from, to time.Time, userID *string) (map[time.Time]map[core.Emotion]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[time.Time]map[core.Emotion]int)
	for _, msg := range s.messages {
		if userID != nil && core.ScopeKey(msg.UserID) != *userID {
			continue
		}
		ts := msg.NormalizedTimestamp
		if ts.Before(from) || ts.After(to) {
			continue
		}
		bucket := ts.UTC().Truncate(time.Hour)
		if out[bucket] == nil {
			out[bucket] = make(map[core.Emotion]int)
		}
		out[bucket][msg.Emotion]++
	}
	return out, nil
}

// CreateAlert stores a new alert.
func (s *MemoryStore) CreateAlert(ctx context.Context, alert *core.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *alert
	s.alerts[alert.AlertID] = &stored
	return nil
}

// GetAlert fetches one alert by id.
func (s *MemoryStore) GetAlert(ctx context.Context, alertID string) (*core.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	alert, ok := s.alerts[alertID]
	if !ok {
		return nil, core.ErrNotFound
	}
	out := *alert
	return &out, nil
}

// ListActiveAlerts returns alerts not yet acknowledged or resolved.
func (s *MemoryStore) ListActiveAlerts(ctx context.Context) ([]*core.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*core.Alert
	for _, alert := range s.alerts {
		if alert.Status == core.AlertActive {
			a := *alert
			out = append(out, &a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// UpdateAlertStatus moves an alert through its triage lifecycle.
func (s *MemoryStore) UpdateAlertStatus(ctx context.Context, alertID string, status core.AlertStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	alert, ok := s.alerts[alertID]
	if !ok {
		return core.ErrNotFound
	}
	alert.Status = status
	return nil
}

// GetCursor returns the stored cursor, empty when none exists.
func (s *MemoryStore) GetCursor(ctx context.Context, accountKey string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cursors[accountKey], nil
}

// SetCursor persists the per-account cursor.
func (s *MemoryStore) SetCursor(ctx context.Context, accountKey, cursor string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursors[accountKey] = cursor
	return nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}
