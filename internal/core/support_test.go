package core

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"
)

// fakeClassifier returns scripted results keyed on substrings of the
// text, or fails every call when broken is set.
type fakeClassifier struct {
	results map[string]*Classification
	broken  bool
	calls   int
}

func (f *fakeClassifier) Classify(ctx context.Context, text string) (*Classification, error) {
	f.calls++
	if f.broken {
		return nil, errors.New("backend unavailable")
	}
	for key, result := range f.results {
		if key != "" && strings.Contains(text, key) {
			out := *result
			return &out, nil
		}
	}
	return &Classification{Emotion: EmotionNeutral, Confidence: 0.9}, nil
}

// fakeMessageStore is a minimal in-memory MessageStore for service tests.
type fakeMessageStore struct {
	mu       sync.Mutex
	messages map[string]*Message
	failNext bool
}

func newFakeMessageStore() *fakeMessageStore {
	return &fakeMessageStore{messages: make(map[string]*Message)}
}

func (s *fakeMessageStore) UpsertMessage(ctx context.Context, msg *Message) (*Message, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext {
		s.failNext = false
		return nil, false, errors.New("store write failed")
	}
	if existing, ok := s.messages[msg.MessageID]; ok {
		out := *existing
		return &out, false, nil
	}
	stored := *msg
	s.messages[msg.MessageID] = &stored
	out := stored
	return &out, true, nil
}

func (s *fakeMessageStore) GetMessage(ctx context.Context, messageID string) (*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.messages[messageID]
	if !ok {
		return nil, ErrNotFound
	}
	out := *msg
	return &out, nil
}

func (s *fakeMessageStore) ListMessages(ctx context.Context, filter MessageFilter) ([]*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Message
	for _, msg := range s.messages {
		m := *msg
		out = append(out, &m)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].NormalizedTimestamp.After(out[j].NormalizedTimestamp)
	})
	return out, nil
}

func (s *fakeMessageStore) UpdateTriage(ctx context.Context, messageID, status, priority string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.messages[messageID]
	if !ok {
		return ErrNotFound
	}
	msg.Status = status
	msg.Priority = priority
	return nil
}

func (s *fakeMessageStore) EmotionCountsByHour(ctx context.Context, from, to time.Time, userID *string) (map[time.Time]map[Emotion]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[time.Time]map[Emotion]int)
	for _, msg := range s.messages {
		if userID != nil && ScopeKey(msg.UserID) != *userID {
			continue
		}
		ts := msg.NormalizedTimestamp
		if ts.Before(from) || ts.After(to) {
			continue
		}
		bucket := ts.UTC().Truncate(time.Hour)
		if out[bucket] == nil {
			out[bucket] = make(map[Emotion]int)
		}
		out[bucket][msg.Emotion]++
	}
	return out, nil
}

// fakeAlertStore records alerts and supports triage transitions.
type fakeAlertStore struct {
	mu       sync.Mutex
	alerts   map[string]*Alert
	failNext bool
}

func newFakeAlertStore() *fakeAlertStore {
	return &fakeAlertStore{alerts: make(map[string]*Alert)}
}

func (s *fakeAlertStore) CreateAlert(ctx context.Context, alert *Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext {
		s.failNext = false
		return errors.New("alert write failed")
	}
	stored := *alert
	s.alerts[alert.AlertID] = &stored
	return nil
}

func (s *fakeAlertStore) GetAlert(ctx context.Context, alertID string) (*Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	alert, ok := s.alerts[alertID]
	if !ok {
		return nil, ErrNotFound
	}
	out := *alert
	return &out, nil
}

func (s *fakeAlertStore) ListActiveAlerts(ctx context.Context) ([]*Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Alert
	for _, alert := range s.alerts {
		if alert.Status == AlertActive {
			a := *alert
			out = append(out, &a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *fakeAlertStore) UpdateAlertStatus(ctx context.Context, alertID string, status AlertStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	alert, ok := s.alerts[alertID]
	if !ok {
		return ErrNotFound
	}
	alert.Status = status
	return nil
}

// fakeNotifier records notifications and optionally fails them.
type fakeNotifier struct {
	mu      sync.Mutex
	targets []string
	broken  bool
}

func (n *fakeNotifier) Notify(ctx context.Context, target string, alert *Alert, msg *Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.broken {
		return errors.New("notification failed")
	}
	n.targets = append(n.targets, target)
	return nil
}
