package core

import (
	"context"
	"time"
)

// Classifier defines the interface to a sentiment classification backend.
type Classifier interface {
	// Classify scores a piece of text against the emotion vocabulary.
	Classify(ctx context.Context, text string) (*Classification, error)
}

// ConfigStore holds per-account monitoring configuration.
type ConfigStore interface {
	// PutConfig upserts a config keyed on (userID, email) and returns
	// its config id.
	PutConfig(ctx context.Context, cfg *AccountConfig) (string, error)

	// GetConfig resolves the config for a user scope, falling back to
	// the global (nil user) record when no user-specific one exists.
	// Returns ErrNotConfigured when neither matches.
	GetConfig(ctx context.Context, userID *string) (*AccountConfig, error)

	// ListActiveConfigs returns every config with active=true.
	ListActiveConfigs(ctx context.Context) ([]*AccountConfig, error)
}

// MessageFilter narrows a message listing.
type MessageFilter struct {
	UserID        *string
	Emotion       *Emotion
	SourceAccount string
	Sender        string
	Limit         int
}

// MessageStore is the durable, indexed store of classified messages.
type MessageStore interface {
	// UpsertMessage stores msg keyed on MessageID. When a record with
	// the same id already exists the stored record is returned
	// unchanged and inserted is false.
	UpsertMessage(ctx context.Context, msg *Message) (stored *Message, inserted bool, err error)

	// GetMessage fetches one message by id, ErrNotFound if absent.
	GetMessage(ctx context.Context, messageID string) (*Message, error)

	// ListMessages returns messages matching the filter, newest first.
	ListMessages(ctx context.Context, filter MessageFilter) ([]*Message, error)

	// UpdateTriage mutates the only mutable message fields.
	UpdateTriage(ctx context.Context, messageID, status, priority string) error

	// EmotionCountsByHour returns, for each hour-aligned UTC instant in
	// [from, to], the count of messages per emotion, keyed by bucket
	// start. Only NormalizedTimestamp is range-queried. A nil userID
	// aggregates across all scopes.
	EmotionCountsByHour(ctx context.Context, from, to time.Time, userID *string) (map[time.Time]map[Emotion]int, error)
}

// AlertStore owns alert records independently of message lifecycle.
type AlertStore interface {
	CreateAlert(ctx context.Context, alert *Alert) error
	GetAlert(ctx context.Context, alertID string) (*Alert, error)
	ListActiveAlerts(ctx context.Context) ([]*Alert, error)
	UpdateAlertStatus(ctx context.Context, alertID string, status AlertStatus) error
}

// CursorStore persists the per-account ingestion cursor. Each cursor is
// written only by its own account's worker.
type CursorStore interface {
	GetCursor(ctx context.Context, accountKey string) (string, error)
	SetCursor(ctx context.Context, accountKey, cursor string) error
}

// Store is the full persistence surface; every backend implements all
// four record families plus the cursor table.
type Store interface {
	ConfigStore
	MessageStore
	AlertStore
	CursorStore

	Close() error
}

// MailSource lists messages from an external mailbox.
type MailSource interface {
	// Fetch authenticates with the account's credential and returns
	// messages newer than cursor, oldest first. Connect and auth
	// failures come back as TransportError.
	Fetch(ctx context.Context, account *AccountConfig, cursor string) ([]*InboundMessage, error)
}

// Notifier delivers alert notifications to an external target.
type Notifier interface {
	Notify(ctx context.Context, target string, alert *Alert, msg *Message) error
}
