package core

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Emotion is one of the closed set of labels the classifier may assign.
type Emotion string

const (
	EmotionAnger       Emotion = "anger"
	EmotionFrustration Emotion = "frustration"
	EmotionSadness     Emotion = "sadness"
	EmotionFear        Emotion = "fear"
	EmotionConfusion   Emotion = "confusion"
	EmotionNeutral     Emotion = "neutral"
	EmotionJoy         Emotion = "joy"
	EmotionGratitude   Emotion = "gratitude"

	// EmotionUnknown is the reserved fallback used when classification
	// fails or the classifier returns a label outside the vocabulary.
	EmotionUnknown Emotion = "unknown"
)

// Emotions lists every label a stored message may carry, unknown included.
var Emotions = []Emotion{
	EmotionAnger,
	EmotionFrustration,
	EmotionSadness,
	EmotionFear,
	EmotionConfusion,
	EmotionNeutral,
	EmotionJoy,
	EmotionGratitude,
	EmotionUnknown,
}

// ParseEmotion maps a raw label onto the closed vocabulary.
// Anything outside the vocabulary collapses to EmotionUnknown.
func ParseEmotion(label string) Emotion {
	for _, e := range Emotions {
		if string(e) == label {
			return e
		}
	}
	return EmotionUnknown
}

// Severity grades an alert raised from a negative classification.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// AlertStatus tracks the triage lifecycle of an alert.
type AlertStatus string

const (
	AlertActive       AlertStatus = "active"
	AlertAcknowledged AlertStatus = "acknowledged"
	AlertResolved     AlertStatus = "resolved"
)

// Message status values; a message starts as new and is only ever
// touched again by triage actions.
const (
	MessageStatusNew      = "new"
	MessageStatusTriaged  = "triaged"
	MessageStatusArchived = "archived"
)

// Message priority values derived at ingestion time.
const (
	PriorityNormal = "normal"
	PriorityHigh   = "high"
)

// AccountConfig is one monitored mailbox. A nil UserID denotes the
// legacy global scope consulted when no user-specific config matches.
type AccountConfig struct {
	ConfigID         string
	UserID           *string
	Email            string
	CredentialSecret string
	NotifyTarget     string
	Active           bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Key identifies the account within the scheduler and cursor store.
func (c *AccountConfig) Key() string {
	return ScopeKey(c.UserID) + "/" + c.Email
}

// ScopeKey renders a user scope as a stable string, empty for global.
func ScopeKey(userID *string) string {
	if userID == nil {
		return ""
	}
	return *userID
}

// InboundMessage is a raw message as returned by a mail source,
// before classification and timestamp normalization.
type InboundMessage struct {
	NativeID     string
	Sender       string
	RawTimestamp string
	Subject      string
	Text         string
}

// Message is a classified, stored message. Immutable after ingestion
// except for Status and Priority, which triage actions may update.
type Message struct {
	MessageID           string
	UserID              *string
	SourceAccount       string
	RawTimestamp        string
	NormalizedTimestamp time.Time
	Sender              string
	Text                string
	Emotion             Emotion
	Confidence          float64
	Priority            string
	Status              string
	CreatedAt           time.Time
}

// Classification is the outcome of one classifier call.
type Classification struct {
	Emotion     Emotion
	Confidence  float64
	Explanation string
	ModelUsed   string
	AnalyzedAt  time.Time
}

// TrendBucket is one hour of aggregated emotion counts. Derived on
// read from the message store, never persisted.
type TrendBucket struct {
	BucketStart time.Time
	Counts      map[Emotion]int
	Total       int
}

// Alert references a message whose classification crossed the
// configured negative-severity predicate. Its lifecycle is independent
// of the message's.
type Alert struct {
	AlertID   string
	MessageID string
	Severity  Severity
	Emotion   Emotion
	Status    AlertStatus
	CreatedAt time.Time
}

// DeriveMessageID computes the deterministic dedup key for a source
// message. Re-polling the same message always yields the same id, so
// ingestion is an idempotent upsert. When the source exposes no native
// id the identifying fields are hashed instead.
func DeriveMessageID(sourceAccount, nativeID, sender, rawTimestamp, text string) string {
	if nativeID != "" {
		return sourceAccount + ":" + nativeID
	}
	sum := sha256.Sum256([]byte(sender + "|" + rawTimestamp + "|" + text))
	return fmt.Sprintf("%s:h:%s", sourceAccount, hex.EncodeToString(sum[:16]))
}
