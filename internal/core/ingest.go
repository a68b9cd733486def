package core

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/AgamJK/sentinel-final/internal/metrics"
)

// IngestionService turns raw source messages into classified, stored
// records. Ingestion is idempotent: the message id is derived
// deterministically from the source message, and the store upsert is a
// no-op when the record already exists.
type IngestionService struct {
	gateway *ClassifierGateway
	store   MessageStore
	alerts  *AlertService
	logger  *zap.Logger
}

// NewIngestionService creates an ingestion service. alerts may be nil,
// in which case no alerting happens.
func NewIngestionService(
	gateway *ClassifierGateway,
	store MessageStore,
	alerts *AlertService,
	logger *zap.Logger,
) *IngestionService {
	return &IngestionService{
		gateway: gateway,
		store:   store,
		alerts:  alerts,
		logger:  logger,
	}
}

// Ingest classifies and stores one inbound message for an account.
// The returned bool reports whether a new record was inserted; a
// duplicate returns the existing record with inserted=false and no
// error. Only the store write can fail.
func (s *IngestionService) Ingest(ctx context.Context, account *AccountConfig, in *InboundMessage) (*Message, bool, error) {
	now := time.Now().UTC()
	messageID := DeriveMessageID(account.Email, in.NativeID, in.Sender, in.RawTimestamp, in.Text)

	text := in.Text
	if in.Subject != "" {
		text = in.Subject + "\n\n" + in.Text
	}

	result := s.gateway.Classify(ctx, text)

	normalized, parsed := NormalizeTimestamp(in.RawTimestamp, now)
	if !parsed {
		s.logger.Warn("Unparseable message timestamp, using ingestion time",
			zap.String("message_id", messageID),
			zap.String("raw_timestamp", in.RawTimestamp))
	}

	priority := PriorityNormal
	if s.alerts != nil && s.alerts.Matches(result.Emotion, result.Confidence) {
		priority = PriorityHigh
	}

	msg := &Message{
		MessageID:           messageID,
		UserID:              account.UserID,
		SourceAccount:       account.Email,
		RawTimestamp:        in.RawTimestamp,
		NormalizedTimestamp: normalized,
		Sender:              in.Sender,
		Text:                in.Text,
		Emotion:             result.Emotion,
		Confidence:          result.Confidence,
		Priority:            priority,
		Status:              MessageStatusNew,
		CreatedAt:           now,
	}

	stored, inserted, err := s.store.UpsertMessage(ctx, msg)
	if err != nil {
		metrics.IncrementMessagesIngested(account.Email, "failed")
		return nil, false, fmt.Errorf("failed to store message %s: %w", messageID, err)
	}

	if !inserted {
		// Re-poll of an already ingested message; resolved silently.
		s.logger.Debug("Duplicate ingestion skipped",
			zap.String("message_id", messageID))
		metrics.IncrementMessagesIngested(account.Email, "duplicate")
		return stored, false, nil
	}

	metrics.IncrementMessagesIngested(account.Email, "stored")
	s.logger.Debug("Message ingested",
		zap.String("message_id", messageID),
		zap.String("emotion", string(stored.Emotion)),
		zap.Float64("confidence", stored.Confidence))

	if s.alerts != nil {
		s.alerts.Observe(ctx, stored, account)
	}

	return stored, true, nil
}
