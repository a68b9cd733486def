package core

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/AgamJK/sentinel-final/internal/metrics"
)

// AlertService raises and triages alerts for negatively classified
// messages. Raising is best-effort relative to the ingestion path of
// record: a failed alert write is logged and dropped, never retried
// into the ingestion flow.
type AlertService struct {
	store       AlertStore
	notifier    Notifier
	logger      *zap.Logger
	negativeSet map[Emotion]bool
	threshold   float64
	severityMap map[Emotion]Severity
}

// NewAlertService creates an alert service. negative lists the emotions
// considered alertable, threshold is the minimum classifier confidence,
// and severityMap grades each emotion; emotions absent from the map
// default to medium. notifier may be nil.
func NewAlertService(
	store AlertStore,
	notifier Notifier,
	logger *zap.Logger,
	negative []Emotion,
	threshold float64,
	severityMap map[Emotion]Severity,
) *AlertService {
	set := make(map[Emotion]bool, len(negative))
	for _, e := range negative {
		set[e] = true
	}
	return &AlertService{
		store:       store,
		notifier:    notifier,
		logger:      logger,
		negativeSet: set,
		threshold:   threshold,
		severityMap: severityMap,
	}
}

// Matches reports whether a classification crosses the alert predicate.
func (s *AlertService) Matches(emotion Emotion, confidence float64) bool {
	return s.negativeSet[emotion] && confidence >= s.threshold
}

// SeverityFor maps an emotion label to an alert severity.
func (s *AlertService) SeverityFor(emotion Emotion) Severity {
	if sev, ok := s.severityMap[emotion]; ok {
		return sev
	}
	return SeverityMedium
}

// Observe inspects a freshly ingested message and raises an alert when
// the predicate fires. Errors are swallowed after logging.
func (s *AlertService) Observe(ctx context.Context, msg *Message, account *AccountConfig) *Alert {
	if !s.Matches(msg.Emotion, msg.Confidence) {
		return nil
	}

	alert := &Alert{
		AlertID:   uuid.NewString(),
		MessageID: msg.MessageID,
		Severity:  s.SeverityFor(msg.Emotion),
		Emotion:   msg.Emotion,
		Status:    AlertActive,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.store.CreateAlert(ctx, alert); err != nil {
		s.logger.Error("Failed to record alert",
			zap.String("message_id", msg.MessageID),
			zap.Error(err))
		return nil
	}

	metrics.IncrementAlertsRaised(string(alert.Severity))
	s.logger.Info("Alert raised",
		zap.String("alert_id", alert.AlertID),
		zap.String("message_id", msg.MessageID),
		zap.String("emotion", string(msg.Emotion)),
		zap.String("severity", string(alert.Severity)))

	if s.notifier != nil && account != nil && account.NotifyTarget != "" {
		if err := s.notifier.Notify(ctx, account.NotifyTarget, alert, msg); err != nil {
			s.logger.Warn("Alert notification failed",
				zap.String("alert_id", alert.AlertID),
				zap.Error(err))
		}
	}

	return alert
}

// ActiveAlerts lists alerts still awaiting triage.
func (s *AlertService) ActiveAlerts(ctx context.Context) ([]*Alert, error) {
	return s.store.ListActiveAlerts(ctx)
}

// Acknowledge marks an alert as seen by an operator.
func (s *AlertService) Acknowledge(ctx context.Context, alertID string) error {
	return s.store.UpdateAlertStatus(ctx, alertID, AlertAcknowledged)
}

// Resolve closes an alert.
func (s *AlertService) Resolve(ctx context.Context, alertID string) error {
	return s.store.UpdateAlertStatus(ctx, alertID, AlertResolved)
}
