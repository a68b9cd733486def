package core

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/AgamJK/sentinel-final/internal/metrics"
)

// ClassifierGateway wraps a classifier backend behind the stable
// contract the ingestion path relies on: every call is bounded by a
// timeout, and any failure degrades to the unknown label with zero
// confidence instead of propagating. Classification being down must
// never block ingestion.
type ClassifierGateway struct {
	backend  Classifier
	logger   *zap.Logger
	provider string
	timeout  time.Duration
}

// NewClassifierGateway creates a gateway around the given backend.
// provider names the backend in logs and metrics.
func NewClassifierGateway(backend Classifier, logger *zap.Logger, provider string, timeout time.Duration) *ClassifierGateway {
	return &ClassifierGateway{
		backend:  backend,
		logger:   logger,
		provider: provider,
		timeout:  timeout,
	}
}

// Classify scores text, degrading to unknown on timeout or error.
func (g *ClassifierGateway) Classify(ctx context.Context, text string) *Classification {
	cctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	started := time.Now()
	result, err := g.backend.Classify(cctx, text)
	if err != nil {
		metrics.ObserveClassifyLatency(g.provider, "error", time.Since(started))
		g.logger.Warn("Classification unavailable, storing message unscored",
			zap.Error(err))
		return &Classification{
			Emotion:    EmotionUnknown,
			Confidence: 0.0,
			AnalyzedAt: time.Now(),
		}
	}

	metrics.ObserveClassifyLatency(g.provider, "success", time.Since(started))

	// Enforce the closed vocabulary even against a misbehaving backend.
	result.Emotion = ParseEmotion(string(result.Emotion))
	return result
}
