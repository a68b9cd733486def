package factory

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/AgamJK/sentinel-final/internal/adapters/mailsource"
	"github.com/AgamJK/sentinel-final/internal/config"
	"github.com/AgamJK/sentinel-final/internal/core"
)

// MailSourceFactory creates mail source backends
type MailSourceFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewMailSourceFactory creates a new mail source factory
func NewMailSourceFactory(cfg *config.Config, logger *zap.Logger) *MailSourceFactory {
	return &MailSourceFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateMailSource creates a mail source based on the configuration
func (f *MailSourceFactory) CreateMailSource() (core.MailSource, error) {
	srcCfg := f.cfg.GetMailSource()

	switch srcCfg.Type {
	case "rest":
		return mailsource.NewRESTMailSource(srcCfg.BaseURL, srcCfg.Timeout, srcCfg.PageSize, f.logger), nil
	default:
		return nil, fmt.Errorf("unsupported mail source type: %s", srcCfg.Type)
	}
}
