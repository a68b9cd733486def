package di

import (
	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/AgamJK/sentinel-final/internal/adapters/notify"
	"github.com/AgamJK/sentinel-final/internal/adapters/smtpd"
	"github.com/AgamJK/sentinel-final/internal/config"
	"github.com/AgamJK/sentinel-final/internal/core"
	"github.com/AgamJK/sentinel-final/internal/factory"
	"github.com/AgamJK/sentinel-final/internal/logging"
	"github.com/AgamJK/sentinel-final/internal/monitor"
	"github.com/AgamJK/sentinel-final/internal/utils"
)

// BuildContainer creates and configures a dependency injection container
func BuildContainer() (*dig.Container, error) {
	container := dig.New()

	// Register configuration
	if err := container.Provide(config.New); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(logging.InitLogger); err != nil {
		return nil, err
	}

	// Register factories
	if err := container.Provide(factory.NewTextProcessorFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewClassifierFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewStoreFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewMailSourceFactory); err != nil {
		return nil, err
	}

	// Register text processor
	if err := container.Provide(func(f *factory.TextProcessorFactory) *utils.TextProcessor {
		return f.CreateTextProcessor()
	}); err != nil {
		return nil, err
	}

	// Register classifier backend
	if err := container.Provide(func(f *factory.ClassifierFactory) (core.Classifier, error) {
		return f.CreateClassifier()
	}); err != nil {
		return nil, err
	}

	// Register classifier gateway
	if err := container.Provide(func(backend core.Classifier, cfg *config.Config, logger *zap.Logger) *core.ClassifierGateway {
		classifierCfg := cfg.GetClassifier()
		return core.NewClassifierGateway(backend, logger, classifierCfg.Provider, classifierCfg.Timeout)
	}); err != nil {
		return nil, err
	}

	// Register store and its port views
	if err := container.Provide(func(f *factory.StoreFactory) (core.Store, error) {
		return f.CreateStore()
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(s core.Store) core.ConfigStore { return s }); err != nil {
		return nil, err
	}
	if err := container.Provide(func(s core.Store) core.MessageStore { return s }); err != nil {
		return nil, err
	}
	if err := container.Provide(func(s core.Store) core.AlertStore { return s }); err != nil {
		return nil, err
	}
	if err := container.Provide(func(s core.Store) core.CursorStore { return s }); err != nil {
		return nil, err
	}

	// Register mail source
	if err := container.Provide(func(f *factory.MailSourceFactory) (core.MailSource, error) {
		return f.CreateMailSource()
	}); err != nil {
		return nil, err
	}

	// Register notifier
	if err := container.Provide(func(cfg *config.Config, logger *zap.Logger) core.Notifier {
		telegramCfg := cfg.GetTelegram()
		if !telegramCfg.Enabled || telegramCfg.BotToken == "" {
			return nil
		}
		return notify.NewTelegramNotifier(telegramCfg.APIBase, telegramCfg.BotToken, telegramCfg.Timeout, logger)
	}); err != nil {
		return nil, err
	}

	// Register alert service
	if err := container.Provide(func(store core.AlertStore, notifier core.Notifier, cfg *config.Config, logger *zap.Logger) *core.AlertService {
		alertCfg := cfg.GetAlerts()
		if !alertCfg.Enabled {
			return nil
		}
		return core.NewAlertService(store, notifier, logger,
			alertCfg.NegativeEmotions, alertCfg.ConfidenceThreshold, alertCfg.SeverityMap)
	}); err != nil {
		return nil, err
	}

	// Register ingestion service
	if err := container.Provide(core.NewIngestionService); err != nil {
		return nil, err
	}

	// Register trend aggregator
	if err := container.Provide(core.NewTrendAggregator); err != nil {
		return nil, err
	}

	// Register scheduler options
	if err := container.Provide(func(cfg *config.Config) monitor.Options {
		monitorCfg := cfg.GetMonitor()
		return monitor.Options{
			PollInterval:      monitorCfg.PollInterval,
			ReconcileInterval: monitorCfg.ReconcileInterval,
			MaxBackoff:        monitorCfg.MaxBackoff,
			FetchTimeout:      monitorCfg.FetchTimeout,
			OpTimeout:         monitorCfg.OpTimeout,
		}
	}); err != nil {
		return nil, err
	}

	// Register scheduler
	if err := container.Provide(monitor.NewScheduler); err != nil {
		return nil, err
	}

	// Register SMTP ingestion server
	if err := container.Provide(func(ingest *core.IngestionService, configs core.ConfigStore, cfg *config.Config, logger *zap.Logger) *smtpd.Server {
		smtpCfg := cfg.GetSMTP()
		return smtpd.NewServer(ingest, configs, logger,
			smtpCfg.ListenAddress, smtpCfg.Domain, int64(smtpCfg.MaxMessageBytes))
	}); err != nil {
		return nil, err
	}

	return container, nil
}
