package config

import (
	"time"

	"github.com/AgamJK/sentinel-final/internal/core"
)

// BedrockConfig holds the configuration for the Amazon Bedrock classifier.
type BedrockConfig struct {
	Region      string
	ModelID     string
	MaxTokens   int
	Temperature float32
	TopP        float32
	MaxBodySize int
}

// GeminiConfig holds the configuration for the Google Gemini classifier.
type GeminiConfig struct {
	APIKey      string
	ModelName   string
	MaxTokens   int
	Temperature float32
	TopP        float32
	MaxBodySize int
}

// OpenAIConfig holds the configuration for the OpenAI classifier.
type OpenAIConfig struct {
	APIKey      string
	ModelName   string
	MaxTokens   int
	Temperature float32
	TopP        float32
	MaxBodySize int
}

// ClassifierConfig selects the classifier backend.
type ClassifierConfig struct {
	Provider string
	Timeout  time.Duration
}

// StoreConfig holds the persistence settings.
type StoreConfig struct {
	Type       string
	SQLitePath string
	MySQLDSN   string
}

// MonitorConfig holds the polling scheduler settings.
type MonitorConfig struct {
	PollInterval      time.Duration
	ReconcileInterval time.Duration
	MaxBackoff        time.Duration
	FetchTimeout      time.Duration
	OpTimeout         time.Duration
}

// MailSourceConfig holds the settings for the remote mailbox API.
type MailSourceConfig struct {
	Type     string
	BaseURL  string
	Timeout  time.Duration
	PageSize int
}

// SMTPConfig holds the settings for the push-ingestion SMTP listener.
type SMTPConfig struct {
	Enabled         bool
	ListenAddress   string
	Domain          string
	MaxMessageBytes int
}

// AlertConfig holds the alerting rules.
type AlertConfig struct {
	Enabled             bool
	NegativeEmotions    []core.Emotion
	ConfidenceThreshold float64
	SeverityMap         map[core.Emotion]core.Severity
}

// TelegramConfig holds the settings for the Telegram notifier.
type TelegramConfig struct {
	Enabled  bool
	BotToken string
	APIBase  string
	Timeout  time.Duration
}

// MetricsConfig holds the Prometheus exposition settings.
type MetricsConfig struct {
	Enabled       bool
	ListenAddress string
}

// LoggingConfig holds the logger settings.
type LoggingConfig struct {
	Level  string
	Format string
}

// GetBedrock returns the Bedrock configuration.
func (c *Config) GetBedrock() BedrockConfig {
	return BedrockConfig{
		Region:      c.GetString("bedrock.region"),
		ModelID:     c.GetString("bedrock.model_id"),
		MaxTokens:   c.GetInt("bedrock.max_tokens"),
		Temperature: float32(c.GetFloat64("bedrock.temperature")),
		TopP:        float32(c.GetFloat64("bedrock.top_p")),
		MaxBodySize: c.GetInt("bedrock.max_body_size"),
	}
}

// GetGemini returns the Gemini configuration.
func (c *Config) GetGemini() GeminiConfig {
	return GeminiConfig{
		APIKey:      c.GetString("gemini.api_key"),
		ModelName:   c.GetString("gemini.model_name"),
		MaxTokens:   c.GetInt("gemini.max_tokens"),
		Temperature: float32(c.GetFloat64("gemini.temperature")),
		TopP:        float32(c.GetFloat64("gemini.top_p")),
		MaxBodySize: c.GetInt("gemini.max_body_size"),
	}
}

// GetOpenAI returns the OpenAI configuration.
func (c *Config) GetOpenAI() OpenAIConfig {
	return OpenAIConfig{
		APIKey:      c.GetString("openai.api_key"),
		ModelName:   c.GetString("openai.model_name"),
		MaxTokens:   c.GetInt("openai.max_tokens"),
		Temperature: float32(c.GetFloat64("openai.temperature")),
		TopP:        float32(c.GetFloat64("openai.top_p")),
		MaxBodySize: c.GetInt("openai.max_body_size"),
	}
}

// GetClassifier returns the classifier selection configuration.
func (c *Config) GetClassifier() ClassifierConfig {
	return ClassifierConfig{
		Provider: c.GetString("classifier.provider"),
		Timeout:  c.durationOr("classifier.timeout", 15*time.Second),
	}
}

// GetStore returns the persistence configuration.
func (c *Config) GetStore() StoreConfig {
	return StoreConfig{
		Type:       c.GetString("store.type"),
		SQLitePath: c.GetString("store.sqlite_path"),
		MySQLDSN:   c.GetString("store.mysql_dsn"),
	}
}

// GetMonitor returns the polling scheduler configuration.
func (c *Config) GetMonitor() MonitorConfig {
	return MonitorConfig{
		PollInterval:      c.durationOr("monitor.poll_interval", time.Minute),
		ReconcileInterval: c.durationOr("monitor.reconcile_interval", 30*time.Second),
		MaxBackoff:        c.durationOr("monitor.max_backoff", 15*time.Minute),
		FetchTimeout:      c.durationOr("monitor.fetch_timeout", 30*time.Second),
		OpTimeout:         c.durationOr("monitor.op_timeout", 30*time.Second),
	}
}

// GetMailSource returns the mailbox API configuration.
func (c *Config) GetMailSource() MailSourceConfig {
	return MailSourceConfig{
		Type:     c.GetString("mailsource.type"),
		BaseURL:  c.GetString("mailsource.base_url"),
		Timeout:  c.durationOr("mailsource.timeout", 30*time.Second),
		PageSize: c.GetInt("mailsource.page_size"),
	}
}

// GetSMTP returns the SMTP listener configuration.
func (c *Config) GetSMTP() SMTPConfig {
	return SMTPConfig{
		Enabled:         c.GetBool("smtp.enabled"),
		ListenAddress:   c.GetString("smtp.listen_address"),
		Domain:          c.GetString("smtp.domain"),
		MaxMessageBytes: c.GetInt("smtp.max_message_bytes"),
	}
}

// GetAlerts returns the alerting configuration. Unparseable emotion or
// severity names are dropped rather than failing startup.
func (c *Config) GetAlerts() AlertConfig {
	var negative []core.Emotion
	for _, name := range c.GetStringSlice("alerts.negative_emotions") {
		if e := core.ParseEmotion(name); e != core.EmotionUnknown {
			negative = append(negative, e)
		}
	}

	severities := make(map[core.Emotion]core.Severity)
	for name, level := range c.GetStringMapString("alerts.severity_map") {
		e := core.ParseEmotion(name)
		if e == core.EmotionUnknown {
			continue
		}
		switch core.Severity(level) {
		case core.SeverityLow, core.SeverityMedium, core.SeverityHigh, core.SeverityCritical:
			severities[e] = core.Severity(level)
		}
	}

	return AlertConfig{
		Enabled:             c.GetBool("alerts.enabled"),
		NegativeEmotions:    negative,
		ConfidenceThreshold: c.GetFloat64("alerts.confidence_threshold"),
		SeverityMap:         severities,
	}
}

// GetTelegram returns the Telegram notifier configuration.
func (c *Config) GetTelegram() TelegramConfig {
	return TelegramConfig{
		Enabled:  c.GetBool("alerts.telegram.enabled"),
		BotToken: c.GetString("alerts.telegram.bot_token"),
		APIBase:  c.GetString("alerts.telegram.api_base"),
		Timeout:  c.durationOr("alerts.telegram.timeout", 10*time.Second),
	}
}

// GetMetrics returns the metrics exposition configuration.
func (c *Config) GetMetrics() MetricsConfig {
	return MetricsConfig{
		Enabled:       c.GetBool("metrics.enabled"),
		ListenAddress: c.GetString("metrics.listen_address"),
	}
}

// GetLogging returns the logger configuration.
func (c *Config) GetLogging() LoggingConfig {
	return LoggingConfig{
		Level:  c.GetString("logging.level"),
		Format: c.GetString("logging.format"),
	}
}

func (c *Config) durationOr(key string, fallback time.Duration) time.Duration {
	d, err := c.GetDuration(key)
	if err != nil {
		return fallback
	}
	return d
}
