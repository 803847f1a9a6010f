package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the complete runtime configuration
type Config struct {
	HTTP        HTTPConfig        `mapstructure:"http"`
	PocketBase  PocketBaseConfig  `mapstructure:"pocketbase"`
	Telegram    TelegramConfig    `mapstructure:"telegram"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Pipeline    PipelineConfig    `mapstructure:"pipeline"`
	Directory   DirectoryConfig   `mapstructure:"directory"`
	Retry       RetryConfig       `mapstructure:"retry"`
	Evaluator   EvaluatorConfig   `mapstructure:"evaluator"`
	Dispatcher  DispatcherConfig  `mapstructure:"dispatcher"`
	MQTT        MQTTConfig        `mapstructure:"mqtt"`
	Notify      NotifyConfig      `mapstructure:"notify"`
	Recognition RecognitionConfig `mapstructure:"recognition"`
	Log         LogConfig         `mapstructure:"log"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

type PocketBaseConfig struct {
	URL   string `mapstructure:"url"`   // PocketBase server URL (e.g., http://192.168.100.100:8090)
	Token string `mapstructure:"token"` // Auth token for API access
}

type TelegramConfig struct {
	BotToken         string `mapstructure:"bot_token"`
	AuthorizedChatID string `mapstructure:"authorized_chat_id"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// PipelineConfig holds attendance policy. All of it is policy, not mechanism.
type PipelineConfig struct {
	ConfidenceThreshold     float64       `mapstructure:"confidence_threshold"`
	ClockSkewTolerance      time.Duration `mapstructure:"clock_skew_tolerance"`
	GracePeriod             time.Duration `mapstructure:"grace_period"`
	ShiftMatchTolerance     time.Duration `mapstructure:"shift_match_tolerance"`
	EarlyDepartureThreshold time.Duration `mapstructure:"early_departure_threshold"`
	ClosingDelay            time.Duration `mapstructure:"closing_delay"`
	Timezone                string        `mapstructure:"timezone"`
}

// Location resolves the configured timezone
func (p PipelineConfig) Location() (*time.Location, error) {
	if p.Timezone == "" || strings.EqualFold(p.Timezone, "local") {
		return time.Local, nil
	}
	return time.LoadLocation(p.Timezone)
}

type DirectoryConfig struct {
	Timeout  time.Duration `mapstructure:"timeout"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
	File     string        `mapstructure:"file"` // YAML export used instead of PocketBase when set
}

type RetryConfig struct {
	QueueSize       int           `mapstructure:"queue_size"`
	Workers         int           `mapstructure:"workers"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	MaxAttempts     int           `mapstructure:"max_attempts"`
}

type EvaluatorConfig struct {
	Interval     time.Duration `mapstructure:"interval"`
	LookbackDays int           `mapstructure:"lookback_days"`
}

type DispatcherConfig struct {
	Interval  time.Duration `mapstructure:"interval"`
	BatchSize int           `mapstructure:"batch_size"`
}

type MQTTConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Broker         string `mapstructure:"broker"`
	ClientID       string `mapstructure:"client_id"`
	Username       string `mapstructure:"username"`
	Password       string `mapstructure:"password"`
	DetectionTopic string `mapstructure:"detection_topic"`
	AlertTopic     string `mapstructure:"alert_topic"`
	FeedTopic      string `mapstructure:"feed_topic"`
}

type NotifyConfig struct {
	ShoutrrrURLs []string      `mapstructure:"shoutrrr_urls"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

type RecognitionConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	JSON       bool   `mapstructure:"json"`
	File       string `mapstructure:"file"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// setDefaults registers every key so environment overrides resolve during Unmarshal
func setDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":8080")

	v.SetDefault("pocketbase.url", "http://192.168.100.100:8090") // Default external server
	v.SetDefault("pocketbase.token", "")

	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.authorized_chat_id", "")

	v.SetDefault("database.path", "data/attendance.db")

	v.SetDefault("pipeline.confidence_threshold", 0.75)
	v.SetDefault("pipeline.clock_skew_tolerance", 5*time.Minute)
	v.SetDefault("pipeline.grace_period", 10*time.Minute)
	v.SetDefault("pipeline.shift_match_tolerance", 2*time.Hour)
	v.SetDefault("pipeline.early_departure_threshold", 30*time.Minute)
	v.SetDefault("pipeline.closing_delay", 2*time.Hour)
	v.SetDefault("pipeline.timezone", "Local")

	v.SetDefault("directory.timeout", 3*time.Second)
	v.SetDefault("directory.cache_ttl", 5*time.Minute)
	v.SetDefault("directory.file", "")

	v.SetDefault("retry.queue_size", 1000)
	v.SetDefault("retry.workers", 2)
	v.SetDefault("retry.initial_interval", time.Second)
	v.SetDefault("retry.max_interval", time.Minute)
	v.SetDefault("retry.max_attempts", 8)

	v.SetDefault("evaluator.interval", time.Hour)
	v.SetDefault("evaluator.lookback_days", 2)

	v.SetDefault("dispatcher.interval", 15*time.Second)
	v.SetDefault("dispatcher.batch_size", 50)

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.client_id", "face-attendance")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.detection_topic", "attendance/detections/+")
	v.SetDefault("mqtt.alert_topic", "attendance/alerts")
	v.SetDefault("mqtt.feed_topic", "attendance/records")

	v.SetDefault("notify.shoutrrr_urls", []string{})
	v.SetDefault("notify.timeout", 10*time.Second)

	v.SetDefault("recognition.url", "")
	v.SetDefault("recognition.timeout", 5*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 10)
	v.SetDefault("log.max_age", 30)
	v.SetDefault("log.compress", false)
}

// New returns a viper instance with defaults, config file search paths and env binding.
// POCKETBASE_URL, TELEGRAM_BOT_TOKEN and friends map onto the dotted keys.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.face-attendance")
	v.AddConfigPath("/etc/face-attendance")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// LoadConfig reads .env, the optional config file and the environment
func LoadConfig() (*Config, error) {
	// A missing .env is normal outside development
	_ = godotenv.Load()

	v := New()
	return Load(v)
}

// Load reads the config file registered on v (if any) and decodes the result
func Load(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error decoding config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks policy values for consistency
func (c *Config) Validate() error {
	var errs []error

	p := c.Pipeline
	if p.ConfidenceThreshold < 0 || p.ConfidenceThreshold > 1 {
		errs = append(errs, fmt.Errorf("pipeline.confidence_threshold must be within [0,1], got %v", p.ConfidenceThreshold))
	}
	if p.ClockSkewTolerance <= 0 {
		errs = append(errs, errors.New("pipeline.clock_skew_tolerance must be positive"))
	}
	if p.GracePeriod < 0 {
		errs = append(errs, errors.New("pipeline.grace_period must not be negative"))
	}
	if p.ShiftMatchTolerance < 0 {
		errs = append(errs, errors.New("pipeline.shift_match_tolerance must not be negative"))
	}
	if p.ClosingDelay < 0 {
		errs = append(errs, errors.New("pipeline.closing_delay must not be negative"))
	}
	if _, err := p.Location(); err != nil {
		errs = append(errs, fmt.Errorf("pipeline.timezone: %w", err))
	}
	if c.Retry.QueueSize <= 0 {
		errs = append(errs, errors.New("retry.queue_size must be positive"))
	}
	if c.Retry.Workers <= 0 {
		errs = append(errs, errors.New("retry.workers must be positive"))
	}
	if c.Retry.MaxAttempts <= 0 {
		errs = append(errs, errors.New("retry.max_attempts must be positive"))
	}
	if c.Evaluator.Interval <= 0 {
		errs = append(errs, errors.New("evaluator.interval must be positive"))
	}
	if c.Evaluator.LookbackDays < 0 {
		errs = append(errs, errors.New("evaluator.lookback_days must not be negative"))
	}
	if c.Directory.Timeout <= 0 {
		errs = append(errs, errors.New("directory.timeout must be positive"))
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		errs = append(errs, errors.New("mqtt.broker is required when mqtt is enabled"))
	}

	return errors.Join(errs...)
}
