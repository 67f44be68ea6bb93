package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	API           APIConfig           `mapstructure:"api"`
	Live          LiveConfig          `mapstructure:"live"`
	Poll          PollConfig          `mapstructure:"poll"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	Console       ConsoleConfig       `mapstructure:"console"`
	Logger        LoggerConfig        `mapstructure:"logger"`
}

type APIConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	Prefix     string        `mapstructure:"prefix"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
}

// Endpoint returns the root every REST path is appended to.
func (a *APIConfig) Endpoint() string {
	return strings.TrimRight(a.BaseURL, "/") + a.Prefix
}

type LiveConfig struct {
	BaseURL          string        `mapstructure:"base_url"`
	Path             string        `mapstructure:"path"`
	MaxAttempts      int           `mapstructure:"max_attempts"`
	BaseDelay        time.Duration `mapstructure:"base_delay"`
	MaxDelay         time.Duration `mapstructure:"max_delay"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
}

func (l *LiveConfig) URL() string {
	return strings.TrimRight(l.BaseURL, "/") + l.Path
}

type PollConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

type NotificationsConfig struct {
	DefaultDuration time.Duration `mapstructure:"default_duration"`
}

type ConsoleConfig struct {
	Host   string `mapstructure:"host"`
	Port   int    `mapstructure:"port"`
	APIKey string `mapstructure:"api_key"`
}

func (c *ConsoleConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type LoggerConfig struct {
	Level            string   `mapstructure:"level"`
	Encoding         string   `mapstructure:"encoding"`
	OutputPaths      []string `mapstructure:"output_paths"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.base_url", "http://localhost:8000")
	v.SetDefault("api.prefix", "/api/v1")
	v.SetDefault("api.timeout", 30*time.Second)
	v.SetDefault("api.max_retries", 3)
	v.SetDefault("api.retry_delay", 500*time.Millisecond)

	v.SetDefault("live.base_url", "ws://localhost:8000")
	v.SetDefault("live.path", "/ws/scraping")
	v.SetDefault("live.max_attempts", 5)
	v.SetDefault("live.base_delay", time.Second)
	v.SetDefault("live.max_delay", 10*time.Second)
	v.SetDefault("live.handshake_timeout", 10*time.Second)

	v.SetDefault("poll.interval", 5*time.Second)
	v.SetDefault("notifications.default_duration", 5*time.Second)

	v.SetDefault("console.host", "127.0.0.1")
	v.SetDefault("console.port", 8090)
	v.SetDefault("console.api_key", "")

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.encoding", "console")
	v.SetDefault("logger.output_paths", []string{"stderr"})
	v.SetDefault("logger.error_output_paths", []string{"stderr"})
}

// Load reads an optional .env file, the optional config file at path and
// SCRAPEDECK_* environment variables, in increasing order of precedence.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env file: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("SCRAPEDECK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// The web frontend's variable names keep working for existing .env files.
	_ = v.BindEnv("api.base_url", "SCRAPEDECK_API_BASE_URL", "VITE_API_BASE_URL")
	_ = v.BindEnv("live.base_url", "SCRAPEDECK_LIVE_BASE_URL", "VITE_WS_BASE_URL")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if err := validateURL("api.base_url", c.API.BaseURL, "http", "https"); err != nil {
		return err
	}
	if err := validateURL("live.base_url", c.Live.BaseURL, "ws", "wss"); err != nil {
		return err
	}
	if c.API.MaxRetries < 0 {
		return fmt.Errorf("api.max_retries must not be negative")
	}
	if c.Live.MaxAttempts <= 0 {
		return fmt.Errorf("live.max_attempts must be positive")
	}
	if c.Live.BaseDelay <= 0 || c.Live.MaxDelay < c.Live.BaseDelay {
		return fmt.Errorf("live.base_delay must be positive and not exceed live.max_delay")
	}
	if c.Poll.Interval <= 0 {
		return fmt.Errorf("poll.interval must be positive")
	}
	if c.Notifications.DefaultDuration <= 0 {
		return fmt.Errorf("notifications.default_duration must be positive")
	}
	return nil
}

func validateURL(key, raw string, schemes ...string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", key)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is invalid: %w", key, err)
	}
	for _, s := range schemes {
		if u.Scheme == s {
			return nil
		}
	}
	return fmt.Errorf("%s must use one of %v, got %q", key, schemes, u.Scheme)
}
