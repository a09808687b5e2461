// Package config provides configuration loading and validation for the CLI.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config represents the CLI configuration that can be loaded from a YAML file.
// All fields are optional; missing values use defaults, env vars or CLI flags.
type Config struct {
	DatabaseURL string `yaml:"database_url,omitempty"` // PostgreSQL connection URL
	ReportsDir  string `yaml:"reports_dir,omitempty"`  // Directory for markdown run reports
	Verbose     bool   `yaml:"verbose,omitempty"`      // Print detailed debug information

	Site          SiteConfig          `yaml:"site"`
	SearchConsole SearchConsoleConfig `yaml:"search_console"`
	LLM           LLMConfig           `yaml:"llm"`
	Notifications NotificationConfig  `yaml:"notifications"`
	Lock          LockConfig          `yaml:"lock"`
	Log           LogConfig           `yaml:"log"`
	Thresholds    Thresholds          `yaml:"thresholds"`
}

// SiteConfig holds WordPress REST API access.
type SiteConfig struct {
	URL             string  `yaml:"url,omitempty"`
	User            string  `yaml:"user,omitempty"`
	AppPassword     string  `yaml:"app_password,omitempty"`
	UseRankMathMeta bool    `yaml:"use_rank_math_meta,omitempty"` // write titles to rank_math_title instead of post title
	RequestsPerSec  float64 `yaml:"requests_per_sec,omitempty"`
}

// SearchConsoleConfig holds Google Search Console access.
type SearchConsoleConfig struct {
	SiteURL         string `yaml:"site_url,omitempty"`         // e.g. sc-domain:example.com
	CredentialsFile string `yaml:"credentials_file,omitempty"` // service account or OAuth client JSON
	TokenFile       string `yaml:"token_file,omitempty"`       // stored OAuth token for installed-app credentials
}

// LLMConfig holds ideation model settings.
type LLMConfig struct {
	APIKey        string  `yaml:"api_key,omitempty"`
	Model         string  `yaml:"model,omitempty"`
	RequestsPerMn int     `yaml:"requests_per_minute,omitempty"`
	VariantCount  int     `yaml:"variant_count,omitempty"`
	Temperature   float32 `yaml:"temperature,omitempty"`
}

// NotificationConfig holds Slack and email delivery settings.
type NotificationConfig struct {
	SlackWebhookURL string `yaml:"slack_webhook_url,omitempty"`
	SMTPHost        string `yaml:"smtp_host,omitempty"`
	SMTPPort        int    `yaml:"smtp_port,omitempty"`
	SMTPUser        string `yaml:"smtp_user,omitempty"`
	SMTPPassword    string `yaml:"smtp_password,omitempty"`
	Email           string `yaml:"email,omitempty"`
}

// LockConfig selects the single-flight guard used around scheduled runs.
type LockConfig struct {
	RedisURL   string `yaml:"redis_url,omitempty"`
	TTLMinutes int    `yaml:"ttl_minutes,omitempty"`
	Disabled   bool   `yaml:"disabled,omitempty"`
}

// LogConfig controls logrus output.
type LogConfig struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"` // "text" or "json"
	File   string `yaml:"file,omitempty"`
}

// LoadConfig loads configuration from a YAML file.
// Returns an error if the file cannot be read or parsed.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	// Resolve path relative to current directory if not absolute
	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}

	return &cfg, nil
}

// ApplyEnv fills empty fields from environment variables.
// Values already present in the config file win over the environment.
func (c *Config) ApplyEnv() {
	setIfEmpty(&c.DatabaseURL, "DATABASE_URL")
	setIfEmpty(&c.ReportsDir, "REPORTS_DIR")

	setIfEmpty(&c.Site.URL, "WP_SITE_URL")
	setIfEmpty(&c.Site.User, "WP_USER")
	setIfEmpty(&c.Site.AppPassword, "WP_APP_PASSWORD")

	setIfEmpty(&c.SearchConsole.SiteURL, "GSC_SITE_URL")
	setIfEmpty(&c.SearchConsole.CredentialsFile, "GSC_CREDENTIALS_FILE")
	setIfEmpty(&c.SearchConsole.TokenFile, "GSC_TOKEN_FILE")

	setIfEmpty(&c.LLM.APIKey, "GEMINI_API_KEY")

	setIfEmpty(&c.Notifications.SlackWebhookURL, "SLACK_WEBHOOK_URL")
	setIfEmpty(&c.Notifications.SMTPHost, "SMTP_HOST")
	setIfEmpty(&c.Notifications.SMTPUser, "SMTP_USER")
	setIfEmpty(&c.Notifications.SMTPPassword, "SMTP_PASSWORD")
	setIfEmpty(&c.Notifications.Email, "NOTIFICATION_EMAIL")
	if c.Notifications.SMTPPort == 0 {
		if port, err := strconv.Atoi(os.Getenv("SMTP_PORT")); err == nil {
			c.Notifications.SMTPPort = port
		}
	}

	setIfEmpty(&c.Lock.RedisURL, "REDIS_URL")
	setIfEmpty(&c.Log.Level, "LOG_LEVEL")
}

func setIfEmpty(field *string, env string) {
	if *field == "" {
		*field = os.Getenv(env)
	}
}

// Validate checks that the configuration has valid values.
// Note: This doesn't check for credentials since each subcommand needs a different subset.
func (c *Config) Validate() error {
	if c.Notifications.SMTPPort < 0 {
		return fmt.Errorf("config error: 'notifications.smtp_port' must be non-negative")
	}
	if c.LLM.RequestsPerMn < 0 {
		return fmt.Errorf("config error: 'llm.requests_per_minute' must be non-negative")
	}
	if c.LLM.VariantCount < 0 {
		return fmt.Errorf("config error: 'llm.variant_count' must be non-negative")
	}
	if c.Log.Format != "" && c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("config error: 'log.format' must be text or json")
	}
	if c.SearchConsole.CredentialsFile != "" {
		if _, err := os.Stat(c.SearchConsole.CredentialsFile); os.IsNotExist(err) {
			return fmt.Errorf("config error: credentials file not found: %s", c.SearchConsole.CredentialsFile)
		}
	}
	if err := c.Thresholds.Validate(); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	return nil
}

// MergeWithDefaults returns a new Config with empty fields filled from defaults.
// This is used to apply built-in values beneath the config file and CLI flags.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	// String fields: use default if empty
	if result.ReportsDir == "" {
		result.ReportsDir = defaults.ReportsDir
	}
	if result.LLM.Model == "" {
		result.LLM.Model = defaults.LLM.Model
	}
	if result.Log.Level == "" {
		result.Log.Level = defaults.Log.Level
	}
	if result.Log.Format == "" {
		result.Log.Format = defaults.Log.Format
	}

	// Int fields: use default if zero
	if result.LLM.RequestsPerMn == 0 {
		result.LLM.RequestsPerMn = defaults.LLM.RequestsPerMn
	}
	if result.LLM.VariantCount == 0 {
		result.LLM.VariantCount = defaults.LLM.VariantCount
	}
	if result.Notifications.SMTPPort == 0 {
		result.Notifications.SMTPPort = defaults.Notifications.SMTPPort
	}
	if result.Lock.TTLMinutes == 0 {
		result.Lock.TTLMinutes = defaults.Lock.TTLMinutes
	}

	// Float fields
	if result.LLM.Temperature == 0 {
		result.LLM.Temperature = defaults.LLM.Temperature
	}
	if result.Site.RequestsPerSec == 0 {
		result.Site.RequestsPerSec = defaults.Site.RequestsPerSec
	}

	result.Thresholds = result.Thresholds.MergeWithDefaults(defaults.Thresholds)

	// Bool fields: cannot distinguish unset from false, so we don't merge
	// (CLI flags should always win for bools)

	return result
}

// Defaults returns the built-in configuration values.
func Defaults() Config {
	return Config{
		ReportsDir: "reports",
		LLM: LLMConfig{
			Model:         "gemini-2.5-flash",
			RequestsPerMn: 30,
			VariantCount:  5,
			Temperature:   0.7,
		},
		Site: SiteConfig{
			RequestsPerSec: 2,
		},
		Notifications: NotificationConfig{
			SMTPPort: 587,
		},
		Lock: LockConfig{
			TTLMinutes: 120,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Thresholds: DefaultThresholds(),
	}
}
