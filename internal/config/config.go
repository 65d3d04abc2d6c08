package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "GOODNOODLE"

// Config holds the configuration for the application.
type Config struct {
	Slack struct {
		SigningSecret string `mapstructure:"signing_secret"`
		ClientID      string `mapstructure:"client_id"`
		ClientSecret  string `mapstructure:"client_secret"`
		RedirectURL   string `mapstructure:"redirect_url"`
		StateSecret   string `mapstructure:"state_secret"`
		// BotToken is only used to resolve the bot's identity at startup.
		BotToken string `mapstructure:"bot_token"`
	} `mapstructure:"slack"`
	DatabaseURL string `mapstructure:"database_url"`
	Redis       struct {
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
	} `mapstructure:"redis"`
	Port    int `mapstructure:"port"`
	Gifting struct {
		WeeklyAllowance   int    `mapstructure:"weekly_allowance"`
		TokenMarker       string `mapstructure:"token_marker"`
		SuccessReaction   string `mapstructure:"success_reaction"`
		OverLimitReaction string `mapstructure:"over_limit_reaction"`
	} `mapstructure:"gifting"`
	Workers struct {
		Count        int           `mapstructure:"count"`
		QueueSize    int           `mapstructure:"queue_size"`
		EventTimeout time.Duration `mapstructure:"event_timeout"`
	} `mapstructure:"workers"`
	ReconcileInterval time.Duration `mapstructure:"reconcile_interval"`
	LogLevel          string        `mapstructure:"log_level"`
	Environment       string        `mapstructure:"environment"`
	OTLPEndpoint      string        `mapstructure:"otlp_endpoint"`
}

// env lists each key with the variables that may set it, first match wins.
var env = map[string][]string{
	"slack.signing_secret":        {"SLACK_SIGNING_SECRET"},
	"slack.client_id":             {"SLACK_CLIENT_ID", "CLIENT_ID"},
	"slack.client_secret":         {"SLACK_CLIENT_SECRET", "CLIENT_SECRET"},
	"slack.redirect_url":          {"SLACK_REDIRECT_URL"},
	"slack.state_secret":          {"STATE_SECRET"},
	"slack.bot_token":             {"SLACK_BOT_TOKEN"},
	"database_url":                {"DATABASE_URL"},
	"redis.addr":                  {"REDIS_ADDR"},
	"redis.password":              {"REDIS_PASSWORD"},
	"redis.db":                    {"REDIS_DB"},
	"port":                        {"PORT"},
	"gifting.weekly_allowance":    {"WEEKLY_ALLOWANCE"},
	"gifting.token_marker":        {"TOKEN_MARKER"},
	"gifting.success_reaction":    {"SUCCESS_REACTION"},
	"gifting.over_limit_reaction": {"OVER_LIMIT_REACTION"},
	"workers.count":               {"WORKER_COUNT"},
	"workers.queue_size":          {"QUEUE_SIZE"},
	"workers.event_timeout":       {"EVENT_TIMEOUT"},
	"reconcile_interval":          {"RECONCILE_INTERVAL"},
	"log_level":                   {"LOG_LEVEL"},
	"environment":                 {"ENVIRONMENT"},
	"otlp_endpoint":               {"OTEL_EXPORTER_OTLP_ENDPOINT"},
}

func setDefaults(v *viper.Viper) {
	for key := range env {
		v.SetDefault(key, "")
	}
	v.SetDefault("redis.db", 0)
	v.SetDefault("port", 3000)
	v.SetDefault("gifting.weekly_allowance", 5)
	v.SetDefault("gifting.token_marker", ":good-noodle:")
	v.SetDefault("gifting.success_reaction", "thumbsup")
	v.SetDefault("gifting.over_limit_reaction", "eyes")
	v.SetDefault("workers.count", 4)
	v.SetDefault("workers.queue_size", 256)
	v.SetDefault("workers.event_timeout", "10s")
	v.SetDefault("reconcile_interval", "10m")
	v.SetDefault("log_level", "info")
	v.SetDefault("environment", "development")
}

// Load reads .env (if present), then configFile or ./config.yaml (if present), then GOODNOODLE_* variables.
// PORT and OTEL_EXPORTER_OTLP_ENDPOINT are also read without the prefix.
func Load(configFile string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	for key, names := range env {
		vars := make([]string, 0, len(names)+1)
		for _, n := range names {
			vars = append(vars, envPrefix+"_"+n)
		}
		if key == "port" || key == "otlp_endpoint" {
			vars = append(vars, names[0])
		}
		if err := v.BindEnv(append([]string{key}, vars...)...); err != nil {
			return nil, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// OAuthEnabled reports whether the install flow is configured.
func (c *Config) OAuthEnabled() bool {
	return c.Slack.ClientID != ""
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []error
	missing := func(name, value string) {
		if strings.TrimSpace(value) == "" {
			errs = append(errs, fmt.Errorf("%s_%s is required", envPrefix, name))
		}
	}

	missing("SLACK_SIGNING_SECRET", c.Slack.SigningSecret)
	missing("DATABASE_URL", c.DatabaseURL)
	if c.OAuthEnabled() {
		missing("SLACK_CLIENT_SECRET", c.Slack.ClientSecret)
		missing("STATE_SECRET", c.Slack.StateSecret)
	}
	if c.Gifting.WeeklyAllowance <= 0 {
		errs = append(errs, fmt.Errorf("%s_WEEKLY_ALLOWANCE must be positive, got %d", envPrefix, c.Gifting.WeeklyAllowance))
	}
	if c.Gifting.TokenMarker == "" {
		errs = append(errs, fmt.Errorf("%s_TOKEN_MARKER must not be empty", envPrefix))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("%s_PORT is out of range: %d", envPrefix, c.Port))
	}
	if c.ReconcileInterval <= 0 {
		errs = append(errs, fmt.Errorf("%s_RECONCILE_INTERVAL must be positive", envPrefix))
	}
	if c.Workers.EventTimeout <= 0 {
		errs = append(errs, fmt.Errorf("%s_EVENT_TIMEOUT must be positive", envPrefix))
	}
	return errors.Join(errs...)
}
