package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds application configuration (env + Viper).
type Config struct {
	Env          string
	Port         string
	DatabaseURL  string // empty keeps the in-memory repository
	RedisURL     string // empty keeps the in-process cache store
	LogLevel     string
	SeedDemoData bool

	APIBaseURL      string
	AuthToken       string
	ViewerID        int64
	PollInterval    time.Duration
	MinBidIncrement decimal.Decimal
	HTTPTimeout     time.Duration // 0 means no client-side timeout
}

// flagKeys maps command-line flag names onto config keys
var flagKeys = map[string]string{
	"api":       "API_BASE_URL",
	"viewer":    "VIEWER_ID",
	"token":     "AUTH_TOKEN",
	"redis":     "REDIS_URL",
	"interval":  "POLL_INTERVAL",
	"increment": "MIN_BID_INCREMENT",
	"log-level": "LOG_LEVEL",
}

// Load loads config from env and optional .env file. Flags present in fs
// that were set on the command line take precedence; fs may be nil.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig()

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	v.SetDefault("APP_ENV", "development")
	v.SetDefault("PORT", "8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("API_BASE_URL", "http://localhost:8080")
	v.SetDefault("POLL_INTERVAL", "3s")
	v.SetDefault("MIN_BID_INCREMENT", "10000")
	v.SetDefault("HTTP_TIMEOUT", "0s")

	if fs != nil {
		for name, key := range flagKeys {
			if f := fs.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	env := v.GetString("APP_ENV")
	v.SetDefault("SEED_DEMO_DATA", env == "development")

	increment, err := decimal.NewFromString(v.GetString("MIN_BID_INCREMENT"))
	if err != nil {
		return nil, fmt.Errorf("config: MIN_BID_INCREMENT: %w", err)
	}
	poll, err := time.ParseDuration(v.GetString("POLL_INTERVAL"))
	if err != nil {
		return nil, fmt.Errorf("config: POLL_INTERVAL: %w", err)
	}
	timeout, err := time.ParseDuration(v.GetString("HTTP_TIMEOUT"))
	if err != nil {
		return nil, fmt.Errorf("config: HTTP_TIMEOUT: %w", err)
	}

	return &Config{
		Env:             env,
		Port:            v.GetString("PORT"),
		DatabaseURL:     v.GetString("DATABASE_URL"),
		RedisURL:        v.GetString("REDIS_URL"),
		LogLevel:        v.GetString("LOG_LEVEL"),
		SeedDemoData:    v.GetBool("SEED_DEMO_DATA"),
		APIBaseURL:      strings.TrimRight(v.GetString("API_BASE_URL"), "/"),
		AuthToken:       v.GetString("AUTH_TOKEN"),
		ViewerID:        v.GetInt64("VIEWER_ID"),
		PollInterval:    poll,
		MinBidIncrement: increment,
		HTTPTimeout:     timeout,
	}, nil
}

// Addr returns the listen address for the backend
func (c *Config) Addr() string {
	return ":" + strings.TrimPrefix(c.Port, ":")
}
