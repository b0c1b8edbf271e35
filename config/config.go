// Package config loads process settings from .env, the environment and an
// optional YAML overlay (TRIPY_CONFIG).
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Port     string `yaml:"port"`
	DevMode  bool   `yaml:"dev_mode"`
	LogLevel string `yaml:"log_level"`
	BaseURL  string `yaml:"base_url"`

	MongoURI      string `yaml:"mongo_uri"`
	MongoDatabase string `yaml:"mongo_database"`
	RedisURL      string `yaml:"redis_url"`

	OpenAIKey   string `yaml:"-"`
	OpenAIModel string `yaml:"openai_model"`
	MapsAPIKey  string `yaml:"-"`
	JWTSecret   string `yaml:"-"`

	Generation Generation `yaml:"generation"`
	Places     Places     `yaml:"places"`
	Assembly   Assembly   `yaml:"assembly"`
	Chat       Chat       `yaml:"chat"`
	Limits     Limits     `yaml:"limits"`
}

// Generation tunes the schema contract layer.
type Generation struct {
	RepairRetries    int           `yaml:"repair_retries"`
	TransportRetries int           `yaml:"transport_retries"`
	BackoffInitial   time.Duration `yaml:"backoff_initial"`
	BackoffMax       time.Duration `yaml:"backoff_max"`
	CallTimeout      time.Duration `yaml:"call_timeout"`
}

type Places struct {
	CacheTTL        time.Duration `yaml:"cache_ttl"`
	CacheMaxEntries int           `yaml:"cache_max_entries"`
	SearchRadiusM   uint          `yaml:"search_radius_m"`
}

type Assembly struct {
	EnrichmentWorkers int     `yaml:"enrichment_workers"`
	BudgetTolerance   float64 `yaml:"budget_tolerance"`
	CeilingSlack      float64 `yaml:"ceiling_slack"`
	SuggestionLimit   int     `yaml:"suggestion_limit"`
}

type Chat struct {
	HistoryPairs      int           `yaml:"history_pairs"`
	RateLimitMessages int           `yaml:"rate_limit_messages"`
	RateLimitWindow   time.Duration `yaml:"rate_limit_window"`
	IdleTimeout       time.Duration `yaml:"idle_timeout"`
	AuthTimeout       time.Duration `yaml:"auth_timeout"`
	ReplyTimeout      time.Duration `yaml:"reply_timeout"`
}

// Limits are the TripRequest boundary rules.
type Limits struct {
	MaxTripDays  int     `yaml:"max_trip_days"`
	MaxGroupSize int     `yaml:"max_group_size"`
	MinBudget    float64 `yaml:"min_budget"`
	MaxBudget    float64 `yaml:"max_budget"`
}

func Default() Config {
	return Config{
		Port:          ":8080",
		LogLevel:      "info",
		BaseURL:       "http://localhost:8080",
		MongoURI:      "mongodb://localhost:27017",
		MongoDatabase: "tripy",
		RedisURL:      "redis://localhost:6379/0",
		OpenAIModel:   "gpt-4o-mini",
		Generation: Generation{
			RepairRetries:    1,
			TransportRetries: 3,
			BackoffInitial:   250 * time.Millisecond,
			BackoffMax:       4 * time.Second,
			CallTimeout:      90 * time.Second,
		},
		Places: Places{
			CacheTTL:        time.Hour,
			CacheMaxEntries: 2000,
			SearchRadiusM:   5000,
		},
		Assembly: Assembly{
			EnrichmentWorkers: 8,
			BudgetTolerance:   0.01,
			CeilingSlack:      0.25,
			SuggestionLimit:   8,
		},
		Chat: Chat{
			HistoryPairs:      10,
			RateLimitMessages: 10,
			RateLimitWindow:   time.Minute,
			IdleTimeout:       5 * time.Minute,
			AuthTimeout:       10 * time.Second,
			ReplyTimeout:      60 * time.Second,
		},
		Limits: Limits{
			MaxTripDays:  30,
			MaxGroupSize: 20,
			MinBudget:    100,
			MaxBudget:    100000,
		},
	}
}

// Load builds the process configuration. A missing .env file is not an error.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path := os.Getenv("TRIPY_CONFIG"); path != "" {
		if err := cfg.overlay(path); err != nil {
			return cfg, err
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) overlay(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config overlay: %w", err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("parse config overlay %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	if port := os.Getenv("PORT"); port != "" {
		if port[0] != ':' {
			port = ":" + port
		}
		c.Port = port
	}
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.BaseURL, "BASE_URL")
	setString(&c.MongoURI, "MONGO_URI")
	setString(&c.MongoDatabase, "MONGO_DB")
	setString(&c.RedisURL, "REDIS_URL")
	setString(&c.OpenAIKey, "OPENAI_API_KEY")
	setString(&c.OpenAIModel, "OPENAI_MODEL")
	setString(&c.MapsAPIKey, "GOOGLE_MAPS_API_KEY")
	setString(&c.JWTSecret, "JWT_SECRET")
	if v, err := strconv.ParseBool(os.Getenv("DEV_MODE")); err == nil {
		c.DevMode = v
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// Validate rejects settings the core cannot run with.
func (c Config) Validate() error {
	switch {
	case c.Generation.RepairRetries < 0:
		return fmt.Errorf("generation.repair_retries must be >= 0")
	case c.Generation.TransportRetries < 0:
		return fmt.Errorf("generation.transport_retries must be >= 0")
	case c.Assembly.EnrichmentWorkers < 1:
		return fmt.Errorf("assembly.enrichment_workers must be >= 1")
	case c.Assembly.BudgetTolerance <= 0:
		return fmt.Errorf("assembly.budget_tolerance must be > 0")
	case c.Chat.HistoryPairs < 1:
		return fmt.Errorf("chat.history_pairs must be >= 1")
	case c.Chat.RateLimitMessages < 1 || c.Chat.RateLimitWindow <= 0:
		return fmt.Errorf("chat rate limit must allow at least one message per positive window")
	case c.Chat.IdleTimeout <= 0:
		return fmt.Errorf("chat.idle_timeout must be > 0")
	}
	return nil
}
