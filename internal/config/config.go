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
	APIBaseURL    string
	WSURL         string
	Token         string
	EventID       string
	RedisURL      string
	AuthIssuerURL string
	LogLevel      string

	CacheTTL       time.Duration
	RequestTimeout time.Duration
	PingInterval   time.Duration
	BackoffBase    time.Duration
	BackoffMax     time.Duration
	TypingWindow   time.Duration
	TypingInterval time.Duration
	ReadDebounce   time.Duration
	PollInterval   time.Duration
	EventDuration  time.Duration
}

// fileConfig is the YAML overlay. Durations are strings like "30s".
type fileConfig struct {
	APIBaseURL     string `yaml:"api_base_url"`
	WSURL          string `yaml:"ws_url"`
	RedisURL       string `yaml:"redis_url"`
	AuthIssuerURL  string `yaml:"auth_issuer_url"`
	LogLevel       string `yaml:"log_level"`
	CacheTTL       string `yaml:"cache_ttl"`
	RequestTimeout string `yaml:"request_timeout"`
	PingInterval   string `yaml:"ping_interval"`
	BackoffBase    string `yaml:"backoff_base"`
	BackoffMax     string `yaml:"backoff_max"`
	TypingWindow   string `yaml:"typing_window"`
	TypingInterval string `yaml:"typing_interval"`
	ReadDebounce   string `yaml:"read_debounce"`
	PollInterval   string `yaml:"poll_interval"`
	EventDuration  string `yaml:"event_duration"`
}

func defaults() *Config {
	return &Config{
		APIBaseURL:     "http://localhost:3000",
		WSURL:          "ws://localhost:8080/ws",
		LogLevel:       "info",
		CacheTTL:       30 * time.Second,
		RequestTimeout: 10 * time.Second,
		PingInterval:   30 * time.Second,
		BackoffBase:    time.Second,
		BackoffMax:     30 * time.Second,
		TypingWindow:   3 * time.Second,
		TypingInterval: 2 * time.Second,
		ReadDebounce:   time.Second,
		PollInterval:   10 * time.Second,
		EventDuration:  2 * time.Hour,
	}
}

// Load builds the configuration from defaults, then the YAML file named by
// CHAT_CONFIG_FILE, then environment variables (a .env file is read first
// if present).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := defaults()
	if path := getEnv("CHAT_CONFIG_FILE", ""); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}

	cfg.APIBaseURL = getEnv("API_BASE_URL", cfg.APIBaseURL)
	cfg.WSURL = getEnv("WS_URL", cfg.WSURL)
	cfg.Token = getEnv("CHAT_TOKEN", cfg.Token)
	cfg.EventID = getEnv("EVENT_ID", cfg.EventID)
	cfg.RedisURL = getEnv("REDIS_URL", cfg.RedisURL)
	cfg.AuthIssuerURL = getEnv("AUTH_ISSUER_URL", cfg.AuthIssuerURL)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)

	cfg.CacheTTL = getEnvDuration("CACHE_TTL", cfg.CacheTTL)
	cfg.RequestTimeout = getEnvDuration("REQUEST_TIMEOUT", cfg.RequestTimeout)
	cfg.PingInterval = getEnvDuration("PING_INTERVAL", cfg.PingInterval)
	cfg.BackoffBase = getEnvDuration("BACKOFF_BASE", cfg.BackoffBase)
	cfg.BackoffMax = getEnvDuration("BACKOFF_MAX", cfg.BackoffMax)
	cfg.TypingWindow = getEnvDuration("TYPING_WINDOW", cfg.TypingWindow)
	cfg.TypingInterval = getEnvDuration("TYPING_INTERVAL", cfg.TypingInterval)
	cfg.ReadDebounce = getEnvDuration("READ_DEBOUNCE", cfg.ReadDebounce)
	cfg.PollInterval = getEnvDuration("POLL_INTERVAL", cfg.PollInterval)
	cfg.EventDuration = getEnvDuration("EVENT_DURATION", cfg.EventDuration)

	if cfg.BackoffMax < cfg.BackoffBase {
		return nil, fmt.Errorf("BACKOFF_MAX (%s) is below BACKOFF_BASE (%s)", cfg.BackoffMax, cfg.BackoffBase)
	}
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var raw fileConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}

	setString(&c.APIBaseURL, raw.APIBaseURL)
	setString(&c.WSURL, raw.WSURL)
	setString(&c.RedisURL, raw.RedisURL)
	setString(&c.AuthIssuerURL, raw.AuthIssuerURL)
	setString(&c.LogLevel, raw.LogLevel)

	durations := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"cache_ttl", raw.CacheTTL, &c.CacheTTL},
		{"request_timeout", raw.RequestTimeout, &c.RequestTimeout},
		{"ping_interval", raw.PingInterval, &c.PingInterval},
		{"backoff_base", raw.BackoffBase, &c.BackoffBase},
		{"backoff_max", raw.BackoffMax, &c.BackoffMax},
		{"typing_window", raw.TypingWindow, &c.TypingWindow},
		{"typing_interval", raw.TypingInterval, &c.TypingInterval},
		{"read_debounce", raw.ReadDebounce, &c.ReadDebounce},
		{"poll_interval", raw.PollInterval, &c.PollInterval},
		{"event_duration", raw.EventDuration, &c.EventDuration},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", d.name, err)
		}
		*d.dst = v
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

// getEnvDuration accepts Go durations ("1m30s") or plain milliseconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		if ms := getEnvInt(key, -1); ms >= 0 {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return fallback
}
