// Package config loads process settings from environment variables.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const minSecretLength = 32

var (
	ErrMissingSecret = errors.New("JWT_SECRET environment variable is required when DATABASE_URL is set")
	ErrShortSecret   = fmt.Errorf("JWT_SECRET must be at least %d characters long", minSecretLength)
)

type Config struct {
	ServiceName string
	Env         string
	LogLevel    string
	LogFile     string

	HTTPAddr    string
	CORSOrigins []string

	// DatabaseURL selects Postgres; empty means in-memory stores.
	DatabaseURL  string
	StoreTimeout time.Duration
	SeedCatalog  bool

	JWTSecret string
	// GeneratedSecret is set when JWTSecret was generated for a
	// development run.
	GeneratedSecret bool
	AccessTokenTTL  time.Duration

	// KafkaBrokers enables the cross-instance relay when non-empty.
	KafkaBrokers   []string
	KafkaTopic     string
	BroadcastQueue int
}

// Load reads the environment. It fails on malformed values and on a
// missing or short JWT secret when a database is configured.
func Load() (*Config, error) {
	cfg := &Config{
		ServiceName: getEnv("SERVICE_NAME", "webshop"),
		Env:         getEnv("ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFile:     os.Getenv("LOG_FILE"),
		HTTPAddr:    getEnv("HTTP_ADDR", ":3000"),
		CORSOrigins: splitList(getEnv("CORS_ORIGINS", "*")),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		KafkaTopic:  getEnv("KAFKA_TOPIC", "webshop-realtime"),
		JWTSecret:   os.Getenv("JWT_SECRET"),
	}
	cfg.KafkaBrokers = splitList(os.Getenv("KAFKA_BROKERS"))

	var err error
	if cfg.StoreTimeout, err = getDuration("STORE_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.AccessTokenTTL, err = getDuration("ACCESS_TOKEN_TTL", 15*time.Minute); err != nil {
		return nil, err
	}
	if cfg.BroadcastQueue, err = getInt("BROADCAST_QUEUE", 1024); err != nil {
		return nil, err
	}
	if cfg.SeedCatalog, err = getBool("SEED_CATALOG", true); err != nil {
		return nil, err
	}

	switch {
	case cfg.JWTSecret == "" && cfg.DatabaseURL != "":
		return nil, ErrMissingSecret
	case cfg.JWTSecret == "":
		cfg.JWTSecret, err = randomSecret()
		if err != nil {
			return nil, err
		}
		cfg.GeneratedSecret = true
	case len(cfg.JWTSecret) < minSecretLength:
		return nil, ErrShortSecret
	}

	return cfg, nil
}

// UsesDatabase reports whether Postgres-backed stores are configured.
func (c *Config) UsesDatabase() bool {
	return c.DatabaseURL != ""
}

// RelayEnabled reports whether messages are relayed through Kafka.
func (c *Config) RelayEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%s: invalid duration %q", key, v)
	}
	return d, nil
}

func getInt(key string, defaultValue int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s: invalid positive integer %q", key, v)
	}
	return n, nil
}

func getBool(key string, defaultValue bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: invalid boolean %q", key, v)
	}
	return b, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func randomSecret() (string, error) {
	b := make([]byte, minSecretLength)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate jwt secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}
