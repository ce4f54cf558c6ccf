// Package config loads runtime settings from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Config is the full runtime configuration of the admin service.
type Config struct {
	Env            string
	Port           string
	DatabaseURL    string
	AllowedOrigins []string

	Session SessionConfig
	Storage StorageConfig
	Log     LogConfig

	SweepInterval time.Duration
}

// SessionConfig controls password hashing and session token issuance.
type SessionConfig struct {
	Secret     string
	TTL        time.Duration
	Issuer     string
	BcryptCost int
}

// StorageConfig describes the R2 bucket holding program logos.
type StorageConfig struct {
	AccountID       string
	AccessKeyID     string
	AccessKeySecret string
	Bucket          string
	Endpoint        string
	PresignTTL      time.Duration
}

// LogConfig controls the zap logger and optional file rotation.
type LogConfig struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// IsDevelopment reports whether raw error causes may be exposed to clients.
func (c *Config) IsDevelopment() bool {
	return c.Env == EnvDevelopment
}

// LoadDotEnv reads a .env file when one exists. A missing file is not an error.
func LoadDotEnv(paths ...string) error {
	if err := godotenv.Load(paths...); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

// Load reads the service configuration from environment variables.
// DATABASE_URL and SESSION_SECRET are required.
func Load() (*Config, error) {
	cfg := &Config{
		Env:         strings.ToLower(getEnvDefault("APP_ENV", EnvProduction)),
		Port:        getEnvDefault("PORT", "5200"),
		DatabaseURL: strings.TrimSpace(os.Getenv("DATABASE_URL")),
		Log: LogConfig{
			Level: getEnvDefault("LOG_LEVEL", "info"),
			File:  strings.TrimSpace(os.Getenv("LOG_FILE")),
		},
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	cfg.AllowedOrigins = splitList(getEnvDefault("ALLOWED_ORIGINS", "http://localhost:3000"))

	secret := strings.TrimSpace(os.Getenv("SESSION_SECRET"))
	if secret == "" {
		return nil, fmt.Errorf("SESSION_SECRET is required")
	}
	ttl, err := getDuration("SESSION_TTL", 30*24*time.Hour)
	if err != nil {
		return nil, err
	}
	cost, err := getInt("BCRYPT_COST", 12)
	if err != nil {
		return nil, err
	}
	cfg.Session = SessionConfig{
		Secret:     secret,
		TTL:        ttl,
		Issuer:     getEnvDefault("SESSION_ISSUER", "ffp-admin"),
		BcryptCost: cost,
	}

	presignTTL, err := getDuration("PRESIGN_TTL", time.Hour)
	if err != nil {
		return nil, err
	}
	cfg.Storage = StorageConfig{
		AccountID:       strings.TrimSpace(os.Getenv("R2_ACCOUNT_ID")),
		AccessKeyID:     strings.TrimSpace(os.Getenv("R2_ACCESS_KEY_ID")),
		AccessKeySecret: strings.TrimSpace(os.Getenv("R2_ACCESS_KEY_SECRET")),
		Bucket:          strings.TrimSpace(os.Getenv("R2_BUCKET_NAME")),
		Endpoint:        strings.TrimSpace(os.Getenv("R2_ENDPOINT")),
		PresignTTL:      presignTTL,
	}

	if cfg.SweepInterval, err = getDuration("SWEEP_INTERVAL", 10*time.Minute); err != nil {
		return nil, err
	}
	if cfg.Log.MaxSizeMB, err = getInt("LOG_MAX_SIZE_MB", 100); err != nil {
		return nil, err
	}
	if cfg.Log.MaxBackups, err = getInt("LOG_MAX_BACKUPS", 5); err != nil {
		return nil, err
	}
	if cfg.Log.MaxAgeDays, err = getInt("LOG_MAX_AGE_DAYS", 28); err != nil {
		return nil, err
	}

	return cfg, nil
}

// StorageEnabled reports whether enough R2 settings are present to build a client.
func (c StorageConfig) StorageEnabled() bool {
	return c.Bucket != "" && c.AccessKeyID != "" && c.AccessKeySecret != "" &&
		(c.Endpoint != "" || c.AccountID != "")
}

func getEnvDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, raw, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", key)
	}
	return d, nil
}

func getInt(key string, fallback int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, raw, err)
	}
	return n, nil
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
