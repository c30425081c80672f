package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

var ErrMissingVariable = errors.New("required environment variable not set")

type Config struct {
	Port           string
	DatabaseURL    string
	GatewayToken   string
	AllowedOrigins []string

	UniquenessPolicy   string
	BatchWorkers       int
	SettlementInterval time.Duration

	SyncServiceURL   string
	SyncServiceToken string
	SyncInterval     time.Duration

	R2 R2

	DrawTypeCatalog string
	LogLevel        string
	LogFormat       string
}

type R2 struct {
	AccountID       string
	AccessKeyID     string
	AccessKeySecret string
	Bucket          string
	CDNBaseURL      string
}

// Enabled reports whether report publishing has a bucket to write to.
func (r R2) Enabled() bool {
	return r.Bucket != ""
}

// Load reads .env when present, then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logrus.Warn("⚠️  No .env file found, reading environment variables directly")
	}
	return FromEnv()
}

// FromEnv builds the configuration from environment variables.
func FromEnv() (*Config, error) {
	cfg := &Config{
		Port:             getenv("PORT", "5200"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		GatewayToken:     os.Getenv("GATEWAY_TOKEN"),
		AllowedOrigins:   splitList(getenv("ALLOWED_ORIGINS", "http://localhost:3000")),
		UniquenessPolicy: getenv("UNIQUENESS_POLICY", "per_definition"),
		SyncServiceURL:   strings.TrimRight(os.Getenv("SYNC_SERVICE_URL"), "/"),
		SyncServiceToken: os.Getenv("SYNC_SERVICE_TOKEN"),
		R2: R2{
			AccountID:       os.Getenv("CLOUDFLARE_ACCOUNT_ID"),
			AccessKeyID:     os.Getenv("R2_ACCESS_KEY_ID"),
			AccessKeySecret: os.Getenv("R2_ACCESS_KEY_SECRET"),
			Bucket:          os.Getenv("R2_BUCKET_NAME"),
			CDNBaseURL:      os.Getenv("CDN_BASE_URL"),
		},
		DrawTypeCatalog: os.Getenv("DRAW_TYPE_CATALOG"),
		LogLevel:        getenv("LOG_LEVEL", "info"),
		LogFormat:       getenv("LOG_FORMAT", "text"),
	}

	var errs []error
	if cfg.DatabaseURL == "" {
		errs = append(errs, fmt.Errorf("%w: DATABASE_URL", ErrMissingVariable))
	}
	if cfg.GatewayToken == "" {
		errs = append(errs, fmt.Errorf("%w: GATEWAY_TOKEN", ErrMissingVariable))
	}

	var err error
	if cfg.BatchWorkers, err = intEnv("BATCH_WORKERS", 4); err != nil {
		errs = append(errs, err)
	}
	if cfg.SettlementInterval, err = durationEnv("SETTLEMENT_INTERVAL", time.Minute); err != nil {
		errs = append(errs, err)
	}
	if cfg.SyncInterval, err = durationEnv("SYNC_INTERVAL", time.Minute); err != nil {
		errs = append(errs, err)
	}
	if cfg.SyncServiceURL != "" && cfg.SyncServiceToken == "" {
		errs = append(errs, fmt.Errorf("%w: SYNC_SERVICE_TOKEN (SYNC_SERVICE_URL is set)", ErrMissingVariable))
	}
	if cfg.R2.Enabled() && (cfg.R2.AccountID == "" || cfg.R2.AccessKeyID == "" || cfg.R2.AccessKeySecret == "") {
		errs = append(errs, fmt.Errorf("%w: CLOUDFLARE_ACCOUNT_ID, R2_ACCESS_KEY_ID and R2_ACCESS_KEY_SECRET (R2_BUCKET_NAME is set)", ErrMissingVariable))
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

// ConfigureLogging applies LOG_LEVEL and LOG_FORMAT to the standard logrus logger.
func (c *Config) ConfigureLogging() error {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return err
	}
	logrus.SetLevel(level)
	if strings.EqualFold(c.LogFormat, "json") {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return nil
}

func getenv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func intEnv(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		return 0, fmt.Errorf("%s: want a positive integer, got %q", key, raw)
	}
	return v, nil
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("%s: want a positive duration, got %q", key, raw)
	}
	return v, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
