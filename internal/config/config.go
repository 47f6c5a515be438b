// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Price feed modes
const (
	PriceFeedStatic = "static"
	PriceFeedHTTP   = "http"
	PriceFeedStream = "stream"
)

// Store backends
const (
	StoreSQLite = "sqlite"
	StoreS3     = "s3"
	StoreMemory = "memory"
)

// Config holds application configuration
type Config struct {
	DataDir   string // Base directory for the state database (always absolute)
	LogLevel  string
	LogPretty bool
	Port      int
	DevMode   bool

	ScanSchedule    string  // cron spec for the recurring order scan
	ScanConcurrency int     // distinct orders executed at once within a scan
	InitialCash     float64 // opening cash balance when no ledger state is saved

	PriceFeed PriceFeedConfig
	Store     StoreConfig
}

// PriceFeedConfig selects and tunes the price feed
type PriceFeedConfig struct {
	Mode               string
	URL                string
	Timeout            time.Duration // bound on every price lookup
	MaxAge             time.Duration // stream quotes older than this are unavailable
	StalePriceFallback bool
	StaticPrices       string // "ID=price,ID=price" for static mode
}

// StoreConfig selects the durable store backend
type StoreConfig struct {
	Backend       string
	S3Bucket      string
	S3Prefix      string
	S3Region      string
	S3Endpoint    string
	S3AccessKeyID string
	S3SecretKey   string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("AUTOINVEST_DATA_DIR", "./data")

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	cfg := &Config{
		DataDir:         absDataDir,
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogPretty:       getEnvAsBool("LOG_PRETTY", true),
		Port:            getEnvAsInt("HTTP_PORT", 8080),
		DevMode:         getEnvAsBool("DEV_MODE", false),
		ScanSchedule:    getEnv("SCAN_SCHEDULE", "@every 1h"),
		ScanConcurrency: getEnvAsInt("SCAN_CONCURRENCY", 4),
		InitialCash:     getEnvAsFloat("INITIAL_CASH", 0),
		PriceFeed: PriceFeedConfig{
			Mode:               strings.ToLower(getEnv("PRICE_FEED_MODE", PriceFeedStatic)),
			URL:                getEnv("PRICE_FEED_URL", ""),
			Timeout:            getEnvAsDuration("PRICE_TIMEOUT", 10*time.Second),
			MaxAge:             getEnvAsDuration("PRICE_MAX_AGE", 5*time.Minute),
			StalePriceFallback: getEnvAsBool("STALE_PRICE_FALLBACK", false),
			StaticPrices:       getEnv("STATIC_PRICES", ""),
		},
		Store: StoreConfig{
			Backend:       strings.ToLower(getEnv("STORE_BACKEND", StoreSQLite)),
			S3Bucket:      getEnv("S3_BUCKET", ""),
			S3Prefix:      getEnv("S3_PREFIX", "autoinvest"),
			S3Region:      getEnv("S3_REGION", ""),
			S3Endpoint:    getEnv("S3_ENDPOINT", ""),
			S3AccessKeyID: getEnv("S3_ACCESS_KEY_ID", ""),
			S3SecretKey:   getEnv("S3_SECRET_ACCESS_KEY", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration is usable
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid HTTP_PORT %d", c.Port)
	}
	if strings.TrimSpace(c.ScanSchedule) == "" {
		return fmt.Errorf("SCAN_SCHEDULE must not be empty")
	}
	if c.ScanConcurrency < 1 {
		return fmt.Errorf("SCAN_CONCURRENCY must be at least 1, got %d", c.ScanConcurrency)
	}
	if c.InitialCash < 0 {
		return fmt.Errorf("INITIAL_CASH must not be negative")
	}

	if c.PriceFeed.Timeout <= 0 {
		return fmt.Errorf("PRICE_TIMEOUT must be positive")
	}
	switch c.PriceFeed.Mode {
	case PriceFeedStatic:
	case PriceFeedHTTP, PriceFeedStream:
		if c.PriceFeed.URL == "" {
			return fmt.Errorf("PRICE_FEED_URL is required for %s price feed", c.PriceFeed.Mode)
		}
		if c.PriceFeed.Mode == PriceFeedStream && c.PriceFeed.MaxAge <= 0 {
			return fmt.Errorf("PRICE_MAX_AGE must be positive")
		}
	default:
		return fmt.Errorf("unknown PRICE_FEED_MODE %q", c.PriceFeed.Mode)
	}

	switch c.Store.Backend {
	case StoreSQLite, StoreMemory:
	case StoreS3:
		if c.Store.S3Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required for s3 store")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.Store.Backend)
	}

	return nil
}

// StatePath is the SQLite state database location
func (c *Config) StatePath() string {
	return filepath.Join(c.DataDir, "state.db")
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
