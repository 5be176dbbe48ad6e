// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/aristath/lpsentinel/internal/cache"
	"github.com/joho/godotenv"
)

// Market data sources
const (
	MarketDataStatic  = "static"
	MarketDataHistory = "history"
)

// Config holds application configuration
type Config struct {
	DataDir    string // Base directory for the SQLite databases (always absolute)
	LogLevel   string
	LogPretty  bool
	Port       int
	DevMode    bool
	TuningFile string // Optional YAML engine tuning
	Tuning     Tuning

	CORSOrigins []string
	MarketData  string // "static" or "history"
	RiskFree    float64

	Monitor MonitorConfig
	Cache   CacheConfig
}

// MonitorConfig controls the background monitoring loop
type MonitorConfig struct {
	IntervalMinutes int
	OwnerKey        string   // Start monitoring this owner on boot when set
	ConfigIDs       []string // Rebalancing configurations evaluated each cycle
	PriceRetention  int      // Days of token price history to keep
}

// CacheConfig holds the result cache TTLs
type CacheConfig struct {
	CorrelationTTL  time.Duration
	OptimizationTTL time.Duration
	AnalysisTTL     time.Duration
	CleanupSchedule string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	// 1. Resolve the data directory to an absolute path and make sure it exists
	dataDir := getEnv("LPS_DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	// 2. Environment settings
	cfg := &Config{
		DataDir:     absDataDir,
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogPretty:   getEnvAsBool("LOG_PRETTY", false),
		Port:        getEnvAsInt("LPS_PORT", 8080),
		DevMode:     getEnvAsBool("DEV_MODE", false),
		TuningFile:  getEnv("LPS_TUNING_FILE", ""),
		CORSOrigins: getEnvAsList("LPS_CORS_ORIGINS", []string{"*"}),
		MarketData:  strings.ToLower(getEnv("LPS_MARKET_DATA", MarketDataStatic)),
		RiskFree:    getEnvAsFloat("LPS_RISK_FREE_RATE", 0.04),
		Monitor: MonitorConfig{
			IntervalMinutes: getEnvAsInt("LPS_MONITOR_INTERVAL_MINUTES", 5),
			OwnerKey:        getEnv("LPS_MONITOR_OWNER", ""),
			ConfigIDs:       getEnvAsList("LPS_MONITOR_CONFIGS", []string{"default"}),
			PriceRetention:  getEnvAsInt("LPS_PRICE_RETENTION_DAYS", 365),
		},
		Cache: CacheConfig{
			CorrelationTTL:  getEnvAsDuration("LPS_CACHE_CORRELATION_TTL", cache.TTLCorrelation),
			OptimizationTTL: getEnvAsDuration("LPS_CACHE_OPTIMIZATION_TTL", cache.TTLOptimization),
			AnalysisTTL:     getEnvAsDuration("LPS_CACHE_ANALYSIS_TTL", cache.TTLAnalysis),
			CleanupSchedule: getEnv("LPS_CACHE_CLEANUP_SCHEDULE", "@every 1m"),
		},
	}

	// 3. Engine tuning, defaults overlaid by the YAML file
	tuning, err := LoadTuning(cfg.TuningFile)
	if err != nil {
		return nil, err
	}
	cfg.Tuning = tuning

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks if the configuration is usable
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.MarketData != MarketDataStatic && c.MarketData != MarketDataHistory {
		return fmt.Errorf("unknown market data source %q (want %s or %s)", c.MarketData, MarketDataStatic, MarketDataHistory)
	}
	if c.Monitor.IntervalMinutes <= 0 {
		return fmt.Errorf("monitor interval must be positive, got %d", c.Monitor.IntervalMinutes)
	}
	for name, ttl := range map[string]time.Duration{
		"correlation":  c.Cache.CorrelationTTL,
		"optimization": c.Cache.OptimizationTTL,
		"analysis":     c.Cache.AnalysisTTL,
	} {
		if ttl <= 0 {
			return fmt.Errorf("%s cache TTL must be positive, got %s", name, ttl)
		}
	}
	return nil
}

// DatabasePath returns the file path of a named database inside DataDir
func (c *Config) DatabasePath(name string) string {
	return filepath.Join(c.DataDir, name+".db")
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

// getEnvAsList splits a comma separated value, dropping empty items
func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
