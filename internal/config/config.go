package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Database   DatabaseConfig
	Redis      RedisConfig
	Server     ServerConfig
	Sync       SyncConfig
	API        APIConfig
	SelfHosted bool
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string //nolint:gosec // G117: DB connection config
	DBName   string
	SSLMode  string
	MaxConns int
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string //nolint:gosec // G117: Redis connection config
	DB       int
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	CORSOrigins  []string
}

// SyncConfig tunes every board session's engine.
type SyncConfig struct {
	PendingTimeout  time.Duration
	PublishInterval time.Duration
	Epsilon         float64
	HistoryLimit    int
	RotateStep      float64
	// ExpireInterval is how often a session sweeps stale pending overrides
	// when no snapshot arrives.
	ExpireInterval time.Duration
}

// APIConfig holds per-client request limits for the REST API.
type APIConfig struct {
	Rate  float64
	Burst int
}

// Load reads configuration from environment variables.
// Defaults are safe for local development only.
func Load() (*Config, error) {
	dbPort, err := getEnvInt("CANVAS_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	dbMaxConns, err := getEnvInt("CANVAS_DB_MAX_CONNS", 25)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	redisDB, err := getEnvInt("CANVAS_REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	readTimeout, err := getEnvDuration("CANVAS_SERVER_READ_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	writeTimeout, err := getEnvDuration("CANVAS_SERVER_WRITE_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	pendingTimeout, err := getEnvDuration("CANVAS_SYNC_PENDING_TIMEOUT", 3*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	publishInterval, err := getEnvDuration("CANVAS_SYNC_PUBLISH_INTERVAL", 40*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	epsilon, err := getEnvFloat("CANVAS_SYNC_EPSILON", 0.5)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	historyLimit, err := getEnvInt("CANVAS_SYNC_HISTORY_LIMIT", 200)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	rotateStep, err := getEnvFloat("CANVAS_SYNC_ROTATE_STEP", 15)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	expireInterval, err := getEnvDuration("CANVAS_SYNC_EXPIRE_INTERVAL", time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	apiRate, err := getEnvFloat("CANVAS_API_RATE", 20)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	apiBurst, err := getEnvInt("CANVAS_API_BURST", 40)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	selfHosted, err := getEnvBool("CANVAS_SELF_HOSTED", false)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	corsOrigins := getEnvList("CANVAS_CORS_ORIGINS", []string{"http://localhost:5173"})

	cfg := &Config{
		Database: DatabaseConfig{
			Host:     getEnv("CANVAS_DB_HOST", "localhost"),
			Port:     dbPort,
			User:     getEnv("CANVAS_DB_USER", "canvas"),
			Password: getEnv("CANVAS_DB_PASSWORD", ""),
			DBName:   getEnv("CANVAS_DB_NAME", "canvas_dev"),
			SSLMode:  getEnv("CANVAS_DB_SSLMODE", "disable"),
			MaxConns: dbMaxConns,
		},
		Redis: RedisConfig{
			Addr:     getEnv("CANVAS_REDIS_ADDR", "localhost:6379"),
			Password: getEnv("CANVAS_REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		Server: ServerConfig{
			Addr:         getEnv("CANVAS_SERVER_ADDR", ":8080"),
			ReadTimeout:  readTimeout,
			WriteTimeout: writeTimeout,
			CORSOrigins:  corsOrigins,
		},
		Sync: SyncConfig{
			PendingTimeout:  pendingTimeout,
			PublishInterval: publishInterval,
			Epsilon:         epsilon,
			HistoryLimit:    historyLimit,
			RotateStep:      rotateStep,
			ExpireInterval:  expireInterval,
		},
		API: APIConfig{
			Rate:  apiRate,
			Burst: apiBurst,
		},
		SelfHosted: selfHosted,
	}

	err = cfg.validate()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	return cfg, nil
}

// validate checks required fields and value bounds.
func (c *Config) validate() error {
	if c.Database.SSLMode == "disable" && !c.SelfHosted {
		log.Warn().Msg("CANVAS_DB_SSLMODE=disable is insecure for production; set to 'require' or 'verify-full'")
	}

	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("CANVAS_DB_PORT must be 1-65535, got %d", c.Database.Port)
	}
	if c.Database.MaxConns < 1 {
		return fmt.Errorf("CANVAS_DB_MAX_CONNS must be >= 1, got %d", c.Database.MaxConns)
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("CANVAS_SERVER_READ_TIMEOUT must be positive, got %s", c.Server.ReadTimeout)
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("CANVAS_SERVER_WRITE_TIMEOUT must be positive, got %s", c.Server.WriteTimeout)
	}

	if c.Sync.PendingTimeout <= 0 {
		return fmt.Errorf("CANVAS_SYNC_PENDING_TIMEOUT must be positive, got %s", c.Sync.PendingTimeout)
	}
	// A zero publish interval disables throttling.
	if c.Sync.PublishInterval < 0 {
		return fmt.Errorf("CANVAS_SYNC_PUBLISH_INTERVAL must not be negative, got %s", c.Sync.PublishInterval)
	}
	if c.Sync.Epsilon <= 0 {
		return fmt.Errorf("CANVAS_SYNC_EPSILON must be positive, got %g", c.Sync.Epsilon)
	}
	if c.Sync.HistoryLimit < 1 {
		return fmt.Errorf("CANVAS_SYNC_HISTORY_LIMIT must be >= 1, got %d", c.Sync.HistoryLimit)
	}
	if c.Sync.RotateStep <= 0 || c.Sync.RotateStep >= 360 {
		return fmt.Errorf("CANVAS_SYNC_ROTATE_STEP must be in (0, 360), got %g", c.Sync.RotateStep)
	}
	if c.Sync.ExpireInterval <= 0 {
		return fmt.Errorf("CANVAS_SYNC_EXPIRE_INTERVAL must be positive, got %s", c.Sync.ExpireInterval)
	}

	if c.API.Rate <= 0 {
		return fmt.Errorf("CANVAS_API_RATE must be positive, got %g", c.API.Rate)
	}
	if c.API.Burst < 1 {
		return fmt.Errorf("CANVAS_API_BURST must be >= 1, got %d", c.API.Burst)
	}

	return nil
}

// DSN returns the PostgreSQL connection string.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as int: %w", key, v, err)
	}
	return n, nil
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as float: %w", key, v, err)
	}
	return f, nil
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("parsing %s=%q as bool: %w", key, v, err)
	}
	return b, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as duration: %w", key, v, err)
	}
	return d, nil
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
