package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBHost         string
	DBPort         string
	DBUser         string
	DBPassword     string
	DBName         string
	ServerPort     string
	JWTSecret      string
	LogLevel       string
	LogFormat      string
	MigrateOnStart bool
	// SeedDemo creates a shared demo board with two users on start.
	SeedDemo bool

	WSPingInterval time.Duration
	WSStaleAfter   time.Duration
	WSClientBuffer int
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, using system environment variables")
	}

	return &Config{
		DBHost:         getEnv("DB_HOST", "localhost"),
		DBPort:         getEnv("DB_PORT", "5431"),
		DBUser:         getEnv("DB_USER", "boardsync"),
		DBPassword:     getEnv("DB_PASSWORD", "boardsync"),
		DBName:         getEnv("DB_NAME", "boardsync"),
		ServerPort:     getEnv("SERVER_PORT", "8080"),
		JWTSecret:      getEnv("JWT_SECRET", "supersecretkey"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "text"),
		MigrateOnStart: getBool("MIGRATE_ON_START", true),
		SeedDemo:       getBool("SEED_DEMO", false),
		WSPingInterval: getDuration("WS_PING_INTERVAL", 30*time.Second),
		WSStaleAfter:   getDuration("WS_STALE_AFTER", 90*time.Second),
		WSClientBuffer: getInt("WS_CLIENT_BUFFER", 32),
	}
}

// DSN is the gorm postgres connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName,
	)
}

// MigrationURL is the golang-migrate database URL.
func (c *Config) MigrationURL() string {
	return fmt.Sprintf("pgx5://%s:%s@%s:%s/%s?sslmode=disable",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName,
	)
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

func getBool(key string, defaultVal bool) bool {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultVal
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		slog.Warn("ignoring malformed boolean", "key", key, "value", value)
		return defaultVal
	}
	return parsed
}

func getInt(key string, defaultVal int) int {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultVal
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		slog.Warn("ignoring malformed integer", "key", key, "value", value)
		return defaultVal
	}
	return parsed
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultVal
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		slog.Warn("ignoring malformed duration", "key", key, "value", value)
		return defaultVal
	}
	return parsed
}
