package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server    ServerConfig
	Scheduler SchedulerConfig
	Database  DatabaseConfig
}

type ServerConfig struct {
	Port string
	Host string
}

type SchedulerConfig struct {
	// TickInterval is the due-job scan period, set in milliseconds via
	// SCHEDULER_TICK_MS.
	TickInterval time.Duration
	// Store selects the metadata backend: memory, sqlite or postgres.
	Store string
	// SQLitePath is the database file for the sqlite backend.
	SQLitePath string
	// Table is the metadata table name for SQL backends.
	Table string
	// InitMetadata bootstraps the metadata table on startup.
	InitMetadata bool
	// BreakerEnabled wraps the store in a circuit breaker.
	BreakerEnabled bool
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
			Host: getEnv("HOST", "localhost"),
		},
		Scheduler: SchedulerConfig{
			TickInterval:   time.Duration(getEnvAsInt("SCHEDULER_TICK_MS", 500)) * time.Millisecond,
			Store:          getEnv("SCHEDULER_STORE", "memory"),
			SQLitePath:     getEnv("SCHEDULER_SQLITE_PATH", "data/schedcore.db"),
			Table:          getEnv("SCHEDULER_METADATA_TABLE", "job_data"),
			InitMetadata:   getEnvAsBool("SCHEDULER_INIT_METADATA", true),
			BreakerEnabled: getEnvAsBool("SCHEDULER_STORE_BREAKER", true),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "schedcore"),
			Password: getEnv("DB_PASSWORD", "schedcore123"),
			DBName:   getEnv("DB_NAME", "schedcore"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func (c *Config) DatabaseURL() string {
	// If DATABASE_URL is set, use it directly
	if databaseURL := os.Getenv("DATABASE_URL"); databaseURL != "" {
		return databaseURL
	}

	// Otherwise, construct from individual components
	return "postgres://" + c.Database.User + ":" + c.Database.Password +
		"@" + c.Database.Host + ":" + c.Database.Port +
		"/" + c.Database.DBName + "?sslmode=" + c.Database.SSLMode
}
