package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	JWT       JWTConfig
	Scheduler SchedulerConfig
	Notify    NotifyConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Database     string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type JWTConfig struct {
	Secret          string
	ExpirationHours int
}

// SchedulerConfig carries the three knobs control.Config wraps (SPEC_FULL.md
// §6), loaded from the environment the way the teacher loads every other
// section.
type SchedulerConfig struct {
	PollingTime    time.Duration
	MinIdleTime    time.Duration
	MaxParallelism int
}

// NotifyConfig configures the bundled webhook notification task.
type NotifyConfig struct {
	DefaultWebhook string
	RateLimitMs    int
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnvAsInt("SERVER_PORT", 8080),
			ReadTimeout:  time.Duration(getEnvAsInt("SERVER_READ_TIMEOUT", 30)) * time.Second,
			WriteTimeout: time.Duration(getEnvAsInt("SERVER_WRITE_TIMEOUT", 30)) * time.Second,
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnvAsInt("DB_PORT", 5432),
			User:         getEnv("DB_USER", "postgres"),
			Password:     getEnv("DB_PASSWORD", "postgres"),
			Database:     getEnv("DB_NAME", "taskscope"),
			SSLMode:      getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		},
		JWT: JWTConfig{
			Secret:          getEnv("JWT_SECRET", "change-me-in-production-please"),
			ExpirationHours: getEnvAsInt("JWT_EXPIRATION_HOURS", 72),
		},
		Scheduler: SchedulerConfig{
			PollingTime:    time.Duration(getEnvAsInt("SCHEDULER_POLLING_SECONDS", 60)) * time.Second,
			MinIdleTime:    time.Duration(getEnvAsInt("SCHEDULER_MIN_IDLE_SECONDS", 10)) * time.Second,
			MaxParallelism: getEnvAsInt("SCHEDULER_MAX_PARALLELISM", 0),
		},
		Notify: NotifyConfig{
			DefaultWebhook: getEnv("NOTIFY_DEFAULT_WEBHOOK", ""),
			RateLimitMs:    getEnvAsInt("NOTIFY_RATE_LIMIT_MS", 1000),
		},
	}
}

func (c *DatabaseConfig) DSN() string {
	return "host=" + c.Host +
		" port=" + strconv.Itoa(c.Port) +
		" user=" + c.User +
		" password=" + c.Password +
		" dbname=" + c.Database +
		" sslmode=" + c.SSLMode
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
