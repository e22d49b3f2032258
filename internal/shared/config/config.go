package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	KurrentDB     KurrentDBConfig
	Auth          AuthConfig
	Clearinghouse ClearinghouseConfig
	Agents        AgentsConfig
	Engine        EngineConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Database, d.SSLMode,
	)
}

// KurrentDBConfig holds configuration for KurrentDB (EventStoreDB).
type KurrentDBConfig struct {
	// Host is the KurrentDB server hostname
	Host string
	// Port is the gRPC port (default 2113)
	Port int
	// Insecure disables TLS (for development)
	Insecure bool
	// Username for authentication (optional)
	Username string
	// Password for authentication (optional)
	Password string
}

type AuthConfig struct {
	JWTSecret string
}

// ClearinghouseConfig holds the connection settings for the remittance
// staging database exposed by the clearinghouse (SQL Server).
type ClearinghouseConfig struct {
	Enabled      bool
	Host         string
	Port         int
	User         string
	Password     string
	Database     string
	SSLMode      string
	PollInterval time.Duration
	// RemittanceTable is the staging table posted 835 remittances land in
	RemittanceTable string
}

// AgentsConfig holds the connection settings for the AI agent gateway
// that runs eligibility, summarization, and coding work.
type AgentsConfig struct {
	Enabled       bool
	BaseURL       string
	Timeout       time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
}

// EngineConfig holds tunables for the case processing engine.
type EngineConfig struct {
	// TaskTimeout caps how long a single agent task may run before it is
	// failed with a timeout
	TaskTimeout time.Duration
	// ToleranceBps is the reconciliation tolerance band in basis points
	ToleranceBps int
	// SLACheckInterval controls how often the SLA monitor scans open cases
	SLACheckInterval time.Duration
}

func Load() (*Config, error) {
	return &Config{
		Server: ServerConfig{
			Port: getEnvInt("SERVER_PORT", 8080),
			Env:  getEnv("ENV", "development"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "platform"),
			Password: getEnv("DB_PASSWORD", "platform"),
			Database: getEnv("DB_NAME", "platform"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		KurrentDB: KurrentDBConfig{
			Host:     getEnv("KURRENTDB_HOST", "localhost"),
			Port:     getEnvInt("KURRENTDB_PORT", 2113),
			Insecure: getEnvBool("KURRENTDB_INSECURE", true),
			Username: getEnv("KURRENTDB_USERNAME", ""),
			Password: getEnv("KURRENTDB_PASSWORD", ""),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", "dev-secret-change-in-prod"),
		},
		Clearinghouse: ClearinghouseConfig{
			Enabled:         getEnvBool("CLEARINGHOUSE_ENABLED", false),
			Host:            getEnv("CLEARINGHOUSE_HOST", "localhost"),
			Port:            getEnvInt("CLEARINGHOUSE_PORT", 1433),
			User:            getEnv("CLEARINGHOUSE_USER", "remit_reader"),
			Password:        getEnv("CLEARINGHOUSE_PASSWORD", ""),
			Database:        getEnv("CLEARINGHOUSE_DB", "remit_staging"),
			SSLMode:         getEnv("CLEARINGHOUSE_SSLMODE", "disable"),
			PollInterval:    getEnvDuration("CLEARINGHOUSE_POLL_INTERVAL", 30*time.Second),
			RemittanceTable: getEnv("CLEARINGHOUSE_REMIT_TABLE", "dbo.PostedRemittances"),
		},
		Agents: AgentsConfig{
			Enabled:       getEnvBool("AGENTS_ENABLED", false),
			BaseURL:       getEnv("AGENTS_URL", "http://localhost:8090/api/v1"),
			Timeout:       getEnvDuration("AGENTS_TIMEOUT", 60*time.Second),
			RetryAttempts: getEnvInt("AGENTS_RETRY_ATTEMPTS", 3),
			RetryDelay:    getEnvDuration("AGENTS_RETRY_DELAY", time.Second),
		},
		Engine: EngineConfig{
			TaskTimeout:      getEnvDuration("ENGINE_TASK_TIMEOUT", 90*time.Second),
			ToleranceBps:     getEnvInt("ENGINE_TOLERANCE_BPS", 0),
			SLACheckInterval: getEnvDuration("ENGINE_SLA_CHECK_INTERVAL", time.Minute),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
