package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"

	LockerLocal = "local"
	LockerRedis = "redis"
)

// Config representa a configuração carregada do YAML e do ambiente
type Config struct {
	Port          string `yaml:"port"`
	LogLevel      string `yaml:"logLevel"`
	ServiceName   string `yaml:"serviceName"`
	AdminUsername string `yaml:"adminUsername"`

	StorageDriver    string `yaml:"storageDriver"`
	DatabaseHost     string `yaml:"databaseHost"`
	DatabasePort     string `yaml:"databasePort"`
	DatabaseUser     string `yaml:"databaseUser"`
	DatabasePassword string `yaml:"databasePassword"`
	DatabaseName     string `yaml:"databaseName"`
	DatabaseMaxConns int32  `yaml:"databaseMaxConns"`

	Locker          string `yaml:"locker"`
	RedisAddr       string `yaml:"redisAddr"`
	RedisPassword   string `yaml:"redisPassword"`
	LockTTLSeconds  int    `yaml:"lockTtlSeconds"`
	LockWaitSeconds int    `yaml:"lockWaitSeconds"`

	TelemetryEnabled bool   `yaml:"telemetryEnabled"`
	OTLPEndpoint     string `yaml:"otlpEndpoint"`

	// Usuários cadastrados na inicialização
	Users []User `yaml:"users"`
}

func defaultConfig() Config {
	return Config{
		Port:             "8080",
		LogLevel:         "info",
		ServiceName:      "bookstore-service",
		AdminUsername:    "admin",
		StorageDriver:    StoragePostgres,
		DatabaseHost:     "localhost",
		DatabasePort:     "5432",
		DatabaseUser:     "root",
		DatabasePassword: "pass",
		DatabaseName:     "bookstore_db",
		DatabaseMaxConns: 10,
		Locker:           LockerLocal,
		LockTTLSeconds:   10,
		LockWaitSeconds:  5,
		OTLPEndpoint:     "localhost:4318",
	}
}

// LoadConfig lê o arquivo em path, quando informado, e aplica as variáveis de ambiente por cima
func LoadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.ServiceName = getEnv("SERVICE_NAME", cfg.ServiceName)
	cfg.AdminUsername = getEnv("ADMIN_USERNAME", cfg.AdminUsername)
	cfg.StorageDriver = getEnv("STORAGE_DRIVER", cfg.StorageDriver)
	cfg.DatabaseHost = getEnv("DATABASE_HOST", cfg.DatabaseHost)
	cfg.DatabasePort = getEnv("DATABASE_PORT", cfg.DatabasePort)
	cfg.DatabaseUser = getEnv("DATABASE_USER", cfg.DatabaseUser)
	cfg.DatabasePassword = getEnv("DATABASE_PASSWORD", cfg.DatabasePassword)
	cfg.DatabaseName = getEnv("DATABASE_NAME", cfg.DatabaseName)
	cfg.Locker = getEnv("CART_LOCKER", cfg.Locker)
	cfg.RedisAddr = getEnv("REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", cfg.RedisPassword)
	cfg.OTLPEndpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.OTLPEndpoint)
	if v := os.Getenv("DATABASE_MAX_CONNS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.DatabaseMaxConns = int32(n)
		}
	}
	if v := os.Getenv("CART_LOCK_TTL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.LockTTLSeconds = n
		}
	}
	if v := os.Getenv("CART_LOCK_WAIT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.LockWaitSeconds = n
		}
	}
	if v := os.Getenv("TELEMETRY_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.TelemetryEnabled = enabled
		}
	}

	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if strings.TrimSpace(c.Port) == "" {
		return errors.New("config: port is required")
	}
	if strings.TrimSpace(c.AdminUsername) == "" {
		return errors.New("config: adminUsername is required")
	}
	switch c.StorageDriver {
	case StorageMemory:
	case StoragePostgres:
		if c.DatabaseHost == "" || c.DatabaseName == "" {
			return errors.New("config: databaseHost and databaseName are required for postgres storage")
		}
		if c.DatabaseMaxConns <= 0 {
			return errors.New("config: databaseMaxConns must be > 0")
		}
	default:
		return fmt.Errorf("config: unknown storageDriver %q", c.StorageDriver)
	}
	switch c.Locker {
	case LockerLocal:
	case LockerRedis:
		if strings.TrimSpace(c.RedisAddr) == "" {
			return errors.New("config: redisAddr is required when locker=redis (set in config.yaml or REDIS_ADDR)")
		}
	default:
		return fmt.Errorf("config: unknown locker %q", c.Locker)
	}
	if c.LockTTLSeconds <= 0 {
		return errors.New("config: lockTtlSeconds must be > 0")
	}
	if c.LockWaitSeconds <= 0 {
		return errors.New("config: lockWaitSeconds must be > 0")
	}
	return nil
}

// DatabaseURL monta a connection string usada pelo pgx e pelo lib/pq
func (c Config) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.DatabaseUser, c.DatabasePassword, c.DatabaseHost, c.DatabasePort, c.DatabaseName,
	)
}

func (c Config) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSeconds) * time.Second
}

func (c Config) LockWait() time.Duration {
	return time.Duration(c.LockWaitSeconds) * time.Second
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
