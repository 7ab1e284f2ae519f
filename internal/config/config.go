package config

import (
	"fmt"
	"strings"
	"time"

	"lounge_backend/pkg/utils"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Log      LogConfig
	DB       DBConfig
	Auth     AuthConfig
	Sessions SessionConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
}

type ServerConfig struct {
	Port               string
	GinMode            string
	CORSAllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Pretty bool
}

type DBConfig struct {
	Driver      string // postgres or sqlite
	Host        string
	Port        string
	User        string
	Password    string
	Name        string
	SSLMode     string
	Path        string // sqlite file
	ApplySchema bool
}

type AuthConfig struct {
	JWTSecret string
}

type SessionConfig struct {
	DiscardWindow time.Duration
}

type RedisConfig struct {
	Addr           string // empty disables idempotency
	Password       string
	DB             int
	IdempotencyTTL time.Duration
}

type KafkaConfig struct {
	Brokers      []string // empty disables receipt publishing
	ReceiptTopic string
}

// DSN returns the connection string for the configured driver.
func (c DBConfig) DSN() string {
	if c.Driver == "sqlite" {
		return c.Path
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

// CheckAuth refuses a release-mode server without its own JWT secret.
func (c *Config) CheckAuth() error {
	if c.Auth.JWTSecret == "" && c.Server.GinMode == "release" {
		return fmt.Errorf("config: JWT_SECRET is required when GIN_MODE=release")
	}
	return nil
}

// Load reads the configuration from the environment, after loading a .env file if one exists.
func Load() (*Config, error) {
	const op = "config.Load"

	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:               utils.Getenv("PORT", "8080"),
			GinMode:            utils.Getenv("GIN_MODE", "release"),
			CORSAllowedOrigins: utils.GetenvList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000", "http://localhost:3001"}),
		},
		Log: LogConfig{
			Level: utils.Getenv("LOG_LEVEL", "info"),
		},
		DB: DBConfig{
			Driver:   strings.ToLower(utils.Getenv("DB_DRIVER", "postgres")),
			Host:     utils.Getenv("DB_HOST", "localhost"),
			Port:     utils.Getenv("DB_PORT", "5432"),
			User:     utils.Getenv("DB_USER", "lounge_user"),
			Password: utils.Getenv("DB_PASSWORD", "lounge_password"),
			Name:     utils.Getenv("DB_NAME", "lounge_db"),
			SSLMode:  utils.Getenv("DB_SSLMODE", "disable"),
			Path:     utils.Getenv("DB_PATH", "data/lounge.db"),
		},
		Auth: AuthConfig{
			JWTSecret: utils.Getenv("JWT_SECRET", ""),
		},
		Redis: RedisConfig{
			Addr:     utils.Getenv("REDIS_ADDR", ""),
			Password: utils.Getenv("REDIS_PASSWORD", ""),
		},
		Kafka: KafkaConfig{
			Brokers:      utils.GetenvList("KAFKA_BROKERS", nil),
			ReceiptTopic: utils.Getenv("KAFKA_RECEIPT_TOPIC", "pos-transactions-completed"),
		},
	}

	var err error
	if cfg.Log.Pretty, err = utils.GetenvBool("LOG_PRETTY", true); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if cfg.DB.ApplySchema, err = utils.GetenvBool("DB_APPLY_SCHEMA", false); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if cfg.Sessions.DiscardWindow, err = utils.GetenvDuration("DISCARD_WINDOW", 10*time.Minute); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if cfg.Redis.DB, err = utils.GetenvInt("REDIS_DB", 0); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if cfg.Redis.IdempotencyTTL, err = utils.GetenvDuration("IDEMPOTENCY_TTL", 24*time.Hour); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if cfg.DB.Driver != "postgres" && cfg.DB.Driver != "sqlite" {
		return nil, fmt.Errorf("%s: unsupported DB_DRIVER %q", op, cfg.DB.Driver)
	}
	if cfg.Sessions.DiscardWindow <= 0 {
		return nil, fmt.Errorf("%s: DISCARD_WINDOW must be positive", op)
	}
	return cfg, nil
}
