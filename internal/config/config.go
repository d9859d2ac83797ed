package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const EnvProduction = "production"

type Config struct {
	Environment string
	Server      ServerConfig
	Database    DatabaseConfig
	Kafka       KafkaConfig
	Redis       RedisConfig
	Stripe      StripeConfig
	Worker      WorkerConfig
	Mail        MailConfig
	App         AppConfig
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	MaxBodyBytes int64
	RateLimitRPS int
	RateBurst    int
}

type DatabaseConfig struct {
	Driver       string // "mysql" or "memory"
	Host         string
	Port         string
	Username     string
	Password     string
	Database     string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
}

type KafkaConfig struct {
	Brokers      []string
	GroupID      string
	MockMode     bool
	RelayEnabled bool
	RelayTopic   string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	EventTTL time.Duration
	ClaimTTL time.Duration
}

type StripeConfig struct {
	SecretKey       string
	WebhookSecret   string
	AllowUnverified bool
}

// WorkerConfig sizes the dispatch pool. A zero TaskTimeout lets a started task
// run to completion.
type WorkerConfig struct {
	Count       int
	QueueSize   int
	TaskTimeout time.Duration
}

type MailConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
}

type AppConfig struct {
	PublicBaseURL string
}

func Load() *Config {
	return &Config{
		Environment: getEnv("APP_ENV", "development"),
		Server: ServerConfig{
			Port:         getEnv("PORT", ":8085"),
			ReadTimeout:  getEnvAsDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getEnvAsDuration("SERVER_WRITE_TIMEOUT", 10*time.Second),
			IdleTimeout:  getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			MaxBodyBytes: int64(getEnvAsInt("WEBHOOK_MAX_BODY_BYTES", 65536)),
			RateLimitRPS: getEnvAsInt("RATE_LIMIT_RPS", 100),
			RateBurst:    getEnvAsInt("RATE_LIMIT_BURST", 200),
		},
		Database: DatabaseConfig{
			Driver:       getEnv("DB_DRIVER", "mysql"),
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "3306"),
			Username:     getEnv("DB_USER", "root"),
			Password:     getEnv("DB_PASS", ""),
			Database:     getEnv("DB_NAME", "ticketing"),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:  getEnvAsDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		Kafka: KafkaConfig{
			Brokers:      getEnvAsList("KAFKA_BROKERS"),
			GroupID:      getEnv("KAFKA_GROUP_ID", "payment-reconciler"),
			MockMode:     getEnvAsBool("KAFKA_MOCK_MODE", false),
			RelayEnabled: getEnvAsBool("KAFKA_RELAY_ENABLED", false),
			RelayTopic:   getEnv("KAFKA_RELAY_TOPIC", "payment-webhooks"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			EventTTL: getEnvAsDuration("REDIS_EVENT_TTL", 72*time.Hour),
			ClaimTTL: getEnvAsDuration("REDIS_CLAIM_TTL", 15*time.Minute),
		},
		Stripe: StripeConfig{
			SecretKey:       getEnv("STRIPE_SECRET_KEY", ""),
			WebhookSecret:   getEnv("STRIPE_WEBHOOK_SECRET", ""),
			AllowUnverified: getEnvAsBool("STRIPE_ALLOW_UNVERIFIED_WEBHOOKS", false),
		},
		Worker: WorkerConfig{
			Count:       getEnvAsInt("WORKER_COUNT", 8),
			QueueSize:   getEnvAsInt("WORKER_QUEUE_SIZE", 256),
			TaskTimeout: getEnvAsDuration("WORKER_TASK_TIMEOUT", 0),
		},
		Mail: MailConfig{
			Host:     getEnv("SMTP_HOST", ""),
			Port:     getEnv("SMTP_PORT", "587"),
			Username: getEnv("SMTP_USERNAME", ""),
			Password: getEnv("SMTP_PASSWORD", ""),
			From:     getEnv("MAIL_FROM", "tickets@example.com"),
			FromName: getEnv("MAIL_FROM_NAME", "Tickets"),
		},
		App: AppConfig{
			PublicBaseURL: strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:3000"), "/"),
		},
	}
}

func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, EnvProduction)
}

// AllowUnverifiedWebhooks is true only outside production and only when the
// explicit flag is set. The flag has no effect in production.
func (c *Config) AllowUnverifiedWebhooks() bool {
	return !c.IsProduction() && c.Stripe.AllowUnverified
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
