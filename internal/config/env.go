package config

import (
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Env holds all configuration values.
type Env struct {
	AppAddr  string `mapstructure:"APP_ADDR"`
	GinMode  string `mapstructure:"GIN_MODE"`
	AppEnv   string `mapstructure:"APP_ENV"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	DatabaseDSN     string        `mapstructure:"DATABASE_DSN"`
	DBMaxOpenConns  int           `mapstructure:"DB_MAX_OPEN_CONNS"`
	DBConnMaxLife   time.Duration `mapstructure:"DB_CONN_MAX_LIFETIME"`
	DBEnsureSchema  bool          `mapstructure:"DB_ENSURE_SCHEMA"`
	JWTSecret       string        `mapstructure:"JWT_SECRET"`
	CORSAllowOrigin string        `mapstructure:"CORS_ALLOWED_ORIGINS"`

	// Per-IP request budget; 0 disables throttling.
	RateLimitPerMinute int `mapstructure:"RATE_LIMIT_PER_MINUTE"`
	RateLimitBurst     int `mapstructure:"RATE_LIMIT_BURST"`

	// Redis: staff roster cache and the asynq queue.
	RedisAddr     string        `mapstructure:"REDIS_ADDR"`
	RedisPassword string        `mapstructure:"REDIS_PASSWORD"`
	RedisCacheDB  int           `mapstructure:"REDIS_CACHE_DB"`
	RedisQueueDB  int           `mapstructure:"REDIS_QUEUE_DB"`
	StaffCacheTTL time.Duration `mapstructure:"STAFF_CACHE_TTL"`

	// RabbitMQ booking events; empty URL disables publishing.
	AMQPURL      string `mapstructure:"AMQP_URL"`
	AMQPExchange string `mapstructure:"AMQP_EXCHANGE"`

	OperatorChannel         string        `mapstructure:"OPERATOR_CHANNEL"`
	PartnerAcceptanceWindow time.Duration `mapstructure:"PARTNER_ACCEPTANCE_WINDOW"`

	OutboxBatchSize     int           `mapstructure:"OUTBOX_BATCH_SIZE"`
	OutboxLeaseTTL      time.Duration `mapstructure:"OUTBOX_LEASE_TTL"`
	OutboxMaxAttempts   int           `mapstructure:"OUTBOX_MAX_ATTEMPTS"`
	OutboxDrainInterval time.Duration `mapstructure:"OUTBOX_DRAIN_INTERVAL"`
	WorkerConcurrency   int           `mapstructure:"WORKER_CONCURRENCY"`
}

func (e Env) IsProduction() bool {
	return strings.EqualFold(e.AppEnv, "production")
}

// AllowedOrigins splits the comma separated CORS list.
func (e Env) AllowedOrigins() []string {
	out := []string{}
	for _, o := range strings.Split(e.CORSAllowOrigin, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ADDR", ":8080")
	v.SetDefault("GIN_MODE", "")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DATABASE_DSN", "root:@tcp(127.0.0.1:3306)/rentals?parseTime=true&loc=UTC&charset=utf8mb4&timeout=5s&readTimeout=30s&writeTimeout=30s")
	v.SetDefault("DB_MAX_OPEN_CONNS", 25)
	v.SetDefault("DB_CONN_MAX_LIFETIME", 10*time.Minute)
	v.SetDefault("DB_ENSURE_SCHEMA", true)
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173")
	v.SetDefault("RATE_LIMIT_PER_MINUTE", 200)
	v.SetDefault("RATE_LIMIT_BURST", 50)
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_CACHE_DB", 0)
	v.SetDefault("REDIS_QUEUE_DB", 1)
	v.SetDefault("STAFF_CACHE_TTL", 5*time.Minute)
	v.SetDefault("AMQP_URL", "")
	v.SetDefault("AMQP_EXCHANGE", "rentals.bookings")
	v.SetDefault("OPERATOR_CHANNEL", "platform_operators")
	v.SetDefault("PARTNER_ACCEPTANCE_WINDOW", 2*time.Hour)
	v.SetDefault("OUTBOX_BATCH_SIZE", 50)
	v.SetDefault("OUTBOX_LEASE_TTL", 30*time.Second)
	v.SetDefault("OUTBOX_MAX_ATTEMPTS", 8)
	v.SetDefault("OUTBOX_DRAIN_INTERVAL", 15*time.Second)
	v.SetDefault("WORKER_CONCURRENCY", 4)
}

// LoadEnv reads config.yaml (optional) and environment variables.
func LoadEnv() Env {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Println("No config file found, using environment variables only")
	}

	var env Env
	if err := v.Unmarshal(&env); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	return env
}
