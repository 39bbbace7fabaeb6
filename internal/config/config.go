package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Config holds all application configuration
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Kafka      KafkaConfig
	Redis      RedisConfig
	MarketData MarketDataConfig
	Engine     EngineConfig
	Scheduler  SchedulerConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port string
	Host string
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// KafkaConfig holds Kafka configuration
type KafkaConfig struct {
	Brokers       []string
	EventTopic    string
	RequestTopic  string
	ConsumerGroup string
}

// RedisConfig holds Redis quote cache configuration
type RedisConfig struct {
	Addr     string
	QuoteTTL time.Duration
}

// MarketDataConfig holds quote provider configuration
type MarketDataConfig struct {
	BaseURL string
}

// EngineConfig holds execution cost and session settings
type EngineConfig struct {
	SlippageBps      decimal.Decimal
	FeesPerShare     decimal.Decimal
	FlatCommission   decimal.Decimal
	BacktestFillMode string
	Timezone         string
}

// SchedulerConfig holds background pass intervals
type SchedulerConfig struct {
	ExecutionInterval time.Duration
	AlgoSliceInterval time.Duration
	StrategyInterval  time.Duration
	SnapshotInterval  time.Duration
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "papertrading"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Kafka: KafkaConfig{
			Brokers:       strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
			EventTopic:    getEnv("KAFKA_EVENT_TOPIC", "paper-trading-events"),
			RequestTopic:  getEnv("KAFKA_REQUEST_TOPIC", "order-requests"),
			ConsumerGroup: getEnv("KAFKA_CONSUMER_GROUP", "paper-trading-service"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			QuoteTTL: getDuration("REDIS_QUOTE_TTL", 5*time.Second),
		},
		MarketData: MarketDataConfig{
			BaseURL: getEnv("QUOTE_API_URL", "http://localhost:8081"),
		},
		Engine: EngineConfig{
			SlippageBps:      getDecimal("SLIPPAGE_BPS", "0"),
			FeesPerShare:     getDecimal("FEES_PER_SHARE", "0"),
			FlatCommission:   getDecimal("FLAT_COMMISSION", "0"),
			BacktestFillMode: getEnv("BACKTEST_FILL_MODE", ""),
			Timezone:         getEnv("EXCHANGE_TIMEZONE", "America/New_York"),
		},
		Scheduler: SchedulerConfig{
			ExecutionInterval: getDuration("EXECUTION_INTERVAL", 15*time.Second),
			AlgoSliceInterval: getDuration("ALGO_SLICE_INTERVAL", 30*time.Second),
			StrategyInterval:  getDuration("STRATEGY_INTERVAL", time.Minute),
			SnapshotInterval:  getDuration("SNAPSHOT_INTERVAL", time.Hour),
		},
	}
}

// ConnectionString returns the PostgreSQL connection string
func (d *DatabaseConfig) ConnectionString() string {
	return "postgres://" + d.User + ":" + d.Password + "@" + d.Host + ":" + d.Port + "/" + d.DBName + "?sslmode=" + d.SSLMode
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		if secs, err := strconv.Atoi(value); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultValue
}

func getDecimal(key, defaultValue string) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(value); err == nil {
			return d
		}
	}
	return decimal.RequireFromString(defaultValue)
}
