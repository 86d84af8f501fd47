package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ismaiel54/event-sink/internal/chaos"
	"github.com/ismaiel54/event-sink/internal/msg"
	"github.com/ismaiel54/event-sink/internal/store"
	"github.com/spf13/viper"
)

// Config holds configuration for all services
type Config struct {
	// Service name
	ServiceName string `mapstructure:"-"`

	// gRPC health server port
	GRPCPort int `mapstructure:"port_grpc"`

	// HTTP read API port
	HTTPPort int `mapstructure:"port_http"`

	// Log level: debug, info, warn, error
	LogLevel string `mapstructure:"log_level"`

	// Kafka brokers (comma-separated)
	KafkaBrokers       string `mapstructure:"kafka_brokers"`
	KafkaTopic         string `mapstructure:"kafka_topic"`
	KafkaGroupID       string `mapstructure:"kafka_group_id"`
	KafkaClientID      string `mapstructure:"kafka_client_id"`
	KafkaStartPosition string `mapstructure:"kafka_start_position"`

	// Store driver (sqlite, postgres) and its DSN
	StoreDriver string `mapstructure:"store_driver"`
	StoreDSN    string `mapstructure:"store_dsn"`

	// Redis address for the read cache; empty disables caching
	RedisAddr string        `mapstructure:"redis_addr"`
	CacheTTL  time.Duration `mapstructure:"cache_ttl"`

	ConnectMaxAttempts int    `mapstructure:"connect_max_attempts"`
	PersistMaxAttempts int    `mapstructure:"persist_max_attempts"`
	ValidationPolicy   string `mapstructure:"validation_policy"`

	Chaos chaos.Config `mapstructure:",squash"`
}

// LoadConfig loads configuration from defaults, an optional file named by
// CONFIG_FILE and environment variables, in increasing precedence.
func LoadConfig(serviceName string) (*Config, error) {
	v := viper.New()

	v.SetDefault("port_grpc", 50051)
	v.SetDefault("port_http", 3000)
	v.SetDefault("log_level", "info")

	v.SetDefault("kafka_brokers", "127.0.0.1:9092")
	v.SetDefault("kafka_topic", msg.DefaultTopic)
	v.SetDefault("kafka_group_id", msg.DefaultGroupID)
	v.SetDefault("kafka_client_id", msg.DefaultClientID)
	v.SetDefault("kafka_start_position", string(msg.StartEarliest))

	v.SetDefault("store_driver", store.DriverSQLite)
	v.SetDefault("store_dsn", "data/events.db")

	v.SetDefault("redis_addr", "")
	v.SetDefault("cache_ttl", "30s")

	v.SetDefault("connect_max_attempts", 10)
	v.SetDefault("persist_max_attempts", 8)
	v.SetDefault("validation_policy", string(msg.ValidationSkip))

	v.SetDefault("chaos_enabled", false)
	v.SetDefault("chaos_profile", "")
	v.SetDefault("chaos_ops", "")
	v.SetDefault("chaos_drop_pct", 0)
	v.SetDefault("chaos_delay_ms_min", 0)
	v.SetDefault("chaos_delay_ms_max", 0)
	v.SetDefault("chaos_seed", 1)
	v.SetDefault("chaos_window_ms", 0)

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.AutomaticEnv()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.ServiceName = serviceName

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if len(msg.ParseBrokers(c.KafkaBrokers)) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is empty")
	}
	if c.KafkaTopic == "" {
		return fmt.Errorf("KAFKA_TOPIC is empty")
	}
	if c.KafkaGroupID == "" {
		return fmt.Errorf("KAFKA_GROUP_ID is empty")
	}
	if _, err := msg.ParseStartPosition(c.KafkaStartPosition); err != nil {
		return fmt.Errorf("invalid KAFKA_START_POSITION: %w", err)
	}
	if _, err := msg.ParseValidationPolicy(c.ValidationPolicy); err != nil {
		return fmt.Errorf("invalid VALIDATION_POLICY: %w", err)
	}
	switch c.StoreDriver {
	case store.DriverSQLite, store.DriverPostgres:
	default:
		return fmt.Errorf("invalid STORE_DRIVER %q", c.StoreDriver)
	}
	return nil
}

// GRPCAddr returns the gRPC server address
func (c *Config) GRPCAddr() string {
	return fmt.Sprintf(":%d", c.GRPCPort)
}

// HTTPAddr returns the HTTP server address
func (c *Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// Kafka returns the broker connection settings
func (c *Config) Kafka() msg.KafkaConfig {
	pos, _ := msg.ParseStartPosition(c.KafkaStartPosition)
	return msg.KafkaConfig{
		Brokers:       msg.ParseBrokers(c.KafkaBrokers),
		ClientID:      c.KafkaClientID,
		Topic:         c.KafkaTopic,
		GroupID:       c.KafkaGroupID,
		StartPosition: pos,
	}
}

// Consumer returns the stream consumer settings
func (c *Config) Consumer() msg.ConsumerConfig {
	cc := msg.DefaultConsumerConfig(c.KafkaTopic, c.KafkaGroupID)
	if c.ConnectMaxAttempts > 0 {
		cc.Connect.MaxAttempts = c.ConnectMaxAttempts
	}
	if c.PersistMaxAttempts > 0 {
		cc.Persist.MaxAttempts = c.PersistMaxAttempts
	}
	cc.ValidationPolicy, _ = msg.ParseValidationPolicy(c.ValidationPolicy)
	return cc
}
