package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"courier/internal/constants"
)

func LoadConfig(configFile string) (*Config, error) {
	viper.Reset()

	viper.SetConfigType("yaml")
	viper.SetConfigFile(configFile)

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := ValidateStatic(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 10*time.Second)
	viper.SetDefault("server.write_timeout", 0)

	viper.SetDefault("database.redis.port", 6379)
	viper.SetDefault("database.postgres.port", 5432)
	viper.SetDefault("database.postgres.sslmode", "disable")

	viper.SetDefault("broker.kafka.input_topic", constants.DefaultInputTopic)
	viper.SetDefault("broker.kafka.output_topic", constants.DefaultOutputTopic)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")

	viper.SetDefault("deduplication.backend", constants.DedupBackendMemory)
	viper.SetDefault("deduplication.hash_algorithm", constants.HashSHA256)
	viper.SetDefault("deduplication.ttl", constants.DefaultDedupTTL)
	viper.SetDefault("deduplication.max_entries", constants.DefaultDedupMaxEntries)
	viper.SetDefault("deduplication.on_window_error", constants.FallbackAllow)

	viper.SetDefault("debounce.status_changed", constants.DefaultStatusDebounce)
	viper.SetDefault("debounce.participants_changed", constants.DefaultParticipantsDebounce)

	viper.SetDefault("pipeline.lookup_concurrency", constants.DefaultLookupConcurrency)
	viper.SetDefault("pipeline.lookup_retry.max_attempts", 2)
	viper.SetDefault("pipeline.lookup_retry.initial_interval", 50*time.Millisecond)
	viper.SetDefault("pipeline.lookup_retry.max_interval", time.Second)
	viper.SetDefault("pipeline.lookup_retry.multiplier", 2.0)
	viper.SetDefault("pipeline.health_interval", 30*time.Second)
	viper.SetDefault("pipeline.bootstrap.default_limit", constants.DefaultBootstrapLimit)
	viper.SetDefault("pipeline.bootstrap.max_limit", constants.MaxBootstrapLimit)

	viper.SetDefault("transport.heartbeat_interval", 15*time.Second)
	viper.SetDefault("transport.rate_limit.rps", 10.0)
	viper.SetDefault("transport.rate_limit.burst", 20)
	viper.SetDefault("transport.rate_limit.cleanup_interval", 5*time.Minute)
	viper.SetDefault("transport.rate_limit.max_age", 10*time.Minute)
}

func bindEnvVariables() {
	viper.BindEnv("broker.type", "BROKER_TYPE")
	viper.BindEnv("broker.kafka.brokers", "BROKER_KAFKA_BROKERS")
	viper.BindEnv("broker.kafka.group_id", "BROKER_KAFKA_GROUP_ID")
	viper.BindEnv("broker.kafka.input_topic", "BROKER_KAFKA_INPUT_TOPIC")
	viper.BindEnv("broker.kafka.output_topic", "BROKER_KAFKA_OUTPUT_TOPIC")
	viper.BindEnv("broker.kafka.dlq_topic", "BROKER_KAFKA_DLQ_TOPIC")

	viper.BindEnv("database.postgres.host", "DATABASE_POSTGRES_HOST")
	viper.BindEnv("database.postgres.port", "DATABASE_POSTGRES_PORT")
	viper.BindEnv("database.postgres.user", "DATABASE_POSTGRES_USER")
	viper.BindEnv("database.postgres.password", "DATABASE_POSTGRES_PASSWORD")
	viper.BindEnv("database.postgres.dbname", "DATABASE_POSTGRES_DBNAME")
	viper.BindEnv("database.postgres.sslmode", "DATABASE_POSTGRES_SSLMODE")

	viper.BindEnv("database.redis.host", "DATABASE_REDIS_HOST")
	viper.BindEnv("database.redis.port", "DATABASE_REDIS_PORT")
	viper.BindEnv("database.redis.password", "DATABASE_REDIS_PASSWORD")
	viper.BindEnv("database.redis.db", "DATABASE_REDIS_DB")

	viper.BindEnv("deduplication.backend", "DEDUPLICATION_BACKEND")
	viper.BindEnv("deduplication.ttl", "DEDUPLICATION_TTL")

	viper.BindEnv("pipeline.lookup_cache_ttl", "PIPELINE_LOOKUP_CACHE_TTL")

	viper.BindEnv("server.port", "SERVER_PORT")

	viper.BindEnv("logging.level", "LOGGING_LEVEL")
	viper.BindEnv("logging.format", "LOGGING_FORMAT")

	viper.BindEnv("tracing.otlp.endpoint", "TRACING_OTLP_ENDPOINT")
	viper.BindEnv("tracing.otlp.insecure", "TRACING_OTLP_INSECURE")
	viper.BindEnv("tracing.enabled", "TRACING_ENABLED")
	viper.BindEnv("tracing.service_name", "TRACING_SERVICE_NAME")
}

func applyEnvOverrides(cfg *Config) error {
	if brokersEnv := viper.GetString("BROKER_KAFKA_BROKERS"); brokersEnv != "" {
		brokers := strings.Split(brokersEnv, ",")
		for i := range brokers {
			brokers[i] = strings.TrimSpace(brokers[i])
		}
		if len(brokers) > 0 && brokers[0] != "" {
			cfg.Broker.Kafka.Brokers = brokers
		}
	}

	if otlpEndpoint := viper.GetString("TRACING_OTLP_ENDPOINT"); otlpEndpoint != "" {
		cfg.Tracing.OTLP.Endpoint = otlpEndpoint
	}

	return nil
}
