package config

import (
	"fmt"
	"strings"

	"courier/internal/constants"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

func ValidateStatic(cfg *Config) error {
	var errors []error

	if err := validateServer(cfg.Server); err != nil {
		errors = append(errors, err)
	}

	if err := validateBroker(cfg.Broker); err != nil {
		errors = append(errors, err)
	}

	if err := validateDatabase(cfg.Database); err != nil {
		errors = append(errors, err)
	}

	if err := validateDeduplication(cfg.Deduplication, cfg.Database.Redis); err != nil {
		errors = append(errors, err)
	}

	if err := validateDebounce(cfg.Debounce); err != nil {
		errors = append(errors, err)
	}

	if err := validatePipeline(cfg.Pipeline); err != nil {
		errors = append(errors, err)
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errors)
	}

	return nil
}

func validateServer(cfg ServerConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.ReadTimeout < 0 {
		return &ValidationError{
			Field:   "server.read_timeout",
			Message: "read timeout must be non-negative",
		}
	}

	if cfg.WriteTimeout < 0 {
		return &ValidationError{
			Field:   "server.write_timeout",
			Message: "write timeout must be non-negative",
		}
	}

	return nil
}

func validateBroker(cfg BrokerConfig) error {
	switch cfg.Type {
	case "":
		return nil
	case "kafka":
		return validateKafka(cfg.Kafka)
	default:
		return &ValidationError{
			Field:   "broker.type",
			Message: fmt.Sprintf("unknown broker type: %s (supported: kafka)", cfg.Type),
		}
	}
}

func validateKafka(cfg KafkaConfig) error {
	if len(cfg.Brokers) == 0 {
		return &ValidationError{
			Field:   "broker.kafka.brokers",
			Message: "at least one Kafka broker is required",
		}
	}

	for i, broker := range cfg.Brokers {
		if broker == "" {
			return &ValidationError{
				Field:   fmt.Sprintf("broker.kafka.brokers[%d]", i),
				Message: "broker address cannot be empty",
			}
		}
	}

	if cfg.GroupID == "" {
		return &ValidationError{
			Field:   "broker.kafka.group_id",
			Message: "Kafka consumer group ID is required",
		}
	}

	return validateRetry("broker.kafka.retry", cfg.Retry)
}

func validateRetry(prefix string, cfg RetryConfig) error {
	if cfg.MaxAttempts < 0 {
		return &ValidationError{
			Field:   prefix + ".max_attempts",
			Message: "max_attempts must be non-negative",
		}
	}

	if cfg.InitialInterval < 0 {
		return &ValidationError{
			Field:   prefix + ".initial_interval",
			Message: "initial_interval must be non-negative",
		}
	}

	if cfg.MaxInterval < 0 {
		return &ValidationError{
			Field:   prefix + ".max_interval",
			Message: "max_interval must be non-negative",
		}
	}

	if cfg.MaxInterval > 0 && cfg.InitialInterval > 0 && cfg.MaxInterval < cfg.InitialInterval {
		return &ValidationError{
			Field:   prefix + ".max_interval",
			Message: "max_interval must be greater than or equal to initial_interval",
		}
	}

	if cfg.Multiplier < 0 {
		return &ValidationError{
			Field:   prefix + ".multiplier",
			Message: "multiplier must be non-negative",
		}
	}

	return nil
}

func validateDatabase(cfg DatabaseConfig) error {
	if cfg.Postgres.Host != "" {
		if err := validatePostgres(cfg.Postgres); err != nil {
			return err
		}
	}

	if cfg.Redis.Host != "" {
		if err := validateRedis(cfg.Redis); err != nil {
			return err
		}
	}

	return nil
}

func validatePostgres(cfg PostgresConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "database.postgres.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.User == "" {
		return &ValidationError{
			Field:   "database.postgres.user",
			Message: "PostgreSQL user is required",
		}
	}

	if cfg.DBName == "" {
		return &ValidationError{
			Field:   "database.postgres.dbname",
			Message: "PostgreSQL database name is required",
		}
	}

	validSSLModes := map[string]bool{
		"disable": true, "allow": true, "prefer": true,
		"require": true, "verify-ca": true, "verify-full": true,
	}
	if cfg.SSLMode != "" && !validSSLModes[strings.ToLower(cfg.SSLMode)] {
		return &ValidationError{
			Field:   "database.postgres.sslmode",
			Message: fmt.Sprintf("invalid SSL mode: %s (valid: disable, allow, prefer, require, verify-ca, verify-full)", cfg.SSLMode),
		}
	}

	return nil
}

func validateRedis(cfg RedisConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "database.redis.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	return nil
}

func validateDeduplication(cfg DeduplicationConfig, redis RedisConfig) error {
	switch cfg.Backend {
	case constants.DedupBackendMemory:
	case constants.DedupBackendRedis:
		if redis.Host == "" {
			return &ValidationError{
				Field:   "database.redis.host",
				Message: "Redis host is required when deduplication.backend is redis",
			}
		}
	default:
		return &ValidationError{
			Field:   "deduplication.backend",
			Message: fmt.Sprintf("invalid backend: %s (valid: memory, redis)", cfg.Backend),
		}
	}

	validAlgorithms := map[string]bool{
		constants.HashMD5: true, constants.HashSHA256: true, constants.HashBLAKE3: true,
	}
	if cfg.HashAlgorithm != "" && !validAlgorithms[strings.ToLower(cfg.HashAlgorithm)] {
		return &ValidationError{
			Field:   "deduplication.hash_algorithm",
			Message: fmt.Sprintf("invalid hash algorithm: %s (valid: md5, sha256, blake3)", cfg.HashAlgorithm),
		}
	}

	if cfg.TTL <= 0 {
		return &ValidationError{
			Field:   "deduplication.ttl",
			Message: "TTL must be positive",
		}
	}

	if cfg.MaxEntries < 0 {
		return &ValidationError{
			Field:   "deduplication.max_entries",
			Message: "max_entries must be non-negative",
		}
	}

	if cfg.OnWindowError != "" && cfg.OnWindowError != constants.FallbackAllow && cfg.OnWindowError != constants.FallbackDeny {
		return &ValidationError{
			Field:   "deduplication.on_window_error",
			Message: fmt.Sprintf("invalid on_window_error value: %s (valid: allow, deny)", cfg.OnWindowError),
		}
	}

	return nil
}

func validateDebounce(cfg DebounceConfig) error {
	if cfg.StatusChanged < 0 {
		return &ValidationError{
			Field:   "debounce.status_changed",
			Message: "interval must be non-negative",
		}
	}

	if cfg.ParticipantsChanged < 0 {
		return &ValidationError{
			Field:   "debounce.participants_changed",
			Message: "interval must be non-negative",
		}
	}

	return nil
}

func validatePipeline(cfg PipelineConfig) error {
	if cfg.LookupConcurrency < 1 {
		return &ValidationError{
			Field:   "pipeline.lookup_concurrency",
			Message: fmt.Sprintf("lookup concurrency must be at least 1, got %d", cfg.LookupConcurrency),
		}
	}

	if err := validateRetry("pipeline.lookup_retry", cfg.LookupRetry); err != nil {
		return err
	}

	if cfg.LookupCacheTTL < 0 {
		return &ValidationError{
			Field:   "pipeline.lookup_cache_ttl",
			Message: "lookup cache TTL must be non-negative",
		}
	}

	if cfg.Bootstrap.DefaultLimit < 1 {
		return &ValidationError{
			Field:   "pipeline.bootstrap.default_limit",
			Message: "default limit must be at least 1",
		}
	}

	if cfg.Bootstrap.MaxLimit < cfg.Bootstrap.DefaultLimit {
		return &ValidationError{
			Field:   "pipeline.bootstrap.max_limit",
			Message: "max limit must be greater than or equal to default limit",
		}
	}

	return nil
}
