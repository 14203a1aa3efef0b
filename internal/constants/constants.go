package constants

import "time"

const (
	KafkaBatchTimeout = 10 * time.Millisecond
	KafkaWriteTimeout = 10 * time.Second
)

const (
	CacheKeyPrefixDedup = "courier:dedup:"
)

const (
	DefaultInputTopic  = "conversation_changes"
	DefaultOutputTopic = "conversation_events"
)

const (
	ShutdownTimeout = 5 * time.Second
)

const (
	DedupBackendMemory = "memory"
	DedupBackendRedis  = "redis"
)

const (
	HashMD5    = "md5"
	HashSHA256 = "sha256"
	HashBLAKE3 = "blake3"
)

// Dedup window and debounce defaults. The upstream store gives no documented
// values; these are the chosen ones.
const (
	DefaultDedupTTL             = 5 * time.Second
	DefaultDedupMaxEntries      = 10000
	DefaultStatusDebounce       = 100 * time.Millisecond
	DefaultParticipantsDebounce = 250 * time.Millisecond
)

const (
	DefaultLookupConcurrency = 8
	DefaultBootstrapLimit    = 50
	MaxBootstrapLimit        = 500
)

const (
	FallbackAllow = "allow"
	FallbackDeny  = "deny"
)

const (
	ServiceName = "courier"
)
