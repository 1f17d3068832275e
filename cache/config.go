package cache

import (
	"time"
)

// Config contains cache manager configuration.
type Config struct {
	// TTL is the default time-to-live for entries. 0 = never expires.
	TTL time.Duration `yaml:"ttl" env:"TTL"`

	// MaxEntryBytes bounds a single encoded entry. Larger values are not
	// cached at all.
	MaxEntryBytes int64 `yaml:"max_entry_bytes" env:"MAX_ENTRY_BYTES"`

	// Compression gzips values above CompressionMinBytes before storage.
	Compression bool `yaml:"compression" env:"COMPRESSION"`

	// CompressionMinBytes is the smallest value worth compressing.
	CompressionMinBytes int64 `yaml:"compression_min_bytes" env:"COMPRESSION_MIN_BYTES"`

	// Encryption applies AES-GCM to stored values. Requires EncryptionKey.
	Encryption bool `yaml:"encryption" env:"ENCRYPTION"`

	// EncryptionKey is the base64-encoded 32-byte key. Environment only;
	// never read from the config file.
	EncryptionKey string `yaml:"-" env:"ENCRYPTION_KEY"`

	// SmallEntryBytes and LargeEntryBytes drive tier selection: encoded
	// values at or under SmallEntryBytes target the fastest tier, values
	// over LargeEntryBytes target the slowest, everything else starts in
	// the middle.
	SmallEntryBytes int64 `yaml:"small_entry_bytes" env:"SMALL_ENTRY_BYTES"`
	LargeEntryBytes int64 `yaml:"large_entry_bytes" env:"LARGE_ENTRY_BYTES"`

	// PromotionThreshold is the access count above which Optimize moves
	// an entry into the fastest tier.
	PromotionThreshold int64 `yaml:"promotion_threshold" env:"PROMOTION_THRESHOLD"`

	// PromotionLimit bounds how many entries one Optimize pass promotes,
	// to avoid thrashing the fast tier.
	PromotionLimit int `yaml:"promotion_limit" env:"PROMOTION_LIMIT"`
}

// DefaultConfig returns a default cache configuration.
func DefaultConfig() Config {
	return Config{
		TTL:                 time.Hour,
		MaxEntryBytes:       10 << 20,
		Compression:         false,
		CompressionMinBytes: 512,
		Encryption:          false,
		SmallEntryBytes:     4 << 10,
		LargeEntryBytes:     256 << 10,
		PromotionThreshold:  5,
		PromotionLimit:      20,
	}
}
