package storage

import (
	"context"
)

// Config describes the tier stack, fastest to slowest.
type Config struct {
	Memory  MemoryConfig  `yaml:"memory" envPrefix:"MEMORY_"`
	Session SessionConfig `yaml:"session" envPrefix:"SESSION_"`
	Local   LocalConfig   `yaml:"local" envPrefix:"LOCAL_"`
	Bulk    BulkConfig    `yaml:"bulk" envPrefix:"BULK_"`
}

// MemoryConfig configures the in-process tier.
type MemoryConfig struct {
	MaxBytes      int64 `yaml:"max_bytes" env:"MAX_BYTES"`
	MaxEntries    int   `yaml:"max_entries" env:"MAX_ENTRIES"`
	MaxEntryBytes int64 `yaml:"max_entry_bytes" env:"MAX_ENTRY_BYTES"`
}

// SessionConfig configures the session-scoped tier.
type SessionConfig struct {
	MaxBytes      int64 `yaml:"max_bytes" env:"MAX_BYTES"`
	MaxEntryBytes int64 `yaml:"max_entry_bytes" env:"MAX_ENTRY_BYTES"`
}

// LocalConfig configures the durable file tier. An empty Dir disables the
// tier.
type LocalConfig struct {
	Dir           string `yaml:"dir" env:"DIR"`
	MaxBytes      int64  `yaml:"max_bytes" env:"MAX_BYTES"`
	MaxEntryBytes int64  `yaml:"max_entry_bytes" env:"MAX_ENTRY_BYTES"`
}

// BulkConfig configures the SQLite tier. An empty Path disables the tier.
type BulkConfig struct {
	Path          string `yaml:"path" env:"PATH"`
	MaxBytes      int64  `yaml:"max_bytes" env:"MAX_BYTES"`
	MaxEntryBytes int64  `yaml:"max_entry_bytes" env:"MAX_ENTRY_BYTES"`
}

// DefaultConfig returns the default tier stack: memory and session tiers
// only. Durable tiers are opt-in because they need host-owned paths.
func DefaultConfig() Config {
	return Config{
		Memory:  MemoryConfig{MaxBytes: 5 << 20, MaxEntries: 1000, MaxEntryBytes: 1 << 20},
		Session: SessionConfig{MaxBytes: 10 << 20, MaxEntryBytes: 2 << 20},
		Local:   LocalConfig{MaxBytes: 50 << 20, MaxEntryBytes: 5 << 20},
		Bulk:    BulkConfig{MaxBytes: 200 << 20, MaxEntryBytes: 50 << 20},
	}
}

// OpenTiers constructs the configured tier stack in rank order. Durable
// tiers without a configured location are skipped, so the layer degrades
// gracefully where no durable storage is available.
func OpenTiers(ctx context.Context, cfg Config) ([]Tier, error) {
	tiers := []Tier{
		NewMemoryTier(cfg.Memory.MaxBytes, cfg.Memory.MaxEntries, cfg.Memory.MaxEntryBytes),
		NewSessionTier(cfg.Session.MaxBytes, cfg.Session.MaxEntryBytes),
	}

	if cfg.Local.Dir != "" {
		local, err := NewLocalTier(cfg.Local.Dir, cfg.Local.MaxBytes, cfg.Local.MaxEntryBytes)
		if err != nil {
			closeTiers(tiers)
			return nil, err
		}
		tiers = append(tiers, local)
	}

	if cfg.Bulk.Path != "" {
		bulk, err := NewBulkTier(ctx, cfg.Bulk.Path, cfg.Bulk.MaxBytes, cfg.Bulk.MaxEntryBytes)
		if err != nil {
			closeTiers(tiers)
			return nil, err
		}
		tiers = append(tiers, bulk)
	}

	return tiers, nil
}

func closeTiers(tiers []Tier) {
	for _, t := range tiers {
		_ = t.Close()
	}
}
