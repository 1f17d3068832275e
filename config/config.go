// Package config composes the per-component configurations into one layer
// configuration, loaded from YAML with environment overrides.
package config

import (
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/c360/perfkit/cache"
	"github.com/c360/perfkit/errors"
	"github.com/c360/perfkit/lazyload"
	"github.com/c360/perfkit/monitor"
	"github.com/c360/perfkit/recovery"
	"github.com/c360/perfkit/storage"
)

// envPrefix namespaces every override, e.g. PERFKIT_CACHE_TTL.
const envPrefix = "PERFKIT_"

// Layer is the full configuration of the performance layer.
type Layer struct {
	Storage  storage.Config         `yaml:"storage" envPrefix:"STORAGE_"`
	Cache    cache.Config           `yaml:"cache" envPrefix:"CACHE_"`
	Recovery recovery.Config        `yaml:"recovery" envPrefix:"RECOVERY_"`
	Session  recovery.SessionConfig `yaml:"session" envPrefix:"SESSION_"`
	LazyLoad lazyload.Config        `yaml:"lazyload" envPrefix:"LAZYLOAD_"`
	Monitor  monitor.Config         `yaml:"monitor" envPrefix:"MONITOR_"`
}

// Default returns the layer defaults: every component at its own
// DefaultConfig.
func Default() Layer {
	return Layer{
		Storage:  storage.DefaultConfig(),
		Cache:    cache.DefaultConfig(),
		Recovery: recovery.DefaultConfig(),
		Session:  recovery.DefaultSessionConfig(),
		LazyLoad: lazyload.DefaultConfig(),
		Monitor:  monitor.DefaultConfig(),
	}
}

// Load reads the layer configuration: defaults, overlaid by the YAML file
// at path (skipped when path is empty), overlaid by PERFKIT_* environment
// variables.
func Load(path string) (Layer, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, errors.Wrap(err, "config", "Load", "read "+path)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, errors.WrapPermanent(err, "config", "Load", "parse "+path)
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: envPrefix}); err != nil {
		return cfg, errors.WrapPermanent(err, "config", "Load", "apply environment overrides")
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects configurations the components would misbehave under.
func (l Layer) Validate() error {
	if l.Cache.TTL < 0 {
		return errors.WrapPermanent(errors.ErrInvalidConfig, "config", "Validate", "check cache ttl")
	}
	if l.Cache.MaxEntryBytes < 0 {
		return errors.WrapPermanent(errors.ErrInvalidConfig, "config", "Validate", "check cache max entry size")
	}
	if l.Cache.Encryption && l.Cache.EncryptionKey == "" {
		return errors.WrapPermanent(errors.ErrMissingConfig, "config", "Validate", "check cache encryption key")
	}
	if l.Recovery.MaxRetries < 0 {
		return errors.WrapPermanent(errors.ErrInvalidConfig, "config", "Validate", "check retry count")
	}
	if l.Session.MaxAge < 0 {
		return errors.WrapPermanent(errors.ErrInvalidConfig, "config", "Validate", "check session max age")
	}
	if l.LazyLoad.VisibilityThreshold < 0 || l.LazyLoad.VisibilityThreshold > 1 {
		return errors.WrapPermanent(errors.ErrInvalidConfig, "config", "Validate", "check visibility threshold")
	}
	if l.Monitor.SampleRate < 0 || l.Monitor.SampleRate > 1 {
		return errors.WrapPermanent(errors.ErrInvalidConfig, "config", "Validate", "check monitor sample rate")
	}
	if l.Monitor.ReportInterval < 0 || l.Monitor.ReportWindow < 0 {
		return errors.WrapPermanent(errors.ErrInvalidConfig, "config", "Validate", "check monitor intervals")
	}
	return nil
}
