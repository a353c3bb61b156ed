// Package config holds all pixelsense configuration. Configuration is loaded
// from <state-dir>/config.yaml, overridden by PIXELSENSE_* environment
// variables, with in-code defaults as the base layer.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all pixelsense configuration.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// StateDir is where the database, logs and manifests live.
	StateDir string `yaml:"state_dir"`

	Pipeline      PipelineConfig      `yaml:"pipeline"`
	Cache         CacheConfig         `yaml:"cache"`
	Store         StoreConfig         `yaml:"store"`
	Escalation    EscalationConfig    `yaml:"escalation"`
	Discriminator DiscriminatorConfig `yaml:"discriminator"`
	Vision        VisionConfig        `yaml:"vision"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:     "pixelsense",
		Version:  "1.0.0",
		StateDir: ".pixelsense",

		Pipeline: PipelineConfig{
			MaxParallelism:     4,
			TotalTimeout:       "30s",
			WaveTimeout:        "5s",
			EnableEarlyExit:    true,
			EarlyExitThreshold: 0.85,
			ManifestDir:        "manifests",
			WatchManifests:     false,
			CacheThreshold:     0.5,
		},

		Cache: CacheConfig{
			Capacity:           2048,
			TTL:                "24h",
			MaxHamming:         5,
			PerceptualIndexCap: 8192,
		},

		Store: StoreConfig{
			DatabasePath:  "data/signatures.db",
			FlushInterval: "500ms",
			LRUSize:       1024,
			LRUExpiry:     "10m",
			EMAAlpha:      0.2,
		},

		Escalation: EscalationConfig{
			TypeConfidenceFloor: 0.7,
			SharpnessFloor:      300,
			TextLikelinessFloor: 0.4,
			MaxCaptionLength:    125,
		},

		Discriminator: DiscriminatorConfig{
			DecayRate:      0.95,
			PruneThreshold: 0.1,
		},

		Vision: VisionConfig{
			Provider: "gemini",
			Model:    "gemini-2.0-flash",
			Timeout:  "60s",
		},

		Logging: LoggingConfig{
			DebugMode:  false,
			Level:      "info",
			JSONFormat: false,
		},
	}
}

// Load reads the config file from stateDir (if present), applies environment
// overrides, and validates. A missing config file is not an error.
func Load(stateDir string) (*Config, error) {
	cfg := DefaultConfig()
	if stateDir != "" {
		cfg.StateDir = stateDir
	}

	path := filepath.Join(cfg.StateDir, "config.yaml")
	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks invariants that would otherwise surface as runtime faults.
func (c *Config) Validate() error {
	if c.Pipeline.MaxParallelism < 1 {
		return fmt.Errorf("config invalid: pipeline.max_parallelism must be >= 1, got %d", c.Pipeline.MaxParallelism)
	}
	if c.Pipeline.EarlyExitThreshold < 0 || c.Pipeline.EarlyExitThreshold > 1 {
		return fmt.Errorf("config invalid: pipeline.early_exit_threshold must be in [0,1]")
	}
	if c.Cache.Capacity < 1 {
		return fmt.Errorf("config invalid: cache.capacity must be >= 1")
	}
	if c.Store.EMAAlpha <= 0 || c.Store.EMAAlpha >= 1 {
		return fmt.Errorf("config invalid: store.ema_alpha must be in (0,1)")
	}
	if c.Discriminator.DecayRate <= 0 || c.Discriminator.DecayRate > 1 {
		return fmt.Errorf("config invalid: discriminator.decay_rate must be in (0,1]")
	}
	for _, d := range []struct {
		name, val string
	}{
		{"pipeline.total_timeout", c.Pipeline.TotalTimeout},
		{"pipeline.wave_timeout", c.Pipeline.WaveTimeout},
		{"cache.ttl", c.Cache.TTL},
		{"store.flush_interval", c.Store.FlushInterval},
		{"store.lru_expiry", c.Store.LRUExpiry},
		{"vision.timeout", c.Vision.Timeout},
	} {
		if _, err := time.ParseDuration(d.val); err != nil {
			return fmt.Errorf("config invalid: %s: %w", d.name, err)
		}
	}
	return nil
}

// Save writes the config back to <state-dir>/config.yaml.
func (c *Config) Save() error {
	if err := os.MkdirAll(c.StateDir, 0755); err != nil {
		return fmt.Errorf("failed to create state dir: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	path := filepath.Join(c.StateDir, "config.yaml")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// DatabasePath resolves the store database path relative to the state dir.
func (c *Config) DatabasePath() string {
	if c.Store.DatabasePath == ":memory:" || filepath.IsAbs(c.Store.DatabasePath) {
		return c.Store.DatabasePath
	}
	return filepath.Join(c.StateDir, c.Store.DatabasePath)
}

// ManifestDir resolves the wave manifest directory relative to the state dir.
func (c *Config) ManifestDir() string {
	if filepath.IsAbs(c.Pipeline.ManifestDir) {
		return c.Pipeline.ManifestDir
	}
	return filepath.Join(c.StateDir, c.Pipeline.ManifestDir)
}

// applyEnvOverrides applies PIXELSENSE_* environment variables on top of the
// loaded config. Only the knobs that matter operationally are exposed.
func applyEnvOverrides(c *Config) {
	if v := os.Getenv("PIXELSENSE_STATE_DIR"); v != "" {
		c.StateDir = v
	}
	if v := os.Getenv("PIXELSENSE_DEBUG"); v != "" {
		c.Logging.DebugMode = v == "1" || v == "true"
	}
	if v := os.Getenv("PIXELSENSE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("PIXELSENSE_DB_PATH"); v != "" {
		c.Store.DatabasePath = v
	}
	if v := os.Getenv("PIXELSENSE_MAX_PARALLELISM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Pipeline.MaxParallelism = n
		}
	}
	if v := os.Getenv("PIXELSENSE_VISION_API_KEY"); v != "" {
		c.Vision.APIKey = v
	}
	if v := os.Getenv("PIXELSENSE_VISION_MODEL"); v != "" {
		c.Vision.Model = v
	}
}

// MustDuration parses a duration string that Validate has already checked.
func MustDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}
