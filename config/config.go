// Package config loads simulation settings from YAML (or JSON) files.
//
// A file describes one or more caches that are simulated side by side over
// the same address stream, plus run options such as the log level and the
// result database.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/sarchlab/cachemodel/timing/cache"
)

// CacheSpec describes one cache in a configuration file.
type CacheSpec struct {
	// Name identifies the cache in reports. Empty names are generated.
	Name string `yaml:"name" json:"name"`

	// SizeKiB is the capacity in KiB. Ignored when SizeBytes is set.
	SizeKiB int `yaml:"size_kib,omitempty" json:"size_kib,omitempty"`

	// SizeBytes is the capacity in bytes.
	SizeBytes int `yaml:"size_bytes,omitempty" json:"size_bytes,omitempty"`

	// LineBytes is the cache line size. Default: 64.
	LineBytes int `yaml:"line_bytes" json:"line_bytes"`

	// Ways is the associativity. 1 is direct-mapped. Default: 1.
	Ways int `yaml:"ways" json:"ways"`

	// FullyAssociative overrides Ways with the number of lines.
	FullyAssociative bool `yaml:"fully_associative,omitempty" json:"fully_associative,omitempty"`

	// Policy is one of NONE, RANDOM, FIFO, LRU, NMRU, PLRU. Default: LRU for
	// associative caches, NONE for direct-mapped ones.
	Policy string `yaml:"policy" json:"policy"`

	// AddressWidth in bits. Default: 32.
	AddressWidth int `yaml:"address_width" json:"address_width"`

	// HitLatency in cycles. Default: 1.
	HitLatency uint64 `yaml:"hit_latency" json:"hit_latency"`

	// MissPenalty in cycles. Default: 10.
	MissPenalty uint64 `yaml:"miss_penalty" json:"miss_penalty"`

	// Seed for the RANDOM and NMRU policies.
	Seed int64 `yaml:"seed" json:"seed"`
}

// Config holds everything a simulation run needs besides the trace.
type Config struct {
	// Caches are simulated independently over the same accesses.
	Caches []CacheSpec `yaml:"caches" json:"caches"`

	// LogLevel is a logrus level name. Default: "info".
	LogLevel string `yaml:"log_level" json:"log_level"`

	// ResultsDB is the SQLite file that receives result rows. Empty
	// disables recording.
	ResultsDB string `yaml:"results_db,omitempty" json:"results_db,omitempty"`
}

// DefaultCacheSpec returns a 4 KiB direct-mapped cache with 64B lines.
func DefaultCacheSpec() CacheSpec {
	return CacheSpec{
		SizeKiB:      4,
		LineBytes:    64,
		Ways:         1,
		Policy:       "NONE",
		AddressWidth: cache.DefaultAddressWidth,
		HitLatency:   1,
		MissPenalty:  10,
	}
}

// Default returns a configuration with a single default cache.
func Default() *Config {
	return &Config{
		Caches:   []CacheSpec{DefaultCacheSpec()},
		LogLevel: "info",
	}
}

// Load reads a configuration file. YAML is a superset of JSON, so both
// formats are accepted. Missing cache fields take their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes and validates configuration data.
func Parse(data []byte) (*Config, error) {
	config := &Config{LogLevel: "info"}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := config.finalize(); err != nil {
		return nil, err
	}

	return config, nil
}

// FromSpecs builds a validated configuration from cache specs, filling in
// the same defaults as Load.
func FromSpecs(specs ...CacheSpec) (*Config, error) {
	config := &Config{
		Caches:   append([]CacheSpec(nil), specs...),
		LogLevel: "info",
	}

	if err := config.finalize(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) finalize() error {
	if len(c.Caches) == 0 {
		c.Caches = []CacheSpec{DefaultCacheSpec()}
	}
	for i := range c.Caches {
		c.Caches[i].applyDefaults()
	}

	return c.Validate()
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks that every cache describes a valid geometry and that
// names are unique.
func (c *Config) Validate() error {
	if len(c.Caches) == 0 {
		return fmt.Errorf("at least one cache must be configured")
	}

	names := make(map[string]bool, len(c.Caches))
	for i, spec := range c.Caches {
		if _, err := spec.ToCache(); err != nil {
			return fmt.Errorf("cache %d (%q): %w", i, spec.Name, err)
		}

		if spec.Name == "" {
			continue
		}
		if names[spec.Name] {
			return fmt.Errorf("duplicate cache name %q", spec.Name)
		}
		names[spec.Name] = true
	}

	return nil
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	clone.Caches = append([]CacheSpec(nil), c.Caches...)
	return &clone
}

func (s *CacheSpec) applyDefaults() {
	def := DefaultCacheSpec()

	if s.SizeBytes == 0 && s.SizeKiB == 0 {
		s.SizeKiB = def.SizeKiB
	}
	if s.LineBytes == 0 {
		s.LineBytes = def.LineBytes
	}
	if s.Ways == 0 {
		s.Ways = def.Ways
	}
	if s.Policy == "" {
		if s.Ways == 1 && !s.FullyAssociative {
			s.Policy = "NONE"
		} else {
			s.Policy = "LRU"
		}
	}
	if s.AddressWidth == 0 {
		s.AddressWidth = def.AddressWidth
	}
	if s.HitLatency == 0 {
		s.HitLatency = def.HitLatency
	}
	if s.MissPenalty == 0 {
		s.MissPenalty = def.MissPenalty
	}
}

// Size returns the capacity in bytes.
func (s CacheSpec) Size() int {
	if s.SizeBytes != 0 {
		return s.SizeBytes
	}
	return cache.KiB(s.SizeKiB)
}

// ToCache converts the spec into a validated cache configuration.
func (s CacheSpec) ToCache() (cache.Config, error) {
	policy, err := cache.ParsePolicy(s.Policy)
	if err != nil {
		return cache.Config{}, err
	}

	config := cache.Config{
		Name:          s.Name,
		Size:          s.Size(),
		BlockSize:     s.LineBytes,
		Associativity: s.Ways,
		Policy:        policy,
		AddressWidth:  s.AddressWidth,
		HitLatency:    s.HitLatency,
		MissPenalty:   s.MissPenalty,
		Seed:          s.Seed,
	}
	if s.FullyAssociative && s.LineBytes > 0 {
		config.Associativity = config.Size / s.LineBytes
	}

	if err := config.Validate(); err != nil {
		return cache.Config{}, err
	}

	return config, nil
}

// CacheConfigs converts every cache spec.
func (c *Config) CacheConfigs() ([]cache.Config, error) {
	configs := make([]cache.Config, 0, len(c.Caches))
	for i, spec := range c.Caches {
		cc, err := spec.ToCache()
		if err != nil {
			return nil, fmt.Errorf("cache %d (%q): %w", i, spec.Name, err)
		}
		configs = append(configs, cc)
	}
	return configs, nil
}
