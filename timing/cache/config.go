package cache

import (
	"fmt"
	"strings"
)

// ReplacementPolicy selects how a victim line is chosen within a full set.
type ReplacementPolicy uint8

const (
	// PolicyNone only works for direct-mapped caches, where the victim is
	// always the single line of the set.
	PolicyNone ReplacementPolicy = iota
	// PolicyRandom evicts a uniformly sampled line.
	PolicyRandom
	// PolicyFIFO evicts the line that was filled longest ago.
	PolicyFIFO
	// PolicyLRU evicts the least recently accessed line.
	PolicyLRU
	// PolicyNMRU evicts a uniformly sampled line other than the most
	// recently used one.
	PolicyNMRU
	// PolicyPLRU approximates LRU with a binary tree of direction bits.
	PolicyPLRU
)

var policyNames = [...]string{"NONE", "RANDOM", "FIFO", "LRU", "NMRU", "PLRU"}

func (p ReplacementPolicy) String() string {
	if int(p) < len(policyNames) {
		return policyNames[p]
	}
	return fmt.Sprintf("ReplacementPolicy(%d)", uint8(p))
}

func (p ReplacementPolicy) valid() bool {
	return int(p) < len(policyNames)
}

// ParsePolicy converts a policy name such as "lru" or "PLRU" to a
// ReplacementPolicy.
func ParsePolicy(name string) (ReplacementPolicy, error) {
	upper := strings.ToUpper(strings.TrimSpace(name))
	for i, n := range policyNames {
		if n == upper {
			return ReplacementPolicy(i), nil
		}
	}
	return PolicyNone, illegal("policy", name, "unknown replacement policy")
}

// Policies lists every replacement policy in declaration order.
func Policies() []ReplacementPolicy {
	return []ReplacementPolicy{
		PolicyNone, PolicyRandom, PolicyFIFO, PolicyLRU, PolicyNMRU, PolicyPLRU,
	}
}

// DefaultAddressWidth is the address width used by the presets when none is
// given.
const DefaultAddressWidth = 32

// KiB converts a size in kibibytes to bytes.
func KiB(n int) int {
	return n * 1024
}

// Config holds cache configuration parameters.
type Config struct {
	// Name identifies the cache in reports. Empty names are generated.
	Name string
	// Size in bytes
	Size int
	// BlockSize in bytes (cache line size)
	BlockSize int
	// Associativity (number of ways). 1 is direct-mapped, Size/BlockSize is
	// fully-associative.
	Associativity int
	// Policy used to pick a victim in a full set.
	Policy ReplacementPolicy
	// AddressWidth in bits, at most 64.
	AddressWidth int
	// HitLatency in cycles
	HitLatency uint64
	// MissPenalty in cycles, added on top of the hit latency for AMAT.
	MissPenalty uint64
	// Seed for the RANDOM and NMRU generators.
	Seed int64
}

// DefaultL1IConfig returns default configuration for an L1 instruction cache.
// Based on Apple M2 performance cores: 192KB, 6-way, 64B lines. The 6-way
// geometry yields 512 sets.
func DefaultL1IConfig() Config {
	return Config{
		Name:          "l1i",
		Size:          192 * 1024,
		BlockSize:     64,
		Associativity: 6,
		Policy:        PolicyLRU,
		AddressWidth:  64,
		HitLatency:    1,
		MissPenalty:   12,
	}
}

// DefaultL1DConfig returns default configuration for an L1 data cache.
// Based on Apple M2 performance cores: 128KB, 8-way, 64B lines, 3-cycle
// load-to-use latency.
func DefaultL1DConfig() Config {
	return Config{
		Name:          "l1d",
		Size:          128 * 1024,
		BlockSize:     64,
		Associativity: 8,
		Policy:        PolicyLRU,
		AddressWidth:  64,
		HitLatency:    3,
		MissPenalty:   12,
	}
}

// DefaultL2Config returns default configuration for a unified L2 cache.
// 24MB would need a non power-of-two set count with 16 ways, so the preset
// uses the 16MB slice with 128B lines.
func DefaultL2Config() Config {
	return Config{
		Name:          "l2",
		Size:          16 * 1024 * 1024,
		BlockSize:     128,
		Associativity: 16,
		Policy:        PolicyLRU,
		AddressWidth:  64,
		HitLatency:    12,
		MissPenalty:   150,
	}
}

// NumLines returns the total number of lines.
func (c Config) NumLines() int {
	return c.Size / c.BlockSize
}

// NumSets returns the number of sets.
func (c Config) NumSets() int {
	return c.Size / (c.BlockSize * c.Associativity)
}

// FullyAssociative returns a copy of the configuration that keeps the total
// capacity and line size but places every line in a single set.
func (c Config) FullyAssociative() Config {
	fa := c
	fa.Associativity = c.NumLines()
	return fa
}

// Validate checks the geometry and the policy. Every failure is a
// *ConfigurationError naming the offending field.
func (c Config) Validate() error {
	if c.Size <= 0 {
		return illegal("size", c.Size, "must be positive")
	}
	if c.BlockSize <= 0 {
		return illegal("block_size", c.BlockSize, "must be positive")
	}
	if !isPowerOfTwo(c.BlockSize) {
		return illegal("block_size", c.BlockSize, "must be a power of two")
	}
	if c.Associativity <= 0 {
		return illegal("associativity", c.Associativity, "must be positive")
	}
	if c.Size%(c.BlockSize*c.Associativity) != 0 {
		return illegal("associativity", c.Associativity,
			"%d ways of %dB lines do not divide %dB evenly",
			c.Associativity, c.BlockSize, c.Size)
	}
	if !isPowerOfTwo(c.NumSets()) {
		return illegal("size", c.Size,
			"set count %d is not a power of two", c.NumSets())
	}
	if c.AddressWidth <= 0 || c.AddressWidth > 64 {
		return illegal("address_width", c.AddressWidth, "must be in [1, 64]")
	}
	if !c.Policy.valid() {
		return illegal("policy", c.Policy, "unknown replacement policy")
	}
	if c.Policy == PolicyNone && c.Associativity != 1 {
		return illegal("policy", c.Policy,
			"requires associativity 1, got %d", c.Associativity)
	}
	if c.Policy == PolicyPLRU && !isPowerOfTwo(c.Associativity) {
		return illegal("associativity", c.Associativity,
			"PLRU needs a power-of-two number of ways")
	}

	offsetBits, _ := Clog2(c.BlockSize)
	indexBits, _ := Clog2(c.NumSets())
	if offsetBits+indexBits > c.AddressWidth {
		return illegal("address_width", c.AddressWidth,
			"%d offset bits and %d index bits leave no room for a tag",
			offsetBits, indexBits)
	}

	return nil
}

func isPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}
