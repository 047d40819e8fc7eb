// Package cache models the hit/miss behaviour of a single cache level.
//
// A Cache is one set-associative engine: associativity 1 gives a
// direct-mapped cache and associativity equal to the number of lines gives a
// fully-associative one. Every miss is classified as compulsory, capacity or
// conflict with the help of a fully-associative LRU shadow of the same
// capacity.
//
// A Cache is not safe for concurrent use.
package cache

import (
	"fmt"
	"sync/atomic"

	"github.com/sarchlab/akita/v4/sim"
	"github.com/sirupsen/logrus"
)

// Topology names the organisation implied by a geometry.
type Topology string

const (
	DirectMapped     Topology = "direct_mapped"
	SetAssociative   Topology = "set_associative"
	FullyAssociative Topology = "fully_associative"
)

// TopologyOf derives the topology of a configuration.
func TopologyOf(config Config) Topology {
	switch {
	case config.Associativity == 1:
		return DirectMapped
	case config.NumSets() == 1:
		return FullyAssociative
	default:
		return SetAssociative
	}
}

// HookPosAccess is the hook position invoked after every access. The hook
// context carries an AccessEvent as Item.
var HookPosAccess = &sim.HookPos{Name: "CacheAccess"}

// AccessEvent describes one completed access.
type AccessEvent struct {
	Access  Access
	Outcome Outcome
	Set     int
	Way     int
	// Evicted is true if a valid line was replaced.
	Evicted bool
}

// Model is the capability set shared by all cache models.
type Model interface {
	Read(addr uint64) (Outcome, error)
	Write(addr uint64) (Outcome, error)
	Clear()
	Stats() Statistics
	Report() Report
}

var instanceCount atomic.Uint64

// Cache is a set-associative cache model with three-Cs miss classification.
type Cache struct {
	*sim.HookableBase

	config     Config
	storage    *storage
	classifier *classifier
	stats      aggregator
	log        *logrus.Entry
}

// Option customizes a Cache.
type Option func(*Cache)

// WithLogger makes the cache log through logger instead of the standard
// logrus logger.
func WithLogger(logger *logrus.Logger) Option {
	return func(c *Cache) {
		c.log = logger.WithField("cache", c.config.Name)
	}
}

// WithHook registers a hook invoked after every access.
func WithHook(hook sim.Hook) Option {
	return func(c *Cache) {
		c.AcceptHook(hook)
	}
}

// New validates config and creates an empty cache. No cache is returned
// when validation fails.
func New(config Config, opts ...Option) (*Cache, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("failed to create cache: %w", err)
	}

	if config.Name == "" {
		n := instanceCount.Add(1) - 1
		config.Name = fmt.Sprintf("%s_cache_%d", TopologyOf(config), n)
	}

	c := &Cache{
		HookableBase: sim.NewHookableBase(),
		config:       config,
		storage:      newStorage(config),
		classifier:   newClassifier(config),
	}
	c.log = logrus.WithField("cache", config.Name)

	for _, opt := range opts {
		opt(c)
	}

	c.logCreation()

	return c, nil
}

// MustNew is like New but panics on an invalid configuration.
func MustNew(config Config, opts ...Option) *Cache {
	c, err := New(config, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Cache) logCreation() {
	c.log.WithFields(logrus.Fields{
		"topology": c.Topology(),
		"policy":   c.config.Policy,
		"ways":     c.config.Associativity,
		"size":     formatSize(c.config.Size),
		"tag_kib":  fmt.Sprintf("%.3f", c.TagStoreBytes()/1024),
	}).Info("Created new cache")

	c.log.WithFields(logrus.Fields{
		"line_bytes": c.config.BlockSize,
		"sets":       c.config.NumSets(),
		"lines":      c.config.NumLines(),
		"tag_bits":   c.TagBits(),
	}).Debug("Cache geometry")
}

// Config returns the cache configuration.
func (c *Cache) Config() Config {
	return c.config
}

// Name returns the cache name.
func (c *Cache) Name() string {
	return c.config.Name
}

// Topology returns the organisation of the cache.
func (c *Cache) Topology() Topology {
	return TopologyOf(c.config)
}

// TagBits returns the width of each stored tag.
func (c *Cache) TagBits() int {
	return c.storage.decoder.TagBits()
}

// TagStoreBytes returns the size of the tag array.
func (c *Cache) TagStoreBytes() float64 {
	return float64(c.TagBits()*c.config.NumLines()) / 8
}

// Read performs a cache read.
func (c *Cache) Read(addr uint64) (Outcome, error) {
	return c.Access(Access{Addr: addr, Kind: Read})
}

// Write performs a cache write. Writes allocate on a miss and leave the
// line dirty.
func (c *Cache) Write(addr uint64) (Outcome, error) {
	return c.Access(Access{Addr: addr, Kind: Write})
}

// Access performs one read or write. An address outside the configured
// address width is rejected before any state changes and reported as
// Rejected together with the error.
func (c *Cache) Access(a Access) (Outcome, error) {
	if err := c.storage.decoder.CheckAddr(a.Addr); err != nil {
		return Rejected, err
	}

	write := a.Kind == Write
	c.stats.begin()

	hit := c.storage.probe(a.Addr)
	outcome := c.classifier.observe(a.Addr, write, hit)
	result := c.storage.access(a.Addr, write)

	c.stats.record(a.Kind, outcome, result)

	if c.log.Logger.IsLevelEnabled(logrus.DebugLevel) {
		c.log.WithFields(logrus.Fields{
			"kind":    a.Kind,
			"addr":    fmt.Sprintf("0x%x", a.Addr),
			"set":     result.set,
			"way":     result.way,
			"outcome": outcome,
		}).Debug("Access")
	}

	c.InvokeHook(sim.HookCtx{
		Domain: c,
		Pos:    HookPosAccess,
		Item: AccessEvent{
			Access:  a,
			Outcome: outcome,
			Set:     result.set,
			Way:     result.way,
			Evicted: result.evicted,
		},
	})

	return outcome, nil
}

// Clear returns the cache to its cold state: lines, policy metadata,
// counters and classification history are all reset.
func (c *Cache) Clear() {
	c.storage.reset()
	c.classifier.reset()
	c.stats.reset()
}

// Stats returns cache statistics.
func (c *Cache) Stats() Statistics {
	return c.stats.stats
}

// Hits returns the number of hits.
func (c *Cache) Hits() uint64 {
	return c.stats.stats.Hits()
}

// Misses returns the number of misses of all kinds.
func (c *Cache) Misses() uint64 {
	return c.stats.stats.Misses.Sum()
}

// HitRatio returns hits over accesses, or 0 before the first access.
func (c *Cache) HitRatio() float64 {
	return c.stats.stats.HitRatio()
}

// MissRatio returns misses over accesses, or 0 before the first access.
func (c *Cache) MissRatio() float64 {
	return c.stats.stats.MissRatio()
}

// AMAT returns HitLatency + MissRatio*MissPenalty.
func (c *Cache) AMAT() float64 {
	return c.stats.stats.AMAT(c.config.HitLatency, c.config.MissPenalty)
}

// Occupancy returns the number of valid lines.
func (c *Cache) Occupancy() int {
	return c.storage.occupancy()
}

// DistinctBlocks returns the number of different blocks referenced since
// the last Clear.
func (c *Cache) DistinctBlocks() int {
	return c.classifier.distinctBlocks()
}

// Report returns a snapshot of the configuration and statistics.
func (c *Cache) Report() Report {
	return Report{
		Name:          c.config.Name,
		Topology:      c.Topology(),
		Policy:        c.config.Policy,
		Associativity: c.config.Associativity,
		Size:          c.config.Size,
		BlockSize:     c.config.BlockSize,
		TagBits:       c.TagBits(),
		TagStoreBytes: c.TagStoreBytes(),
		HitLatency:    c.config.HitLatency,
		MissPenalty:   c.config.MissPenalty,
		Stats:         c.stats.stats,
	}
}
