package cache_test

import (
	"errors"
	"math/rand"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/cachemodel/timing/cache"
)

// smallConfig is 256B with 16B lines: 16 lines, 8 sets of 2 ways.
// Addresses 128 bytes apart share a set.
func smallConfig(policy cache.ReplacementPolicy) cache.Config {
	return cache.Config{
		Name:          "small",
		Size:          256,
		BlockSize:     16,
		Associativity: 2,
		Policy:        policy,
		AddressWidth:  32,
		HitLatency:    1,
		MissPenalty:   10,
	}
}

func mustRead(c *cache.Cache, addr uint64) cache.Outcome {
	outcome, err := c.Read(addr)
	Expect(err).NotTo(HaveOccurred())
	return outcome
}

func randomTrace(seed int64, n int, blocks int, blockSize int) []cache.Access {
	rng := rand.New(rand.NewSource(seed))
	trace := make([]cache.Access, n)
	for i := range trace {
		trace[i] = cache.Access{
			Addr: uint64(rng.Intn(blocks)*blockSize + rng.Intn(blockSize)),
			Kind: cache.AccessKind(rng.Intn(2)),
		}
	}
	return trace
}

func replay(c *cache.Cache, trace []cache.Access) []cache.Outcome {
	outcomes := make([]cache.Outcome, len(trace))
	for i, a := range trace {
		o, err := c.Access(a)
		Expect(err).NotTo(HaveOccurred())
		outcomes[i] = o
	}
	return outcomes
}

var _ = Describe("Cache", func() {
	const (
		a = uint64(0x000)
		b = uint64(0x080)
		c = uint64(0x100)
	)

	Describe("Read operations", func() {
		var sut *cache.Cache

		BeforeEach(func() {
			sut = cache.MustNew(smallConfig(cache.PolicyLRU))
		})

		It("should miss compulsorily on a cold cache", func() {
			Expect(mustRead(sut, 0x40)).To(Equal(cache.CompulsoryMiss))

			stats := sut.Stats()
			Expect(stats.Totals.Reads).To(Equal(uint64(1)))
			Expect(stats.Misses.Compulsory).To(Equal(uint64(1)))
			Expect(stats.Hits()).To(Equal(uint64(0)))
		})

		It("should hit on cached data", func() {
			mustRead(sut, 0x40)
			Expect(mustRead(sut, 0x40)).To(Equal(cache.Hit))
			Expect(sut.Hits()).To(Equal(uint64(1)))
			Expect(sut.Misses()).To(Equal(uint64(1)))
		})

		It("should hit on different addresses in the same line", func() {
			mustRead(sut, 0x40)
			Expect(mustRead(sut, 0x4F)).To(Equal(cache.Hit))
			Expect(mustRead(sut, 0x50)).To(Equal(cache.CompulsoryMiss))
		})
	})

	Describe("Write operations", func() {
		It("should write-allocate on miss", func() {
			sut := cache.MustNew(smallConfig(cache.PolicyLRU))

			outcome, err := sut.Write(0x40)
			Expect(err).NotTo(HaveOccurred())
			Expect(outcome).To(Equal(cache.CompulsoryMiss))
			Expect(mustRead(sut, 0x40)).To(Equal(cache.Hit))

			stats := sut.Stats()
			Expect(stats.Totals.Writes).To(Equal(uint64(1)))
			Expect(stats.Totals.Reads).To(Equal(uint64(1)))
		})

		It("should write back dirty victims", func() {
			sut := cache.MustNew(smallConfig(cache.PolicyLRU))

			_, _ = sut.Write(a)
			mustRead(sut, b)
			mustRead(sut, c) // evicts a, which is dirty
			mustRead(sut, a) // evicts b, which is clean

			stats := sut.Stats()
			Expect(stats.Evictions).To(Equal(uint64(2)))
			Expect(stats.Writebacks).To(Equal(uint64(1)))
		})
	})

	Describe("FIFO replacement", func() {
		It("should evict the oldest line", func() {
			sut := cache.MustNew(smallConfig(cache.PolicyFIFO))

			Expect(mustRead(sut, a)).To(Equal(cache.CompulsoryMiss))
			Expect(mustRead(sut, b)).To(Equal(cache.CompulsoryMiss))
			Expect(mustRead(sut, c)).To(Equal(cache.CompulsoryMiss))

			Expect(mustRead(sut, b)).To(Equal(cache.Hit))
			Expect(mustRead(sut, a)).To(Equal(cache.ConflictMiss))
		})
	})

	Describe("LRU replacement", func() {
		It("should evict the least recently used line", func() {
			sut := cache.MustNew(smallConfig(cache.PolicyLRU))

			mustRead(sut, a)
			mustRead(sut, b)
			Expect(mustRead(sut, a)).To(Equal(cache.Hit))
			Expect(mustRead(sut, c)).To(Equal(cache.CompulsoryMiss))

			Expect(mustRead(sut, a)).To(Equal(cache.Hit))
			Expect(mustRead(sut, b)).To(Equal(cache.ConflictMiss))
		})
	})

	Describe("Miss classification", func() {
		// 64B with 16B lines, direct-mapped: 4 sets of 1 way.
		var sut *cache.Cache

		BeforeEach(func() {
			sut = cache.MustNew(cache.Config{
				Size:          64,
				BlockSize:     16,
				Associativity: 1,
				Policy:        cache.PolicyNone,
				AddressWidth:  16,
				HitLatency:    1,
				MissPenalty:   10,
			})
		})

		It("should report conflict misses for ping-ponging blocks", func() {
			Expect(mustRead(sut, 0x00)).To(Equal(cache.CompulsoryMiss))
			Expect(mustRead(sut, 0x40)).To(Equal(cache.CompulsoryMiss))
			Expect(mustRead(sut, 0x00)).To(Equal(cache.ConflictMiss))
			Expect(mustRead(sut, 0x40)).To(Equal(cache.ConflictMiss))

			Expect(sut.Stats().Misses).To(Equal(cache.MissBreakdown{
				Compulsory: 2,
				Conflict:   2,
			}))
		})

		It("should report capacity misses when the working set is too big", func() {
			for addr := uint64(0); addr <= 0x40; addr += 0x10 {
				Expect(mustRead(sut, addr)).To(Equal(cache.CompulsoryMiss))
			}
			Expect(mustRead(sut, 0x00)).To(Equal(cache.CapacityMiss))
		})

		It("should count distinct blocks", func() {
			mustRead(sut, 0x00)
			mustRead(sut, 0x08)
			mustRead(sut, 0x40)
			Expect(sut.DistinctBlocks()).To(Equal(2))
		})
	})

	Describe("Hit and miss accounting", func() {
		for _, policy := range []cache.ReplacementPolicy{
			cache.PolicyRandom, cache.PolicyFIFO, cache.PolicyLRU,
			cache.PolicyNMRU, cache.PolicyPLRU,
		} {
			policy := policy

			It("should balance hits and misses under "+policy.String(), func() {
				config := smallConfig(policy)
				config.Associativity = 4
				config.Seed = 11
				sut := cache.MustNew(config)

				for _, access := range randomTrace(int64(policy), 2000, 40, 16) {
					_, err := sut.Access(access)
					Expect(err).NotTo(HaveOccurred())

					s := sut.Stats()
					Expect(s.Hits() + s.Misses.Sum()).To(Equal(s.Totals.Sum()))
					Expect(sut.Occupancy()).To(BeNumerically("<=", config.NumLines()))
				}

				s := sut.Stats()
				Expect(s.Totals.Sum()).To(Equal(uint64(2000)))
				Expect(s.Misses.Compulsory).To(Equal(uint64(sut.DistinctBlocks())))
			})
		}
	})

	Describe("Equivalences", func() {
		It("should treat every direct-mapped policy alike", func() {
			base := smallConfig(cache.PolicyNone)
			base.Associativity = 1
			trace := randomTrace(3, 1500, 64, 16)

			reference := replay(cache.MustNew(base), trace)
			for _, policy := range []cache.ReplacementPolicy{
				cache.PolicyRandom, cache.PolicyFIFO, cache.PolicyLRU,
				cache.PolicyNMRU, cache.PolicyPLRU,
			} {
				config := base
				config.Policy = policy
				Expect(replay(cache.MustNew(config), trace)).To(Equal(reference))
			}
		})

		It("should never see conflict misses when fully associative", func() {
			config := smallConfig(cache.PolicyLRU).FullyAssociative()
			sut := cache.MustNew(config)
			Expect(sut.Topology()).To(Equal(cache.FullyAssociative))

			replay(sut, randomTrace(8, 3000, 40, 16))
			Expect(sut.Stats().Misses.Conflict).To(BeZero())
			Expect(sut.Stats().Misses.Capacity).NotTo(BeZero())
		})
	})

	Describe("Clear", func() {
		It("should cold-start the cache", func() {
			sut := cache.MustNew(smallConfig(cache.PolicyLRU))
			mustRead(sut, 0x40)
			mustRead(sut, 0x40)

			sut.Clear()
			Expect(sut.Stats()).To(Equal(cache.Statistics{}))
			Expect(sut.Occupancy()).To(BeZero())
			Expect(sut.DistinctBlocks()).To(BeZero())

			Expect(mustRead(sut, 0x40)).To(Equal(cache.CompulsoryMiss))
			Expect(mustRead(sut, 0x40)).To(Equal(cache.Hit))
		})

		It("should give identical results when a trace is replayed", func() {
			for _, policy := range []cache.ReplacementPolicy{
				cache.PolicyRandom, cache.PolicyLRU, cache.PolicyNMRU,
			} {
				config := smallConfig(policy)
				config.Seed = 21
				sut := cache.MustNew(config)
				trace := randomTrace(5, 1000, 48, 16)

				first := replay(sut, trace)
				firstStats := sut.Stats()

				sut.Clear()
				Expect(replay(sut, trace)).To(Equal(first))
				Expect(sut.Stats()).To(Equal(firstStats))
			}
		})
	})

	Describe("Address range", func() {
		It("should reject an address without changing state", func() {
			config := smallConfig(cache.PolicyLRU)
			config.AddressWidth = 16
			sut := cache.MustNew(config)
			mustRead(sut, 0x40)
			before := sut.Stats()

			outcome, err := sut.Read(0x10000)
			Expect(errors.Is(err, cache.ErrAddressRange)).To(BeTrue())
			Expect(outcome).To(Equal(cache.Rejected))
			Expect(outcome.IsHit()).To(BeFalse())
			outcome, err = sut.Write(0x10040)
			Expect(errors.Is(err, cache.ErrAddressRange)).To(BeTrue())
			Expect(outcome.String()).To(Equal("rejected"))

			Expect(sut.Stats()).To(Equal(before))
			Expect(sut.DistinctBlocks()).To(Equal(1))
		})
	})

	Describe("Derived metrics", func() {
		It("should compute AMAT from the miss ratio", func() {
			config := smallConfig(cache.PolicyLRU)
			config.HitLatency = 1
			config.MissPenalty = 100
			sut := cache.MustNew(config)

			for i := 0; i < 10; i++ {
				mustRead(sut, 0x40)
			}

			Expect(sut.MissRatio()).To(BeNumerically("~", 0.1, 1e-12))
			Expect(sut.HitRatio()).To(BeNumerically("~", 0.9, 1e-12))
			Expect(sut.AMAT()).To(BeNumerically("~", 11.0, 1e-9))
		})

		It("should use zero ratios before the first access", func() {
			sut := cache.MustNew(smallConfig(cache.PolicyLRU))
			Expect(sut.HitRatio()).To(BeZero())
			Expect(sut.MissRatio()).To(BeZero())
			Expect(sut.AMAT()).To(Equal(1.0))
		})
	})

	Describe("Naming and reporting", func() {
		It("should generate a name from the topology", func() {
			config := smallConfig(cache.PolicyLRU)
			config.Name = ""
			sut := cache.MustNew(config)
			Expect(sut.Name()).To(HavePrefix("set_associative_cache_"))

			config.Associativity = 1
			Expect(cache.MustNew(config).Name()).To(HavePrefix("direct_mapped_cache_"))
		})

		It("should size the tag store", func() {
			sut := cache.MustNew(smallConfig(cache.PolicyLRU))
			// 32 - 4 offset bits - 3 index bits
			Expect(sut.TagBits()).To(Equal(25))
			Expect(sut.TagStoreBytes()).To(Equal(25.0 * 16 / 8))
		})

		It("should render a report", func() {
			sut := cache.MustNew(smallConfig(cache.PolicyPLRU))
			mustRead(sut, a)
			mustRead(sut, a)

			report := sut.Report()
			Expect(report.Topology).To(Equal(cache.SetAssociative))
			Expect(report.AMAT()).To(Equal(sut.AMAT()))

			text := report.String()
			Expect(text).To(ContainSubstring("----------- small -----------"))
			Expect(text).To(ContainSubstring("Replacement Policy:\tPLRU"))
			Expect(text).To(ContainSubstring("Cache size:\t256 bytes"))
			Expect(text).To(ContainSubstring("AMAT:\t6.000 clock cycles"))
			Expect(text).To(ContainSubstring("compulsory=1"))
		})
	})

	Describe("Model", func() {
		It("should be implemented by Cache", func() {
			var m cache.Model = cache.MustNew(smallConfig(cache.PolicyLRU))
			Expect(m.Report().Name).To(Equal("small"))
		})
	})
})
