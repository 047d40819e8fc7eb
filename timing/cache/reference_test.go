package cache_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	akitacache "github.com/sarchlab/akita/v4/mem/cache"

	"github.com/sarchlab/cachemodel/timing/cache"
)

// akitaReference replays a trace through akita's directory with its LRU
// victim finder and reports whether each access hit.
func akitaReference(config cache.Config, trace []cache.Access) []bool {
	directory := akitacache.NewDirectory(
		config.NumSets(),
		config.Associativity,
		config.BlockSize,
		akitacache.NewLRUVictimFinder(),
	)

	hits := make([]bool, len(trace))
	for i, a := range trace {
		blockAddr := (a.Addr / uint64(config.BlockSize)) * uint64(config.BlockSize)

		block := directory.Lookup(0, blockAddr)
		if block != nil && block.IsValid {
			hits[i] = true
			directory.Visit(block)
			continue
		}

		victim := directory.FindVictim(blockAddr)
		victim.Tag = blockAddr
		victim.IsValid = true
		directory.Visit(victim)
	}

	return hits
}

var _ = Describe("Reference equivalence", func() {
	It("should match akita's fully-associative LRU directory", func() {
		config := cache.Config{
			Size:          512,
			BlockSize:     64,
			Associativity: 8,
			Policy:        cache.PolicyLRU,
			AddressWidth:  32,
		}
		trace := randomTrace(17, 4000, 14, 64)

		outcomes := replay(cache.MustNew(config), trace)
		expected := akitaReference(config, trace)

		for i := range trace {
			Expect(outcomes[i].IsHit()).To(Equal(expected[i]),
				"access %d to 0x%x", i, trace[i].Addr)
		}
	})

	It("should match akita's set-associative LRU directory", func() {
		config := cache.Config{
			Size:          2048,
			BlockSize:     64,
			Associativity: 4,
			Policy:        cache.PolicyLRU,
			AddressWidth:  32,
		}
		trace := randomTrace(23, 4000, 48, 64)

		outcomes := replay(cache.MustNew(config), trace)
		expected := akitaReference(config, trace)

		for i := range trace {
			Expect(outcomes[i].IsHit()).To(Equal(expected[i]),
				"access %d to 0x%x", i, trace[i].Addr)
		}
	})
})
