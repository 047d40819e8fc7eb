package benchmarks

import (
	"math/rand"

	"github.com/sarchlab/cachemodel/timing/cache"
)

// GetPatterns returns the standard set of synthetic access patterns.
// Each pattern targets a specific cache behavior.
func GetPatterns() []Pattern {
	return []Pattern{
		SequentialSweep(64*1024, 8, 2),
		StridedConflict(4096, 16, 8),
		RandomAccess(256*1024, 4096, 1),
		LoopWorkingSet(2*1024, 64, 32),
		CapacityThrash(1024*1024, 64, 2),
		ReadWriteMix(32*1024, 16, 4096, 7),
	}
}

// GetCorePatterns returns a minimal set of patterns for quick checks, one
// per miss category.
func GetCorePatterns() []Pattern {
	return []Pattern{
		LoopWorkingSet(2*1024, 64, 32),
		StridedConflict(4096, 16, 8),
		CapacityThrash(1024*1024, 64, 2),
	}
}

// SequentialSweep reads a region front to back, passes times. Exercises
// spatial locality.
func SequentialSweep(region, stride, passes int) Pattern {
	return Pattern{
		Name:        "sequential_sweep",
		Description: "sequential reads over a region - measures spatial locality",
		Generate: func() []cache.Access {
			accesses := make([]cache.Access, 0, passes*region/stride)
			for p := 0; p < passes; p++ {
				for addr := 0; addr < region; addr += stride {
					accesses = append(accesses, read(addr))
				}
			}
			return accesses
		},
	}
}

// StridedConflict cycles through count addresses that are stride bytes
// apart. With a power-of-two stride they share a set in most caches.
func StridedConflict(stride, count, rounds int) Pattern {
	return Pattern{
		Name:        "strided_conflict",
		Description: "power-of-two stride over few blocks - provokes conflict misses",
		Generate: func() []cache.Access {
			accesses := make([]cache.Access, 0, rounds*count)
			for r := 0; r < rounds; r++ {
				for i := 0; i < count; i++ {
					accesses = append(accesses, read(i*stride))
				}
			}
			return accesses
		},
	}
}

// RandomAccess issues n uniformly random reads in a region. The same seed
// always yields the same trace.
func RandomAccess(region, n int, seed int64) Pattern {
	return Pattern{
		Name:        "random",
		Description: "uniform random reads - little locality",
		Generate: func() []cache.Access {
			rng := rand.New(rand.NewSource(seed))
			accesses := make([]cache.Access, 0, n)
			for i := 0; i < n; i++ {
				accesses = append(accesses, read(rng.Intn(region)))
			}
			return accesses
		},
	}
}

// LoopWorkingSet repeats a small loop body, iterations times. A cache
// larger than the working set only takes compulsory misses.
func LoopWorkingSet(workingSet, stride, iterations int) Pattern {
	return Pattern{
		Name:        "loop_working_set",
		Description: "loop over a small working set - measures temporal locality",
		Generate: func() []cache.Access {
			accesses := make([]cache.Access, 0, iterations*workingSet/stride)
			for it := 0; it < iterations; it++ {
				for addr := 0; addr < workingSet; addr += stride {
					accesses = append(accesses, read(addr))
				}
			}
			return accesses
		},
	}
}

// CapacityThrash sweeps a region larger than the cache, one access per
// line. Every pass after the first misses on capacity.
func CapacityThrash(region, lineSize, passes int) Pattern {
	return Pattern{
		Name:        "capacity_thrash",
		Description: "sweep larger than the cache - provokes capacity misses",
		Generate: func() []cache.Access {
			accesses := make([]cache.Access, 0, passes*region/lineSize)
			for p := 0; p < passes; p++ {
				for addr := 0; addr < region; addr += lineSize {
					accesses = append(accesses, read(addr))
				}
			}
			return accesses
		},
	}
}

// ReadWriteMix issues n accesses in a region, roughly one write per three
// reads, at stride granularity.
func ReadWriteMix(region, stride, n int, seed int64) Pattern {
	return Pattern{
		Name:        "read_write_mix",
		Description: "random reads and writes - exercises dirty lines and writebacks",
		Generate: func() []cache.Access {
			rng := rand.New(rand.NewSource(seed))
			slots := region / stride
			accesses := make([]cache.Access, 0, n)
			for i := 0; i < n; i++ {
				kind := cache.Read
				if rng.Intn(4) == 0 {
					kind = cache.Write
				}
				addr := uint64(rng.Intn(slots) * stride)
				accesses = append(accesses, cache.Access{Addr: addr, Kind: kind})
			}
			return accesses
		},
	}
}

func read(addr int) cache.Access {
	return cache.Access{Addr: uint64(addr), Kind: cache.Read}
}
