package cache

import (
	"fmt"
	"io"
	"strings"
)

// AccessKind distinguishes reads from writes.
type AccessKind uint8

const (
	// Read is a load or an instruction fetch.
	Read AccessKind = iota
	// Write is a store.
	Write
)

func (k AccessKind) String() string {
	switch k {
	case Read:
		return "read"
	case Write:
		return "write"
	default:
		return fmt.Sprintf("AccessKind(%d)", uint8(k))
	}
}

// Access is a single element of an address stream.
type Access struct {
	Addr uint64
	Kind AccessKind
}

// Outcome is the result of one access.
type Outcome uint8

const (
	// Hit means the block was resident.
	Hit Outcome = iota
	// CompulsoryMiss is the first reference to a block.
	CompulsoryMiss
	// CapacityMiss would also miss in a fully-associative cache of the same
	// size.
	CapacityMiss
	// ConflictMiss would hit in a fully-associative cache of the same size.
	ConflictMiss
	// Rejected comes with an error. The access was not performed.
	Rejected
)

func (o Outcome) String() string {
	switch o {
	case Hit:
		return "hit"
	case CompulsoryMiss:
		return "compulsory"
	case CapacityMiss:
		return "capacity"
	case ConflictMiss:
		return "conflict"
	case Rejected:
		return "rejected"
	default:
		return fmt.Sprintf("Outcome(%d)", uint8(o))
	}
}

// IsHit returns true for Hit.
func (o Outcome) IsHit() bool {
	return o == Hit
}

// Totals counts accesses by kind.
type Totals struct {
	Reads  uint64
	Writes uint64
}

// Sum returns reads plus writes.
func (t Totals) Sum() uint64 {
	return t.Reads + t.Writes
}

func (t Totals) String() string {
	sum := t.Sum()
	if sum == 0 {
		return "0 (read=0, write=0)"
	}
	return fmt.Sprintf("%d (read=%d / %.2f%%, write=%d / %.2f%%)",
		sum,
		t.Reads, 100*float64(t.Reads)/float64(sum),
		t.Writes, 100*float64(t.Writes)/float64(sum))
}

// MissBreakdown counts misses by category.
type MissBreakdown struct {
	Compulsory uint64
	Capacity   uint64
	Conflict   uint64
}

// Sum returns the total number of misses.
func (m MissBreakdown) Sum() uint64 {
	return m.Compulsory + m.Capacity + m.Conflict
}

func (m MissBreakdown) String() string {
	return fmt.Sprintf("%d (conflict=%d, capacity=%d, compulsory=%d)",
		m.Sum(), m.Conflict, m.Capacity, m.Compulsory)
}

// Statistics holds cache performance statistics.
type Statistics struct {
	Totals Totals
	Misses MissBreakdown
	// Evictions counts valid lines replaced on a miss.
	Evictions uint64
	// Writebacks counts evicted lines that were dirty.
	Writebacks uint64
}

// Hits is the number of accesses that did not miss.
func (s Statistics) Hits() uint64 {
	return s.Totals.Sum() - s.Misses.Sum()
}

// HitRatio returns hits over accesses, or 0 before the first access.
func (s Statistics) HitRatio() float64 {
	if s.Totals.Sum() == 0 {
		return 0
	}
	return float64(s.Hits()) / float64(s.Totals.Sum())
}

// MissRatio returns misses over accesses, or 0 before the first access.
func (s Statistics) MissRatio() float64 {
	if s.Totals.Sum() == 0 {
		return 0
	}
	return float64(s.Misses.Sum()) / float64(s.Totals.Sum())
}

// AMAT returns the average memory access time for the given latencies.
func (s Statistics) AMAT(hitLatency, missPenalty uint64) float64 {
	return float64(hitLatency) + s.MissRatio()*float64(missPenalty)
}

// aggregator owns the counters. Each access opens exactly one recording
// slot with begin; record consumes it.
type aggregator struct {
	stats Statistics
	open  bool
}

func (a *aggregator) begin() {
	a.open = true
}

func (a *aggregator) record(kind AccessKind, outcome Outcome, r lookupResult) {
	if !a.open {
		panic(ErrUnexpectedCaller)
	}
	a.open = false

	switch kind {
	case Read:
		a.stats.Totals.Reads++
	case Write:
		a.stats.Totals.Writes++
	}

	switch outcome {
	case CompulsoryMiss:
		a.stats.Misses.Compulsory++
	case CapacityMiss:
		a.stats.Misses.Capacity++
	case ConflictMiss:
		a.stats.Misses.Conflict++
	}

	if r.evicted {
		a.stats.Evictions++
	}
	if r.writeback {
		a.stats.Writebacks++
	}
}

func (a *aggregator) reset() {
	a.stats = Statistics{}
	a.open = false
}

// Report is a snapshot of a cache's configuration and statistics.
type Report struct {
	Name          string
	Topology      Topology
	Policy        ReplacementPolicy
	Associativity int
	Size          int
	BlockSize     int
	TagBits       int
	TagStoreBytes float64
	HitLatency    uint64
	MissPenalty   uint64
	Stats         Statistics
}

// AMAT returns the average memory access time in cycles.
func (r Report) AMAT() float64 {
	return r.Stats.AMAT(r.HitLatency, r.MissPenalty)
}

// Write renders the report in a human-readable form.
func (r Report) Write(w io.Writer) error {
	_, err := io.WriteString(w, r.String())
	return err
}

func (r Report) String() string {
	var b strings.Builder

	hitRatio := r.Stats.HitRatio()
	missRatio := r.Stats.MissRatio()

	fmt.Fprintf(&b, "----------- %s -----------\n", r.Name)
	fmt.Fprintf(&b, " -> Name:\t%s\n", r.Name)
	fmt.Fprintf(&b, " -> Topology:\t%s\n", r.Topology)
	fmt.Fprintf(&b, " -> Replacement Policy:\t%s\n", r.Policy)
	fmt.Fprintf(&b, " -> N-Way:\t%d\n", r.Associativity)
	fmt.Fprintf(&b, " -> Cache size:\t%s\n", formatSize(r.Size))
	fmt.Fprintf(&b, " -> Cache line:\t%d bytes\n", r.BlockSize)
	fmt.Fprintf(&b, " -> Tag store:\t%d bits/line, %.3f KiB\n", r.TagBits, r.TagStoreBytes/1024)
	fmt.Fprintf(&b, " -> Hit lat.:\t%d\n", r.HitLatency)
	fmt.Fprintf(&b, " -> Miss lat.:\t%d\n", r.MissPenalty)
	fmt.Fprintf(&b, " -> AMAT:\t%.3f clock cycles\n", r.AMAT())
	fmt.Fprintf(&b, " -> Hit Ratio:\t%.3f / %.2f%%\n", hitRatio, hitRatio*100)
	fmt.Fprintf(&b, " -> Miss Ratio:\t%.3f / %.2f%%\n", missRatio, missRatio*100)
	fmt.Fprintf(&b, " -> Miss info:\t%s\n", r.Stats.Misses)
	fmt.Fprintf(&b, " -> Evictions:\t%d (writebacks=%d)\n", r.Stats.Evictions, r.Stats.Writebacks)
	fmt.Fprintf(&b, " -> Total:\t%s\n", r.Stats.Totals)

	return b.String()
}

func formatSize(bytes int) string {
	switch {
	case bytes >= 1024*1024 && bytes%(1024*1024) == 0:
		return fmt.Sprintf("%d MiB", bytes/(1024*1024))
	case bytes >= 1024 && bytes%1024 == 0:
		return fmt.Sprintf("%d KiB", bytes/1024)
	default:
		return fmt.Sprintf("%d bytes", bytes)
	}
}
