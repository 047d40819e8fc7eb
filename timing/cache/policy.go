package cache

import "math/rand"

// replacementPolicy owns the per-set metadata of one replacement strategy.
// Metadata is stored in flat arrays indexed by set*ways+way.
type replacementPolicy interface {
	// onAccess is called on every hit (fill=false) and after every fill
	// (fill=true).
	onAccess(set, way int, fill bool)
	// victim is only called when every line of the set is valid.
	victim(set int) int
	reset()
}

func newPolicy(config Config) replacementPolicy {
	sets, ways := config.NumSets(), config.Associativity

	switch config.Policy {
	case PolicyNone:
		return noPolicy{}
	case PolicyRandom:
		return newRandomPolicy(ways, config.Seed)
	case PolicyFIFO:
		return newFIFOPolicy(sets, ways)
	case PolicyLRU:
		return newLRUPolicy(sets, ways)
	case PolicyNMRU:
		return newNMRUPolicy(sets, ways, config.Seed)
	case PolicyPLRU:
		return newPLRUPolicy(sets, ways)
	default:
		panic("unknown replacement policy " + config.Policy.String())
	}
}

type noPolicy struct{}

func (noPolicy) onAccess(int, int, bool) {}
func (noPolicy) victim(int) int          { return 0 }
func (noPolicy) reset()                  {}

type randomPolicy struct {
	ways int
	seed int64
	rng  *rand.Rand
}

func newRandomPolicy(ways int, seed int64) *randomPolicy {
	return &randomPolicy{
		ways: ways,
		seed: seed,
		rng:  rand.New(rand.NewSource(seed)),
	}
}

func (p *randomPolicy) onAccess(int, int, bool) {}

func (p *randomPolicy) victim(int) int {
	return p.rng.Intn(p.ways)
}

func (p *randomPolicy) reset() {
	p.rng = rand.New(rand.NewSource(p.seed))
}

// fifoPolicy stamps each line with a per-set fill sequence number. Hits do
// not change the order.
type fifoPolicy struct {
	ways   int
	stamps []uint64
	next   []uint64
}

func newFIFOPolicy(sets, ways int) *fifoPolicy {
	return &fifoPolicy{
		ways:   ways,
		stamps: make([]uint64, sets*ways),
		next:   make([]uint64, sets),
	}
}

func (p *fifoPolicy) onAccess(set, way int, fill bool) {
	if !fill {
		return
	}
	p.stamps[set*p.ways+way] = p.next[set]
	p.next[set]++
}

func (p *fifoPolicy) victim(set int) int {
	base := set * p.ways
	oldest := 0
	for way := 1; way < p.ways; way++ {
		if p.stamps[base+way] < p.stamps[base+oldest] {
			oldest = way
		}
	}
	return oldest
}

func (p *fifoPolicy) reset() {
	clear(p.stamps)
	clear(p.next)
}

// lruPolicy keeps each set as a doubly linked recency list threaded
// through prev and next, which hold way indices (-1 ends a list). Promotion
// and victim selection are O(1) however many ways a set has, so the
// fully-associative shadow stays cheap on large caches.
type lruPolicy struct {
	ways int
	prev []int
	next []int
	// head is the most recently used way of each set, tail the least.
	head []int
	tail []int
}

func newLRUPolicy(sets, ways int) *lruPolicy {
	p := &lruPolicy{
		ways: ways,
		prev: make([]int, sets*ways),
		next: make([]int, sets*ways),
		head: make([]int, sets),
		tail: make([]int, sets),
	}
	p.reset()
	return p
}

func (p *lruPolicy) onAccess(set, way int, _ bool) {
	if p.head[set] == way {
		return
	}

	base := set * p.ways
	before, after := p.prev[base+way], p.next[base+way]

	// Unlink. way is not the head, so before is a valid way.
	p.next[base+before] = after
	if after >= 0 {
		p.prev[base+after] = before
	} else {
		p.tail[set] = before
	}

	old := p.head[set]
	p.prev[base+way] = -1
	p.next[base+way] = old
	p.prev[base+old] = way
	p.head[set] = way
}

func (p *lruPolicy) victim(set int) int {
	return p.tail[set]
}

// order lists the ways of a set from least to most recently used.
func (p *lruPolicy) order(set int) []int {
	base := set * p.ways
	ways := make([]int, 0, p.ways)
	for way := p.tail[set]; way >= 0; way = p.prev[base+way] {
		ways = append(ways, way)
	}
	return ways
}

// reset orders every set by way index, way 0 being least recent.
func (p *lruPolicy) reset() {
	for set := range p.head {
		base := set * p.ways
		for way := 0; way < p.ways; way++ {
			p.prev[base+way] = way + 1
			p.next[base+way] = way - 1
		}
		p.prev[base+p.ways-1] = -1
		p.head[set] = p.ways - 1
		p.tail[set] = 0
	}
}

// nmruPolicy remembers only the most recently used way of each set.
type nmruPolicy struct {
	ways int
	seed int64
	mru  []int
	rng  *rand.Rand
}

func newNMRUPolicy(sets, ways int, seed int64) *nmruPolicy {
	return &nmruPolicy{
		ways: ways,
		seed: seed,
		mru:  make([]int, sets),
		rng:  rand.New(rand.NewSource(seed)),
	}
}

func (p *nmruPolicy) onAccess(set, way int, _ bool) {
	p.mru[set] = way
}

func (p *nmruPolicy) victim(set int) int {
	if p.ways == 1 {
		return 0
	}

	// Sample among the ways-1 candidates and skip over the marker.
	way := p.rng.Intn(p.ways - 1)
	if way >= p.mru[set] {
		way++
	}
	return way
}

func (p *nmruPolicy) reset() {
	clear(p.mru)
	p.rng = rand.New(rand.NewSource(p.seed))
}

// plruPolicy stores ways-1 direction bits per set as an implicit binary
// tree: node n has children 2n+1 and 2n+2. A bit of 0 points left, 1 points
// right, and always points toward the pseudo-least-recently-used half.
type plruPolicy struct {
	ways  int
	depth int
	bits  []uint8
}

func newPLRUPolicy(sets, ways int) *plruPolicy {
	depth, _ := Clog2(ways)
	nodes := ways - 1
	return &plruPolicy{
		ways:  ways,
		depth: depth,
		bits:  make([]uint8, sets*max(nodes, 1)),
	}
}

func (p *plruPolicy) tree(set int) []uint8 {
	nodes := max(p.ways-1, 1)
	return p.bits[set*nodes : (set+1)*nodes]
}

func (p *plruPolicy) onAccess(set, way int, _ bool) {
	if p.depth == 0 {
		return
	}

	tree := p.tree(set)
	node := 0
	for level := 0; level < p.depth; level++ {
		dir := uint8(way>>(p.depth-1-level)) & 1
		tree[node] = dir ^ 1
		node = 2*node + 1 + int(dir)
	}
}

func (p *plruPolicy) victim(set int) int {
	if p.depth == 0 {
		return 0
	}

	tree := p.tree(set)
	node, way := 0, 0
	for level := 0; level < p.depth; level++ {
		dir := tree[node]
		way = way<<1 | int(dir)
		node = 2*node + 1 + int(dir)
	}
	return way
}

func (p *plruPolicy) reset() {
	clear(p.bits)
}
