package cache

// line is one cache line. Lines of a set are consecutive in storage.lines.
type line struct {
	valid bool
	dirty bool
	tag   uint64
}

// lookupResult describes what one access did to the storage.
type lookupResult struct {
	hit     bool
	set     int
	way     int
	evicted bool
	// writeback is set when the evicted line was dirty.
	writeback bool
}

// storage holds the sets of one cache and drives its replacement policy.
// The real cache and the classifier's shadow cache are both storages.
//
// Lines only become invalid on reset and a miss always fills the lowest
// invalid way, so the valid lines of a set are exactly its first filled
// ways.
type storage struct {
	decoder Decoder
	ways    int
	lines   []line
	filled  []int
	policy  replacementPolicy
	// tags maps tag to way for single-set storages, where a linear search
	// would visit every line of the cache.
	tags map[uint64]int
}

func newStorage(config Config) *storage {
	s := &storage{
		decoder: newDecoder(config),
		ways:    config.Associativity,
		lines:   make([]line, config.NumSets()*config.Associativity),
		filled:  make([]int, config.NumSets()),
		policy:  newPolicy(config),
	}
	if config.NumSets() == 1 {
		s.tags = make(map[uint64]int)
	}
	return s
}

func (s *storage) set(index int) []line {
	return s.lines[index*s.ways : (index+1)*s.ways]
}

// find returns the way holding tag in the set, or -1.
func (s *storage) find(set []line, tag uint64) int {
	if s.tags != nil {
		if way, ok := s.tags[tag]; ok {
			return way
		}
		return -1
	}

	for way := range set {
		if set[way].valid && set[way].tag == tag {
			return way
		}
	}
	return -1
}

// probe reports whether addr is resident without touching any state.
func (s *storage) probe(addr uint64) bool {
	a := s.decoder.Decode(addr)
	return s.find(s.set(a.Index), a.Tag) >= 0
}

// access looks addr up and, on a miss, fills it into a free way or into
// the victim chosen by the policy. Writes leave the line dirty.
func (s *storage) access(addr uint64, write bool) lookupResult {
	a := s.decoder.Decode(addr)
	set := s.set(a.Index)

	if way := s.find(set, a.Tag); way >= 0 {
		s.policy.onAccess(a.Index, way, false)
		if write {
			set[way].dirty = true
		}
		return lookupResult{hit: true, set: a.Index, way: way}
	}

	result := lookupResult{set: a.Index, way: s.freeWay(a.Index)}
	if result.way < 0 {
		result.way = s.policy.victim(a.Index)
		result.evicted = true
		result.writeback = set[result.way].dirty
		if s.tags != nil {
			delete(s.tags, set[result.way].tag)
		}
	} else {
		s.filled[a.Index]++
	}

	set[result.way] = line{valid: true, dirty: write, tag: a.Tag}
	if s.tags != nil {
		s.tags[a.Tag] = result.way
	}
	s.policy.onAccess(a.Index, result.way, true)

	return result
}

// freeWay returns the lowest invalid way of the set, or -1 when it is full.
func (s *storage) freeWay(index int) int {
	if s.filled[index] == s.ways {
		return -1
	}
	return s.filled[index]
}

func (s *storage) reset() {
	clear(s.lines)
	clear(s.filled)
	if s.tags != nil {
		clear(s.tags)
	}
	s.policy.reset()
}

// occupancy counts valid lines.
func (s *storage) occupancy() int {
	n := 0
	for _, filled := range s.filled {
		n += filled
	}
	return n
}
