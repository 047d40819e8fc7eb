package cache

// classifier sorts misses into the three Cs. It runs a fully-associative
// LRU shadow of the same capacity next to the real cache and remembers every
// block that was ever referenced.
type classifier struct {
	decoder Decoder
	shadow  *storage
	seen    map[uint64]struct{}
}

func newClassifier(config Config) *classifier {
	shadowConfig := config.FullyAssociative()
	shadowConfig.Policy = PolicyLRU

	return &classifier{
		decoder: newDecoder(config),
		shadow:  newStorage(shadowConfig),
		seen:    make(map[uint64]struct{}),
	}
}

// observe must be called exactly once per access, before the real cache
// changes. hit is the real cache's verdict. The returned outcome is Hit when
// hit is set and the miss category otherwise. The shadow and the seen set
// are updated with the access in both cases.
func (c *classifier) observe(addr uint64, write, hit bool) Outcome {
	block := c.decoder.BlockAddr(addr)
	_, seen := c.seen[block]
	shadowHit := c.shadow.access(addr, write).hit
	c.seen[block] = struct{}{}

	switch {
	case hit:
		return Hit
	case !seen:
		return CompulsoryMiss
	case shadowHit:
		return ConflictMiss
	default:
		return CapacityMiss
	}
}

func (c *classifier) reset() {
	c.shadow.reset()
	clear(c.seen)
}

// distinctBlocks is the number of different blocks referenced so far.
func (c *classifier) distinctBlocks() int {
	return len(c.seen)
}
