package cache

import "math/bits"

// Clog2 returns the ceiling base-2 logarithm of n.
func Clog2(n int) (int, error) {
	if n <= 0 {
		return 0, illegal("n", n, "clog2 needs a positive argument")
	}
	return bits.Len(uint(n - 1)), nil
}

// Mask returns a value with the low width bits set.
func Mask(width int) uint64 {
	if width >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << uint(width)) - 1
}

// Address is an address split into the fields a cache geometry defines.
type Address struct {
	Tag    uint64
	Index  int
	Offset uint64
}

// Decoder splits addresses according to a validated geometry. The zero
// value is not usable; create one with NewDecoder.
type Decoder struct {
	offsetBits int
	indexBits  int
	width      int
}

// NewDecoder builds a decoder for the geometry in config.
func NewDecoder(config Config) (Decoder, error) {
	if err := config.Validate(); err != nil {
		return Decoder{}, err
	}
	return newDecoder(config), nil
}

func newDecoder(config Config) Decoder {
	offsetBits, _ := Clog2(config.BlockSize)
	indexBits, _ := Clog2(config.NumSets())
	return Decoder{
		offsetBits: offsetBits,
		indexBits:  indexBits,
		width:      config.AddressWidth,
	}
}

// OffsetBits returns the number of byte-offset bits.
func (d Decoder) OffsetBits() int { return d.offsetBits }

// IndexBits returns the number of set-index bits.
func (d Decoder) IndexBits() int { return d.indexBits }

// TagBits returns the width of the stored tag.
func (d Decoder) TagBits() int { return d.width - d.offsetBits - d.indexBits }

// CheckAddr fails with *AddressRangeError when addr does not fit the
// address width.
func (d Decoder) CheckAddr(addr uint64) error {
	if d.width < 64 && addr > Mask(d.width) {
		return &AddressRangeError{Addr: addr, Width: d.width}
	}
	return nil
}

// Decode splits addr into tag, set index and byte offset.
func (d Decoder) Decode(addr uint64) Address {
	return Address{
		Tag:    addr >> uint(d.offsetBits+d.indexBits),
		Index:  int((addr >> uint(d.offsetBits)) & Mask(d.indexBits)),
		Offset: addr & Mask(d.offsetBits),
	}
}

// BlockAddr returns addr with the byte offset stripped, shifted down so
// that consecutive blocks are consecutive integers.
func (d Decoder) BlockAddr(addr uint64) uint64 {
	return addr >> uint(d.offsetBits)
}
