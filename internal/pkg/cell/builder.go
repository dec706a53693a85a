package cell

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/tonkeeper/tongo/boc"
)

// Builder accumulates bits and refs for a single cell on top of a tongo
// boc.Cell. Store methods chain; the first failure sticks and is reported by
// Build and Err. Widths and capacity are checked before anything is written,
// so a failed store leaves the cell untouched.
type Builder struct {
	raw  *boc.Cell
	refs []*Cell
	err  error
}

func BeginCell() *Builder {
	return &Builder{raw: boc.NewCell()}
}

func (b *Builder) Err() error {
	return b.err
}

func (b *Builder) BitLen() int {
	return b.raw.BitSize()
}

func (b *Builder) BitsLeft() int {
	return MaxBits - b.raw.BitSize()
}

func (b *Builder) RefsLeft() int {
	return MaxRefs - len(b.refs)
}

func (b *Builder) fail(err error) *Builder {
	if b.err == nil {
		b.err = err
	}
	return b
}

func (b *Builder) reserve(bits int) bool {
	if b.err != nil {
		return false
	}
	if bits > b.BitsLeft() {
		b.fail(fmt.Errorf("%w: need %d bits, %d left", ErrCapacityExceeded, bits, b.BitsLeft()))
		return false
	}
	return true
}

// write runs a tongo store that reserve already cleared.
func (b *Builder) write(err error) *Builder {
	if err != nil {
		switch {
		case errors.Is(err, boc.ErrBitStingOverflow):
			return b.fail(fmt.Errorf("%w: %v", ErrCapacityExceeded, err))
		case errors.Is(err, boc.ErrCellRefsOverflow):
			return b.fail(fmt.Errorf("%w: %v", ErrTooManyRefs, err))
		default:
			return b.fail(fmt.Errorf("%w: %v", ErrInvalidWidth, err))
		}
	}
	return b
}

func (b *Builder) StoreBit(v bool) *Builder {
	if !b.reserve(1) {
		return b
	}
	return b.write(b.raw.WriteBit(v))
}

// StoreUint writes v as an unsigned big-endian integer of the given width.
func (b *Builder) StoreUint(v uint64, bits int) *Builder {
	if b.err != nil {
		return b
	}
	if bits < 0 || bits > 64 {
		return b.fail(fmt.Errorf("%w: width %d", ErrInvalidWidth, bits))
	}
	if bits < 64 && v>>uint(bits) != 0 {
		return b.fail(fmt.Errorf("%w: %d in %d bits", ErrInvalidWidth, v, bits))
	}
	if !b.reserve(bits) {
		return b
	}
	return b.write(b.raw.WriteUint(v, bits))
}

// StoreInt writes v in two's complement using the given width.
func (b *Builder) StoreInt(v int64, bits int) *Builder {
	if b.err != nil {
		return b
	}
	if bits <= 0 || bits > 64 {
		return b.fail(fmt.Errorf("%w: width %d", ErrInvalidWidth, bits))
	}
	if bits < 64 {
		lim := int64(1) << uint(bits-1)
		if v < -lim || v >= lim {
			return b.fail(fmt.Errorf("%w: %d in %d signed bits", ErrInvalidWidth, v, bits))
		}
	}
	if !b.reserve(bits) {
		return b
	}
	// two's complement of the low bits, same layout WriteInt produces
	u := uint64(v)
	if bits < 64 {
		u &= 1<<uint(bits) - 1
	}
	return b.write(b.raw.WriteUint(u, bits))
}

func (b *Builder) StoreBigUint(v *big.Int, bits int) *Builder {
	if b.err != nil {
		return b
	}
	if v == nil || v.Sign() < 0 || v.BitLen() > bits {
		return b.fail(fmt.Errorf("%w: %v in %d bits", ErrInvalidWidth, v, bits))
	}
	if !b.reserve(bits) || bits == 0 {
		return b
	}
	return b.write(b.raw.WriteBigUint(v, bits))
}

func (b *Builder) StoreBytes(p []byte) *Builder {
	if !b.reserve(len(p) * 8) {
		return b
	}
	return b.write(b.raw.WriteBytes(p))
}

// StoreCoins writes a VarUInteger 16: a 4-bit byte length followed by the
// value bytes. Zero is a bare zero length.
func (b *Builder) StoreCoins(v uint64) *Builder {
	n := 0
	for x := v; x != 0; x >>= 8 {
		n++
	}
	b.StoreUint(uint64(n), 4)
	if n > 0 {
		b.StoreUint(v, n*8)
	}
	return b
}

func (b *Builder) StoreBigCoins(v *big.Int) *Builder {
	if v == nil || v.Sign() < 0 {
		return b.fail(fmt.Errorf("%w: coins %v", ErrInvalidWidth, v))
	}
	n := (v.BitLen() + 7) / 8
	if n > 15 {
		return b.fail(fmt.Errorf("%w: coins %v", ErrInvalidWidth, v))
	}
	b.StoreUint(uint64(n), 4)
	if n > 0 {
		b.StoreBigUint(v, n*8)
	}
	return b
}

// StoreStdAddress writes addr_std without anycast.
func (b *Builder) StoreStdAddress(workchain int32, hash [32]byte) *Builder {
	if workchain < -128 || workchain > 127 {
		return b.fail(fmt.Errorf("%w: workchain %d", ErrInvalidWidth, workchain))
	}
	b.StoreUint(0b10, 2)
	b.StoreBit(false)
	b.StoreInt(int64(workchain), 8)
	b.StoreBytes(hash[:])
	return b
}

func (b *Builder) StoreAddrNone() *Builder {
	return b.StoreUint(0, 2)
}

func (b *Builder) StoreRef(c *Cell) *Builder {
	if b.err != nil {
		return b
	}
	if c == nil {
		return b.fail(ErrNilRef)
	}
	if len(b.refs) >= MaxRefs {
		return b.fail(ErrTooManyRefs)
	}
	if b.write(b.raw.AddRef(c.raw)); b.err != nil {
		return b
	}
	b.refs = append(b.refs, c)
	return b
}

// StoreMaybeRef writes a presence bit and, when c is not nil, the ref.
func (b *Builder) StoreMaybeRef(c *Cell) *Builder {
	if c == nil {
		return b.StoreBit(false)
	}
	return b.StoreBit(true).StoreRef(c)
}

// StoreCell inlines the bits and refs of c.
func (b *Builder) StoreCell(c *Cell) *Builder {
	if c == nil {
		return b.fail(ErrNilRef)
	}
	return b.storeRaw(c.raw.RawBitString(), c.refs)
}

func (b *Builder) StoreBuilder(o *Builder) *Builder {
	if o.err != nil {
		return b.fail(o.err)
	}
	return b.storeRaw(o.raw.RawBitString(), o.refs)
}

func (b *Builder) storeRaw(bits boc.BitString, refs []*Cell) *Builder {
	if !b.reserve(bits.GetWriteCursor()) {
		return b
	}
	if len(b.refs)+len(refs) > MaxRefs {
		return b.fail(ErrTooManyRefs)
	}
	if b.write(b.raw.WriteBitString(bits)); b.err != nil {
		return b
	}
	for _, r := range refs {
		b.StoreRef(r)
	}
	return b
}

// StoreTailString writes s as bytes in the remaining space of this cell and
// continues in a chain of refs when it does not fit.
func (b *Builder) StoreTailString(s string) *Builder {
	if b.err != nil {
		return b
	}
	p := []byte(s)
	room := b.BitsLeft() / 8
	if len(p) <= room {
		return b.StoreBytes(p)
	}
	if b.RefsLeft() == 0 {
		return b.fail(fmt.Errorf("%w: no ref left for string continuation", ErrTooManyRefs))
	}
	b.StoreBytes(p[:room])
	tail, err := snake(p[room:])
	if err != nil {
		return b.fail(err)
	}
	return b.StoreRef(tail)
}

func snake(p []byte) (*Cell, error) {
	const chunk = MaxBits / 8
	if len(p) <= chunk {
		return BeginCell().StoreBytes(p).Build()
	}
	next, err := snake(p[chunk:])
	if err != nil {
		return nil, err
	}
	return BeginCell().StoreBytes(p[:chunk]).StoreRef(next).Build()
}

// Build snapshots the builder; later stores do not touch the returned cell.
func (b *Builder) Build() (*Cell, error) {
	if b.err != nil {
		return nil, b.err
	}
	bits := b.raw.RawBitString()
	raw := boc.NewCellWithBits(bits.Copy())
	refs := make([]*Cell, len(b.refs))
	copy(refs, b.refs)
	for _, r := range refs {
		if err := raw.AddRef(r.raw); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTooManyRefs, err)
		}
	}
	return wrap(raw, refs)
}

// MustBuild panics on a builder error. Meant for fixed layouts in tests.
func (b *Builder) MustBuild() *Cell {
	c, err := b.Build()
	if err != nil {
		panic(err)
	}
	return c
}
