// Package cell wraps tongo's boc cells with an immutable, builder based API:
// bounded bit strings with up to four child references, their
// representation hash and the bag-of-cells container used to move cell
// trees over the wire.
package cell

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/tonkeeper/tongo/boc"
)

const (
	MaxBits = boc.CellBits
	MaxRefs = 4
)

var (
	ErrCapacityExceeded   = errors.New("cell capacity exceeded")
	ErrTooManyRefs        = errors.New("too many cell references")
	ErrInvalidWidth       = errors.New("value does not fit the declared bit width")
	ErrNilRef             = errors.New("nil cell reference")
	ErrUnderflow          = errors.New("cell underflow")
	ErrMalformedContainer = errors.New("malformed bag of cells")
)

// Cell is immutable once built. The underlying boc.Cell is never handed out
// and never read through its cursors, so a Cell is safe to share between
// goroutines.
type Cell struct {
	raw   *boc.Cell
	refs  []*Cell
	hash  [32]byte
	depth uint16
}

func wrap(raw *boc.Cell, refs []*Cell) (*Cell, error) {
	h, err := raw.Hash256()
	if err != nil {
		return nil, fmt.Errorf("cell hash: %w", err)
	}
	c := &Cell{raw: raw, refs: refs, hash: h}
	for _, r := range refs {
		if r.depth+1 > c.depth {
			c.depth = r.depth + 1
		}
	}
	return c, nil
}

// Empty returns a cell with no bits and no refs.
func Empty() *Cell {
	c, err := wrap(boc.NewCell(), nil)
	if err != nil {
		panic(err)
	}
	return c
}

// FromBoc takes a snapshot of a tongo cell tree.
func FromBoc(c *boc.Cell) (*Cell, error) {
	if c == nil {
		return nil, ErrNilRef
	}
	return fromBoc(c, map[*boc.Cell]*Cell{}, 0)
}

// Boc returns a fresh tongo copy of the tree, cursors reset.
func (c *Cell) Boc() *boc.Cell {
	bits := c.raw.RawBitString()
	out := boc.NewCellWithBits(bits.Copy())
	for _, r := range c.refs {
		_ = out.AddRef(r.Boc())
	}
	return out
}

func (c *Cell) BitLen() int {
	return c.raw.BitSize()
}

// Data returns a copy of the cell bits, left aligned, zero padded.
func (c *Cell) Data() []byte {
	bits := c.raw.RawBitString()
	n := (c.raw.BitSize() + 7) / 8
	d := make([]byte, n)
	copy(d, bits.Buffer()[:n])
	return d
}

func (c *Cell) RefsCount() int {
	return len(c.refs)
}

func (c *Cell) Ref(i int) *Cell {
	if i < 0 || i >= len(c.refs) {
		return nil
	}
	return c.refs[i]
}

func (c *Cell) Refs() []*Cell {
	r := make([]*Cell, len(c.refs))
	copy(r, c.refs)
	return r
}

// Hash returns the 32-byte representation hash of the cell.
func (c *Cell) Hash() []byte {
	h := c.hash
	return h[:]
}

// HashHex is a convenience for logs and message identifiers.
func (c *Cell) HashHex() string {
	return hex.EncodeToString(c.Hash())
}

func (c *Cell) Depth() uint16 {
	return c.depth
}

// Equal compares cells by representation hash.
func (c *Cell) Equal(o *Cell) bool {
	if c == o {
		return true
	}
	if c == nil || o == nil {
		return false
	}
	return c.hash == o.hash
}

// BeginParse opens a read cursor over the cell.
func (c *Cell) BeginParse() *Slice {
	bits := c.raw.RawBitString()
	return &Slice{cell: c, bits: bits.Copy()}
}

func (c *Cell) String() string {
	return c.raw.ToString()
}
