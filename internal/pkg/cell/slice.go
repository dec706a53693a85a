package cell

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/tonkeeper/tongo/boc"
)

// Slice is a read cursor over a cell. It reads from its own copy of the
// cell bits.
type Slice struct {
	cell   *Cell
	bits   boc.BitString
	refPos int
}

func (s *Slice) BitsLeft() int {
	return s.bits.BitsAvailableForRead()
}

func (s *Slice) RefsLeft() int {
	return len(s.cell.refs) - s.refPos
}

func (s *Slice) need(bits int) error {
	if bits > s.BitsLeft() {
		return fmt.Errorf("%w: need %d bits, %d left", ErrUnderflow, bits, s.BitsLeft())
	}
	return nil
}

func underflow(err error) error {
	if errors.Is(err, boc.ErrNotEnoughBits) {
		return fmt.Errorf("%w: %v", ErrUnderflow, err)
	}
	return err
}

func (s *Slice) LoadBit() (bool, error) {
	if err := s.need(1); err != nil {
		return false, err
	}
	v, err := s.bits.ReadBit()
	return v, underflow(err)
}

func (s *Slice) LoadUint(bits int) (uint64, error) {
	if bits < 0 || bits > 64 {
		return 0, fmt.Errorf("%w: width %d", ErrInvalidWidth, bits)
	}
	if err := s.need(bits); err != nil {
		return 0, err
	}
	if bits == 0 {
		return 0, nil
	}
	v, err := s.bits.ReadUint(bits)
	return v, underflow(err)
}

func (s *Slice) LoadInt(bits int) (int64, error) {
	if bits <= 0 || bits > 64 {
		return 0, fmt.Errorf("%w: width %d", ErrInvalidWidth, bits)
	}
	if err := s.need(bits); err != nil {
		return 0, err
	}
	v, err := s.bits.ReadInt(bits)
	return v, underflow(err)
}

// LoadBigUint reads the leading odd bits on their own, then whole bytes.
func (s *Slice) LoadBigUint(bits int) (*big.Int, error) {
	if bits < 0 {
		return nil, fmt.Errorf("%w: width %d", ErrInvalidWidth, bits)
	}
	if err := s.need(bits); err != nil {
		return nil, err
	}
	head, err := s.LoadUint(bits % 8)
	if err != nil {
		return nil, err
	}
	p, err := s.LoadBytes(bits / 8)
	if err != nil {
		return nil, err
	}
	v := new(big.Int).SetUint64(head)
	v.Lsh(v, uint(len(p)*8))
	return v.Or(v, new(big.Int).SetBytes(p)), nil
}

func (s *Slice) LoadBytes(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidWidth, n)
	}
	if err := s.need(n * 8); err != nil {
		return nil, err
	}
	p, err := s.bits.ReadBytes(n)
	if err != nil {
		return nil, underflow(err)
	}
	out := make([]byte, n)
	copy(out, p)
	return out, nil
}

func (s *Slice) LoadCoins() (uint64, error) {
	n, err := s.LoadUint(4)
	if err != nil {
		return 0, err
	}
	if n > 8 {
		return 0, fmt.Errorf("%w: %d-byte coins value", ErrInvalidWidth, n)
	}
	return s.LoadUint(int(n) * 8)
}

func (s *Slice) LoadRef() (*Cell, error) {
	if s.RefsLeft() == 0 {
		return nil, fmt.Errorf("%w: no refs left", ErrUnderflow)
	}
	c := s.cell.refs[s.refPos]
	s.refPos++
	return c, nil
}

// LoadMaybeRef reads a presence bit and the ref it announces.
func (s *Slice) LoadMaybeRef() (*Cell, error) {
	ok, err := s.LoadBit()
	if err != nil || !ok {
		return nil, err
	}
	return s.LoadRef()
}

// LoadStdAddress reads an addr_std or addr_none. none is true for addr_none.
func (s *Slice) LoadStdAddress() (workchain int32, hash [32]byte, none bool, err error) {
	tag, err := s.LoadUint(2)
	if err != nil {
		return 0, hash, false, err
	}
	switch tag {
	case 0b00:
		return 0, hash, true, nil
	case 0b10:
	default:
		return 0, hash, false, fmt.Errorf("%w: unsupported address tag %02b", ErrInvalidWidth, tag)
	}
	anycast, err := s.LoadBit()
	if err != nil {
		return 0, hash, false, err
	}
	if anycast {
		return 0, hash, false, fmt.Errorf("%w: anycast address", ErrInvalidWidth)
	}
	wc, err := s.LoadInt(8)
	if err != nil {
		return 0, hash, false, err
	}
	p, err := s.LoadBytes(32)
	if err != nil {
		return 0, hash, false, err
	}
	copy(hash[:], p)
	return int32(wc), hash, false, nil
}

// LoadTailString reads the remaining bytes of this cell and follows the
// first ref of each cell in the chain.
func (s *Slice) LoadTailString() (string, error) {
	var out []byte
	cur := s
	for {
		if cur.BitsLeft()%8 != 0 {
			return "", fmt.Errorf("%w: string tail is not byte aligned", ErrInvalidWidth)
		}
		p, err := cur.LoadBytes(cur.BitsLeft() / 8)
		if err != nil {
			return "", err
		}
		out = append(out, p...)
		if cur.RefsLeft() == 0 {
			return string(out), nil
		}
		next, err := cur.LoadRef()
		if err != nil {
			return "", err
		}
		cur = next.BeginParse()
	}
}
