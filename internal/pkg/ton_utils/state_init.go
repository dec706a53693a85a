package ton_utils

import (
	"fmt"

	"github.com/tonkeeper/tongo/boc"
	"github.com/tonkeeper/tongo/tlb"

	"telemint/internal/pkg/cell"
)

// StateInit is the code and data commitment a contract address is derived
// from.
type StateInit struct {
	Code *cell.Cell
	Data *cell.Cell
}

// TLB converts si to tongo's StateInit with split_depth, special and the
// library dictionary left empty.
func (si StateInit) TLB() (tlb.StateInit, error) {
	var out tlb.StateInit
	if si.Code == nil || si.Data == nil {
		return out, fmt.Errorf("state init: %w", cell.ErrNilRef)
	}
	out.Code.Exists = true
	out.Code.Value.Value = *si.Code.Boc()
	out.Data.Exists = true
	out.Data.Value.Value = *si.Data.Boc()
	return out, nil
}

func (si StateInit) ToCell() (*cell.Cell, error) {
	s, err := si.TLB()
	if err != nil {
		return nil, err
	}
	c := boc.NewCell()
	if err := tlb.Marshal(c, s); err != nil {
		return nil, fmt.Errorf("state init: %w", err)
	}
	return cell.FromBoc(c)
}

func stateInitFromTLB(s tlb.StateInit) (*StateInit, error) {
	if s.SplitDepth.Exists {
		return nil, fmt.Errorf("state init: unsupported split_depth")
	}
	if s.Special.Exists {
		return nil, fmt.Errorf("state init: unsupported special")
	}
	if !s.Code.Exists || !s.Data.Exists {
		return nil, fmt.Errorf("state init: code and data are required")
	}
	code, err := cell.FromBoc(&s.Code.Value.Value)
	if err != nil {
		return nil, err
	}
	data, err := cell.FromBoc(&s.Data.Value.Value)
	if err != nil {
		return nil, err
	}
	return &StateInit{Code: code, Data: data}, nil
}

func ParseStateInit(c *cell.Cell) (*StateInit, error) {
	var s tlb.StateInit
	if err := tlb.Unmarshal(c.Boc(), &s); err != nil {
		return nil, fmt.Errorf("state init: %w", err)
	}
	return stateInitFromTLB(s)
}

// DeriveAddress returns the address a contract deployed with si lands on.
func DeriveAddress(workchain int32, si StateInit) (Address, error) {
	c, err := si.ToCell()
	if err != nil {
		return Address{}, err
	}
	a := Address{Workchain: workchain}
	copy(a.Hash[:], c.Hash())
	return a, nil
}

// VerifyStateInitAddress reports whether si commits to expected.
func VerifyStateInitAddress(expected Address, si StateInit) (bool, error) {
	got, err := DeriveAddress(expected.Workchain, si)
	if err != nil {
		return false, err
	}
	return got.Equal(expected), nil
}
