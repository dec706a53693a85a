package ton_utils

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/tonkeeper/tongo/ton"

	"telemint/internal/pkg/cell"
)

var ErrInvalidAddress = errors.New("invalid address")

// Address is a standard internal address.
type Address struct {
	Workchain int32
	Hash      [32]byte
}

// ParseAddress accepts the raw "wc:hex" form and the user-friendly base64
// forms, bounceable or not.
func ParseAddress(s string) (Address, error) {
	id, err := ton.ParseAccountID(s)
	if err != nil {
		return Address{}, fmt.Errorf("%w: %q: %v", ErrInvalidAddress, s, err)
	}
	return FromAccountID(id), nil
}

func FromAccountID(id ton.AccountID) Address {
	a := Address{Workchain: id.Workchain}
	copy(a.Hash[:], id.Address[:])
	return a
}

func (a Address) AccountID() ton.AccountID {
	id := ton.AccountID{Workchain: a.Workchain}
	copy(id.Address[:], a.Hash[:])
	return id
}

func (a Address) Equal(o Address) bool {
	return a.Workchain == o.Workchain && a.Hash == o.Hash
}

func (a Address) IsZero() bool {
	return a == Address{}
}

// Raw returns the "wc:hex" form.
func (a Address) Raw() string {
	return fmt.Sprintf("%d:%s", a.Workchain, hex.EncodeToString(a.Hash[:]))
}

func (a Address) ToHuman(bounce, testnet bool) string {
	return a.AccountID().ToHuman(bounce, testnet)
}

func (a Address) String() string {
	return a.ToHuman(true, false)
}

// StoreAddress writes addr_std, or addr_none when a is nil.
func StoreAddress(b *cell.Builder, a *Address) *cell.Builder {
	if a == nil {
		return b.StoreAddrNone()
	}
	return b.StoreStdAddress(a.Workchain, a.Hash)
}

// LoadAddress reads addr_std or addr_none; the latter yields nil.
func LoadAddress(s *cell.Slice) (*Address, error) {
	wc, hash, none, err := s.LoadStdAddress()
	if err != nil {
		return nil, err
	}
	if none {
		return nil, nil
	}
	return &Address{Workchain: wc, Hash: hash}, nil
}
