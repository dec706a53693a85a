// Package payload builds the message bodies sent to NFT collection and jetton
// minter contracts. Layouts are fixed; changing a field order or width breaks
// the counterpart contract.
package payload

import (
	"errors"
	"fmt"
	"strings"

	"telemint/internal/pkg/cell"
	"telemint/internal/pkg/ton_utils"
)

const (
	OpNftMint                uint32 = 0x1
	OpJettonMint             uint32 = 21
	OpJettonInternalTransfer uint32 = 0x178d4519
	OpChangeAdmin            uint32 = 3

	OffchainContentPrefix = 0x01
)

var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrEncoding        = errors.New("payload encoding")
)

// Message is a payload together with where and how much to send.
type Message struct {
	Destination ton_utils.Address
	Amount      uint64
	Bounce      bool
	Payload     *cell.Cell
	StateInit   *ton_utils.StateInit
}

func parseAddress(field, s string) (ton_utils.Address, error) {
	if strings.TrimSpace(s) == "" {
		return ton_utils.Address{}, fmt.Errorf("%w: %s is required", ErrInvalidArgument, field)
	}
	a, err := ton_utils.ParseAddress(s)
	if err != nil {
		return ton_utils.Address{}, fmt.Errorf("%w: %s: %w", ErrInvalidArgument, field, err)
	}
	return a, nil
}

func build(what string, b *cell.Builder) (*cell.Cell, error) {
	c, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrEncoding, what, err)
	}
	return c, nil
}

// OffchainContent is the TEP-64 off-chain content cell for uri.
func OffchainContent(uri string) (*cell.Cell, error) {
	if strings.TrimSpace(uri) == "" {
		return nil, fmt.Errorf("%w: metadata uri is empty", ErrInvalidArgument)
	}
	return build("content", cell.BeginCell().
		StoreUint(OffchainContentPrefix, 8).
		StoreTailString(uri))
}

// NftMint: op:uint32 | to:address | ^content
func NftMint(to, metadataURI string) (*cell.Cell, error) {
	owner, err := parseAddress("recipient", to)
	if err != nil {
		return nil, err
	}
	content, err := OffchainContent(metadataURI)
	if err != nil {
		return nil, err
	}
	b := cell.BeginCell().StoreUint(uint64(OpNftMint), 32)
	ton_utils.StoreAddress(b, &owner)
	return build("nft mint", b.StoreRef(content))
}

// NftItemStateInit rebuilds the init of the item a collection deploys at
// index, for collections whose item data is index:uint64 | collection.
func NftItemStateInit(itemCode *cell.Cell, index uint64, collection ton_utils.Address) (ton_utils.StateInit, error) {
	if itemCode == nil {
		return ton_utils.StateInit{}, fmt.Errorf("%w: item code is required", ErrInvalidArgument)
	}
	b := cell.BeginCell().StoreUint(index, 64)
	ton_utils.StoreAddress(b, &collection)
	data, err := build("nft item data", b)
	if err != nil {
		return ton_utils.StateInit{}, err
	}
	return ton_utils.StateInit{Code: itemCode, Data: data}, nil
}

// ChangeAdmin: op:uint32 | query_id:uint64 | new_admin. An empty newAdmin
// revokes ownership by writing addr_none.
func ChangeAdmin(newAdmin string) (*cell.Cell, error) {
	b := cell.BeginCell().StoreUint(uint64(OpChangeAdmin), 32).StoreUint(0, 64)
	if strings.TrimSpace(newAdmin) == "" {
		ton_utils.StoreAddress(b, nil)
	} else {
		admin, err := parseAddress("new admin", newAdmin)
		if err != nil {
			return nil, err
		}
		ton_utils.StoreAddress(b, &admin)
	}
	return build("change admin", b)
}

// Transfer is a plain value transfer without a body.
func Transfer(to string, amount uint64) (*Message, error) {
	dest, err := parseAddress("recipient", to)
	if err != nil {
		return nil, err
	}
	if amount == 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidArgument)
	}
	return &Message{Destination: dest, Amount: amount}, nil
}
