package payload

import (
	"fmt"

	"telemint/internal/pkg/cell"
	"telemint/internal/pkg/ton_utils"
)

type JettonMintArgs struct {
	// QueryID goes into the internal transfer; the outer mint carries 0.
	QueryID uint64
	To      string
	// TonAmount is attached to the mint and funds the recipient's jetton wallet.
	TonAmount uint64
	Amount    uint64
	From      string
	// Response receives excess value; empty means addr_none.
	Response      string
	ForwardAmount uint64
}

// JettonMint:
//
//	op:uint32=21 | query_id:uint64=0 | to | ton_amount:coins | ^internal_transfer
//	internal_transfer: op:uint32 | query_id:uint64 | amount:coins | from |
//	                   response | forward_amount:coins | forward_payload:bit
func JettonMint(args JettonMintArgs) (*cell.Cell, error) {
	to, err := parseAddress("recipient", args.To)
	if err != nil {
		return nil, err
	}
	from, err := parseAddress("sender", args.From)
	if err != nil {
		return nil, err
	}
	var response *ton_utils.Address
	if args.Response != "" {
		r, err := parseAddress("response", args.Response)
		if err != nil {
			return nil, err
		}
		response = &r
	}
	if args.Amount == 0 {
		return nil, fmt.Errorf("%w: jetton amount must be positive", ErrInvalidArgument)
	}

	ib := cell.BeginCell().
		StoreUint(uint64(OpJettonInternalTransfer), 32).
		StoreUint(args.QueryID, 64).
		StoreCoins(args.Amount)
	ton_utils.StoreAddress(ib, &from)
	ton_utils.StoreAddress(ib, response)
	internal, err := build("internal transfer", ib.StoreCoins(args.ForwardAmount).StoreBit(false))
	if err != nil {
		return nil, err
	}

	b := cell.BeginCell().
		StoreUint(uint64(OpJettonMint), 32).
		StoreUint(0, 64)
	ton_utils.StoreAddress(b, &to)
	return build("jetton mint", b.StoreCoins(args.TonAmount).StoreRef(internal))
}

type JettonMinterArgs struct {
	Workchain  int32
	Admin      string
	ContentURI string
	MinterCode *cell.Cell
	WalletCode *cell.Cell
}

// JettonMinterStateInit returns the minter init and the address it deploys
// to. Data: total_supply:coins | admin | ^content | ^wallet_code.
func JettonMinterStateInit(args JettonMinterArgs) (ton_utils.StateInit, ton_utils.Address, error) {
	if args.MinterCode == nil || args.WalletCode == nil {
		return ton_utils.StateInit{}, ton_utils.Address{}, fmt.Errorf("%w: minter and wallet code are required", ErrInvalidArgument)
	}
	admin, err := parseAddress("admin", args.Admin)
	if err != nil {
		return ton_utils.StateInit{}, ton_utils.Address{}, err
	}
	content, err := OffchainContent(args.ContentURI)
	if err != nil {
		return ton_utils.StateInit{}, ton_utils.Address{}, err
	}
	b := cell.BeginCell().StoreCoins(0)
	ton_utils.StoreAddress(b, &admin)
	data, err := build("minter data", b.StoreRef(content).StoreRef(args.WalletCode))
	if err != nil {
		return ton_utils.StateInit{}, ton_utils.Address{}, err
	}
	si := ton_utils.StateInit{Code: args.MinterCode, Data: data}
	addr, err := ton_utils.DeriveAddress(args.Workchain, si)
	if err != nil {
		return ton_utils.StateInit{}, ton_utils.Address{}, fmt.Errorf("%w: %w", ErrEncoding, err)
	}
	return si, addr, nil
}

// JettonDeployMint deploys a minter and mints to mint.To in one message.
// mint.From defaults to the minter itself.
func JettonDeployMint(minter JettonMinterArgs, mint JettonMintArgs, value uint64) (*Message, error) {
	si, addr, err := JettonMinterStateInit(minter)
	if err != nil {
		return nil, err
	}
	if mint.From == "" {
		mint.From = addr.Raw()
	}
	body, err := JettonMint(mint)
	if err != nil {
		return nil, err
	}
	if value == 0 {
		return nil, fmt.Errorf("%w: value must be positive", ErrInvalidArgument)
	}
	return &Message{Destination: addr, Amount: value, Bounce: false, Payload: body, StateInit: &si}, nil
}
