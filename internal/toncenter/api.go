package toncenter

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"telemint/internal/pkg/cell"
	"telemint/internal/pkg/ton_utils"
)

var ErrStackType = errors.New("toncenter: unexpected stack entry")

type WalletInfo struct {
	Balance  uint64
	Seqno    uint32
	Deployed bool
}

// GetMethodResult is a decoded runGetMethod answer.
type GetMethodResult struct {
	ExitCode int
	Stack    []StackEntry
}

type StackEntry struct {
	Type  string
	Value json.RawMessage
}

func (e *StackEntry) UnmarshalJSON(b []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(b, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("%w: %s", ErrStackType, b)
	}
	if err := json.Unmarshal(pair[0], &e.Type); err != nil {
		return err
	}
	e.Value = pair[1]
	return nil
}

func (r *GetMethodResult) entry(i int) (*StackEntry, error) {
	if i < 0 || i >= len(r.Stack) {
		return nil, fmt.Errorf("%w: no entry %d in a stack of %d", ErrStackType, i, len(r.Stack))
	}
	return &r.Stack[i], nil
}

// Int reads a "num" entry, which toncenter renders as a hex string.
func (r *GetMethodResult) Int(i int) (*big.Int, error) {
	e, err := r.entry(i)
	if err != nil {
		return nil, err
	}
	if e.Type != "num" {
		return nil, fmt.Errorf("%w: entry %d is %q, not num", ErrStackType, i, e.Type)
	}
	var s string
	if err := json.Unmarshal(e.Value, &s); err != nil {
		return nil, err
	}
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	base := 10
	if strings.HasPrefix(s, "0x") {
		s, base = s[2:], 16
	}
	v, ok := new(big.Int).SetString(s, base)
	if !ok {
		return nil, fmt.Errorf("%w: bad number %q", ErrStackType, s)
	}
	if neg {
		v.Neg(v)
	}
	return v, nil
}

// Uint64 is Int for values known to fit.
func (r *GetMethodResult) Uint64(i int) (uint64, error) {
	v, err := r.Int(i)
	if err != nil {
		return 0, err
	}
	if v.Sign() < 0 || !v.IsUint64() {
		return 0, fmt.Errorf("%w: %s out of range", ErrStackType, v)
	}
	return v.Uint64(), nil
}

// Cell reads a "cell" or "slice" entry.
func (r *GetMethodResult) Cell(i int) (*cell.Cell, error) {
	e, err := r.entry(i)
	if err != nil {
		return nil, err
	}
	if e.Type != "cell" && e.Type != "slice" {
		return nil, fmt.Errorf("%w: entry %d is %q, not cell", ErrStackType, i, e.Type)
	}
	var v struct {
		Bytes string `json:"bytes"`
	}
	if err := json.Unmarshal(e.Value, &v); err != nil {
		return nil, err
	}
	roots, err := cell.ParseBase64(v.Bytes)
	if err != nil {
		return nil, err
	}
	return roots[0], nil
}

// Address reads a slice entry holding a std address.
func (r *GetMethodResult) Address(i int) (ton_utils.Address, error) {
	c, err := r.Cell(i)
	if err != nil {
		return ton_utils.Address{}, err
	}
	a, err := ton_utils.LoadAddress(c.BeginParse())
	if err != nil {
		return ton_utils.Address{}, err
	}
	if a == nil {
		return ton_utils.Address{}, fmt.Errorf("%w: entry %d is addr_none", ErrStackType, i)
	}
	return *a, nil
}

func (c *Client) GetBalance(ctx context.Context, addr ton_utils.Address) (uint64, error) {
	var balance string
	err := c.each(ctx, readFailover, func(ctx context.Context, ep Endpoint) error {
		return c.v2(ctx, ep, http.MethodGet, "/getAddressBalance", url.Values{"address": {addr.Raw()}}, nil, &balance)
	})
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(balance, 10, 64)
}

func (c *Client) GetWalletInfo(ctx context.Context, addr ton_utils.Address) (*WalletInfo, error) {
	var res struct {
		Balance      string `json:"balance"`
		AccountState string `json:"account_state"`
		Seqno        uint32 `json:"seqno"`
	}
	err := c.each(ctx, readFailover, func(ctx context.Context, ep Endpoint) error {
		return c.v2(ctx, ep, http.MethodGet, "/getWalletInformation", url.Values{"address": {addr.Raw()}}, nil, &res)
	})
	if err != nil {
		return nil, err
	}
	info := &WalletInfo{Seqno: res.Seqno, Deployed: res.AccountState == "active"}
	if res.Balance != "" {
		if info.Balance, err = strconv.ParseUint(res.Balance, 10, 64); err != nil {
			return nil, fmt.Errorf("toncenter: balance %q: %w", res.Balance, err)
		}
	}
	return info, nil
}

// RunGetMethod calls a getter without arguments. A non-zero exit code is
// reported as an APIError.
func (c *Client) RunGetMethod(ctx context.Context, addr ton_utils.Address, method string, stack [][]string) (*GetMethodResult, error) {
	if stack == nil {
		stack = [][]string{}
	}
	body := map[string]any{"address": addr.Raw(), "method": method, "stack": stack}
	var res struct {
		ExitCode int          `json:"exit_code"`
		Stack    []StackEntry `json:"stack"`
	}
	err := c.each(ctx, readFailover, func(ctx context.Context, ep Endpoint) error {
		return c.v2(ctx, ep, http.MethodPost, "/runGetMethod", nil, body, &res)
	})
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 && res.ExitCode != 1 {
		return nil, &APIError{Status: http.StatusOK, Code: res.ExitCode, Message: fmt.Sprintf("%s exited with code %d", method, res.ExitCode)}
	}
	return &GetMethodResult{ExitCode: res.ExitCode, Stack: res.Stack}, nil
}

// SendBoc broadcasts a serialized external message.
func (c *Client) SendBoc(ctx context.Context, boc []byte) error {
	body := map[string]string{"boc": base64.StdEncoding.EncodeToString(boc)}
	return c.each(ctx, sendFailover, func(ctx context.Context, ep Endpoint) error {
		return c.v2(ctx, ep, http.MethodPost, "/sendBoc", nil, body, nil)
	})
}

// TransactionsByMessage counts the transactions the indexer links to an
// inbound message hash (hex).
func (c *Client) TransactionsByMessage(ctx context.Context, msgHash string) (int, error) {
	var res struct {
		Transactions []json.RawMessage `json:"transactions"`
	}
	err := c.each(ctx, readFailover, func(ctx context.Context, ep Endpoint) error {
		q := url.Values{"msg_hash": {msgHash}, "direction": {"in"}, "limit": {"1"}}
		return c.do(ctx, http.MethodGet, ep.v3()+"/transactionsByMessage?"+q.Encode(), nil, &res)
	})
	if err != nil {
		return 0, err
	}
	return len(res.Transactions), nil
}

// NumEntry builds a "num" stack entry the way toncenter renders it.
func NumEntry(v uint64) StackEntry {
	raw, _ := json.Marshal(fmt.Sprintf("0x%x", v))
	return StackEntry{Type: "num", Value: raw}
}

// CellEntry builds a "cell" stack entry holding c.
func CellEntry(c *cell.Cell) (StackEntry, error) {
	b64, err := cell.ToBase64(c)
	if err != nil {
		return StackEntry{}, err
	}
	raw, err := json.Marshal(map[string]string{"bytes": b64})
	if err != nil {
		return StackEntry{}, err
	}
	return StackEntry{Type: "cell", Value: raw}, nil
}

// NumArg encodes an integer argument for RunGetMethod.
func NumArg(v uint64) []string {
	return []string{"num", strconv.FormatUint(v, 10)}
}
