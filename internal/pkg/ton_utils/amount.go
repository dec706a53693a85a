package ton_utils

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/tonkeeper/tongo/wallet"
)

const OneTON uint64 = 1_000_000_000

var ErrInvalidAmount = errors.New("invalid amount")

// ParseTON converts a decimal TON string such as "1.5" to nanoton.
func ParseTON(s string) (uint64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	nano := d.Shift(9)
	if d.IsNegative() || !nano.IsInteger() {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	v := nano.BigInt()
	if !v.IsUint64() {
		return 0, fmt.Errorf("%w: %q overflows", ErrInvalidAmount, s)
	}
	return v.Uint64(), nil
}

func FormatTON(nano uint64) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(nano), -9).String()
}

// PrivateKeyFromMnemonic derives the wallet key from a 24-word phrase.
func PrivateKeyFromMnemonic(mnemonic string) (ed25519.PrivateKey, error) {
	words := strings.Fields(mnemonic)
	if len(words) == 0 {
		return nil, errors.New("empty mnemonic")
	}
	return wallet.SeedToPrivateKey(strings.Join(words, " "))
}

// PrivateKeyFromHex accepts a 32-byte seed or a 64-byte expanded key.
func PrivateKeyFromHex(s string) (ed25519.PrivateKey, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if err != nil {
		return nil, fmt.Errorf("private key: %w", err)
	}
	switch len(raw) {
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(raw), nil
	case ed25519.PrivateKeySize:
		return ed25519.NewKeyFromSeed(raw[:ed25519.SeedSize]), nil
	}
	return nil, fmt.Errorf("private key: unexpected length %d", len(raw))
}
