package models

import (
	"telemint/internal/pkg/ton_utils"
)

// WalletCandidate is one derived wallet for a key, with its last known balance.
type WalletCandidate struct {
	Variant ton_utils.WalletVariant `json:"-"`
	Tag     string                  `json:"variant"`
	Address ton_utils.Address       `json:"-"`
	Human   string                  `json:"address"`
	Balance uint64                  `json:"balance"`

	// BalanceError is set when the balance could not be read.
	BalanceError string `json:"balanceError,omitempty"`
}

type FeeQuote struct {
	Fee             uint64 `json:"fee"`
	DeployItemValue uint64 `json:"deployItemValue"`
	GasBuffer       uint64 `json:"gasBuffer"`
	Total           uint64 `json:"total"`
	Source          string `json:"source"`
}
