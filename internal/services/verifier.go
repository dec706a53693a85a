package services

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/samber/do"

	"telemint/internal/interfaces"
	"telemint/internal/models"
	"telemint/internal/pkg/cell"
)

// Verifier decides whether the payment a request refers to really happened.
type Verifier interface {
	Verify(ctx context.Context, req *models.MintRequest) error
}

func NewVerifier(container *do.Injector) (Verifier, error) {
	config, err := do.Invoke[*ServiceConfig](container)
	if err != nil {
		return nil, err
	}
	if config.Verifier != VERIFIER_ONCHAIN {
		return TrustingVerifier{}, nil
	}
	chain, err := do.Invoke[interfaces.Chain](container)
	if err != nil {
		return nil, err
	}
	return &OnChainVerifier{chain}, nil
}

// TrustingVerifier accepts every request.
type TrustingVerifier struct{}

func (TrustingVerifier) Verify(context.Context, *models.MintRequest) error {
	return nil
}

// OnChainVerifier looks the submitted message up in the indexer.
type OnChainVerifier struct {
	chain interfaces.Chain
}

func NewOnChainVerifier(chain interfaces.Chain) *OnChainVerifier {
	return &OnChainVerifier{chain}
}

func (v *OnChainVerifier) Verify(ctx context.Context, req *models.MintRequest) error {
	hash, err := MessageHash(req.TxHash)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrVerificationFailed, err)
	}
	n, err := v.chain.TransactionsByMessage(ctx, hash)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRemoteRead, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: no transaction for message %s", ErrVerificationFailed, hash)
	}
	return nil
}

// MessageHash accepts either a hex message hash or the base64 BOC a wallet
// returned after sending, and yields the hex hash.
func MessageHash(txHash string) (string, error) {
	txHash = strings.TrimSpace(txHash)
	if len(txHash) == 64 {
		if _, err := hex.DecodeString(txHash); err == nil {
			return strings.ToLower(txHash), nil
		}
	}
	root, err := cell.ParseBase64(txHash)
	if err != nil {
		return "", fmt.Errorf("tx hash is neither a hash nor a message: %w", err)
	}
	return root[0].HashHex(), nil
}
