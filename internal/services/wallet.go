package services

import (
	"context"
	"crypto/ed25519"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/samber/do"
	"golang.org/x/sync/errgroup"

	"telemint/internal/interfaces"
	"telemint/internal/log"
	"telemint/internal/models"
	"telemint/internal/pkg/ton_utils"
)

type ServiceWallet struct {
	config *ServiceConfig
	chain  interfaces.Chain
	logger zerolog.Logger
}

func NewServiceWallet(container *do.Injector) (*ServiceWallet, error) {
	config, err := do.Invoke[*ServiceConfig](container)
	if err != nil {
		return nil, err
	}

	chain, err := do.Invoke[interfaces.Chain](container)
	if err != nil {
		return nil, err
	}

	return &ServiceWallet{config, chain, log.Wallet}, nil
}

// Candidates derives every known wallet layout for pub and reads the
// balances concurrently. A failed lookup counts as an empty wallet.
func (service *ServiceWallet) Candidates(ctx context.Context, pub ed25519.PublicKey) ([]models.WalletCandidate, error) {
	variants := ton_utils.Variants(service.config.Workchain)
	cands := make([]models.WalletCandidate, len(variants))
	for i, v := range variants {
		addr, err := v.Address(pub)
		if err != nil {
			return nil, fmt.Errorf("%w: %s address: %w", ErrEncoding, v.Tag(), err)
		}
		cands[i] = models.WalletCandidate{
			Variant: v,
			Tag:     v.Tag(),
			Address: addr,
			Human:   service.config.Human(addr),
		}
	}

	errWg, errCtx := errgroup.WithContext(ctx)
	errWg.SetLimit(BALANCE_LOOKUP_CONCURRENCY)
	for i := range cands {
		c := &cands[i]
		errWg.Go(func() error {
			balance, err := service.chain.GetBalance(errCtx, c.Address)
			if err != nil {
				service.logger.Warn().Err(err).Str("variant", c.Tag).Str("address", c.Human).Msg("balance lookup failed")
				c.BalanceError = err.Error()
				return nil
			}
			c.Balance = balance
			return nil
		})
	}
	// nolint:errcheck
	errWg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return cands, nil
}

// SelectSigningAccount picks the wallet that will sign for pub.
func (service *ServiceWallet) SelectSigningAccount(ctx context.Context, pub ed25519.PublicKey) (*models.WalletCandidate, error) {
	cands, err := service.Candidates(ctx, pub)
	if err != nil {
		return nil, err
	}
	picked, err := SelectCandidate(cands, service.config.WalletVariant)
	if err != nil {
		return nil, err
	}
	service.logger.Info().Str("variant", picked.Tag).Str("address", picked.Human).Uint64("balance", picked.Balance).Msg("signing account selected")
	return picked, nil
}

// SelectCandidate applies the selection rule: the override tag wins, then
// the strictly greatest balance, then the first candidate.
func SelectCandidate(cands []models.WalletCandidate, override string) (*models.WalletCandidate, error) {
	if len(cands) == 0 {
		return nil, fmt.Errorf("%w: no wallet candidates", ErrConfiguration)
	}
	if override != "" {
		for i := range cands {
			if cands[i].Tag == override {
				return &cands[i], nil
			}
		}
		return nil, fmt.Errorf("%w: wallet variant %q is not a candidate", ErrConfiguration, override)
	}
	best := 0
	for i := 1; i < len(cands); i++ {
		if cands[i].Balance > cands[best].Balance {
			best = i
		}
	}
	return &cands[best], nil
}
