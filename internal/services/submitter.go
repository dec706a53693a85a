package services

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/do"

	"telemint/internal/interfaces"
	"telemint/internal/log"
	"telemint/internal/models"
	"telemint/internal/pkg/cell"
	"telemint/internal/pkg/locker"
	"telemint/internal/pkg/payload"
	"telemint/internal/pkg/retry"
	"telemint/internal/pkg/ton_utils"
)

type SubmissionState string

const (
	StateInit               SubmissionState = "init"
	StateSequenceFetched    SubmissionState = "sequence_fetched"
	StateSent               SubmissionState = "sent"
	StateConfirmed          SubmissionState = "confirmed"
	StateRejectedByUser     SubmissionState = "rejected_by_user"
	StateVerificationFailed SubmissionState = "verification_failed"
	StateTimedOut           SubmissionState = "timed_out"
	StateFailed             SubmissionState = "failed"
)

// Submission is the outcome of one Submit call.
type Submission struct {
	State       SubmissionState
	Account     ton_utils.Address
	Seqno       uint32
	Attempts    int
	MessageHash string
	Boc         []byte
}

// Signer turns an envelope into a signed external message for one wallet.
type Signer interface {
	PublicKey() ed25519.PublicKey
	Sign(variant ton_utils.WalletVariant, env *ton_utils.Envelope) (*cell.Cell, error)
}

// KeySigner signs with a key held by this process.
type KeySigner struct {
	key ed25519.PrivateKey
}

func NewKeySigner(key ed25519.PrivateKey) *KeySigner {
	return &KeySigner{key}
}

func (s *KeySigner) PublicKey() ed25519.PublicKey {
	return s.key.Public().(ed25519.PublicKey)
}

func (s *KeySigner) Sign(variant ton_utils.WalletVariant, env *ton_utils.Envelope) (*cell.Cell, error) {
	return variant.BuildSignedEnvelope(s.key, env)
}

type ServiceSubmitter struct {
	chain  interfaces.Chain
	locker locker.Locker
	logger zerolog.Logger

	now             func() time.Time
	validity        time.Duration
	approvalTimeout time.Duration
	pollInterval    time.Duration
	policy          retry.Policy
}

func NewServiceSubmitter(container *do.Injector) (*ServiceSubmitter, error) {
	chain, err := do.Invoke[interfaces.Chain](container)
	if err != nil {
		return nil, err
	}

	lock, err := do.Invoke[locker.Locker](container)
	if err != nil {
		return nil, err
	}

	service := &ServiceSubmitter{
		chain:           chain,
		locker:          lock,
		logger:          log.Submitter,
		now:             time.Now,
		validity:        ENVELOPE_VALIDITY,
		approvalTimeout: APPROVAL_TIMEOUT,
		pollInterval:    SEQNO_POLL_INTERVAL,
	}
	service.policy = retry.Policy{
		MaxAttempts: SUBMIT_MAX_ATTEMPTS,
		Backoff:     SUBMIT_RETRY_BACKOFF,
		Retryable:   IsVerificationFailed,
		OnRetry: func(attempt uint, err error) {
			service.logger.Warn().Err(err).Uint("attempt", attempt+1).Msg("submission failed verification")
		},
	}
	return service, nil
}

// Submit signs msg with account and broadcasts it, holding the account lock
// until the wallet seqno moves past the one signed over.
func (service *ServiceSubmitter) Submit(ctx context.Context, signer Signer, account *models.WalletCandidate, msg *payload.Message) (*Submission, error) {
	sub := &Submission{State: StateInit, Account: account.Address}

	unlock, err := service.locker.Lock(ctx, LockKeyAccount(account.Address))
	if err != nil {
		sub.State = StateFailed
		return sub, fmt.Errorf("lock %s: %w", account.Address.Raw(), err)
	}
	defer unlock()

	info, err := service.chain.GetWalletInfo(ctx, account.Address)
	if err != nil {
		sub.State = StateFailed
		return sub, fmt.Errorf("%w: wallet info: %w", ErrRemoteRead, err)
	}
	sub.State, sub.Seqno = StateSequenceFetched, info.Seqno

	env := &ton_utils.Envelope{
		Seqno:       info.Seqno,
		ValidUntil:  service.now().Add(service.validity),
		Destination: msg.Destination,
		Amount:      msg.Amount,
		Bounce:      msg.Bounce,
		Payload:     msg.Payload,
		StateInit:   msg.StateInit,
		Deploy:      !info.Deployed,
	}
	ext, err := signer.Sign(account.Variant, env)
	if err != nil {
		if errors.Is(err, ErrUserRejected) {
			sub.State = StateRejectedByUser
			return sub, err
		}
		sub.State = StateFailed
		return sub, fmt.Errorf("%w: sign: %w", ErrEncoding, err)
	}
	boc, err := cell.Serialize(ext)
	if err != nil {
		sub.State = StateFailed
		return sub, fmt.Errorf("%w: serialize: %w", ErrEncoding, err)
	}
	sub.Boc, sub.MessageHash = boc, ext.HashHex()

	approvalCtx, cancel := context.WithTimeout(ctx, service.approvalTimeout)
	defer cancel()

	err = service.policy.Do(approvalCtx, func(ctx context.Context) error {
		sub.Attempts++
		sub.State = StateSent
		if err := service.chain.SendBoc(ctx, boc); err != nil {
			return classifySendError(err)
		}
		return service.awaitSeqno(ctx, account.Address, info.Seqno)
	})

	switch {
	case err == nil:
		sub.State = StateConfirmed
		service.logger.Info().Str("account", account.Human).Uint32("seqno", info.Seqno).Str("hash", sub.MessageHash).Msg("submission confirmed")
		return sub, nil
	case errors.Is(approvalCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		sub.State = StateTimedOut
		return sub, fmt.Errorf("%w after %s", ErrApprovalTimedOut, service.approvalTimeout)
	case errors.Is(err, ErrVerificationFailed):
		sub.State = StateVerificationFailed
	case errors.Is(err, ErrUserRejected):
		sub.State = StateRejectedByUser
	default:
		sub.State = StateFailed
	}
	return sub, err
}

// awaitSeqno returns once the wallet reports a seqno beyond seqno.
func (service *ServiceSubmitter) awaitSeqno(ctx context.Context, addr ton_utils.Address, seqno uint32) error {
	ticker := time.NewTicker(service.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		info, err := service.chain.GetWalletInfo(ctx, addr)
		if err != nil {
			service.logger.Debug().Err(err).Str("account", addr.Raw()).Msg("seqno poll failed")
			continue
		}
		if info.Seqno > seqno {
			return nil
		}
	}
}
