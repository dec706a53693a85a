package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"telemint/internal/datastore"
	"telemint/internal/pkg/payload"
	"telemint/internal/toncenter"
)

var (
	ErrConfiguration      = errors.New("configuration error")
	ErrEncoding           = errors.New("encoding error")
	ErrRemoteRead         = errors.New("remote read failed")
	ErrSubmissionRejected = errors.New("submission rejected")
	ErrVerificationFailed = errors.New("verification failed")
	ErrPersistence        = errors.New("persistence failed")

	ErrUserRejected        = fmt.Errorf("%w: declined by signer", ErrSubmissionRejected)
	ErrInsufficientBalance = fmt.Errorf("%w: insufficient balance", ErrSubmissionRejected)
	ErrApprovalTimedOut    = fmt.Errorf("%w: approval timed out", ErrSubmissionRejected)

	ErrInvalidArgument = payload.ErrInvalidArgument
	ErrNotFound        = datastore.ErrNotFound
)

const (
	MessageRejected            = "rejected"
	MessageTimedOut            = "timed out"
	MessageInsufficientBalance = "insufficient balance"
	MessageFailed              = "failed"
	MessageVerificationTimeout = "verification timed out"
)

// UserMessage maps err onto the short categories shown to users.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUserRejected):
		return MessageRejected
	case errors.Is(err, ErrApprovalTimedOut), errors.Is(err, context.DeadlineExceeded):
		return MessageTimedOut
	case errors.Is(err, ErrInsufficientBalance):
		return MessageInsufficientBalance
	default:
		return MessageFailed
	}
}

func IsVerificationFailed(err error) bool {
	return errors.Is(err, ErrVerificationFailed)
}

// classifySendError sorts a broadcast failure into the submission taxonomy.
func classifySendError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *toncenter.APIError
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("%w: %w", ErrRemoteRead, err)
	}
	msg := strings.ToLower(apiErr.Message)
	switch {
	case strings.Contains(msg, "insufficient"), strings.Contains(msg, "not enough"):
		return fmt.Errorf("%w: %w", ErrInsufficientBalance, err)
	case strings.Contains(msg, "verif"),
		strings.Contains(msg, "cannot apply external message"),
		strings.Contains(msg, "failed to unpack"):
		return fmt.Errorf("%w: %w", ErrVerificationFailed, err)
	case apiErr.Status >= 500:
		return fmt.Errorf("%w: %w", ErrRemoteRead, err)
	}
	return fmt.Errorf("%w: %w", ErrSubmissionRejected, err)
}
