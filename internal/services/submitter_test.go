package services

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/samber/do"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telemint/internal/models"
	"telemint/internal/pkg/cell"
	"telemint/internal/pkg/payload"
	"telemint/internal/pkg/ton_utils"
	"telemint/internal/toncenter"
)

func testAccount(t *testing.T) *models.WalletCandidate {
	t.Helper()
	v := ton_utils.Variants(0)[0]
	addr, err := v.Address(testKey.Public().(ed25519.PublicKey))
	require.NoError(t, err)
	return &models.WalletCandidate{Variant: v, Tag: v.Tag(), Address: addr, Human: addr.String()}
}

func testMessage(t *testing.T) *payload.Message {
	t.Helper()
	body, err := payload.NftMint(testUser.Raw(), "ipfs://meta.json")
	require.NoError(t, err)
	return &payload.Message{Destination: testCollection, Amount: 1_350_000_000, Bounce: true, Payload: body}
}

func verificationRejection() error {
	return &toncenter.APIError{Status: http.StatusInternalServerError, Code: 500, Message: "LITE_SERVER_UNKNOWN: cannot apply external message to current state"}
}

type rejectingSigner struct{}

func (rejectingSigner) PublicKey() ed25519.PublicKey {
	return testKey.Public().(ed25519.PublicKey)
}

func (rejectingSigner) Sign(ton_utils.WalletVariant, *ton_utils.Envelope) (*cell.Cell, error) {
	return nil, fmt.Errorf("wallet popup: %w", ErrUserRejected)
}

func newSubmitter(t *testing.T) (*ServiceSubmitter, *fakeChain) {
	env := newTestEnv(t, map[string]string{})
	return fast(do.MustInvoke[*ServiceSubmitter](env.container)), env.chain
}

func TestSubmitConfirmed(t *testing.T) {
	s, chain := newSubmitter(t)
	chain.seqno = 5
	chain.advanceOnSend = true

	sub, err := s.Submit(context.Background(), NewKeySigner(testKey), testAccount(t), testMessage(t))
	require.NoError(t, err)
	assert.Equal(t, StateConfirmed, sub.State)
	assert.Equal(t, uint32(5), sub.Seqno)
	assert.Equal(t, 1, sub.Attempts)

	sent := chain.sentBocs()
	require.Len(t, sent, 1)
	root, err := cell.ParseOne(sent[0])
	require.NoError(t, err)
	assert.Equal(t, sub.MessageHash, root.HashHex())

	// deployed wallet: no state init attached
	sl := root.BeginParse()
	tag, err := sl.LoadUint(2)
	require.NoError(t, err)
	assert.Equal(t, uint64(0b10), tag)
	_, _, none, err := sl.LoadStdAddress()
	require.NoError(t, err)
	assert.True(t, none)
	wc, hash, _, err := sl.LoadStdAddress()
	require.NoError(t, err)
	assert.Equal(t, testAccount(t).Address, ton_utils.Address{Workchain: wc, Hash: hash})
	_, err = sl.LoadCoins()
	require.NoError(t, err)
	hasInit, err := sl.LoadBit()
	require.NoError(t, err)
	assert.False(t, hasInit)
}

func TestSubmitDeploysUninitialisedWallet(t *testing.T) {
	s, chain := newSubmitter(t)
	chain.deployed = false
	chain.advanceOnSend = true

	_, err := s.Submit(context.Background(), NewKeySigner(testKey), testAccount(t), testMessage(t))
	require.NoError(t, err)

	root, err := cell.ParseOne(chain.sentBocs()[0])
	require.NoError(t, err)
	sl := root.BeginParse()
	_, err = sl.LoadUint(2)
	require.NoError(t, err)
	_, _, _, err = sl.LoadStdAddress()
	require.NoError(t, err)
	_, _, _, err = sl.LoadStdAddress()
	require.NoError(t, err)
	_, err = sl.LoadCoins()
	require.NoError(t, err)
	hasInit, err := sl.LoadBit()
	require.NoError(t, err)
	assert.True(t, hasInit)
}

func TestSubmitRetriesVerificationFailureWithSameBytes(t *testing.T) {
	s, chain := newSubmitter(t)
	chain.advanceOnSend = true
	chain.sendErrs = []error{verificationRejection(), nil}

	sub, err := s.Submit(context.Background(), NewKeySigner(testKey), testAccount(t), testMessage(t))
	require.NoError(t, err)
	assert.Equal(t, StateConfirmed, sub.State)
	assert.Equal(t, 2, sub.Attempts)

	sent := chain.sentBocs()
	require.Len(t, sent, 2)
	assert.Equal(t, sent[0], sent[1])
}

func TestSubmitGivesUpAfterTwoVerificationFailures(t *testing.T) {
	s, chain := newSubmitter(t)
	chain.sendErrs = []error{verificationRejection(), verificationRejection(), nil}

	sub, err := s.Submit(context.Background(), NewKeySigner(testKey), testAccount(t), testMessage(t))
	require.ErrorIs(t, err, ErrVerificationFailed)
	assert.Equal(t, StateVerificationFailed, sub.State)
	assert.Equal(t, 2, sub.Attempts)
	assert.Len(t, chain.sentBocs(), 2)
	assert.Equal(t, MessageFailed, UserMessage(err))
}

func TestSubmitDoesNotRetryBalanceErrors(t *testing.T) {
	s, chain := newSubmitter(t)
	chain.sendErrs = []error{&toncenter.APIError{Status: http.StatusBadRequest, Message: "not enough balance"}}

	sub, err := s.Submit(context.Background(), NewKeySigner(testKey), testAccount(t), testMessage(t))
	require.ErrorIs(t, err, ErrInsufficientBalance)
	assert.Equal(t, StateFailed, sub.State)
	assert.Equal(t, 1, sub.Attempts)
	assert.Equal(t, MessageInsufficientBalance, UserMessage(err))
}

func TestSubmitApprovalTimeout(t *testing.T) {
	s, chain := newSubmitter(t)
	s.approvalTimeout = 100 * time.Millisecond

	start := time.Now()
	sub, err := s.Submit(context.Background(), NewKeySigner(testKey), testAccount(t), testMessage(t))
	require.ErrorIs(t, err, ErrApprovalTimedOut)
	assert.Equal(t, StateTimedOut, sub.State)
	assert.Equal(t, 1, sub.Attempts)
	assert.Len(t, chain.sentBocs(), 1)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, MessageTimedOut, UserMessage(err))
}

func TestSubmitRejectedBySigner(t *testing.T) {
	s, chain := newSubmitter(t)

	sub, err := s.Submit(context.Background(), rejectingSigner{}, testAccount(t), testMessage(t))
	require.ErrorIs(t, err, ErrUserRejected)
	assert.Equal(t, StateRejectedByUser, sub.State)
	assert.Empty(t, chain.sentBocs())
	assert.Equal(t, MessageRejected, UserMessage(err))
}

func TestSubmitSeqnoReadFailure(t *testing.T) {
	s, chain := newSubmitter(t)
	chain.walletErr = errTransport

	sub, err := s.Submit(context.Background(), NewKeySigner(testKey), testAccount(t), testMessage(t))
	require.ErrorIs(t, err, ErrRemoteRead)
	assert.Equal(t, StateFailed, sub.State)
	assert.Empty(t, chain.sentBocs())
}

func TestSubmitSerialisesPerAccount(t *testing.T) {
	s, chain := newSubmitter(t)
	chain.seqno = 10
	chain.advanceOnSend = true

	var wg sync.WaitGroup
	seqnos := make(chan uint32, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sub, err := s.Submit(context.Background(), NewKeySigner(testKey), testAccount(t), testMessage(t))
			if assert.NoError(t, err) {
				seqnos <- sub.Seqno
			}
		}()
	}
	wg.Wait()
	close(seqnos)

	got := map[uint32]bool{}
	for n := range seqnos {
		got[n] = true
	}
	assert.Equal(t, map[uint32]bool{10: true, 11: true}, got)
}
