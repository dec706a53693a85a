package services

import (
	"context"
	"crypto/ed25519"
	"testing"

	"github.com/samber/do"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telemint/internal/models"
	"telemint/internal/pkg/ton_utils"
)

func candidates(balances ...uint64) []models.WalletCandidate {
	tags := []string{ton_utils.TagV4R2, ton_utils.TagV4R2ID0, ton_utils.TagV3R2}
	out := make([]models.WalletCandidate, len(balances))
	for i, b := range balances {
		out[i] = models.WalletCandidate{Tag: tags[i], Balance: b}
	}
	return out
}

func TestSelectCandidate(t *testing.T) {
	for name, tc := range map[string]struct {
		balances []uint64
		override string
		want     string
	}{
		"greatest":        {[]uint64{1, 5, 3}, "", ton_utils.TagV4R2ID0},
		"all zero":        {[]uint64{0, 0, 0}, "", ton_utils.TagV4R2},
		"tie keeps first": {[]uint64{2, 7, 7}, "", ton_utils.TagV4R2ID0},
		"override wins":   {[]uint64{9, 0, 0}, ton_utils.TagV3R2, ton_utils.TagV3R2},
	} {
		t.Run(name, func(t *testing.T) {
			got, err := SelectCandidate(candidates(tc.balances...), tc.override)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got.Tag)
		})
	}

	_, err := SelectCandidate(nil, "")
	require.ErrorIs(t, err, ErrConfiguration)
	_, err = SelectCandidate(candidates(1, 2), "v5r1")
	require.ErrorIs(t, err, ErrConfiguration)
}

func TestSelectSigningAccount(t *testing.T) {
	env := newTestEnv(t, map[string]string{})
	pub := testKey.Public().(ed25519.PublicKey)

	variants := ton_utils.Variants(0)
	addrs := make([]ton_utils.Address, len(variants))
	for i, v := range variants {
		a, err := v.Address(pub)
		require.NoError(t, err)
		addrs[i] = a
	}
	env.chain.balances[addrs[0]] = 10
	env.chain.balanceErrs[addrs[1]] = errTransport
	env.chain.balances[addrs[2]] = 20

	wallet := do.MustInvoke[*ServiceWallet](env.container)
	cands, err := wallet.Candidates(context.Background(), pub)
	require.NoError(t, err)
	require.Len(t, cands, 3)
	assert.Equal(t, uint64(0), cands[1].Balance)
	assert.NotEmpty(t, cands[1].BalanceError)
	assert.Equal(t, addrs[2].ToHuman(true, false), cands[2].Human)

	picked, err := wallet.SelectSigningAccount(context.Background(), pub)
	require.NoError(t, err)
	assert.Equal(t, ton_utils.TagV3R2, picked.Tag)
	assert.Equal(t, addrs[2], picked.Address)
	assert.Equal(t, ton_utils.TagV3R2, picked.Variant.Tag())

	// deterministic for the same balances
	again, err := wallet.SelectSigningAccount(context.Background(), pub)
	require.NoError(t, err)
	assert.Equal(t, picked.Address, again.Address)
}

func TestSelectSigningAccountOverride(t *testing.T) {
	env := newTestEnv(t, map[string]string{CONFIG_WALLET_VARIANT: ton_utils.TagV4R2ID0})
	pub := testKey.Public().(ed25519.PublicKey)
	v4, err := ton_utils.Variants(0)[0].Address(pub)
	require.NoError(t, err)
	env.chain.balances[v4] = 1_000_000

	picked, err := do.MustInvoke[*ServiceWallet](env.container).SelectSigningAccount(context.Background(), pub)
	require.NoError(t, err)
	assert.Equal(t, ton_utils.TagV4R2ID0, picked.Tag)
	assert.Zero(t, picked.Balance)
}
