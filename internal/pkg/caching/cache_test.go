package caching

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type quote struct {
	Fee    uint64
	Source string
}

func TestUseCacheLocal(t *testing.T) {
	c := NewCacheLocal(100, time.Minute)
	ctx := context.Background()

	var miss quote
	require.True(t, IsMiss(c.Get(ctx, "k", &miss)))

	calls := 0
	fill := func() (quote, error) {
		calls++
		return quote{Fee: 42, Source: "get_mint_fee"}, nil
	}
	v, err := UseCache(ctx, c, "k", time.Minute, fill)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), v.Fee)

	v, err = UseCache(ctx, c, "k", time.Minute, fill)
	require.NoError(t, err)
	assert.Equal(t, "get_mint_fee", v.Source)
	assert.Equal(t, 1, calls)

	require.NoError(t, c.Delete(ctx, "k"))
	_, err = UseCache(ctx, c, "k", time.Minute, fill)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestUseCacheDoesNotStoreErrors(t *testing.T) {
	c := NewCacheLocal(100, time.Minute)
	ctx := context.Background()
	boom := errors.New("boom")

	_, err := UseCache(ctx, c, "k", time.Minute, func() (int, error) { return 0, boom })
	require.ErrorIs(t, err, boom)

	var v int
	assert.True(t, IsMiss(c.Get(ctx, "k", &v)))
}
