package datastore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telemint/internal/models"
	"telemint/internal/pkg/ton_utils"
)

var owner = ton_utils.Address{Workchain: 0, Hash: [32]byte{0x11}}

func pending(id string, created time.Time) *models.MintRequest {
	return &models.MintRequest{
		ID:          id,
		UserAddress: owner.Raw(),
		MetadataURI: "ipfs://" + id,
		Status:      models.MintStatusPending,
		CreatedAt:   created,
	}
}

func TestInsertAndGet(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryMintRequestRepository()
	req := pending("a", time.Now())
	require.NoError(t, repo.Insert(ctx, req))
	require.ErrorIs(t, repo.Insert(ctx, req), ErrAlreadyExists)

	got, err := repo.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, req, got)

	// copies only
	got.Status = models.MintStatusFailed
	req.Status = models.MintStatusFailed
	again, err := repo.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, models.MintStatusPending, again.Status)

	_, err = repo.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestListFiltersByOwner(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryMintRequestRepository()
	other := ton_utils.Address{Workchain: 0, Hash: [32]byte{0x22}}

	require.NoError(t, repo.Insert(ctx, pending("a", time.Now())))
	b := pending("b", time.Now())
	b.UserAddress = other.Raw()
	require.NoError(t, repo.Insert(ctx, b))
	require.NoError(t, repo.Insert(ctx, pending("c", time.Now())))

	mine, err := repo.List(ctx, owner.ToHuman(true, false))
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, "a", mine[0].ID)
	assert.Equal(t, "c", mine[1].ID)

	all, err := repo.List(ctx, ListAll)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	none, err := repo.List(ctx, "nobody")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestUpdateKeepsOriginalOnError(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryMintRequestRepository()
	require.NoError(t, repo.Insert(ctx, pending("a", time.Now())))

	boom := errors.New("boom")
	_, err := repo.Update(ctx, "a", func(req *models.MintRequest) error {
		req.Status = models.MintStatusCompleted
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := repo.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, models.MintStatusPending, got.Status)

	_, err = repo.Update(ctx, "missing", func(*models.MintRequest) error { return nil })
	require.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateSerialisesWriters(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryMintRequestRepository()
	require.NoError(t, repo.Insert(ctx, pending("a", time.Now())))

	errDone := errors.New("already terminal")
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.Update(ctx, "a", func(req *models.MintRequest) error {
				if req.Status.Terminal() {
					return errDone
				}
				req.Status = models.MintStatusCompleted
				return nil
			})
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestPendingBefore(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryMintRequestRepository()
	now := time.Now()
	require.NoError(t, repo.Insert(ctx, pending("old-2", now.Add(-time.Hour))))
	require.NoError(t, repo.Insert(ctx, pending("old-1", now.Add(-2*time.Hour))))
	require.NoError(t, repo.Insert(ctx, pending("fresh", now)))
	done := pending("done", now.Add(-time.Hour))
	done.Status = models.MintStatusCompleted
	require.NoError(t, repo.Insert(ctx, done))

	ids, err := repo.PendingBefore(ctx, now.Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, []string{"old-1", "old-2"}, ids)
}

func TestRestoreReplacesExisting(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryMintRequestRepository()
	require.NoError(t, repo.Insert(ctx, pending("a", time.Now())))

	done := pending("a", time.Now())
	done.Status = models.MintStatusCompleted
	require.NoError(t, repo.Restore(ctx, []*models.MintRequest{done, pending("b", time.Now())}))

	all, err := repo.List(ctx, ListAll)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, models.MintStatusCompleted, all[0].Status)
	assert.Equal(t, "b", all[1].ID)
}

func TestSameAddress(t *testing.T) {
	assert.True(t, SameAddress(owner.Raw(), owner.ToHuman(false, true)))
	assert.True(t, SameAddress("x", "x"))
	assert.False(t, SameAddress(owner.Raw(), "x"))
}
