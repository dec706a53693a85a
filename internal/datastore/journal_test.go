package datastore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telemint/internal/models"
)

func TestFileJournalReplayKeepsLatest(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "mints.log")
	j := NewFileJournal(path)

	a := pending("a", time.Now().UTC())
	a.Status = models.MintStatusFailed
	a.Error = "failed"
	require.NoError(t, j.Append(ctx, a))
	require.NoError(t, j.Append(ctx, pending("b", time.Now().UTC())))
	a.Status = models.MintStatusCompleted
	a.Error = ""
	require.NoError(t, j.Append(ctx, a))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 3)
	stamp, _, ok := strings.Cut(lines[0], "\t")
	require.True(t, ok)
	_, err = time.Parse(time.RFC3339Nano, stamp)
	require.NoError(t, err)

	got, err := j.Replay(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, models.MintStatusCompleted, got[0].Status)
	assert.Empty(t, got[0].Error)
	assert.Equal(t, "b", got[1].ID)
}

func TestFileJournalMissingFile(t *testing.T) {
	j := NewFileJournal(filepath.Join(t.TempDir(), "absent.log"))
	got, err := j.Replay(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFileJournalRejectsBadLine(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "mints.log")
	j := NewFileJournal(path)
	require.NoError(t, j.Append(ctx, pending("a", time.Now().UTC())))
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.WriteString("2024-01-01T00:00:00Z\t{broken\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())
	require.NoError(t, j.Append(ctx, pending("b", time.Now().UTC())))

	_, err = j.Replay(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), ":2:")

	require.NoError(t, os.WriteFile(path, []byte("no separator\n\n2024-01-01T00:00:00Z\t{}\n"), 0644))
	_, err = j.Replay(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing timestamp separator")
}

func TestFileJournalDropsTornTail(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "mints.log")
	j := NewFileJournal(path)
	require.NoError(t, j.Append(ctx, pending("a", time.Now().UTC())))
	require.NoError(t, j.Append(ctx, pending("b", time.Now().UTC())))
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.WriteString("2024-01-01T00:00:00Z\t{\"id\":\"c\",\"sta")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	got, err := j.Replay(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "b", got[1].ID)

	require.NoError(t, os.WriteFile(path, []byte("2024-01-01T00:00:00Z\t{broken\n"), 0644))
	got, err = j.Replay(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
}

type failingJournal struct{}

func (failingJournal) Append(context.Context, *models.MintRequest) error {
	return errors.New("disk full")
}

func (failingJournal) Replay(context.Context) ([]*models.MintRequest, error) {
	return nil, errors.New("disk full")
}

func TestMultiJournal(t *testing.T) {
	ctx := context.Background()
	file := NewFileJournal(filepath.Join(t.TempDir(), "mints.log"))
	m := MultiJournal{file, failingJournal{}}

	err := m.Append(ctx, pending("a", time.Now().UTC()))
	require.Error(t, err)

	got, err := m.Replay(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].ID)

	got, err = MultiJournal{}.Replay(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)
}
