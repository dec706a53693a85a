package datastore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"telemint/internal/models"
	"telemint/internal/pkg/ton_utils"
)

var (
	ErrNotFound      = errors.New("mint request not found")
	ErrAlreadyExists = errors.New("mint request already exists")
)

// ListAll is the wildcard accepted by List.
const ListAll = "all"

type MintRequestRepository interface {
	Insert(ctx context.Context, req *models.MintRequest) error
	Get(ctx context.Context, id string) (*models.MintRequest, error)
	List(ctx context.Context, userAddress string) ([]*models.MintRequest, error)
	// Update applies fn to a copy of the request under the request's lock and
	// stores the copy only when fn succeeds.
	Update(ctx context.Context, id string, fn func(req *models.MintRequest) error) (*models.MintRequest, error)
	PendingBefore(ctx context.Context, t time.Time) ([]string, error)
	// Restore loads snapshots, replacing entries with the same id.
	Restore(ctx context.Context, reqs []*models.MintRequest) error
}

type entry struct {
	mu  sync.Mutex
	req *models.MintRequest
}

// MemoryMintRequestRepository is the single-process request table. Reads hand
// out copies, so callers never share state with the table.
type MemoryMintRequestRepository struct {
	mu      sync.RWMutex
	entries map[string]*entry
	order   []string
}

func NewMemoryMintRequestRepository() *MemoryMintRequestRepository {
	return &MemoryMintRequestRepository{entries: map[string]*entry{}}
}

func (r *MemoryMintRequestRepository) Insert(_ context.Context, req *models.MintRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[req.ID]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, req.ID)
	}
	r.entries[req.ID] = &entry{req: req.Clone()}
	r.order = append(r.order, req.ID)
	return nil
}

func (r *MemoryMintRequestRepository) lookup(id string) (*entry, error) {
	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return e, nil
}

func (r *MemoryMintRequestRepository) Get(_ context.Context, id string) (*models.MintRequest, error) {
	e, err := r.lookup(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.req.Clone(), nil
}

func (r *MemoryMintRequestRepository) List(_ context.Context, userAddress string) ([]*models.MintRequest, error) {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.order))
	for _, id := range r.order {
		entries = append(entries, r.entries[id])
	}
	r.mu.RUnlock()

	out := []*models.MintRequest{}
	for _, e := range entries {
		e.mu.Lock()
		req := e.req.Clone()
		e.mu.Unlock()
		if userAddress == "" || userAddress == ListAll || SameAddress(req.UserAddress, userAddress) {
			out = append(out, req)
		}
	}
	return out, nil
}

func (r *MemoryMintRequestRepository) Update(_ context.Context, id string, fn func(req *models.MintRequest) error) (*models.MintRequest, error) {
	e, err := r.lookup(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	next := e.req.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	e.req = next
	return next.Clone(), nil
}

func (r *MemoryMintRequestRepository) PendingBefore(_ context.Context, t time.Time) ([]string, error) {
	r.mu.RLock()
	entries := make(map[string]*entry, len(r.entries))
	for id, e := range r.entries {
		entries[id] = e
	}
	r.mu.RUnlock()

	var ids []string
	for id, e := range entries {
		e.mu.Lock()
		stale := e.req.Status == models.MintStatusPending && e.req.CreatedAt.Before(t)
		e.mu.Unlock()
		if stale {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *MemoryMintRequestRepository) Restore(_ context.Context, reqs []*models.MintRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, req := range reqs {
		if e, ok := r.entries[req.ID]; ok {
			e.mu.Lock()
			e.req = req.Clone()
			e.mu.Unlock()
			continue
		}
		r.entries[req.ID] = &entry{req: req.Clone()}
		r.order = append(r.order, req.ID)
	}
	return nil
}

// SameAddress compares two addresses by value when both parse, textually
// otherwise.
func SameAddress(a, b string) bool {
	if a == b {
		return true
	}
	pa, errA := ton_utils.ParseAddress(a)
	pb, errB := ton_utils.ParseAddress(b)
	return errA == nil && errB == nil && pa.Equal(pb)
}
