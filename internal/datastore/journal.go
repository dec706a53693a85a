package datastore

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/uptrace/bun"

	"telemint/internal/models"
)

// Journal records terminal transitions.
type Journal interface {
	Append(ctx context.Context, req *models.MintRequest) error
	// Replay returns the latest snapshot per request, in first-seen order.
	Replay(ctx context.Context) ([]*models.MintRequest, error)
}

// FileJournal writes "RFC3339Nano<TAB>json" lines to an append-only file.
type FileJournal struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

func NewFileJournal(path string) *FileJournal {
	return &FileJournal{path: path, now: time.Now}
}

func (j *FileJournal) Append(_ context.Context, req *models.MintRequest) error {
	raw, err := json.Marshal(req)
	if err != nil {
		return err
	}
	line := j.now().UTC().Format(time.RFC3339Nano) + "\t" + string(raw) + "\n"

	j.mu.Lock()
	defer j.mu.Unlock()
	f, err := os.OpenFile(j.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(line); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (j *FileJournal) Replay(_ context.Context) ([]*models.MintRequest, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	f, err := os.Open(j.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	latest := newLatest()
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	n := 0
	// a bad line only fails the replay once another line follows it; a bad
	// last line is a write torn by a crash and is dropped
	var torn error
	for scanner.Scan() {
		n++
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		if torn != nil {
			return nil, torn
		}
		req, err := parseJournalLine(line)
		if err != nil {
			torn = fmt.Errorf("journal %s:%d: %w", j.path, n, err)
			continue
		}
		latest.put(req)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return latest.list(), nil
}

func parseJournalLine(line string) (*models.MintRequest, error) {
	_, raw, ok := strings.Cut(line, "\t")
	if !ok {
		return nil, errors.New("missing timestamp separator")
	}
	var req models.MintRequest
	if err := json.Unmarshal([]byte(raw), &req); err != nil {
		return nil, err
	}
	return &req, nil
}

type latestSet struct {
	byID  map[string]*models.MintRequest
	order []string
}

func newLatest() *latestSet {
	return &latestSet{byID: map[string]*models.MintRequest{}}
}

func (l *latestSet) put(req *models.MintRequest) {
	if _, ok := l.byID[req.ID]; !ok {
		l.order = append(l.order, req.ID)
	}
	l.byID[req.ID] = req
}

func (l *latestSet) list() []*models.MintRequest {
	out := make([]*models.MintRequest, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, l.byID[id])
	}
	return out
}

func CreateTableMintRequestLog(ctx context.Context, db *bun.DB) error {
	_, err := db.NewCreateTable().Model((*models.MintRequestLog)(nil)).IfNotExists().Exec(ctx)
	if err != nil {
		return err
	}

	_, err = db.NewCreateIndex().Model((*models.MintRequestLog)(nil)).Index("index_mint_request_log_request_id").IfNotExists().Column("request_id").Exec(ctx)
	if err != nil {
		return err
	}
	return nil
}

// BunJournal mirrors terminal transitions into an insert-only table.
type BunJournal struct {
	db *bun.DB
}

func NewBunJournal(db *bun.DB) *BunJournal {
	return &BunJournal{db: db}
}

func (j *BunJournal) Append(ctx context.Context, req *models.MintRequest) error {
	_, err := j.db.NewInsert().Model(&models.MintRequestLog{
		RequestID: req.ID,
		Status:    req.Status,
		Snapshot:  req,
		LoggedAt:  time.Now().UTC(),
	}).Exec(ctx)
	return err
}

func (j *BunJournal) Replay(ctx context.Context) ([]*models.MintRequest, error) {
	var rows []models.MintRequestLog
	if err := j.db.NewSelect().Model(&rows).Order("id ASC").Scan(ctx); err != nil {
		return nil, err
	}
	latest := newLatest()
	for i := range rows {
		if rows[i].Snapshot != nil {
			latest.put(rows[i].Snapshot)
		}
	}
	return latest.list(), nil
}

// MultiJournal appends to every journal and replays from the first.
type MultiJournal []Journal

func (m MultiJournal) Append(ctx context.Context, req *models.MintRequest) error {
	var errs []error
	for _, j := range m {
		if err := j.Append(ctx, req); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m MultiJournal) Replay(ctx context.Context) ([]*models.MintRequest, error) {
	if len(m) == 0 {
		return nil, nil
	}
	return m[0].Replay(ctx)
}

// NopJournal discards everything.
type NopJournal struct{}

func (NopJournal) Append(context.Context, *models.MintRequest) error { return nil }

func (NopJournal) Replay(context.Context) ([]*models.MintRequest, error) { return nil, nil }
