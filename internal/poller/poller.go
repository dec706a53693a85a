// Package poller follows a mint request through the HTTP API until it
// reaches a terminal status.
package poller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gojek/heimdall/v7"
	"github.com/gojek/heimdall/v7/httpclient"

	"telemint/internal/log"
	"telemint/internal/models"
)

const (
	DefaultInterval = 5 * time.Second
	DefaultTimeout  = 10 * time.Second
)

var ErrNotFound = errors.New("mint request not found")

type Poller struct {
	baseURL  string
	interval time.Duration
	timeout  time.Duration
	doer     heimdall.Doer
	client   *httpclient.Client
}

type Option func(*Poller)

func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		p.interval = d
	}
}

func WithTimeout(d time.Duration) Option {
	return func(p *Poller) {
		p.timeout = d
	}
}

func WithDoer(d heimdall.Doer) Option {
	return func(p *Poller) {
		p.doer = d
	}
}

// New polls the API served at baseURL.
func New(baseURL string, opts ...Option) *Poller {
	p := &Poller{
		baseURL:  strings.TrimRight(baseURL, "/"),
		interval: DefaultInterval,
		timeout:  DefaultTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	hopts := []httpclient.Option{httpclient.WithHTTPTimeout(p.timeout)}
	if p.doer != nil {
		hopts = append(hopts, httpclient.WithHTTPClient(p.doer))
	}
	p.client = httpclient.NewClient(hopts...)
	return p
}

// Fetch reads the request once.
func (p *Poller) Fetch(ctx context.Context, id string) (*models.MintRequest, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/api/mint-status/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if resp == nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out struct {
		Success bool                `json:"success"`
		Request *models.MintRequest `json:"request"`
		Error   string              `json:"error"`
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("status %d: %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK || !out.Success || out.Request == nil {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, out.Error)
	}
	return out.Request, nil
}

// Watch fetches the request now and then every interval, handing each
// observation to fn, until the status is terminal or ctx ends. Transient
// read failures are skipped; an unknown request ends the watch.
func (p *Poller) Watch(ctx context.Context, id string, fn func(req *models.MintRequest)) (*models.MintRequest, error) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		req, err := p.Fetch(ctx, id)
		switch {
		case errors.Is(err, ErrNotFound):
			return nil, err
		case err != nil:
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Poller.Debug().Err(err).Str("id", id).Msg("status read failed")
		default:
			if fn != nil {
				fn(req)
			}
			if req.Status.Terminal() {
				return req, nil
			}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
