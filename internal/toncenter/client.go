// Package toncenter is a small client for the toncenter HTTP API (v2 for
// account state, getters and broadcasts, v3 for transaction lookups). Reads
// fail over across every configured endpoint.
package toncenter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gojek/heimdall/v7"
	"github.com/gojek/heimdall/v7/httpclient"
	"github.com/mroth/weightedrand/v2"
)

const (
	MainnetEndpoint = "https://toncenter.com/api/v2"
	TestnetEndpoint = "https://testnet.toncenter.com/api/v2"

	DefaultTimeout = 10 * time.Second
)

var ErrNoEndpoints = errors.New("toncenter: no endpoints configured")

type Endpoint struct {
	URL    string
	Weight uint
}

// v3 derives the indexer base from a v2 base.
func (e Endpoint) v3() string {
	if strings.Contains(e.URL, "/api/v2") {
		return strings.Replace(e.URL, "/api/v2", "/api/v3", 1)
	}
	return strings.TrimRight(e.URL, "/") + "/v3"
}

// ParseEndpoints reads "url[|weight],url[|weight]".
func ParseEndpoints(s string) ([]Endpoint, error) {
	var out []Endpoint
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		raw, weight, hasWeight := strings.Cut(part, "|")
		ep := Endpoint{URL: strings.TrimRight(raw, "/"), Weight: 1}
		if hasWeight {
			w, err := strconv.ParseUint(weight, 10, 32)
			if err != nil {
				return nil, fmt.Errorf("toncenter: endpoint %q: bad weight: %w", raw, err)
			}
			ep.Weight = uint(w)
		}
		if _, err := url.ParseRequestURI(ep.URL); err != nil {
			return nil, fmt.Errorf("toncenter: endpoint %q: %w", raw, err)
		}
		out = append(out, ep)
	}
	if len(out) == 0 {
		return nil, ErrNoEndpoints
	}
	return out, nil
}

// APIError is an answer from the node itself, as opposed to a transport
// failure.
type APIError struct {
	Status  int
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("toncenter: %d: %s", e.Code, e.Message)
}

// overloaded reports answers that say nothing about the request itself.
func (e *APIError) overloaded() bool {
	switch e.Status {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return e.Message == "" && e.Status >= http.StatusInternalServerError
}

// readFailover moves reads to the next endpoint on anything but a definite
// client-side error.
func readFailover(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return true
	}
	return apiErr.overloaded() || apiErr.Status >= http.StatusInternalServerError
}

// sendFailover only moves broadcasts on when the node never judged the
// message.
func sendFailover(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return true
	}
	return apiErr.overloaded()
}

type Client struct {
	endpoints []Endpoint
	chooser   *weightedrand.Chooser[int, uint]
	apiKey    string
	timeout   time.Duration
	retries   int
	doer      heimdall.Doer
	http      *httpclient.Client
}

type Option func(*Client)

func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.apiKey = key
	}
}

// WithTimeout bounds every single request.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithRetryCount makes heimdall retry transport errors and 5xx answers on the
// same endpoint before failing over.
func WithRetryCount(n int) Option {
	return func(c *Client) {
		c.retries = n
	}
}

func WithDoer(d heimdall.Doer) Option {
	return func(c *Client) {
		c.doer = d
	}
}

func NewClient(endpoints []Endpoint, opts ...Option) (*Client, error) {
	if len(endpoints) == 0 {
		return nil, ErrNoEndpoints
	}
	c := &Client{endpoints: endpoints, timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(c)
	}

	choices := make([]weightedrand.Choice[int, uint], 0, len(endpoints))
	for i, ep := range endpoints {
		choices = append(choices, weightedrand.NewChoice(i, ep.Weight))
	}
	chooser, err := weightedrand.NewChooser(choices...)
	if err == nil {
		c.chooser = chooser
	}

	hopts := []httpclient.Option{
		httpclient.WithHTTPTimeout(c.timeout),
		httpclient.WithRetryCount(c.retries),
	}
	if c.retries > 0 {
		hopts = append(hopts, httpclient.WithRetrier(heimdall.NewRetrier(heimdall.NewConstantBackoff(200*time.Millisecond, 50*time.Millisecond))))
	}
	if c.doer != nil {
		hopts = append(hopts, httpclient.WithHTTPClient(c.doer))
	}
	c.http = httpclient.NewClient(hopts...)
	return c, nil
}

// order puts a weighted pick first, then the rest in configuration order.
func (c *Client) order() []Endpoint {
	if c.chooser == nil || len(c.endpoints) == 1 {
		return c.endpoints
	}
	first := c.chooser.Pick()
	out := make([]Endpoint, 0, len(c.endpoints))
	out = append(out, c.endpoints[first])
	for i, ep := range c.endpoints {
		if i != first {
			out = append(out, ep)
		}
	}
	return out
}

// each runs fn against endpoints until one succeeds or failover says the
// error is final.
func (c *Client) each(ctx context.Context, failover func(error) bool, fn func(ctx context.Context, ep Endpoint) error) error {
	var errs []error
	for _, ep := range c.order() {
		if err := ctx.Err(); err != nil {
			return errors.Join(append(errs, err)...)
		}
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		err := fn(callCtx, ep)
		cancel()
		if err == nil {
			return nil
		}
		if !failover(err) {
			return err
		}
		errs = append(errs, fmt.Errorf("%s: %w", ep.URL, err))
	}
	return errors.Join(errs...)
}

type envelope struct {
	OK     bool            `json:"ok"`
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
	Code   int             `json:"code"`
}

func (c *Client) do(ctx context.Context, method, target string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if resp == nil {
		return err
	}
	defer resp.Body.Close()
	raw, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return readErr
	}
	if resp.StatusCode == http.StatusOK && err == nil {
		return json.Unmarshal(raw, out)
	}

	var failure struct {
		Error string `json:"error"`
		Code  int    `json:"code"`
	}
	if json.Unmarshal(raw, &failure) == nil && failure.Error != "" {
		return &APIError{Status: resp.StatusCode, Code: failure.Code, Message: failure.Error}
	}
	return &APIError{Status: resp.StatusCode, Code: resp.StatusCode}
}

func (c *Client) v2(ctx context.Context, ep Endpoint, method, path string, query url.Values, body any, out any) error {
	target := ep.URL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	var env envelope
	if err := c.do(ctx, method, target, body, &env); err != nil {
		return err
	}
	if !env.OK {
		return &APIError{Status: http.StatusOK, Code: env.Code, Message: env.Error}
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(env.Result, out)
}
