// Package httpapi implements remote.Authority against the platform's HTTP/JSON API.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/classkeeper/classkeeper/internal/errs"
	"github.com/classkeeper/classkeeper/internal/model"
	"github.com/classkeeper/classkeeper/internal/remote"
)

// TokenSource supplies a bearer token for each request. The token itself comes
// from the external authentication provider; the client only attaches it.
type TokenSource func(ctx context.Context) (string, error)

// Client talks to the remote authority at {base}/api/v1/{collection}[/{id}].
type Client struct {
	baseURL string
	httpc   *http.Client
	token   TokenSource
	log     *zap.Logger
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client (e.g. to set timeouts).
func WithHTTPClient(c *http.Client) Option { return func(cl *Client) { cl.httpc = c } }

// WithTokenSource attaches Authorization: Bearer headers from the source.
func WithTokenSource(ts TokenSource) Option { return func(cl *Client) { cl.token = ts } }

// WithLogger enables structured request logging on the transport.
func WithLogger(log *zap.Logger) Option { return func(cl *Client) { cl.log = log } }

// New creates a client for the given base URL (scheme://host[:port]).
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		httpc:   &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log != nil {
		base := c.httpc.Transport
		if base == nil {
			base = http.DefaultTransport
		}
		// shallow copy so the caller's client is not mutated
		httpc := *c.httpc
		httpc.Transport = &loggingTransport{base: base, log: c.log}
		c.httpc = &httpc
	}
	return c
}

var _ remote.Authority = (*Client)(nil)

// recordDTO is the wire form of a record. Synced is local-only and never
// crosses the wire.
type recordDTO struct {
	ID           string         `json:"id"`
	Fields       map[string]any `json:"fields"`
	LastModified time.Time      `json:"last_modified"`
}

func toDTO(r model.Record) recordDTO {
	return recordDTO{ID: r.ID, Fields: r.Fields, LastModified: r.LastModified.UTC()}
}

func (d recordDTO) toModel() model.Record {
	return model.Record{ID: d.ID, Fields: d.Fields, LastModified: d.LastModified}
}

func collection(t model.RecordType) string {
	switch t {
	case model.TypeAssignment:
		return "assignments"
	case model.TypeSubmission:
		return "submissions"
	default:
		return string(t) + "s"
	}
}

// Get returns a single record by id, or errs.ErrNotFound on 404.
func (c *Client) Get(ctx context.Context, t model.RecordType, id string) (*model.Record, error) {
	var out recordDTO
	if err := c.do(ctx, http.MethodGet, "/api/v1/"+collection(t)+"/"+url.PathEscape(id), nil, nil, &out); err != nil {
		return nil, err
	}
	r := out.toModel()
	return &r, nil
}

// Insert creates a record.
func (c *Client) Insert(ctx context.Context, t model.RecordType, r model.Record) (*model.Record, error) {
	var out recordDTO
	if err := c.do(ctx, http.MethodPost, "/api/v1/"+collection(t), nil, toDTO(r), &out); err != nil {
		return nil, err
	}
	stored := out.toModel()
	return &stored, nil
}

// Update upserts a record by id. The authority treats PUT as create-or-replace,
// so updating a record that vanished remotely re-creates it.
func (c *Client) Update(ctx context.Context, t model.RecordType, r model.Record) (*model.Record, error) {
	var out recordDTO
	if err := c.do(ctx, http.MethodPut, "/api/v1/"+collection(t)+"/"+url.PathEscape(r.ID), nil, toDTO(r), &out); err != nil {
		return nil, err
	}
	stored := out.toModel()
	return &stored, nil
}

// List returns all records of a type; filter entries become query parameters.
func (c *Client) List(ctx context.Context, t model.RecordType, f model.Filter) ([]model.Record, error) {
	q := url.Values{}
	for k, v := range f {
		q.Set(k, fmt.Sprint(v))
	}
	var out []recordDTO
	if err := c.do(ctx, http.MethodGet, "/api/v1/"+collection(t), q, nil, &out); err != nil {
		return nil, err
	}
	recs := make([]model.Record, 0, len(out))
	for _, d := range out {
		recs = append(recs, d.toModel())
	}
	return recs, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != nil {
		tok, err := c.token(ctx)
		if err != nil {
			return fmt.Errorf("token source: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return errs.ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, bytes.TrimSpace(snippet))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%s %s: decode response: %w", method, path, err)
		}
	}
	return nil
}

// loggingTransport logs request metadata; never payloads.
type loggingTransport struct {
	base http.RoundTripper
	log  *zap.Logger
}

func (lt *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := lt.base.RoundTrip(req)

	fields := []zap.Field{
		zap.String("method", req.Method),
		zap.String("path", req.URL.Path),
		zap.Duration("dur", time.Since(start)),
	}
	if resp != nil {
		fields = append(fields, zap.Int("status", resp.StatusCode))
	}
	if err != nil {
		lt.log.Warn("http", append(fields, zap.Error(err))...)
	} else {
		lt.log.Info("http", fields...)
	}
	return resp, err
}
