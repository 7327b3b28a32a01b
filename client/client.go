// Package client talks to a nanofilter server over its HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coffersTech/nanofilter/value"
)

type Options struct {
	ServerURL string
	Token     string
	Timeout   time.Duration
}

// Client is safe for concurrent use.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// Row is a stored document as returned by find.
type Row struct {
	ID        string      `json:"id"`
	Timestamp int64       `json:"timestamp"`
	Doc       value.Value `json:"doc"`
}

// Query selects documents. Filter and Q are ANDed when both are set.
type Query struct {
	Filter  value.Value `json:"filter"`
	Q       string      `json:"q,omitempty"`
	Limit   int         `json:"limit,omitempty"`
	MinTime int64       `json:"min_time,omitempty"`
	MaxTime int64       `json:"max_time,omitempty"`
}

// CompileResult describes a filter accepted by the server.
type CompileResult struct {
	Filter value.Value `json:"filter"`
	Size   int         `json:"size"`
	Tree   string      `json:"tree"`
}

// APIError is a non-2xx response.
type APIError struct {
	Status   int
	Code     string `json:"code"`
	Message  string `json:"error"`
	Path     string `json:"path"`
	Operator string `json:"operator"`
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("nanofilter: HTTP %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("nanofilter: HTTP %d %s: %s", e.Status, e.Code, e.Message)
}

func New(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(opts.ServerURL, "/"),
		token:   opts.Token,
		http:    &http.Client{Timeout: timeout},
	}
}

// Insert stores docs in collection and returns their ids.
func (c *Client) Insert(ctx context.Context, collection string, docs []value.Value) ([]string, error) {
	body, err := json.Marshal(docs)
	if err != nil {
		return nil, err
	}
	return c.insert(ctx, collection, "application/json", body)
}

// InsertMsgpack is Insert with a MessagePack stream body.
func (c *Client) InsertMsgpack(ctx context.Context, collection string, docs []value.Value) ([]string, error) {
	var buf bytes.Buffer
	for _, d := range docs {
		if err := value.EncodeMsgpack(&buf, d); err != nil {
			return nil, err
		}
	}
	return c.insert(ctx, collection, "application/msgpack", buf.Bytes())
}

func (c *Client) insert(ctx context.Context, collection, contentType string, body []byte) ([]string, error) {
	var out struct {
		IDs []string `json:"ids"`
	}
	if err := c.do(ctx, http.MethodPost, collectionPath(collection, "docs"), contentType, body, &out); err != nil {
		return nil, err
	}
	return out.IDs, nil
}

// Find returns matching documents, newest first.
func (c *Client) Find(ctx context.Context, collection string, q Query) ([]Row, error) {
	var out struct {
		Rows []Row `json:"rows"`
	}
	if err := c.postJSON(ctx, collectionPath(collection, "find"), q, &out); err != nil {
		return nil, err
	}
	return out.Rows, nil
}

// Count returns the number of matching documents. Limit is ignored.
func (c *Client) Count(ctx context.Context, collection string, q Query) (int64, error) {
	var out struct {
		Count int64 `json:"count"`
	}
	if err := c.postJSON(ctx, collectionPath(collection, "count"), q, &out); err != nil {
		return 0, err
	}
	return out.Count, nil
}

// HistogramPoint is the match count of one time bucket.
type HistogramPoint struct {
	Time  int64 `json:"time"`
	Count int   `json:"count"`
}

// Histogram counts matching documents per interval-sized bucket of ingest
// time, oldest bucket first.
func (c *Client) Histogram(ctx context.Context, collection string, q Query, interval time.Duration) ([]HistogramPoint, error) {
	req := struct {
		Query
		Interval string `json:"interval"`
	}{q, interval.String()}
	var out struct {
		Points []HistogramPoint `json:"points"`
	}
	if err := c.postJSON(ctx, collectionPath(collection, "histogram"), req, &out); err != nil {
		return nil, err
	}
	return out.Points, nil
}

// Compile validates filter on the server.
func (c *Client) Compile(ctx context.Context, filter value.Value) (CompileResult, error) {
	var out CompileResult
	err := c.postJSON(ctx, "/api/compile", Query{Filter: filter}, &out)
	return out, err
}

// Collections lists collection names.
func (c *Client) Collections(ctx context.Context) ([]string, error) {
	var out struct {
		Collections []string `json:"collections"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/collections", "", nil, &out); err != nil {
		return nil, err
	}
	return out.Collections, nil
}

// Stats returns the raw server statistics document.
func (c *Client) Stats(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	err := c.do(ctx, http.MethodGet, "/api/stats", "", nil, &out)
	return out, err
}

func collectionPath(collection, action string) string {
	return "/api/collections/" + url.PathEscape(collection) + "/" + action
}

func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, path, "application/json", body, out)
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body []byte, out any) error {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		if json.Unmarshal(data, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(data))
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}
