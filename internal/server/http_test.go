package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/coffersTech/nanofilter/internal/engine"
	"github.com/coffersTech/nanofilter/internal/storage"
	"github.com/coffersTech/nanofilter/value"
	"golang.org/x/crypto/bcrypt"
)

func newTestServer(t *testing.T, opts Options) *httptest.Server {
	t.Helper()
	w, err := storage.NewColumnWriter(0)
	if err != nil {
		t.Fatal(err)
	}
	r, err := storage.NewColumnReader()
	if err != nil {
		t.Fatal(err)
	}
	e, err := engine.New(engine.Options{
		DataDir: t.TempDir(),
		Workers: 2,
		Reader:  r.ReadSnapshot,
		Writer:  w.WriteSnapshot,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	t.Cleanup(func() {
		e.Close()
		r.Close()
	})

	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	ts := httptest.NewServer(New(e, opts).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func do(t *testing.T, method, url, contentType, body string, header ...string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var out map[string]any
	data, _ := io.ReadAll(resp.Body)
	if len(bytes.TrimSpace(data)) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(data, &out); err != nil {
			t.Fatalf("decode %s: %v", data, err)
		}
	}
	return resp, out
}

const users = `[
	{"name":"ada","age":36,"tags":["math","eng"]},
	{"name":"bob","age":17},
	{"name":"cy","age":52,"address":{"city":"Oslo"}}
]`

func TestIngestAndFind(t *testing.T) {
	ts := newTestServer(t, Options{})

	resp, body := do(t, "POST", ts.URL+"/api/collections/users/docs", "application/json", users)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("ingest status = %d, body %v", resp.StatusCode, body)
	}
	if body["inserted"] != float64(3) {
		t.Errorf("inserted = %v, want 3", body["inserted"])
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}

	tests := []struct {
		name  string
		query string
		want  float64
	}{
		{"all", `{}`, 3},
		{"equality", `{"filter":{"name":"bob"}}`, 1},
		{"range", `{"filter":{"age":{"$gte":30}}}`, 2},
		{"array membership", `{"filter":{"tags":"eng"}}`, 1},
		{"nested path", `{"filter":{"address.city":"Oslo"}}`, 1},
		{"nanoql", `{"q":"age > 20 AND name != ada"}`, 1},
		{"filter and nanoql", `{"filter":{"age":{"$lt":40}},"q":"name IN (ada, cy)"}`, 1},
		{"limit", `{"limit":2}`, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := do(t, "POST", ts.URL+"/api/collections/users/find", "application/json", tt.query)
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("status = %d, body %v", resp.StatusCode, body)
			}
			if body["count"] != tt.want {
				t.Errorf("count = %v, want %v", body["count"], tt.want)
			}
		})
	}
}

func TestFindErrors(t *testing.T) {
	ts := newTestServer(t, Options{})
	do(t, "POST", ts.URL+"/api/collections/users/docs", "application/json", users)

	tests := []struct {
		name     string
		path     string
		body     string
		wantCode string
	}{
		{"unknown operator", "/api/collections/users/find", `{"filter":{"age":{"$foo":1}}}`, "unknown_operator"},
		{"unsupported operator", "/api/collections/users/find", `{"filter":{"$or":[]}}`, "unsupported_operator"},
		{"malformed $in", "/api/collections/users/find", `{"filter":{"age":{"$in":5}}}`, "malformed_operand"},
		{"non-object filter", "/api/collections/users/find", `{"filter":[1,2]}`, "invalid_spec"},
		{"bad json", "/api/collections/users/find", `{"filter":`, "invalid_json"},
		{"nanoql syntax", "/api/collections/users/find", `{"q":"age >"}`, "invalid_query"},
		{"nanoql or", "/api/collections/users/find", `{"q":"a:1 OR b:2"}`, "invalid_query"},
		{"bad collection", "/api/collections/-bad/find", `{}`, "invalid_request"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := do(t, "POST", ts.URL+tt.path, "application/json", tt.body)
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("status = %d, body %v", resp.StatusCode, body)
			}
			if body["code"] != tt.wantCode {
				t.Errorf("code = %v, want %s (%v)", body["code"], tt.wantCode, body["error"])
			}
		})
	}
}

func TestIngestFormats(t *testing.T) {
	ts := newTestServer(t, Options{})

	var mp bytes.Buffer
	for _, s := range []string{`{"n":1}`, `{"n":2}`} {
		if err := value.EncodeMsgpack(&mp, value.MustParseJSON(s)); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		name        string
		contentType string
		body        string
		want        float64
	}{
		{"object", "application/json", `{"n":1}`, 1},
		{"array", "application/json; charset=utf-8", `[{"n":1},{"n":2}]`, 2},
		{"ndjson", "application/x-ndjson", "{\"n\":1}\n{\"n\":2}\n\n{\"n\":3}\n", 3},
		{"msgpack", "application/msgpack", mp.String(), 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := do(t, "POST", ts.URL+"/api/collections/fmt/docs", tt.contentType, tt.body)
			if resp.StatusCode != http.StatusCreated {
				t.Fatalf("status = %d, body %v", resp.StatusCode, body)
			}
			if body["inserted"] != tt.want {
				t.Errorf("inserted = %v, want %v", body["inserted"], tt.want)
			}
		})
	}

	resp, body := do(t, "POST", ts.URL+"/api/collections/fmt/docs", "application/json", `[1,2]`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("scalar documents: status = %d, body %v", resp.StatusCode, body)
	}
}

func TestCountHistogramAndSearch(t *testing.T) {
	ts := newTestServer(t, Options{})
	do(t, "POST", ts.URL+"/api/collections/users/docs", "application/json", users)

	_, body := do(t, "POST", ts.URL+"/api/collections/users/count", "application/json", `{"filter":{"age":{"$ne":17}}}`)
	if body["count"] != float64(2) {
		t.Errorf("count = %v, want 2", body["count"])
	}

	_, body = do(t, "GET", ts.URL+`/api/collections/users/search?q=name:ada&limit=10`, "", "")
	if body["count"] != float64(1) {
		t.Errorf("search count = %v, want 1", body["count"])
	}

	resp, body := do(t, "POST", ts.URL+"/api/collections/users/histogram", "application/json", `{"interval":"1h"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("histogram status = %d, body %v", resp.StatusCode, body)
	}
	var total float64
	for _, p := range body["points"].([]any) {
		total += p.(map[string]any)["count"].(float64)
	}
	if total != 3 {
		t.Errorf("histogram total = %v, want 3", total)
	}

	resp, _ = do(t, "POST", ts.URL+"/api/collections/users/histogram", "application/json", `{"interval":"soon"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad interval: status = %d", resp.StatusCode)
	}

	_, body = do(t, "GET", ts.URL+"/api/collections", "", "")
	if got := body["collections"].([]any); len(got) != 1 || got[0] != "users" {
		t.Errorf("collections = %v", got)
	}
}

func TestCompile(t *testing.T) {
	ts := newTestServer(t, Options{})

	resp, body := do(t, "POST", ts.URL+"/api/compile", "application/json", `{"filter":{"a":1,"b":{"$gt":2,"$lt":5}}}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body %v", resp.StatusCode, body)
	}
	if body["size"].(float64) < 3 {
		t.Errorf("size = %v, want at least 3", body["size"])
	}
	if !strings.Contains(body["tree"].(string), "$gt") {
		t.Errorf("tree does not mention $gt:\n%s", body["tree"])
	}

	_, body = do(t, "POST", ts.URL+"/api/compile", "application/json", `{"q":"age >= 21"}`)
	if filter, _ := json.Marshal(body["filter"]); string(filter) != `{"age":{"$gte":21}}` {
		t.Errorf("translated filter = %s", filter)
	}

	resp, body = do(t, "POST", ts.URL+"/api/compile", "application/json", `{"filter":{"a":{"$regex":"x"}}}`)
	if resp.StatusCode != http.StatusBadRequest || body["code"] != "unsupported_operator" {
		t.Errorf("status = %d, body %v", resp.StatusCode, body)
	}
	if body["operator"] != "$regex" {
		t.Errorf("operator = %v, want $regex", body["operator"])
	}
}

func TestAuthMiddleware(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	ts := newTestServer(t, Options{TokenHashes: []string{string(hash)}})

	tests := []struct {
		name   string
		url    string
		header []string
		want   int
	}{
		{"missing", "/api/stats", nil, http.StatusUnauthorized},
		{"wrong", "/api/stats", []string{"Authorization", "Bearer nope"}, http.StatusUnauthorized},
		{"bearer", "/api/stats", []string{"Authorization", "Bearer s3cret"}, http.StatusOK},
		{"bearer again", "/api/stats", []string{"Authorization", "Bearer s3cret"}, http.StatusOK},
		{"query param", "/api/stats?token=s3cret", nil, http.StatusOK},
		{"healthz is open", "/healthz", nil, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, _ := do(t, "GET", ts.URL+tt.url, "", "", tt.header...)
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
			if tt.want == http.StatusUnauthorized && resp.Header.Get("WWW-Authenticate") == "" {
				t.Error("missing WWW-Authenticate header")
			}
		})
	}
}

func TestBodyTooLarge(t *testing.T) {
	ts := newTestServer(t, Options{MaxBodyBytes: 64})

	resp, body := do(t, "POST", ts.URL+"/api/collections/big/docs", "application/json",
		`{"payload":"`+strings.Repeat("x", 256)+`"}`)
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, body %v", resp.StatusCode, body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, Options{})
	do(t, "POST", ts.URL+"/api/collections/m/docs", "application/json", `{"a":1}`)

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(data), "nanofilter_documents_ingested_total") {
		t.Error("metrics output lacks nanofilter_documents_ingested_total")
	}
}
