package server

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/coffersTech/nanofilter/filter"
	"github.com/coffersTech/nanofilter/internal/engine"
	"github.com/coffersTech/nanofilter/internal/metrics"
	"github.com/coffersTech/nanofilter/internal/pkg/nanoql"
	"github.com/coffersTech/nanofilter/value"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/crypto/bcrypt"
)

// DefaultMaxBodyBytes caps request bodies when Options.MaxBodyBytes is unset.
const DefaultMaxBodyBytes = 32 << 20

// Options configures a Server.
type Options struct {
	TokenHashes  []string // bcrypt hashes of accepted bearer tokens, empty disables auth
	MaxBodyBytes int64
	Logger       *slog.Logger
}

// Server exposes an Engine over HTTP.
type Server struct {
	engine  *engine.Engine
	logger  *slog.Logger
	hashes  [][]byte
	maxBody int64
	srv     *http.Server

	// verified caches sha256 sums of tokens that passed bcrypt
	verified   map[[sha256.Size]byte]struct{}
	verifiedMu sync.RWMutex
}

// New creates a server for e.
func New(e *engine.Engine, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}
	hashes := make([][]byte, len(opts.TokenHashes))
	for i, h := range opts.TokenHashes {
		hashes[i] = []byte(h)
	}
	return &Server{
		engine:   e,
		logger:   logger,
		hashes:   hashes,
		maxBody:  maxBody,
		verified: make(map[[sha256.Size]byte]struct{}),
	}
}

// Handler returns the routed handler with auth, request ids and metrics.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	api := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, s.AuthMiddleware(h))
	}
	api("GET /api/collections", s.handleCollections)
	api("POST /api/collections/{name}/docs", s.handleIngest)
	api("POST /api/collections/{name}/find", s.handleFind)
	api("GET /api/collections/{name}/search", s.handleSearch)
	api("POST /api/collections/{name}/count", s.handleCount)
	api("POST /api/collections/{name}/histogram", s.handleHistogram)
	api("POST /api/compile", s.handleCompile)
	api("GET /api/stats", s.handleStats)

	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return metrics.Middleware(s.requestID(mux))
}

// Start runs the HTTP server until Shutdown.
func (s *Server) Start(addr string) error {
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv != nil {
		return s.srv.Shutdown(ctx)
	}
	return nil
}

type ctxKey struct{}

func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, id)))
	})
}

func (s *Server) log(r *http.Request) *slog.Logger {
	if id, ok := r.Context().Value(ctxKey{}).(string); ok {
		return s.logger.With("request_id", id)
	}
	return s.logger
}

// AuthMiddleware checks for a valid token in the Authorization header or
// the token query parameter.
func (s *Server) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(s.hashes) == 0 {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		var token string
		if strings.HasPrefix(authHeader, "Bearer ") {
			token = strings.TrimPrefix(authHeader, "Bearer ")
		} else {
			token = r.URL.Query().Get("token")
		}

		if token == "" {
			w.Header().Set("WWW-Authenticate", `Bearer realm="nanofilter"`)
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "missing token", Code: "unauthorized"})
			return
		}
		if !s.validToken(token) {
			w.Header().Set("WWW-Authenticate", `Bearer realm="nanofilter"`)
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "invalid token", Code: "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) validToken(token string) bool {
	sum := sha256.Sum256([]byte(token))
	s.verifiedMu.RLock()
	_, ok := s.verified[sum]
	s.verifiedMu.RUnlock()
	if ok {
		return true
	}

	for _, h := range s.hashes {
		if bcrypt.CompareHashAndPassword(h, []byte(token)) == nil {
			s.verifiedMu.Lock()
			s.verified[sum] = struct{}{}
			s.verifiedMu.Unlock()
			return true
		}
	}
	return false
}

type errorBody struct {
	Error    string `json:"error"`
	Code     string `json:"code"`
	Path     string `json:"path,omitempty"`
	Operator string `json:"operator,omitempty"`
}

// queryRequest is the body of find, count and histogram requests.
type queryRequest struct {
	Filter   value.Value `json:"filter"`
	Q        string      `json:"q"`
	Limit    int         `json:"limit"`
	MinTime  int64       `json:"min_time"`
	MaxTime  int64       `json:"max_time"`
	Interval string      `json:"interval"`
}

func (qr queryRequest) query(collection string) engine.Query {
	return engine.Query{
		Collection: collection,
		Filter:     qr.Filter,
		Q:          qr.Q,
		Limit:      qr.Limit,
		MinTime:    qr.MinTime,
		MaxTime:    qr.MaxTime,
	}
}

type findResponse struct {
	Count int          `json:"count"`
	Rows  []engine.Row `json:"rows"`
}

func (s *Server) handleCollections(w http.ResponseWriter, r *http.Request) {
	names, err := s.engine.Collections()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"collections": names})
}

// handleIngest accepts a JSON object, a JSON array, JSON lines
// (application/x-ndjson) or MessagePack (application/msgpack).
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	body, err := s.readBody(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	docs, err := decodeDocuments(r.Header.Get("Content-Type"), body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error(), Code: "invalid_body"})
		return
	}

	rows, err := s.engine.Ingest(r.PathValue("name"), docs)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	// one WAL sync per request
	if err := s.engine.SyncWAL(); err != nil {
		s.log(r).Error("wal sync failed", "error", err)
	}

	ids := make([]string, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
	}
	writeJSON(w, http.StatusCreated, map[string]any{"inserted": len(ids), "ids": ids})
}

func (s *Server) handleFind(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeQuery(w, r)
	if !ok {
		return
	}
	rows, err := s.engine.Find(r.Context(), req.query(r.PathValue("name")))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if rows == nil {
		rows = []engine.Row{}
	}
	writeJSON(w, http.StatusOK, findResponse{Count: len(rows), Rows: rows})
}

// handleSearch is the query-string form of find:
// ?q=<nanoql>&filter=<json>&limit=&start=&end=
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	q := engine.Query{Collection: r.PathValue("name"), Q: params.Get("q")}

	if f := params.Get("filter"); f != "" {
		v, err := value.ParseJSON([]byte(f))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid filter JSON: " + err.Error(), Code: string(filter.CodeInvalidJSON)})
			return
		}
		q.Filter = v
	}

	for name, dst := range map[string]*int64{"start": &q.MinTime, "end": &q.MaxTime} {
		if raw := params.Get(name); raw != "" {
			n, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				writeJSON(w, http.StatusBadRequest, errorBody{Error: fmt.Sprintf("invalid %s: %v", name, err), Code: "invalid_request"})
				return
			}
			*dst = n
		}
	}
	if raw := params.Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			q.Limit = n
		}
	}

	rows, err := s.engine.Find(r.Context(), q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if rows == nil {
		rows = []engine.Row{}
	}
	writeJSON(w, http.StatusOK, findResponse{Count: len(rows), Rows: rows})
}

func (s *Server) handleCount(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeQuery(w, r)
	if !ok {
		return
	}
	n, err := s.engine.Count(r.Context(), req.query(r.PathValue("name")))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"count": n})
}

func (s *Server) handleHistogram(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeQuery(w, r)
	if !ok {
		return
	}
	interval := time.Minute
	if req.Interval != "" {
		d, err := time.ParseDuration(req.Interval)
		if err != nil || d <= 0 {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: fmt.Sprintf("invalid interval %q", req.Interval), Code: "invalid_request"})
			return
		}
		interval = d
	}

	points, err := s.engine.Histogram(r.Context(), req.query(r.PathValue("name")), interval)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"interval": interval.String(), "points": points})
}

// handleCompile validates a filter and returns its rendered predicate tree.
func (s *Server) handleCompile(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeQuery(w, r)
	if !ok {
		return
	}
	spec := req.Filter
	if req.Q != "" {
		translated, err := nanoql.Translate(req.Q)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if spec.IsNull() {
			spec = translated
		} else if !translated.IsNull() {
			spec = value.ObjectOf(value.F("$and", value.ArrayOf(spec, translated)))
		}
	}

	pred, err := s.engine.Compile(spec)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"filter": spec,
		"size":   pred.Size(),
		"tree":   pred.String(),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Stats())
}

func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBody))
}

func (s *Server) decodeQuery(w http.ResponseWriter, r *http.Request) (queryRequest, bool) {
	var req queryRequest
	body, err := s.readBody(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return req, false
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return req, true
	}
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request JSON: " + err.Error(), Code: string(filter.CodeInvalidJSON)})
		return req, false
	}
	return req, true
}

func decodeDocuments(contentType string, body []byte) ([]value.Value, error) {
	mediaType, _, _ := mime.ParseMediaType(contentType)
	switch mediaType {
	case "application/msgpack", "application/x-msgpack", "application/vnd.msgpack":
		docs, err := value.ParseMsgpackStream(bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		if len(docs) == 1 && docs[0].Kind() == value.KindArray {
			return docs[0].Array(), nil
		}
		return docs, nil
	case "application/x-ndjson", "application/jsonl", "application/json-seq":
		return value.ParseJSONLines(body)
	}

	v, err := value.ParseJSON(body)
	if err != nil {
		return nil, err
	}
	if v.Kind() == value.KindArray {
		return v.Array(), nil
	}
	return []value.Value{v}, nil
}

// writeError maps engine and compiler errors to status codes.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var cfgErr *filter.ConfigurationError
	var maxErr *http.MaxBytesError

	switch {
	case errors.As(err, &cfgErr):
		writeJSON(w, http.StatusBadRequest, errorBody{
			Error:    cfgErr.Error(),
			Code:     string(cfgErr.Code),
			Path:     cfgErr.Path,
			Operator: cfgErr.Operator,
		})
	case errors.Is(err, nanoql.ErrSyntax), errors.Is(err, nanoql.ErrUnsupported):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error(), Code: "invalid_query"})
	case errors.Is(err, engine.ErrInvalidCollection), errors.Is(err, engine.ErrInvalidDocument):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error(), Code: "invalid_request"})
	case errors.As(err, &maxErr):
		writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{Error: err.Error(), Code: "body_too_large"})
	case errors.Is(err, engine.ErrClosed):
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: err.Error(), Code: "unavailable"})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: err.Error(), Code: "canceled"})
	default:
		s.log(r).Error("request failed", "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error", Code: "internal"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
