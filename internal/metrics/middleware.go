package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Middleware records request count and duration for the given handler.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := pathLabel(r.URL.Path)
		rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		status := strconv.Itoa(rec.status)
		RequestTotal.WithLabelValues(r.Method, path, status).Inc()
		RequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// pathLabel collapses collection names so label cardinality stays bounded:
// /api/collections/orders/find becomes api_collections_find.
func pathLabel(p string) string {
	parts := strings.Split(strings.Trim(p, "/"), "/")
	switch {
	case len(parts) >= 4 && parts[0] == "api" && parts[1] == "collections":
		return "api_collections_" + parts[3]
	case len(parts) >= 2:
		return parts[0] + "_" + parts[1]
	case len(parts) == 1 && parts[0] != "":
		return parts[0]
	}
	return "root"
}

type responseRecorder struct {
	http.ResponseWriter
	status int
}

func (r *responseRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
