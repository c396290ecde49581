package middleware

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/warbler/internal/metrics"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

type countingRecorder struct{ events []string }

func (c *countingRecorder) Record(event string) { c.events = append(c.events, event) }

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	log := logrus.New()
	log.SetOutput(&buf)
	log.SetFormatter(&logrus.JSONFormatter{})

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(Logger(log))
	r.Get("/missing", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/missing", nil))

	line := buf.String()
	assert.Contains(t, line, `"status":404`)
	assert.Contains(t, line, `"path":"/missing"`)
	assert.Contains(t, line, `"level":"warning"`)
	assert.Contains(t, line, `"request_id":"`)
}

func TestResponseWriter_FirstStatusWins(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := wrap(rec)
	rw.WriteHeader(http.StatusFound)
	rw.WriteHeader(http.StatusInternalServerError) // superfluous, ignored by net/http too
	_, _ = rw.Write([]byte("hello"))

	assert.Equal(t, http.StatusFound, rw.statusCode)
	assert.EqualValues(t, 5, rw.written)
	assert.Same(t, rw, wrap(rw), "wrapping twice must reuse the writer")
}

func TestMetrics_UsesRoutePattern(t *testing.T) {
	m := metrics.New()
	r := chi.NewRouter()
	r.Use(Metrics(m))
	r.Get("/users/{id}", func(w http.ResponseWriter, r *http.Request) {})
	r.Handle("/metrics", m.Handler())

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/users/1", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/users/2", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()

	assert.Contains(t, body, `warbler_http_requests_total{method="GET",path="/users/{id}",status="200"} 2`)
	assert.Contains(t, body, `path="unmatched",status="404"`)
	assert.NotContains(t, body, `path="/users/1"`)
	assert.NotContains(t, body, `path="/metrics"`)
}

func TestNoCache(t *testing.T) {
	h := NoCache(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.True(t, strings.HasPrefix(rec.Header().Get("Cache-Control"), "no-store"))
	assert.Equal(t, "no-cache", rec.Header().Get("Pragma"))
}

func TestRateLimiter(t *testing.T) {
	events := &countingRecorder{}
	rl := NewRateLimiter(60, 2, events, quietLogger())
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	h := rl.Limit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	post := func(remote string) int {
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusNoContent, post("10.0.0.1:1111"))
	assert.Equal(t, http.StatusNoContent, post("10.0.0.1:2222"), "port must not split the bucket")
	assert.Equal(t, http.StatusTooManyRequests, post("10.0.0.1:3333"))
	assert.Equal(t, http.StatusNoContent, post("10.0.0.2:1111"), "other clients have their own bucket")
	require.Equal(t, []string{metrics.EventRateLimited}, events.events)

	// One token per second refills.
	now = now.Add(time.Second)
	assert.Equal(t, http.StatusNoContent, post("10.0.0.1:1111"))
}

func TestRateLimiter_PrunesIdleClients(t *testing.T) {
	rl := NewRateLimiter(60, 1, metrics.Discard, quietLogger())
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	rl.allow("a")
	rl.allow("b")
	require.Len(t, rl.clients, 2)

	now = now.Add(limiterIdle + time.Minute)
	rl.allow("c")

	assert.Len(t, rl.clients, 1)
	assert.Contains(t, rl.clients, "c")
}
