package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/wikiexport/internal/eventstore"
	"git.home.luguber.info/inful/wikiexport/internal/foundation/errors"
	"git.home.luguber.info/inful/wikiexport/internal/metrics"
	"git.home.luguber.info/inful/wikiexport/internal/server/responses"
)

type fakeDaemon struct {
	mu       sync.Mutex
	started  time.Time
	pending  bool
	triggers []bool
}

func (d *fakeDaemon) StartTime() time.Time    { return d.started }
func (d *fakeDaemon) State() string           { return "idle" }
func (d *fakeDaemon) Interval() time.Duration { return time.Hour }
func (d *fakeDaemon) Corpora() []string       { return []string{"CXF", "CAMEL"} }

func (d *fakeDaemon) Trigger(force bool) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pending {
		return false
	}
	d.pending = true
	d.triggers = append(d.triggers, force)
	return true
}

func newTestServer(t *testing.T, opts ...Option) (*Server, *fakeDaemon) {
	t.Helper()
	d := &fakeDaemon{started: time.Now().Add(-time.Minute)}
	return New(":0", d, opts...), d
}

func serve(s *Server, method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	rec := serve(s, http.MethodGet, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)

	var body responses.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, "idle", body.DaemonStatus)
	assert.GreaterOrEqual(t, body.Uptime, 60.0)
}

func TestStatusEndpointWithHistory(t *testing.T) {
	projection := eventstore.NewRunHistoryProjection(nil, 10)
	started, err := eventstore.NewRunStarted("run-1", []string{"CXF"}, false)
	require.NoError(t, err)
	completed, err := eventstore.NewRunCompleted("run-1", "success", time.Second, 4, 0)
	require.NoError(t, err)
	projection.Apply(started)
	projection.Apply(completed)

	s, _ := newTestServer(t, WithHistory(projection))
	rec := serve(s, http.MethodGet, "/status?pretty=1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "\n  \"status\"")

	var body responses.StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, []string{"CXF", "CAMEL"}, body.Corpora)
	assert.Equal(t, "1h0m0s", body.Interval)
	assert.Nil(t, body.Active)
	require.NotNil(t, body.Last)
	assert.Equal(t, "run-1", body.Last.RunID)
	assert.Equal(t, 4, body.Last.Rendered)
	require.Len(t, body.History, 1)

	rec = serve(s, http.MethodGet, "/status/runs/run-1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"run_id":"run-1"`)
}

func TestStatusWithoutHistory(t *testing.T) {
	s, _ := newTestServer(t)
	rec := serve(s, http.MethodGet, "/status")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"history":[]`)

	rec = serve(s, http.MethodGet, "/status/runs/missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	var body errors.HTTPErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "not_found", body.Code)
	assert.Equal(t, "missing", body.Details["run_id"])
}

func TestTriggerEndpoint(t *testing.T) {
	s, d := newTestServer(t)

	rec := serve(s, http.MethodPost, "/runs?force=true")
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), `"queued"`)

	rec = serve(s, http.MethodPost, "/runs")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = serve(s, http.MethodPost, "/runs?force=maybe")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Equal(t, []bool{true}, d.triggers)
}

func TestMetricsMountedWhenConfigured(t *testing.T) {
	s, _ := newTestServer(t)
	assert.Equal(t, http.StatusNotFound, serve(s, http.MethodGet, "/metrics").Code)

	reg := prom.NewRegistry()
	rec := metrics.NewPrometheusRecorder(reg)
	rec.IncRendered("CXF", "page", true)

	s, _ = newTestServer(t, WithMetrics(metrics.HTTPHandler(reg)))
	resp := serve(s, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.True(t, strings.Contains(resp.Body.String(), "wikiexport_"))
}

func TestMethodNotAllowed(t *testing.T) {
	s, _ := newTestServer(t)
	rec := serve(s, http.MethodDelete, "/healthz")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPanicIsRecovered(t *testing.T) {
	s, _ := newTestServer(t)
	s.router.Get("/boom", func(http.ResponseWriter, *http.Request) { panic("boom") })

	rec := serve(s, http.MethodGet, "/boom")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal server error")
}
