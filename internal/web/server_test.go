package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/court-scheduler/internal/logging"
	"github.com/example/court-scheduler/internal/metrics"
	"github.com/example/court-scheduler/internal/scheduler"
)

type staticStatus scheduler.Status

func (s staticStatus) Status() scheduler.Status { return scheduler.Status(s) }

func TestStatusEndpoint(t *testing.T) {
	_, closer, mux := metrics.InitScope(false, time.Second, logging.Discard())
	defer closer.Close()

	srv := &Server{
		Status: staticStatus{
			Regime:   "eager",
			InFlight: 2,
			Polls:    7,
			Attempts: map[string]int64{"rejected": 3},
		},
		Metrics: mux,
		Log:     logging.Discard(),
	}
	h := srv.Routes()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got scheduler.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "eager", got.Regime)
	assert.Equal(t, 2, got.InFlight)
	assert.EqualValues(t, 7, got.Polls)
	assert.EqualValues(t, 3, got.Attempts["rejected"])

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/status", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
