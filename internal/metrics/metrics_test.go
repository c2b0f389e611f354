package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uber-go/tally/v4"

	"github.com/example/court-scheduler/internal/court"
	"github.com/example/court-scheduler/internal/logging"
)

func counterValue(snap tally.Snapshot, name string, tags map[string]string) int64 {
	for _, c := range snap.Counters() {
		if c.Name() != name {
			continue
		}
		match := true
		for k, v := range tags {
			if c.Tags()[k] != v {
				match = false
			}
		}
		if match {
			return c.Value()
		}
	}
	return 0
}

func TestSchedulerCounters(t *testing.T) {
	scope := tally.NewTestScope("", nil)
	m := NewScheduler(scope)

	m.Polls.Inc(2)
	m.Acquired.Inc(1)
	m.Attempt(court.Success)
	m.Attempt(court.Rejected)
	m.Attempt(court.Rejected)

	snap := scope.Snapshot()
	assert.EqualValues(t, 2, counterValue(snap, "scheduler.polls", nil))
	assert.EqualValues(t, 1, counterValue(snap, "scheduler.acquired", nil))
	assert.EqualValues(t, 1, counterValue(snap, "scheduler.attempts", map[string]string{"outcome": "success"}))
	assert.EqualValues(t, 2, counterValue(snap, "scheduler.attempts", map[string]string{"outcome": "rejected"}))
}

func TestInitScopeHealth(t *testing.T) {
	scope, closer, mux := InitScope(false, time.Second, logging.Discard())
	require.NotNil(t, scope)
	defer closer.Close()

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
