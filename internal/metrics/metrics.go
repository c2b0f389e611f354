package metrics

import (
	"fmt"
	"io"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/uber-go/tally/v4"
	tallyprom "github.com/uber-go/tally/v4/prometheus"

	"github.com/example/court-scheduler/internal/court"
)

const rootScope = "courtsched"

// InitScope initializes a root scope and its closer, with a http server mux. With prometheus
// enabled the mux serves /metrics; otherwise metrics go to a null reporter.
func InitScope(prometheus bool, flushInterval time.Duration, logger *log.Logger) (tally.Scope, io.Closer, *http.ServeMux) {
	mux := http.NewServeMux()
	opts := tally.ScopeOptions{
		Prefix:   rootScope,
		Tags:     map[string]string{},
		Reporter: tally.NullStatsReporter,
	}
	if prometheus {
		reporter := tallyprom.NewReporter(tallyprom.Options{})
		opts.Reporter = nil
		opts.CachedReporter = reporter
		opts.Separator = "_"
		logger.Info("Setting up prometheus metrics handler at /metrics")
		mux.Handle("/metrics", reporter.HTTPHandler())
	} else {
		logger.Debug("No metrics backend configured, using the null reporter")
	}
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	scope, closer := tally.NewRootScope(opts, flushInterval)
	return scope, closer, mux
}

// Scheduler holds the counters the acquisition loop reports.
type Scheduler struct {
	scope tally.Scope

	Polls      tally.Counter
	PollErrors tally.Counter
	Acquired   tally.Counter
	InFlight   tally.Gauge
	AttemptDur tally.Timer
}

func NewScheduler(scope tally.Scope) *Scheduler {
	s := scope.SubScope("scheduler")
	return &Scheduler{
		scope:      s,
		Polls:      s.Counter("polls"),
		PollErrors: s.Counter("poll_errors"),
		Acquired:   s.Counter("acquired"),
		InFlight:   s.Gauge("in_flight"),
		AttemptDur: s.Timer("attempt_duration"),
	}
}

// Attempt counts one settled attempt by outcome.
func (m *Scheduler) Attempt(o court.Outcome) {
	m.scope.Tagged(map[string]string{"outcome": o.String()}).Counter("attempts").Inc(1)
}
