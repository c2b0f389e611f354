package scheduler

import (
	"sync"
	"time"

	"github.com/example/court-scheduler/internal/court"
	"github.com/example/court-scheduler/internal/modeclock"
)

const recentAttempts = 20

// Status is what /status reports.
type Status struct {
	Regime     string           `json:"regime"`
	InFlight   int              `json:"in_flight"`
	Acquired   []Acquisition    `json:"acquired"`
	Polls      int64            `json:"polls"`
	PollErrors int64            `json:"poll_errors"`
	LastPoll   time.Time        `json:"last_poll"`
	Attempts   map[string]int64 `json:"attempts"`
	Recent     []AttemptSummary `json:"recent"`
}

type AttemptSummary struct {
	ID       string    `json:"id"`
	Slot     string    `json:"slot"`
	Rank     int       `json:"rank"`
	Outcome  string    `json:"outcome"`
	Reason   string    `json:"reason,omitempty"`
	Tries    int       `json:"tries"`
	Finished time.Time `json:"finished"`
}

type statusBoard struct {
	mu         sync.Mutex
	regime     modeclock.Regime
	polls      int64
	pollErrors int64
	lastPoll   time.Time
	attempts   map[string]int64
	recent     []AttemptSummary
}

func newStatusBoard() *statusBoard {
	return &statusBoard{attempts: make(map[string]int64)}
}

func (b *statusBoard) setRegime(r modeclock.Regime) {
	b.mu.Lock()
	b.regime = r
	b.mu.Unlock()
}

func (b *statusBoard) polled(at time.Time) {
	b.mu.Lock()
	b.polls++
	b.lastPoll = at
	b.mu.Unlock()
}

func (b *statusBoard) pollFailed() {
	b.mu.Lock()
	b.pollErrors++
	b.mu.Unlock()
}

func (b *statusBoard) attempted(a court.Attempt) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.attempts[a.Outcome.String()]++
	b.recent = append(b.recent, AttemptSummary{
		ID:       a.ID,
		Slot:     a.Slot.String(),
		Rank:     a.Rank,
		Outcome:  a.Outcome.String(),
		Reason:   a.Reason,
		Tries:    a.Tries,
		Finished: a.Finished,
	})
	if len(b.recent) > recentAttempts {
		b.recent = b.recent[len(b.recent)-recentAttempts:]
	}
}

func (b *statusBoard) snapshot() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	attempts := make(map[string]int64, len(b.attempts))
	for k, v := range b.attempts {
		attempts[k] = v
	}
	return Status{
		Regime:     b.regime.String(),
		Polls:      b.polls,
		PollErrors: b.pollErrors,
		LastPoll:   b.lastPoll,
		Attempts:   attempts,
		Recent:     append([]AttemptSummary(nil), b.recent...),
	}
}
