package scheduler

import (
	"sync"
	"time"

	"github.com/example/court-scheduler/internal/court"
)

// Acquisition is a slot the run has secured.
type Acquisition struct {
	Key     string    `json:"key"`
	Slot    string    `json:"slot"`
	Receipt string    `json:"receipt"`
	At      time.Time `json:"at"`

	slot court.Slot
}

// tracker owns the in-flight and acquired sets. A slot key is in at most one of them.
type tracker struct {
	mu       sync.Mutex
	inFlight map[string]court.Slot
	acquired []Acquisition
}

func newTracker() *tracker {
	return &tracker{inFlight: make(map[string]court.Slot)}
}

// blockedLocked reports whether s is in flight, acquired, or overlaps an acquired slot.
func (t *tracker) blockedLocked(s court.Slot) bool {
	if _, ok := t.inFlight[s.Key()]; ok {
		return true
	}
	for _, a := range t.acquired {
		if a.slot.Overlaps(s) {
			return true
		}
	}
	return false
}

func (t *tracker) blocked(s court.Slot) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.blockedLocked(s)
}

// begin marks s in flight. It returns false if s may not be attempted now.
func (t *tracker) begin(s court.Slot) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.blockedLocked(s) {
		return false
	}
	t.inFlight[s.Key()] = s
	return true
}

// finish clears s from the in-flight set without acquiring it.
func (t *tracker) finish(s court.Slot) {
	t.mu.Lock()
	delete(t.inFlight, s.Key())
	t.mu.Unlock()
}

// acquire moves s from in flight to acquired and returns the new acquired count.
func (t *tracker) acquire(s court.Slot, receipt string, at time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.inFlight, s.Key())
	t.acquired = append(t.acquired, Acquisition{Key: s.Key(), Slot: s.String(), Receipt: receipt, At: at, slot: s})
	return len(t.acquired)
}

func (t *tracker) acquiredCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.acquired)
}

func (t *tracker) inFlightCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.inFlight)
}

func (t *tracker) acquisitions() []Acquisition {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Acquisition(nil), t.acquired...)
}
