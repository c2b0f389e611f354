// Package preference ranks candidate slots against the operator's field and hour scores.
//
// Scores are integers in [0,10]; 0 means "never book". A slot's rank is the sum, over the
// hours it covers, of Combiner(fieldScore, hourScore). The model is read-only after New.
package preference

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/example/court-scheduler/internal/court"
	"github.com/example/court-scheduler/internal/internaltypes"
)

const (
	MinScore = 0
	MaxScore = 10
)

// Combiner folds a field score and an hour score into one number.
type Combiner func(field, hour int) int

// Sum is the default combiner.
func Sum(field, hour int) int { return field + hour }

// Product weights strong preferences on both axes more heavily.
func Product(field, hour int) int { return field * hour }

// CombinerByName resolves the config value of "combine".
func CombinerByName(name string) (Combiner, error) {
	switch name {
	case "", "sum":
		return Sum, nil
	case "product":
		return Product, nil
	default:
		return nil, internaltypes.NewConfigError("combine", "unknown combiner %q (want sum or product)", name)
	}
}

type Option func(*Model)

// WithCombiner replaces the default Sum combiner.
func WithCombiner(c Combiner) Option {
	return func(m *Model) { m.combine = c }
}

// WithSolo allows 1-hour slots to be ranked.
func WithSolo(allow bool) Option {
	return func(m *Model) { m.allowSolo = allow }
}

type Model struct {
	fields    map[string]int
	hours     map[int]int
	combine   Combiner
	allowSolo bool
}

// New validates both tables and builds a Model. Hour ids must be integers.
func New(fieldScores, hourScores map[string]int, opts ...Option) (*Model, error) {
	m := &Model{
		fields:  make(map[string]int, len(fieldScores)),
		hours:   make(map[int]int, len(hourScores)),
		combine: Sum,
	}
	for id, score := range fieldScores {
		if err := checkScore("fields."+id, score); err != nil {
			return nil, err
		}
		m.fields[id] = score
	}
	for id, score := range hourScores {
		if err := checkScore("hours."+id, score); err != nil {
			return nil, err
		}
		hid, err := strconv.Atoi(id)
		if err != nil {
			return nil, internaltypes.NewConfigError("hours."+id, "hour id must be an integer")
		}
		m.hours[hid] = score
	}
	for _, o := range opts {
		o(m)
	}
	return m, nil
}

func checkScore(field string, score int) error {
	if score < MinScore || score > MaxScore {
		return internaltypes.NewConfigError(field, "score %d out of range [%d,%d]", score, MinScore, MaxScore)
	}
	return nil
}

// Rank returns the composite score of a slot, or false when the slot must not be attempted.
func (m *Model) Rank(s court.Slot) (int, bool) {
	switch s.Duration {
	case court.Double:
	case court.Solo:
		if !m.allowSolo {
			return 0, false
		}
	default:
		return 0, false
	}
	fs := m.fields[s.FieldID]
	if fs == 0 {
		return 0, false
	}
	total := 0
	for _, h := range s.Hours() {
		hs := m.hours[h]
		if hs == 0 {
			return 0, false
		}
		total += m.combine(fs, hs)
	}
	return total, true
}

// Candidate is a slot that survived filtering, with its rank.
type Candidate struct {
	Slot court.Slot
	Rank int
}

func (c Candidate) String() string { return fmt.Sprintf("%s rank=%d", c.Slot, c.Rank) }

// Candidates filters and orders slots for attempting: highest rank first; ties go to the
// earlier date, then the earlier hour, then the lower field id, then the longer slot.
func (m *Model) Candidates(slots []court.Slot) []Candidate {
	out := make([]Candidate, 0, len(slots))
	for _, s := range slots {
		if r, ok := m.Rank(s); ok {
			out = append(out, Candidate{Slot: s, Rank: r})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

func less(a, b Candidate) bool {
	if a.Rank != b.Rank {
		return a.Rank > b.Rank
	}
	if a.Slot.Date != b.Slot.Date {
		return a.Slot.Date < b.Slot.Date
	}
	if a.Slot.HourID != b.Slot.HourID {
		return a.Slot.HourID < b.Slot.HourID
	}
	if a.Slot.FieldID != b.Slot.FieldID {
		return a.Slot.FieldID < b.Slot.FieldID
	}
	return a.Slot.Duration > b.Slot.Duration
}
