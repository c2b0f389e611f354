package court

import (
	"fmt"
	"strings"
	"time"
)

const DateLayout = "2006-01-02"

// Duration is the length class of a bookable unit.
type Duration int

const (
	Solo   Duration = 1 // one hour
	Double Duration = 2 // two consecutive hours on the same field
)

func (d Duration) String() string {
	switch d {
	case Solo:
		return "1h"
	case Double:
		return "2h"
	default:
		return fmt.Sprintf("%dh?", int(d))
	}
}

// Cell is one open (field, hour) unit as the service reports it.
type Cell struct {
	FieldID   string
	FieldName string
	HourID    int
	Begin     string // HH:MM
	End       string // HH:MM
	DayType   string // morning, day, night; used for pricing
}

// Slot identifies one bookable unit. A Double slot starts at HourID and also covers HourID+1.
// Only Date, FieldID, HourID and Duration take part in identity.
type Slot struct {
	Date     string
	FieldID  string
	HourID   int
	Duration Duration

	Desc     string
	DayTypes []string
}

// Key is the identity used for in-flight and acquired bookkeeping.
func (s Slot) Key() string {
	return fmt.Sprintf("%s/%s/%d/%s", s.Date, s.FieldID, s.HourID, s.Duration)
}

// Hours lists the hour ids the slot occupies.
func (s Slot) Hours() []int {
	out := make([]int, 0, int(s.Duration))
	for i := 0; i < int(s.Duration); i++ {
		out = append(out, s.HourID+i)
	}
	return out
}

// Overlaps reports whether both slots hold the same court at some hour.
func (s Slot) Overlaps(o Slot) bool {
	if s.Date != o.Date || s.FieldID != o.FieldID {
		return false
	}
	sEnd := s.HourID + int(s.Duration)
	oEnd := o.HourID + int(o.Duration)
	return s.HourID < oEnd && o.HourID < sEnd
}

func (s Slot) String() string {
	if s.Desc != "" {
		return fmt.Sprintf("%s %s [%s]", s.Date, s.Desc, s.Duration)
	}
	return s.Key()
}

// Snapshot is one poll's view of a day. It is never merged with another poll.
type Snapshot struct {
	Date      string
	Offset    int
	Slots     []Slot
	FetchedAt time.Time
}

func (s Snapshot) Empty() bool { return len(s.Slots) == 0 }

// Outcome is the terminal state of one acquisition attempt.
type Outcome int

const (
	Success Outcome = iota
	Rejected
	TransientError
	ExhaustedRetries
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Rejected:
		return "rejected"
	case TransientError:
		return "transient"
	case ExhaustedRetries:
		return "exhausted"
	default:
		return "unknown"
	}
}

// Result is what a single submit returns.
type Result struct {
	Outcome Outcome
	Reason  string
	Receipt string // payment URL or order id
}

func Succeeded(receipt string) Result  { return Result{Outcome: Success, Receipt: receipt} }
func RejectedBy(reason string) Result { return Result{Outcome: Rejected, Reason: reason} }

// Attempt records one dispatch for a slot, across all of its retries.
type Attempt struct {
	ID       string
	Slot     Slot
	Rank     int
	Outcome  Outcome
	Reason   string
	Receipt  string
	Tries    int
	Started  time.Time
	Finished time.Time
	Err      error
}

// DescribeSlots renders up to max slots for log lines.
func DescribeSlots(slots []Slot, max int) string {
	parts := make([]string, 0, max)
	for i, s := range slots {
		if i == max {
			parts = append(parts, "...")
			break
		}
		parts = append(parts, s.String())
	}
	return strings.Join(parts, ", ")
}
