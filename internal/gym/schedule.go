package gym

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/example/court-scheduler/internal/court"
)

// Grid is the open/booked state of every court for one day.
type Grid struct {
	Date   string
	Fields []Field
	Hours  []Hour
	status map[string]int
}

// Open reports whether the service lists (field, hour) as free. Missing entries are not open.
func (g Grid) Open(fieldID string, hourID int) bool {
	st, ok := g.status[cellKey(fieldID, hourID)]
	return ok && st == 0
}

// Cells lists the open units in field, hour order.
func (g Grid) Cells() []court.Cell {
	var out []court.Cell
	for _, f := range g.Fields {
		for _, h := range g.Hours {
			if !g.Open(f.ID, h.ID) {
				continue
			}
			out = append(out, court.Cell{
				FieldID:   f.ID,
				FieldName: f.Name,
				HourID:    h.ID,
				Begin:     h.Begin,
				End:       h.End,
				DayType:   h.DayType,
			})
		}
	}
	return out
}

func cellKey(fieldID string, hourID int) string { return fmt.Sprintf("%s-%d", fieldID, hourID) }

// Schedule fetches the booking grid for a date.
func (c *Client) Schedule(ctx context.Context, date time.Time) (Grid, error) {
	cat, err := c.tables(ctx)
	if err != nil {
		return Grid{}, err
	}
	day := date.Format(court.DateLayout)
	env, err := c.do(ctx, http.MethodGet, c.sportPath("/api/sport_schedule/booked/id/%d"), url.Values{"day": {day}}, nil)
	if err != nil {
		return Grid{}, err
	}
	status := map[string]int{}
	// an empty schedule comes back as a json array
	if data := bytes.TrimSpace(env.Data); len(data) > 0 && data[0] == '{' {
		var raw map[string]flexInt
		if err := json.Unmarshal(data, &raw); err != nil {
			return Grid{}, fmt.Errorf("decode schedule for %s: %w", day, err)
		}
		for k, v := range raw {
			status[k] = int(v)
		}
	}
	return Grid{Date: day, Fields: cat.fields, Hours: cat.hours, status: status}, nil
}

// Fetch returns the bookable slots for the date polled at offset.
func (c *Client) Fetch(ctx context.Context, date time.Time, offset int) (court.Snapshot, error) {
	g, err := c.Schedule(ctx, date)
	if err != nil {
		return court.Snapshot{}, err
	}
	return court.Snapshot{
		Date:      g.Date,
		Offset:    offset,
		Slots:     court.Expand(g.Date, g.Cells()),
		FetchedAt: c.now(),
	}, nil
}
