package gym

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"

	"github.com/example/court-scheduler/internal/internaltypes"
)

// Field is one court.
type Field struct {
	ID   string
	Name string
}

// Hour is one bookable hour of the day. Ids are consecutive through the day.
type Hour struct {
	ID      int
	Begin   string
	End     string
	DayType string
	Created int64
}

type catalog struct {
	fields []Field
	hours  []Hour
	byHour map[int]Hour
}

func newCatalog(fields []Field, hours []Hour) *catalog {
	sort.Slice(fields, func(i, j int) bool { return idLess(fields[i].ID, fields[j].ID) })
	sort.Slice(hours, func(i, j int) bool { return hours[i].ID < hours[j].ID })
	byHour := make(map[int]Hour, len(hours))
	for _, h := range hours {
		byHour[h.ID] = h
	}
	return &catalog{fields: fields, hours: hours, byHour: byHour}
}

func idLess(a, b string) bool {
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	return a < b
}

// Tables the service published for sport 51. Used when it is too loaded to answer at peak.
var (
	fallbackFields = []Field{
		{"220", "主馆1"}, {"221", "主馆2"}, {"222", "主馆3"}, {"223", "主馆4"},
		{"224", "主馆5"}, {"225", "主馆6"}, {"226", "主馆7"}, {"227", "主馆8"},
		{"228", "副馆9"}, {"229", "副馆10"}, {"230", "副馆11"}, {"231", "副馆12"},
	}
	fallbackHours = []Hour{
		{328228, "08:00", "09:00", "morning", 1705719518},
		{328229, "09:00", "10:00", "morning", 1705719519},
		{328230, "10:00", "11:00", "morning", 1705719519},
		{328231, "11:00", "12:00", "morning", 1705719519},
		{328232, "12:00", "13:00", "morning", 1705719519},
		{328233, "13:00", "14:00", "morning", 1705719519},
		{328234, "14:00", "15:00", "day", 1705719519},
		{328235, "15:00", "16:00", "day", 1705719519},
		{328236, "16:00", "17:00", "day", 1705719519},
		{328237, "17:00", "18:00", "day", 1705719519},
		{328238, "18:00", "19:00", "night", 1705719519},
		{328239, "19:00", "20:00", "night", 1705719519},
		{328240, "20:00", "21:00", "night", 1705719519},
		{328241, "21:00", "22:00", "night", 1705719519},
	}
	fallbackPrices = map[bool]map[string]int{
		false: {"morning": 10, "day": 20, "night": 50},
		true:  {"morning": 20, "day": 50, "night": 50},
	}
)

// Setup loads field names and the hour table. When the service cannot answer, the
// built-in tables are used instead; only an auth failure is returned.
func (c *Client) Setup(ctx context.Context) error {
	fields, err := c.fetchFields(ctx)
	if err == nil {
		var hours []Hour
		hours, err = c.fetchHours(ctx)
		if err == nil {
			c.setCatalog(newCatalog(fields, hours))
			c.log.WithField("fields", len(fields)).WithField("hours", len(hours)).Debug("loaded court tables")
			return nil
		}
	}
	if internaltypes.IsAuth(err) {
		return err
	}
	c.log.WithError(err).Warn("setup failed, service overloaded; falling back to built-in tables")
	c.setCatalog(newCatalog(append([]Field(nil), fallbackFields...), append([]Hour(nil), fallbackHours...)))
	return nil
}

func (c *Client) setCatalog(cat *catalog) {
	c.mu.Lock()
	c.catalog = cat
	c.mu.Unlock()
}

func (c *Client) tables(ctx context.Context) (*catalog, error) {
	c.mu.RLock()
	cat := c.catalog
	c.mu.RUnlock()
	if cat != nil {
		return cat, nil
	}
	if err := c.Setup(ctx); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.catalog, nil
}

func (c *Client) fetchFields(ctx context.Context) ([]Field, error) {
	env, err := c.do(ctx, http.MethodGet, c.sportPath("/api/sport_events/field/id/%d"), nil, nil)
	if err != nil {
		return nil, err
	}
	var data map[string]struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, fmt.Errorf("decode fields: %w", err)
	}
	out := make([]Field, 0, len(data))
	for id, f := range data {
		out = append(out, Field{ID: id, Name: f.Name})
	}
	return out, nil
}

func (c *Client) fetchHours(ctx context.Context) ([]Hour, error) {
	env, err := c.do(ctx, http.MethodGet, c.sportPath("/api/sport_events/hour/id/%d"), nil, nil)
	if err != nil {
		return nil, err
	}
	var data []struct {
		ID        flexInt `json:"id"`
		Begin     string  `json:"begintime_text"`
		End       string  `json:"endtime_text"`
		CreatedAt flexInt `json:"createtime"`
		DayType   string  `json:"daytype"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, fmt.Errorf("decode hours: %w", err)
	}
	out := make([]Hour, 0, len(data))
	for _, h := range data {
		out = append(out, Hour{ID: int(h.ID), Begin: h.Begin, End: h.End, DayType: h.DayType, Created: int64(h.CreatedAt)})
	}
	return out, nil
}

// flexInt accepts 10, 10.0 and "10".
type flexInt int

func (n *flexInt) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		b = []byte(s)
	}
	f, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return fmt.Errorf("not a number: %s", b)
	}
	*n = flexInt(f)
	return nil
}
