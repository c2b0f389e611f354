package court

import (
	"fmt"
	"sort"
)

// Expand turns the open cells of one date into slots: a Solo slot per cell and a Double
// slot for each pair of open consecutive hours on the same field.
// Output is ordered by field, hour, then duration, whatever order the cells came in.
func Expand(date string, cells []Cell) []Slot {
	if len(cells) == 0 {
		return nil
	}
	sorted := make([]Cell, len(cells))
	copy(sorted, cells)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].FieldID != sorted[j].FieldID {
			return sorted[i].FieldID < sorted[j].FieldID
		}
		return sorted[i].HourID < sorted[j].HourID
	})

	open := make(map[string]Cell, len(sorted))
	for _, c := range sorted {
		open[cellKey(c.FieldID, c.HourID)] = c
	}

	out := make([]Slot, 0, len(sorted)*2)
	for _, c := range sorted {
		out = append(out, Slot{
			Date:     date,
			FieldID:  c.FieldID,
			HourID:   c.HourID,
			Duration: Solo,
			Desc:     describe(c, c),
			DayTypes: []string{c.DayType},
		})
		next, ok := open[cellKey(c.FieldID, c.HourID+1)]
		if !ok {
			continue
		}
		out = append(out, Slot{
			Date:     date,
			FieldID:  c.FieldID,
			HourID:   c.HourID,
			Duration: Double,
			Desc:     describe(c, next),
			DayTypes: []string{c.DayType, next.DayType},
		})
	}
	return out
}

func cellKey(field string, hour int) string { return fmt.Sprintf("%s-%d", field, hour) }

func describe(first, last Cell) string {
	name := first.FieldName
	if name == "" {
		name = first.FieldID
	}
	if first.Begin == "" || last.End == "" {
		if first.HourID == last.HourID {
			return fmt.Sprintf("%s (#%d)", name, first.HourID)
		}
		return fmt.Sprintf("%s (#%d-#%d)", name, first.HourID, last.HourID)
	}
	return fmt.Sprintf("%s (%s-%s)", name, first.Begin, last.End)
}
