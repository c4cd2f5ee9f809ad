package normalize

import (
	"strings"
	"time"
)

var zonedLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	time.RFC1123Z,
	time.RFC1123,
}

var localLayouts = []string{
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05.000",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02 15:04:05",
	"2006/01/02 15:04",
	"2006/01/02",
	"2006-01",
	"2006/01",
	"1/2/2006 15:04:05",
	"1/2/2006 15:04",
	"1/2/2006 3:04:05 PM",
	"1/2/2006 3:04 PM",
	"1/2/2006",
	"2 Jan 2006 15:04:05",
	"2 Jan 2006 15:04",
	"2 Jan 2006",
	"Jan 2, 2006 15:04:05",
	"Jan 2, 2006 15:04",
	"Jan 2, 2006",
	"January 2, 2006 15:04:05",
	"January 2, 2006",
	"Mon Jan 2 2006 15:04:05",
	"Mon Jan 02 2006",
}

// ParseTimestamp interprets the date formats the backend has been seen to
// emit. Values without a zone are read in loc. The zero time and false are
// returned when nothing matches.
func ParseTimestamp(value string, loc *time.Location) (time.Time, bool) {
	s := strings.TrimSpace(value)
	if s == "" {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.Local
	}
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// resolveTimestamp tries date+time, then date, then time.
func resolveTimestamp(date, clock string, loc *time.Location) *time.Time {
	date = strings.TrimSpace(date)
	clock = strings.TrimSpace(clock)
	if date == "" && clock == "" {
		return nil
	}
	var candidates []string
	if date != "" && clock != "" {
		candidates = append(candidates, date+" "+clock)
	}
	if date != "" {
		candidates = append(candidates, date)
	}
	if clock != "" {
		candidates = append(candidates, clock)
	}
	for _, c := range candidates {
		if t, ok := ParseTimestamp(c, loc); ok {
			return &t
		}
	}
	return nil
}

func sameLocalDate(a, b time.Time, loc *time.Location) bool {
	a = a.In(loc)
	b = b.In(loc)
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
