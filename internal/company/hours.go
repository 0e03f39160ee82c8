package company

import (
	"strings"
	"time"
)

// BusinessHours maps lowercase weekday names (monday..sunday) to opening hours.
// An empty map means always open.
type BusinessHours struct {
	Timezone string              `json:"timezone,omitempty"`
	Days     map[string]DayHours `json:"days,omitempty"`
}

// DayHours uses "HH:MM" strings; Close is inclusive.
type DayHours struct {
	Open   string `json:"open"`
	Close  string `json:"close"`
	Closed bool   `json:"closed,omitempty"`
}

// IsOpenAt reports whether the company accepts calls at t.
// A weekday missing from a non-empty schedule counts as closed.
func IsOpenAt(p Profile, t time.Time) bool {
	if len(p.Hours.Days) == 0 {
		return true
	}
	if p.Hours.Timezone != "" {
		if loc, err := time.LoadLocation(p.Hours.Timezone); err == nil {
			t = t.In(loc)
		}
	}
	day, ok := p.Hours.Days[strings.ToLower(t.Weekday().String())]
	if !ok || day.Closed || day.Open == "" || day.Close == "" {
		return false
	}
	now := t.Format("15:04")
	return now >= day.Open && now <= day.Close
}
