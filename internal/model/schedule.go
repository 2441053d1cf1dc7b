package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TimeOfDay is a wall-clock time without a date.
type TimeOfDay struct {
	Hour   int
	Minute int
	Second int
}

// ParseTimeOfDay accepts "HH:MM:SS" or "HH:MM".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q: expected HH:MM[:SS]", s)
	}

	var vals [3]int
	limits := [3]int{23, 59, 59}
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil || v < 0 || v > limits[i] {
			return TimeOfDay{}, fmt.Errorf("invalid time of day %q", s)
		}
		vals[i] = v
	}

	return TimeOfDay{Hour: vals[0], Minute: vals[1], Second: vals[2]}, nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
}

// Schedule fires at one time of day on a set of weekdays.
// The zero value never fires.
type Schedule struct {
	at   TimeOfDay
	days [7]bool
}

// NewSchedule builds a schedule firing at `at` on each of the given weekdays.
func NewSchedule(at TimeOfDay, days ...time.Weekday) Schedule {
	s := Schedule{at: at}
	for _, d := range days {
		if d >= time.Sunday && d <= time.Saturday {
			s.days[d] = true
		}
	}
	return s
}

// ScheduleFromFlags builds a schedule from the sun..sat flag columns used by the stores.
func ScheduleFromFlags(at TimeOfDay, sun, mon, tue, wed, thu, fri, sat bool) Schedule {
	return Schedule{at: at, days: [7]bool{sun, mon, tue, wed, thu, fri, sat}}
}

func (s Schedule) At() TimeOfDay { return s.at }

// On reports whether the schedule fires on the given weekday.
func (s Schedule) On(d time.Weekday) bool {
	if d < time.Sunday || d > time.Saturday {
		return false
	}
	return s.days[d]
}

// Weekdays lists enabled weekdays, Sunday first.
func (s Schedule) Weekdays() []time.Weekday {
	var out []time.Weekday
	for d := time.Sunday; d <= time.Saturday; d++ {
		if s.days[d] {
			out = append(out, d)
		}
	}
	return out
}

// Paused reports whether no weekday is enabled.
func (s Schedule) Paused() bool {
	return len(s.Weekdays()) == 0
}

func (s Schedule) String() string {
	names := make([]string, 0, 7)
	for _, d := range s.Weekdays() {
		names = append(names, d.String()[:3])
	}
	if len(names) == 0 {
		return s.at.String() + " (paused)"
	}
	return s.at.String() + " " + strings.Join(names, ",")
}
