package kiosk

import "fmt"

// SlotMinutes is the granularity of the time grid.
const SlotMinutes = 30

// timeOptions holds the 48 zero-padded labels 00:00 .. 23:30.
var timeOptions = buildTimeOptions()

func buildTimeOptions() []string {
	opts := make([]string, 0, 24*60/SlotMinutes)
	for m := 0; m < 24*60; m += SlotMinutes {
		opts = append(opts, fmt.Sprintf("%02d:%02d", m/60, m%60))
	}
	return opts
}

// TimeOptions returns a copy of the half-hour grid in ascending order.
func TimeOptions() []string {
	out := make([]string, len(timeOptions))
	copy(out, timeOptions)
	return out
}

// IsGridTime reports whether t is a label on the half-hour grid.
func IsGridTime(t string) bool {
	return gridIndex(t) >= 0
}

// EndOptions returns the grid entries strictly after start, preserving grid order.
// PRE: none
// POST: an unknown start yields the full grid
func EndOptions(start string) []string {
	idx := gridIndex(start)
	if idx < 0 {
		return TimeOptions()
	}
	out := make([]string, len(timeOptions)-idx-1)
	copy(out, timeOptions[idx+1:])
	return out
}

// NextAfter returns the first grid entry after t, or "" when none exists.
func NextAfter(t string) string {
	opts := EndOptions(t)
	if len(opts) == 0 || !IsGridTime(t) {
		return ""
	}
	return opts[0]
}

func gridIndex(t string) int {
	for i, o := range timeOptions {
		if o == t {
			return i
		}
	}
	return -1
}
