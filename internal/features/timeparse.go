package features

import (
	"strconv"
	"strings"
	"time"
)

// gateInLayouts are tried in order. Layouts without a zone keep the wall
// clock of the input, so hour features match what the gate system reported.
var gateInLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006/01/02 15:04:05",
	"2006/01/02 15:04",
	"2006-01-02",
	"2006/01/02",
}

// ParseGateIn parses a gate-in timestamp. When raw is empty or matches no
// known layout it returns now and ok=false.
func ParseGateIn(raw string, now time.Time) (t time.Time, ok bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return now, false
	}
	for _, layout := range gateInLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			return parsed, true
		}
	}
	return now, false
}

// Shift maps an hour (0-23) to one of eight 3-hour shifts, shift_1..shift_8.
func Shift(hour int) string {
	return "shift_" + strconv.Itoa(hour/3+1)
}
