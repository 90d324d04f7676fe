package countdown

import (
	"math"
	"strconv"
	"strings"
	"time"
)

const hintMarker = "retry in "

// ParseRetryHint finds a "retry in N<unit>" hint in a provider message.
// Units: ms, s, m, h; a bare number is seconds. Best effort: anything
// unexpected yields false.
func ParseRetryHint(message string) (time.Duration, bool) {
	lower := strings.ToLower(message)
	i := strings.Index(lower, hintMarker)
	if i < 0 {
		return 0, false
	}
	rest := strings.TrimLeft(lower[i+len(hintMarker):], " ")

	n := 0
	for n < len(rest) && isDigit(rest[n]) {
		n++
	}
	if n < len(rest)-1 && rest[n] == '.' && isDigit(rest[n+1]) {
		n++
		for n < len(rest) && isDigit(rest[n]) {
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	value, err := strconv.ParseFloat(rest[:n], 64)
	if err != nil || math.IsInf(value, 0) {
		return 0, false
	}

	unit := strings.TrimLeft(rest[n:], " ")
	u := 0
	for u < len(unit) && unit[u] >= 'a' && unit[u] <= 'z' {
		u++
	}
	scale := time.Second
	switch unit[:u] {
	case "ms", "msec", "millisecond", "milliseconds":
		scale = time.Millisecond
	case "m", "min", "mins", "minute", "minutes":
		scale = time.Minute
	case "h", "hr", "hour", "hours":
		scale = time.Hour
	}
	return time.Duration(value * float64(scale)), true
}

// Seconds converts a hint to whole seconds: nearest second, at least one
// for any positive wait.
func Seconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	s := int(math.Round(d.Seconds()))
	if s < 1 {
		s = 1
	}
	return s
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }
