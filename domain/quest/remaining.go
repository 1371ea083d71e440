package quest

import (
	"math/rand"
	"regexp"
	"strconv"
	"time"
)

// The in-app timer renders as "2h 5m", "3h" or "41m" in the English locale
// and with "ч"/"м" in the Russian one.
var (
	reHoursMinutes = regexp.MustCompile(`(?i)(\d+)\s*[hч]\s*(\d+)\s*[mм]`)
	reHoursOnly    = regexp.MustCompile(`(?i)(\d+)\s*[hч]`)
	reMinutesOnly  = regexp.MustCompile(`(?i)(\d+)\s*[mм]`)
)

// minutesZeroFloor is applied when the display shows "0m": the app rounds
// down near expiry, so the real remaining time is up to five minutes.
const minutesZeroFloor = 5 * time.Minute

// ParseRemainingTime scans the given text fragments for a remaining-time
// display and returns the parsed duration without jitter. The first fragment
// containing a recognizable format wins. Returns false when no fragment
// parses, which callers treat as "no estimate", not as an error.
func ParseRemainingTime(texts []string) (time.Duration, bool) {
	for _, text := range texts {
		if m := reHoursMinutes.FindStringSubmatch(text); m != nil {
			hours, _ := strconv.Atoi(m[1])
			minutes, _ := strconv.Atoi(m[2])
			return time.Duration(hours)*time.Hour + time.Duration(minutes)*time.Minute, true
		}
		if m := reHoursOnly.FindStringSubmatch(text); m != nil {
			hours, _ := strconv.Atoi(m[1])
			return time.Duration(hours) * time.Hour, true
		}
		if m := reMinutesOnly.FindStringSubmatch(text); m != nil {
			minutes, _ := strconv.Atoi(m[1])
			if minutes == 0 {
				return minutesZeroFloor, true
			}
			return time.Duration(minutes) * time.Minute, true
		}
	}
	return 0, false
}

// Jitter returns a random 5 to 10 minute pad. It is always added to a parsed
// remaining time before scheduling so accounts never reschedule in lockstep
// against the shared control API.
func Jitter(rng *rand.Rand) time.Duration {
	return time.Duration(5+rng.Intn(6)) * time.Minute
}
