package quest

import (
	"math/rand"
	"testing"
	"time"
)

func TestParseRemainingTime(t *testing.T) {
	tests := []struct {
		name  string
		texts []string
		want  time.Duration
		ok    bool
	}{
		{"hours and minutes", []string{"2h 5m"}, 2*time.Hour + 5*time.Minute, true},
		{"hours only", []string{"3h"}, 3 * time.Hour, true},
		{"minutes only", []string{"41m"}, 41 * time.Minute, true},
		{"zero minutes floored", []string{"0m"}, 5 * time.Minute, true},
		{"russian hours and minutes", []string{"2ч 5м"}, 2*time.Hour + 5*time.Minute, true},
		{"russian minutes only", []string{"7м"}, 7 * time.Minute, true},
		{"embedded in label", []string{"Farming ends in 1h 30m"}, 90 * time.Minute, true},
		{"first matching fragment wins", []string{"no timer here", "4h 10m", "1m"}, 4*time.Hour + 10*time.Minute, true},
		{"no match", []string{"claim now", "100%"}, 0, false},
		{"empty input", nil, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseRemainingTime(tt.texts)
			if ok != tt.ok {
				t.Fatalf("ParseRemainingTime(%v) ok = %v, want %v", tt.texts, ok, tt.ok)
			}
			if got != tt.want {
				t.Errorf("ParseRemainingTime(%v) = %v, want %v", tt.texts, got, tt.want)
			}
		})
	}
}

func TestJitterBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 100; i++ {
		j := Jitter(rng)
		if j < 5*time.Minute || j > 10*time.Minute {
			t.Fatalf("Jitter() = %v, want within [5m, 10m]", j)
		}
	}
}
