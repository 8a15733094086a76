package throttle

import (
	"sort"
	"time"
)

// parseRates validates a window configuration and returns the longest
// window (the retention horizon: entries older than this can never affect
// any rate and are safe to discard). Windows must be both duration- and
// rate-monotonic: a shorter window must never allow more events than a
// longer one, or it could never bind.
func parseRates(rates map[time.Duration]int) (retention time.Duration, ok bool) {
	if len(rates) == 0 {
		return 0, false
	}

	durations := make([]time.Duration, 0, len(rates))
	for d := range rates {
		durations = append(durations, d)
	}
	sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })

	var prevDur time.Duration
	var prevN int
	for i, d := range durations {
		n := rates[d]
		if n <= 0 || d <= 0 {
			return 0, false
		}
		if i > 0 {
			if n <= prevN {
				// a longer window must admit strictly more events than every
				// shorter one, or it could never be the binding constraint.
				return 0, false
			}
			if float64(n)/float64(d) >= float64(prevN)/float64(prevDur) {
				// ...but at a strictly lower rate per unit time.
				return 0, false
			}
		}
		prevDur, prevN = d, n
	}

	return durations[len(durations)-1], true
}

// filterEvents drops every timestamp in window that has aged out of every
// configured rate, and returns how long until the next event would be
// admitted if the caller tried right now and every window were currently
// saturated.
func filterEvents(now time.Time, rates map[time.Duration]int, window *events) (remaining time.Duration) {
	firstRelevant := window.Len()

	for dur, limit := range rates {
		boundary := now.Add(-dur)
		idx := window.Search(boundary.UnixNano() + 1)
		if idx < firstRelevant {
			firstRelevant = idx
		}
		if count := window.Len() - idx; count > limit {
			offset := time.Unix(0, window.Get(window.Len()-limit-1)).Sub(boundary)
			if offset > remaining {
				remaining = offset
			}
		}
	}

	window.RemoveBefore(firstRelevant)
	return remaining
}
