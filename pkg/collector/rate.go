package collector

import "time"

type reading struct {
	value float64
	at    time.Time
}

// rates turns successive readings of cumulative counters into per-second
// rates over the wall time actually elapsed between them.
type rates[K comparable] struct {
	last map[K]reading
}

func newRates[K comparable]() *rates[K] {
	return &rates[K]{last: make(map[K]reading)}
}

// Observe stores value as the baseline for key and returns the rate since the
// previous baseline. There is no rate on the first reading, when no time has
// elapsed, or when the counter went backwards; the latter resets the baseline.
func (r *rates[K]) Observe(key K, value float64, at time.Time) (float64, bool) {
	prev, ok := r.last[key]
	r.last[key] = reading{value: value, at: at}
	if !ok {
		return 0, false
	}

	elapsed := at.Sub(prev.at).Seconds()
	if elapsed <= 0 || value < prev.value {
		return 0, false
	}
	return (value - prev.value) / elapsed, true
}

// Retain drops every baseline whose key is rejected by keep.
func (r *rates[K]) Retain(keep func(K) bool) {
	for k := range r.last {
		if !keep(k) {
			delete(r.last, k)
		}
	}
}

func (r *rates[K]) Len() int {
	return len(r.last)
}
