package analytics

import (
	"math"

	"github.com/shopspring/decimal"
)

// RollingStats maintains summary statistics over the most recent N
// observations. Values are kept as decimals so running sums stay exact;
// the standard deviation, a dimensionless shape statistic, is derived in
// floating point at read time.
type RollingStats struct {
	capacity int
	values   []decimal.Decimal
	next     int
	full     bool
	sum      decimal.Decimal
}

// NewRollingStats creates a window over the last capacity observations.
func NewRollingStats(capacity int) *RollingStats {
	if capacity < 1 {
		capacity = 1
	}
	return &RollingStats{
		capacity: capacity,
		values:   make([]decimal.Decimal, capacity),
	}
}

// Add records an observation, evicting the oldest once the window is full.
func (r *RollingStats) Add(v decimal.Decimal) {
	if r.full {
		r.sum = r.sum.Sub(r.values[r.next])
	}
	r.values[r.next] = v
	r.sum = r.sum.Add(v)
	r.next++
	if r.next == r.capacity {
		r.next = 0
		r.full = true
	}
}

// Capacity returns the window size.
func (r *RollingStats) Capacity() int {
	return r.capacity
}

// Count returns the number of observations currently in the window.
func (r *RollingStats) Count() int {
	if r.full {
		return r.capacity
	}
	return r.next
}

// Sum returns the sum of the windowed observations.
func (r *RollingStats) Sum() decimal.Decimal {
	return r.sum
}

// Mean returns the average of the windowed observations, zero when empty.
func (r *RollingStats) Mean() decimal.Decimal {
	n := r.Count()
	if n == 0 {
		return decimal.Zero
	}
	return r.sum.Div(decimal.NewFromInt(int64(n)))
}

// Max returns the largest windowed observation, zero when empty.
func (r *RollingStats) Max() decimal.Decimal {
	n := r.Count()
	if n == 0 {
		return decimal.Zero
	}
	max := r.values[0]
	for i := 1; i < n; i++ {
		if r.values[i].GreaterThan(max) {
			max = r.values[i]
		}
	}
	return max
}

// Min returns the smallest windowed observation, zero when empty.
func (r *RollingStats) Min() decimal.Decimal {
	n := r.Count()
	if n == 0 {
		return decimal.Zero
	}
	min := r.values[0]
	for i := 1; i < n; i++ {
		if r.values[i].LessThan(min) {
			min = r.values[i]
		}
	}
	return min
}

// StdDev returns the population standard deviation of the window.
func (r *RollingStats) StdDev() float64 {
	n := r.Count()
	if n < 2 {
		return 0
	}
	mean, _ := r.Mean().Float64()
	var sumSq float64
	for i := 0; i < n; i++ {
		v, _ := r.values[i].Float64()
		d := v - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(n))
}

// Reset empties the window.
func (r *RollingStats) Reset() {
	r.values = make([]decimal.Decimal, r.capacity)
	r.next = 0
	r.full = false
	r.sum = decimal.Zero
}

// sharpeRatio computes mean/stddev over a per-fill return series. The
// series has no fixed period so the ratio is reported unannualized. Zero
// when the series is too short or flat.
func sharpeRatio(returns []decimal.Decimal) float64 {
	if len(returns) < 2 {
		return 0
	}
	var sum float64
	vals := make([]float64, len(returns))
	for i, d := range returns {
		v, _ := d.Float64()
		vals[i] = v
		sum += v
	}
	mean := sum / float64(len(vals))
	var sumSq float64
	for _, v := range vals {
		d := v - mean
		sumSq += d * d
	}
	std := math.Sqrt(sumSq / float64(len(vals)))
	if std == 0 {
		return 0
	}
	return mean / std
}
