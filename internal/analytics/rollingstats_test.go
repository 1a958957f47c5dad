package analytics

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestRollingStats_WindowEviction(t *testing.T) {
	r := NewRollingStats(3)
	for i := 1; i <= 5; i++ {
		r.Add(decimal.NewFromInt(int64(i)))
	}

	assert.Equal(t, 3, r.Count())
	assert.Equal(t, 3, r.Capacity())
	assert.True(t, r.Sum().Equal(dec("12")), "sum = %s", r.Sum())
	assert.True(t, r.Mean().Equal(dec("4")), "mean = %s", r.Mean())
	assert.True(t, r.Max().Equal(dec("5")), "max = %s", r.Max())
	assert.True(t, r.Min().Equal(dec("3")), "min = %s", r.Min())
}

func TestRollingStats_DecimalSumIsExact(t *testing.T) {
	r := NewRollingStats(16)
	for i := 0; i < 10; i++ {
		r.Add(dec("0.1"))
	}
	assert.True(t, r.Sum().Equal(dec("1")), "sum = %s", r.Sum())
}

func TestRollingStats_StdDev(t *testing.T) {
	r := NewRollingStats(8)
	for _, v := range []string{"2", "4", "4", "4", "5", "5", "7", "9"} {
		r.Add(dec(v))
	}
	assert.InDelta(t, 2.0, r.StdDev(), 1e-9)

	single := NewRollingStats(4)
	single.Add(dec("3"))
	assert.Zero(t, single.StdDev())
}

func TestRollingStats_Empty(t *testing.T) {
	r := NewRollingStats(4)
	assert.Equal(t, 0, r.Count())
	assert.True(t, r.Sum().IsZero())
	assert.True(t, r.Mean().IsZero())
	assert.True(t, r.Max().IsZero())
	assert.True(t, r.Min().IsZero())
}

func TestRollingStats_Reset(t *testing.T) {
	r := NewRollingStats(4)
	r.Add(dec("7"))
	r.Add(dec("-2"))
	r.Reset()

	assert.Equal(t, 0, r.Count())
	assert.True(t, r.Sum().IsZero())

	r.Add(dec("5"))
	assert.True(t, r.Mean().Equal(dec("5")))
}

func TestSharpeRatio(t *testing.T) {
	assert.Zero(t, sharpeRatio(nil))
	assert.Zero(t, sharpeRatio([]decimal.Decimal{dec("10")}))
	assert.Zero(t, sharpeRatio([]decimal.Decimal{dec("4"), dec("4"), dec("4")}))

	// Mean 3, population stddev 7.
	got := sharpeRatio([]decimal.Decimal{dec("10"), dec("-4")})
	assert.InDelta(t, 3.0/7.0, got, 1e-9)
}
