package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestCommissionTable(t *testing.T) {
	cases := []struct {
		name   string
		amount int64
		rate   string
		want   int64
	}{
		{"zero rate", 10_000, "0", 0},
		{"one percent exact", 5_000, "1", 50},
		{"agent cash-in from the fee schedule", 20_000, "1.5", 300},
		{"half rounds up", 50, "1", 1},    // 0.5 poisha
		{"below half rounds down", 49, "1", 0}, // 0.49 poisha
		{"above half rounds up", 51, "1", 1},
		{"fractional rate", 333, "2.5", 8}, // 8.325
		{"tiny amount", 1, "1.5", 0},       // 0.015
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rate, err := decimal.NewFromString(tc.rate)
			assert.NoError(t, err)
			assert.Equal(t, tc.want, Commission(tc.amount, rate))
		})
	}
}

func TestFeeMatchesCommissionRule(t *testing.T) {
	rate := decimal.NewFromInt(1)
	// 50.00 sent at 1% costs 0.50.
	assert.Equal(t, int64(50), Fee(5_000, rate))
}

func TestFormatBDT(t *testing.T) {
	assert.Equal(t, "BDT 105.50", FormatBDT(10_550))
	assert.Equal(t, "BDT 0.01", FormatBDT(1))
}
