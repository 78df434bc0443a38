package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestRound_BankersHalfToEven(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"0.5", 0},
		{"1.5", 2},
		{"2.5", 2},
		{"3.5", 4},
		{"2.4", 2},
		{"2.6", 3},
		{"-1.5", -2},
		{"-2.5", -2},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Round(dec(tc.in), ModeBankers), "bankers(%s)", tc.in)
	}
}

func TestRound_HalfUp(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"0.5", 1},
		{"1.5", 2},
		{"2.5", 3},
		{"2.4", 2},
		{"-0.5", -1},
		{"-1.5", -2},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Round(dec(tc.in), ModeHalfUp), "half_up(%s)", tc.in)
	}
}

func TestRound_FloorAndCeil(t *testing.T) {
	assert.Equal(t, int64(2), Round(dec("2.9"), ModeFloor))
	assert.Equal(t, int64(-3), Round(dec("-2.1"), ModeFloor))
	assert.Equal(t, int64(3), Round(dec("2.1"), ModeCeil))
	assert.Equal(t, int64(-2), Round(dec("-2.9"), ModeCeil))
}

func TestRound_UnknownModeFallsBackToBankers(t *testing.T) {
	assert.Equal(t, int64(2), Round(dec("2.5"), Mode("nonsense")))
	assert.Equal(t, int64(2), Round(dec("2.5"), ""))
}
