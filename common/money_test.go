package common

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBaseUnitsToQuote(t *testing.T) {
	amount := big.NewInt(1500000000000000000) // 1.5 ETH in wei
	got := BaseUnitsToQuote(amount, 2000.0, 18)
	f, _ := got.Float64()
	assert.InDelta(t, 3000.0, f, 0.0001)
}

func TestQuoteToBaseUnits(t *testing.T) {
	quote := big.NewFloat(3000.0)
	got := QuoteToBaseUnits(quote, 2000.0, 18)
	want := big.NewInt(1500000000000000000)
	assert.Equal(t, want.String(), got.String())
}

func TestQuoteToBaseUnitsZeroRate(t *testing.T) {
	got := QuoteToBaseUnits(big.NewFloat(100), 0, 18)
	assert.Equal(t, "0", got.String())
}

func TestRoundForRate(t *testing.T) {
	cases := []struct {
		rate, p float64
		want    int
	}{
		{rate: 0, p: 100, want: 2},
		{rate: 2000, p: 100, want: 0},
		{rate: 1, p: 100, want: 2},
		{rate: 0.01, p: 100, want: 4},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, RoundForRate(c.rate, c.p), "rate=%v p=%v", c.rate, c.p)
	}
}

func TestAmountToDisplayRoundTrip(t *testing.T) {
	amount := big.NewFloat(1234.56789)
	got := AmountToDisplay(amount, 1, 100)
	assert.Equal(t, "1234.57", got)
}

func TestAmountToDisplayHighValueCoin(t *testing.T) {
	amount := big.NewFloat(1234.56789)
	got := AmountToDisplay(amount, 2000, 100)
	assert.Equal(t, "1235", got)
}
