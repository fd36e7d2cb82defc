package common

import (
	"math"
	"math/big"
)

// BaseUnitsToQuote converts an integer amount expressed in a coin's base
// units (wei, sun, ...) into the decimal quote-asset amount the store keeps
// alongside every deposit/withdrawal row: amount * rate / 10^decimals.
func BaseUnitsToQuote(amount *big.Int, rate float64, decimals int) *big.Float {
	amt := new(big.Float).SetInt(amount)
	scaled := new(big.Float).Quo(amt, pow10(decimals))
	return new(big.Float).Mul(scaled, big.NewFloat(rate))
}

// QuoteToBaseUnits is the inverse: given a quote-asset amount a user wants
// to withdraw and the coin's current rate, compute the integer base-unit
// amount to actually move on chain.
func QuoteToBaseUnits(quoteAmount *big.Float, rate float64, decimals int) *big.Int {
	if rate <= 0 {
		return big.NewInt(0)
	}
	native := new(big.Float).Quo(quoteAmount, big.NewFloat(rate))
	scaled := new(big.Float).Mul(native, pow10(decimals))
	out, _ := scaled.Int(nil)
	return out
}

func pow10(n int) *big.Float {
	return new(big.Float).SetFloat64(math.Pow10(n))
}

// RoundForRate picks the number of decimal places a display amount should
// be rounded to for a given exchange rate and quote precision p (e.g. cents
// for USD => p=100): places = floor(log10(p/r)), floored at 0. This keeps
// low-value coins from displaying as "0.00" while keeping high-value coins
// from showing spurious precision.
func RoundForRate(rate float64, p float64) int {
	if rate <= 0 {
		return 2
	}
	places := math.Floor(math.Log10(p / rate))
	if places < 0 {
		places = 0
	}
	return int(places)
}

// AmountToDisplay renders amount rounded to the precision RoundForRate
// implies for rate/p, reversing the decimal-place choice (property P5).
func AmountToDisplay(amount *big.Float, rate float64, p float64) string {
	places := RoundForRate(rate, p)
	return amount.Text('f', places)
}
