package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCoinsEmpty(t *testing.T) {
	got, err := parseCoins("")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestParseCoinsSingle(t *testing.T) {
	got, err := parseCoins("USDT|6|1000|100|0xABCDEF")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, Coin{
		Name:            "USDT",
		Decimals:        6,
		MinAmount:       1000,
		FeeAmount:       100,
		ContractAddress: "0xabcdef",
	}, got[0])
}

func TestParseCoinsMultiple(t *testing.T) {
	got, err := parseCoins("ETH|18|0|0|native,USDT|6|1000|100|0xABCDEF")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "ETH", got[0].Name)
	assert.Equal(t, "USDT", got[1].Name)
}

func TestParseCoinsMalformedFieldCount(t *testing.T) {
	_, err := parseCoins("ETH|18|0|0")
	assert.Error(t, err)
}

func TestParseCoinsMalformedDecimal(t *testing.T) {
	_, err := parseCoins("ETH|notanumber|0|0|native")
	assert.Error(t, err)
}

func TestSplitNonEmptyTrimsAndDropsBlanks(t *testing.T) {
	got := splitNonEmpty(" a , b ,, c", ",")
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestSplitNonEmptyEmptyInput(t *testing.T) {
	assert.Nil(t, splitNonEmpty("", ","))
}
