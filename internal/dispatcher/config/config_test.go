package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNetworksEmpty(t *testing.T) {
	got, err := parseNetworks("")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestParseNetworksSingle(t *testing.T) {
	got, err := parseNetworks("eth|https://eth.example.com|key-1")
	require.NoError(t, err)
	assert.Equal(t, []NetworkEntry{{NetworkName: "eth", BaseURL: "https://eth.example.com", APIKey: "key-1"}}, got)
}

func TestParseNetworksMultiple(t *testing.T) {
	got, err := parseNetworks("eth|https://eth.example.com|key-1,tron|https://tron.example.com|key-2")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "eth", got[0].NetworkName)
	assert.Equal(t, "tron", got[1].NetworkName)
}

func TestParseNetworksMalformed(t *testing.T) {
	_, err := parseNetworks("eth|https://eth.example.com")
	assert.Error(t, err)
}

func TestEnvIntOrDefault(t *testing.T) {
	assert.Equal(t, int64(100), envInt64Or("PROC_DISPATCHER_TEST_UNSET_VAR", 100))
}
