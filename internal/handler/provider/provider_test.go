package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEnabledProvider(baseURL string) *Provider {
	p := &Provider{Kind: "evm", BaseURL: baseURL}
	p.SetEnabled(true)
	return p
}

func TestPoolGetNoProviders(t *testing.T) {
	pool := NewPool(nil, nil)
	_, err := pool.Get()
	assert.Equal(t, ErrNoProviderAvailable, err)
}

func TestPoolGetSkipsDisabled(t *testing.T) {
	live := newEnabledProvider("https://live")
	dead := &Provider{Kind: "evm", BaseURL: "https://dead"}
	pool := NewPool([]*Provider{live, dead}, nil)

	for i := 0; i < 20; i++ {
		got, err := pool.Get()
		require.NoError(t, err)
		assert.Equal(t, live, got)
	}
}

func TestPoolGetAllDisabled(t *testing.T) {
	p := &Provider{Kind: "evm", BaseURL: "https://down"}
	pool := NewPool([]*Provider{p}, nil)
	_, err := pool.Get()
	assert.Equal(t, ErrNoProviderAvailable, err)
}

func TestPoolDisableThenRefresh(t *testing.T) {
	p := newEnabledProvider("https://a")
	pool := NewPool([]*Provider{p}, nil)

	pool.Disable(p)
	_, err := pool.Get()
	assert.Equal(t, ErrNoProviderAvailable, err)

	pool.Refresh()
	got, err := pool.Get()
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestPoolAllReturnsCopy(t *testing.T) {
	p := newEnabledProvider("https://a")
	pool := NewPool([]*Provider{p}, nil)

	all := pool.All()
	require.Len(t, all, 1)
	all[0] = nil
	assert.NotNil(t, pool.All()[0])
}

func TestPoolRecordResultNilTelemetrySafe(t *testing.T) {
	p := newEnabledProvider("https://a")
	pool := NewPool([]*Provider{p}, nil)
	assert.NotPanics(t, func() { pool.RecordResult(p, 200) })
}
