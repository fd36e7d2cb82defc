package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewStateStartsEmptyAndNotReady(t *testing.T) {
	s := New()
	assert.False(t, s.Ready())
	assert.False(t, s.IsUserAddress("0xabc"))
	assert.False(t, s.IsHandlerAddress("0xabc"))
	_, ok := s.AddressID("0xabc")
	assert.False(t, ok)
}

func TestPublishAddresses(t *testing.T) {
	s := New()
	s.PublishAddresses(
		[]AddressEntry{{Address: "0xuser1", ID: 7}},
		[]string{"0xsadmin1"},
	)

	assert.True(t, s.IsUserAddress("0xuser1"))
	assert.False(t, s.IsUserAddress("0xsadmin1"))
	assert.True(t, s.IsHandlerAddress("0xsadmin1"))

	id, ok := s.AddressID("0xuser1")
	assert.True(t, ok)
	assert.Equal(t, int64(7), id)
}

func TestPublishAddressesReplacesPreviousSnapshot(t *testing.T) {
	s := New()
	s.PublishAddresses([]AddressEntry{{Address: "0xold", ID: 1}}, nil)
	s.PublishAddresses([]AddressEntry{{Address: "0xnew", ID: 2}}, nil)

	assert.False(t, s.IsUserAddress("0xold"))
	assert.True(t, s.IsUserAddress("0xnew"))
}

func TestPublishGasPriceMarksReady(t *testing.T) {
	s := New()
	_, ready := s.GasPrice()
	assert.False(t, ready)

	s.PublishGasPrice("1000000000")
	price, ready := s.GasPrice()
	assert.True(t, ready)
	assert.Equal(t, "1000000000", price)
	assert.True(t, s.Ready())
}

func TestPublishBlockProgress(t *testing.T) {
	s := New()
	s.PublishBlockProgress(100, 90, true)

	last, trusted, catchUp := s.BlockProgress()
	assert.Equal(t, uint64(100), last)
	assert.Equal(t, uint64(90), trusted)
	assert.True(t, catchUp)
}

func TestPublishGasPricePreservesAddresses(t *testing.T) {
	s := New()
	s.PublishAddresses([]AddressEntry{{Address: "0xuser1", ID: 1}}, []string{"0xsadmin1"})
	s.PublishGasPrice("42")

	assert.True(t, s.IsUserAddress("0xuser1"))
	assert.True(t, s.IsHandlerAddress("0xsadmin1"))
}
