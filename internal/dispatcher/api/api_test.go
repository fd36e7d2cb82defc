package api

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDispatcherExternalIDRoundTrip(t *testing.T) {
	id := dispatcherExternalID(42, "user-123")
	assert.Equal(t, "42:user-123", id)

	customerID, externalID, ok := splitDispatcherExternalID(id)
	assert.True(t, ok)
	assert.Equal(t, int64(42), customerID)
	assert.Equal(t, "user-123", externalID)
}

func TestDispatcherExternalIDPreservesColonsInExternalID(t *testing.T) {
	id := dispatcherExternalID(1, "a:b:c")
	customerID, externalID, ok := splitDispatcherExternalID(id)
	assert.True(t, ok)
	assert.Equal(t, int64(1), customerID)
	assert.Equal(t, "a:b:c", externalID)
}

func TestSplitDispatcherExternalIDRejectsMalformed(t *testing.T) {
	_, _, ok := splitDispatcherExternalID("not-namespaced")
	assert.False(t, ok)

	_, _, ok = splitDispatcherExternalID("notanumber:foo")
	assert.False(t, ok)
}
