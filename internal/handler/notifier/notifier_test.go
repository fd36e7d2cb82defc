package notifier

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNextCallbackBackoffFloor(t *testing.T) {
	assert.Equal(t, callbackBackoffFloor, nextCallbackBackoff(0))
}

func TestNextCallbackBackoffSteps(t *testing.T) {
	assert.Equal(t, 120*time.Second, nextCallbackBackoff(60))
}

func TestNextCallbackBackoffUncapped(t *testing.T) {
	assert.Equal(t, 3660*time.Second, nextCallbackBackoff(3600))
}
