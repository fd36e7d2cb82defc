package callback

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNextBackoffFloor(t *testing.T) {
	assert.Equal(t, backoffFloor, nextBackoff(0))
}

func TestNextBackoffSteps(t *testing.T) {
	assert.Equal(t, 120*time.Second, nextBackoff(60))
}

func TestNextBackoffUncapped(t *testing.T) {
	assert.Equal(t, 3660*time.Second, nextBackoff(3600))
}

func TestErrString(t *testing.T) {
	assert.Equal(t, "", errString(nil))
	assert.Equal(t, assert.AnError.Error(), errString(assert.AnError))
}
