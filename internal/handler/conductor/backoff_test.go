package conductor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNextDepositBackoffFloor(t *testing.T) {
	assert.Equal(t, depositBackoffFloor, nextDepositBackoff(0))
}

func TestNextDepositBackoffSteps(t *testing.T) {
	assert.Equal(t, 90*time.Second, nextDepositBackoff(60))
}

func TestNextDepositBackoffUncapped(t *testing.T) {
	assert.Equal(t, 630*time.Second, nextDepositBackoff(600))
}

func TestNextWithdrawalBackoffFloor(t *testing.T) {
	assert.Equal(t, withdrawalBackoffFloor, nextWithdrawalBackoff(0))
}

func TestNextWithdrawalBackoffSteps(t *testing.T) {
	assert.Equal(t, 75*time.Second, nextWithdrawalBackoff(60))
}

func TestNextWithdrawalBackoffUncapped(t *testing.T) {
	assert.Equal(t, 615*time.Second, nextWithdrawalBackoff(600))
}
