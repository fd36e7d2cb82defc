package conductor

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/procnet/custodian/internal/handler/chainclient"
)

func TestClassifyKnownHash(t *testing.T) {
	err := &chainclient.ProviderConnectionErrorOnTx{Hash: "0xabc", Err: errors.New("timeout")}
	assert.Equal(t, outcomeKnownHash, classify(err))
}

func TestClassifyKnownHashEmpty(t *testing.T) {
	err := &chainclient.ProviderConnectionErrorOnTx{Hash: "", Err: errors.New("timeout")}
	assert.Equal(t, outcomeRetry, classify(err))
}

func TestClassifyStuck(t *testing.T) {
	err := &chainclient.StuckTransactionError{Hash: "0xabc", Nonce: 5}
	assert.Equal(t, outcomeStuck, classify(err))
}

func TestClassifyRetryable(t *testing.T) {
	cases := []error{
		&chainclient.AlreadyKnownError{Nonce: 1},
		&chainclient.UnderpricedTransactionError{Nonce: 1},
		&chainclient.InsufficientFundsError{Address: "0xabc"},
		&chainclient.TransactionFailedError{Hash: "0xabc"},
	}
	for _, err := range cases {
		assert.Equal(t, outcomeRetry, classify(err), "err=%v", err)
	}
}

func TestClassifyUnclassifiedDefaultsToRetry(t *testing.T) {
	assert.Equal(t, outcomeRetry, classify(errors.New("some network blip")))
}
