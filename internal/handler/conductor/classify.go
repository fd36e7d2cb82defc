package conductor

import (
	"errors"

	"github.com/procnet/custodian/internal/handler/chainclient"
)

// outcome is what a conductor does next after a broadcast attempt fails,
// per spec.md §4.6 steps 5-7's three-way split.
type outcome int

const (
	outcomeRetry outcome = iota // recoverable: release locks, back off, rebuild next tick
	outcomeKnownHash            // hash was assigned but outcome unknown: persist hash, poll-only next tick
	outcomeStuck                // needs a human: keep the row locked, log Crit
)

// classify maps the chainclient error taxonomy to a conductor outcome.
func classify(err error) outcome {
	var connErr *chainclient.ProviderConnectionErrorOnTx
	if errors.As(err, &connErr) && connErr.Hash != "" {
		return outcomeKnownHash
	}

	var stuckErr *chainclient.StuckTransactionError
	if errors.As(err, &stuckErr) {
		return outcomeStuck
	}

	var alreadyKnown *chainclient.AlreadyKnownError
	var underpriced *chainclient.UnderpricedTransactionError
	var insufficient *chainclient.InsufficientFundsError
	var failed *chainclient.TransactionFailedError
	if errors.As(err, &alreadyKnown) || errors.As(err, &underpriced) ||
		errors.As(err, &insufficient) || errors.As(err, &failed) {
		return outcomeRetry
	}

	// Unclassified provider/network errors default to the retry path:
	// the row unlocks and backs off rather than wedging a conductor slot.
	return outcomeRetry
}
