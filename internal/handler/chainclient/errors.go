package chainclient

import "fmt"

// The provider-level error taxonomy surfaced to conductors, spec.md §4.2
// and §7. Conductors type-switch on these to decide the retry policy.

type AlreadyKnownError struct{ Nonce uint64 }

func (e *AlreadyKnownError) Error() string { return fmt.Sprintf("already known tx, nonce %d", e.Nonce) }

type UnderpricedTransactionError struct{ Nonce uint64 }

func (e *UnderpricedTransactionError) Error() string {
	return fmt.Sprintf("underpriced transaction, nonce %d", e.Nonce)
}

type InsufficientFundsError struct{ Address string }

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds for tx from %s", e.Address)
}

type TransactionFailedError struct{ Hash string }

func (e *TransactionFailedError) Error() string {
	return fmt.Sprintf("transaction failed on-chain: %s", e.Hash)
}

type StuckTransactionError struct {
	Hash  string
	Nonce uint64
}

func (e *StuckTransactionError) Error() string {
	return fmt.Sprintf("transaction stuck: hash=%s nonce=%d", e.Hash, e.Nonce)
}

type TransactionNotFoundError struct{ Hash string }

func (e *TransactionNotFoundError) Error() string {
	return fmt.Sprintf("transaction not found: %s", e.Hash)
}

// ProviderConnectionErrorOnTx means submit observed a network error after
// the transaction may already have been accepted by a node: the hash is
// known but the outcome isn't. Conductors persist Hash and retry via the
// poll-only path (spec.md §4.6 step 3).
type ProviderConnectionErrorOnTx struct {
	Hash string
	Err  error
}

func (e *ProviderConnectionErrorOnTx) Error() string {
	return fmt.Sprintf("provider connection error submitting tx %s: %v", e.Hash, e.Err)
}
func (e *ProviderConnectionErrorOnTx) Unwrap() error { return e.Err }

type ProviderHTTPError struct {
	StatusCode int
	Body       string
}

func (e *ProviderHTTPError) Error() string {
	return fmt.Sprintf("provider http error %d: %s", e.StatusCode, e.Body)
}

// PreparingTransactionError wraps a failure in the token sweep's
// approve-funding "prepare" phase (spec.md §4.7 steps 2-3).
type PreparingTransactionError struct {
	Cause error
}

func (e *PreparingTransactionError) Error() string {
	return fmt.Sprintf("preparing transaction: %v", e.Cause)
}
func (e *PreparingTransactionError) Unwrap() error { return e.Cause }
