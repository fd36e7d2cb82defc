package chainclient

import (
	"context"
	"time"

	"github.com/procnet/custodian/internal/common/log"
)

var logger = log.New("chainclient")

// broadcastWaitConfig captures the bounded wall-clock budgets from
// spec.md §4.2 step 2-4.
type broadcastWaitConfig struct {
	mempoolTimeout  time.Duration
	mempoolInterval time.Duration
	minedTimeout    time.Duration
	minedInterval   time.Duration
	receiptTimeout  time.Duration
	receiptInterval time.Duration
}

var defaultWaitConfig = broadcastWaitConfig{
	mempoolTimeout:  120 * time.Second,
	mempoolInterval: 3 * time.Second,
	minedTimeout:    60 * time.Second,
	minedInterval:   3 * time.Second,
	receiptTimeout:  30 * time.Second,
	receiptInterval: 2 * time.Second,
}

// rawSubmitter is satisfied by both chain-family clients; broadcastAndWait
// is shared logic, not duplicated per family.
type rawSubmitter interface {
	SendRawTransaction(ctx context.Context, signedHex string) (string, error)
	GetTransactionByHash(ctx context.Context, hash string) (*Tx, error)
	GetTransactionReceipt(ctx context.Context, hash string) (*Receipt, error)
}

// broadcastAndWait implements the five-step result lifecycle of spec.md
// §4.2: submit once, poll to mempool, poll to mined, fetch receipt, check
// status. A network error during submit is tolerated (the tx may still
// land) and surfaces as ProviderConnectionErrorOnTx carrying the best-known
// hash so the caller can persist it and retry via pollToTerminal.
func broadcastAndWait(ctx context.Context, c rawSubmitter, signedHex string, knownHash string, cfg broadcastWaitConfig) (string, error) {
	hash := knownHash
	if hash == "" {
		h, err := c.SendRawTransaction(ctx, signedHex)
		if err != nil {
			return "", &ProviderConnectionErrorOnTx{Hash: h, Err: err}
		}
		hash = h
	}
	return pollToTerminal(ctx, c, hash, cfg)
}

// pollToTerminal is the poll-only path used both right after a fresh
// broadcast and when a retry finds tx_hash_out already set from a prior
// ProviderConnectionErrorOnTx (spec.md §4.6 step 3).
func pollToTerminal(ctx context.Context, c rawSubmitter, hash string, cfg broadcastWaitConfig) (string, error) {
	if err := waitUntil(ctx, cfg.mempoolTimeout, cfg.mempoolInterval, func() (bool, error) {
		tx, err := c.GetTransactionByHash(ctx, hash)
		if err != nil {
			return false, nil // keep polling; transient lookup failures are not fatal here
		}
		return tx != nil, nil
	}); err != nil {
		return "", &TransactionNotFoundError{Hash: hash}
	}

	mined := false
	if err := waitUntil(ctx, cfg.minedTimeout, cfg.minedInterval, func() (bool, error) {
		tx, err := c.GetTransactionByHash(ctx, hash)
		if err != nil || tx == nil {
			return false, nil
		}
		if tx.BlockNumber != nil {
			mined = true
			return true, nil
		}
		return false, nil
	}); err != nil || !mined {
		return "", &StuckTransactionError{Hash: hash}
	}

	var receipt *Receipt
	if err := waitUntil(ctx, cfg.receiptTimeout, cfg.receiptInterval, func() (bool, error) {
		r, err := c.GetTransactionReceipt(ctx, hash)
		if err != nil || r == nil {
			return false, nil
		}
		receipt = r
		return true, nil
	}); err != nil || receipt == nil {
		return "", &TransactionNotFoundError{Hash: hash}
	}

	if receipt.Status != 1 {
		return "", &TransactionFailedError{Hash: hash}
	}
	return hash, nil
}

// waitUntil polls cond every interval until it returns true or the
// deadline elapses; cond's own error return is swallowed by callers above
// that treat lookup failures as "keep waiting", matching the Python
// source's tolerant polling loops.
func waitUntil(ctx context.Context, timeout, interval time.Duration, cond func() (bool, error)) error {
	deadline := time.Now().Add(timeout)
	for {
		ok, err := cond()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return context.DeadlineExceeded
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}
