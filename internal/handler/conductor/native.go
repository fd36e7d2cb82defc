// Package conductor implements the transaction conductors of spec.md
// §4.6-4.8: native deposit sweeps (C6), token deposit sweeps via
// approve+transferFrom (C7), and withdrawal payouts (C8). All three share
// the lock/broadcast/classify/unlock shape; each file owns one sweep kind.
package conductor

import (
	"context"
	"math/big"

	"github.com/procnet/custodian/internal/common/log"
	"github.com/procnet/custodian/internal/common/secrets"
	"github.com/procnet/custodian/internal/handler/chainclient"
	"github.com/procnet/custodian/internal/handler/state"
	"github.com/procnet/custodian/internal/handler/store"
)

var logger = log.New("conductor")

// NativeConductor sweeps confirmed native-coin deposits from user addresses
// to a SADMIN address (spec.md §4.6), paying the gas fee out of the swept
// amount since the user address holds no other funds to pay it from.
type NativeConductor struct {
	client    chainclient.Client
	store     *store.Store
	state     *state.State
	box       *secrets.Box
	batchSize int
}

func NewNativeConductor(client chainclient.Client, st *store.Store, sh *state.State, box *secrets.Box, batchSize int) *NativeConductor {
	return &NativeConductor{client: client, store: st, state: sh, box: box, batchSize: batchSize}
}

// Tick claims and sweeps one batch of pending native deposits.
func (c *NativeConductor) Tick(ctx context.Context) error {
	gasPrice, ready := c.state.GasPrice()
	if !ready {
		return nil // withheld until the first successful gas price fetch, spec.md §4.10
	}
	gp, ok := new(big.Int).SetString(gasPrice, 10)
	if !ok {
		logger.Error("unparseable cached gas price", "value", gasPrice)
		return nil
	}
	fee, err := c.client.EstimatedNativeFee(ctx)
	if err != nil {
		return err
	}

	deposits, err := c.store.GetAndLockPendingDepositsNative(c.batchSize)
	if err != nil {
		return err
	}
	for _, d := range deposits {
		c.sweepOne(ctx, d, gp, fee)
	}
	return nil
}

func (c *NativeConductor) sweepOne(ctx context.Context, d store.DepositWithSource, gasPrice, fee *big.Int) {
	if d.TxHashOut != nil && *d.TxHashOut != "" {
		// Known hash from a prior ProviderConnectionErrorOnTx: poll only,
		// do not rebuild or resubmit (spec.md §4.6 step 3).
		poller, ok := c.client.(chainclient.ResultPoller)
		if !ok {
			logger.Error("chain client does not support result polling", "deposit_id", d.ID)
			return
		}
		hash, err := poller.Result(ctx, *d.TxHashOut)
		c.finish(d, hash, err)
		return
	}

	privKey, err := c.box.Open(d.SourcePrivate)
	if err != nil {
		logger.Crit("decrypting deposit source key", "deposit_id", d.ID, "err", err)
		return
	}

	amount, ok := new(big.Int).SetString(d.Amount, 10)
	if !ok {
		_ = c.store.MarkDepositStuck(d.ID, "unparseable_amount")
		logger.Warn("unparseable deposit amount", "deposit_id", d.ID, "amount", d.Amount)
		return
	}
	sweepAmount := new(big.Int).Sub(amount, fee)
	if sweepAmount.Sign() <= 0 {
		// Deposit too small to cover its own gas; leave locked for an
		// operator to reconcile manually rather than silently dropping it.
		_ = c.store.MarkDepositStuck(d.ID, "amount_below_gas_fee")
		return
	}

	hash, err := c.client.SendNative(ctx, d.AdminPublic, sweepAmount, privKey, gasPrice, chainclient.NativeGasLimit)
	c.finish(d, hash, err)
}

func (c *NativeConductor) finish(d store.DepositWithSource, hash string, err error) {
	if err == nil {
		if storeErr := c.store.MarkDepositSwept(d.ID, d.AddressID, 0, hash); storeErr != nil {
			logger.Error("recording swept native deposit", "deposit_id", d.ID, "err", storeErr)
		}
		return
	}

	switch classify(err) {
	case outcomeKnownHash:
		period := nextDepositBackoff(d.TxHandlerPeriod)
		if storeErr := c.store.RecordProviderConnectionError(d.ID, hash, period); storeErr != nil {
			logger.Error("recording provider connection error", "deposit_id", d.ID, "err", storeErr)
		}
	case outcomeStuck:
		logger.Crit("native sweep stuck", "deposit_id", d.ID, "err", err)
		_ = c.store.MarkDepositStuck(d.ID, err.Error())
	default:
		period := nextDepositBackoff(d.TxHandlerPeriod)
		if storeErr := c.store.ReleaseDepositForRetry(d.ID, d.AddressID, 0, period, err.Error()); storeErr != nil {
			logger.Error("releasing native deposit for retry", "deposit_id", d.ID, "err", storeErr)
		}
	}
}
