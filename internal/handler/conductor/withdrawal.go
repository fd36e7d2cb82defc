package conductor

import (
	"math/big"

	"context"

	"github.com/procnet/custodian/common"
	"github.com/procnet/custodian/internal/common/secrets"
	"github.com/procnet/custodian/internal/handler/chainclient"
	"github.com/procnet/custodian/internal/handler/state"
	"github.com/procnet/custodian/internal/handler/store"
)

// WithdrawalCoinIndex resolves a coin's on-chain decimals. It is a
// decimals-only counterpart of scanner.CoinIndex (which also returns the
// rate), kept package-local to avoid a cross-package type dependency.
type WithdrawalCoinIndex interface {
	Decimals(contractAddress string) (int, bool)
}

// WithdrawalConductor pays out claimed withdrawals from the SADMIN address
// the store already matched and locked (spec.md §4.8): unlike deposits,
// the admin/spender relationship is fixed up front by
// store.GetAndLockPendingWithdrawals, so this conductor only needs to send.
type WithdrawalConductor struct {
	client chainclient.Client
	store  *store.Store
	state  *state.State
	box    *secrets.Box
	coins  WithdrawalCoinIndex
}

func NewWithdrawalConductor(client chainclient.Client, st *store.Store, sh *state.State, box *secrets.Box, coins WithdrawalCoinIndex) *WithdrawalConductor {
	return &WithdrawalConductor{client: client, store: st, state: sh, box: box, coins: coins}
}

func (c *WithdrawalConductor) Tick(ctx context.Context) error {
	gasPrice, ready := c.state.GasPrice()
	if !ready {
		return nil
	}
	gp, ok := new(big.Int).SetString(gasPrice, 10)
	if !ok {
		logger.Error("unparseable cached gas price", "value", gasPrice)
		return nil
	}

	withdrawals, err := c.store.GetAndLockPendingWithdrawals()
	if err != nil {
		return err
	}
	for _, w := range withdrawals {
		c.payOne(ctx, w, gp)
	}
	return nil
}

func (c *WithdrawalConductor) payOne(ctx context.Context, w store.WithdrawalWithAdmin, gasPrice *big.Int) {
	if w.TxHashOut != nil && *w.TxHashOut != "" {
		poller, ok := c.client.(chainclient.ResultPoller)
		if !ok {
			logger.Error("chain client does not support result polling", "withdrawal_id", w.ID)
			return
		}
		hash, err := poller.Result(ctx, *w.TxHashOut)
		c.finish(w, hash, err)
		return
	}

	adminKey, err := c.box.Open(w.AdminPrivate)
	if err != nil {
		logger.Crit("decrypting withdrawal admin key", "withdrawal_id", w.ID, "err", err)
		return
	}

	if _, ok := c.coins.Decimals(w.ContractAddress); !ok {
		_ = c.store.MarkWithdrawalStuck(w.ID, "unconfigured_coin")
		return
	}

	amount, ok := new(big.Int).SetString(w.Amount, 10)
	if !ok {
		_ = c.store.MarkWithdrawalStuck(w.ID, "unparseable_amount")
		return
	}

	var hash string
	if w.ContractAddress == common.NativeCoin {
		hash, err = c.client.SendNative(ctx, w.WithdrawalAddress, amount, adminKey, gasPrice, chainclient.NativeGasLimit)
	} else {
		hash, err = c.client.TokenTransfer(ctx, w.ContractAddress, w.WithdrawalAddress, amount, adminKey, gasPrice)
	}
	c.finish(w, hash, err)
}

func (c *WithdrawalConductor) finish(w store.WithdrawalWithAdmin, hash string, err error) {
	if err == nil {
		if storeErr := c.store.MarkWithdrawalSent(w.ID, *w.AdminAddrID, hash); storeErr != nil {
			logger.Error("recording sent withdrawal", "withdrawal_id", w.ID, "err", storeErr)
		}
		return
	}

	switch classify(err) {
	case outcomeKnownHash:
		if storeErr := c.store.RecordWithdrawalProviderConnectionError(w.ID, hash); storeErr != nil {
			logger.Error("recording withdrawal provider connection error", "withdrawal_id", w.ID, "err", storeErr)
		}
	case outcomeStuck:
		logger.CritNoExit("withdrawal stuck", "withdrawal_id", w.ID, "err", err)
		_ = c.store.MarkWithdrawalStuck(w.ID, err.Error())
	default:
		period := nextWithdrawalBackoff(w.TxHandlerPeriod)
		if storeErr := c.store.ReleaseWithdrawalForRetry(w.ID, *w.AdminAddrID, period, err.Error()); storeErr != nil {
			logger.Error("releasing withdrawal for retry", "withdrawal_id", w.ID, "err", storeErr)
		}
	}
}
