package conductor

import (
	"context"
	"math/big"

	"github.com/procnet/custodian/internal/common/secrets"
	"github.com/procnet/custodian/internal/handler/chainclient"
	"github.com/procnet/custodian/internal/handler/state"
	"github.com/procnet/custodian/internal/handler/store"
)

// TokenConductor sweeps ERC20/TRC20 deposits via the approve+transferFrom
// pattern of spec.md §4.7: the user address never holds native coin to pay
// its own gas, so an APPROVE account first funds it, the user address
// approves the APPROVE account as spender, and the APPROVE account finally
// calls transferFrom to move the tokens to a SADMIN address.
type TokenConductor struct {
	client    chainclient.Client
	store     *store.Store
	state     *state.State
	box       *secrets.Box
	batchSize int
}

func NewTokenConductor(client chainclient.Client, st *store.Store, sh *state.State, box *secrets.Box, batchSize int) *TokenConductor {
	return &TokenConductor{client: client, store: st, state: sh, box: box, batchSize: batchSize}
}

func (c *TokenConductor) Tick(ctx context.Context) error {
	gasPrice, ready := c.state.GasPrice()
	if !ready {
		return nil
	}
	gp, ok := new(big.Int).SetString(gasPrice, 10)
	if !ok {
		logger.Error("unparseable cached gas price", "value", gasPrice)
		return nil
	}
	fundingFee, err := c.client.EstimatedTokenSweepFundingFee(ctx)
	if err != nil {
		return err
	}

	deposits, err := c.store.GetAndLockPendingDepositsCoin(c.batchSize)
	if err != nil {
		return err
	}
	for _, d := range deposits {
		c.sweepOne(ctx, d, gp, fundingFee)
	}
	return nil
}

// sweepOne runs the three-step dance of spec.md §4.7:
//  1. fund the user address with just enough native coin to pay for its
//     approve() call (EstimatedTokenSweepFundingFee), from the APPROVE
//     account;
//  2. user address calls approve(APPROVE account, amount);
//  3. APPROVE account calls transferFrom(user, admin, amount).
//
// Each step's tx hash is not separately persisted; a failure classified as
// retryable at any step releases both locked accounts and retries the
// whole sequence next tick,
// since steps 1-2 are idempotent (over-funding/re-approving is harmless)
// and step 3 only succeeds once the allowance is in place.
func (c *TokenConductor) sweepOne(ctx context.Context, d store.DepositWithSource, gasPrice, fundingFee *big.Int) {
	if d.ApprovePrivate == nil {
		_ = c.store.MarkDepositStuck(d.ID, "no_approve_account_assigned")
		logger.CritNoExit("token deposit has no approve account", "deposit_id", d.ID)
		return
	}

	userKey, err := c.box.Open(d.SourcePrivate)
	if err != nil {
		logger.Crit("decrypting deposit source key", "deposit_id", d.ID, "err", err)
		return
	}
	approveKey, err := c.box.Open(d.ApprovePrivate)
	if err != nil {
		logger.Crit("decrypting approve account key", "deposit_id", d.ID, "err", err)
		return
	}
	amount, ok := new(big.Int).SetString(d.Amount, 10)
	if !ok {
		_ = c.store.MarkDepositStuck(d.ID, "unparseable_amount")
		return
	}

	if d.TxHashOut != nil && *d.TxHashOut != "" {
		poller, ok := c.client.(chainclient.ResultPoller)
		if !ok {
			logger.Error("chain client does not support result polling", "deposit_id", d.ID)
			return
		}
		hash, err := poller.Result(ctx, *d.TxHashOut)
		c.finish(d, hash, err)
		return
	}

	if _, err := c.client.SendNative(ctx, d.SourcePublic, fundingFee, approveKey, gasPrice, chainclient.NativeGasLimit); err != nil {
		c.finish(d, "", err)
		return
	}
	if _, err := c.client.Approve(ctx, d.ContractAddress, d.ApprovePublic, amount, userKey, gasPrice); err != nil {
		c.finish(d, "", err)
		return
	}
	hash, err := c.client.TransferFrom(ctx, d.ContractAddress, d.SourcePublic, d.AdminPublic, amount, approveKey, gasPrice)
	c.finish(d, hash, err)
}

func (c *TokenConductor) finish(d store.DepositWithSource, hash string, err error) {
	if err == nil {
		if storeErr := c.store.MarkDepositSwept(d.ID, d.AddressID, d.ApproveAddrID, hash); storeErr != nil {
			logger.Error("recording swept token deposit", "deposit_id", d.ID, "err", storeErr)
		}
		return
	}

	switch classify(err) {
	case outcomeKnownHash:
		period := nextDepositBackoff(d.TxHandlerPeriod)
		if storeErr := c.store.RecordProviderConnectionError(d.ID, hash, period); storeErr != nil {
			logger.Error("recording provider connection error", "deposit_id", d.ID, "err", storeErr)
		}
		_ = c.store.ReleaseApproveOnly(d.ApproveAddrID)
	case outcomeStuck:
		logger.CritNoExit("token sweep stuck", "deposit_id", d.ID, "err", err)
		_ = c.store.MarkDepositStuck(d.ID, err.Error())
	default:
		period := nextDepositBackoff(d.TxHandlerPeriod)
		if storeErr := c.store.ReleaseDepositForRetry(d.ID, d.AddressID, d.ApproveAddrID, period, err.Error()); storeErr != nil {
			logger.Error("releasing token deposit for retry", "deposit_id", d.ID, "err", storeErr)
		}
	}
}
