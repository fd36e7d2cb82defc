package refresh

import (
	"context"
	"math/big"

	"github.com/procnet/custodian/common"
	"github.com/procnet/custodian/internal/handler/chainclient"
	"github.com/procnet/custodian/internal/handler/store"
)

// BalanceRefresher keeps the balances table current for SADMIN accounts
// (every configured coin) and APPROVE accounts (native only, since an
// APPROVE account only ever needs gas to pay for its own approve/transferFrom
// calls), per spec.md §4.10, logging a warning when an admin's native
// balance drops under the configured threshold.
type BalanceRefresher struct {
	client             chainclient.Client
	store              *store.Store
	nativeLowThreshold float64 // in display units of the native coin
}

func NewBalanceRefresher(client chainclient.Client, st *store.Store, nativeLowThreshold float64) *BalanceRefresher {
	return &BalanceRefresher{client: client, store: st, nativeLowThreshold: nativeLowThreshold}
}

func (r *BalanceRefresher) Tick(ctx context.Context) error {
	accounts, err := r.store.UsersAddressesWithRole([]int{int(common.RoleSAdmin), int(common.RoleApprove)})
	if err != nil {
		return err
	}
	coins, err := r.store.ActiveCoins()
	if err != nil {
		return err
	}

	for _, acct := range accounts {
		isApprove := acct.Role == int(common.RoleApprove)
		for _, coin := range coins {
			if isApprove && coin.ContractAddress != common.NativeCoin {
				continue // APPROVE accounts only need native gas balance tracked
			}
			balance, err := r.fetchBalance(ctx, acct.Public, coin.ContractAddress)
			if err != nil {
				logger.Warn("balance fetch failed", "address", acct.Public, "coin", coin.ContractAddress, "err", err)
				continue
			}
			if err := r.store.UpsertBalance(acct.ID, coin.ContractAddress, balance.String()); err != nil {
				logger.Error("persisting refreshed balance", "address", acct.ID, "coin", coin.ContractAddress, "err", err)
			}
			if coin.ContractAddress == common.NativeCoin {
				display := common.BaseUnitsToQuote(balance, 1, coin.Decimals)
				f, _ := display.Float64()
				if f < r.nativeLowThreshold {
					logger.Warn("admin account native balance below threshold", "address", acct.Public, "balance", display.String())
				}
			}
		}
	}
	return nil
}

func (r *BalanceRefresher) fetchBalance(ctx context.Context, addr, contractAddress string) (*big.Int, error) {
	if contractAddress == common.NativeCoin {
		return r.client.GetAccountBalance(ctx, addr)
	}
	return r.client.BalanceOf(ctx, contractAddress, addr)
}
