package refresh

import (
	"context"

	"github.com/procnet/custodian/common"
	"github.com/procnet/custodian/internal/handler/chainclient"
	"github.com/procnet/custodian/internal/handler/state"
	"github.com/procnet/custodian/internal/handler/store"
)

// AccountsRefresher reloads the full user/handler address universe into
// Shared state on a timer, so a newly registered address becomes visible
// to the scanner without restarting the process (spec.md §4.4/§4.10).
type AccountsRefresher struct {
	client chainclient.Client
	store  *store.Store
	state  *state.State
}

func NewAccountsRefresher(client chainclient.Client, st *store.Store, sh *state.State) *AccountsRefresher {
	return &AccountsRefresher{client: client, store: st, state: sh}
}

func (r *AccountsRefresher) Tick(ctx context.Context) error {
	userRows, err := r.store.UsersAddresses([]int{int(common.RoleUser)}, 0)
	if err != nil {
		return err
	}
	handlerRows, err := r.store.UsersAddresses([]int{int(common.RoleSAdmin), int(common.RoleApprove)}, 0)
	if err != nil {
		return err
	}

	userEntries := make([]state.AddressEntry, 0, len(userRows))
	for _, ua := range userRows {
		userEntries = append(userEntries, state.AddressEntry{
			Address: r.client.NormalizeAddress(ua.Public), ID: ua.ID,
		})
	}
	handlerAddrs := make([]string, 0, len(handlerRows))
	for _, ua := range handlerRows {
		handlerAddrs = append(handlerAddrs, r.client.NormalizeAddress(ua.Public))
	}

	r.state.PublishAddresses(userEntries, handlerAddrs)
	return nil
}
