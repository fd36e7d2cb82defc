// Package bootstrap is the one-shot startup seeding step of spec.md §4.1:
// before the scheduler starts, ensure the configured coins exist in the
// store and that every network has at least one SADMIN and one APPROVE
// account, deriving their keys from the operator-supplied admin seed
// phrase rather than generating random keys. Each derived private key is
// stored sealed with the process-wide secrets.Box.
package bootstrap

import (
	bip39 "github.com/luxfi/go-bip39"

	"github.com/procnet/custodian/common"
	"github.com/procnet/custodian/internal/common/log"
	"github.com/procnet/custodian/internal/common/secrets"
	"github.com/procnet/custodian/internal/handler/chainclient"
	"github.com/procnet/custodian/internal/handler/config"
	"github.com/procnet/custodian/internal/handler/store"
)

var logger = log.New("bootstrap")

// minAdminAccounts/minApproveAccounts are the smallest operational pool
// spec.md §2's table calls SADMIN/APPROVE accounts: one of each lets the
// handler process a single withdrawal or token sweep at a time, enough to
// come up cold. The handler API has no route that adds SADMIN/APPROVE
// accounts.
const (
	minAdminAccounts   = 1
	minApproveAccounts = 1
)

type Bootstrapper struct {
	store  *store.Store
	client chainclient.Client
	box    *secrets.Box
}

func New(st *store.Store, client chainclient.Client, box *secrets.Box) *Bootstrapper {
	return &Bootstrapper{store: st, client: client, box: box}
}

// Run seeds coins from config.Coins and ensures the minimum SADMIN/APPROVE
// account pool exists, deriving each from cfg.AdminSeed at a distinct
// hardened path so re-running Run (e.g. on restart) is idempotent: the
// same seed always derives the same keys, and ensureAccounts skips any
// derived address already present in the store.
func (b *Bootstrapper) Run(cfg *config.Config) error {
	if err := b.seedCoins(cfg); err != nil {
		return err
	}
	if !bip39.IsMnemonicValid(cfg.AdminSeed) {
		logger.Crit("admin seed is not a valid BIP39 mnemonic")
		return nil // unreachable: Crit exits, kept for a clean return type
	}
	seed := bip39.NewSeed(cfg.AdminSeed, "")

	if err := b.ensureAccounts(seed, common.RoleSAdmin, minAdminAccounts); err != nil {
		return err
	}
	if err := b.ensureAccounts(seed, common.RoleApprove, minApproveAccounts); err != nil {
		return err
	}
	return nil
}

func (b *Bootstrapper) seedCoins(cfg *config.Config) error {
	coins := make([]store.Coin, 0, len(cfg.Coins)+1)
	coins = append(coins, store.Coin{
		ContractAddress: common.NativeCoin, Name: cfg.NetworkName, Decimals: 18, IsActive: true,
	})
	for _, c := range cfg.Coins {
		coins = append(coins, store.Coin{
			ContractAddress: c.ContractAddress, Name: c.Name, Decimals: c.Decimals,
			MinAmount: c.MinAmount, FeeAmount: c.FeeAmount, IsActive: true,
		})
	}
	return b.store.UpsertCoins(coins)
}

// ensureAccounts derives up to `count` accounts at m/<role>'/<index>' and
// creates any that don't already exist in the store (matched by derived
// public address, so a partially-seeded pool from a prior crashed run
// tops up rather than duplicating).
func (b *Bootstrapper) ensureAccounts(seed []byte, role common.Role, count int) error {
	existing, err := b.store.UsersAddresses([]int{int(role)}, 0)
	if err != nil {
		return err
	}
	if len(existing) >= count {
		return nil
	}

	user, err := b.findOrCreateRoleUser(role)
	if err != nil {
		return err
	}

	existingPublics := make(map[string]bool, len(existing))
	for _, ua := range existing {
		existingPublics[ua.Public] = true
	}

	for i := 0; i < count; i++ {
		privKey := deriveAccountKey(seed, uint32(role), uint32(i))
		public, err := b.client.DeriveAddress(privKey)
		if err != nil {
			return err
		}
		if existingPublics[public] {
			continue
		}
		sealed, err := b.box.Seal(privKey)
		if err != nil {
			return err
		}
		if err := b.store.CreateUserAddress(&store.UserAddress{
			UserID: user.ID, Public: public, Private: sealed,
		}); err != nil {
			return err
		}
		logger.Info("seeded account", "role", role.String(), "public", public)
	}
	return nil
}

func (b *Bootstrapper) findOrCreateRoleUser(role common.Role) (*store.User, error) {
	externalID := "system:" + role.String()
	u, err := b.store.FindUserByExternalID(externalID)
	if err != nil {
		return nil, err
	}
	if u != nil {
		return u, nil
	}
	return b.store.CreateUser(externalID, int(role))
}
