package store

import (
	"time"

	"github.com/jinzhu/gorm"
)

// DepositWithSource is a locked native/token deposit joined to its source
// UserAddress (public key, encrypted private key, admin/approve targets) —
// everything a conductor needs without a second round trip.
type DepositWithSource struct {
	Deposit
	SourcePublic    string
	SourcePrivate   []byte
	AdminPublic     string
	ApprovePublic   string
	ApprovePrivate  []byte
	ApproveAddrID   int64
}

// GetAndLockPendingDepositsNative implements spec.md §4.3's native
// locking query: select-for-update-skip-locked, distinct by address_id (one
// pending sweep per user per batch), joined to the user's admin address.
func (s *Store) GetAndLockPendingDepositsNative(limit int) ([]DepositWithSource, error) {
	var out []DepositWithSource
	err := s.transact(func(tx *gorm.DB) error {
		rows, err := queryLockedDeposits(tx, `d.contract_address = 'native'
			AND (d.tx_hash_out IS NULL OR d.last_tx_error = 'provider_connection_error')
			AND d.locked_by_tx_handler = 0
			AND d.time_to_tx_handler < ?
			AND ua.locked_by_tx = 0`, limit, true)
		if err != nil {
			return err
		}
		out = rows
		return lockSelected(tx, out, false)
	})
	return out, err
}

// GetAndLockPendingDepositsCoin is the non-native analogue, additionally
// requiring (and locking) an unlocked APPROVE account.
func (s *Store) GetAndLockPendingDepositsCoin(limit int) ([]DepositWithSource, error) {
	var out []DepositWithSource
	err := s.transact(func(tx *gorm.DB) error {
		rows, err := queryLockedDeposits(tx, `d.contract_address != 'native'
			AND (d.tx_hash_out IS NULL OR d.last_tx_error = 'provider_connection_error')
			AND d.locked_by_tx_handler = 0
			AND d.time_to_tx_handler < ?
			AND ua.locked_by_tx = 0
			AND approve.locked_by_tx = 0`, limit, true)
		if err != nil {
			return err
		}
		out = rows
		return lockSelected(tx, out, true)
	})
	return out, err
}

func queryLockedDeposits(tx *gorm.DB, where string, limit int, now interface{}) ([]DepositWithSource, error) {
	rows, err := tx.Raw(`
		SELECT d.*,
		       ua.public AS source_public, ua.private AS source_private,
		       admin.public AS admin_public,
		       approve.public AS approve_public, approve.private AS approve_private,
		       approve.id AS approve_addr_id
		FROM deposits d
		JOIN user_address ua ON ua.id = d.address_id
		LEFT JOIN user_address admin ON admin.id = ua.admin_id
		LEFT JOIN user_address approve ON approve.id = ua.approve_id
		WHERE `+where+`
		GROUP BY d.address_id
		LIMIT ?
		FOR UPDATE SKIP LOCKED
	`, time.Now(), limit).Rows()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DepositWithSource
	for rows.Next() {
		var row DepositWithSource
		if err := tx.ScanRows(rows, &row); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, nil
}

func lockSelected(tx *gorm.DB, rows []DepositWithSource, withApprove bool) error {
	for _, r := range rows {
		if err := tx.Model(&Deposit{}).Where("id = ?", r.ID).Update("locked_by_tx_handler", true).Error; err != nil {
			return err
		}
		if err := tx.Model(&UserAddress{}).Where("id = ?", r.AddressID).Update("locked_by_tx", true).Error; err != nil {
			return err
		}
		if withApprove && r.ApproveAddrID != 0 {
			if err := tx.Model(&UserAddress{}).Where("id = ?", r.ApproveAddrID).Update("locked_by_tx", true).Error; err != nil {
				return err
			}
		}
	}
	return nil
}

// WithdrawalWithAdmin is a claimed withdrawal joined to the admin address
// it was matched to.
type WithdrawalWithAdmin struct {
	Withdrawal
	AdminPublic  string
	AdminPrivate []byte
}

// GetAndLockPendingWithdrawals implements spec.md §4.3/§4.8: claim up to N
// withdrawals (N = count of currently unlocked SADMIN addresses), matching
// each to an admin whose balance of the requested coin covers the amount
// (the stricter "amount <= balance" policy per design note §9(c)).
func (s *Store) GetAndLockPendingWithdrawals() ([]WithdrawalWithAdmin, error) {
	var out []WithdrawalWithAdmin
	err := s.transact(func(tx *gorm.DB) error {
		var freeAdmins int
		if err := tx.Raw(`SELECT COUNT(*) FROM user_address ua JOIN users u ON u.id = ua.user_id
			WHERE u.role = ? AND ua.locked_by_tx = 0`, roleSAdmin).Row().Scan(&freeAdmins); err != nil {
			return err
		}
		if freeAdmins == 0 {
			return nil
		}

		rows, err := tx.Raw(`
			SELECT w.* FROM withdrawals w
			WHERE w.tx_hash_out IS NULL AND w.admin_addr_id IS NULL
			ORDER BY w.created_at
			LIMIT ?
			FOR UPDATE SKIP LOCKED
		`, freeAdmins).Rows()
		if err != nil {
			return err
		}
		var withdrawals []Withdrawal
		for rows.Next() {
			var w Withdrawal
			if err := tx.ScanRows(rows, &w); err != nil {
				rows.Close()
				return err
			}
			withdrawals = append(withdrawals, w)
		}
		rows.Close()

		for _, w := range withdrawals {
			var admin struct {
				ID      int64
				Public  string
				Private []byte
			}
			err := tx.Raw(`
				SELECT ua.id, ua.public, ua.private FROM user_address ua
				JOIN users u ON u.id = ua.user_id
				LEFT JOIN balances b ON b.address_id = ua.id AND b.coin = ?
				WHERE u.role = ? AND ua.locked_by_tx = 0
				  AND CAST(COALESCE(b.balance, '0') AS DECIMAL(65,0)) >= CAST(? AS DECIMAL(65,0))
				ORDER BY ua.id
				LIMIT 1
				FOR UPDATE SKIP LOCKED
			`, w.ContractAddress, roleSAdmin, w.Amount).Row().Scan(&admin.ID, &admin.Public, &admin.Private)
			if err == gorm.ErrRecordNotFound || err != nil {
				continue // no admin currently covers this withdrawal; leave unclaimed for next tick
			}
			if err := tx.Model(&Withdrawal{}).Where("id = ?", w.ID).Update("admin_addr_id", admin.ID).Error; err != nil {
				return err
			}
			if err := tx.Model(&UserAddress{}).Where("id = ?", admin.ID).Update("locked_by_tx", true).Error; err != nil {
				return err
			}
			w.AdminAddrID = &admin.ID
			out = append(out, WithdrawalWithAdmin{Withdrawal: w, AdminPublic: admin.Public, AdminPrivate: admin.Private})
		}
		return nil
	})
	return out, err
}

const roleSAdmin = 12 // common.RoleSAdmin; kept as a literal to avoid an import cycle in raw SQL building

// GetAndLockUnnotifiedDeposits / GetAndLockUnnotifiedWithdrawals implement
// spec.md §4.3's callback-row locking pattern for the notifier (C9).
func (s *Store) GetAndLockUnnotifiedDeposits(limit int) ([]Deposit, error) {
	var out []Deposit
	err := s.transact(func(tx *gorm.DB) error {
		rows, err := tx.Raw(`
			SELECT * FROM deposits
			WHERE is_notified = 0 AND locked_by_callback = 0 AND time_to_callback < ?
			LIMIT ?
			FOR UPDATE SKIP LOCKED
		`, time.Now(), limit).Rows()
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var d Deposit
			if err := tx.ScanRows(rows, &d); err != nil {
				return err
			}
			out = append(out, d)
		}
		return lockDepositCallbacks(tx, out)
	})
	return out, err
}

func (s *Store) GetAndLockUnnotifiedWithdrawals(limit int) ([]Withdrawal, error) {
	var out []Withdrawal
	err := s.transact(func(tx *gorm.DB) error {
		rows, err := tx.Raw(`
			SELECT * FROM withdrawals
			WHERE tx_hash_out IS NOT NULL AND is_notified = 0 AND locked_by_callback = 0 AND time_to_callback < ?
			LIMIT ?
			FOR UPDATE SKIP LOCKED
		`, time.Now(), limit).Rows()
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var w Withdrawal
			if err := tx.ScanRows(rows, &w); err != nil {
				return err
			}
			out = append(out, w)
		}
		for _, w := range out {
			if err := tx.Model(&Withdrawal{}).Where("id = ?", w.ID).Update("locked_by_callback", true).Error; err != nil {
				return err
			}
		}
		return nil
	})
	return out, err
}

func lockDepositCallbacks(tx *gorm.DB, deposits []Deposit) error {
	for _, d := range deposits {
		if err := tx.Model(&Deposit{}).Where("id = ?", d.ID).Update("locked_by_callback", true).Error; err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) transact(fn func(tx *gorm.DB) error) error {
	tx := s.write.Begin()
	if tx.Error != nil {
		return tx.Error
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit().Error
}
