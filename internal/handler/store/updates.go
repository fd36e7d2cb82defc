package store

import (
	"time"

	"github.com/jinzhu/gorm"
)

// AddDeposits bulk-inserts newly scanned deposits and advances
// last_handled_block to blockNumber in one transaction (spec.md §4.5 step
// 8, §5's "either both or neither"). A duplicate tx_hash_in aborts the
// whole batch on the unique constraint; callers are expected to retry
// per-row (AddDepositSkipDuplicates) when that happens, matching spec.md
// §4.3's "a duplicate aborts the batch and is expected to be retried".
func (s *Store) AddDeposits(deposits []Deposit, blockNumber uint64, depositCount int) error {
	return s.transact(func(tx *gorm.DB) error {
		for i := range deposits {
			if err := tx.Create(&deposits[i]).Error; err != nil {
				return err
			}
		}
		return tx.Create(&Block{ID: blockNumber, DepositCount: depositCount}).Error
	})
}

// AddDepositsSkipDuplicates is the per-row retry path: insert one at a
// time, swallowing unique-constraint violations on tx_hash_in (invariant
// 1) — the expected outcome on a scanner replay (spec.md §8 scenario 5).
func (s *Store) AddDepositsSkipDuplicates(deposits []Deposit, blockNumber uint64) error {
	return s.transact(func(tx *gorm.DB) error {
		inserted := 0
		for i := range deposits {
			err := tx.Create(&deposits[i]).Error
			if err != nil {
				if isDuplicateKeyError(err) {
					continue
				}
				return err
			}
			inserted++
		}
		return tx.Create(&Block{ID: blockNumber, DepositCount: inserted}).Error
	})
}

func isDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return containsAny(msg, "Duplicate entry", "1062", "UNIQUE constraint")
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if indexOfStr(s, sub) >= 0 {
			return true
		}
	}
	return false
}

func indexOfStr(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

// --- Deposit conductor bookkeeping (spec.md §4.6/§4.7) ---

// MarkDepositSwept records the sweep hash and releases all locks on
// success. ApproveAddrID is 0 for native sweeps.
func (s *Store) MarkDepositSwept(depositID string, addressID int64, approveAddrID int64, txHash string) error {
	return s.transact(func(tx *gorm.DB) error {
		if err := tx.Model(&Deposit{}).Where("id = ?", depositID).Updates(map[string]interface{}{
			"tx_hash_out":          txHash,
			"locked_by_tx_handler": false,
			"last_tx_error":        "",
		}).Error; err != nil {
			return err
		}
		if err := tx.Model(&UserAddress{}).Where("id = ?", addressID).Update("locked_by_tx", false).Error; err != nil {
			return err
		}
		if approveAddrID != 0 {
			if err := tx.Model(&UserAddress{}).Where("id = ?", approveAddrID).Update("locked_by_tx", false).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// RecordProviderConnectionError persists a known tx hash and schedules the
// poll-only retry path (spec.md §4.6 step 5): the deposit's handler lock is
// released, and time_to_tx_handler and tx_handler_period back off by period.
func (s *Store) RecordProviderConnectionError(depositID string, txHash string, period time.Duration) error {
	return s.write.Model(&Deposit{}).Where("id = ?", depositID).Updates(map[string]interface{}{
		"tx_hash_out":          txHash,
		"locked_by_tx_handler": false,
		"last_tx_error":        "provider_connection_error",
		"time_to_tx_handler":   time.Now().Add(period),
		"tx_handler_period":    int(period.Seconds()),
	}).Error
}

// ReleaseDepositForRetry clears the handler lock and bumps the retry
// window on a recoverable failure (AlreadyKnown, Underpriced,
// InsufficientFunds, TransactionFailed), leaving tx_hash_out null so the
// next attempt rebuilds (spec.md §4.6 step 6).
func (s *Store) ReleaseDepositForRetry(depositID string, addressID int64, approveAddrID int64, period time.Duration, lastErr string) error {
	return s.transact(func(tx *gorm.DB) error {
		if err := tx.Model(&Deposit{}).Where("id = ?", depositID).Updates(map[string]interface{}{
			"locked_by_tx_handler": false,
			"time_to_tx_handler":   time.Now().Add(period),
			"tx_handler_period":    int(period.Seconds()),
			"last_tx_error":        lastErr,
		}).Error; err != nil {
			return err
		}
		if err := tx.Model(&UserAddress{}).Where("id = ?", addressID).Update("locked_by_tx", false).Error; err != nil {
			return err
		}
		if approveAddrID != 0 {
			if err := tx.Model(&UserAddress{}).Where("id = ?", approveAddrID).Update("locked_by_tx", false).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// ReleaseApproveOnly unlocks only the approve account, keeping the user
// address (and its row lock / retry window) intact — used by the token
// sweep when the user leg fails but the approve account must still return
// to the pool (spec.md §4.7 step 5).
func (s *Store) ReleaseApproveOnly(approveAddrID int64) error {
	return s.write.Model(&UserAddress{}).Where("id = ?", approveAddrID).Update("locked_by_tx", false).Error
}

// MarkDepositStuck logs a critical, non-retryable state (spec.md §4.6 step
// 7 / §7 item 4): the row stays locked for operator investigation.
func (s *Store) MarkDepositStuck(depositID string, lastErr string) error {
	return s.write.Model(&Deposit{}).Where("id = ?", depositID).Update("last_tx_error", lastErr).Error
}

// --- Withdrawal conductor bookkeeping (spec.md §4.8) ---

func (s *Store) CreateWithdrawal(w *Withdrawal) error {
	return s.write.Create(w).Error
}

func (s *Store) MarkWithdrawalSent(withdrawalID string, adminID int64, txHash string) error {
	return s.transact(func(tx *gorm.DB) error {
		if err := tx.Model(&Withdrawal{}).Where("id = ?", withdrawalID).Updates(map[string]interface{}{
			"tx_hash_out":   txHash,
			"last_tx_error": "",
		}).Error; err != nil {
			return err
		}
		return tx.Model(&UserAddress{}).Where("id = ?", adminID).Update("locked_by_tx", false).Error
	})
}

func (s *Store) ReleaseWithdrawalForRetry(withdrawalID string, adminID int64, period time.Duration, lastErr string) error {
	return s.transact(func(tx *gorm.DB) error {
		if err := tx.Model(&Withdrawal{}).Where("id = ?", withdrawalID).Updates(map[string]interface{}{
			"admin_addr_id":      nil,
			"time_to_tx_handler": time.Now().Add(period),
			"tx_handler_period":  int(period.Seconds()),
			"last_tx_error":      lastErr,
		}).Error; err != nil {
			return err
		}
		return tx.Model(&UserAddress{}).Where("id = ?", adminID).Update("locked_by_tx", false).Error
	})
}

// RecordWithdrawalProviderConnectionError persists a known-but-unconfirmed
// tx hash without releasing the admin lock: the next tick polls the same
// hash to a terminal state rather than re-matching or resubmitting
// (mirrors RecordProviderConnectionError's deposit-side counterpart).
func (s *Store) RecordWithdrawalProviderConnectionError(withdrawalID string, txHash string) error {
	return s.write.Model(&Withdrawal{}).Where("id = ?", withdrawalID).Updates(map[string]interface{}{
		"tx_hash_out":   txHash,
		"last_tx_error": "provider_connection_error",
	}).Error
}

func (s *Store) MarkWithdrawalStuck(withdrawalID string, lastErr string) error {
	return s.write.Model(&Withdrawal{}).Where("id = ?", withdrawalID).Update("last_tx_error", lastErr).Error
}

// --- Notifier bookkeeping (spec.md §4.9) ---

func (s *Store) MarkDepositNotified(depositID string) error {
	return s.write.Model(&Deposit{}).Where("id = ?", depositID).Updates(map[string]interface{}{
		"is_notified": true, "locked_by_callback": false,
	}).Error
}

func (s *Store) RescheduleDepositCallback(depositID string, period time.Duration) error {
	return s.write.Model(&Deposit{}).Where("id = ?", depositID).Updates(map[string]interface{}{
		"locked_by_callback": false, "time_to_callback": time.Now().Add(period), "callback_period": int(period.Seconds()),
	}).Error
}

func (s *Store) MarkWithdrawalNotified(withdrawalID string) error {
	return s.write.Model(&Withdrawal{}).Where("id = ?", withdrawalID).Updates(map[string]interface{}{
		"is_notified": true, "locked_by_callback": false,
	}).Error
}

func (s *Store) RescheduleWithdrawalCallback(withdrawalID string, period time.Duration) error {
	return s.write.Model(&Withdrawal{}).Where("id = ?", withdrawalID).Updates(map[string]interface{}{
		"locked_by_callback": false, "time_to_callback": time.Now().Add(period), "callback_period": int(period.Seconds()),
	}).Error
}
