package store

import (
	"time"

	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/mysql"
	"github.com/pkg/errors"

	"github.com/procnet/custodian/internal/common/log"
)

var logger = log.New("store")

// Store wraps separate write/read gorm connections, per
// PROC_HANDLER_WRITE_DSN / PROC_HANDLER_READ_DSN (spec.md §6) — locking
// reads always go to the write connection (a read replica cannot take row
// locks visible to the primary), plain projection reads may use either.
type Store struct {
	write *gorm.DB
	read  *gorm.DB
}

func Open(writeDSN, readDSN string) (*Store, error) {
	w, err := gorm.Open("mysql", writeDSN)
	if err != nil {
		return nil, errors.Wrap(err, "opening write connection")
	}
	r := w
	if readDSN != "" && readDSN != writeDSN {
		r, err = gorm.Open("mysql", readDSN)
		if err != nil {
			return nil, errors.Wrap(err, "opening read connection")
		}
	}
	return &Store{write: w, read: r}, nil
}

func (s *Store) Close() {
	s.write.Close()
	if s.read != s.write {
		s.read.Close()
	}
}

func (s *Store) Migrate() error {
	return AutoMigrate(s.write)
}

// ReleaseStaleHandlerLocks is the startup safety sweep of spec.md §5:
// belt-and-braces recovery for rows left locked by a process that died
// mid-transaction without its DB connection closing cleanly. Preferred
// recovery is (a) the pessimistic lock releasing on connection close;
// this is mechanism (b), run once at startup.
func (s *Store) ReleaseStaleHandlerLocks() error {
	now := time.Now()
	if err := s.write.Model(&Deposit{}).
		Where("locked_by_tx_handler = ? AND time_to_tx_handler < ?", true, now).
		Update("locked_by_tx_handler", false).Error; err != nil {
		return errors.Wrap(err, "releasing stale deposit locks")
	}
	if err := s.write.Model(&UserAddress{}).
		Where("locked_by_tx = ?", true).
		Where("id NOT IN (SELECT address_id FROM deposits WHERE locked_by_tx_handler = ?)", true).
		Update("locked_by_tx", false).Error; err != nil {
		return errors.Wrap(err, "releasing stale user-address locks")
	}
	if err := s.write.Model(&Deposit{}).
		Where("locked_by_callback = ? AND time_to_callback < ?", true, now).
		Update("locked_by_callback", false).Error; err != nil {
		return errors.Wrap(err, "releasing stale deposit callback locks")
	}
	if err := s.write.Model(&Withdrawal{}).
		Where("locked_by_callback = ? AND time_to_callback < ?", true, now).
		Update("locked_by_callback", false).Error; err != nil {
		return errors.Wrap(err, "releasing stale withdrawal callback locks")
	}
	return nil
}

// --- Coins ---

func (s *Store) UpsertCoins(coins []Coin) error {
	tx := s.write.Begin()
	for _, c := range coins {
		if err := tx.Save(&c).Error; err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit().Error
}

func (s *Store) ActiveCoins() ([]Coin, error) {
	var coins []Coin
	err := s.read.Where("is_active = ?", true).Find(&coins).Error
	return coins, err
}

// --- Blocks ---

// InsertLastHandledBlock enforces invariant 6 (strictly monotone insert):
// it fails if n already exists, via the primary key constraint.
func (s *Store) InsertLastHandledBlock(n uint64) error {
	return s.write.Create(&Block{ID: n}).Error
}

func (s *Store) GetLastHandledBlock() (*uint64, error) {
	var b Block
	err := s.read.Order("id desc").First(&b).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b.ID, nil
}

func (s *Store) GetHandledBlocks(limit, offset int) ([]Block, error) {
	var blocks []Block
	err := s.read.Order("id desc").Limit(limit).Offset(offset).Find(&blocks).Error
	return blocks, err
}

// --- Users / addresses ---

func (s *Store) CreateUser(externalID string, role int) (*User, error) {
	u := &User{ExternalID: externalID, Role: role}
	if err := s.write.Create(u).Error; err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Store) FindUserByExternalID(externalID string) (*User, error) {
	var u User
	err := s.read.Where("external_id = ?", externalID).First(&u).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	return &u, err
}

func (s *Store) CreateUserAddress(ua *UserAddress) error {
	return s.write.Create(ua).Error
}

// UsersAddresses is the projection feeder for Shared State's address
// indexes (spec.md §4.4): every address for users holding any of roles.
func (s *Store) UsersAddresses(roles []int, limit int) ([]UserAddress, error) {
	q := s.read.Model(&UserAddress{}).
		Joins("JOIN users ON users.id = user_address.user_id").
		Where("users.role IN (?)", roles)
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []UserAddress
	err := q.Find(&out).Error
	return out, err
}

// AddressWithRole pairs a UserAddress with its owning User's Role, for
// refresh jobs that need to branch on SADMIN vs APPROVE.
type AddressWithRole struct {
	UserAddress
	Role int
}

func (s *Store) UsersAddressesWithRole(roles []int) ([]AddressWithRole, error) {
	rows, err := s.read.Raw(`
		SELECT ua.*, u.role AS role FROM user_address ua
		JOIN users u ON u.id = ua.user_id
		WHERE u.role IN (?)
	`, roles).Rows()
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AddressWithRole
	for rows.Next() {
		var row AddressWithRole
		if err := s.read.ScanRows(rows, &row); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, nil
}

func (s *Store) AllAccounts() ([]UserAddress, error) {
	var out []UserAddress
	err := s.read.Find(&out).Error
	return out, err
}

func (s *Store) AddressByID(id int64) (*UserAddress, error) {
	var ua UserAddress
	err := s.read.Where("id = ?", id).First(&ua).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	return &ua, err
}

func (s *Store) UnlockUserAddress(id int64) error {
	return s.write.Model(&UserAddress{}).Where("id = ?", id).Update("locked_by_tx", false).Error
}

// --- Balances ---

func (s *Store) UpsertBalance(addressID int64, coin string, balance string) error {
	return s.write.Exec(`
		INSERT INTO balances (address_id, coin, balance, updated_at)
		VALUES (?, ?, ?, NOW())
		ON DUPLICATE KEY UPDATE balance = VALUES(balance), updated_at = NOW()
	`, addressID, coin, balance).Error
}

func (s *Store) BalanceOf(addressID int64, coin string) (*Balance, error) {
	var b Balance
	err := s.read.Where("address_id = ? AND coin = ?", addressID, coin).First(&b).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	return &b, err
}

// --- Deposit / withdrawal lookups (admin API) ---

func (s *Store) DepositsForUser(userID int64, limit, offset int) ([]Deposit, error) {
	var out []Deposit
	err := s.read.Model(&Deposit{}).
		Joins("JOIN user_address ua ON ua.id = deposits.address_id").
		Where("ua.user_id = ?", userID).
		Order("deposits.created_at desc").Limit(limit).Offset(offset).
		Find(&out).Error
	return out, err
}

// ExternalIDForAddress resolves a deposit's address_id to the owning
// User's external_id, the identity the notifier forwards to the Dispatcher
// (spec.md §6's callback envelope carries user_id, not an internal row id).
func (s *Store) ExternalIDForAddress(addressID int64) (string, error) {
	var externalID string
	err := s.read.Raw(`
		SELECT u.external_id FROM user_address ua
		JOIN users u ON u.id = ua.user_id
		WHERE ua.id = ?
	`, addressID).Row().Scan(&externalID)
	if err == gorm.ErrRecordNotFound {
		return "", nil
	}
	return externalID, err
}

func (s *Store) ExternalIDForUser(userID int64) (string, error) {
	var u User
	err := s.read.Where("id = ?", userID).First(&u).Error
	if err == gorm.ErrRecordNotFound {
		return "", nil
	}
	return u.ExternalID, err
}

func (s *Store) WithdrawalByID(id string) (*Withdrawal, error) {
	var w Withdrawal
	err := s.read.Where("id = ?", id).First(&w).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	return &w, err
}
