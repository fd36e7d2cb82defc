package store

import (
	"time"

	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/mysql"
	"github.com/pkg/errors"
)

// Store wraps the Dispatcher's write/read gorm connections, the same
// shape as the Handler's internal/handler/store.Store.
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

func (s *Store) Migrate() error { return AutoMigrate(s.write) }

// ReleaseStaleCallbackLocks is the Dispatcher's analogue of the Handler's
// startup sweep (spec.md §5, invariant P4): a callback left locked by a
// process that died mid-delivery is freed on the next process's boot.
func (s *Store) ReleaseStaleCallbackLocks() error {
	return s.write.Model(&Callback{}).
		Where("locked_by_callback = ?", true).
		Update("locked_by_callback", false).Error
}

// --- Customers ---

func (s *Store) CreateCustomer(c *Customer) error {
	return s.write.Create(c).Error
}

func (s *Store) FindCustomerByAPIKey(apiKey string) (*Customer, error) {
	var c Customer
	err := s.read.Where("api_key = ?", apiKey).First(&c).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	return &c, err
}

func (s *Store) CustomerByID(id int64) (*Customer, error) {
	var c Customer
	err := s.read.Where("id = ?", id).First(&c).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	return &c, err
}

func (s *Store) FindCustomerByExternalID(externalID string) (*Customer, error) {
	var c Customer
	err := s.read.Where("external_id = ?", externalID).First(&c).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	return &c, err
}

// --- Users ---

func (s *Store) CreateUser(u *User) error {
	return s.write.Create(u).Error
}

func (s *Store) FindUser(customerID int64, networkName, externalID string) (*User, error) {
	var u User
	err := s.read.Where("customer_id = ? AND network_name = ? AND external_id = ?", customerID, networkName, externalID).First(&u).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	return &u, err
}

// --- Network handlers ---

func (s *Store) UpsertNetworkHandler(h *NetworkHandler) error {
	return s.write.Save(h).Error
}

func (s *Store) NetworkHandlerByName(name string) (*NetworkHandler, error) {
	var h NetworkHandler
	err := s.read.Where("network_name = ?", name).First(&h).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	return &h, err
}

func (s *Store) AllNetworkHandlers() ([]NetworkHandler, error) {
	var out []NetworkHandler
	err := s.read.Order("network_name").Find(&out).Error
	return out, err
}

// --- Callbacks ---

// EnqueueCallback inserts the outbox row the Handler asked the Dispatcher
// to deliver. A duplicate ID (the Handler retrying a known callback_id
// after a connection error) is not an error: it is the same idempotence
// guarantee P6 gives the Handler's own callback rows, so a unique-key
// violation here is swallowed rather than surfaced as 500.
func (s *Store) EnqueueCallback(cb *Callback) error {
	err := s.write.Create(cb).Error
	if err != nil && isDuplicateKeyError(err) {
		return nil
	}
	return err
}

// GetAndLockUnnotifiedCallbacks mirrors the Handler's own callback-row
// locking query (spec.md §5's "symmetric" callback worker).
func (s *Store) GetAndLockUnnotifiedCallbacks(limit int) ([]Callback, error) {
	var out []Callback
	err := s.transact(func(tx *gorm.DB) error {
		rows, err := tx.Raw(`
			SELECT * FROM dispatcher_callbacks
			WHERE is_notified = 0 AND locked_by_callback = 0 AND time_to_callback < ?
			LIMIT ?
			FOR UPDATE SKIP LOCKED
		`, time.Now(), limit).Rows()
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var cb Callback
			if err := tx.ScanRows(rows, &cb); err != nil {
				return err
			}
			out = append(out, cb)
		}
		for _, cb := range out {
			if err := tx.Model(&Callback{}).Where("id = ?", cb.ID).Update("locked_by_callback", true).Error; err != nil {
				return err
			}
		}
		return nil
	})
	return out, err
}

func (s *Store) MarkCallbackNotified(id string) error {
	return s.write.Model(&Callback{}).Where("id = ?", id).Updates(map[string]interface{}{
		"is_notified":        true,
		"locked_by_callback": false,
	}).Error
}

func (s *Store) RescheduleCallback(id string, period time.Duration, lastErr string) error {
	return s.write.Model(&Callback{}).Where("id = ?", id).Updates(map[string]interface{}{
		"locked_by_callback": false,
		"time_to_callback":   time.Now().Add(period),
		"callback_period":    int(period.Seconds()),
		"last_error":         lastErr,
	}).Error
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

// isDuplicateKeyError matches MySQL's "Duplicate entry" message without
// importing the driver's error type, keeping this store.go portable across
// the mysql/sqlite dialects gorm supports.
func isDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return len(msg) >= 16 && (contains(msg, "Duplicate entry") || contains(msg, "UNIQUE constraint"))
}

func contains(haystack, needle string) bool {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}
