// Package store is the transactional persistence layer of spec.md §4.3:
// gorm over MySQL, with every "get and lock" query issued as raw SQL using
// SELECT ... FOR UPDATE SKIP LOCKED so N conductor processes never hand the
// same row to two executors (spec.md invariant 3/4, §5's shared-resource
// policy).
package store

import (
	"time"

	"github.com/jinzhu/gorm"
)

// Coin mirrors spec.md §3's Coin entity. ContractAddress is the primary
// key; the reserved literal "native" denotes the chain's base asset.
type Coin struct {
	ContractAddress string `gorm:"primary_key;column:contract_address"`
	Name            string
	Decimals        int
	MinAmount       int64
	FeeAmount       int64
	CurrentRate     float64
	IsActive        bool
}

func (Coin) TableName() string { return "coins" }

// User is an opaque external id with a Role (spec.md §3).
type User struct {
	ID        int64 `gorm:"primary_key"`
	ExternalID string `gorm:"unique_index"`
	Role      int
	CreatedAt time.Time
}

func (User) TableName() string { return "users" }

// UserAddress is the surjective User -> on-chain-address mapping. UserID
// references the owning User; AdminID and ApproveID hold the user_address
// ids of the SADMIN and APPROVE addresses this address is swept through.
type UserAddress struct {
	ID          int64 `gorm:"primary_key"`
	UserID      int64 `gorm:"index"`
	Public      string `gorm:"unique_index"`
	Private     []byte // AES-EAX ciphertext, internal/common/secrets.Box
	AdminID     *int64
	ApproveID   *int64
	LockedByTx  bool
	CreatedAt   time.Time
}

func (UserAddress) TableName() string { return "user_address" }

// Deposit mirrors spec.md §3. TxHashIn is globally unique (invariant 1);
// TxHashOut has its own unique index within deposits; no check in the
// store spans deposits and withdrawals (MySQL cannot express a
// cross-table unique constraint).
type Deposit struct {
	ID                 string `gorm:"primary_key"` // uuid, satori/go.uuid
	AddressID          int64  `gorm:"index"`
	ContractAddress    string
	TxHashIn           string `gorm:"unique_index"`
	Amount             string // big.Int decimal string, base units
	QuoteAmount        string // big.Float decimal string
	TxHashOut          *string `gorm:"unique_index"`
	LockedByTxHandler  bool
	LockedByCallback   bool
	IsNotified         bool
	TimeToTxHandler    time.Time
	TxHandlerPeriod    int // seconds, linear backoff state
	TimeToCallback     time.Time
	CallbackPeriod     int
	LastTxError        string // last classified error kind, for operator visibility
	CreatedAt          time.Time
}

func (Deposit) TableName() string { return "deposits" }

// Withdrawal mirrors spec.md §3.
type Withdrawal struct {
	ID                string `gorm:"primary_key"`
	UserID            int64  `gorm:"index"`
	ContractAddress   string
	WithdrawalAddress string
	Amount            string
	QuoteAmount       string
	UserCurrency      string
	AdminAddrID       *int64
	TxHashOut         *string `gorm:"unique_index"`
	LockedByCallback  bool
	IsNotified        bool
	TimeToCallback    time.Time
	CallbackPeriod    int
	TimeToTxHandler   time.Time
	TxHandlerPeriod   int
	LastTxError       string
	CreatedAt         time.Time
}

func (Withdrawal) TableName() string { return "withdrawals" }

// Balance is an upsert-on-refresh projection of on-chain balances for
// SADMIN (and APPROVE, native-only) addresses, spec.md §4.10.
type Balance struct {
	AddressID int64  `gorm:"primary_key;column:address_id"`
	Coin      string `gorm:"primary_key;column:coin"`
	Balance   string
	UpdatedAt time.Time
}

func (Balance) TableName() string { return "balances" }

// Block tracks the scanner's progress; the largest id is last_handled_block
// (spec.md §3, invariant 6).
type Block struct {
	ID               uint64 `gorm:"primary_key"`
	DepositCount     int
	WithdrawalCount  int
	CreatedAt        time.Time
}

func (Block) TableName() string { return "blocks" }

// AutoMigrate creates/updates every table and the composite unique index
// gorm's struct tags can't express on their own (balances(address_id,
// coin)).
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&Coin{}, &User{}, &UserAddress{}, &Deposit{}, &Withdrawal{}, &Balance{}, &Block{}).Error; err != nil {
		return err
	}
	return db.Model(&Balance{}).AddUniqueIndex("idx_balances_address_coin", "address_id", "coin").Error
}
