// Package store is the Dispatcher's persistence layer: customer/user
// identity, the per-network Handler registry, and the callback outbox
// table the callback worker drains (spec.md §1, SPEC_FULL.md's
// "proc_api customer/user hierarchy" supplement).
package store

import (
	"time"

	"github.com/jinzhu/gorm"
)

// Customer owns many Users across many networks and carries its own API
// credential and callback base URL, the layer the distilled spec elides
// under "owns customer/user identity".
type Customer struct {
	ID          int64  `gorm:"primary_key"`
	ExternalID  string `gorm:"unique_index"`
	APIKey      string `gorm:"unique_index"`
	CallbackURL string
	CreatedAt   time.Time
}

func (Customer) TableName() string { return "customers" }

// User is one of a Customer's end users, scoped to a single network
// Handler (a user deposits/withdraws on exactly one chain per row; a
// customer active on two chains gets two User rows sharing ExternalID).
type User struct {
	ID           int64 `gorm:"primary_key"`
	CustomerID   int64 `gorm:"index"`
	ExternalID   string
	NetworkName  string `gorm:"index"`
	Address      string
	CreatedAt    time.Time
}

func (User) TableName() string { return "dispatcher_users" }

// NetworkHandler is the registry row naming one Handler process's base URL
// and the API key the Dispatcher authenticates to it with, keyed by the
// network name customers pass on every call.
type NetworkHandler struct {
	NetworkName string `gorm:"primary_key;column:network_name"`
	BaseURL     string
	APIKey      string
	CreatedAt   time.Time
}

func (NetworkHandler) TableName() string { return "network_handlers" }

// Callback is the outbox row the callback worker drains toward a
// Customer's CallbackURL, mirroring the Handler's deposit/withdrawal
// callback rows (spec.md §5's "symmetric" callback worker).
type Callback struct {
	ID               string `gorm:"primary_key"` // "<kind>_<row_id>", from the Handler
	CustomerID       int64  `gorm:"index"`
	ExternalID       string // the customer's own external_id, stripped of Dispatcher namespacing
	Path             string
	JSONData         string // opaque payload, forwarded verbatim to the customer
	IsNotified       bool
	LockedByCallback bool
	TimeToCallback   time.Time
	CallbackPeriod   int
	LastError        string
	CreatedAt        time.Time
}

func (Callback) TableName() string { return "dispatcher_callbacks" }

func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&Customer{}, &User{}, &NetworkHandler{}, &Callback{}).Error; err != nil {
		return err
	}
	return db.Model(&User{}).AddUniqueIndex("idx_users_network_external", "network_name", "external_id").Error
}
