// Package state is the Shared state component of spec.md §4.4: a set of
// in-memory caches refreshed on a timer by C10's refresh jobs and read
// without locking by the scanner and conductors. Every refresh publishes a
// brand new snapshot rather than mutating one in place, so readers never
// observe a torn update (design note §9's "publish a new snapshot"
// guidance).
package state

import (
	"sync/atomic"

	set "gopkg.in/fatih/set.v0"
)

// snapshot is the immutable value swapped under State.current. Every field
// is read-only once published; refreshers build a new snapshot and store
// it rather than editing fields in place.
type snapshot struct {
	userAddresses    *set.Set // lowercase hex addresses held by USER role accounts
	handlerAddresses *set.Set // lowercase hex addresses held by SADMIN/APPROVE accounts
	addressIDs       map[string]int64
	gasPrice         string   // decimal wei string, "" until the first successful refresh
	ready            bool     // true once gasPrice has been populated at least once
	lastHandledBlock uint64
	trustedBlock     uint64 // chain head - confirmation depth
	catchUpMode      bool   // scanner is more than one block behind trustedBlock
}

// State holds the current snapshot behind an atomic pointer (klaytn's
// blockchain.go swaps *types.Block the same way on every new head, rather
// than guarding a struct with a mutex).
type State struct {
	current atomic.Value // holds *snapshot
}

func New() *State {
	s := &State{}
	s.current.Store(&snapshot{
		userAddresses:    set.New(),
		handlerAddresses: set.New(),
		addressIDs:       map[string]int64{},
	})
	return s
}

func (s *State) snap() *snapshot {
	return s.current.Load().(*snapshot)
}

// IsUserAddress / IsHandlerAddress back the scanner's per-log classification
// (spec.md §4.5 step 5): O(1) membership on the current snapshot.
func (s *State) IsUserAddress(addr string) bool {
	return s.snap().userAddresses.Has(addr)
}

func (s *State) IsHandlerAddress(addr string) bool {
	return s.snap().handlerAddresses.Has(addr)
}

// AddressEntry pairs a normalized address with the UserAddress row id it
// resolves to, for the account refresh job's id index.
type AddressEntry struct {
	Address string
	ID      int64
}

// AddressID resolves a normalized address to its UserAddress row id, used
// by the scanner to populate Deposit.AddressID.
func (s *State) AddressID(normalizedAddress string) (int64, bool) {
	id, ok := s.snap().addressIDs[normalizedAddress]
	return id, ok
}

// PublishAddresses swaps in a freshly loaded user/handler address universe
// (spec.md §4.10's account refresh job).
func (s *State) PublishAddresses(userAddrs []AddressEntry, handlerAddrs []string) {
	prev := s.snap()
	next := *prev
	next.userAddresses = set.New()
	next.addressIDs = make(map[string]int64, len(userAddrs))
	for _, a := range userAddrs {
		next.userAddresses.Add(a.Address)
		next.addressIDs[a.Address] = a.ID
	}
	next.handlerAddresses = set.New()
	for _, a := range handlerAddrs {
		next.handlerAddresses.Add(a)
	}
	s.current.Store(&next)
}

// GasPrice returns the last refreshed gas price and whether it has ever
// been populated; readiness gates deposit/withdrawal conductors per
// spec.md §4.10 ("withheld until the first successful gas price fetch").
func (s *State) GasPrice() (price string, ready bool) {
	snap := s.snap()
	return snap.gasPrice, snap.ready
}

func (s *State) PublishGasPrice(price string) {
	prev := s.snap()
	next := *prev
	next.gasPrice = price
	next.ready = true
	s.current.Store(&next)
}

// Ready mirrors the /readiness endpoint's definition: gas price has been
// fetched at least once.
func (s *State) Ready() bool {
	return s.snap().ready
}

func (s *State) BlockProgress() (last, trusted uint64, catchUp bool) {
	snap := s.snap()
	return snap.lastHandledBlock, snap.trustedBlock, snap.catchUpMode
}

func (s *State) PublishBlockProgress(last, trusted uint64, catchUp bool) {
	prev := s.snap()
	next := *prev
	next.lastHandledBlock = last
	next.trustedBlock = trusted
	next.catchUpMode = catchUp
	s.current.Store(&next)
}
