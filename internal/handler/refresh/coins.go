// Package refresh implements the periodic background jobs of spec.md
// §4.10: coin rate aggregation, gas price, admin/approve balances, the
// in-memory account index, and the explorer/telemetry catch-up flag. Each
// job is registered with internal/common/scheduler independently, so a
// slow rate provider never blocks the gas price refresh.
package refresh

import (
	"context"
	"sync"

	"github.com/procnet/custodian/internal/common/log"
	"github.com/procnet/custodian/internal/handler/store"
)

var logger = log.New("refresh")

// RateSource is an external price feed (spec.md §4.10's "two tickers"
// design: a fast short-interval source and a slow fallback averaged in).
type RateSource interface {
	Rate(ctx context.Context, coinName string) (float64, error)
}

// CoinRefresher maintains the in-memory coin index the scanner, conductors,
// and API handlers read from. Every tick queries both configured sources
// and aggregates them (spec.md §4.10: "fetch tickers from two independent
// public sources, aggregate"): the mean of both when both respond,
// whichever one responds when only one does. The configured quote coin
// itself is never fetched; its rate is forced to 1 (spec.md §4.10: "for
// the quote coin itself, force 1").
type CoinRefresher struct {
	store             *store.Store
	primary, fallback RateSource
	quoteCoinAddress  string

	mu    sync.RWMutex
	index map[string]coinEntry
}

type coinEntry struct {
	decimals int
	rate     float64
}

func NewCoinRefresher(st *store.Store, primary, fallback RateSource, quoteCoinAddress string) *CoinRefresher {
	return &CoinRefresher{store: st, primary: primary, fallback: fallback, quoteCoinAddress: quoteCoinAddress, index: map[string]coinEntry{}}
}

// Lookup implements scanner.CoinIndex and conductor.WithdrawalCoinIndex.
func (r *CoinRefresher) Lookup(contractAddress string) (decimals int, rate float64, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.index[contractAddress]
	return e.decimals, e.rate, ok
}

func (r *CoinRefresher) Decimals(contractAddress string) (int, bool) {
	d, _, ok := r.Lookup(contractAddress)
	return d, ok
}

// Tick refreshes every active coin's rate, aggregating both sources.
func (r *CoinRefresher) Tick(ctx context.Context) error {
	coins, err := r.store.ActiveCoins()
	if err != nil {
		return err
	}
	next := make(map[string]coinEntry, len(coins))
	r.mu.RLock()
	for k, v := range r.index {
		next[k] = v
	}
	r.mu.RUnlock()

	for _, c := range coins {
		var rate float64
		if c.ContractAddress == r.quoteCoinAddress {
			rate = 1
		} else {
			var ok bool
			rate, ok = r.aggregateRate(ctx, c.Name)
			if !ok {
				logger.Warn("rate fetch failed on both sources", "coin", c.Name)
				continue
			}
		}
		next[c.ContractAddress] = coinEntry{decimals: c.Decimals, rate: rate}
		if err := r.store.UpsertCoins([]store.Coin{{
			ContractAddress: c.ContractAddress, Name: c.Name, Decimals: c.Decimals,
			MinAmount: c.MinAmount, FeeAmount: c.FeeAmount, CurrentRate: rate, IsActive: c.IsActive,
		}}); err != nil {
			logger.Error("persisting refreshed rate", "coin", c.Name, "err", err)
		}
	}

	r.mu.Lock()
	r.index = next
	r.mu.Unlock()
	return nil
}

// aggregateRate combines the primary and fallback sources: the mean when
// both respond, whichever one responds when only one does.
func (r *CoinRefresher) aggregateRate(ctx context.Context, coinName string) (float64, bool) {
	primary, primaryErr := r.primary.Rate(ctx, coinName)
	fallback, fallbackErr := r.fallback.Rate(ctx, coinName)

	switch {
	case primaryErr == nil && fallbackErr == nil:
		return (primary + fallback) / 2, true
	case primaryErr == nil:
		return primary, true
	case fallbackErr == nil:
		return fallback, true
	default:
		return 0, false
	}
}
