// Package scanner is the Block scanner component of spec.md §4.5: advances
// last_handled_block one confirmed block at a time, looking for native
// value transfers and ERC20/TRC20 Transfer logs landing on a known
// handler-owned address.
package scanner

import (
	"context"
	"math/big"
	"strings"

	uuid "github.com/satori/go.uuid"

	"github.com/procnet/custodian/common"
	"github.com/procnet/custodian/internal/common/log"
	"github.com/procnet/custodian/internal/handler/chainclient"
	"github.com/procnet/custodian/internal/handler/state"
	"github.com/procnet/custodian/internal/handler/store"
)

var logger = log.New("scanner")

// CoinIndex resolves a contract address (lowercase, "native" for the base
// asset) to its configured decimals/rate, fed by the coin refresher (C10).
type CoinIndex interface {
	Lookup(contractAddress string) (decimals int, rate float64, ok bool)
}

// AddressResolver maps a normalized on-chain address back to the
// UserAddress row id the deposit belongs to; *state.State implements it
// with the id index of its address snapshot.
type AddressResolver interface {
	AddressID(normalizedAddress string) (id int64, ok bool)
}

type Scanner struct {
	client      chainclient.Client
	store       *store.Store
	state       *state.State
	coins       CoinIndex
	addresses   AddressResolver
	blockOffset uint64 // confirmation depth, spec.md §4.5
}

func New(client chainclient.Client, st *store.Store, sh *state.State, coins CoinIndex, addresses AddressResolver, blockOffset int64) *Scanner {
	return &Scanner{client: client, store: st, state: sh, coins: coins, addresses: addresses, blockOffset: uint64(blockOffset)}
}

// Tick advances by exactly one confirmed block if one is available, per
// spec.md §4.5's "one tick, one block" design (a dropped tick under
// max_instances=1 just means the next tick does the work instead).
// It reports whether the scanner is now more than one block behind the
// trusted head (chain head minus blockOffset); the scanner publishes the
// same flag into shared state, and the caller uses it to pace the next tick.
func (s *Scanner) Tick(ctx context.Context) (catchUp bool, err error) {
	last, err := s.store.GetLastHandledBlock()
	if err != nil {
		return false, err
	}

	head, err := s.client.LatestBlockNumber(ctx)
	if err != nil {
		return false, err
	}
	trusted := uint64(0)
	if head > s.blockOffset {
		trusted = head - s.blockOffset
	}

	var next uint64
	if last == nil {
		next = trusted // spec.md §4.5: with no rows, start at the trusted head (config StartBlock is read but not applied)
	} else {
		next = *last + 1
	}

	if next > trusted {
		s.state.PublishBlockProgress(valueOr(last, 0), trusted, false)
		return false, nil // nothing confirmed yet to scan
	}

	deposits, err := s.scanBlock(ctx, next)
	if err != nil {
		return false, err
	}

	if err := s.store.AddDeposits(deposits, next, len(deposits)); err != nil {
		if !isDuplicateBlockErr(err) {
			return false, err
		}
		// A duplicate tx_hash_in aborts the batch: retry row by row,
		// skipping deposits already recorded. If the block row itself is
		// the duplicate, another instance already recorded this block.
		if err := s.store.AddDepositsSkipDuplicates(deposits, next); err != nil {
			if isDuplicateBlockErr(err) {
				return false, nil
			}
			return false, err
		}
	}

	catchUp = trusted-next > 1
	s.state.PublishBlockProgress(next, trusted, catchUp)
	return catchUp, nil
}

func valueOr(p *uint64, def uint64) uint64 {
	if p == nil {
		return def
	}
	return *p
}

func isDuplicateBlockErr(err error) bool {
	return strings.Contains(err.Error(), "Duplicate entry") || strings.Contains(err.Error(), "1062")
}

// scanBlock fetches the block body and any Transfer logs in parallel
// (spec.md §4.5 step 3's "fetched concurrently") and returns every deposit
// destined for a known USER address.
func (s *Scanner) scanBlock(ctx context.Context, n uint64) ([]store.Deposit, error) {
	type blockResult struct {
		block *chainclient.Block
		err   error
	}
	type logResult struct {
		logs []chainclient.Log
		err  error
	}
	blockCh := make(chan blockResult, 1)
	logCh := make(chan logResult, 1)

	go func() {
		b, err := s.client.GetBlockByNumber(ctx, n)
		blockCh <- blockResult{b, err}
	}()
	go func() {
		l, err := s.client.GetLogs(ctx, n, n, chainclient.TransferEventTopic)
		logCh <- logResult{l, err}
	}()

	br := <-blockCh
	if br.err != nil {
		return nil, br.err
	}
	lr := <-logCh
	if lr.err != nil {
		return nil, lr.err
	}

	var deposits []store.Deposit
	if br.block != nil {
		deposits = append(deposits, s.scanNativeTransfers(ctx, br.block.Transactions)...)
	}
	deposits = append(deposits, s.scanTokenTransfers(lr.logs)...)
	return deposits, nil
}

// scanNativeTransfers applies spec.md §4.5 step 7's three filters before
// recording a native deposit: a plain value transfer (empty Input, not a
// contract call), a sender that isn't one of the handler's own SADMIN/
// APPROVE accounts (internal funding transfers, e.g. the gas top-up in
// conductor/token.go's prepare step, must never be recorded as deposits),
// and a receipt that actually landed successfully on chain.
func (s *Scanner) scanNativeTransfers(ctx context.Context, txs []chainclient.Tx) []store.Deposit {
	var out []store.Deposit
	for _, tx := range txs {
		if tx.Value == nil || tx.Value.Sign() == 0 {
			continue
		}
		if len(tx.Input) != 0 {
			continue
		}
		to := s.client.NormalizeAddress(tx.To)
		if !s.state.IsUserAddress(to) {
			continue
		}
		if s.state.IsHandlerAddress(s.client.NormalizeAddress(tx.From)) {
			continue
		}
		receipt, err := s.client.GetTransactionReceipt(ctx, tx.Hash)
		if err != nil || receipt == nil || receipt.Status != 1 {
			continue
		}
		d, ok := s.buildDeposit(to, common.NativeCoin, tx.Hash, tx.Value)
		if ok {
			out = append(out, d)
		}
	}
	return out
}

func (s *Scanner) scanTokenTransfers(logs []chainclient.Log) []store.Deposit {
	var out []store.Deposit
	for _, l := range logs {
		if l.Removed || len(l.Topics) != 3 {
			continue // spec.md §4.5 step 5: reorg-invalidated logs are skipped, not recorded
		}
		to := s.client.NormalizeAddress(topicToAddress(l.Topics[2]))
		if !s.state.IsUserAddress(to) {
			continue
		}
		amount := new(big.Int).SetBytes(l.Data)
		d, ok := s.buildDeposit(to, s.client.NormalizeAddress(l.Address), l.TxHash, amount)
		if ok {
			out = append(out, d)
		}
	}
	return out
}

func (s *Scanner) buildDeposit(toAddress, contractAddress, txHash string, amount *big.Int) (store.Deposit, bool) {
	decimals, rate, ok := s.coins.Lookup(contractAddress)
	if !ok {
		return store.Deposit{}, false // unconfigured coin, ignored per spec.md §4.5 step 6
	}
	addressID, ok := s.addresses.AddressID(toAddress)
	if !ok {
		logger.Warn("deposit to known user address missing from id index", "address", toAddress)
		return store.Deposit{}, false
	}
	quote := common.BaseUnitsToQuote(amount, rate, decimals)
	return store.Deposit{
		ID:              uuid.NewV4().String(),
		AddressID:       addressID,
		ContractAddress: contractAddress,
		TxHashIn:        txHash,
		Amount:          amount.String(),
		QuoteAmount:     quote.Text('f', -1),
	}, true
}

// topicToAddress extracts the low 20 bytes from a 32-byte indexed address
// topic ("0x" + 24 hex zero-padding + 40 hex address chars).
func topicToAddress(topic string) string {
	h := strings.TrimPrefix(topic, "0x")
	if len(h) != 64 {
		return topic
	}
	return "0x" + h[24:]
}
