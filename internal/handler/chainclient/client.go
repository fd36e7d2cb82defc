// Package chainclient is the typed façade over one chain family's RPC
// surface (spec.md §4.2). One process only ever talks to a single chain
// family (EVM xor TVM, per spec.md §1's "one process per supported
// network"), so Client is an interface with two concrete implementations
// (evm.go, tvm.go) chosen at startup by config.NetworkKind, rather than
// the Python source's two near-duplicate web3_client trees.
package chainclient

import (
	"context"
	"math/big"
)

type Log struct {
	Address     string
	Topics      []string
	Data        []byte
	TxHash      string
	BlockNumber uint64
	Removed     bool
}

type Tx struct {
	Hash        string
	From        string
	To          string
	Value       *big.Int
	Input       []byte
	BlockNumber *uint64
}

type Block struct {
	Number       uint64
	Hash         string
	Transactions []Tx
}

type Receipt struct {
	TxHash  string
	Status  uint64 // 1 = success
	GasUsed uint64
	BlockNo uint64
}

// TransferEventTopic is the fixed ERC20/TRC20 Transfer(address,address,uint256)
// log topic, the same on every EVM/TVM chain since it is keccak256 of the
// event signature.
const TransferEventTopic = "0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef"

// Client is the per-network chain façade every scanner/conductor depends
// on. All methods are suspension points (spec.md §5) and take a Context
// so callers can bound them.
type Client interface {
	LatestBlockNumber(ctx context.Context) (uint64, error)
	GetBlockByNumber(ctx context.Context, n uint64) (*Block, error)
	GetLogs(ctx context.Context, fromBlock, toBlock uint64, topic string) ([]Log, error)
	GetTransactionReceipt(ctx context.Context, hash string) (*Receipt, error)
	GetTransactionByHash(ctx context.Context, hash string) (*Tx, error)
	GetAccountBalance(ctx context.Context, addr string) (*big.Int, error)
	GetTransactionCount(ctx context.Context, addr string) (uint64, error)
	GasPrice(ctx context.Context) (*big.Int, error)
	SendRawTransaction(ctx context.Context, signedHex string) (string, error)

	// SendNative signs and broadcasts a native transfer, returning the
	// terminal tx hash after broadcast_and_wait's lifecycle (spec.md §4.2).
	SendNative(ctx context.Context, to string, amount *big.Int, signerKey []byte, gasPrice *big.Int, gasLimit uint64) (string, error)

	// Token contract helpers (ERC20/TRC20, spec.md §4.2).
	Allowance(ctx context.Context, token, owner, spender string) (*big.Int, error)
	BalanceOf(ctx context.Context, token, owner string) (*big.Int, error)
	Approve(ctx context.Context, token, spender string, amount *big.Int, signerKey []byte, gasPrice *big.Int) (string, error)
	TransferFrom(ctx context.Context, token, from, to string, amount *big.Int, signerKey []byte, gasPrice *big.Int) (string, error)
	TokenTransfer(ctx context.Context, token, to string, amount *big.Int, signerKey []byte, gasPrice *big.Int) (string, error)

	// NormalizeAddress returns the chain's canonical form used as map keys
	// in shared state (lowercase hex for EVM, base58/hex for TVM).
	NormalizeAddress(addr string) string

	// DeriveAddress returns the on-chain address for a raw secp256k1
	// private key, in this chain family's own wire form (bootstrap's
	// account-seeding step).
	DeriveAddress(key []byte) (string, error)

	// EstimatedNativeFee returns the fee of a plain native transfer:
	// gas_price*21000 on EVM, a fixed constant on TVM (spec.md §4.6/§4.7).
	EstimatedNativeFee(ctx context.Context) (*big.Int, error)
	EstimatedTokenSweepFundingFee(ctx context.Context) (*big.Int, error)
}

// ResultPoller is implemented by clients that support the "poll an
// already-submitted hash to a terminal state" path used when a retry finds
// tx_hash_out already set (spec.md §4.6 step 3).
type ResultPoller interface {
	Result(ctx context.Context, hash string) (string, error)
}
