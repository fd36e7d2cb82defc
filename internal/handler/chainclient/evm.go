package chainclient

import (
	"context"
	"encoding/hex"
	"math/big"
	"strconv"
	"strings"

	"github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"

	"github.com/procnet/custodian/internal/handler/provider"
)

// EVMClient implements Client for EVM-family chains (Ethereum, BSC, ...)
// over plain JSON-RPC. gasLimit for native sends is fixed at 21000
// per spec.md §4.6.
type EVMClient struct {
	rpc     *rpcCaller
	chainID int64

	receiptCache *lru.Cache // hash -> *Receipt, avoids re-fetching during repeated polling
}

func NewEVMClient(pool *provider.Pool, chainID int64) *EVMClient {
	cache, _ := lru.New(4096)
	return &EVMClient{rpc: newRPCCaller(pool), chainID: chainID, receiptCache: cache}
}

func (c *EVMClient) LatestBlockNumber(ctx context.Context) (uint64, error) {
	var hexNum string
	if err := c.rpc.call(ctx, "eth_blockNumber", nil, &hexNum); err != nil {
		return 0, err
	}
	return parseHexUint64(hexNum)
}

type rpcBlock struct {
	Number       string    `json:"number"`
	Hash         string    `json:"hash"`
	Transactions []rpcTx   `json:"transactions"`
}

type rpcTx struct {
	Hash        string  `json:"hash"`
	From        string  `json:"from"`
	To          string  `json:"to"`
	Value       string  `json:"value"`
	Input       string  `json:"input"`
	BlockNumber *string `json:"blockNumber"`
}

func (c *EVMClient) GetBlockByNumber(ctx context.Context, n uint64) (*Block, error) {
	var raw rpcBlock
	hexN := "0x" + strconv.FormatUint(n, 16)
	if err := c.rpc.call(ctx, "eth_getBlockByNumber", []interface{}{hexN, true}, &raw); err != nil {
		return nil, err
	}
	block := &Block{Number: n, Hash: raw.Hash}
	for _, t := range raw.Transactions {
		value, _ := parseHexBig(t.Value)
		input, _ := hex.DecodeString(strings.TrimPrefix(t.Input, "0x"))
		var blockNo *uint64
		if t.BlockNumber != nil {
			bn, err := parseHexUint64(*t.BlockNumber)
			if err == nil {
				blockNo = &bn
			}
		}
		block.Transactions = append(block.Transactions, Tx{
			Hash: t.Hash, From: t.From, To: t.To, Value: value, Input: input, BlockNumber: blockNo,
		})
	}
	return block, nil
}

type rpcLog struct {
	Address     string   `json:"address"`
	Topics      []string `json:"topics"`
	Data        string   `json:"data"`
	TxHash      string   `json:"transactionHash"`
	BlockNumber string   `json:"blockNumber"`
	Removed     bool     `json:"removed"`
}

func (c *EVMClient) GetLogs(ctx context.Context, fromBlock, toBlock uint64, topic string) ([]Log, error) {
	filter := map[string]interface{}{
		"fromBlock": "0x" + strconv.FormatUint(fromBlock, 16),
		"toBlock":   "0x" + strconv.FormatUint(toBlock, 16),
		"topics":    []string{topic},
	}
	var raw []rpcLog
	if err := c.rpc.call(ctx, "eth_getLogs", []interface{}{filter}, &raw); err != nil {
		return nil, err
	}
	out := make([]Log, 0, len(raw))
	for _, l := range raw {
		data, _ := hex.DecodeString(strings.TrimPrefix(l.Data, "0x"))
		blockNo, _ := parseHexUint64(l.BlockNumber)
		out = append(out, Log{
			Address: strings.ToLower(l.Address), Topics: l.Topics, Data: data,
			TxHash: l.TxHash, BlockNumber: blockNo, Removed: l.Removed,
		})
	}
	return out, nil
}

type rpcReceipt struct {
	TransactionHash string `json:"transactionHash"`
	Status          string `json:"status"`
	GasUsed         string `json:"gasUsed"`
	BlockNumber     string `json:"blockNumber"`
}

func (c *EVMClient) GetTransactionReceipt(ctx context.Context, hash string) (*Receipt, error) {
	if v, ok := c.receiptCache.Get(hash); ok {
		return v.(*Receipt), nil
	}
	var raw *rpcReceipt
	if err := c.rpc.call(ctx, "eth_getTransactionReceipt", []interface{}{hash}, &raw); err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}
	status, _ := parseHexUint64(raw.Status)
	gasUsed, _ := parseHexUint64(raw.GasUsed)
	blockNo, _ := parseHexUint64(raw.BlockNumber)
	receipt := &Receipt{TxHash: raw.TransactionHash, Status: status, GasUsed: gasUsed, BlockNo: blockNo}
	c.receiptCache.Add(hash, receipt)
	return receipt, nil
}

func (c *EVMClient) GetTransactionByHash(ctx context.Context, hash string) (*Tx, error) {
	var raw *rpcTx
	if err := c.rpc.call(ctx, "eth_getTransactionByHash", []interface{}{hash}, &raw); err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}
	value, _ := parseHexBig(raw.Value)
	input, _ := hex.DecodeString(strings.TrimPrefix(raw.Input, "0x"))
	var blockNo *uint64
	if raw.BlockNumber != nil {
		bn, err := parseHexUint64(*raw.BlockNumber)
		if err == nil {
			blockNo = &bn
		}
	}
	return &Tx{Hash: raw.Hash, From: raw.From, To: raw.To, Value: value, Input: input, BlockNumber: blockNo}, nil
}

func (c *EVMClient) GetAccountBalance(ctx context.Context, addr string) (*big.Int, error) {
	var hexBal string
	if err := c.rpc.call(ctx, "eth_getBalance", []interface{}{addr, "latest"}, &hexBal); err != nil {
		return nil, err
	}
	return parseHexBig(hexBal)
}

func (c *EVMClient) GetTransactionCount(ctx context.Context, addr string) (uint64, error) {
	var hexN string
	if err := c.rpc.call(ctx, "eth_getTransactionCount", []interface{}{addr, "pending"}, &hexN); err != nil {
		return 0, err
	}
	return parseHexUint64(hexN)
}

func (c *EVMClient) GasPrice(ctx context.Context) (*big.Int, error) {
	var hexPrice string
	if err := c.rpc.call(ctx, "eth_gasPrice", nil, &hexPrice); err != nil {
		return nil, err
	}
	return parseHexBig(hexPrice)
}

func (c *EVMClient) SendRawTransaction(ctx context.Context, signedHex string) (string, error) {
	var hash string
	if err := c.rpc.call(ctx, "eth_sendRawTransaction", []interface{}{signedHex}, &hash); err != nil {
		return "", err
	}
	return hash, nil
}

func (c *EVMClient) Result(ctx context.Context, hash string) (string, error) {
	return pollToTerminal(ctx, c, hash, defaultWaitConfig)
}

func (c *EVMClient) SendNative(ctx context.Context, to string, amount *big.Int, signerKey []byte, gasPrice *big.Int, gasLimit uint64) (string, error) {
	from, err := addressFromPrivateKey(signerKey)
	if err != nil {
		return "", err
	}
	nonce, err := c.GetTransactionCount(ctx, from)
	if err != nil {
		return "", err
	}
	toBytes, err := hex.DecodeString(strings.TrimPrefix(to, "0x"))
	if err != nil {
		return "", errors.Wrap(err, "decoding recipient address")
	}
	signed, err := signLegacyTx(legacyTx{
		Nonce: nonce, GasPrice: gasPrice, GasLimit: gasLimit, To: toBytes, Value: amount,
	}, signerKey, c.chainID)
	if err != nil {
		return "", err
	}
	return broadcastAndWait(ctx, c, signed, "", defaultWaitConfig)
}

func (c *EVMClient) callContract(ctx context.Context, to string, data []byte) ([]byte, error) {
	call := map[string]interface{}{"to": to, "data": "0x" + hex.EncodeToString(data)}
	var hexResult string
	if err := c.rpc.call(ctx, "eth_call", []interface{}{call, "latest"}, &hexResult); err != nil {
		return nil, err
	}
	return hex.DecodeString(strings.TrimPrefix(hexResult, "0x"))
}

func (c *EVMClient) Allowance(ctx context.Context, token, owner, spender string) (*big.Int, error) {
	res, err := c.callContract(ctx, token, callAllowance(owner, spender))
	if err != nil {
		return nil, err
	}
	return decodeUint256(res), nil
}

func (c *EVMClient) BalanceOf(ctx context.Context, token, owner string) (*big.Int, error) {
	res, err := c.callContract(ctx, token, callBalanceOf(owner))
	if err != nil {
		return nil, err
	}
	return decodeUint256(res), nil
}

func (c *EVMClient) sendContractCall(ctx context.Context, token string, data []byte, signerKey []byte, gasPrice *big.Int) (string, error) {
	from, err := addressFromPrivateKey(signerKey)
	if err != nil {
		return "", err
	}
	nonce, err := c.GetTransactionCount(ctx, from)
	if err != nil {
		return "", err
	}
	toBytes, err := hex.DecodeString(strings.TrimPrefix(token, "0x"))
	if err != nil {
		return "", errors.Wrap(err, "decoding token address")
	}
	signed, err := signLegacyTx(legacyTx{
		Nonce: nonce, GasPrice: gasPrice, GasLimit: 120000, To: toBytes, Value: big.NewInt(0), Data: data,
	}, signerKey, c.chainID)
	if err != nil {
		return "", err
	}
	return broadcastAndWait(ctx, c, signed, "", defaultWaitConfig)
}

func (c *EVMClient) Approve(ctx context.Context, token, spender string, amount *big.Int, signerKey []byte, gasPrice *big.Int) (string, error) {
	return c.sendContractCall(ctx, token, callApprove(spender, amount), signerKey, gasPrice)
}

func (c *EVMClient) TransferFrom(ctx context.Context, token, from, to string, amount *big.Int, signerKey []byte, gasPrice *big.Int) (string, error) {
	return c.sendContractCall(ctx, token, callTransferFrom(from, to, amount), signerKey, gasPrice)
}

func (c *EVMClient) TokenTransfer(ctx context.Context, token, to string, amount *big.Int, signerKey []byte, gasPrice *big.Int) (string, error) {
	return c.sendContractCall(ctx, token, callTransfer(to, amount), signerKey, gasPrice)
}

func (c *EVMClient) NormalizeAddress(addr string) string {
	return strings.ToLower(addr)
}

func (c *EVMClient) DeriveAddress(key []byte) (string, error) {
	return addressFromPrivateKey(key)
}

// NativeGasLimit is the fixed gas limit for a plain value transfer.
const NativeGasLimit = 21000

func (c *EVMClient) EstimatedNativeFee(ctx context.Context) (*big.Int, error) {
	gp, err := c.GasPrice(ctx)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Mul(gp, big.NewInt(NativeGasLimit)), nil
}

func (c *EVMClient) EstimatedTokenSweepFundingFee(ctx context.Context) (*big.Int, error) {
	gp, err := c.GasPrice(ctx)
	if err != nil {
		return nil, err
	}
	// 100_000 gas * gasPrice * 1.3, per spec.md §4.7 step 2.
	fee := new(big.Int).Mul(gp, big.NewInt(100000))
	fee = new(big.Int).Div(new(big.Int).Mul(fee, big.NewInt(13)), big.NewInt(10))
	return fee, nil
}

func parseHexUint64(s string) (uint64, error) {
	s = strings.TrimPrefix(s, "0x")
	if s == "" {
		return 0, nil
	}
	return strconv.ParseUint(s, 16, 64)
}

func parseHexBig(s string) (*big.Int, error) {
	s = strings.TrimPrefix(s, "0x")
	if s == "" {
		return big.NewInt(0), nil
	}
	v, ok := new(big.Int).SetString(s, 16)
	if !ok {
		return nil, errors.Errorf("invalid hex integer %q", s)
	}
	return v, nil
}
