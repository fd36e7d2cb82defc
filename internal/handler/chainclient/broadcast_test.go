package chainclient

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSubmitter struct {
	sendHash string
	sendErr  error

	txAfter int // GetTransactionByHash calls before returning a tx
	minedAt int // GetTransactionByHash calls before the tx carries a block number
	calls   int
	receipt *Receipt
}

func (f *fakeSubmitter) SendRawTransaction(ctx context.Context, signedHex string) (string, error) {
	return f.sendHash, f.sendErr
}

func (f *fakeSubmitter) GetTransactionByHash(ctx context.Context, hash string) (*Tx, error) {
	f.calls++
	if f.calls < f.txAfter {
		return nil, nil
	}
	tx := &Tx{Hash: hash}
	if f.calls >= f.minedAt {
		n := uint64(10)
		tx.BlockNumber = &n
	}
	return tx, nil
}

func (f *fakeSubmitter) GetTransactionReceipt(ctx context.Context, hash string) (*Receipt, error) {
	return f.receipt, nil
}

var fastCfg = broadcastWaitConfig{
	mempoolTimeout:  200 * time.Millisecond,
	mempoolInterval: 5 * time.Millisecond,
	minedTimeout:    200 * time.Millisecond,
	minedInterval:   5 * time.Millisecond,
	receiptTimeout:  200 * time.Millisecond,
	receiptInterval: 5 * time.Millisecond,
}

func TestBroadcastAndWaitSuccess(t *testing.T) {
	sub := &fakeSubmitter{
		sendHash: "0xhash",
		txAfter:  1,
		minedAt:  1,
		receipt:  &Receipt{TxHash: "0xhash", Status: 1},
	}
	hash, err := broadcastAndWait(context.Background(), sub, "0xsigned", "", fastCfg)
	require.NoError(t, err)
	assert.Equal(t, "0xhash", hash)
}

func TestBroadcastAndWaitSubmitNetworkError(t *testing.T) {
	sub := &fakeSubmitter{sendHash: "0xhash", sendErr: errors.New("conn reset")}
	_, err := broadcastAndWait(context.Background(), sub, "0xsigned", "", fastCfg)
	var connErr *ProviderConnectionErrorOnTx
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, "0xhash", connErr.Hash)
}

func TestBroadcastAndWaitTransactionFailed(t *testing.T) {
	sub := &fakeSubmitter{
		sendHash: "0xhash",
		txAfter:  1,
		minedAt:  1,
		receipt:  &Receipt{TxHash: "0xhash", Status: 0},
	}
	_, err := broadcastAndWait(context.Background(), sub, "0xsigned", "", fastCfg)
	var failedErr *TransactionFailedError
	assert.ErrorAs(t, err, &failedErr)
}

func TestBroadcastAndWaitUsesKnownHashWithoutResubmitting(t *testing.T) {
	sub := &fakeSubmitter{
		sendHash: "should-not-be-used",
		txAfter:  1,
		minedAt:  1,
		receipt:  &Receipt{TxHash: "0xknown", Status: 1},
	}
	hash, err := broadcastAndWait(context.Background(), sub, "0xsigned", "0xknown", fastCfg)
	require.NoError(t, err)
	assert.Equal(t, "0xknown", hash)
}

func TestPollToTerminalNeverMinedIsStuck(t *testing.T) {
	sub := &fakeSubmitter{txAfter: 1, minedAt: 1000000}
	_, err := pollToTerminal(context.Background(), sub, "0xhash", fastCfg)
	var stuckErr *StuckTransactionError
	assert.ErrorAs(t, err, &stuckErr)
}

func TestPollToTerminalNeverFoundInMempool(t *testing.T) {
	sub := &fakeSubmitter{txAfter: 1000000}
	_, err := pollToTerminal(context.Background(), sub, "0xhash", fastCfg)
	var notFoundErr *TransactionNotFoundError
	assert.ErrorAs(t, err, &notFoundErr)
}
