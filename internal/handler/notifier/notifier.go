// Package notifier is the callback delivery component of spec.md §4.9:
// POSTs a deposit/withdrawal's terminal state to the configured callback
// URL, with linear backoff on failure and a short-circuit on HTTP 409
// (the receiver has already processed this event, a duplicate is not an
// error).
package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/procnet/custodian/internal/common/log"
	"github.com/procnet/custodian/internal/handler/store"
)

var logger = log.New("notifier")

// callback_period starts at 60s and grows by 60s per attempt, with no cap
// beyond operator cleanup (spec.md §4.9 step 4, §5).
const (
	callbackBackoffFloor = 60 * time.Second
	callbackBackoffStep  = 60 * time.Second
)

func nextCallbackBackoff(currentSeconds int) time.Duration {
	next := time.Duration(currentSeconds)*time.Second + callbackBackoffStep
	if next < callbackBackoffFloor {
		next = callbackBackoffFloor
	}
	return next
}

type depositPayload struct {
	Type            string `json:"type"`
	DepositID       string `json:"deposit_id"`
	ContractAddress string `json:"contract_address"`
	TxHashIn        string `json:"tx_hash_in"`
	TxHashOut       string `json:"tx_hash_out"`
	Amount          string `json:"amount"`
	QuoteAmount     string `json:"quote_amount"`
}

type withdrawalPayload struct {
	Type              string `json:"type"`
	WithdrawalID      string `json:"withdrawal_id"`
	ContractAddress   string `json:"contract_address"`
	WithdrawalAddress string `json:"withdrawal_address"`
	TxHashOut         string `json:"tx_hash_out"`
	Amount            string `json:"amount"`
	QuoteAmount       string `json:"quote_amount"`
}

// Notifier posts both kinds of terminal events to a single callback URL,
// as the Python source does (one webhook receiver multiplexes on "type").
type Notifier struct {
	store       *store.Store
	httpClient  *http.Client
	callbackURL string
	apiKey      string
	batchSize   int
}

func New(st *store.Store, callbackURL, apiKey string, batchSize int) *Notifier {
	return &Notifier{
		store:       st,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		callbackURL: callbackURL,
		apiKey:      apiKey,
		batchSize:   batchSize,
	}
}

func (n *Notifier) TickDeposits(ctx context.Context) error {
	deposits, err := n.store.GetAndLockUnnotifiedDeposits(n.batchSize)
	if err != nil {
		return err
	}
	for _, d := range deposits {
		n.sendDeposit(ctx, d)
	}
	return nil
}

func (n *Notifier) TickWithdrawals(ctx context.Context) error {
	withdrawals, err := n.store.GetAndLockUnnotifiedWithdrawals(n.batchSize)
	if err != nil {
		return err
	}
	for _, w := range withdrawals {
		n.sendWithdrawal(ctx, w)
	}
	return nil
}

// callbackEnvelope is the wire shape spec.md §6 names for Handler →
// Dispatcher delivery: the Dispatcher only ever sees an opaque
// (callback_id, user_id, path, json_data) tuple and re-parses json_data
// against its own schema when it forwards to the customer.
type callbackEnvelope struct {
	CallbackID string      `json:"callback_id"`
	UserID     string      `json:"user_id"`
	Path       string      `json:"path"`
	JSONData   interface{} `json:"json_data"`
}

func (n *Notifier) sendDeposit(ctx context.Context, d store.Deposit) {
	txHashOut := ""
	if d.TxHashOut != nil {
		txHashOut = *d.TxHashOut
	}
	externalID, err := n.store.ExternalIDForAddress(d.AddressID)
	if err != nil {
		logger.Error("resolving deposit owner", "deposit_id", d.ID, "err", err)
		n.finishDeposit(d, 0, err)
		return
	}
	payload := depositPayload{
		Type: "deposit", DepositID: d.ID, ContractAddress: d.ContractAddress,
		TxHashIn: d.TxHashIn, TxHashOut: txHashOut, Amount: d.Amount, QuoteAmount: d.QuoteAmount,
	}
	status, err := n.post(ctx, callbackEnvelope{
		CallbackID: "deposit_" + d.ID, UserID: externalID, Path: "deposit", JSONData: payload,
	})
	n.finishDeposit(d, status, err)
}

func (n *Notifier) sendWithdrawal(ctx context.Context, w store.Withdrawal) {
	txHashOut := ""
	if w.TxHashOut != nil {
		txHashOut = *w.TxHashOut
	}
	externalID, err := n.store.ExternalIDForUser(w.UserID)
	if err != nil {
		logger.Error("resolving withdrawal owner", "withdrawal_id", w.ID, "err", err)
		n.finishWithdrawal(w, 0, err)
		return
	}
	payload := withdrawalPayload{
		Type: "withdrawal", WithdrawalID: w.ID, ContractAddress: w.ContractAddress,
		WithdrawalAddress: w.WithdrawalAddress, TxHashOut: txHashOut, Amount: w.Amount, QuoteAmount: w.QuoteAmount,
	}
	status, err := n.post(ctx, callbackEnvelope{
		CallbackID: "withdrawal_" + w.ID, UserID: externalID, Path: "withdrawal", JSONData: payload,
	})
	n.finishWithdrawal(w, status, err)
}

func (n *Notifier) post(ctx context.Context, envelope callbackEnvelope) (int, error) {
	body, err := json.Marshal(envelope)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.callbackURL+"/v1/api/private/callback", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Api-Key", n.apiKey)
	resp, err := n.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}

func (n *Notifier) finishDeposit(d store.Deposit, status int, err error) {
	if err == nil && (status == http.StatusOK || status == http.StatusConflict) {
		// 409: receiver already processed this event, treated as success
		// per spec.md §4.9's idempotence clause.
		if storeErr := n.store.MarkDepositNotified(d.ID); storeErr != nil {
			logger.Error("marking deposit notified", "deposit_id", d.ID, "err", storeErr)
		}
		return
	}
	logger.Warn("deposit callback failed", "deposit_id", d.ID, "status", status, "err", err)
	period := nextCallbackBackoff(d.CallbackPeriod)
	if storeErr := n.store.RescheduleDepositCallback(d.ID, period); storeErr != nil {
		logger.Error("rescheduling deposit callback", "deposit_id", d.ID, "err", storeErr)
	}
}

func (n *Notifier) finishWithdrawal(w store.Withdrawal, status int, err error) {
	if err == nil && (status == http.StatusOK || status == http.StatusConflict) {
		if storeErr := n.store.MarkWithdrawalNotified(w.ID); storeErr != nil {
			logger.Error("marking withdrawal notified", "withdrawal_id", w.ID, "err", storeErr)
		}
		return
	}
	logger.Warn("withdrawal callback failed", "withdrawal_id", w.ID, "status", status, "err", err)
	period := nextCallbackBackoff(w.CallbackPeriod)
	if storeErr := n.store.RescheduleWithdrawalCallback(w.ID, period); storeErr != nil {
		logger.Error("rescheduling withdrawal callback", "withdrawal_id", w.ID, "err", storeErr)
	}
}
