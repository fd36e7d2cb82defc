// Package callback is the Dispatcher's callback worker: drains
// dispatcher_callbacks toward each row's owning Customer's CallbackURL
// with the same linear-backoff/409-short-circuit policy as the Handler's
// own notifier (spec.md §5: "the Dispatcher's callback worker is
// symmetric").
package callback

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/procnet/custodian/internal/common/log"
	"github.com/procnet/custodian/internal/dispatcher/store"
)

var logger = log.New("dispatcher.callback")

// callback_period starts at 60s and grows by 60s per attempt, with no cap
// beyond operator cleanup — the same policy as the Handler's own notifier
// (spec.md §4.9 step 4, §5: "the Dispatcher's callback worker is symmetric").
const (
	backoffFloor = 60 * time.Second
	backoffStep  = 60 * time.Second
)

func nextBackoff(currentSeconds int) time.Duration {
	next := time.Duration(currentSeconds)*time.Second + backoffStep
	if next < backoffFloor {
		next = backoffFloor
	}
	return next
}

type envelope struct {
	CallbackID string          `json:"callback_id"`
	UserID     string          `json:"user_id"`
	Path       string          `json:"path"`
	JSONData   json.RawMessage `json:"json_data"`
}

type Worker struct {
	store      *store.Store
	httpClient *http.Client
	batchSize  int
}

func New(st *store.Store, batchSize int) *Worker {
	return &Worker{store: st, httpClient: &http.Client{Timeout: 10 * time.Second}, batchSize: batchSize}
}

func (w *Worker) Tick(ctx context.Context) error {
	callbacks, err := w.store.GetAndLockUnnotifiedCallbacks(w.batchSize)
	if err != nil {
		return err
	}
	for _, cb := range callbacks {
		w.deliver(ctx, cb)
	}
	return nil
}

func (w *Worker) deliver(ctx context.Context, cb store.Callback) {
	customer, err := w.store.CustomerByID(cb.CustomerID)
	if err != nil || customer == nil {
		logger.Error("callback references unknown customer", "callback_id", cb.ID, "err", err)
		w.reschedule(cb, "unknown customer")
		return
	}
	status, err := w.post(ctx, customer.CallbackURL, cb)
	w.finish(cb, status, err)
}

func (w *Worker) post(ctx context.Context, url string, cb store.Callback) (int, error) {
	body, err := json.Marshal(envelope{CallbackID: cb.ID, UserID: cb.ExternalID, Path: cb.Path, JSONData: json.RawMessage(cb.JSONData)})
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := w.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}

func (w *Worker) finish(cb store.Callback, status int, err error) {
	if err == nil && (status == http.StatusOK || status == http.StatusConflict) {
		if storeErr := w.store.MarkCallbackNotified(cb.ID); storeErr != nil {
			logger.Error("marking callback notified", "callback_id", cb.ID, "err", storeErr)
		}
		return
	}
	logger.Warn("callback delivery failed", "callback_id", cb.ID, "status", status, "err", err)
	w.reschedule(cb, errString(err))
}

func (w *Worker) reschedule(cb store.Callback, lastErr string) {
	period := nextBackoff(cb.CallbackPeriod)
	if storeErr := w.store.RescheduleCallback(cb.ID, period, lastErr); storeErr != nil {
		logger.Error("rescheduling callback", "callback_id", cb.ID, "err", storeErr)
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
