// Package client is the Dispatcher's per-Handler RPC client: a thin HTTP
// wrapper around the Handler admin surface of spec.md §6, used to fan out
// add_account/create_withdrawal/get_deposit_info calls to whichever
// network a request names.
package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
)

const defaultTimeout = 10 * time.Second

// HandlerClient calls one Handler process's admin API with its
// network_handlers row's API key (spec.md §6: "Dispatcher calls the above
// with the per-handler API key").
type HandlerClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func New(baseURL, apiKey string) *HandlerClient {
	return &HandlerClient{baseURL: baseURL, apiKey: apiKey, httpClient: &http.Client{Timeout: defaultTimeout}}
}

func (c *HandlerClient) get(path string, query url.Values, out interface{}) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequest(http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *HandlerClient) post(path string, body interface{}, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *HandlerClient) do(req *http.Request, out interface{}) error {
	req.Header.Set("Api-Key", c.apiKey)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "calling handler")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("handler returned status %d for %s", resp.StatusCode, req.URL.Path)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *HandlerClient) Readiness() error {
	return c.get("/readiness", nil, nil)
}

type HandlerInfo struct {
	HandlerName      string `json:"handler_name"`
	HandlerDisplay   string `json:"handler_display"`
	NetworkName      string `json:"network_name"`
	LastHandledBlock uint64 `json:"last_handled_block"`
	TrustedBlock     uint64 `json:"trusted_block"`
	CatchUpMode      bool   `json:"catch_up_mode"`
}

func (c *HandlerClient) HandlerInfo() (*HandlerInfo, error) {
	var out HandlerInfo
	if err := c.get("/get_handler_info", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HandlerClient) AddAccount(externalID, address string) (string, error) {
	var out struct {
		Address string `json:"address"`
	}
	body := map[string]string{"external_id": externalID, "address": address}
	if err := c.post("/add_account", body, &out); err != nil {
		return "", err
	}
	return out.Address, nil
}

func (c *HandlerClient) DepositInfo(externalID string, limit, offset int) (json.RawMessage, error) {
	q := url.Values{"external_id": {externalID}}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if offset > 0 {
		q.Set("offset", fmt.Sprint(offset))
	}
	var out json.RawMessage
	if err := c.get("/get_deposit_info", q, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HandlerClient) WithdrawInfo(withdrawalID string) (json.RawMessage, error) {
	var out json.RawMessage
	if err := c.get("/get_withdraw_info", url.Values{"withdrawal_id": {withdrawalID}}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

type CreateWithdrawalRequest struct {
	ExternalID        string `json:"external_id"`
	ContractAddress   string `json:"contract_address"`
	WithdrawalAddress string `json:"withdrawal_address"`
	Amount            string `json:"amount"`
	UserCurrency      string `json:"user_currency"`
}

func (c *HandlerClient) CreateWithdrawal(req CreateWithdrawalRequest) (string, error) {
	var out struct {
		WithdrawalID string `json:"withdrawal_id"`
	}
	if err := c.post("/create_withdrawal", req, &out); err != nil {
		return "", err
	}
	return out.WithdrawalID, nil
}
