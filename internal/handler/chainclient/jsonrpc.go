package chainclient

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/procnet/custodian/internal/handler/provider"
)

// defaultHTTPTimeout is the finite per-call timeout every HTTP call carries,
// spec.md §5.
const defaultHTTPTimeout = 10 * time.Second

// rpcCaller adapts a provider.Pool into a JSON-RPC 2.0 client, recording
// telemetry for every call (C1's per-endpoint request/HTTP-status log).
type rpcCaller struct {
	pool       *provider.Pool
	httpClient *http.Client
}

func newRPCCaller(pool *provider.Pool) *rpcCaller {
	return &rpcCaller{pool: pool, httpClient: &http.Client{Timeout: defaultHTTPTimeout}}
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *rpcCaller) call(ctx context.Context, method string, params []interface{}, out interface{}) error {
	prov, err := c.pool.Get()
	if err != nil {
		return err
	}

	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, prov.BaseURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if prov.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+prov.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.pool.RecordResult(prov, 0)
		return &ProviderConnectionErrorOnTx{Err: err}
	}
	defer resp.Body.Close()
	c.pool.RecordResult(prov, resp.StatusCode)

	if resp.StatusCode != http.StatusOK {
		return &ProviderHTTPError{StatusCode: resp.StatusCode}
	}

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return errors.Wrap(err, "decoding json-rpc response")
	}
	if rpcResp.Error != nil {
		return classifyRPCError(rpcResp.Error.Message)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(rpcResp.Result, out)
}

// classifyRPCError maps the handful of provider-reported protocol errors
// spec.md §4.2 names onto our typed error values. Anything unrecognized is
// surfaced as a plain error and treated as non-retryable by conductors
// (spec.md §7 item 4).
func classifyRPCError(msg string) error {
	switch {
	case contains(msg, "already known"):
		return &AlreadyKnownError{}
	case contains(msg, "underpriced") || contains(msg, "replacement transaction"):
		return &UnderpricedTransactionError{}
	case contains(msg, "insufficient funds"):
		return &InsufficientFundsError{}
	default:
		return errors.New(msg)
	}
}

func contains(haystack, needle string) bool {
	return len(haystack) >= len(needle) && indexOf(haystack, needle) >= 0
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}
