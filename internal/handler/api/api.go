// Package api is the Handler admin HTTP surface of spec.md §6:
// readiness, handler metadata, address registration, deposit/withdrawal
// lookup, and withdrawal creation, all behind Api-Key auth except
// /readiness.
package api

import (
	"encoding/json"
	"math/big"
	"net/http"
	"strconv"

	uuid "github.com/satori/go.uuid"

	"github.com/julienschmidt/httprouter"

	"github.com/procnet/custodian/common"
	"github.com/procnet/custodian/internal/common/httpapi"
	"github.com/procnet/custodian/internal/common/log"
	"github.com/procnet/custodian/internal/handler/chainclient"
	"github.com/procnet/custodian/internal/handler/state"
	"github.com/procnet/custodian/internal/handler/store"
)

var logger = log.New("handler.api")

// CoinIndex is the read side of refresh.CoinRefresher the API needs for
// computing quote amounts on withdrawal creation.
type CoinIndex interface {
	Lookup(contractAddress string) (decimals int, rate float64, ok bool)
}

type API struct {
	store       *store.Store
	state       *state.State
	client      chainclient.Client
	coins       CoinIndex
	handlerName string
	display     string
	networkName string
}

func New(st *store.Store, sh *state.State, client chainclient.Client, coins CoinIndex, handlerName, display, networkName string) *API {
	return &API{store: st, state: sh, client: client, coins: coins, handlerName: handlerName, display: display, networkName: networkName}
}

// Register wires every route onto router, with apiKey gating every route
// except /readiness (spec.md §6: health checks must not require a secret).
func (a *API) Register(router *httprouter.Router, apiKey string) {
	auth := func(h httprouter.Handle) httprouter.Handle { return httpapi.RequireAPIKey(apiKey, h) }

	router.GET("/readiness", a.readiness)
	router.GET("/get_handler_info", auth(a.getHandlerInfo))
	router.GET("/get_handled_blocks", auth(a.getHandledBlocks))
	router.POST("/add_account", auth(a.addAccount))
	router.GET("/get_deposit_info", auth(a.getDepositInfo))
	router.GET("/get_withdraw_info", auth(a.getWithdrawInfo))
	router.POST("/create_withdrawal", auth(a.createWithdrawal))
}

func (a *API) readiness(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if !a.state.Ready() {
		httpapi.WriteError(w, http.StatusServiceUnavailable, "gas price not yet fetched")
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (a *API) getHandlerInfo(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	last, trusted, catchUp := a.state.BlockProgress()
	httpapi.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"handler_name":       a.handlerName,
		"handler_display":    a.display,
		"network_name":       a.networkName,
		"last_handled_block": last,
		"trusted_block":      trusted,
		"catch_up_mode":      catchUp,
	})
}

func (a *API) getHandledBlocks(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	limit, offset := pagingParams(r)
	blocks, err := a.store.GetHandledBlocks(limit, offset)
	if err != nil {
		httpapi.Internal(w, err.Error())
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, blocks)
}

type addAccountRequest struct {
	ExternalID string `json:"external_id"`
	Address    string `json:"address"` // empty: caller wants the handler to generate and return one (Non-goal here; spec.md §6 custodial addresses are provisioned out of band)
}

func (a *API) addAccount(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req addAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpapi.BadRequest(w, "malformed json body")
		return
	}
	if req.ExternalID == "" || req.Address == "" {
		httpapi.BadRequest(w, "external_id and address are required")
		return
	}

	user, err := a.store.FindUserByExternalID(req.ExternalID)
	if err != nil {
		httpapi.Internal(w, err.Error())
		return
	}
	if user == nil {
		user, err = a.store.CreateUser(req.ExternalID, int(common.RoleUser))
		if err != nil {
			httpapi.Internal(w, err.Error())
			return
		}
	}

	normalized := a.client.NormalizeAddress(req.Address)
	if err := a.store.CreateUserAddress(&store.UserAddress{
		UserID: user.ID, Public: normalized,
	}); err != nil {
		httpapi.Internal(w, err.Error())
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]string{"external_id": req.ExternalID, "address": normalized})
}

func (a *API) getDepositInfo(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	externalID := r.URL.Query().Get("external_id")
	if externalID == "" {
		httpapi.BadRequest(w, "external_id is required")
		return
	}
	user, err := a.store.FindUserByExternalID(externalID)
	if err != nil {
		httpapi.Internal(w, err.Error())
		return
	}
	if user == nil {
		httpapi.WriteError(w, http.StatusNotFound, "unknown external_id")
		return
	}
	limit, offset := pagingParams(r)
	deposits, err := a.store.DepositsForUser(user.ID, limit, offset)
	if err != nil {
		httpapi.Internal(w, err.Error())
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, deposits)
}

func (a *API) getWithdrawInfo(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	id := r.URL.Query().Get("withdrawal_id")
	if id == "" {
		httpapi.BadRequest(w, "withdrawal_id is required")
		return
	}
	withdrawal, err := a.store.WithdrawalByID(id)
	if err != nil {
		httpapi.Internal(w, err.Error())
		return
	}
	if withdrawal == nil {
		httpapi.WriteError(w, http.StatusNotFound, "unknown withdrawal_id")
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, withdrawal)
}

type createWithdrawalRequest struct {
	ExternalID        string `json:"external_id"`
	ContractAddress   string `json:"contract_address"`
	WithdrawalAddress string `json:"withdrawal_address"`
	Amount            string `json:"amount"` // base units, decimal string
	UserCurrency      string `json:"user_currency"`
}

// createWithdrawal enqueues a withdrawal row for C8 to pick up; it never
// sends on-chain itself (spec.md §4.8's "claim, don't execute inline"
// separation keeps the HTTP handler non-blocking on chain RPC latency).
func (a *API) createWithdrawal(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req createWithdrawalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpapi.BadRequest(w, "malformed json body")
		return
	}
	if req.ExternalID == "" || req.ContractAddress == "" || req.WithdrawalAddress == "" || req.Amount == "" {
		httpapi.BadRequest(w, "external_id, contract_address, withdrawal_address, amount are required")
		return
	}
	user, err := a.store.FindUserByExternalID(req.ExternalID)
	if err != nil {
		httpapi.Internal(w, err.Error())
		return
	}
	if user == nil {
		httpapi.WriteError(w, http.StatusNotFound, "unknown external_id")
		return
	}

	contract := a.client.NormalizeAddress(req.ContractAddress)
	decimals, rate, ok := a.coins.Lookup(contract)
	if !ok {
		httpapi.BadRequest(w, "unconfigured coin")
		return
	}
	amountBig, ok := new(big.Int).SetString(req.Amount, 10)
	if !ok {
		httpapi.BadRequest(w, "amount must be a decimal integer in base units")
		return
	}
	quote := common.BaseUnitsToQuote(amountBig, rate, decimals)

	withdrawal := &store.Withdrawal{
		ID:                uuid.NewV4().String(),
		UserID:            user.ID,
		ContractAddress:   contract,
		WithdrawalAddress: a.client.NormalizeAddress(req.WithdrawalAddress),
		Amount:            req.Amount,
		QuoteAmount:       quote.Text('f', -1),
		UserCurrency:      req.UserCurrency,
	}
	if err := a.store.CreateWithdrawal(withdrawal); err != nil {
		httpapi.Internal(w, err.Error())
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]string{"withdrawal_id": withdrawal.ID})
}

func pagingParams(r *http.Request) (limit, offset int) {
	limit, offset = 100, 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			offset = n
		}
	}
	return limit, offset
}
