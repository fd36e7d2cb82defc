// Package api is the Dispatcher's customer-facing and private HTTP
// surfaces: add_customer, add_user (Handler-side "add_account"),
// get_deposit_info/create_withdrawal proxies fanned out to the right
// network Handler, get_tx_handlers, and the private callback-enqueue
// endpoint the Handler posts to (spec.md §6, SPEC_FULL.md's "proc_api
// customer/user hierarchy" supplement).
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	uuid "github.com/hashicorp/go-uuid"
	"github.com/julienschmidt/httprouter"

	"github.com/procnet/custodian/internal/common/httpapi"
	"github.com/procnet/custodian/internal/common/log"
	"github.com/procnet/custodian/internal/dispatcher/client"
	"github.com/procnet/custodian/internal/dispatcher/store"
)

var logger = log.New("dispatcher.api")

type API struct {
	store    *store.Store
	adminKey string
}

func New(st *store.Store, adminKey string) *API {
	return &API{store: st, adminKey: adminKey}
}

func (a *API) Register(router *httprouter.Router) {
	router.POST("/add_customer", a.requireAdmin(a.addCustomer))
	router.GET("/get_tx_handlers", a.requireCustomer(a.getTxHandlers))
	router.POST("/add_user", a.requireCustomer(a.addUser))
	router.GET("/get_deposit_info", a.requireCustomer(a.getDepositInfo))
	router.POST("/create_withdrawal", a.requireCustomer(a.createWithdrawal))
	router.POST("/v1/api/private/callback", a.requireHandler(a.receiveCallback))
}

func (a *API) requireAdmin(h httprouter.Handle) httprouter.Handle {
	return httpapi.RequireAPIKey(a.adminKey, h)
}

type customerContext struct{ customer *store.Customer }

// requireCustomer authenticates via the calling customer's own API key and
// hands the resolved Customer row to the wrapped handler as an extra
// argument, rather than every handler re-querying it.
func (a *API) requireCustomer(h func(w http.ResponseWriter, r *http.Request, ps httprouter.Params, cust *store.Customer)) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		apiKey := r.Header.Get("Api-Key")
		cust, err := a.store.FindCustomerByAPIKey(apiKey)
		if err != nil {
			httpapi.Internal(w, err.Error())
			return
		}
		if cust == nil {
			httpapi.WriteError(w, http.StatusUnauthorized, "invalid api key")
			return
		}
		h(w, r, ps, cust)
	}
}

// requireHandler authenticates the private callback endpoint against every
// configured network_handlers API key, since the caller identifies itself
// only by that shared secret, not by a customer identity.
func (a *API) requireHandler(h httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		apiKey := r.Header.Get("Api-Key")
		handlers, err := a.store.AllNetworkHandlers()
		if err != nil {
			httpapi.Internal(w, err.Error())
			return
		}
		for _, nh := range handlers {
			if nh.APIKey == apiKey {
				h(w, r, ps)
				return
			}
		}
		httpapi.WriteError(w, http.StatusUnauthorized, "invalid api key")
	}
}

type addCustomerRequest struct {
	ExternalID  string `json:"external_id"`
	CallbackURL string `json:"callback_url"`
}

func (a *API) addCustomer(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req addCustomerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpapi.BadRequest(w, "malformed json body")
		return
	}
	if req.ExternalID == "" || req.CallbackURL == "" {
		httpapi.BadRequest(w, "external_id and callback_url are required")
		return
	}
	apiKey, err := uuid.GenerateUUID()
	if err != nil {
		httpapi.Internal(w, err.Error())
		return
	}
	customer := &store.Customer{ExternalID: req.ExternalID, APIKey: apiKey, CallbackURL: req.CallbackURL}
	if err := a.store.CreateCustomer(customer); err != nil {
		httpapi.Internal(w, err.Error())
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]string{"customer_id": strconv.FormatInt(customer.ID, 10), "api_key": apiKey})
}

func (a *API) getTxHandlers(w http.ResponseWriter, r *http.Request, _ httprouter.Params, _ *store.Customer) {
	handlers, err := a.store.AllNetworkHandlers()
	if err != nil {
		httpapi.Internal(w, err.Error())
		return
	}
	names := make([]string, len(handlers))
	for i, h := range handlers {
		names[i] = h.NetworkName
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]interface{}{"networks": names})
}

type addUserRequest struct {
	NetworkName string `json:"network_name"`
	ExternalID  string `json:"external_id"`
}

// addUser is the Dispatcher-side "add_account": it fans out to the named
// network's Handler to provision the on-chain address, then records the
// customer-scoped mapping locally.
func (a *API) addUser(w http.ResponseWriter, r *http.Request, _ httprouter.Params, cust *store.Customer) {
	var req addUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpapi.BadRequest(w, "malformed json body")
		return
	}
	if req.NetworkName == "" || req.ExternalID == "" {
		httpapi.BadRequest(w, "network_name and external_id are required")
		return
	}
	_, hc, ok := a.handlerClientFor(w, req.NetworkName)
	if !ok {
		return
	}
	address, err := hc.AddAccount(dispatcherExternalID(cust.ID, req.ExternalID), "")
	if err != nil {
		httpapi.Internal(w, err.Error())
		return
	}
	user := &store.User{CustomerID: cust.ID, ExternalID: req.ExternalID, NetworkName: req.NetworkName, Address: address}
	if err := a.store.CreateUser(user); err != nil {
		httpapi.Internal(w, err.Error())
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]string{"address": address})
}

func (a *API) getDepositInfo(w http.ResponseWriter, r *http.Request, _ httprouter.Params, cust *store.Customer) {
	networkName := r.URL.Query().Get("network_name")
	externalID := r.URL.Query().Get("external_id")
	if networkName == "" || externalID == "" {
		httpapi.BadRequest(w, "network_name and external_id are required")
		return
	}
	_, hc, ok := a.handlerClientFor(w, networkName)
	if !ok {
		return
	}
	deposits, err := hc.DepositInfo(dispatcherExternalID(cust.ID, externalID), 0, 0)
	if err != nil {
		httpapi.Internal(w, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(deposits)
}

type createWithdrawalRequest struct {
	NetworkName       string `json:"network_name"`
	ExternalID        string `json:"external_id"`
	ContractAddress   string `json:"contract_address"`
	WithdrawalAddress string `json:"withdrawal_address"`
	Amount            string `json:"amount"`
	UserCurrency      string `json:"user_currency"`
}

func (a *API) createWithdrawal(w http.ResponseWriter, r *http.Request, _ httprouter.Params, cust *store.Customer) {
	var req createWithdrawalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpapi.BadRequest(w, "malformed json body")
		return
	}
	if req.NetworkName == "" || req.ExternalID == "" || req.ContractAddress == "" || req.WithdrawalAddress == "" || req.Amount == "" {
		httpapi.BadRequest(w, "network_name, external_id, contract_address, withdrawal_address, amount are required")
		return
	}
	_, hc, ok := a.handlerClientFor(w, req.NetworkName)
	if !ok {
		return
	}
	id, err := hc.CreateWithdrawal(client.CreateWithdrawalRequest{
		ExternalID:        dispatcherExternalID(cust.ID, req.ExternalID),
		ContractAddress:   req.ContractAddress,
		WithdrawalAddress: req.WithdrawalAddress,
		Amount:            req.Amount,
		UserCurrency:      req.UserCurrency,
	})
	if err != nil {
		httpapi.Internal(w, err.Error())
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]string{"withdrawal_id": id})
}

type callbackRequest struct {
	CallbackID string          `json:"callback_id"`
	UserID     string          `json:"user_id"`
	Path       string          `json:"path"`
	JSONData   json.RawMessage `json:"json_data"`
}

// receiveCallback enqueues the Handler's callback into the outbox for the
// callback worker to drain. A callback_id that is already recorded is
// answered with 200, the same as a new one: EnqueueCallback ignores the
// duplicate key, so no second row is created, and the response does not
// tell the two cases apart.
func (a *API) receiveCallback(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req callbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpapi.BadRequest(w, "malformed json body")
		return
	}
	if req.CallbackID == "" || req.UserID == "" {
		httpapi.BadRequest(w, "callback_id and user_id are required")
		return
	}
	customerID, externalID, ok := splitDispatcherExternalID(req.UserID)
	if !ok {
		httpapi.BadRequest(w, "unrecognized user_id")
		return
	}
	cb := &store.Callback{
		ID:         req.CallbackID,
		CustomerID: customerID,
		ExternalID: externalID,
		Path:       req.Path,
		JSONData:   string(req.JSONData),
	}
	if err := a.store.EnqueueCallback(cb); err != nil {
		httpapi.Internal(w, err.Error())
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}

func (a *API) handlerClientFor(w http.ResponseWriter, networkName string) (*store.NetworkHandler, *client.HandlerClient, bool) {
	nh, err := a.store.NetworkHandlerByName(networkName)
	if err != nil {
		httpapi.Internal(w, err.Error())
		return nil, nil, false
	}
	if nh == nil {
		httpapi.WriteError(w, http.StatusNotFound, "unconfigured network")
		return nil, nil, false
	}
	return nh, client.New(nh.BaseURL, nh.APIKey), true
}

// dispatcherExternalID namespaces a customer's own external_id by
// CustomerID before handing it to a Handler, so two different customers
// reusing the same external_id never collide on one Handler's users table.
func dispatcherExternalID(customerID int64, externalID string) string {
	return fmt.Sprintf("%d:%s", customerID, externalID)
}

func splitDispatcherExternalID(userID string) (customerID int64, externalID string, ok bool) {
	parts := strings.SplitN(userID, ":", 2)
	if len(parts) != 2 {
		return 0, "", false
	}
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, "", false
	}
	return id, parts[1], true
}

