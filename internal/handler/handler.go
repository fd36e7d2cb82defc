// Package handler wires the Handler process together: config, store,
// chain client, shared state, every scheduled job, and the admin HTTP
// server (spec.md §1/§2). cmd/handler/main.go is a thin urfave/cli shell
// around New/Run.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/procnet/custodian/internal/common/log"
	"github.com/procnet/custodian/internal/common/scheduler"
	"github.com/procnet/custodian/internal/common/secrets"
	"github.com/procnet/custodian/internal/handler/api"
	"github.com/procnet/custodian/internal/handler/bootstrap"
	"github.com/procnet/custodian/internal/handler/chainclient"
	"github.com/procnet/custodian/internal/handler/config"
	"github.com/procnet/custodian/internal/handler/conductor"
	"github.com/procnet/custodian/internal/handler/notifier"
	"github.com/procnet/custodian/internal/handler/provider"
	"github.com/procnet/custodian/internal/handler/refresh"
	"github.com/procnet/custodian/internal/handler/scanner"
	"github.com/procnet/custodian/internal/handler/state"
	"github.com/procnet/custodian/internal/handler/store"
)

var logger = log.New("handler")

const (
	scanInterval            = 2 * time.Second
	conductorInterval       = 5 * time.Second
	notifierInterval        = 5 * time.Second
	gasPriceInterval        = 60 * time.Second
	balanceRefreshInterval  = 30 * time.Second
	accountsRefreshInterval = 10 * time.Second
	rateInterval            = 10 * time.Second
	explorerInterval        = 120 * time.Second
	conductorBatchSize      = 10
)

type Handler struct {
	cfg       *config.Config
	store     *store.Store
	state     *state.State
	client    chainclient.Client
	scheduler *scheduler.Scheduler
	server    *http.Server
	coins     *refresh.CoinRefresher
	catchUp   bool
}

func New(cfg *config.Config) (*Handler, error) {
	st, err := store.Open(cfg.WriteDSN, cfg.ReadDSN)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(); err != nil {
		return nil, err
	}
	if err := st.ReleaseStaleHandlerLocks(); err != nil {
		return nil, err
	}

	dbKey, err := secrets.LoadDBSecretKey(cfg.DBSecretKeyRaw)
	if err != nil {
		return nil, err
	}
	box, err := secrets.NewBox(dbKey)
	if err != nil {
		return nil, err
	}

	telemetry := provider.NewTelemetry("")
	pool := provider.NewPool(buildProviders(cfg), telemetry)
	var client chainclient.Client
	if cfg.NetworkKind == "tvm" {
		client = chainclient.NewTVMClient(pool)
	} else {
		client = chainclient.NewEVMClient(pool, cfg.NetworkID)
	}

	sh := state.New()

	boot := bootstrap.New(st, client, box)
	if err := boot.Run(cfg); err != nil {
		return nil, err
	}

	h := &Handler{cfg: cfg, store: st, state: sh, client: client, scheduler: scheduler.New()}
	h.registerJobs(box, telemetry)
	h.buildServer()
	return h, nil
}

// buildProviders turns the parallel PROC_HANDLER_PROVIDER_URL /
// PROC_HANDLER_PROVIDER_API_KEYS lists into the pool's Provider objects,
// each enabled from the start (spec.md §4.1).
func buildProviders(cfg *config.Config) []*provider.Provider {
	providers := make([]*provider.Provider, len(cfg.ProviderURLs))
	for i, url := range cfg.ProviderURLs {
		var key string
		if i < len(cfg.ProviderAPIKeys) {
			key = cfg.ProviderAPIKeys[i]
		}
		p := &provider.Provider{Kind: cfg.NetworkKind, BaseURL: url, APIKey: key}
		p.SetEnabled(true)
		providers[i] = p
	}
	return providers
}

func (h *Handler) registerJobs(box *secrets.Box, telemetry *provider.Telemetry) {
	coins := refresh.NewCoinRefresher(h.store, refresh.NewHTTPRateSource(h.cfg.RateURLFast), refresh.NewHTTPRateSource(h.cfg.RateURLSlow), h.cfg.QuoteCoinAddress)
	gasPrice := refresh.NewGasPriceRefresher(h.client, h.state)
	balances := refresh.NewBalanceRefresher(h.client, h.store, h.cfg.NativeWarningThreshold)
	accounts := refresh.NewAccountsRefresher(h.client, h.store, h.state)
	explorer := refresh.NewExplorerJob(telemetry, h.state)

	sc := scanner.New(h.client, h.store, h.state, coins, h.state, h.cfg.BlockOffset)
	nativeConductor := conductor.NewNativeConductor(h.client, h.store, h.state, box, conductorBatchSize)
	tokenConductor := conductor.NewTokenConductor(h.client, h.store, h.state, box, conductorBatchSize)
	withdrawalConductor := conductor.NewWithdrawalConductor(h.client, h.store, h.state, box, coins)
	notify := notifier.New(h.store, h.cfg.DispatcherURL, h.cfg.DispatcherAPIKey, conductorBatchSize)

	fixed := func(d time.Duration) func() time.Duration { return func() time.Duration { return d } }

	h.scheduler.Register(&scheduler.Job{Name: "scanner", Interval: h.scanInterval, Run: func(ctx context.Context) error {
		catchUp, err := sc.Tick(ctx)
		if err != nil {
			return err
		}
		h.catchUp = catchUp
		return nil
	}})
	h.scheduler.Register(&scheduler.Job{Name: "native_conductor", Interval: fixed(conductorInterval), Run: nativeConductor.Tick})
	h.scheduler.Register(&scheduler.Job{Name: "token_conductor", Interval: fixed(conductorInterval), Run: tokenConductor.Tick})
	h.scheduler.Register(&scheduler.Job{Name: "withdrawal_conductor", Interval: fixed(conductorInterval), Run: withdrawalConductor.Tick})
	h.scheduler.Register(&scheduler.Job{Name: "notify_deposits", Interval: fixed(notifierInterval), Run: notify.TickDeposits})
	h.scheduler.Register(&scheduler.Job{Name: "notify_withdrawals", Interval: fixed(notifierInterval), Run: notify.TickWithdrawals})
	h.scheduler.Register(&scheduler.Job{Name: "gas_price", Interval: fixed(gasPriceInterval), Run: gasPrice.Tick})
	h.scheduler.Register(&scheduler.Job{Name: "balances", Interval: fixed(balanceRefreshInterval), Run: balances.Tick})
	h.scheduler.Register(&scheduler.Job{Name: "accounts", Interval: fixed(accountsRefreshInterval), Run: accounts.Tick})
	h.scheduler.Register(&scheduler.Job{Name: "rates", Interval: fixed(rateInterval), Run: coins.Tick})
	h.scheduler.Register(&scheduler.Job{Name: "explorer", Interval: fixed(explorerInterval), Run: explorer.Tick})

	h.coins = coins
}

// scanInterval drops to zero while in catch-up mode, so the scanner keeps
// advancing back-to-back without waiting between blocks (spec.md §4.5's
// back-pressure mode), and returns to the steady-state interval once it
// has caught back up to one block behind the trusted head.
func (h *Handler) scanInterval() time.Duration {
	if h.catchUp {
		return 0
	}
	return scanInterval
}

func (h *Handler) buildServer() {
	router := httprouter.New()
	a := api.New(h.store, h.state, h.client, h.coins, h.cfg.HandlerName, h.cfg.HandlerDisplay, h.cfg.NetworkName)
	a.Register(router, h.cfg.HandlerAPIKey)
	h.server = &http.Server{Addr: ":8080", Handler: router}
}

func (h *Handler) Run(ctx context.Context) error {
	h.scheduler.Start(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- h.server.ListenAndServe() }()

	select {
	case <-ctx.Done():
		h.scheduler.Stop()
		return h.server.Close()
	case err := <-errCh:
		h.scheduler.Stop()
		return err
	}
}
