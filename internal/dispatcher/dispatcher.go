// Package dispatcher wires the Dispatcher process together: config, store,
// the customer/handler HTTP surface, and the callback worker (spec.md §1,
// §2's "small upstream Dispatcher"). cmd/dispatcher/main.go is a thin
// urfave/cli shell around New/Run.
package dispatcher

import (
	"context"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/cors"

	"github.com/procnet/custodian/internal/common/log"
	"github.com/procnet/custodian/internal/common/scheduler"
	"github.com/procnet/custodian/internal/dispatcher/api"
	"github.com/procnet/custodian/internal/dispatcher/callback"
	"github.com/procnet/custodian/internal/dispatcher/config"
	"github.com/procnet/custodian/internal/dispatcher/store"
)

var logger = log.New("dispatcher")

const callbackInterval = 5 * time.Second

type Dispatcher struct {
	cfg       *config.Config
	store     *store.Store
	scheduler *scheduler.Scheduler
	server    *http.Server
}

func New(cfg *config.Config) (*Dispatcher, error) {
	st, err := store.Open(cfg.WriteDSN, cfg.ReadDSN)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(); err != nil {
		return nil, err
	}
	if err := st.ReleaseStaleCallbackLocks(); err != nil {
		return nil, err
	}
	for _, n := range cfg.Networks {
		if err := st.UpsertNetworkHandler(&store.NetworkHandler{NetworkName: n.NetworkName, BaseURL: n.BaseURL, APIKey: n.APIKey}); err != nil {
			return nil, err
		}
	}

	d := &Dispatcher{cfg: cfg, store: st, scheduler: scheduler.New()}

	worker := callback.New(st, cfg.CallbackBatch)
	d.scheduler.Register(&scheduler.Job{
		Name:     "callback_worker",
		Interval: func() time.Duration { return callbackInterval },
		Run:      worker.Tick,
	})

	d.buildServer()
	return d, nil
}

// buildServer wraps the router in rs/cors since, unlike the Handler (only
// ever called privately by the Dispatcher), this surface faces customer
// browsers/services directly (SPEC_FULL.md's domain-stack note).
func (d *Dispatcher) buildServer() {
	router := httprouter.New()
	a := api.New(d.store, d.cfg.AdminKey)
	a.Register(router)
	handler := cors.Default().Handler(router)
	d.server = &http.Server{Addr: d.cfg.ListenAddr, Handler: handler}
}

func (d *Dispatcher) Run(ctx context.Context) error {
	d.scheduler.Start(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- d.server.ListenAndServe() }()

	select {
	case <-ctx.Done():
		d.scheduler.Stop()
		return d.server.Close()
	case err := <-errCh:
		d.scheduler.Stop()
		return err
	}
}
