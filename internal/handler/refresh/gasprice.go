package refresh

import (
	"context"

	"github.com/procnet/custodian/internal/handler/chainclient"
	"github.com/procnet/custodian/internal/handler/state"
)

// GasPriceRefresher polls the chain's current gas price on a timer and
// publishes it into Shared state; conductors withhold all sends until the
// first successful publish (spec.md §4.10's readiness gate).
type GasPriceRefresher struct {
	client chainclient.Client
	state  *state.State
}

func NewGasPriceRefresher(client chainclient.Client, st *state.State) *GasPriceRefresher {
	return &GasPriceRefresher{client: client, state: st}
}

func (r *GasPriceRefresher) Tick(ctx context.Context) error {
	price, err := r.client.GasPrice(ctx)
	if err != nil {
		return err
	}
	r.state.PublishGasPrice(price.String())
	return nil
}
