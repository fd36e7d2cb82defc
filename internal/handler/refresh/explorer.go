package refresh

import (
	"context"

	"github.com/procnet/custodian/internal/handler/provider"
	"github.com/procnet/custodian/internal/handler/state"
)

// ExplorerJob periodically logs provider RPS/status telemetry alongside
// block-scan progress, and is where a process-wide "catch-up mode" flip
// would page an operator if the scanner's lag kept growing instead of
// shrinking (spec.md §4.10). The flip itself is published by the scanner
// via state.PublishBlockProgress; this job only observes and reports it.
type ExplorerJob struct {
	telemetry *provider.Telemetry
	state     *state.State
}

func NewExplorerJob(t *provider.Telemetry, st *state.State) *ExplorerJob {
	return &ExplorerJob{telemetry: t, state: st}
}

func (j *ExplorerJob) Tick(ctx context.Context) error {
	last, trusted, catchUp := j.state.BlockProgress()
	logger.Info("explorer snapshot",
		"last_handled_block", last,
		"trusted_block", trusted,
		"catch_up_mode", catchUp,
		"provider_rps", j.telemetry.RPS(),
		"provider_status", j.telemetry.StatusBreakdown(),
	)
	return nil
}
