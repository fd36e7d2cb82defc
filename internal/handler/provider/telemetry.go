package provider

import (
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v7"
	"github.com/prometheus/client_golang/prometheus"
	rmetrics "github.com/rcrowley/go-metrics"

	"github.com/procnet/custodian/internal/common/log"
)

var logger = log.New("provider.telemetry")

// telemetryWindow is how far back Explorer (C10) reports RPS/status-code
// breakdowns over, every 120s per spec.md §4.10.
const telemetryWindow = 2 * time.Minute

// Telemetry keeps a bounded, time-windowed per-endpoint request log. Redis
// sorted sets are a natural fit for a bounded time window shared across
// process restarts: score = unix nanos, member = "<status>:<seq>".
type Telemetry struct {
	rdb *redis.Client

	// in-process counters, mirrored into the log for the explorer job and
	// exported to Prometheus; rcrowley/go-metrics is the same package the
	// teacher's chaindatafetcher package imports for exactly this kind of
	// running-rate counter.
	rps    rmetrics.Meter
	status rmetrics.Registry

	promRequests *prometheus.CounterVec
}

func NewTelemetry(redisAddr string) *Telemetry {
	var rdb *redis.Client
	if redisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: redisAddr})
	}
	t := &Telemetry{
		rdb:    rdb,
		rps:    rmetrics.NewMeter(),
		status: rmetrics.NewRegistry(),
		promRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "custodian_provider_requests_total",
			Help: "RPC requests issued to upstream providers, by endpoint and HTTP status.",
		}, []string{"endpoint", "status"}),
	}
	_ = prometheus.Register(t.promRequests)
	return t
}

var seq int64

func (t *Telemetry) Record(endpoint string, status int) {
	t.rps.Mark(1)
	t.promRequests.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()

	counterName := fmt.Sprintf("status.%s.%d", endpoint, status)
	rmetrics.GetOrRegisterCounter(counterName, t.status).Inc(1)

	if t.rdb == nil {
		return
	}
	seq++
	key := "provider:telemetry:" + endpoint
	now := float64(time.Now().UnixNano())
	member := fmt.Sprintf("%d:%d", status, seq)
	if err := t.rdb.ZAdd(key, &redis.Z{Score: now, Member: member}).Err(); err != nil {
		logger.Debug("redis telemetry write failed", "endpoint", endpoint, "err", err)
		return
	}
	cutoff := float64(time.Now().Add(-telemetryWindow).UnixNano())
	t.rdb.ZRemRangeByScore(key, "0", strconv.FormatFloat(cutoff, 'f', 0, 64))
}

// RPS returns the in-process one-minute exponentially weighted
// requests-per-second rate, used by the explorer job's periodic log line.
func (t *Telemetry) RPS() float64 {
	return t.rps.Rate1()
}

// StatusBreakdown returns a snapshot of per-endpoint-per-status counters
// for the explorer job to log.
func (t *Telemetry) StatusBreakdown() map[string]int64 {
	out := make(map[string]int64)
	t.status.Each(func(name string, i interface{}) {
		if c, ok := i.(rmetrics.Counter); ok {
			out[name] = c.Count()
		}
	})
	return out
}
