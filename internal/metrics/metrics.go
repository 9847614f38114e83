package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	APIRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dicemania_api_requests_total",
		Help: "API requests by route action and status code",
	}, []string{"action", "code"})

	ChainCalls = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dicemania_chain_call_seconds",
		Help:    "Latency of contract reads and writes",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "outcome"})

	StreamWrites = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dicemania_stream_writes_total",
		Help: "Records written to the streams index by event",
	}, []string{"event", "outcome"})

	PoolsResolved = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dicemania_pools_resolved_total",
		Help: "Pools resolved by the background resolver",
	})

	WSClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "dicemania_ws_clients",
		Help: "Connected websocket clients",
	})
)

// Register adds all collectors to reg. Call once per registry.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(APIRequests, ChainCalls, StreamWrites, PoolsResolved, WSClients)
}

func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObserveChain records the latency of one contract call.
func ObserveChain(method string, start time.Time, err error) {
	ChainCalls.WithLabelValues(method, Outcome(err)).Observe(time.Since(start).Seconds())
}
