// Package middleware provides transmission.Transport decorators for metrics,
// client-side rate limiting and debug logging.
package middleware

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	transmission "github.com/jfxdev/go-transmission"
)

// Metrics records per-exchange Prometheus metrics.
type Metrics struct {
	requests *prometheus.CounterVec
	duration prometheus.Histogram
	renewals prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "transmission_rpc_requests_total",
			Help: "Total RPC requests sent to Transmission by response status.",
		}, []string{"status"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "transmission_rpc_request_duration_seconds",
			Help:    "RPC request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
		renewals: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "transmission_rpc_session_renewals_total",
			Help: "Total 409 answers that carried a new session id.",
		}),
	}

	for _, c := range []prometheus.Collector{m.requests, m.duration, m.renewals} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// Wrap returns a Transport that records every exchange made through next.
// Transport errors are counted under status "error".
func (m *Metrics) Wrap(next transmission.Transport) transmission.Transport {
	return transmission.TransportFunc(func(ctx context.Context, req *transmission.Request) (*transmission.Response, error) {
		start := time.Now()
		resp, err := next.Send(ctx, req)
		m.duration.Observe(time.Since(start).Seconds())

		if err != nil || resp == nil {
			m.requests.WithLabelValues("error").Inc()
			return resp, err
		}

		m.requests.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()
		if resp.StatusCode == 409 && resp.Header.Get(transmission.SessionIDHeader) != "" {
			m.renewals.Inc()
		}

		return resp, nil
	})
}
