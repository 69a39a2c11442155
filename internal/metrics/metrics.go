package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is the instrument set of the escrow surface. Instruments
// register on a dedicated registry so parallel instances, tests in
// particular, never collide.
type Metrics struct {
	registry *prometheus.Registry

	DealsLocked    prometheus.Counter
	Signatures     *prometheus.CounterVec
	DealsFinalized prometheus.Counter
	PayoutFailures prometheus.Counter
	OpErrors       *prometheus.CounterVec
}

// New builds and registers the instruments. openDeals is sampled on
// every scrape.
func New(openDeals func() float64) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		DealsLocked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "escrow_deals_locked_total",
			Help: "Deals locked successfully",
		}),
		Signatures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "escrow_signatures_total",
			Help: "Accepted signatures by party",
		}, []string{"party"}),
		DealsFinalized: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "escrow_deals_finalized_total",
			Help: "Deals settled by the arbiter",
		}),
		PayoutFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "escrow_payout_failures_total",
			Help: "Payout legs that failed after settlement",
		}),
		OpErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "escrow_op_errors_total",
			Help: "Refused operations by operation and error code",
		}, []string{"op", "code"}),
	}

	openGauge := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "escrow_deals_open",
		Help: "Deals currently holding escrowed value",
	}, openDeals)

	m.registry.MustRegister(m.DealsLocked, m.Signatures, m.DealsFinalized, m.PayoutFailures, m.OpErrors, openGauge)
	return m
}

// Registry exposes the backing registry for the scrape handler
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
