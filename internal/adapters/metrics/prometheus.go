package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cryptoLifecycleBot/internal/ports"
)

// Prometheus implements ports.Metrics with client_golang collectors.
type Prometheus struct {
	cycles        *prometheus.CounterVec
	cycleDuration prometheus.Histogram
	entryOrders   *prometheus.CounterVec
	protective    *prometheus.CounterVec
	closes        *prometheus.CounterVec
	reconcile     *prometheus.CounterVec
	openPositions prometheus.Gauge
	gatherer      prometheus.Gatherer
}

// Compile-time check
var _ ports.Metrics = (*Prometheus)(nil)

// New registers the engine collectors on reg.
// A nil reg uses a fresh registry.
func New(reg *prometheus.Registry) *Prometheus {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	p := &Prometheus{
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lifecycle_cycles_total",
			Help: "Scheduler cycles by result",
		}, []string{"result"}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "lifecycle_cycle_duration_seconds",
			Help:    "Wall time of one full cycle",
			Buckets: []float64{1, 5, 10, 15, 30, 60, 120},
		}),
		entryOrders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lifecycle_entry_orders_total",
			Help: "Entry orders by result",
		}, []string{"result"}),
		protective: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lifecycle_protective_orders_total",
			Help: "Stop-loss and take-profit orders by kind and result",
		}, []string{"kind", "result"}),
		closes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lifecycle_positions_closed_total",
			Help: "Closed positions by reason",
		}, []string{"reason"}),
		reconcile: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lifecycle_reconcile_actions_total",
			Help: "Reconciliation actions taken",
		}, []string{"action"}),
		openPositions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lifecycle_open_positions",
			Help: "Positions currently tracked as open",
		}),
		gatherer: reg,
	}
	reg.MustRegister(p.cycles, p.cycleDuration, p.entryOrders, p.protective, p.closes, p.reconcile, p.openPositions)
	return p
}

// Handler serves the registered collectors in the Prometheus text format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.gatherer, promhttp.HandlerOpts{})
}

func (p *Prometheus) CycleCompleted(result string, seconds float64) {
	p.cycles.WithLabelValues(result).Inc()
	p.cycleDuration.Observe(seconds)
}

func (p *Prometheus) EntryOrder(result string) {
	p.entryOrders.WithLabelValues(result).Inc()
}

func (p *Prometheus) ProtectiveOrder(kind, result string) {
	p.protective.WithLabelValues(kind, result).Inc()
}

func (p *Prometheus) PositionClosed(reason string) {
	p.closes.WithLabelValues(reason).Inc()
}

func (p *Prometheus) ReconcileAction(action string) {
	p.reconcile.WithLabelValues(action).Inc()
}

func (p *Prometheus) OpenPositions(n int) {
	p.openPositions.Set(float64(n))
}
