package bot

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"github.com/abelprasad/CryptoBear/internal/domain"
)

// Metrics holds the controller's Prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	ordersPlaced   *prometheus.CounterVec
	orderFailures  *prometheus.CounterVec
	fills          *prometheus.CounterVec
	cycles         *prometheus.CounterVec
	loopErrors     *prometheus.CounterVec
	realizedProfit prometheus.Gauge
	inventory      prometheus.Gauge
	trackedOrders  prometheus.Gauge
}

// NewMetrics creates the collectors and registers them on reg. A nil reg
// skips registration.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ordersPlaced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cryptobear_orders_placed_total",
			Help: "Limit orders accepted by the broker.",
		}, []string{"side"}),
		orderFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cryptobear_order_failures_total",
			Help: "Limit orders the broker rejected or that could not be sent.",
		}, []string{"side"}),
		fills: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cryptobear_fills_total",
			Help: "Tracked orders observed filled.",
		}, []string{"side"}),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cryptobear_cycles_total",
			Help: "Sell fills matched against inventory lots, by result (win|loss|flat).",
		}, []string{"result"}),
		loopErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cryptobear_loop_errors_total",
			Help: "Poll iteration errors by kind.",
		}, []string{"kind"}),
		realizedProfit: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cryptobear_realized_profit",
			Help: "Realized profit in quote currency since start.",
		}),
		inventory: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cryptobear_inventory",
			Help: "Base asset held according to observed fills.",
		}),
		trackedOrders: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cryptobear_tracked_orders",
			Help: "Orders currently tracked.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.ordersPlaced, m.orderFailures, m.fills, m.cycles, m.loopErrors,
			m.realizedProfit, m.inventory, m.trackedOrders,
		)
	}
	return m
}

func (m *Metrics) orderPlaced(side domain.OrderSide) {
	if m == nil {
		return
	}
	m.ordersPlaced.WithLabelValues(string(side)).Inc()
}

func (m *Metrics) orderFailed(side domain.OrderSide) {
	if m == nil {
		return
	}
	m.orderFailures.WithLabelValues(string(side)).Inc()
}

func (m *Metrics) filled(side domain.OrderSide) {
	if m == nil {
		return
	}
	m.fills.WithLabelValues(string(side)).Inc()
}

func (m *Metrics) cycle(c domain.CompletedCycle, total decimal.Decimal) {
	if m == nil {
		return
	}
	m.cycles.WithLabelValues(c.Result()).Inc()
	m.realizedProfit.Set(total.InexactFloat64())
}

func (m *Metrics) loopError(kind domain.ErrorKind) {
	if m == nil {
		return
	}
	m.loopErrors.WithLabelValues(kind.String()).Inc()
}

func (m *Metrics) state(inventory decimal.Decimal, tracked int) {
	if m == nil {
		return
	}
	m.inventory.Set(inventory.InexactFloat64())
	m.trackedOrders.Set(float64(tracked))
}
