package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the coin core's Prometheus instruments. A nil *Metrics is
// valid and records nothing, which keeps service tests free of registries.
type Metrics struct {
	topupSessions      *prometheus.CounterVec
	topupSettlements   *prometheus.CounterVec
	transfers          *prometheus.CounterVec
	callbackRejections *prometheus.CounterVec
}

// New registers the coin core instruments with the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		topupSessions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "novelink_topup_sessions_total",
			Help: "Checkout sessions created, by provider.",
		}, []string{"provider"}),
		topupSettlements: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "novelink_topup_settlements_total",
			Help: "Topup entries reaching a terminal status, by provider and outcome.",
		}, []string{"provider", "outcome"}),
		transfers: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "novelink_transfers_total",
			Help: "Internal coin transfers, by kind.",
		}, []string{"kind"}),
		callbackRejections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "novelink_callback_rejections_total",
			Help: "Provider callbacks rejected before any state mutation.",
		}, []string{"provider", "reason"}),
	}
}

// TopupSessionCreated counts one checkout session.
func (m *Metrics) TopupSessionCreated(provider string) {
	if m == nil {
		return
	}
	m.topupSessions.WithLabelValues(provider).Inc()
}

// TopupSettled counts one terminal topup outcome.
func (m *Metrics) TopupSettled(provider, outcome string) {
	if m == nil {
		return
	}
	m.topupSettlements.WithLabelValues(provider, outcome).Inc()
}

// TransferCompleted counts one purchase or gift.
func (m *Metrics) TransferCompleted(kind string) {
	if m == nil {
		return
	}
	m.transfers.WithLabelValues(kind).Inc()
}

// CallbackRejected counts one rejected callback.
func (m *Metrics) CallbackRejected(provider, reason string) {
	if m == nil {
		return
	}
	m.callbackRejections.WithLabelValues(provider, reason).Inc()
}
