package contract

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"okinoko_treasury/contract/dao"
)

type engineMetrics struct {
	deposits        *prometheus.CounterVec
	payouts         *prometheus.CounterVec
	proposals       *prometheus.CounterVec
	votes           prometheus.Counter
	pendingDeposits prometheus.Gauge
	totalShares     prometheus.Gauge
	availableFunds  prometheus.Gauge
	lockedFunds     prometheus.Gauge
}

// newEngineMetrics registers on reg; a nil registerer keeps the metrics
// local to the engine.
func newEngineMetrics(reg prometheus.Registerer) *engineMetrics {
	f := promauto.With(reg)
	return &engineMetrics{
		deposits: f.NewCounterVec(prometheus.CounterOpts{
			Name: "treasury_deposit_orders_total",
			Help: "Deposit orders by outcome",
		}, []string{"outcome"}),
		payouts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "treasury_payouts_total",
			Help: "Outbound transfers by kind and outcome",
		}, []string{"kind", "outcome"}),
		proposals: f.NewCounterVec(prometheus.CounterOpts{
			Name: "treasury_proposals_total",
			Help: "Proposals by lifecycle step",
		}, []string{"step"}),
		votes: f.NewCounter(prometheus.CounterOpts{
			Name: "treasury_votes_total",
			Help: "Votes cast",
		}),
		pendingDeposits: f.NewGauge(prometheus.GaugeOpts{
			Name: "treasury_pending_deposits",
			Help: "Deposit orders waiting for payment",
		}),
		totalShares: f.NewGauge(prometheus.GaugeOpts{
			Name: "treasury_total_shares",
			Help: "Shares outstanding (smallest unit)",
		}),
		availableFunds: f.NewGauge(prometheus.GaugeOpts{
			Name: "treasury_available_funds",
			Help: "Funds not locked by a proposal (smallest unit)",
		}),
		lockedFunds: f.NewGauge(prometheus.GaugeOpts{
			Name: "treasury_locked_funds",
			Help: "Funds locked by open proposals (smallest unit)",
		}),
	}
}

func (m *engineMetrics) observeConfig(cfg *dao.GovernanceConfig) {
	m.totalShares.Set(float64(cfg.TotalShares))
	m.availableFunds.Set(float64(cfg.AvailableFunds))
	m.lockedFunds.Set(float64(cfg.LockedFunds))
}
