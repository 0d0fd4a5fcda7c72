package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespaceLedger  = "trustflow"
	subsystemLedger  = "ledger"
	subsystemSupply  = "supply"
	subsystemRewards = "rewards"
	subsystemSweeper = "sweeper"
)

// Collector groups the ledger's prometheus instruments. A nil *Collector is
// valid and records nothing.
type Collector struct {
	txTotal        *prometheus.CounterVec
	txDuration     *prometheus.HistogramVec
	eventsTotal    *prometheus.CounterVec
	rewardsMinted  *prometheus.CounterVec
	halvingIndex   prometheus.Gauge
	emissionRate   prometheus.Gauge
	sweepProcessed *prometheus.CounterVec
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Collector {
	f := promauto.With(reg)
	return &Collector{
		txTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespaceLedger,
			Subsystem: subsystemLedger,
			Name:      "transactions_total",
			Help:      "ledger transactions by outcome (committed, or the aborting error kind)",
		}, []string{"outcome"}),
		txDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespaceLedger,
			Subsystem: subsystemLedger,
			Name:      "transaction_duration_seconds",
			Help:      "time spent inside a ledger transaction",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"mode"}),
		eventsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespaceLedger,
			Subsystem: subsystemLedger,
			Name:      "events_total",
			Help:      "committed ledger events by type",
		}, []string{"type"}),
		rewardsMinted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespaceLedger,
			Subsystem: subsystemRewards,
			Name:      "minted_units_total",
			Help:      "reward micro-units minted by routing destination",
		}, []string{"destination"}),
		halvingIndex: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespaceLedger,
			Subsystem: subsystemSupply,
			Name:      "halving_index",
			Help:      "number of emission halvings so far",
		}),
		emissionRate: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespaceLedger,
			Subsystem: subsystemSupply,
			Name:      "emission_rate_bps",
			Help:      "current reward emission rate in basis points",
		}),
		sweepProcessed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespaceLedger,
			Subsystem: subsystemSweeper,
			Name:      "processed_total",
			Help:      "items handled by sweeper jobs",
		}, []string{"job"}),
	}
}

func (c *Collector) Transaction(mode, outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.txTotal.WithLabelValues(outcome).Inc()
	c.txDuration.WithLabelValues(mode).Observe(d.Seconds())
}

func (c *Collector) Event(eventType string) {
	if c == nil {
		return
	}
	c.eventsTotal.WithLabelValues(eventType).Inc()
}

func (c *Collector) RewardMinted(destination string, units int64) {
	if c == nil {
		return
	}
	c.rewardsMinted.WithLabelValues(destination).Add(float64(units))
}

func (c *Collector) Emission(halvingIndex, rateBPS int64) {
	if c == nil {
		return
	}
	c.halvingIndex.Set(float64(halvingIndex))
	c.emissionRate.Set(float64(rateBPS))
}

func (c *Collector) Swept(job string, n int) {
	if c == nil {
		return
	}
	c.sweepProcessed.WithLabelValues(job).Add(float64(n))
}
