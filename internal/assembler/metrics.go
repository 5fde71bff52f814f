package assembler

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

const (
	// MetricsSubsystem is a subsystem shared by all metrics exposed by this
	// package.
	MetricsSubsystem = "assembler"
)

// Metrics contains metrics exposed by this package.
type Metrics struct {
	// Number of transactions accepted by the ledger.
	Submitted metrics.Counter
	// Number of rejected transactions, labelled by the validator code.
	Rejected metrics.Counter
	// Number of items in submitted batches.
	BatchSize metrics.Histogram
	// Number of open orders after the last submission.
	OpenOrders metrics.Gauge
}

// PrometheusMetrics returns Metrics registered with reg.
func PrometheusMetrics(reg stdprometheus.Registerer, namespace string) *Metrics {
	submitted := stdprometheus.NewCounterVec(stdprometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: MetricsSubsystem,
		Name:      "submitted_txs",
		Help:      "Number of transactions accepted by the ledger.",
	}, []string{})
	rejected := stdprometheus.NewCounterVec(stdprometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: MetricsSubsystem,
		Name:      "rejected_txs",
		Help:      "Number of rejected transactions by validator code.",
	}, []string{"code"})
	batchSize := stdprometheus.NewHistogramVec(stdprometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: MetricsSubsystem,
		Name:      "batch_size",
		Help:      "Number of items in submitted batches.",
		Buckets:   stdprometheus.LinearBuckets(1, 1, 10),
	}, []string{})
	openOrders := stdprometheus.NewGaugeVec(stdprometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: MetricsSubsystem,
		Name:      "open_orders",
		Help:      "Number of open orders at the contract.",
	}, []string{})
	reg.MustRegister(submitted, rejected, batchSize, openOrders)

	return &Metrics{
		Submitted:  prometheus.NewCounter(submitted),
		Rejected:   prometheus.NewCounter(rejected),
		BatchSize:  prometheus.NewHistogram(batchSize),
		OpenOrders: prometheus.NewGauge(openOrders),
	}
}

// NopMetrics returns no-op Metrics.
func NopMetrics() *Metrics {
	return &Metrics{
		Submitted:  discard.NewCounter(),
		Rejected:   discard.NewCounter(),
		BatchSize:  discard.NewHistogram(),
		OpenOrders: discard.NewGauge(),
	}
}
