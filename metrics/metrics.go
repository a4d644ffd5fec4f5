package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds the Prometheus collectors of the sales pipeline. The
// occupancy gauge and wait histograms are informational: they sample the
// queue around its blocking operations and are not part of the correctness
// contract.
type Collector struct {
	salesProduced *prometheus.CounterVec
	salesConsumed *prometheus.CounterVec

	queueOccupancy  prometheus.Gauge
	activeProducers prometheus.Gauge

	putWait  prometheus.Histogram
	takeWait prometheus.Histogram
}

// NewCollector creates and registers all pipeline metrics on the given
// registry.
func NewCollector(registry prometheus.Registerer) *Collector {
	factory := promauto.With(registry)

	return &Collector{
		salesProduced: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "salespipeline_sales_produced_total",
				Help: "Total number of sales put on the queue",
			},
			[]string{"worker"},
		),
		salesConsumed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "salespipeline_sales_consumed_total",
				Help: "Total number of sales taken off the queue",
			},
			[]string{"worker"},
		),
		queueOccupancy: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "salespipeline_queue_occupancy",
				Help: "Items currently buffered in the queue",
			},
		),
		activeProducers: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "salespipeline_active_producers",
				Help: "Producers that have not yet announced completion",
			},
		),
		putWait: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "salespipeline_put_wait_seconds",
				Help:    "Time producers spend blocked waiting for a free slot",
				Buckets: prometheus.DefBuckets,
			},
		),
		takeWait: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "salespipeline_take_wait_seconds",
				Help:    "Time consumers spend blocked waiting for an item",
				Buckets: prometheus.DefBuckets,
			},
		),
	}
}

// IncSalesProduced increments the produced counter for a cashier.
func (c *Collector) IncSalesProduced(worker string) {
	c.salesProduced.WithLabelValues(worker).Inc()
}

// IncSalesConsumed increments the consumed counter for a manager.
func (c *Collector) IncSalesConsumed(worker string) {
	c.salesConsumed.WithLabelValues(worker).Inc()
}

// SetOccupancy records the queue occupancy observed after a put or take.
func (c *Collector) SetOccupancy(n int) {
	c.queueOccupancy.Set(float64(n))
}

// SetActiveProducers records the remaining producer count.
func (c *Collector) SetActiveProducers(n int) {
	c.activeProducers.Set(float64(n))
}

// ObservePutWait records how long a producer was blocked in Put.
func (c *Collector) ObservePutWait(seconds float64) {
	c.putWait.Observe(seconds)
}

// ObserveTakeWait records how long a consumer was blocked in Take.
func (c *Collector) ObserveTakeWait(seconds float64) {
	c.takeWait.Observe(seconds)
}
