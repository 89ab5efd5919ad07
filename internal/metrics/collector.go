package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "elastic_load"

var (
	insertedDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "inserted_total"),
		"Documents written successfully.", nil, nil)
	throttledDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "throttled_total"),
		"Write attempts rejected for exceeding capacity.", nil, nil)
	failedDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "failed_total"),
		"Write attempts that failed for other reasons.", nil, nil)
	capacityDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "consumed_capacity_total"),
		"Capacity units consumed by all write attempts.", nil, nil)
	workerCapacityDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "worker", "consumed_capacity_total"),
		"Capacity units consumed per worker.", []string{"worker"}, nil)
	delayDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "write_delay_seconds"),
		"Current delay between writes.", nil, nil)
	pendingDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "pending_workers"),
		"Workers that have not finished their records.", nil, nil)
)

// Collector は Registry の値を Prometheus に公開する
type Collector struct {
	registry *Registry
	delay    func() time.Duration
	pending  func() int
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector は新しい Collector を作成する（delay, pending は nil 可）
func NewCollector(registry *Registry, delay func() time.Duration, pending func() int) *Collector {
	return &Collector{registry: registry, delay: delay, pending: pending}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- insertedDesc
	ch <- throttledDesc
	ch <- failedDesc
	ch <- capacityDesc
	ch <- workerCapacityDesc
	ch <- delayDesc
	ch <- pendingDesc
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	g := c.registry.Global()
	ch <- prometheus.MustNewConstMetric(insertedDesc, prometheus.CounterValue, float64(g.Inserted()))
	ch <- prometheus.MustNewConstMetric(throttledDesc, prometheus.CounterValue, float64(g.Throttled()))
	ch <- prometheus.MustNewConstMetric(failedDesc, prometheus.CounterValue, float64(g.Failed()))
	ch <- prometheus.MustNewConstMetric(capacityDesc, prometheus.CounterValue, c.registry.TotalCapacity())
	for _, w := range c.registry.Workers() {
		ch <- prometheus.MustNewConstMetric(workerCapacityDesc, prometheus.CounterValue, w.Capacity(), w.ID())
	}
	if c.delay != nil {
		ch <- prometheus.MustNewConstMetric(delayDesc, prometheus.GaugeValue, c.delay().Seconds())
	}
	if c.pending != nil {
		ch <- prometheus.MustNewConstMetric(pendingDesc, prometheus.GaugeValue, float64(c.pending()))
	}
}
