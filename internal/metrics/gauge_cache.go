package metrics

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// gaugeSnapshot is one controller type's published per-state census: the
// population count and the above-SLA count for every (state, substate)
// pair observed during the iteration that produced it.
type gaugeSnapshot struct {
	counts     []StateCount
	aboveSLA   []StateCount
	recordedAt time.Time
}

// GaugeCache is the cached metrics tier: a single-writer, many-reader
// value per controller type, swapped atomically once per iteration. A
// Prometheus scrape reads whatever was last published; if nothing has
// been published within the freshness window the controller type's
// gauges are omitted from the scrape entirely rather than serving a
// stale number forever. This mirrors what a dead or wedged controller
// should look like to an operator: absent, not frozen.
//
// GaugeCache implements prometheus.Collector directly so that staleness
// can be enforced at collect time instead of at write time.
type GaugeCache struct {
	freshnessWindow time.Duration

	mu    sync.Mutex                          // guards creation of entries, not the entries themselves
	cells map[string]*atomic.Pointer[gaugeSnapshot]

	countDesc    *prometheus.Desc
	aboveSLADesc *prometheus.Desc
}

// NewGaugeCache returns a cache that treats a published snapshot as stale
// once it is older than freshnessWindow.
func NewGaugeCache(freshnessWindow time.Duration) *GaugeCache {
	return &GaugeCache{
		freshnessWindow: freshnessWindow,
		cells:           make(map[string]*atomic.Pointer[gaugeSnapshot]),
		countDesc: prometheus.NewDesc(
			"fleet_controller_per_state_count",
			"Cached population count of objects currently in a state; omitted once stale.",
			[]string{"controller_type", "state", "substate"}, nil,
		),
		aboveSLADesc: prometheus.NewDesc(
			"fleet_controller_per_state_above_sla",
			"Cached count of objects whose time in state exceeds its SLA; omitted once stale.",
			[]string{"controller_type", "state", "substate"}, nil,
		),
	}
}

var _ prometheus.Collector = (*GaugeCache)(nil)

// Publish atomically replaces the snapshot for controllerType.
func (c *GaugeCache) Publish(controllerType string, counts, aboveSLA []StateCount, recordedAt time.Time) {
	c.cell(controllerType).Store(&gaugeSnapshot{
		counts:     counts,
		aboveSLA:   aboveSLA,
		recordedAt: recordedAt,
	})
}

func (c *GaugeCache) cell(controllerType string) *atomic.Pointer[gaugeSnapshot] {
	c.mu.Lock()
	defer c.mu.Unlock()
	cell, ok := c.cells[controllerType]
	if !ok {
		cell = &atomic.Pointer[gaugeSnapshot]{}
		c.cells[controllerType] = cell
	}
	return cell
}

// Describe implements prometheus.Collector.
func (c *GaugeCache) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.countDesc
	ch <- c.aboveSLADesc
}

// Collect implements prometheus.Collector. Controller types with no
// snapshot, or whose snapshot has aged past the freshness window, emit
// nothing for this scrape.
func (c *GaugeCache) Collect(ch chan<- prometheus.Metric) {
	c.mu.Lock()
	cells := make(map[string]*atomic.Pointer[gaugeSnapshot], len(c.cells))
	for controllerType, cell := range c.cells {
		cells[controllerType] = cell
	}
	c.mu.Unlock()

	now := time.Now()
	for controllerType, cell := range cells {
		snapshot := cell.Load()
		if snapshot == nil || now.Sub(snapshot.recordedAt) > c.freshnessWindow {
			continue
		}
		for _, sc := range snapshot.counts {
			ch <- prometheus.MustNewConstMetric(
				c.countDesc, prometheus.GaugeValue, float64(sc.Count),
				controllerType, sc.State, sc.Substate,
			)
		}
		for _, sc := range snapshot.aboveSLA {
			ch <- prometheus.MustNewConstMetric(
				c.aboveSLADesc, prometheus.GaugeValue, float64(sc.Count),
				controllerType, sc.State, sc.Substate,
			)
		}
	}
}
