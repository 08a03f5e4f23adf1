package metrics

import "time"

// StatsSource is satisfied by the engine type that owns the registry and
// resource-set state the collector polls. Defined here rather than
// imported from pkg/registry/pkg/resourceset to keep metrics dependency-
// free of the domain packages it instruments.
type StatsSource interface {
	ZoneCount() int
	ResourceCount() int
	ApplicationClassCount() int
	ResourceSetCountsByState() map[string]int
}

// Collector polls a StatsSource on a fixed interval and republishes its
// counts as gauges.
type Collector struct {
	source StatsSource
	stopCh chan struct{}
}

// NewCollector creates a new metrics collector over source.
func NewCollector(source StatsSource) *Collector {
	return &Collector{
		source: source,
		stopCh: make(chan struct{}),
	}
}

// Start begins collecting metrics every 15 seconds.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	ZonesTotal.Set(float64(c.source.ZoneCount()))
	ResourcesTotal.Set(float64(c.source.ResourceCount()))
	ApplicationClassesTotal.Set(float64(c.source.ApplicationClassCount()))

	for state, count := range c.source.ResourceSetCountsByState() {
		ResourceSetsTotal.WithLabelValues(state).Set(float64(count))
	}
}
