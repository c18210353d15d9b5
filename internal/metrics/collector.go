package metrics

import (
	"sync"
	"time"
)

// SessionSource yields the values the collector samples
type SessionSource func() (algorithm int, epoch uint64, hold, shutdownPending bool)

// MetricsCollector periodically copies session state into gauges
type MetricsCollector struct {
	metrics  *Metrics
	interval time.Duration
	source   SessionSource
	stop     chan struct{}
	once     sync.Once
	wg       sync.WaitGroup
}

// NewMetricsCollector creates a collector sampling source every interval
func NewMetricsCollector(m *Metrics, interval time.Duration, source SessionSource) *MetricsCollector {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &MetricsCollector{
		metrics:  m,
		interval: interval,
		source:   source,
		stop:     make(chan struct{}),
	}
}

// Start begins sampling in the background
func (c *MetricsCollector) Start() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		c.Collect()
		for {
			select {
			case <-ticker.C:
				c.Collect()
			case <-c.stop:
				return
			}
		}
	}()
}

// Collect takes one sample
func (c *MetricsCollector) Collect() {
	if c.metrics == nil || c.source == nil {
		return
	}
	c.metrics.SetSession(c.source())
}

// Stop ends sampling and waits for the goroutine to exit
func (c *MetricsCollector) Stop() {
	c.once.Do(func() { close(c.stop) })
	c.wg.Wait()
}
