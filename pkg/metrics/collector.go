package metrics

import (
	"strconv"
	"time"
)

// Source is the minimal surface the periodic collector needs from the
// running server, kept as an interface (rather than importing pkg/server
// directly) because pkg/server itself reports into these gauges on the hot
// path and a direct import would cycle.
type Source interface {
	ConnectedClients() int
	KeysByDB() map[int]int
	ReplicaCount() int
	DirtySinceSave() int64
	SwappedObjects() int
}

// Collector periodically samples Source into the package gauges, the way
// the teacher's Collector samples its manager on a ticker.
type Collector struct {
	source Source
	stopCh chan struct{}
}

func NewCollector(source Source) *Collector {
	return &Collector{source: source, stopCh: make(chan struct{})}
}

func (c *Collector) Start(interval time.Duration) {
	ticker := time.NewTicker(interval)
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

func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	ConnectedClients.Set(float64(c.source.ConnectedClients()))
	ReplicaCount.Set(float64(c.source.ReplicaCount()))
	DirtySinceSave.Set(float64(c.source.DirtySinceSave()))
	VMSwappedObjects.Set(float64(c.source.SwappedObjects()))
	for db, n := range c.source.KeysByDB() {
		KeysTotal.WithLabelValues(strconv.Itoa(db)).Set(float64(n))
	}
}
