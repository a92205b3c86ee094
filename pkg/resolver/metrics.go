package resolver

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	queryDesc = prometheus.NewDesc(
		"resolver_query_total",
		"Number of resolve requests, by how they were answered.",
		[]string{"resolver", "family", "kind"}, nil,
	)
	recordDesc = prometheus.NewDesc(
		"resolver_driver_record_total",
		"Number of records delivered by the driver, by outcome.",
		[]string{"resolver", "family", "outcome"}, nil,
	)
	memCapacityDesc = prometheus.NewDesc(
		"resolver_memory_capacity",
		"Capacity of the runtime tables.",
		[]string{"resolver", "family", "table"}, nil,
	)
	memLengthDesc = prometheus.NewDesc(
		"resolver_memory_length",
		"Number of entries in the runtime tables.",
		[]string{"resolver", "family", "table"}, nil,
	)
)

// Collector exports the stats of resolvers as prometheus metrics.
type Collector struct {
	mu        sync.RWMutex
	resolvers map[string]*Resolver
}

var _ prometheus.Collector = (*Collector)(nil)

func NewCollector(resolvers ...*Resolver) *Collector {
	c := &Collector{resolvers: make(map[string]*Resolver, len(resolvers))}
	for _, r := range resolvers {
		c.Add(r)
	}
	return c
}

// Add starts exporting r, replacing a resolver of the same name.
func (c *Collector) Add(r *Resolver) {
	c.mu.Lock()
	c.resolvers[r.Name()] = r
	c.mu.Unlock()
}

func (c *Collector) Remove(name string) {
	c.mu.Lock()
	delete(c.resolvers, name)
	c.mu.Unlock()
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- queryDesc
	ch <- recordDesc
	ch <- memCapacityDesc
	ch <- memLengthDesc
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, r := range c.resolvers {
		for _, f := range [...]Family{FamilyV4, FamilyV6} {
			collectFamily(ch, r.Name(), f, r.stats)
		}
	}
}

func collectFamily(ch chan<- prometheus.Metric, name string, f Family, s *Stats) {
	family := f.String()
	q := s.Query(f)
	counter := func(desc *prometheus.Desc, v uint64, label string) {
		ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, float64(v), name, family, label)
	}
	counter(queryDesc, q.QueryTotal(), "total")
	counter(queryDesc, q.QueryCached(), "cached")
	counter(queryDesc, q.QueryTrashed(), "trashed")
	counter(queryDesc, q.QueryDriver(), "driver")
	counter(recordDesc, q.RecordOK(), "ok")
	counter(recordDesc, q.RecordNegative(), "negative")
	counter(recordDesc, q.RecordFailed(), "failed")

	m := s.Memory(f)
	gauge := func(desc *prometheus.Desc, v int, table string) {
		ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, float64(v), name, family, table)
	}
	gauge(memCapacityDesc, m.CacheCapacity(), "cache")
	gauge(memLengthDesc, m.CacheLength(), "cache")
	gauge(memCapacityDesc, m.DoingCapacity(), "doing")
	gauge(memLengthDesc, m.DoingLength(), "doing")
	gauge(memCapacityDesc, m.TrashCapacity(), "trash")
	gauge(memLengthDesc, m.TrashLength(), "trash")
}
