package shuttle

import "sync/atomic"

type counters struct {
	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
	puts      atomic.Int64
}

func (c *counters) snapshot() Stats {
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
		Puts:      c.puts.Load(),
	}
}
