package internal

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics 按操作统计调用次数、失败次数与累计耗时。
type Metrics struct {
	ops sync.Map // string -> *opCounters
}

type opCounters struct {
	calls     atomic.Uint64
	failures  atomic.Uint64
	latencyNs atomic.Uint64
}

// OpStats 单个操作的统计快照。
type OpStats struct {
	Op         string
	Calls      uint64
	Failures   uint64
	AvgLatency time.Duration
}

func (m *Metrics) observe(op string, elapsed time.Duration, failed bool) {
	counters, ok := m.ops.Load(op)
	if !ok {
		counters, _ = m.ops.LoadOrStore(op, &opCounters{})
	}
	c := counters.(*opCounters)
	c.calls.Add(1)
	c.latencyNs.Add(uint64(elapsed.Nanoseconds()))
	if failed {
		c.failures.Add(1)
	}
}

// Snapshot 按操作名排序返回当前统计。
func (m *Metrics) Snapshot() []OpStats {
	var stats []OpStats
	m.ops.Range(func(key, value any) bool {
		c := value.(*opCounters)
		calls := c.calls.Load()
		s := OpStats{Op: key.(string), Calls: calls, Failures: c.failures.Load()}
		if calls > 0 {
			s.AvgLatency = time.Duration(c.latencyNs.Load() / calls)
		}
		stats = append(stats, s)
		return true
	})
	sort.Slice(stats, func(i, j int) bool {
		return stats[i].Op < stats[j].Op
	})
	return stats
}
