package metrics

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultLatencySamples はP99計算に保持するサンプル数
const DefaultLatencySamples = 10000

// Latency は書き込みレイテンシを記録する
type Latency struct {
	count   atomic.Uint64
	totalNs atomic.Uint64

	mu         sync.Mutex
	samples    []time.Duration
	maxSamples int
}

// NewLatency は最大 maxSamples 件のサンプルを保持する Latency を作成する
func NewLatency(maxSamples int) *Latency {
	return &Latency{
		samples:    make([]time.Duration, 0, min(maxSamples, 1000)),
		maxSamples: maxSamples,
	}
}

// Record はレイテンシを1件記録する
func (l *Latency) Record(d time.Duration) {
	l.count.Add(1)
	l.totalNs.Add(uint64(d.Nanoseconds()))

	l.mu.Lock()
	if len(l.samples) < l.maxSamples {
		l.samples = append(l.samples, d)
	}
	l.mu.Unlock()
}

// Count は記録件数を返す
func (l *Latency) Count() uint64 {
	return l.count.Load()
}

// Average は平均レイテンシを返す
func (l *Latency) Average() time.Duration {
	n := l.count.Load()
	if n == 0 {
		return 0
	}
	return time.Duration(l.totalNs.Load() / n)
}

// P99 はP99レイテンシを返す（サンプルベース）
func (l *Latency) P99() time.Duration {
	l.mu.Lock()
	if len(l.samples) == 0 {
		l.mu.Unlock()
		return 0
	}
	sorted := make([]time.Duration, len(l.samples))
	copy(sorted, l.samples)
	l.mu.Unlock()

	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i] < sorted[j]
	})

	idx := int(float64(len(sorted)) * 0.99)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
