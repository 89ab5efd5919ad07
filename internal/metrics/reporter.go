package metrics

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"k8s.io/utils/clock"

	"elastic-load/internal/events"
	"elastic-load/internal/logger"
)

// DefaultReportInterval は進捗の集計間隔
const DefaultReportInterval = time.Second

// Interval は1回の集計間隔での差分
type Interval struct {
	Inserted       uint64
	Throttled      uint64
	Failed         uint64
	Capacity       float64
	Elapsed        time.Duration
	WritesPerSec   float64
	CapacityPerSec float64
}

// Summary は実行全体の集計
type Summary struct {
	TotalInserted     uint64        `json:"total_inserted"`
	TotalThrottled    uint64        `json:"total_throttled"`
	TotalFailed       uint64        `json:"total_failed"`
	TotalCapacity     float64       `json:"total_capacity"`
	Elapsed           time.Duration `json:"elapsed"`
	AvgWritesPerSec   float64       `json:"avg_writes_per_sec"`
	AvgCapacityPerSec float64       `json:"avg_capacity_per_sec"`
	AverageLatency    time.Duration `json:"average_latency"`
	P99Latency        time.Duration `json:"p99_latency"`
}

// Report は集計結果のテキストを返す
func (s Summary) Report() string {
	var b strings.Builder
	fmt.Fprintf(&b, "  Inserted:        %d\n", s.TotalInserted)
	fmt.Fprintf(&b, "  Throttled:       %d\n", s.TotalThrottled)
	fmt.Fprintf(&b, "  Failed:          %d\n", s.TotalFailed)
	fmt.Fprintf(&b, "  Capacity:        %.2f units\n", s.TotalCapacity)
	fmt.Fprintf(&b, "  Duration:        %v\n", s.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(&b, "  Avg writes/s:    %.2f\n", s.AvgWritesPerSec)
	fmt.Fprintf(&b, "  Avg capacity/s:  %.2f units\n", s.AvgCapacityPerSec)
	fmt.Fprintf(&b, "  Avg latency:     %v\n", s.AverageLatency)
	fmt.Fprintf(&b, "  P99 latency:     %v\n", s.P99Latency)
	return b.String()
}

// Reporter は一定間隔でカウンタを集計し進捗を出力する
//
// カウンタを読むだけでワーカーをブロックしない
type Reporter struct {
	registry *Registry
	interval time.Duration
	clock    clock.WithTicker
	eventBus *events.Bus

	mu       sync.Mutex
	prev     Snapshot
	prevAt   time.Time
	start    time.Time
	summary  Summary
	finished bool
}

// NewReporter は新しい Reporter を作成する
func NewReporter(registry *Registry, interval time.Duration, clk clock.WithTicker) *Reporter {
	if interval <= 0 {
		interval = DefaultReportInterval
	}
	if clk == nil {
		clk = clock.RealClock{}
	}
	now := clk.Now()
	return &Reporter{
		registry: registry,
		interval: interval,
		clock:    clk,
		prev:     registry.Snapshot(),
		prevAt:   now,
		start:    now,
	}
}

// SetEventBus はイベントバスを設定する
func (r *Reporter) SetEventBus(bus *events.Bus) {
	r.eventBus = bus
}

// Run は ctx がキャンセルされるまで集計を続け、最後にサマリを出力する
//
// 経過時間は NewReporter の呼び出し時点から数える
func (r *Reporter) Run(ctx context.Context) error {
	ticker := r.clock.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			summary := r.finish()
			logger.WithFields(map[string]any{
				"inserted":             summary.TotalInserted,
				"throttled":            summary.TotalThrottled,
				"failed":               summary.TotalFailed,
				"avg_writes_per_sec":   round2(summary.AvgWritesPerSec),
				"avg_capacity_per_sec": round2(summary.AvgCapacityPerSec),
			}).Infof("Summary: inserted %d docs @ %.2f writes/s with average throughput %.2f units/s over %v",
				summary.TotalInserted, summary.AvgWritesPerSec, summary.AvgCapacityPerSec, summary.Elapsed.Round(time.Millisecond))
			return nil
		case <-ticker.C():
			iv := r.Tick()
			if iv.Inserted > 0 || iv.Throttled > 0 {
				logger.Info("", "Inserted %d docs @ %.2f writes/s with average throughput %.2f units/s, throttles count %d",
					iv.Inserted, iv.WritesPerSec, iv.CapacityPerSec, iv.Throttled)
			}
		}
	}
}

// Tick は前回からの差分を計算する
func (r *Reporter) Tick() Interval {
	now := r.clock.Now()
	snap := r.registry.Snapshot()

	r.mu.Lock()
	iv := Interval{
		Inserted:  snap.Inserted - r.prev.Inserted,
		Throttled: snap.Throttled - r.prev.Throttled,
		Failed:    snap.Failed - r.prev.Failed,
		Capacity:  snap.Capacity - r.prev.Capacity,
		Elapsed:   now.Sub(r.prevAt),
	}
	r.prev = snap
	r.prevAt = now
	r.mu.Unlock()

	if secs := iv.Elapsed.Seconds(); secs > 0 {
		iv.WritesPerSec = float64(iv.Inserted) / secs
		iv.CapacityPerSec = iv.Capacity / secs
	}
	r.eventBus.Publish(events.NewProgressEvent(iv.Inserted, iv.Throttled, iv.WritesPerSec, iv.CapacityPerSec))
	return iv
}

func (r *Reporter) finish() Summary {
	snap := r.registry.Snapshot()

	r.mu.Lock()
	defer r.mu.Unlock()

	s := Summary{
		TotalInserted:  snap.Inserted,
		TotalThrottled: snap.Throttled,
		TotalFailed:    snap.Failed,
		TotalCapacity:  snap.Capacity,
		Elapsed:        r.clock.Since(r.start),
		AverageLatency: snap.AverageLatency,
		P99Latency:     snap.P99Latency,
	}
	if secs := s.Elapsed.Seconds(); secs > 0 {
		s.AvgWritesPerSec = float64(s.TotalInserted) / secs
		s.AvgCapacityPerSec = s.TotalCapacity / secs
	}
	r.summary = s
	r.finished = true
	return s
}

// Summary は Run 終了時のサマリを返す（終了前は false）
func (r *Reporter) Summary() (Summary, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.summary, r.finished
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
