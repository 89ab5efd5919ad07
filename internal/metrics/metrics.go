package metrics

import (
	"math"
	"sync/atomic"
	"time"

	"k8s.io/utils/clock"
)

// floatCounter は float64 を atomic に加算するカウンタ
type floatCounter struct {
	bits atomic.Uint64
}

func (f *floatCounter) Add(v float64) {
	for {
		old := f.bits.Load()
		next := math.Float64bits(math.Float64frombits(old) + v)
		if f.bits.CompareAndSwap(old, next) {
			return
		}
	}
}

func (f *floatCounter) Load() float64 {
	return math.Float64frombits(f.bits.Load())
}

// WorkerCounters は1ワーカー分のカウンタ
//
// 書き込むのは所有ワーカーのみ。集計側は atomic に読み取る
type WorkerCounters struct {
	id        string
	capacity  floatCounter
	succeeded atomic.Uint64
	throttled atomic.Uint64
	failed    atomic.Uint64
}

// ID はワーカーIDを返す
func (c *WorkerCounters) ID() string { return c.id }

// AddCapacity は消費キャパシティを加算する
func (c *WorkerCounters) AddCapacity(cost float64) { c.capacity.Add(cost) }

func (c *WorkerCounters) IncSucceeded() { c.succeeded.Add(1) }
func (c *WorkerCounters) IncThrottled() { c.throttled.Add(1) }
func (c *WorkerCounters) IncFailed()    { c.failed.Add(1) }

func (c *WorkerCounters) Capacity() float64 { return c.capacity.Load() }
func (c *WorkerCounters) Succeeded() uint64 { return c.succeeded.Load() }
func (c *WorkerCounters) Throttled() uint64 { return c.throttled.Load() }
func (c *WorkerCounters) Failed() uint64    { return c.failed.Load() }

// Global はプロセス全体のカウンタ
type Global struct {
	inserted  atomic.Uint64
	throttled atomic.Uint64
	failed    atomic.Uint64
}

func (g *Global) IncInserted()  { g.inserted.Add(1) }
func (g *Global) IncThrottled() { g.throttled.Add(1) }
func (g *Global) IncFailed()    { g.failed.Add(1) }

func (g *Global) Inserted() uint64  { return g.inserted.Load() }
func (g *Global) Throttled() uint64 { return g.throttled.Load() }
func (g *Global) Failed() uint64    { return g.failed.Load() }

// Registry は実行中の全カウンタを保持する
//
// ワーカーのカウンタはワーカー起動前に全て作成され、以降マップは変更されない
type Registry struct {
	global  Global
	workers map[string]*WorkerCounters
	order   []string
	latency *Latency
	clock   clock.PassiveClock
	start   time.Time
}

// NewRegistry はワーカーIDごとのカウンタを持つ Registry を作成する
func NewRegistry(workerIDs []string, clk clock.PassiveClock) *Registry {
	if clk == nil {
		clk = clock.RealClock{}
	}
	r := &Registry{
		workers: make(map[string]*WorkerCounters, len(workerIDs)),
		order:   make([]string, 0, len(workerIDs)),
		latency: NewLatency(DefaultLatencySamples),
		clock:   clk,
		start:   clk.Now(),
	}
	for _, id := range workerIDs {
		if _, exists := r.workers[id]; exists {
			continue
		}
		r.workers[id] = &WorkerCounters{id: id}
		r.order = append(r.order, id)
	}
	return r
}

// Global はプロセス全体のカウンタを返す
func (r *Registry) Global() *Global {
	return &r.global
}

// Worker はワーカーのカウンタを返す（未登録なら nil）
func (r *Registry) Worker(id string) *WorkerCounters {
	return r.workers[id]
}

// Workers は登録順に全カウンタを返す
func (r *Registry) Workers() []*WorkerCounters {
	out := make([]*WorkerCounters, len(r.order))
	for i, id := range r.order {
		out[i] = r.workers[id]
	}
	return out
}

// Latency は書き込みレイテンシの記録先を返す
func (r *Registry) Latency() *Latency {
	return r.latency
}

// Started は Registry の作成時刻を返す
func (r *Registry) Started() time.Time {
	return r.start
}

// TotalCapacity は全ワーカーの消費キャパシティ合計を返す
func (r *Registry) TotalCapacity() float64 {
	var total float64
	for _, c := range r.workers {
		total += c.Capacity()
	}
	return total
}

// Snapshot はある時点のカウンタ値
type Snapshot struct {
	Inserted       uint64        `json:"inserted"`
	Throttled      uint64        `json:"throttled"`
	Failed         uint64        `json:"failed"`
	Capacity       float64       `json:"capacity"`
	Workers        int           `json:"workers"`
	Elapsed        time.Duration `json:"elapsed"`
	WritesPerSec   float64       `json:"writes_per_sec"`
	CapacityPerSec float64       `json:"capacity_per_sec"`
	AverageLatency time.Duration `json:"average_latency"`
	P99Latency     time.Duration `json:"p99_latency"`
}

// Snapshot は現在のスナップショットを返す
func (r *Registry) Snapshot() Snapshot {
	s := Snapshot{
		Inserted:       r.global.Inserted(),
		Throttled:      r.global.Throttled(),
		Failed:         r.global.Failed(),
		Capacity:       r.TotalCapacity(),
		Workers:        len(r.workers),
		Elapsed:        r.clock.Since(r.start),
		AverageLatency: r.latency.Average(),
		P99Latency:     r.latency.P99(),
	}
	if secs := s.Elapsed.Seconds(); secs > 0 {
		s.WritesPerSec = float64(s.Inserted) / secs
		s.CapacityPerSec = s.Capacity / secs
	}
	return s
}
