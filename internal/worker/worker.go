package worker

import (
	"context"
	"time"

	"k8s.io/utils/clock"

	"elastic-load/internal/logger"
	"elastic-load/internal/metrics"
	"elastic-load/internal/record"
	"elastic-load/internal/store"
)

// DelaySource は書き込み前に待つ時間を返す（rate.State が実装する）
type DelaySource interface {
	Delay() time.Duration
}

// Result は1ワーカーの処理結果
type Result struct {
	WorkerID  string
	Attempted int
	Inserted  uint64
	Throttled uint64
	Failed    uint64
	Cancelled bool
}

// Writer はレコードを1件ずつ書き込み、結果をカウンタに記録する
type Writer struct {
	store    store.Writer
	delay    DelaySource
	registry *metrics.Registry
	clock    clock.Clock
	regions  float64
}

// NewWriter は新しい Writer を作成する
//
// regions は消費キャパシティの除数（複数リージョンへの複製分を1リージョン分に換算する）
func NewWriter(st store.Writer, delay DelaySource, registry *metrics.Registry, clk clock.Clock, regions int) *Writer {
	if clk == nil {
		clk = clock.RealClock{}
	}
	if regions < 1 {
		regions = 1
	}
	return &Writer{
		store:    st,
		delay:    delay,
		registry: registry,
		clock:    clk,
		regions:  float64(regions),
	}
}

// Run は records を順に書き込む
//
// 書き込みごとのエラーはここで処理し呼び出し元には返さない。ctx がキャンセルされると次の書き込み前に止まる
func (w *Writer) Run(ctx context.Context, id string, records []record.Record) Result {
	counters := w.registry.Worker(id)
	if counters == nil {
		logger.Error(id, "Worker has no counter slot, skipping %d records", len(records))
		return Result{WorkerID: id}
	}
	global := w.registry.Global()
	latency := w.registry.Latency()
	result := Result{WorkerID: id}

	for _, rec := range records {
		if !w.wait(ctx) {
			result.Cancelled = true
			break
		}

		start := w.clock.Now()
		res := w.store.Write(ctx, rec)
		latency.Record(w.clock.Since(start))
		result.Attempted++

		counters.AddCapacity(res.Cost / w.regions)
		switch res.Outcome {
		case store.Success:
			global.IncInserted()
			counters.IncSucceeded()
			result.Inserted++
		case store.CapacityExceeded:
			global.IncThrottled()
			counters.IncThrottled()
			result.Throttled++
		default:
			global.IncFailed()
			counters.IncFailed()
			result.Failed++
			logger.Debug(id, "write %s failed: %v", rec.ID, res.Err)
		}
	}
	return result
}

// wait は現在の遅延だけ待つ。待機中に ctx が終わったら false
func (w *Writer) wait(ctx context.Context) bool {
	// 遅延は毎回読み直す。待機中の変更はこの待機には反映されない
	d := w.delay.Delay()
	if d <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-ctx.Done():
		return false
	case <-w.clock.After(d):
		return ctx.Err() == nil
	}
}
