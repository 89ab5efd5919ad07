package worker

import (
	"context"
	"sync"
	"sync/atomic"

	"elastic-load/internal/events"
	"elastic-load/internal/logger"
	"elastic-load/internal/record"
)

// Assignment は1ワーカーに割り当てる仕事
type Assignment struct {
	ID       string
	Count    int
	Generate func(count int) ([]record.Record, error)
}

// Pool はワーカーのゴルーチンを起動し、未完了数を追跡する
type Pool struct {
	writer   *Writer
	eventBus *events.Bus

	started atomic.Bool
	pending atomic.Int64
	done    chan struct{}
	wg      sync.WaitGroup

	mu      sync.Mutex
	results []Result
}

// NewPool は新しいワーカープールを作成する
func NewPool(writer *Writer) *Pool {
	return &Pool{
		writer: writer,
		done:   make(chan struct{}),
	}
}

// SetEventBus はイベントバスを設定する
func (p *Pool) SetEventBus(bus *events.Bus) {
	p.eventBus = bus
}

// Start は割り当てごとにワーカーを1つ起動する（2回目以降は何もしない）
func (p *Pool) Start(ctx context.Context, assignments []Assignment) {
	if p.started.Swap(true) {
		return
	}

	p.pending.Store(int64(len(assignments)))
	if len(assignments) == 0 {
		close(p.done)
		return
	}

	for _, a := range assignments {
		p.wg.Add(1)
		go p.worker(ctx, a)
	}

	logger.Info("", "WorkerPool started with %d workers", len(assignments))
}

// worker は個々のワーカーゴルーチン
func (p *Pool) worker(ctx context.Context, a Assignment) {
	defer p.wg.Done()
	defer p.finish()

	records, err := a.Generate(a.Count)
	if err != nil {
		logger.Error(a.ID, "Generating %d records failed: %v", a.Count, err)
		p.record(Result{WorkerID: a.ID})
		return
	}

	result := p.writer.Run(ctx, a.ID, records)
	p.record(result)

	logger.Debug(a.ID, "Worker finished (inserted %d, throttled %d, failed %d)",
		result.Inserted, result.Throttled, result.Failed)
	p.eventBus.Publish(events.NewWorkerFinishedEvent(a.ID, result.Inserted, result.Throttled, result.Failed))
}

func (p *Pool) record(r Result) {
	p.mu.Lock()
	p.results = append(p.results, r)
	p.mu.Unlock()
}

// finish は未完了数を減らし、最後のワーカーで Done を閉じる
func (p *Pool) finish() {
	if p.pending.Add(-1) == 0 {
		close(p.done)
	}
}

// Done は全ワーカーの終了時に閉じられるチャネルを返す
func (p *Pool) Done() <-chan struct{} {
	return p.done
}

// Pending は未完了のワーカー数を返す
func (p *Pool) Pending() int {
	return int(p.pending.Load())
}

// Wait は全ワーカーの終了を待ち、結果を返す
func (p *Pool) Wait() []Result {
	p.wg.Wait()
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Result, len(p.results))
	copy(out, p.results)
	return out
}
