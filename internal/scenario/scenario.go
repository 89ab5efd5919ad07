package scenario

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
	"k8s.io/utils/clock"

	"elastic-load/internal/api"
	"elastic-load/internal/events"
	"elastic-load/internal/keydist"
	"elastic-load/internal/loaderrors"
	"elastic-load/internal/logger"
	"elastic-load/internal/metrics"
	"elastic-load/internal/rate"
	"elastic-load/internal/record"
	"elastic-load/internal/store"
	"elastic-load/internal/worker"
)

// teardownTimeout はキャンセル後でもクリーンアップに使える時間
const teardownTimeout = 30 * time.Second

// Result はシナリオ実行結果
type Result struct {
	ScenarioName string
	StoreName    string
	StartTime    time.Time
	EndTime      time.Time
	Duration     time.Duration

	// ワークロード
	Workers          int
	RecordsPerWorker int
	PlannedRecords   int

	// メトリクス
	Inserted       uint64
	Throttled      uint64
	Failed         uint64
	Capacity       float64
	WritesPerSec   float64
	CapacityPerSec float64
	AvgLatency     time.Duration
	P99Latency     time.Duration

	// レート制御
	RateChanges uint64
	FinalDelay  time.Duration

	Cancelled     bool
	CleanedUp     bool
	WorkerResults []worker.Result
}

// Option は Engine の設定関数
type Option func(*Engine)

// WithClock は待機・ティッカーに使う時計を差し替える
func WithClock(clk clock.WithTicker) Option {
	return func(e *Engine) { e.clock = clk }
}

// WithEventBus はイベントバスを設定する
func WithEventBus(bus *events.Bus) Option {
	return func(e *Engine) { e.eventBus = bus }
}

// Engine はシナリオ実行エンジン
type Engine struct {
	config   Config
	store    store.Store
	clock    clock.WithTicker
	eventBus *events.Bus

	mu         sync.RWMutex
	running    bool
	registry   *metrics.Registry
	state      *rate.State
	pool       *worker.Pool
	controller *rate.Controller
	gatherer   *prometheus.Registry
}

// New は新しいEngineを作成する
//
// Engine は st の Setup と Close を受け持つ
func New(config Config, st store.Store, opts ...Option) *Engine {
	e := &Engine{
		config: config,
		store:  st,
		clock:  clock.RealClock{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Config はシナリオ設定を返す
func (e *Engine) Config() Config {
	return e.config
}

// Run はシナリオを実行する
//
// 設定エラーとセットアップ失敗はワーカー起動前に返る。書き込みごとのエラーは結果に集計される
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil, errors.New("scenario is already running")
	}
	e.running = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	if e.store == nil {
		return nil, &loaderrors.ErrConfiguration{Name: "store.backend", Message: "no store configured"}
	}
	// ワーカー起動前に失敗した場合もストアは閉じる
	var listener net.Listener
	abort := func(err error) (*Result, error) {
		if listener != nil {
			_ = listener.Close()
		}
		_ = e.store.Close()
		return nil, err
	}

	if err := e.config.Validate(); err != nil {
		return abort(err)
	}
	dist, err := e.config.Distribution()
	if err != nil {
		return abort(err)
	}
	// ワーカー起動前にジェネレータ設定の誤りを検出する
	if _, err := record.NewGenerator(dist, e.config.Seed, e.generatorOptions()...); err != nil {
		return abort(err)
	}
	writer, err := e.writerStore()
	if err != nil {
		return abort(err)
	}

	workers := e.config.ResolvedWorkers()
	counts := SplitRecords(e.config.TotalRecords, workers)
	ids := make([]string, workers)
	for i := range ids {
		ids[i] = fmt.Sprintf("worker-%d", i+1)
	}

	logger.Info("", "=== Scenario '%s' started ===", e.config.Name)
	logger.Info("", "Description: %s", e.config.Description)
	logger.Info("", "Store: %s, Workers: %d, Records per worker: %d", writer.Name(), workers, countOf(counts))

	if e.config.APIAddr != "" {
		listener, err = api.Listen(e.config.APIAddr)
		if err != nil {
			return abort(&loaderrors.ErrSetupFailure{Resource: "api server", Err: err})
		}
	}
	if err := e.setupStore(ctx); err != nil {
		return abort(err)
	}

	registry := metrics.NewRegistry(ids, e.clock)
	state := rate.NewState(e.config.Rate.InitialDelay)
	w := worker.NewWriter(writer, state, registry, e.clock, e.config.Regions)
	pool := worker.NewPool(w)
	pool.SetEventBus(e.eventBus)

	var controller *rate.Controller
	if e.config.Rate.Enabled {
		controller, err = rate.NewController(state, e.config.Rate, e.clock, e.config.Seed)
		if err != nil {
			return abort(err)
		}
		controller.SetEventBus(e.eventBus)
	}

	gatherer := prometheus.NewRegistry()
	if err := gatherer.Register(metrics.NewCollector(registry, state.Delay, pool.Pending)); err != nil {
		return abort(errors.Wrap(err, "registering metrics collector"))
	}

	e.mu.Lock()
	e.registry = registry
	e.state = state
	e.pool = pool
	e.controller = controller
	e.gatherer = gatherer
	e.mu.Unlock()

	reporter := metrics.NewReporter(registry, e.config.ReportInterval, e.clock)
	reporter.SetEventBus(e.eventBus)

	result := &Result{
		ScenarioName:     e.config.Name,
		StoreName:        writer.Name(),
		StartTime:        e.clock.Now(),
		Workers:          workers,
		RecordsPerWorker: countOf(counts),
		PlannedRecords:   countOf(counts) * workers,
	}
	e.eventBus.Publish(events.NewRunStartedEvent(workers))

	// バックグラウンドタスクはワーカーが全て終わった時点で止める。その失敗でワーカーは止めない
	bgCtx, stopBackground := context.WithCancel(ctx)
	defer stopBackground()
	g, gctx := errgroup.WithContext(bgCtx)
	g.Go(func() error { return reporter.Run(gctx) })
	if controller != nil {
		g.Go(func() error { return controller.Run(gctx) })
	}
	if listener != nil {
		server := api.NewServer(e, e.eventBus, gatherer)
		g.Go(func() error { return server.Serve(gctx, listener) })
	}

	workCtx, cancelWork := context.WithCancel(ctx)
	defer cancelWork()
	pool.Start(workCtx, e.assignments(dist, ids, counts))

	select {
	case <-pool.Done():
	case <-ctx.Done():
		logger.Warn("", "Run interrupted, waiting for in-flight writes to finish...")
		cancelWork()
		<-pool.Done()
	}
	result.WorkerResults = pool.Wait()

	stopBackground()
	var runErr error
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		runErr = multierror.Append(runErr, errors.Wrap(err, "background task"))
	}

	e.collectResults(result, registry, state, controller)
	result.Cancelled = ctx.Err() != nil
	for _, wr := range result.WorkerResults {
		if wr.Cancelled {
			result.Cancelled = true
		}
	}

	if err := e.finish(ctx, result); err != nil {
		runErr = multierror.Append(runErr, err)
	}

	e.eventBus.Publish(events.NewRunCompletedEvent(result.Inserted, result.Throttled, result.Failed, result.Cancelled, runErr))
	logger.Info("", "=== Scenario '%s' completed ===", e.config.Name)

	return result, runErr
}

// writerStore はスロットリングポリシーに応じて書き込み先を返す
func (e *Engine) writerStore() (store.Store, error) {
	if e.config.ThrottlePolicy != PolicyRetry {
		return e.store, nil
	}
	return store.NewRetrying(e.store, e.config.Retry)
}

func (e *Engine) setupStore(ctx context.Context) error {
	if err := e.store.Setup(ctx); err != nil {
		if loaderrors.IsSetupFailure(err) {
			return err
		}
		return &loaderrors.ErrSetupFailure{Resource: e.store.Name(), Err: err}
	}
	return nil
}

func (e *Engine) generatorOptions() []record.Option {
	kind := e.config.Kind
	if kind == "" {
		kind = record.KindTransactions
	}
	opts := []record.Option{
		record.WithKind(kind),
		record.WithNow(e.clock.Now),
	}
	if kind == record.KindTemplate {
		opts = append(opts, record.WithTemplate(e.config.Template, e.config.KeyField))
	}
	return opts
}

// assignments はワーカーごとに独立したジェネレータを持つ割り当てを作る
func (e *Engine) assignments(dist *keydist.Distribution, ids []string, counts []int) []worker.Assignment {
	out := make([]worker.Assignment, len(ids))
	for i, id := range ids {
		seed := e.config.Seed + int64(i)
		out[i] = worker.Assignment{
			ID:    id,
			Count: counts[i],
			Generate: func(count int) ([]record.Record, error) {
				gen, err := record.NewGenerator(dist, seed, e.generatorOptions()...)
				if err != nil {
					return nil, err
				}
				return gen.Generate(count)
			},
		}
	}
	return out
}

// collectResults は結果を収集する
func (e *Engine) collectResults(result *Result, registry *metrics.Registry, state *rate.State, controller *rate.Controller) {
	result.EndTime = e.clock.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)

	snapshot := registry.Snapshot()
	result.Inserted = snapshot.Inserted
	result.Throttled = snapshot.Throttled
	result.Failed = snapshot.Failed
	result.Capacity = snapshot.Capacity
	result.AvgLatency = snapshot.AverageLatency
	result.P99Latency = snapshot.P99Latency
	if secs := result.Duration.Seconds(); secs > 0 {
		result.WritesPerSec = float64(result.Inserted) / secs
		result.CapacityPerSec = result.Capacity / secs
	}

	result.FinalDelay = state.Delay()
	if controller != nil {
		result.RateChanges = controller.Changes()
	}
}

// finish は必要ならテストリソースを削除し、ストアを閉じる
func (e *Engine) finish(ctx context.Context, result *Result) error {
	var errs error
	if e.config.CleanupOnFinish {
		tctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), teardownTimeout)
		defer cancel()
		logger.Info("", "Cleaning up %s resources...", e.store.Name())
		if err := e.store.Teardown(tctx); err != nil {
			errs = multierror.Append(errs, errors.Wrapf(err, "tearing down %s", e.store.Name()))
		} else {
			result.CleanedUp = true
		}
	}
	if err := e.store.Close(); err != nil {
		errs = multierror.Append(errs, errors.Wrapf(err, "closing %s", e.store.Name()))
	}
	return errs
}

func countOf(counts []int) int {
	if len(counts) == 0 {
		return 0
	}
	return counts[0]
}

// Report は結果をフォーマットして返す
func (r *Result) Report() string {
	var b strings.Builder
	fmt.Fprintf(&b, `
================================================================================
                         SCENARIO REPORT: %s
================================================================================

EXECUTION SUMMARY
-----------------
  Store:          %s
  Start Time:     %s
  End Time:       %s
  Duration:       %v
  Cancelled:      %v
  Cleaned Up:     %v

WORKLOAD
--------
  Workers:            %d
  Records per worker: %d
  Planned records:    %d

WRITE METRICS
-------------
  Inserted:         %d
  Throttled:        %d
  Failed:           %d
  Capacity:         %.2f units
  Avg writes/s:     %.2f
  Avg capacity/s:   %.2f units
  Avg Latency:      %v
  P99 Latency:      %v

RATE CONTROL
------------
  Pattern changes:  %d
  Final delay:      %v
`,
		r.ScenarioName,
		r.StoreName,
		r.StartTime.Format("2006-01-02 15:04:05"),
		r.EndTime.Format("2006-01-02 15:04:05"),
		r.Duration.Round(time.Millisecond),
		r.Cancelled,
		r.CleanedUp,
		r.Workers,
		r.RecordsPerWorker,
		r.PlannedRecords,
		r.Inserted,
		r.Throttled,
		r.Failed,
		r.Capacity,
		r.WritesPerSec,
		r.CapacityPerSec,
		r.AvgLatency.Round(time.Microsecond),
		r.P99Latency.Round(time.Microsecond),
		r.RateChanges,
		r.FinalDelay,
	)
	b.WriteString("\n================================================================================")
	return b.String()
}

// IsRunning は実行中かどうかを返す
func (e *Engine) IsRunning() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}

// Name はシナリオ名を返す
func (e *Engine) Name() string {
	return e.config.Name
}

// Snapshot は現在のカウンタを返す（未実行なら空）
func (e *Engine) Snapshot() metrics.Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.registry == nil {
		return metrics.Snapshot{}
	}
	return e.registry.Snapshot()
}

// Delay は現在の書き込み間隔を返す
func (e *Engine) Delay() time.Duration {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.state == nil {
		return e.config.Rate.InitialDelay
	}
	return e.state.Delay()
}

// Pending は未完了のワーカー数を返す
func (e *Engine) Pending() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.pool == nil {
		return 0
	}
	return e.pool.Pending()
}

// Gatherer は直近の実行のメトリクスを返す
func (e *Engine) Gatherer() prometheus.Gatherer {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.gatherer == nil {
		return prometheus.NewRegistry()
	}
	return e.gatherer
}
