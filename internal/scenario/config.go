package scenario

import (
	"time"

	"elastic-load/internal/keydist"
	"elastic-load/internal/loaderrors"
	"elastic-load/internal/metrics"
	"elastic-load/internal/rate"
	"elastic-load/internal/record"
	"elastic-load/internal/store"
)

// ThrottlePolicy は CapacityExceeded を受けたときの扱い
type ThrottlePolicy string

const (
	// PolicyRecord は記録だけして次のレコードへ進む（スロットリング率をそのまま測る）
	PolicyRecord ThrottlePolicy = "record"
	// PolicyRetry は指数バックオフで再試行する
	PolicyRetry ThrottlePolicy = "retry"
)

// ParseThrottlePolicy は文字列をポリシーに変換する（空文字は record）
func ParseThrottlePolicy(s string) (ThrottlePolicy, error) {
	switch ThrottlePolicy(s) {
	case "", PolicyRecord:
		return PolicyRecord, nil
	case PolicyRetry:
		return PolicyRetry, nil
	}
	return "", &loaderrors.ErrConfiguration{
		Name:    "throttle.policy",
		Value:   s,
		Message: "expected record or retry",
	}
}

const (
	// DefaultPerWorkerThroughput は1ワーカーが担う名目上のスループット
	DefaultPerWorkerThroughput = 1000
	// DefaultMinWorkers は自動算出時のワーカー数の下限
	DefaultMinWorkers = 250
	// DefaultMaxThroughput はワーカー数の自動算出に使う最大スループット
	DefaultMaxThroughput = 10000
)

// DefaultTiers は hot / warm / cold の3階層で500店舗に重みを付ける
func DefaultTiers() []keydist.Tier {
	return []keydist.Tier{
		{Count: 50, Weight: 0.04},
		{Count: 50, Weight: 0.03},
		{Count: 400, Weight: 0.0126},
	}
}

// Config はシナリオの設定
type Config struct {
	Name        string // シナリオ名
	Description string // 説明

	// ワークロード設定
	TotalRecords        int     // 全ワーカー合計の書き込み件数
	Workers             int     // ワーカー数（0 なら自動算出）
	MaxThroughput       float64 // 自動算出に使う最大スループット
	PerWorkerThroughput float64 // 1ワーカーあたりの名目スループット
	MinWorkers          int     // 自動算出時の下限
	Kind                record.Kind
	Template            map[string]any // template ワークロードの文書
	KeyField            string         // template でキーを書き込むフィールド
	Seed                int64

	// パーティションキー分布（Keys が優先、どちらも空なら DefaultTiers）
	Keys  []keydist.Entry
	Tiers []keydist.Tier

	// レート制御
	Rate rate.Config

	// スロットリング時の扱い
	ThrottlePolicy ThrottlePolicy
	Retry          store.RetryConfig

	// ストア設定
	Regions         int               // 消費キャパシティの除数
	CleanupOnFinish bool              // 終了時にテストリソースを削除する
	PartitionBy     store.PartitionBy // シミュレータの振り分けキー

	ReportInterval time.Duration
	APIAddr        string // 空なら API サーバーを起動しない
}

// DefaultConfig はデフォルト設定を返す
func DefaultConfig() Config {
	return Config{
		Name:                "default",
		Description:         "Skewed transaction workload with changing traffic pattern",
		TotalRecords:        100000,
		MaxThroughput:       DefaultMaxThroughput,
		PerWorkerThroughput: DefaultPerWorkerThroughput,
		MinWorkers:          DefaultMinWorkers,
		Kind:                record.KindTransactions,
		KeyField:            record.DefaultKeyField,
		Seed:                1,
		Tiers:               DefaultTiers(),
		Rate:                rate.DefaultConfig(),
		ThrottlePolicy:      PolicyRecord,
		Retry:               store.DefaultRetryConfig(),
		Regions:             1,
		PartitionBy:         store.PartitionBySynthetic,
		ReportInterval:      metrics.DefaultReportInterval,
	}
}

// Validate は設定を検証する
func (c Config) Validate() error {
	if c.TotalRecords < 0 {
		return &loaderrors.ErrConfiguration{Name: "workload.total_records", Value: c.TotalRecords, Message: "must be non-negative"}
	}
	if c.Workers < 0 {
		return &loaderrors.ErrConfiguration{Name: "workload.workers", Value: c.Workers, Message: "must be non-negative or auto"}
	}
	if c.Workers == 0 {
		if c.PerWorkerThroughput <= 0 {
			return &loaderrors.ErrConfiguration{Name: "workload.per_worker_throughput", Value: c.PerWorkerThroughput, Message: "must be positive when workers is auto"}
		}
		if c.MaxThroughput < 0 {
			return &loaderrors.ErrConfiguration{Name: "workload.max_throughput", Value: c.MaxThroughput, Message: "must be non-negative"}
		}
		if c.ResolvedWorkers() < 1 {
			return &loaderrors.ErrConfiguration{Name: "workload.min_workers", Value: c.MinWorkers, Message: "auto sizing resolved to zero workers"}
		}
	}
	if _, err := store.ParsePartitionBy(string(c.PartitionBy)); err != nil {
		return &loaderrors.ErrConfiguration{Name: "store.memory.partition_by", Value: c.PartitionBy, Message: "expected synthetic or logical"}
	}
	if c.Regions < 1 {
		return &loaderrors.ErrConfiguration{Name: "store.regions", Value: c.Regions, Message: "must be at least 1"}
	}
	if _, err := ParseThrottlePolicy(string(c.ThrottlePolicy)); err != nil {
		return err
	}
	if c.ThrottlePolicy == PolicyRetry && c.Retry.MaxAttempts == 0 {
		return &loaderrors.ErrConfiguration{Name: "throttle.max_attempts", Value: c.Retry.MaxAttempts, Message: "must be at least 1"}
	}
	if c.ReportInterval < 0 {
		return &loaderrors.ErrConfiguration{Name: "report.interval", Value: c.ReportInterval, Message: "must be non-negative"}
	}
	return c.Rate.Validate()
}

// ResolvedWorkers は実際に起動するワーカー数を返す
func (c Config) ResolvedWorkers() int {
	return ResolveWorkerCount(c.Workers, c.MaxThroughput, c.PerWorkerThroughput, c.MinWorkers)
}

// Distribution は設定からパーティションキー分布を作成する
func (c Config) Distribution() (*keydist.Distribution, error) {
	switch {
	case len(c.Keys) > 0:
		return keydist.New(c.Keys)
	case len(c.Tiers) > 0:
		return keydist.New(keydist.Tiers(c.Tiers))
	default:
		return keydist.New(keydist.Tiers(DefaultTiers()))
	}
}

// ResolveWorkerCount はワーカー数を決める
//
// explicit が正ならそのまま、そうでなければ maxThroughput/perWorker と floor の大きい方
func ResolveWorkerCount(explicit int, maxThroughput, perWorker float64, floor int) int {
	if explicit > 0 {
		return explicit
	}
	n := 0
	if perWorker > 0 {
		n = int(maxThroughput / perWorker)
	}
	return max(n, floor)
}

// SplitRecords は total を workers に均等に割り当てる
//
// 余りは生成しない
func SplitRecords(total, workers int) []int {
	if workers <= 0 {
		return nil
	}
	per := 0
	if total > 0 {
		per = total / workers
	}
	counts := make([]int, workers)
	for i := range counts {
		counts[i] = per
	}
	return counts
}
