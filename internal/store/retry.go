package store

import (
	"context"
	"time"

	"github.com/avast/retry-go"

	"elastic-load/internal/loaderrors"
	"elastic-load/internal/logger"
	"elastic-load/internal/record"
)

// RetryConfig は throttle policy "retry" の設定
type RetryConfig struct {
	MaxAttempts    uint
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryConfig はデフォルトのリトライ設定を返す
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
	}
}

// Retrying はスロットリングされた書き込みを指数バックオフで再試行する
//
// 全試行のコストを合算して返す。スロットリング以外の失敗は再試行しない
type Retrying struct {
	Store
	config RetryConfig
}

// NewRetrying は next をリトライ付きでラップする
func NewRetrying(next Store, config RetryConfig) (*Retrying, error) {
	if config.MaxAttempts == 0 {
		return nil, &loaderrors.ErrConfiguration{
			Name:    "throttle.max_attempts",
			Value:   config.MaxAttempts,
			Message: "must be at least 1",
		}
	}
	return &Retrying{Store: next, config: config}, nil
}

// Name はラップ先の名前を返す
func (r *Retrying) Name() string {
	return r.Store.Name() + "+retry"
}

// Write はスロットリング時に再試行しつつ書き込む
func (r *Retrying) Write(ctx context.Context, rec record.Record) Result {
	var (
		total float64
		last  Result
	)
	_ = retry.Do(
		func() error {
			last = r.Store.Write(ctx, rec)
			total += last.Cost
			return last.Err
		},
		retry.Context(ctx),
		retry.Attempts(r.config.MaxAttempts),
		retry.Delay(r.config.InitialBackoff),
		retry.MaxDelay(r.config.MaxBackoff),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(loaderrors.IsCapacityExceeded),
		retry.OnRetry(func(n uint, err error) {
			logger.Debug("", "retrying %s after throttle (attempt %d): %v", rec.ID, n+1, err)
		}),
	)
	// 結果は最後の試行、コストは全試行の合計
	last.Cost = total
	return last
}
