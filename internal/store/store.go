// Package store defines the narrow write contract the workload depends on.
//
// A store reports a capacity cost for every write attempt regardless of the
// outcome. Backends live in sub-packages; the Retrying decorator adds the
// optional bounded-retry throttle policy on top of any of them.
package store

import (
	"context"

	"github.com/pkg/errors"

	"elastic-load/internal/loaderrors"
	"elastic-load/internal/record"
)

// Outcome は1回の書き込みの結果分類
type Outcome int

const (
	Success Outcome = iota
	CapacityExceeded
	OtherFailure
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case CapacityExceeded:
		return "capacity_exceeded"
	case OtherFailure:
		return "other_failure"
	default:
		return "unknown"
	}
}

// Result は書き込み結果とその試行で消費したキャパシティ
type Result struct {
	Cost    float64
	Outcome Outcome
	Err     error
}

// Succeeded は成功結果を返す
func Succeeded(cost float64) Result {
	return Result{Cost: cost, Outcome: Success}
}

// Throttled はスロットリング結果を返す
func Throttled(cost float64, message string) Result {
	return Result{
		Cost:    cost,
		Outcome: CapacityExceeded,
		Err:     &loaderrors.ErrCapacityExceeded{Cost: cost, Message: message},
	}
}

// Failed はその他の失敗結果を返す
func Failed(cost float64, err error) Result {
	var transient *loaderrors.ErrTransientWrite
	if !errors.As(err, &transient) {
		err = &loaderrors.ErrTransientWrite{Err: err}
	}
	return Result{Cost: cost, Outcome: OtherFailure, Err: err}
}

// Classify はエラーを Outcome に分類する
func Classify(err error) Outcome {
	switch {
	case err == nil:
		return Success
	case loaderrors.IsCapacityExceeded(err):
		return CapacityExceeded
	default:
		return OtherFailure
	}
}

// Writer はレコードを1件書き込む
type Writer interface {
	Write(ctx context.Context, rec record.Record) Result
}

// Provisioner はテスト用リソースの準備と後片付けを行う
type Provisioner interface {
	Setup(ctx context.Context) error
	Teardown(ctx context.Context) error
	Close() error
}

// Store はワークロードが書き込む対象
type Store interface {
	Writer
	Provisioner
	Name() string
}
