// Package storetest provides a scriptable in-process store for tests.
package storetest

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"elastic-load/internal/record"
	"elastic-load/internal/store"
)

// WriteFunc は n 回目（1始まり）の呼び出しに対する結果を返す
type WriteFunc func(n uint64, rec record.Record) store.Result

// Stub は呼び出し回数を数えながら WriteFunc の結果を返す Store
type Stub struct {
	fn    WriteFunc
	calls atomic.Uint64

	mu        sync.Mutex
	keys      map[string]int
	setups    int
	teardowns int
	closed    bool

	SetupErr    error
	TeardownErr error
}

// New は新しい Stub を作成する
func New(fn WriteFunc) *Stub {
	return &Stub{fn: fn, keys: make(map[string]int)}
}

// AlwaysSucceed は常に cost で成功する Stub を返す
func AlwaysSucceed(cost float64) *Stub {
	return New(func(uint64, record.Record) store.Result {
		return store.Succeeded(cost)
	})
}

// ThrottleEvery は every 回に1回スロットリングする Stub を返す
func ThrottleEvery(every uint64, cost float64) *Stub {
	return New(func(n uint64, _ record.Record) store.Result {
		if n%every == 0 {
			return store.Throttled(cost, "stub throttle")
		}
		return store.Succeeded(cost)
	})
}

// FailEvery は every 回に1回その他の失敗を返す Stub を返す
func FailEvery(every uint64, cost float64) *Stub {
	return New(func(n uint64, _ record.Record) store.Result {
		if n%every == 0 {
			return store.Failed(cost, errors.New("stub failure"))
		}
		return store.Succeeded(cost)
	})
}

func (s *Stub) Name() string { return "stub" }

func (s *Stub) Write(_ context.Context, rec record.Record) store.Result {
	n := s.calls.Add(1)
	s.mu.Lock()
	s.keys[rec.LogicalKey]++
	s.mu.Unlock()
	return s.fn(n, rec)
}

func (s *Stub) Setup(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setups++
	return s.SetupErr
}

func (s *Stub) Teardown(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teardowns++
	return s.TeardownErr
}

func (s *Stub) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Calls は Write の呼び出し回数を返す
func (s *Stub) Calls() uint64 {
	return s.calls.Load()
}

// KeyCounts は論理キーごとの書き込み回数を返す
func (s *Stub) KeyCounts() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.keys))
	for k, v := range s.keys {
		out[k] = v
	}
	return out
}

// Lifecycle は Setup / Teardown の回数と Close 済みかを返す
func (s *Stub) Lifecycle() (setups, teardowns int, closed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setups, s.teardowns, s.closed
}
