package rate

import (
	"context"
	"math/rand"
	"sync/atomic"
	"time"

	"k8s.io/utils/clock"

	"elastic-load/internal/events"
	"elastic-load/internal/loaderrors"
	"elastic-load/internal/logger"
)

// State は全ワーカーが参照する書き込み間隔
//
// 書き込みはコントローラのみ、読み取りは全ワーカー
type State struct {
	delay atomic.Int64
}

// NewState は初期遅延を持つ State を作成する
func NewState(initial time.Duration) *State {
	s := &State{}
	s.delay.Store(int64(initial))
	return s
}

// Delay は現在の遅延を返す
func (s *State) Delay() time.Duration {
	return time.Duration(s.delay.Load())
}

// Set は遅延を置き換え、直前の値を返す
func (s *State) Set(d time.Duration) time.Duration {
	return time.Duration(s.delay.Swap(int64(d)))
}

// DefaultLevels は選択可能な遅延レベル
var DefaultLevels = []time.Duration{
	0,
	300 * time.Millisecond,
	600 * time.Millisecond,
	900 * time.Millisecond,
	1200 * time.Millisecond,
	2400 * time.Millisecond,
}

// Config はRateControllerの設定
type Config struct {
	Enabled      bool            // 無効時は InitialDelay のまま固定
	Interval     time.Duration   // 遅延の変更間隔
	Levels       []time.Duration // 一様に選ばれる遅延レベル
	InitialDelay time.Duration   // 開始時の遅延
}

// DefaultConfig はデフォルト設定を返す
func DefaultConfig() Config {
	levels := make([]time.Duration, len(DefaultLevels))
	copy(levels, DefaultLevels)
	return Config{
		Enabled:  true,
		Interval: 15 * time.Second,
		Levels:   levels,
	}
}

// Validate は設定を検証する
func (c Config) Validate() error {
	if c.InitialDelay < 0 {
		return &loaderrors.ErrConfiguration{Name: "rate.initial_delay", Value: c.InitialDelay, Message: "must not be negative"}
	}
	if !c.Enabled {
		return nil
	}
	if c.Interval <= 0 {
		return &loaderrors.ErrConfiguration{Name: "rate.change_interval", Value: c.Interval, Message: "must be positive"}
	}
	if len(c.Levels) == 0 {
		return &loaderrors.ErrConfiguration{Name: "rate.delay_levels", Message: "at least one delay level is required"}
	}
	for _, l := range c.Levels {
		if l < 0 {
			return &loaderrors.ErrConfiguration{Name: "rate.delay_levels", Value: l, Message: "levels must not be negative"}
		}
	}
	return nil
}

// Controller は一定間隔で遅延レベルを切り替える
type Controller struct {
	config   Config
	state    *State
	clock    clock.WithTicker
	rng      *rand.Rand
	eventBus *events.Bus
	changes  atomic.Uint64
}

// NewController は新しい Controller を作成する
func NewController(state *State, config Config, clk clock.WithTicker, seed int64) (*Controller, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Controller{
		config: config,
		state:  state,
		clock:  clk,
		rng:    rand.New(rand.NewSource(seed)),
	}, nil
}

// SetEventBus はイベントバスを設定する
func (c *Controller) SetEventBus(bus *events.Bus) {
	c.eventBus = bus
}

// Run はctxがキャンセルされるまで遅延を切り替え続ける
func (c *Controller) Run(ctx context.Context) error {
	if !c.config.Enabled {
		logger.Info("", "Rate controller disabled, delay fixed at %v", c.state.Delay())
		<-ctx.Done()
		return nil
	}

	ticker := c.clock.NewTicker(c.config.Interval)
	defer ticker.Stop()

	logger.Info("", "Rate controller started (interval: %v, levels: %v)", c.config.Interval, c.config.Levels)
	for {
		select {
		case <-ctx.Done():
			logger.Debug("", "Rate controller stopped after %d changes", c.changes.Load())
			return nil
		case <-ticker.C():
			c.Change()
		}
	}
}

// Change は遅延レベルを一様に1つ選んで公開する
func (c *Controller) Change() time.Duration {
	next := c.config.Levels[c.rng.Intn(len(c.config.Levels))]
	previous := c.state.Set(next)
	c.changes.Add(1)

	logger.WithFields(map[string]any{
		"previous_delay": previous.String(),
		"delay":          next.String(),
	}).Info("traffic pattern changed")
	c.eventBus.Publish(events.NewRateChangedEvent(previous, next))
	return next
}

// Changes は切り替え回数を返す
func (c *Controller) Changes() uint64 {
	return c.changes.Load()
}
