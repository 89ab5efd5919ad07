package rate

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"

	"elastic-load/internal/events"
	"elastic-load/internal/loaderrors"
)

func TestStateSetAndDelay(t *testing.T) {
	s := NewState(100 * time.Millisecond)
	assert.Equal(t, 100*time.Millisecond, s.Delay())

	prev := s.Set(2 * time.Second)
	assert.Equal(t, 100*time.Millisecond, prev)
	assert.Equal(t, 2*time.Second, s.Delay())
}

func TestStateConcurrentReadersSeeCoherentValues(t *testing.T) {
	s := NewState(0)
	allowed := map[time.Duration]bool{0: true, time.Hour: true}

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					if !allowed[s.Delay()] {
						t.Errorf("observed torn value %v", s.Delay())
						return
					}
				}
			}
		}()
	}
	for i := 0; i < 10_000; i++ {
		if i%2 == 0 {
			s.Set(time.Hour)
		} else {
			s.Set(0)
		}
	}
	close(stop)
	wg.Wait()
}

func TestDefaultConfig(t *testing.T) {
	c := DefaultConfig()
	assert.True(t, c.Enabled)
	assert.Equal(t, 15*time.Second, c.Interval)
	assert.Equal(t, DefaultLevels, c.Levels)
	require.NoError(t, c.Validate())

	c.Levels[0] = time.Minute
	assert.Equal(t, time.Duration(0), DefaultLevels[0])
}

func TestConfigValidate(t *testing.T) {
	tests := map[string]Config{
		"no levels":        {Enabled: true, Interval: time.Second},
		"zero interval":    {Enabled: true, Levels: []time.Duration{0}},
		"negative level":   {Enabled: true, Interval: time.Second, Levels: []time.Duration{-1}},
		"negative initial": {InitialDelay: -time.Second},
	}
	for name, c := range tests {
		t.Run(name, func(t *testing.T) {
			err := c.Validate()
			require.Error(t, err)
			assert.True(t, loaderrors.IsConfiguration(err))
		})
	}

	assert.NoError(t, Config{Enabled: false, InitialDelay: time.Second}.Validate())
}

func TestChangePicksConfiguredLevel(t *testing.T) {
	state := NewState(0)
	config := DefaultConfig()
	c, err := NewController(state, config, clocktesting.NewFakeClock(time.Now()), 1)
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		d := c.Change()
		assert.Contains(t, config.Levels, d)
		assert.Equal(t, d, state.Delay())
	}
	assert.Equal(t, uint64(100), c.Changes())
}

func TestRunChangesOnEveryTick(t *testing.T) {
	clk := clocktesting.NewFakeClock(time.Now())
	state := NewState(0)
	config := Config{Enabled: true, Interval: 10 * time.Second, Levels: []time.Duration{700 * time.Millisecond}}

	c, err := NewController(state, config, clk, 1)
	require.NoError(t, err)
	bus := events.NewBus()
	ch := bus.Subscribe(events.EventRateChanged)
	c.SetEventBus(bus)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.Eventually(t, clk.HasWaiters, time.Second, time.Millisecond)
	clk.Step(5 * time.Second)
	assert.Equal(t, time.Duration(0), state.Delay())

	clk.Step(5 * time.Second)
	require.Eventually(t, func() bool { return c.Changes() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, 700*time.Millisecond, state.Delay())

	select {
	case e := <-ch:
		assert.Equal(t, events.EventRateChanged, e.Type)
		assert.Equal(t, "700ms", e.Data.Delay)
	case <-time.After(time.Second):
		t.Fatal("no rate change event")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("controller did not stop")
	}
}

func TestDisabledControllerKeepsInitialDelay(t *testing.T) {
	clk := clocktesting.NewFakeClock(time.Now())
	state := NewState(100 * time.Millisecond)
	c, err := NewController(state, Config{Enabled: false, InitialDelay: 100 * time.Millisecond}, clk, 1)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = c.Run(ctx)
		close(done)
	}()

	clk.Step(time.Hour)
	cancel()
	<-done
	assert.Equal(t, 100*time.Millisecond, state.Delay())
	assert.Zero(t, c.Changes())
}
