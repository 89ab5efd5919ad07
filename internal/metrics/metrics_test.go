package metrics

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"

	"elastic-load/internal/events"
)

func workerIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("worker-%d", i+1)
	}
	return ids
}

func TestGlobalCountersNoLostUpdates(t *testing.T) {
	const (
		workers    = 64
		increments = 5000
	)
	reg := NewRegistry(nil, nil)
	g := reg.Global()

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < increments; i++ {
				g.IncInserted()
				g.IncThrottled()
				g.IncFailed()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, uint64(workers*increments), g.Inserted())
	assert.Equal(t, uint64(workers*increments), g.Throttled())
	assert.Equal(t, uint64(workers*increments), g.Failed())
}

func TestWorkerCountersConcurrentCapacity(t *testing.T) {
	reg := NewRegistry([]string{"w"}, nil)
	c := reg.Worker("w")

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				c.AddCapacity(0.5)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 8000.0, c.Capacity())
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry([]string{"a", "b", "a"}, nil)
	require.Len(t, reg.Workers(), 2)
	assert.Equal(t, "a", reg.Workers()[0].ID())
	assert.Nil(t, reg.Worker("missing"))

	reg.Worker("a").AddCapacity(5)
	reg.Worker("b").AddCapacity(2.5)
	reg.Worker("a").IncSucceeded()
	reg.Worker("b").IncThrottled()
	reg.Worker("b").IncFailed()
	assert.Equal(t, 7.5, reg.TotalCapacity())
	assert.Equal(t, uint64(1), reg.Worker("a").Succeeded())
	assert.Equal(t, uint64(1), reg.Worker("b").Throttled())
	assert.Equal(t, uint64(1), reg.Worker("b").Failed())
}

func TestSnapshotRates(t *testing.T) {
	clk := clocktesting.NewFakeClock(time.Now())
	reg := NewRegistry([]string{"w"}, clk)

	for i := 0; i < 10; i++ {
		reg.Global().IncInserted()
		reg.Worker("w").AddCapacity(5)
	}
	clk.Step(2 * time.Second)

	s := reg.Snapshot()
	assert.Equal(t, uint64(10), s.Inserted)
	assert.Equal(t, 50.0, s.Capacity)
	assert.Equal(t, 2*time.Second, s.Elapsed)
	assert.Equal(t, 5.0, s.WritesPerSec)
	assert.Equal(t, 25.0, s.CapacityPerSec)
	assert.Equal(t, 1, s.Workers)
}

func TestReporterTickDeltas(t *testing.T) {
	clk := clocktesting.NewFakeClock(time.Now())
	reg := NewRegistry([]string{"w"}, clk)
	rep := NewReporter(reg, time.Second, clk)
	bus := events.NewBus()
	ch := bus.Subscribe()
	rep.SetEventBus(bus)

	reg.Global().IncInserted()
	reg.Global().IncInserted()
	reg.Global().IncThrottled()
	reg.Worker("w").AddCapacity(12)
	clk.Step(time.Second)

	iv := rep.Tick()
	assert.Equal(t, uint64(2), iv.Inserted)
	assert.Equal(t, uint64(1), iv.Throttled)
	assert.Equal(t, 12.0, iv.Capacity)
	assert.Equal(t, 2.0, iv.WritesPerSec)
	assert.Equal(t, 12.0, iv.CapacityPerSec)

	e := <-ch
	assert.Equal(t, events.EventProgress, e.Type)
	assert.Equal(t, uint64(2), e.Data.Inserted)

	// 次の間隔は差分のみ
	reg.Global().IncInserted()
	reg.Worker("w").AddCapacity(3)
	clk.Step(500 * time.Millisecond)

	iv = rep.Tick()
	assert.Equal(t, uint64(1), iv.Inserted)
	assert.Zero(t, iv.Throttled)
	assert.Equal(t, 3.0, iv.Capacity)
	assert.Equal(t, 2.0, iv.WritesPerSec)
}

func TestReporterRunProducesSummary(t *testing.T) {
	clk := clocktesting.NewFakeClock(time.Now())
	reg := NewRegistry([]string{"w"}, clk)
	rep := NewReporter(reg, time.Second, clk)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rep.Run(ctx) }()

	require.Eventually(t, clk.HasWaiters, time.Second, time.Millisecond)
	_, finished := rep.Summary()
	assert.False(t, finished)

	for i := 0; i < 40; i++ {
		reg.Global().IncInserted()
		reg.Worker("w").AddCapacity(5)
	}
	reg.Global().IncThrottled()
	clk.Step(4 * time.Second)

	cancel()
	require.NoError(t, <-done)

	s, finished := rep.Summary()
	require.True(t, finished)
	assert.Equal(t, uint64(40), s.TotalInserted)
	assert.Equal(t, uint64(1), s.TotalThrottled)
	assert.Equal(t, 200.0, s.TotalCapacity)
	assert.Equal(t, 4*time.Second, s.Elapsed)
	assert.Equal(t, 10.0, s.AvgWritesPerSec)
	assert.Equal(t, 50.0, s.AvgCapacityPerSec)
	assert.Contains(t, s.Report(), "Inserted:        40")
}

func TestLatency(t *testing.T) {
	l := NewLatency(1000)
	assert.Zero(t, l.Average())
	assert.Zero(t, l.P99())

	for i := 1; i <= 100; i++ {
		l.Record(time.Duration(i) * time.Millisecond)
	}
	assert.Equal(t, uint64(100), l.Count())
	assert.Equal(t, 50500*time.Microsecond, l.Average())
	assert.Equal(t, 100*time.Millisecond, l.P99())
}

func TestLatencySampleLimit(t *testing.T) {
	l := NewLatency(10)
	for i := 0; i < 50; i++ {
		l.Record(time.Millisecond)
	}
	assert.Equal(t, uint64(50), l.Count())
	assert.Len(t, l.samples, 10)
}

func TestCollector(t *testing.T) {
	reg := NewRegistry([]string{"w1", "w2"}, nil)
	reg.Global().IncInserted()
	reg.Global().IncInserted()
	reg.Global().IncThrottled()
	reg.Worker("w1").AddCapacity(4)
	reg.Worker("w2").AddCapacity(6)

	c := NewCollector(reg, func() time.Duration { return 300 * time.Millisecond }, func() int { return 2 })
	promReg := prometheus.NewRegistry()
	require.NoError(t, promReg.Register(c))

	families, err := promReg.Gather()
	require.NoError(t, err)

	values := map[string]float64{}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				values[mf.GetName()] += m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				values[mf.GetName()] = m.GetGauge().GetValue()
			}
		}
	}
	assert.Equal(t, 2.0, values["elastic_load_inserted_total"])
	assert.Equal(t, 1.0, values["elastic_load_throttled_total"])
	assert.Equal(t, 0.0, values["elastic_load_failed_total"])
	assert.Equal(t, 10.0, values["elastic_load_consumed_capacity_total"])
	assert.Equal(t, 10.0, values["elastic_load_worker_consumed_capacity_total"])
	assert.Equal(t, 0.3, values["elastic_load_write_delay_seconds"])
	assert.Equal(t, 2.0, values["elastic_load_pending_workers"])
}

func TestCollectorPerWorkerLabels(t *testing.T) {
	reg := NewRegistry([]string{"w1", "w2"}, nil)
	reg.Worker("w1").AddCapacity(4)
	reg.Worker("w2").AddCapacity(6)

	c := NewCollector(reg, nil, nil)
	// delay と pending が nil なら出力しない
	assert.Equal(t, 6, testutil.CollectAndCount(c))

	expected := `
# HELP elastic_load_worker_consumed_capacity_total Capacity units consumed per worker.
# TYPE elastic_load_worker_consumed_capacity_total counter
elastic_load_worker_consumed_capacity_total{worker="w1"} 4
elastic_load_worker_consumed_capacity_total{worker="w2"} 6
`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected),
		"elastic_load_worker_consumed_capacity_total"))
}
