// Package metrics aggregates write outcomes across workers.
//
// Each worker owns one WorkerCounters slot in a Registry and is its only
// writer; process-wide inserted, throttled and failed totals live in Global
// and are incremented atomically. The Reporter reads both on a fixed cadence,
// logs per-interval deltas and produces a Summary when the run ends.
//
// # Basic Usage
//
//	reg := metrics.NewRegistry([]string{"worker-1", "worker-2"}, clock.RealClock{})
//
//	// in the worker
//	c := reg.Worker("worker-1")
//	c.AddCapacity(5.7)
//	reg.Global().IncInserted()
//
//	// reporting
//	rep := metrics.NewReporter(reg, time.Second, clock.RealClock{})
//	go rep.Run(ctx)
//
// # Prometheus
//
// Collector exposes the same counters, plus the current write delay and the
// number of pending workers, to a prometheus.Registerer.
package metrics
