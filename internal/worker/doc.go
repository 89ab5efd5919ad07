// Package worker runs the parallel writers of a load run.
//
// A Writer processes one worker's records in order: it reads the shared delay,
// waits that long, issues the write and records cost and outcome into the
// worker's own counter slot. Per-write errors never leave the loop.
//
// The Pool starts one goroutine per Assignment and keeps a count of workers
// that have not finished. When the last one finishes, Done is closed; the
// orchestrator uses that to stop the rate controller and the reporter.
//
// # Basic Usage
//
//	w := worker.NewWriter(st, state, registry, clock.RealClock{}, 1)
//	pool := worker.NewPool(w)
//	pool.Start(ctx, assignments)
//	<-pool.Done()
//	results := pool.Wait()
package worker
