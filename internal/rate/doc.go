// Package rate holds the shared inter-write delay and the controller that changes it.
//
// State is a single atomic value: the controller is its only writer and every
// worker reads it before each write, so a change is picked up on the worker's
// next wait, never by a wait already in progress.
//
// # Usage
//
//	state := rate.NewState(0)
//	ctrl, err := rate.NewController(state, rate.DefaultConfig(), clock.RealClock{}, seed)
//	go ctrl.Run(ctx)
package rate
