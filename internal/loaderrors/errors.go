// Package loaderrors contains the error taxonomy shared by the workload driver.
//
// Configuration and setup errors are fatal and abort the run before any worker
// starts. Capacity-exceeded and transient write errors are per-write conditions
// that workers record and then move past; they never reach the orchestrator.
//
// If several resources fail during teardown, the caller should return a
// multierror.Error from github.com/hashicorp/go-multierror wrapping each of them.
package loaderrors

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrConfiguration is returned for an invalid or missing setting.
type ErrConfiguration struct {
	Name    string // Setting name, e.g. "distribution.keys"
	Value   any    // The offending value, may be nil
	Message string // Optional explanation
}

func (err *ErrConfiguration) Error() string {
	s := fmt.Sprintf("invalid configuration %q", err.Name)
	if err.Value != nil {
		s = fmt.Sprintf("value %v is invalid for configuration %q", err.Value, err.Name)
	}
	if err.Message != "" {
		s += "; " + err.Message
	}
	return s
}

// ErrCapacityExceeded is reported by a store when a write was rejected because the
// caller exceeded its allotted throughput. Cost is what the rejected attempt consumed.
type ErrCapacityExceeded struct {
	Cost    float64
	Message string
}

func (err *ErrCapacityExceeded) Error() string {
	if err.Message == "" {
		return fmt.Sprintf("capacity exceeded (cost %.2f)", err.Cost)
	}
	return fmt.Sprintf("capacity exceeded (cost %.2f); %s", err.Cost, err.Message)
}

// ErrTransientWrite wraps any other per-write failure (network, timeout, driver error).
type ErrTransientWrite struct {
	Err error
}

func (err *ErrTransientWrite) Error() string {
	return fmt.Sprintf("write failed: %v", err.Err)
}

func (err *ErrTransientWrite) Unwrap() error {
	return err.Err
}

// ErrSetupFailure is returned when a store or one of its resources cannot be reached
// or provisioned before the workload starts.
type ErrSetupFailure struct {
	Resource string
	Err      error
}

func (err *ErrSetupFailure) Error() string {
	return fmt.Sprintf("setting up %s: %v", err.Resource, err.Err)
}

func (err *ErrSetupFailure) Unwrap() error {
	return err.Err
}

// IsConfiguration reports whether any error in the chain is an ErrConfiguration.
func IsConfiguration(err error) bool {
	var e *ErrConfiguration
	return errors.As(err, &e)
}

// IsCapacityExceeded reports whether any error in the chain is an ErrCapacityExceeded.
func IsCapacityExceeded(err error) bool {
	var e *ErrCapacityExceeded
	return errors.As(err, &e)
}

// IsSetupFailure reports whether any error in the chain is an ErrSetupFailure.
func IsSetupFailure(err error) bool {
	var e *ErrSetupFailure
	return errors.As(err, &e)
}

// ExitCode maps a top-level error to a process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case IsConfiguration(err):
		return 2
	case IsSetupFailure(err):
		return 3
	default:
		return 1
	}
}
