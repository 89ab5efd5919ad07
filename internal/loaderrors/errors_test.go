package loaderrors

import (
	"fmt"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestErrorMessages(t *testing.T) {
	tests := map[string]struct {
		err      error
		expected string
	}{
		"configuration without value": {
			err:      &ErrConfiguration{Name: "rate.delay_levels", Message: "must not be empty"},
			expected: `invalid configuration "rate.delay_levels"; must not be empty`,
		},
		"configuration with value": {
			err:      &ErrConfiguration{Name: "workload.workers", Value: -3},
			expected: `value -3 is invalid for configuration "workload.workers"`,
		},
		"capacity exceeded": {
			err:      &ErrCapacityExceeded{Cost: 1.5},
			expected: "capacity exceeded (cost 1.50)",
		},
		"capacity exceeded with message": {
			err:      &ErrCapacityExceeded{Cost: 5, Message: "partition 3"},
			expected: "capacity exceeded (cost 5.00); partition 3",
		},
		"setup failure": {
			err:      &ErrSetupFailure{Resource: "redis", Err: fmt.Errorf("connection refused")},
			expected: "setting up redis: connection refused",
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.err.Error())
		})
	}
}

func TestClassificationThroughWrapping(t *testing.T) {
	cfg := errors.Wrap(&ErrConfiguration{Name: "x"}, "loading")
	setup := errors.WithStack(&ErrSetupFailure{Resource: "postgres", Err: fmt.Errorf("boom")})
	throttled := fmt.Errorf("write: %w", &ErrCapacityExceeded{Cost: 2})

	assert.True(t, IsConfiguration(cfg))
	assert.False(t, IsConfiguration(setup))
	assert.True(t, IsSetupFailure(setup))
	assert.True(t, IsCapacityExceeded(throttled))
	assert.False(t, IsCapacityExceeded(&ErrTransientWrite{Err: fmt.Errorf("timeout")}))
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, 2, ExitCode(&ErrConfiguration{Name: "x"}))
	assert.Equal(t, 3, ExitCode(errors.Wrap(&ErrSetupFailure{Resource: "r", Err: fmt.Errorf("e")}, "run")))
	assert.Equal(t, 1, ExitCode(fmt.Errorf("other")))
}

func TestTransientWriteUnwrap(t *testing.T) {
	inner := fmt.Errorf("reset by peer")
	err := &ErrTransientWrite{Err: inner}
	assert.ErrorIs(t, err, inner)
}
