package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"elastic-load/internal/loaderrors"
	"elastic-load/internal/record"
	"elastic-load/internal/store"
	"elastic-load/internal/store/storetest"
)

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "success", store.Success.String())
	assert.Equal(t, "capacity_exceeded", store.CapacityExceeded.String())
	assert.Equal(t, "other_failure", store.OtherFailure.String())
	assert.Equal(t, "unknown", store.Outcome(42).String())
}

func TestResultConstructors(t *testing.T) {
	ok := store.Succeeded(5)
	assert.Equal(t, store.Success, ok.Outcome)
	assert.NoError(t, ok.Err)

	th := store.Throttled(2, "partition hot")
	assert.Equal(t, store.CapacityExceeded, th.Outcome)
	assert.True(t, loaderrors.IsCapacityExceeded(th.Err))
	assert.Equal(t, 2.0, th.Cost)

	failed := store.Failed(1, errors.New("connection reset"))
	assert.Equal(t, store.OtherFailure, failed.Outcome)
	var transient *loaderrors.ErrTransientWrite
	require.True(t, errors.As(failed.Err, &transient))
	assert.EqualError(t, transient.Err, "connection reset")

	again := store.Failed(1, failed.Err)
	assert.Same(t, failed.Err, again.Err)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, store.Success, store.Classify(nil))
	assert.Equal(t, store.CapacityExceeded, store.Classify(&loaderrors.ErrCapacityExceeded{Cost: 1}))
	assert.Equal(t, store.OtherFailure, store.Classify(errors.New("boom")))
}

func TestCostModel(t *testing.T) {
	m := store.DefaultCostModel()
	assert.Equal(t, 5.7, m.WriteCost(0))
	assert.Equal(t, 5.7, m.WriteCost(1024))
	assert.InDelta(t, 11.4, m.WriteCost(1025), 1e-9)
	assert.Equal(t, 1.0, m.Rejection())
}

func TestRetryingRequiresAttempts(t *testing.T) {
	_, err := store.NewRetrying(storetest.AlwaysSucceed(1), store.RetryConfig{})
	assert.True(t, loaderrors.IsConfiguration(err))
}

func TestRetryingRetriesThrottlesAndSumsCost(t *testing.T) {
	// 1回目と2回目はスロットリング、3回目で成功
	stub := storetest.New(func(n uint64, _ record.Record) store.Result {
		if n < 3 {
			return store.Throttled(1, "busy")
		}
		return store.Succeeded(5)
	})
	r, err := store.NewRetrying(stub, store.RetryConfig{MaxAttempts: 5, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond})
	require.NoError(t, err)

	res := r.Write(context.Background(), record.Record{ID: "a"})
	assert.Equal(t, store.Success, res.Outcome)
	assert.Equal(t, 7.0, res.Cost)
	assert.Equal(t, uint64(3), stub.Calls())
	assert.Equal(t, "stub+retry", r.Name())
}

func TestRetryingGivesUpAfterMaxAttempts(t *testing.T) {
	stub := storetest.ThrottleEvery(1, 2)
	r, err := store.NewRetrying(stub, store.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond})
	require.NoError(t, err)

	res := r.Write(context.Background(), record.Record{ID: "a"})
	assert.Equal(t, store.CapacityExceeded, res.Outcome)
	assert.Equal(t, 6.0, res.Cost)
	assert.Equal(t, uint64(3), stub.Calls())
}

func TestRetryingDoesNotRetryOtherFailures(t *testing.T) {
	stub := storetest.FailEvery(1, 1)
	r, err := store.NewRetrying(stub, store.DefaultRetryConfig())
	require.NoError(t, err)

	res := r.Write(context.Background(), record.Record{ID: "a"})
	assert.Equal(t, store.OtherFailure, res.Outcome)
	assert.Equal(t, uint64(1), stub.Calls())
}
