package events

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for event")
	}
	return Event{}
}

func TestNewBus(t *testing.T) {
	bus := NewBus()
	require.NotNil(t, bus)
	assert.Equal(t, 0, bus.SubscriberCount())
}

func TestBusSubscribeUnsubscribe(t *testing.T) {
	bus := NewBus()

	ch1 := bus.Subscribe()
	ch2 := bus.Subscribe()
	assert.Equal(t, 2, bus.SubscriberCount())

	bus.Unsubscribe(ch1)
	assert.Equal(t, 1, bus.SubscriberCount())
	_, ok := <-ch1
	assert.False(t, ok)

	bus.Unsubscribe(ch2)
	assert.Equal(t, 0, bus.SubscriberCount())
}

func TestBusPublishMultipleSubscribers(t *testing.T) {
	bus := NewBus()
	ch1 := bus.Subscribe()
	ch2 := bus.Subscribe()

	bus.Publish(NewRateChangedEvent(0, 300*time.Millisecond))

	for _, ch := range []<-chan Event{ch1, ch2} {
		e := receive(t, ch)
		assert.Equal(t, EventRateChanged, e.Type)
		assert.Equal(t, "0s", e.Data.PreviousDelay)
		assert.Equal(t, "300ms", e.Data.Delay)
	}
}

func TestBusPublishNonBlocking(t *testing.T) {
	bus := NewBusWithBuffer(1)
	ch := bus.Subscribe()

	bus.Publish(NewWorkerFinishedEvent("worker-1", 1, 0, 0))
	bus.Publish(NewWorkerFinishedEvent("worker-2", 1, 0, 0))
	bus.Publish(NewWorkerFinishedEvent("worker-3", 1, 0, 0))

	e := receive(t, ch)
	assert.Equal(t, "worker-1", e.WorkerID)
	assert.Equal(t, uint64(2), bus.Dropped())
}

func TestBusSubscribeFiltered(t *testing.T) {
	bus := NewBus()
	rates := bus.Subscribe(EventRateChanged)
	all := bus.Subscribe()

	bus.Publish(NewWorkerFinishedEvent("worker-1", 1, 0, 0))
	bus.Publish(NewRateChangedEvent(0, time.Second))

	assert.Equal(t, EventWorkerFinished, receive(t, all).Type)
	assert.Equal(t, EventRateChanged, receive(t, all).Type)
	e := receive(t, rates)
	assert.Equal(t, EventRateChanged, e.Type)
	assert.Empty(t, rates)
}

func TestBusPublishNil(t *testing.T) {
	var bus *Bus
	assert.NotPanics(t, func() { bus.Publish(NewRunStartedEvent(1)) })
}

func TestBusClose(t *testing.T) {
	bus := NewBus()
	ch := bus.Subscribe()
	bus.Close()

	assert.Equal(t, 0, bus.SubscriberCount())
	_, ok := <-ch
	assert.False(t, ok)

	late := bus.Subscribe()
	_, ok = <-late
	assert.False(t, ok)
}

func TestEventCreation(t *testing.T) {
	started := NewRunStartedEvent(250)
	assert.Equal(t, EventRunStarted, started.Type)
	assert.Equal(t, 250, started.Data.Workers)

	progress := NewProgressEvent(100, 3, 20, 114)
	assert.Equal(t, EventProgress, progress.Type)
	assert.Equal(t, uint64(3), progress.Data.Throttled)
	assert.Equal(t, 114.0, progress.Data.CostPerSec)

	done := NewRunCompletedEvent(10, 1, 2, true, errors.New("interrupted"))
	assert.Equal(t, EventRunCompleted, done.Type)
	assert.True(t, done.Data.Cancelled)
	assert.Equal(t, "interrupted", done.Data.Error)
	assert.Equal(t, uint64(2), done.Data.Failed)
}
