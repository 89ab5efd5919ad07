// Package events provides an in-process event system for load run notifications.
package events

import "time"

// EventType represents the type of event
type EventType string

const (
	// EventRunStarted is emitted once the workers have been launched
	EventRunStarted EventType = "run_started"
	// EventRateChanged is emitted when the rate controller picks a new inter-write delay
	EventRateChanged EventType = "rate_changed"
	// EventProgress is emitted on every reporting interval
	EventProgress EventType = "progress"
	// EventWorkerFinished is emitted when a worker has processed all of its records
	EventWorkerFinished EventType = "worker_finished"
	// EventRunCompleted is emitted when the run ends, normally or by cancellation
	EventRunCompleted EventType = "run_completed"
)

// Event represents a load run event
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	WorkerID  string    `json:"worker_id,omitempty"`
	Data      EventData `json:"data,omitempty"`
}

// EventData contains event-specific data
type EventData struct {
	Workers       int     `json:"workers,omitempty"`
	PreviousDelay string  `json:"previous_delay,omitempty"`
	Delay         string  `json:"delay,omitempty"`
	Inserted      uint64  `json:"inserted,omitempty"`
	Throttled     uint64  `json:"throttled,omitempty"`
	Failed        uint64  `json:"failed,omitempty"`
	WritesPerSec  float64 `json:"writes_per_sec,omitempty"`
	CostPerSec    float64 `json:"cost_per_sec,omitempty"`
	Cancelled     bool    `json:"cancelled,omitempty"`
	Error         string  `json:"error,omitempty"`
}

// NewRunStartedEvent creates a run started event
func NewRunStartedEvent(workers int) Event {
	return Event{
		Type:      EventRunStarted,
		Timestamp: time.Now(),
		Data:      EventData{Workers: workers},
	}
}

// NewRateChangedEvent creates a rate change event
func NewRateChangedEvent(previous, current time.Duration) Event {
	return Event{
		Type:      EventRateChanged,
		Timestamp: time.Now(),
		Data: EventData{
			PreviousDelay: previous.String(),
			Delay:         current.String(),
		},
	}
}

// NewProgressEvent creates an interval progress event
func NewProgressEvent(inserted, throttled uint64, writesPerSec, costPerSec float64) Event {
	return Event{
		Type:      EventProgress,
		Timestamp: time.Now(),
		Data: EventData{
			Inserted:     inserted,
			Throttled:    throttled,
			WritesPerSec: writesPerSec,
			CostPerSec:   costPerSec,
		},
	}
}

// NewWorkerFinishedEvent creates a worker finished event
func NewWorkerFinishedEvent(workerID string, inserted, throttled, failed uint64) Event {
	return Event{
		Type:      EventWorkerFinished,
		Timestamp: time.Now(),
		WorkerID:  workerID,
		Data: EventData{
			Inserted:  inserted,
			Throttled: throttled,
			Failed:    failed,
		},
	}
}

// NewRunCompletedEvent creates a run completed event
func NewRunCompletedEvent(inserted, throttled, failed uint64, cancelled bool, err error) Event {
	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}
	return Event{
		Type:      EventRunCompleted,
		Timestamp: time.Now(),
		Data: EventData{
			Inserted:  inserted,
			Throttled: throttled,
			Failed:    failed,
			Cancelled: cancelled,
			Error:     errMsg,
		},
	}
}
