package dispatch

import (
	"sync/atomic"
	"time"
)

// eventEmitter fans dispatch events out to one subscriber channel. A full
// channel never blocks the scheduling loop: the event is dropped and
// counted instead.
type eventEmitter struct {
	events       chan Event
	droppedCount atomic.Uint64
}

func newEventEmitter(bufferSize int) *eventEmitter {
	return &eventEmitter{events: make(chan Event, bufferSize)}
}

// emit sends an event, dropping it after a short grace period if the
// subscriber is not draining.
func (e *eventEmitter) emit(event Event) {
	event.Timestamp = time.Now()
	select {
	case e.events <- event:
		return
	default:
	}
	select {
	case e.events <- event:
	case <-time.After(50 * time.Millisecond):
		e.droppedCount.Add(1)
	}
}

// DroppedCount returns how many events were dropped on a full channel.
func (e *eventEmitter) DroppedCount() uint64 {
	return e.droppedCount.Load()
}
