package matcher

import (
	"context"
	"errors"
	"fmt"

	"github.com/nereus-network/nereus/internal/metrics"
)

var (
	ErrBufferIsFull = errors.New("event buffer is full")
	ErrEventIsNil   = errors.New("event is nil")
)

// EventBuffer is the serialized event queue in front of the order history:
// producers enqueue concurrently, a single Process loop applies events in
// order, which makes every event application single-writer by construction.
type EventBuffer struct {
	history  *OrderHistory
	eventsCh chan Event

	mQueued *metrics.Counter
	mFatal  *metrics.Counter
}

// NewEventBuffer creates a buffer holding at most maxSize pending events.
func NewEventBuffer(history *OrderHistory, maxSize uint32, rec *metrics.Recorder) (*EventBuffer, error) {
	if history == nil {
		return nil, errors.New("order history is nil")
	}
	if maxSize < 1 {
		return nil, fmt.Errorf("buffer max size must be greater than zero, got %d", maxSize)
	}
	return &EventBuffer{
		history:  history,
		eventsCh: make(chan Event, maxSize),
		mQueued:  rec.Counter("matcher/events/queued"),
		mFatal:   rec.Counter("matcher/events/fatal"),
	}, nil
}

// Add enqueues the event. Returns ErrBufferIsFull when the queue is at
// capacity so the producer can apply backpressure.
func (b *EventBuffer) Add(ev Event) error {
	if ev == nil {
		return ErrEventIsNil
	}
	select {
	case b.eventsCh <- ev:
		b.mQueued.Inc(1)
		return nil
	default:
		return ErrBufferIsFull
	}
}

// Process applies queued events until ctx is cancelled. Fatal accounting
// errors stop the loop; anything else is logged and processing continues
// with the next event.
func (b *EventBuffer) Process(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-b.eventsCh:
			b.mQueued.Dec(1)
			if err := b.history.ProcessEvent(ev); err != nil {
				if IsFatal(err) {
					b.mFatal.Inc(1)
					return fmt.Errorf("event processing aborted, %w", err)
				}
				log.Error("event %T failed: %v", ev, err)
			}
		}
	}
}
