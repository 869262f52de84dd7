package events

import (
	"log/slog"
	"sync"
)

// Dispatcher delivers a single event to its recipient. Implementations
// talk to the outside world (push gateways, mail); errors are logged,
// never surfaced to the request that produced the event.
type Dispatcher interface {
	Dispatch(ev Event) error
}

// LogDispatcher writes events to the structured log. It is the default
// when no external delivery channel is configured.
type LogDispatcher struct {
	Logger *slog.Logger
}

func (d *LogDispatcher) Dispatch(ev Event) error {
	d.Logger.Info("event",
		"type", string(ev.Type),
		"request_id", ev.RequestID,
		"food_id", ev.FoodID,
		"recipient_id", ev.RecipientID,
		"reason", ev.Reason,
	)
	return nil
}

// ChannelEmitter fans events through a buffered channel to a single
// dispatch goroutine. When the buffer is full the event is dropped and
// a warning logged; notification delivery is best-effort.
type ChannelEmitter struct {
	ch        chan Event
	done      chan struct{}
	closeOnce sync.Once
	logger    *slog.Logger
}

// NewChannelEmitter starts the dispatch goroutine. bufferSize bounds the
// number of undelivered events held in memory.
func NewChannelEmitter(dispatcher Dispatcher, bufferSize int, logger *slog.Logger) *ChannelEmitter {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	e := &ChannelEmitter{
		ch:     make(chan Event, bufferSize),
		done:   make(chan struct{}),
		logger: logger,
	}
	go e.run(dispatcher)
	return e
}

func (e *ChannelEmitter) run(dispatcher Dispatcher) {
	defer close(e.done)
	for ev := range e.ch {
		if err := dispatcher.Dispatch(ev); err != nil {
			e.logger.Warn("event dispatch failed",
				"type", string(ev.Type),
				"request_id", ev.RequestID,
				"error", err,
			)
		}
	}
}

// Emit offers the event to the dispatch queue without blocking.
func (e *ChannelEmitter) Emit(ev Event) {
	select {
	case e.ch <- ev:
	default:
		e.logger.Warn("event buffer full, dropping event",
			"type", string(ev.Type),
			"request_id", ev.RequestID,
		)
	}
}

// Close stops accepting events and waits for the queue to drain.
func (e *ChannelEmitter) Close() error {
	e.closeOnce.Do(func() {
		close(e.ch)
	})
	<-e.done
	return nil
}

var _ Emitter = (*ChannelEmitter)(nil)
