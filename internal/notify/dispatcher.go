// Package notify delivers domain events to a message broker. Delivery is
// best effort and never blocks or fails the operation that raised the event.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/josh-kwaku/boma-settlement/internal/domain"
)

// Sink writes one encoded event to a transport.
type Sink interface {
	Send(ctx context.Context, e domain.Event) error
	Close() error
}

type Dispatcher struct {
	sink        Sink
	queue       chan domain.Event
	logger      *slog.Logger
	sendTimeout time.Duration

	// mu guards queue against a send after Close. Publish never blocks while
	// holding it.
	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

func NewDispatcher(sink Sink, buffer int, logger *slog.Logger) *Dispatcher {
	if buffer <= 0 {
		buffer = 256
	}
	return &Dispatcher{
		sink:        sink,
		queue:       make(chan domain.Event, buffer),
		logger:      logger,
		sendTimeout: 5 * time.Second,
		done:        make(chan struct{}),
	}
}

// Publish enqueues events without waiting. When the buffer is full, or the
// dispatcher is already closed, the event is dropped and logged.
func (d *Dispatcher) Publish(_ context.Context, events ...domain.Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		for _, e := range events {
			d.logger.Warn("notification dropped, dispatcher closed", "event_id", e.ID, "type", e.Type)
		}
		return
	}
	for _, e := range events {
		select {
		case d.queue <- e:
		default:
			d.logger.Warn("notification dropped, queue full",
				"event_id", e.ID,
				"type", e.Type,
				"entity_id", e.EntityID,
			)
		}
	}
}

// Run drains the queue until Close is called, then flushes what is left.
func (d *Dispatcher) Run() {
	defer close(d.done)
	for e := range d.queue {
		d.send(e)
	}
}

func (d *Dispatcher) send(e domain.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), d.sendTimeout)
	defer cancel()

	if err := d.sink.Send(ctx, e); err != nil {
		d.logger.Error("notification delivery failed",
			"event_id", e.ID,
			"type", e.Type,
			"entity_id", e.EntityID,
			"error", err,
		)
		return
	}
	d.logger.Debug("notification delivered", "event_id", e.ID, "type", e.Type)
}

// Close stops accepting events, waits for the queue to drain and closes the sink.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	<-d.done
	return d.sink.Close()
}

func encode(e domain.Event) ([]byte, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	return body, nil
}

// LogSink writes events to the structured log. It is the default when no broker is configured.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Send(_ context.Context, e domain.Event) error {
	s.logger.Info("domain event",
		"event_id", e.ID,
		"type", e.Type,
		"entity_type", e.EntityType,
		"entity_id", e.EntityID,
		"recipients", len(e.Recipients),
	)
	return nil
}

func (s *LogSink) Close() error { return nil }
