package notify

import (
	"context"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/josh-kwaku/boma-settlement/internal/domain"
)

// AMQPSink publishes events as persistent JSON messages to a durable queue.
type AMQPSink struct {
	conn    *amqp.Connection
	mu      sync.Mutex
	channel *amqp.Channel
	queue   string
}

func NewAMQPSink(url, queue string) (*AMQPSink, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("NewAMQPSink: dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("NewAMQPSink: channel: %w", err)
	}

	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("NewAMQPSink: declare %s: %w", queue, err)
	}

	return &AMQPSink{conn: conn, channel: ch, queue: queue}, nil
}

func (s *AMQPSink) Send(ctx context.Context, e domain.Event) error {
	body, err := encode(e)
	if err != nil {
		return fmt.Errorf("AMQPSink.Send: %w", err)
	}

	// amqp channels are not safe for concurrent publishing.
	s.mu.Lock()
	defer s.mu.Unlock()

	err = s.channel.PublishWithContext(ctx, "", s.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    e.ID.String(),
		Type:         string(e.Type),
		Timestamp:    e.OccurredAt,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("AMQPSink.Send: %w", err)
	}
	return nil
}

func (s *AMQPSink) Close() error {
	var errs []error
	if err := s.channel.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := s.conn.Close(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("AMQPSink.Close: %v", errs)
	}
	return nil
}
