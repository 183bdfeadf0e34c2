package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/Uscout07/casaway-speedtest/pkg/models"
)

// Routing keys for published events.
const (
	KeyMeasurementCompleted = "measurement.completed"
	KeyMeasurementFailed    = "measurement.failed"
)

const (
	publishAttempts = 5
	publishBackoff  = 500 * time.Millisecond
)

// MeasurementEvent is the envelope put on the wire for every finished
// measurement run.
type MeasurementEvent struct {
	Event     string                  `json:"event"`
	Timestamp time.Time               `json:"timestamp"`
	Result    *models.SpeedTestResult `json:"result,omitempty"`
	Error     string                  `json:"error,omitempty"`
}

// Publisher emits measurement events to a topic exchange.
type Publisher struct {
	channel  *amqp.Channel
	exchange string
	log      *logrus.Entry
}

// NewPublisher opens a channel on conn and declares the exchange.
func NewPublisher(conn *amqp.Connection, exchange string, log *logrus.Logger) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		exchange,
		"topic",
		true, // durable
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	return &Publisher{
		channel:  ch,
		exchange: exchange,
		log:      log.WithField("component", "events"),
	}, nil
}

// PublishMeasurement emits a completed-measurement event.
func (p *Publisher) PublishMeasurement(ctx context.Context, result *models.SpeedTestResult) error {
	event := MeasurementEvent{
		Event:     KeyMeasurementCompleted,
		Timestamp: time.Now().UTC(),
		Result:    result,
	}
	return p.publish(ctx, KeyMeasurementCompleted, event)
}

// PublishFailure emits a failed-measurement event carrying the error
// text.
func (p *Publisher) PublishFailure(ctx context.Context, reason string) error {
	event := MeasurementEvent{
		Event:     KeyMeasurementFailed,
		Timestamp: time.Now().UTC(),
		Error:     reason,
	}
	return p.publish(ctx, KeyMeasurementFailed, event)
}

// Close releases the channel.
func (p *Publisher) Close() error {
	if p.channel == nil {
		return nil
	}
	return p.channel.Close()
}

func (p *Publisher) publish(ctx context.Context, routingKey string, event MeasurementEvent) error {
	if p.channel == nil {
		return fmt.Errorf("rabbitmq channel not initialized")
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	delay := publishBackoff
	var lastErr error
	for attempt := 1; attempt <= publishAttempts; attempt++ {
		lastErr = p.channel.PublishWithContext(ctx,
			p.exchange,
			routingKey,
			false,
			false,
			amqp.Publishing{
				ContentType: "application/json",
				Body:        body,
			},
		)
		if lastErr == nil {
			p.log.WithField("routing_key", routingKey).Debug("event published")
			return nil
		}

		p.log.WithError(lastErr).WithFields(logrus.Fields{
			"routing_key": routingKey,
			"attempt":     attempt,
		}).Warn("publish failed")

		if attempt == publishAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}

	return fmt.Errorf("publish %s after %d attempts: %w", routingKey, publishAttempts, lastErr)
}
