package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/AhmedmohamedAhmed90/Konecta-ERP/pkg/metrics"
	"github.com/AhmedmohamedAhmed90/Konecta-ERP/pkg/models"
)

// Publisher delivers domain events to the topic exchange. Publication is
// best-effort: by the time Publish runs, the triggering business operation has
// already committed, so callers log the returned error instead of failing the
// request. No retry happens here; a lost publish surfaces only through logs and
// the publish-failure counter.
type Publisher struct {
	manager  *ConnectionManager
	exchange string
	log      *zap.Logger

	mu      sync.Mutex
	channel *amqp.Channel
}

// NewPublisher creates a publisher on the given manager. The exchange is
// declared lazily on the first publish, so constructing a publisher never
// requires the broker to be up.
func NewPublisher(manager *ConnectionManager, exchange string, log *zap.Logger) *Publisher {
	return &Publisher{
		manager:  manager,
		exchange: exchange,
		log:      log.Named("publisher"),
	}
}

// Publish serializes the event and sends it with the event type as routing key.
// The channel is reused across calls and reopened once if it died since the
// last publish.
func (p *Publisher) Publish(ctx context.Context, event models.UserEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		metrics.PublishFailures.WithLabelValues(string(event.EventType)).Inc()
		return fmt.Errorf("marshal event %s: %w", event.EventID, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channelLocked(ctx)
	if err != nil {
		metrics.PublishFailures.WithLabelValues(string(event.EventType)).Inc()
		return err
	}

	err = p.sendLocked(ctx, ch, event, body)
	if err != nil && isClosedErr(err) {
		// The channel died since the last publish. Reopen once and retry the
		// send on the fresh channel; deeper outages bubble up as errors.
		p.channel = nil
		if ch, err = p.channelLocked(ctx); err == nil {
			err = p.sendLocked(ctx, ch, event, body)
		}
	}
	if err != nil {
		metrics.PublishFailures.WithLabelValues(string(event.EventType)).Inc()
		p.log.Error("publish failed",
			zap.String("event_id", event.EventID),
			zap.String("event_type", string(event.EventType)),
			zap.String("correlation_id", event.CorrelationID),
			zap.Error(err))
		return err
	}

	metrics.EventsPublished.WithLabelValues(string(event.EventType)).Inc()
	p.log.Info("event published",
		zap.String("event_id", event.EventID),
		zap.String("event_type", string(event.EventType)),
		zap.String("correlation_id", event.CorrelationID))
	return nil
}

// Close closes the publisher channel. The shared connection stays up.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel != nil && !p.channel.IsClosed() {
		err := p.channel.Close()
		p.channel = nil
		return err
	}
	return nil
}

func (p *Publisher) channelLocked(ctx context.Context) (*amqp.Channel, error) {
	if p.channel != nil && !p.channel.IsClosed() {
		return p.channel, nil
	}

	ch, err := p.manager.Channel(ctx)
	if err != nil {
		return nil, err
	}

	if err := declareExchange(ch, p.exchange); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", p.exchange, err)
	}

	p.channel = ch
	return ch, nil
}

func (p *Publisher) sendLocked(ctx context.Context, ch *amqp.Channel, event models.UserEvent, body []byte) error {
	pubCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	err := ch.PublishWithContext(
		pubCtx,
		p.exchange,
		string(event.EventType),
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:   "application/json",
			CorrelationId: event.CorrelationID,
			MessageId:     event.EventID,
			Body:          body,
			DeliveryMode:  amqp.Persistent,
			Timestamp:     event.OccurredAt,
		},
	)
	if err != nil && isClosedErr(err) {
		return fmt.Errorf("%w: %v", ErrChannelClosed, err)
	}
	return err
}

// declareExchange declares the durable topic exchange. Idempotent; both the
// publisher and every consumer declare it so startup order does not matter.
func declareExchange(ch *amqp.Channel, name string) error {
	return ch.ExchangeDeclare(
		name,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
}

func isClosedErr(err error) bool {
	if err == amqp.ErrClosed {
		return true
	}
	if amqpErr, ok := err.(*amqp.Error); ok {
		return amqpErr.Code == amqp.ChannelError || amqpErr.Code == amqp.ConnectionForced
	}
	return false
}
