package rabbitmq

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/AhmedmohamedAhmed90/Konecta-ERP/pkg/metrics"
)

// WorkerState is the lifecycle state of a consumer worker.
type WorkerState int32

const (
	WorkerStarting WorkerState = iota
	WorkerSubscribed
	WorkerProcessing
	WorkerRetrying
	WorkerStopping
	WorkerStopped
)

func (s WorkerState) String() string {
	switch s {
	case WorkerStarting:
		return "starting"
	case WorkerSubscribed:
		return "subscribed"
	case WorkerProcessing:
		return "processing"
	case WorkerRetrying:
		return "retrying"
	case WorkerStopping:
		return "stopping"
	case WorkerStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// ConsumerConfig holds configuration for setting up a consumer.
type ConsumerConfig struct {
	Exchange     string
	QueueName    string
	DLQName      string
	RoutingKeys  []string
	ConsumerName string
	Prefetch     int

	// RequeueDelay spaces out redeliveries of transiently failing messages so
	// a down database does not cause a hot nack/redeliver loop.
	RequeueDelay time.Duration
}

// MessageHandler processes one delivered message. Return nil to ack (including
// suppressed duplicates), an error satisfying IsPermanent to dead-letter, any
// other error to requeue for broker redelivery.
type MessageHandler func(ctx context.Context, delivery amqp.Delivery) error

// Consumer is a long-running worker bound to one durable queue. Messages from
// the queue are processed strictly sequentially, which is what preserves
// per-queue ordering; throughput scales by running more service instances, not
// by in-process parallelism.
type Consumer struct {
	manager *ConnectionManager
	cfg     ConsumerConfig
	handler MessageHandler
	log     *zap.Logger
	state   atomic.Int32
}

// NewConsumer wires a consumer; nothing touches the broker until Run.
func NewConsumer(manager *ConnectionManager, cfg ConsumerConfig, handler MessageHandler, log *zap.Logger) *Consumer {
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 1
	}
	if cfg.RequeueDelay <= 0 {
		cfg.RequeueDelay = 500 * time.Millisecond
	}
	return &Consumer{
		manager: manager,
		cfg:     cfg,
		handler: handler,
		log:     log.Named(cfg.ConsumerName),
	}
}

// State returns the worker's current state.
func (c *Consumer) State() WorkerState {
	return WorkerState(c.state.Load())
}

// Healthy reports whether the worker is subscribed and able to process. A
// worker stuck in Retrying is unhealthy but keeps retrying; it never takes the
// process down.
func (c *Consumer) Healthy() bool {
	s := c.State()
	return s == WorkerSubscribed || s == WorkerProcessing
}

// Run subscribes and processes messages until ctx is cancelled. Subscription
// failures (broker down at startup, connection lost mid-stream) put the worker
// into Retrying with backoff, indefinitely. Run returns only on shutdown, after
// the in-flight message has been acked or nacked.
func (c *Consumer) Run(ctx context.Context) {
	defer c.setState(WorkerStopped)
	c.setState(WorkerStarting)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxInterval = 30 * time.Second
	bo.MaxElapsedTime = 0
	bo.Reset()

	for ctx.Err() == nil {
		ch, deliveries, err := c.subscribe(ctx)
		if err != nil {
			c.setState(WorkerRetrying)
			wait := bo.NextBackOff()
			c.log.Warn("subscribe failed",
				zap.String("queue", c.cfg.QueueName),
				zap.Duration("retry_in", wait),
				zap.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(wait):
			}
			continue
		}

		bo.Reset()
		c.setState(WorkerSubscribed)
		c.log.Info("consumer subscribed", zap.String("queue", c.cfg.QueueName))

		c.consume(ctx, deliveries)

		if ctx.Err() == nil {
			// The delivery stream ended without a shutdown: the channel or
			// connection died. Resubscribe.
			c.setState(WorkerRetrying)
			c.log.Warn("delivery stream closed, resubscribing", zap.String("queue", c.cfg.QueueName))
		} else {
			c.setState(WorkerStopping)
			_ = ch.Cancel(c.cfg.ConsumerName, false)
		}
		_ = ch.Close()
	}
}

// consume drains deliveries one at a time until the stream closes or ctx is
// cancelled. Each message is fully decided (ack/nack) before the next is read.
func (c *Consumer) consume(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case delivery, ok := <-deliveries:
			if !ok {
				return
			}
			c.setState(WorkerProcessing)
			c.process(ctx, delivery)
			c.setState(WorkerSubscribed)
		}
	}
}

func (c *Consumer) process(ctx context.Context, delivery amqp.Delivery) {
	metrics.EventsReceived.WithLabelValues(c.cfg.QueueName).Inc()
	c.log.Debug("message received",
		zap.String("routing_key", delivery.RoutingKey),
		zap.String("correlation_id", delivery.CorrelationId),
		zap.Bool("redelivered", delivery.Redelivered))

	err := c.handler(ctx, delivery)
	switch {
	case err == nil:
		_ = delivery.Ack(false)

	case IsPermanent(err):
		metrics.EventsDeadLettered.WithLabelValues(c.cfg.QueueName).Inc()
		c.log.Error("message dead-lettered",
			zap.String("routing_key", delivery.RoutingKey),
			zap.String("correlation_id", delivery.CorrelationId),
			zap.Error(err))
		// requeue=false routes the message to the DLQ via the queue's
		// dead-letter arguments.
		_ = delivery.Nack(false, false)

	default:
		metrics.EventsRequeued.WithLabelValues(c.cfg.QueueName).Inc()
		c.log.Warn("transient failure, message requeued",
			zap.String("routing_key", delivery.RoutingKey),
			zap.String("correlation_id", delivery.CorrelationId),
			zap.Error(err))
		_ = delivery.Nack(false, true)
		select {
		case <-ctx.Done():
		case <-time.After(c.cfg.RequeueDelay):
		}
	}
}

// subscribe ensures a connection, declares the topology (exchange, DLQ, main
// queue with dead-letter args, bindings, prefetch) and starts the delivery
// stream with manual acks.
func (c *Consumer) subscribe(ctx context.Context) (*amqp.Channel, <-chan amqp.Delivery, error) {
	ch, err := c.manager.Channel(ctx)
	if err != nil {
		return nil, nil, err
	}

	if err := declareExchange(ch, c.cfg.Exchange); err != nil {
		_ = ch.Close()
		return nil, nil, err
	}

	// DLQ first so the main queue's dead-letter routing has a target.
	if _, err := ch.QueueDeclare(
		c.cfg.DLQName,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,
	); err != nil {
		_ = ch.Close()
		return nil, nil, err
	}

	args := amqp.Table{
		"x-dead-letter-exchange":    "", // default exchange
		"x-dead-letter-routing-key": c.cfg.DLQName,
	}
	if _, err := ch.QueueDeclare(
		c.cfg.QueueName,
		true,  // durable, messages survive consumer downtime
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		args,
	); err != nil {
		_ = ch.Close()
		return nil, nil, err
	}

	for _, key := range c.cfg.RoutingKeys {
		if err := ch.QueueBind(c.cfg.QueueName, key, c.cfg.Exchange, false, nil); err != nil {
			_ = ch.Close()
			return nil, nil, err
		}
	}

	if err := ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
		_ = ch.Close()
		return nil, nil, err
	}

	deliveries, err := ch.Consume(
		c.cfg.QueueName,
		c.cfg.ConsumerName,
		false, // auto-ack off, acks are explicit
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		_ = ch.Close()
		return nil, nil, err
	}

	return ch, deliveries, nil
}

func (c *Consumer) setState(s WorkerState) {
	c.state.Store(int32(s))
}
