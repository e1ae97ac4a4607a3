package directory

import (
	"context"
	"database/sql"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/AhmedmohamedAhmed90/Konecta-ERP/pkg/metrics"
	"github.com/AhmedmohamedAhmed90/Konecta-ERP/pkg/models"
	"github.com/AhmedmohamedAhmed90/Konecta-ERP/pkg/rabbitmq"
)

const (
	QueueName = "directory.user.events"
	DLQName   = "dlq.directory.user.events"
)

// Consumer materializes the user directory projection from user events.
type Consumer struct {
	DB   *sql.DB
	Repo Repository
	Log  *zap.Logger
}

// NewConsumer creates a directory consumer.
func NewConsumer(db *sql.DB, log *zap.Logger) *Consumer {
	return &Consumer{DB: db, Log: log.Named("directory-consumer")}
}

// HandleMessage applies one user event idempotently. The ledger insert and the
// projection write share one transaction: either both commit or neither does,
// so a crash mid-apply leaves the message eligible for redelivery with the
// ledger untouched.
func (c *Consumer) HandleMessage(ctx context.Context, delivery amqp.Delivery) error {
	event, err := models.DecodeUserEvent(delivery.Body)
	if err != nil {
		return fmt.Errorf("%w: %v", rabbitmq.ErrSchemaViolation, err)
	}

	log := c.Log.With(
		zap.String("event_id", event.EventID),
		zap.String("event_type", string(event.EventType)),
		zap.String("correlation_id", event.CorrelationID),
		zap.String("user_id", event.Data.ID))

	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin apply tx: %w", err)
	}
	defer tx.Rollback()

	// Ledger first. ON CONFLICT DO NOTHING makes the event_id primary key the
	// arbiter when two instances race on the same redelivered message: one
	// insert wins, the other sees zero rows and acks as a duplicate.
	res, err := tx.ExecContext(ctx,
		"INSERT INTO processed_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING",
		event.EventID, string(event.EventType))
	if err != nil {
		return fmt.Errorf("record processed event: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		metrics.DuplicatesSuppressed.WithLabelValues(QueueName).Inc()
		log.Info("duplicate event suppressed")
		return nil
	}

	if err := c.apply(ctx, tx, event); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit apply tx: %w", err)
	}

	metrics.EventsApplied.WithLabelValues(QueueName).Inc()
	log.Info("event applied")
	return nil
}

func (c *Consumer) apply(ctx context.Context, tx *sql.Tx, event models.UserEvent) error {
	existing, err := c.Repo.FindByID(ctx, tx, event.Data.ID)
	if err != nil {
		return err
	}

	switch event.EventType {
	case models.EventUserCreated, models.EventUserUpdated:
		// Upsert either way: a created event can arrive for a row a direct
		// directory edit already made, and an updated event can arrive before
		// the created one was ever seen.
		if existing == nil {
			if event.Data.Email == "" || event.Data.FullName == "" || event.Data.Role == "" {
				return rabbitmq.Permanent(fmt.Errorf(
					"event %s updates unknown user %s without the fields to create it",
					event.EventID, event.Data.ID))
			}
			_, err = c.Repo.CreateFromEvent(ctx, tx, event)
			return err
		}
		_, err = c.Repo.ApplyUpdateFromEvent(ctx, tx, existing, event)
		return err

	case models.EventUserDeleted:
		if existing == nil {
			// Nothing to delete; record the event and move on.
			return nil
		}
		return c.Repo.MarkDeletedFromEvent(ctx, tx, event)

	default:
		return fmt.Errorf("%w: unhandled event type %q", rabbitmq.ErrSchemaViolation, event.EventType)
	}
}
