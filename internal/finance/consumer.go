package finance

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
	QueueName = "finance.user.events"
	DLQName   = "dlq.finance.user.events"
)

// Consumer provisions and maintains employee compensation accounts from user
// events. The compensation business rules (bonuses, deductions, payroll) live
// elsewhere; this worker only keeps the account roster in sync.
type Consumer struct {
	DB  *sql.DB
	Log *zap.Logger
}

// NewConsumer creates a finance consumer.
func NewConsumer(db *sql.DB, log *zap.Logger) *Consumer {
	return &Consumer{DB: db, Log: log.Named("finance-consumer")}
}

// HandleMessage applies one user event idempotently, with the account write
// and the ledger insert in a single local transaction.
func (c *Consumer) HandleMessage(ctx context.Context, delivery amqp.Delivery) error {
	event, err := models.DecodeUserEvent(delivery.Body)
	if err != nil {
		return fmt.Errorf("%w: %v", rabbitmq.ErrSchemaViolation, err)
	}

	log := c.Log.With(
		zap.String("event_id", event.EventID),
		zap.String("event_type", string(event.EventType)),
		zap.String("correlation_id", event.CorrelationID),
		zap.String("employee_id", event.Data.ID))

	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin apply tx: %w", err)
	}
	defer tx.Rollback()

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
	switch event.EventType {
	case models.EventUserCreated:
		// The account may already exist from a direct finance-side upsert;
		// refresh the roster fields instead of failing on the key.
		_, err := tx.ExecContext(ctx,
			`INSERT INTO compensation_accounts (employee_id, employee_email, employee_name, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $4)
			 ON CONFLICT (employee_id)
			 DO UPDATE SET employee_email = EXCLUDED.employee_email,
			               employee_name = EXCLUDED.employee_name,
			               updated_at = EXCLUDED.updated_at`,
			event.Data.ID, event.Data.Email, event.Data.FullName, event.OccurredAt)
		if err != nil {
			return fmt.Errorf("provision account for %s: %w", event.Data.ID, err)
		}
		return nil

	case models.EventUserUpdated:
		if event.Data.Email == "" && event.Data.FullName == "" {
			// Nothing finance cares about changed.
			return nil
		}
		_, err := tx.ExecContext(ctx,
			`UPDATE compensation_accounts
			 SET employee_email = COALESCE(NULLIF($1, ''), employee_email),
			     employee_name = COALESCE(NULLIF($2, ''), employee_name),
			     updated_at = $3
			 WHERE employee_id = $4`,
			event.Data.Email, event.Data.FullName, event.OccurredAt, event.Data.ID)
		if err != nil {
			return fmt.Errorf("update account for %s: %w", event.Data.ID, err)
		}
		return nil

	case models.EventUserDeleted:
		_, err := tx.ExecContext(ctx,
			"UPDATE compensation_accounts SET status = 'Closed', updated_at = $1 WHERE employee_id = $2",
			event.OccurredAt, event.Data.ID)
		if err != nil {
			return fmt.Errorf("close account for %s: %w", event.Data.ID, err)
		}
		return nil

	default:
		return fmt.Errorf("%w: unhandled event type %q", rabbitmq.ErrSchemaViolation, event.EventType)
	}
}
