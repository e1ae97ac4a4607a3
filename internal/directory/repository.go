package directory

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/AhmedmohamedAhmed90/Konecta-ERP/pkg/models"
)

// Querier is satisfied by both *sql.DB and *sql.Tx. The consumer runs the
// event apply against a transaction so the projection write and the ledger
// insert commit or roll back together.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Repository owns the SQL for the user projection's event-apply path:
// find, create-from-event, apply-update-from-event.
type Repository struct{}

// FindByID returns the projection row for id, or nil if absent.
func (Repository) FindByID(ctx context.Context, q Querier, id string) (*models.User, error) {
	var u models.User
	err := q.QueryRowContext(ctx,
		`SELECT id, email, full_name, role, status, COALESCE(department, ''), is_deleted, created_at, updated_at, deleted_at
		 FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.Email, &u.FullName, &u.Role, &u.Status, &u.Department,
		&u.IsDeleted, &u.CreatedAt, &u.UpdatedAt, &u.DeletedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find user %s: %w", id, err)
	}
	return &u, nil
}

// CreateFromEvent materializes a new projection row from the event payload.
func (Repository) CreateFromEvent(ctx context.Context, q Querier, event models.UserEvent) (*models.User, error) {
	u := models.User{
		ID:        event.Data.ID,
		Email:     event.Data.Email,
		FullName:  event.Data.FullName,
		Role:      event.Data.Role,
		Status:    event.Data.Status,
		CreatedAt: event.OccurredAt,
		UpdatedAt: event.OccurredAt,
	}
	if u.Status == "" {
		u.Status = "Active"
	}
	u.Department = event.Data.Department

	_, err := q.ExecContext(ctx,
		`INSERT INTO users (id, email, full_name, role, status, department, is_deleted, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), FALSE, $7, $8)`,
		u.ID, u.Email, u.FullName, u.Role, u.Status, u.Department, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("create user %s from event %s: %w", u.ID, event.EventID, err)
	}
	return &u, nil
}

// ApplyUpdateFromEvent folds the event's carried fields into the existing row.
// Fields the event does not carry keep their local values; carried fields are
// last-write-wins. The row may predate the event (created by a direct
// directory edit), so this never assumes the event stream is the sole writer.
func (Repository) ApplyUpdateFromEvent(ctx context.Context, q Querier, existing *models.User, event models.UserEvent) (*models.User, error) {
	updated := *existing
	if event.Data.Email != "" {
		updated.Email = event.Data.Email
	}
	if event.Data.FullName != "" {
		updated.FullName = event.Data.FullName
	}
	if event.Data.Role != "" {
		updated.Role = event.Data.Role
	}
	if event.Data.Status != "" {
		updated.Status = event.Data.Status
	}
	if event.Data.Department != "" {
		updated.Department = event.Data.Department
	}
	updated.UpdatedAt = event.OccurredAt

	_, err := q.ExecContext(ctx,
		`UPDATE users SET email = $1, full_name = $2, role = $3, status = $4, department = NULLIF($5, ''), updated_at = $6
		 WHERE id = $7`,
		updated.Email, updated.FullName, updated.Role, updated.Status, updated.Department, updated.UpdatedAt, updated.ID)
	if err != nil {
		return nil, fmt.Errorf("apply update to user %s from event %s: %w", updated.ID, event.EventID, err)
	}
	return &updated, nil
}

// MarkDeletedFromEvent soft-deletes the projection row.
func (Repository) MarkDeletedFromEvent(ctx context.Context, q Querier, event models.UserEvent) error {
	_, err := q.ExecContext(ctx,
		`UPDATE users SET is_deleted = TRUE, status = 'Deleted', deleted_at = $1, updated_at = $1 WHERE id = $2`,
		event.OccurredAt, event.Data.ID)
	if err != nil {
		return fmt.Errorf("mark user %s deleted from event %s: %w", event.Data.ID, event.EventID, err)
	}
	return nil
}
