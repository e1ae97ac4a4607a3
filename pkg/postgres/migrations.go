package postgres

import (
	"database/sql"

	"go.uber.org/zap"
)

// RunMigrations executes the schema statements for one service. Each service
// owns its own database; the only shared shape is the processed_events ledger
// every consumer keeps locally.
func RunMigrations(db *sql.DB, service string, log *zap.Logger) error {
	for _, m := range getServiceMigrations(service) {
		if _, err := db.Exec(m); err != nil {
			return err
		}
	}
	log.Info("migrations completed", zap.String("db_service", service))
	return nil
}

// processedEventsTable is the idempotency ledger. The primary key on event_id
// is what turns a race between two instances applying the same redelivery into
// one insert and one detected duplicate.
const processedEventsTable = `CREATE TABLE IF NOT EXISTS processed_events (
	event_id VARCHAR(36) PRIMARY KEY,
	event_type VARCHAR(50) NOT NULL,
	processed_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

func getServiceMigrations(service string) []string {
	switch service {
	case "auth":
		return []string{
			`CREATE TABLE IF NOT EXISTS credentials (
				user_id VARCHAR(36) PRIMARY KEY,
				email VARCHAR(255) NOT NULL UNIQUE,
				full_name VARCHAR(255) NOT NULL,
				password_hash VARCHAR(128) NOT NULL,
				role VARCHAR(50) NOT NULL DEFAULT 'Employee',
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`,
		}
	case "directory":
		return []string{
			`CREATE TABLE IF NOT EXISTS users (
				id VARCHAR(36) PRIMARY KEY,
				email VARCHAR(255) NOT NULL,
				full_name VARCHAR(255) NOT NULL,
				role VARCHAR(50) NOT NULL,
				status VARCHAR(50) NOT NULL DEFAULT 'Active',
				department VARCHAR(100),
				is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				deleted_at TIMESTAMPTZ
			)`,
			processedEventsTable,
		}
	case "finance":
		return []string{
			`CREATE TABLE IF NOT EXISTS compensation_accounts (
				employee_id VARCHAR(36) PRIMARY KEY,
				employee_email VARCHAR(255) NOT NULL,
				employee_name VARCHAR(255) NOT NULL,
				base_salary NUMERIC(12,2) NOT NULL DEFAULT 0,
				status VARCHAR(50) NOT NULL DEFAULT 'Provisioned',
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`,
			processedEventsTable,
		}
	default:
		return []string{processedEventsTable}
	}
}
