package rabbitmq

import (
	"errors"
	"fmt"
)

// Error taxonomy for the synchronization subsystem. Broker-level failures are
// retryable with backoff, schema violations and permanent apply failures are
// dead-lettered on the first attempt, everything else a handler returns is
// treated as transient and requeued.
var (
	// ErrBrokerUnreachable means the broker could not be reached within the
	// configured dial timeout / attempt ceiling.
	ErrBrokerUnreachable = errors.New("rabbitmq: broker unreachable")

	// ErrNotConnected means an operation needed a live connection and none was
	// established.
	ErrNotConnected = errors.New("rabbitmq: not connected")

	// ErrChannelClosed means the channel died underneath an in-flight
	// operation; the connection itself may still be healthy.
	ErrChannelClosed = errors.New("rabbitmq: channel closed")

	// ErrSchemaViolation marks a payload that is malformed or missing a
	// required field for its declared event type. Never retried.
	ErrSchemaViolation = errors.New("rabbitmq: schema violation")
)

// permanentError wraps a handler error that must not be retried.
type permanentError struct {
	err error
}

func (p *permanentError) Error() string { return fmt.Sprintf("permanent: %v", p.err) }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as a non-retryable apply failure. The consumer
// dead-letters the message instead of requeueing it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err (or anything it wraps) must not be retried.
// Schema violations are always permanent.
func IsPermanent(err error) bool {
	if errors.Is(err, ErrSchemaViolation) {
		return true
	}
	var p *permanentError
	return errors.As(err, &p)
}
