package rabbitmq

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/AhmedmohamedAhmed90/Konecta-ERP/pkg/metrics"
)

// ConnState is the lifecycle state of the process-wide broker connection.
type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateFaulted
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateFaulted:
		return "faulted"
	default:
		return "unknown"
	}
}

// ConnectionConfig holds the dial and reconnect knobs for the manager.
type ConnectionConfig struct {
	URL               string
	DialTimeout       time.Duration
	ReconnectBase     time.Duration
	ReconnectMax      time.Duration
	ReconnectAttempts int
}

// ConnectionManager owns the single broker connection of a process and hands
// out channels to publishers and consumers. All state transitions go through
// the manager; reconnection attempts are serialized by its mutex, so a publish
// path and a consumer loop racing to reconnect wait on one dial outcome.
type ConnectionManager struct {
	cfg ConnectionConfig
	log *zap.Logger

	mu       sync.Mutex
	conn     *amqp.Connection
	state    atomic.Int32
	shutdown bool
}

// NewConnectionManager creates a manager in the Disconnected state. Nothing is
// dialed until Connect or EnsureConnected is called.
func NewConnectionManager(cfg ConnectionConfig, log *zap.Logger) *ConnectionManager {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	if cfg.ReconnectBase <= 0 {
		cfg.ReconnectBase = 500 * time.Millisecond
	}
	if cfg.ReconnectMax <= 0 {
		cfg.ReconnectMax = 30 * time.Second
	}
	if cfg.ReconnectAttempts <= 0 {
		cfg.ReconnectAttempts = 10
	}
	return &ConnectionManager{cfg: cfg, log: log.Named("rabbitmq")}
}

// State returns the current connection state.
func (m *ConnectionManager) State() ConnState {
	return ConnState(m.state.Load())
}

// Connect performs a single dial attempt within the configured timeout. It does
// not retry; callers wanting backoff use EnsureConnected.
func (m *ConnectionManager) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.connectedLocked() {
		return nil
	}
	return m.dialLocked(ctx)
}

// EnsureConnected returns the live connection, dialing with exponential backoff
// and jitter up to the configured attempt ceiling if necessary. Safe for
// concurrent use: one caller dials, the rest block on the mutex and reuse the
// outcome.
func (m *ConnectionManager) EnsureConnected(ctx context.Context) (*amqp.Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.connectedLocked() {
		return m.conn, nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = m.cfg.ReconnectBase
	bo.MaxInterval = m.cfg.ReconnectMax
	bo.MaxElapsedTime = 0
	bo.Reset()

	var lastErr error
	for attempt := 1; attempt <= m.cfg.ReconnectAttempts; attempt++ {
		if lastErr = m.dialLocked(ctx); lastErr == nil {
			return m.conn, nil
		}

		wait := bo.NextBackOff()
		m.log.Warn("reconnect attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", m.cfg.ReconnectAttempts),
			zap.Duration("next_retry_in", wait),
			zap.Error(lastErr))

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrBrokerUnreachable, ctx.Err())
		case <-time.After(wait):
		}
	}

	m.state.Store(int32(StateFaulted))
	return nil, fmt.Errorf("%w: gave up after %d attempts: %v",
		ErrBrokerUnreachable, m.cfg.ReconnectAttempts, lastErr)
}

// Channel opens a fresh channel, transparently calling EnsureConnected first.
// Callers never need to dial themselves.
func (m *ConnectionManager) Channel(ctx context.Context) (*amqp.Channel, error) {
	conn, err := m.EnsureConnected(ctx)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		// The connection died between EnsureConnected and Channel.
		m.state.Store(int32(StateDisconnected))
		return nil, fmt.Errorf("%w: %v", ErrNotConnected, err)
	}
	return ch, nil
}

// Close shuts the connection down deliberately. The manager ends Disconnected
// and the close watcher does not treat it as a failure.
func (m *ConnectionManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.shutdown = true
	m.state.Store(int32(StateDisconnected))
	if m.conn != nil && !m.conn.IsClosed() {
		return m.conn.Close()
	}
	return nil
}

func (m *ConnectionManager) connectedLocked() bool {
	return m.State() == StateConnected && m.conn != nil && !m.conn.IsClosed()
}

// dialLocked performs one dial attempt. Caller holds m.mu.
func (m *ConnectionManager) dialLocked(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrBrokerUnreachable, err)
	}

	m.state.Store(int32(StateConnecting))
	metrics.ReconnectAttempts.Inc()

	conn, err := amqp.DialConfig(m.cfg.URL, amqp.Config{
		Dial:      amqp.DefaultDial(m.cfg.DialTimeout),
		Heartbeat: 10 * time.Second,
	})
	if err != nil {
		m.state.Store(int32(StateFaulted))
		metrics.ReconnectFailures.Inc()
		return fmt.Errorf("%w: %v", ErrBrokerUnreachable, err)
	}

	m.conn = conn
	m.state.Store(int32(StateConnected))
	metrics.ReconnectSuccesses.Inc()
	m.log.Info("connected to broker")

	go m.watch(conn)
	return nil
}

// watch flips the state to Disconnected when the broker closes the connection
// underneath us. No reconnect is triggered here; the next publish or consume
// drives EnsureConnected.
func (m *ConnectionManager) watch(conn *amqp.Connection) {
	err, ok := <-conn.NotifyClose(make(chan *amqp.Error, 1))

	m.mu.Lock()
	deliberate := m.shutdown
	if m.conn == conn {
		m.state.Store(int32(StateDisconnected))
	}
	m.mu.Unlock()

	if deliberate || !ok {
		return
	}
	metrics.ConnectionLosses.Inc()
	m.log.Warn("broker closed the connection", zap.Error(err))
}
