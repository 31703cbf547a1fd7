package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/qsync/internal/shared"
	"golang.org/x/time/rate"
)

const (
	defaultNotifyTimeout     = time.Second
	defaultDialTimeout       = 2 * time.Second
	defaultReconnectInterval = time.Second
)

// ConnectionManagerOpts configures a [ConnectionManager]. Zero durations take defaults.
type ConnectionManagerOpts struct {
	Dialer            Dialer
	NotifyTimeout     time.Duration
	DialTimeout       time.Duration
	ReconnectInterval time.Duration
	Logger            *log.Logger
}

// ConnectionManager owns the single side-channel handle.
//
// Every network call on the handle is bounded; a call that fails or runs past its bound
// discards the handle instead of retrying. [ConnectionManager.Acquire] is the only way back to [Live].
type ConnectionManager struct {
	dial          Dialer
	notifyTimeout time.Duration
	dialTimeout   time.Duration
	limiter       *rate.Limiter
	logger        *log.Logger

	mu     sync.Mutex // guards conn and closed; never held across network calls
	conn   Conn
	closed bool

	acquireMu sync.Mutex // serializes reconnects
}

// NewConnectionManager creates a [ConnectionManager] in the [Absent] state.
func NewConnectionManager(opts ConnectionManagerOpts) *ConnectionManager {
	if opts.NotifyTimeout <= 0 {
		opts.NotifyTimeout = defaultNotifyTimeout
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = defaultDialTimeout
	}
	if opts.ReconnectInterval <= 0 {
		opts.ReconnectInterval = defaultReconnectInterval
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(io.Discard)
	}

	return &ConnectionManager{
		dial:          opts.Dialer,
		notifyTimeout: opts.NotifyTimeout,
		dialTimeout:   opts.DialTimeout,
		limiter:       rate.NewLimiter(rate.Every(opts.ReconnectInterval), 1),
		logger:        opts.Logger,
	}
}

// State reports whether a handle is currently held.
func (m *ConnectionManager) State() ConnState {
	if m.current() == nil {
		return Absent
	}
	return Live
}

func (m *ConnectionManager) current() Conn {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn
}

// discard drops c if it is still the held handle. A stale c is ignored.
func (m *ConnectionManager) discard(c Conn, reason string, err error) {
	m.mu.Lock()
	if m.conn != c {
		m.mu.Unlock()
		return
	}
	m.conn = nil
	m.mu.Unlock()

	m.logger.Warn("side channel discarded", "reason", reason, "error", err)
	if cerr := c.Close(); cerr != nil {
		m.logger.Debug("closing discarded side channel", "error", cerr)
	}
}

type dialResult struct {
	conn Conn
	err  error
}

// Acquire moves the manager from [Absent] to [Live].
//
// It is a no-op while a usable handle is held. Attempts are throttled to one per
// reconnect interval and bounded by the dial timeout. After [ConnectionManager.Close]
// it fails with [shared.ErrSideChannelClosed].
func (m *ConnectionManager) Acquire(ctx context.Context) error {
	m.acquireMu.Lock()
	defer m.acquireMu.Unlock()

	m.mu.Lock()
	closed, c := m.closed, m.conn
	m.mu.Unlock()

	if closed {
		return shared.ErrSideChannelClosed
	}
	if c != nil {
		if !c.Closed() {
			return nil
		}
		m.discard(c, "closed", nil)
	}

	if m.dial == nil {
		return fmt.Errorf("%w: no side channel dialer configured", shared.ErrServiceUnavailable)
	}
	if !m.limiter.Allow() {
		return fmt.Errorf("%w: reconnect throttled", shared.ErrServiceUnavailable)
	}

	dctx, cancel := context.WithTimeout(ctx, m.dialTimeout)
	defer cancel()

	results := make(chan dialResult, 1)
	go func() {
		conn, err := m.dial(dctx)
		results <- dialResult{conn: conn, err: err}
	}()

	var r dialResult
	select {
	case r = <-results:
	case <-dctx.Done():
		// A dial that completes late is closed rather than installed.
		go func() {
			if late := <-results; late.conn != nil {
				late.conn.Close()
			}
		}()
		if err := ctx.Err(); err != nil {
			return err
		}
		return fmt.Errorf("%w: dial after %s", shared.ErrTimeout, m.dialTimeout)
	}

	if r.err != nil {
		return fmt.Errorf("%w: %v", shared.ErrServiceUnavailable, r.err)
	}
	if r.conn == nil {
		return fmt.Errorf("%w: dialer returned no connection", shared.ErrServiceUnavailable)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		r.conn.Close()
		return shared.ErrSideChannelClosed
	}
	m.conn = r.conn
	m.mu.Unlock()

	m.logger.Info("side channel connected")
	return nil
}

// bounded runs call with a deadline of timeout and returns as soon as either finishes,
// even when call ignores its context.
func bounded(ctx context.Context, timeout time.Duration, call func(context.Context) error) error {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- call(cctx) }()

	select {
	case err := <-done:
		return err
	case <-cctx.Done():
		return cctx.Err()
	}
}

// SendNotify publishes payload on channel using the held handle.
//
// It never blocks for longer than the notify timeout and never returns an error:
// without a usable handle it is a no-op, and a failed or timed out publish discards the handle.
// A caller deadline that expires first counts as a timeout; only cancellation keeps the handle.
func (m *ConnectionManager) SendNotify(ctx context.Context, channel string, payload []byte) NotifyOutcome {
	c := m.current()
	if c == nil {
		return NotifySkipped
	}
	if c.Closed() {
		m.discard(c, "closed", nil)
		return NotifySkipped
	}

	err := bounded(ctx, m.notifyTimeout, func(ctx context.Context) error {
		return c.Publish(ctx, channel, payload)
	})
	switch {
	case err == nil:
		return NotifyDelivered
	case errors.Is(ctx.Err(), context.Canceled):
		m.logger.Debug("notify abandoned by caller", "channel", channel, "error", ctx.Err())
		return NotifyDropped
	case errors.Is(err, context.DeadlineExceeded):
		m.discard(c, "notify timeout", err)
	default:
		m.discard(c, "notify failed", err)
	}
	return NotifyDropped
}

// Probe pings the held handle within timeout, discarding it on failure.
//
// If ctx is cancelled first the handle is left as it was and [ProbeCancelled] is returned.
// A caller deadline counts as a timeout.
func (m *ConnectionManager) Probe(ctx context.Context, timeout time.Duration) ProbeOutcome {
	if timeout <= 0 {
		timeout = m.notifyTimeout
	}

	c := m.current()
	if c == nil {
		return ProbeSkipped
	}
	if c.Closed() {
		m.discard(c, "closed", nil)
		return ProbeFailed
	}

	err := bounded(ctx, timeout, c.Ping)
	switch {
	case err == nil:
		return ProbeHealthy
	case errors.Is(ctx.Err(), context.Canceled):
		return ProbeCancelled
	case errors.Is(err, context.DeadlineExceeded):
		m.discard(c, "probe timeout", err)
	default:
		m.discard(c, "probe failed", err)
	}
	return ProbeFailed
}

// Close releases the held handle and refuses further [ConnectionManager.Acquire] calls.
// Calling it again is a no-op.
func (m *ConnectionManager) Close() error {
	m.mu.Lock()
	c := m.conn
	m.conn = nil
	m.closed = true
	m.mu.Unlock()

	if c == nil {
		return nil
	}
	return c.Close()
}
