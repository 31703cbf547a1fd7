package tasks

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/qsync/internal/services"
	"github.com/desertthunder/qsync/internal/shared"
)

const defaultHeartbeatInterval = 5 * time.Second

// HeartbeatOpts configures a [HeartbeatMonitor].
type HeartbeatOpts struct {
	Interval     time.Duration
	ProbeTimeout time.Duration // Must be shorter than Interval; clamped to Interval/2 otherwise
	Logger       *log.Logger
	Updates      chan<- HeartbeatUpdate
}

// HeartbeatMonitor periodically probes the side channel held by a [services.ConnectionManager].
//
// A Live handle is pinged within the probe timeout and discarded by the manager if the ping
// does not come back, so a zombie connection is found within about one interval. An Absent
// handle gets one throttled reconnect attempt per tick.
type HeartbeatMonitor struct {
	manager      *services.ConnectionManager
	interval     time.Duration
	probeTimeout time.Duration
	logger       *log.Logger
	updates      chan<- HeartbeatUpdate

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	ticks atomic.Int64
}

// NewHeartbeatMonitor creates a stopped [HeartbeatMonitor] for manager.
func NewHeartbeatMonitor(manager *services.ConnectionManager, opts HeartbeatOpts) *HeartbeatMonitor {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(io.Discard)
	}
	if opts.Interval <= 0 {
		opts.Interval = defaultHeartbeatInterval
	}
	if opts.ProbeTimeout <= 0 || opts.ProbeTimeout >= opts.Interval {
		clamped := opts.Interval / 2
		if opts.ProbeTimeout > 0 {
			opts.Logger.Warn("probe timeout must be shorter than the heartbeat interval",
				"probe_timeout", opts.ProbeTimeout, "interval", opts.Interval, "using", clamped)
		}
		opts.ProbeTimeout = clamped
	}

	return &HeartbeatMonitor{
		manager:      manager,
		interval:     opts.Interval,
		probeTimeout: opts.ProbeTimeout,
		logger:       opts.Logger,
		updates:      opts.Updates,
	}
}

// Start launches the loop. Calling Start on a running monitor does nothing.
func (h *HeartbeatMonitor) Start(ctx context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cancel != nil {
		return
	}

	lctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	h.cancel, h.done = cancel, done

	go h.loop(lctx, done)
	h.logger.Debug("heartbeat started", "interval", h.interval, "probe_timeout", h.probeTimeout)
}

// Stop cancels the loop and waits for it, in-flight probe included. Calling Stop on a stopped monitor does nothing.
func (h *HeartbeatMonitor) Stop() {
	h.mu.Lock()
	cancel, done := h.cancel, h.done
	h.cancel, h.done = nil, nil
	h.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	h.logger.Debug("heartbeat stopped", "ticks", h.ticks.Load())
}

// Running reports whether the loop is active.
func (h *HeartbeatMonitor) Running() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cancel != nil
}

// Ticks returns the number of completed ticks.
func (h *HeartbeatMonitor) Ticks() int64 {
	return h.ticks.Load()
}

// ProbeTimeout returns the effective probe timeout after clamping.
func (h *HeartbeatMonitor) ProbeTimeout() time.Duration {
	return h.probeTimeout
}

func (h *HeartbeatMonitor) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.tick(ctx)
		}
	}
}

func (h *HeartbeatMonitor) tick(ctx context.Context) {
	n := h.ticks.Load() + 1

	switch h.manager.State() {
	case services.Live:
		outcome := h.manager.Probe(ctx, h.probeTimeout)
		if outcome == services.ProbeFailed {
			h.logger.Warn("heartbeat probe failed", "tick", n)
		}
		sendUpdate(h.updates, probeUpdate(n, outcome, h.manager.State()))
	default:
		err := h.manager.Acquire(ctx)
		if err != nil {
			h.logger.Debug("side channel reconnect failed", "tick", n, "error", err)
		}
		sendUpdate(h.updates, reconnectUpdate(n, err, h.manager.State()))
	}

	h.ticks.Add(1)
}
