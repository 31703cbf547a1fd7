package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/qsync/internal/models"
	"github.com/desertthunder/qsync/internal/repositories"
	"github.com/desertthunder/qsync/internal/services"
	"github.com/desertthunder/qsync/internal/shared"
)

// QueueServiceOpts wires a [QueueService]. Store and Manager are required.
type QueueServiceOpts struct {
	Store             repositories.QueueStore
	Manager           *services.ConnectionManager
	Notifier          Notifier // Defaults to a [NotificationDispatcher] over Manager
	ChannelPrefix     string
	HeartbeatInterval time.Duration
	ProbeTimeout      time.Duration
	Logger            *log.Logger
	Updates           chan<- HeartbeatUpdate
}

// QueueService is the entry point for the request-facing layer.
//
// Reads and writes go straight to the store. A committed write is then announced on the
// side channel as a separate step whose failure is logged and never reported to the caller.
type QueueService struct {
	store     repositories.QueueStore
	manager   *services.ConnectionManager
	notifier  Notifier
	heartbeat *HeartbeatMonitor
	logger    *log.Logger

	mu      sync.Mutex
	started bool
	stopped bool
}

// NewQueueService creates a [QueueService]. Call [QueueService.Setup] before first use.
func NewQueueService(opts QueueServiceOpts) (*QueueService, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("%w: queue store", shared.ErrMissingArgument)
	}
	if opts.Manager == nil {
		return nil, fmt.Errorf("%w: connection manager", shared.ErrMissingArgument)
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(io.Discard)
	}
	if opts.Notifier == nil {
		opts.Notifier = NewNotificationDispatcher(opts.Manager, opts.ChannelPrefix,
			shared.WithLogger(opts.Logger, "component", "dispatcher"))
	}

	heartbeat := NewHeartbeatMonitor(opts.Manager, HeartbeatOpts{
		Interval:     opts.HeartbeatInterval,
		ProbeTimeout: opts.ProbeTimeout,
		Logger:       shared.WithLogger(opts.Logger, "component", "heartbeat"),
		Updates:      opts.Updates,
	})

	return &QueueService{
		store:     opts.Store,
		manager:   opts.Manager,
		notifier:  opts.Notifier,
		heartbeat: heartbeat,
		logger:    opts.Logger,
	}, nil
}

// NewQueueServiceFromConfig wires a [QueueService] over store using a Redis side channel from cfg.
func NewQueueServiceFromConfig(store repositories.QueueStore, cfg *shared.Config, logger *log.Logger, updates chan<- HeartbeatUpdate) (*QueueService, error) {
	if cfg == nil {
		return nil, shared.ErrMissingConfig
	}
	if logger == nil {
		logger = shared.NewLogger(io.Discard)
	}

	sc := cfg.SideChannel
	manager := services.NewConnectionManager(services.ConnectionManagerOpts{
		Dialer:            services.RedisDialer(services.RedisOptsFromConfig(sc)),
		NotifyTimeout:     sc.NotifyTimeout,
		DialTimeout:       sc.DialTimeout,
		ReconnectInterval: sc.ReconnectInterval,
		Logger:            shared.WithLogger(logger, "component", "sidechannel"),
	})

	return NewQueueService(QueueServiceOpts{
		Store:             store,
		Manager:           manager,
		ChannelPrefix:     sc.ChannelPrefix,
		HeartbeatInterval: sc.HeartbeatInterval,
		ProbeTimeout:      sc.ProbeTimeout,
		Logger:            logger,
		Updates:           updates,
	})
}

// GetQueue returns the stored queue for did. The boolean is false when nothing has been stored yet;
// callers supply their own default (see [models.EmptyQueueState]).
func (s *QueueService) GetQueue(ctx context.Context, did string) (models.QueueRecord, bool, error) {
	if err := models.ValidateDID(did); err != nil {
		return models.QueueRecord{}, false, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}
	return s.store.Get(ctx, did)
}

// UpdateQueue writes state for did, gated on expected when it is non-nil.
//
// A stale expected revision fails with [shared.ErrRevisionConflict]; the caller must re-read before retrying.
// Once the store accepts the write the result is success, whatever happens to the notification.
func (s *QueueService) UpdateQueue(ctx context.Context, did string, state json.RawMessage, expected *int64) (models.QueueRecord, error) {
	rec, err := s.store.Update(ctx, did, state, expected)
	if err != nil {
		return models.QueueRecord{}, err
	}

	s.notify(ctx, rec)
	return rec, nil
}

func (s *QueueService) notify(ctx context.Context, rec models.QueueRecord) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("queue change notification panicked", "did", rec.DID, "revision", rec.Revision, "panic", r)
		}
	}()

	if outcome := s.notifier.Dispatch(ctx, rec); outcome == services.NotifyDropped {
		s.logger.Warn("queue change not delivered", "did", rec.DID, "revision", rec.Revision)
	}
}

// Setup connects the side channel and starts the heartbeat.
//
// A failed connection is logged, not returned; the heartbeat keeps retrying.
// Calling Setup again does nothing. Setup after [QueueService.Shutdown] fails.
func (s *QueueService) Setup(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return fmt.Errorf("%w: queue service has been shut down", shared.ErrServiceUnavailable)
	}
	if s.started {
		return nil
	}

	if err := s.manager.Acquire(ctx); err != nil {
		s.logger.Warn("side channel unavailable, notifications disabled until it recovers", "error", err)
	}

	s.heartbeat.Start(context.WithoutCancel(ctx))
	s.started = true
	return nil
}

// Shutdown stops the heartbeat, waiting for it, then releases the side channel.
// It is safe to call more than once. The store stays open; see [QueueService.Close].
func (s *QueueService) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return nil
	}

	stopped := make(chan struct{})
	go func() {
		s.heartbeat.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-ctx.Done():
		return fmt.Errorf("heartbeat did not stop: %w", ctx.Err())
	}

	s.stopped = true
	if err := s.manager.Close(); err != nil {
		s.logger.Debug("closing side channel", "error", err)
	}
	s.logger.Debug("queue service shut down")
	return nil
}

// Close shuts the service down and closes the store.
func (s *QueueService) Close() error {
	if err := s.Shutdown(context.Background()); err != nil {
		return err
	}
	return s.store.Close()
}

// ChannelState reports the side channel handle state.
func (s *QueueService) ChannelState() services.ConnState {
	return s.manager.State()
}

// ProbeChannel pings the side channel once with the heartbeat's probe timeout.
func (s *QueueService) ProbeChannel(ctx context.Context) services.ProbeOutcome {
	return s.manager.Probe(ctx, s.heartbeat.ProbeTimeout())
}

// Heartbeat exposes the monitor for supervision.
func (s *QueueService) Heartbeat() *HeartbeatMonitor {
	return s.heartbeat
}
