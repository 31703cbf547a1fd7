package tasks

import (
	"context"
	"io"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/qsync/internal/models"
	"github.com/desertthunder/qsync/internal/services"
	"github.com/desertthunder/qsync/internal/shared"
)

// Sender publishes a payload on a channel. [services.ConnectionManager] is the production Sender.
type Sender interface {
	SendNotify(ctx context.Context, channel string, payload []byte) services.NotifyOutcome
}

// Notifier announces a committed write.
type Notifier interface {
	Dispatch(ctx context.Context, rec models.QueueRecord) services.NotifyOutcome
}

// NotificationDispatcher turns committed records into [models.QueueChange] events on the identity's channel.
type NotificationDispatcher struct {
	sender Sender
	prefix string
	logger *log.Logger
}

// NewNotificationDispatcher creates a [NotificationDispatcher] publishing under prefix.
func NewNotificationDispatcher(sender Sender, prefix string, logger *log.Logger) *NotificationDispatcher {
	if logger == nil {
		logger = shared.NewLogger(io.Discard)
	}
	return &NotificationDispatcher{sender: sender, prefix: prefix, logger: logger}
}

// Dispatch publishes the change event for rec.
func (d *NotificationDispatcher) Dispatch(ctx context.Context, rec models.QueueRecord) services.NotifyOutcome {
	ev := models.NewQueueChange(shared.GenerateID(), rec)
	payload, err := shared.MarshalJSON(ev, false)
	if err != nil {
		d.logger.Error("failed to encode queue change", "did", rec.DID, "error", err)
		return services.NotifyDropped
	}

	channel := services.ChannelFor(d.prefix, rec.DID)
	outcome := d.sender.SendNotify(ctx, channel, payload)
	d.logger.Debug("queue change dispatched", "channel", channel, "revision", rec.Revision, "outcome", outcome)
	return outcome
}
