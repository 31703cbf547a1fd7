// package services defines the side channel used to push queue change notifications
package services

import (
	"context"
	"strings"
)

// Conn is a single physical side-channel connection.
type Conn interface {
	// Publish sends payload to every subscriber of channel.
	Publish(ctx context.Context, channel string, payload []byte) error

	// Ping issues a trivial round-trip used as a liveness probe.
	Ping(ctx context.Context) error

	// Closed reports, without touching the network, whether the connection is known to be unusable.
	Closed() bool

	// Close releases the connection.
	Close() error
}

// Dialer opens a new [Conn]. It should honor ctx but is not required to.
type Dialer func(ctx context.Context) (Conn, error)

// ConnState is the state of the handle held by a [ConnectionManager].
type ConnState int

const (
	Absent ConnState = iota // No connection held
	Live                    // Connection held and presumed healthy
)

func (s ConnState) String() string {
	switch s {
	case Live:
		return "live"
	default:
		return "absent"
	}
}

// NotifyOutcome is the result of [ConnectionManager.SendNotify].
type NotifyOutcome int

const (
	NotifySkipped   NotifyOutcome = iota // No usable handle; nothing was sent
	NotifyDelivered                      // Publish completed
	NotifyDropped                        // Publish failed or timed out; handle discarded
)

func (o NotifyOutcome) String() string {
	switch o {
	case NotifyDelivered:
		return "delivered"
	case NotifyDropped:
		return "dropped"
	default:
		return "skipped"
	}
}

// ProbeOutcome is the result of [ConnectionManager.Probe].
type ProbeOutcome int

const (
	ProbeSkipped   ProbeOutcome = iota // No usable handle
	ProbeHealthy                       // Ping completed in time
	ProbeFailed                        // Ping failed or timed out; handle discarded
	ProbeCancelled                     // Caller gave up first; handle unchanged
)

func (o ProbeOutcome) String() string {
	switch o {
	case ProbeHealthy:
		return "healthy"
	case ProbeFailed:
		return "failed"
	case ProbeCancelled:
		return "cancelled"
	default:
		return "skipped"
	}
}

// ChannelFor derives the notification channel of an identity.
func ChannelFor(prefix, did string) string {
	prefix = strings.TrimSuffix(prefix, ":")
	if prefix == "" {
		return did
	}
	return prefix + ":" + did
}
