package tasks

import (
	"fmt"

	"github.com/desertthunder/qsync/internal/services"
)

// HeartbeatUpdate reports one heartbeat tick.
//
// Sent to [HeartbeatOpts.Updates] for display by the CLI layer.
type HeartbeatUpdate struct {
	Tick    int64                 // Tick number, starting at 1
	Phase   Phase                 // What the tick did
	State   services.ConnState    // Handle state after the tick
	Probe   services.ProbeOutcome // Set for [PhaseProbe]
	Err     error                 // Set when a reconnect failed
	Message string                // Human-readable message for display
}

// Heartbeat phase enumeration
type Phase int

const (
	PhaseProbe Phase = iota
	PhaseReconnect
)

func (p Phase) String() string {
	switch p {
	case PhaseProbe:
		return "probe"
	case PhaseReconnect:
		return "reconnect"
	default:
		return ""
	}
}

func probeUpdate(tick int64, outcome services.ProbeOutcome, state services.ConnState) HeartbeatUpdate {
	return HeartbeatUpdate{
		Tick:    tick,
		Phase:   PhaseProbe,
		State:   state,
		Probe:   outcome,
		Message: fmt.Sprintf("[%d] probe %s, side channel %s", tick, outcome, state),
	}
}

func reconnectUpdate(tick int64, err error, state services.ConnState) HeartbeatUpdate {
	if err != nil {
		return HeartbeatUpdate{
			Tick:    tick,
			Phase:   PhaseReconnect,
			State:   state,
			Err:     err,
			Message: fmt.Sprintf("[%d] reconnect failed: %v", tick, err),
		}
	}
	return HeartbeatUpdate{
		Tick:    tick,
		Phase:   PhaseReconnect,
		State:   state,
		Message: fmt.Sprintf("[%d] reconnected, side channel %s", tick, state),
	}
}

// sendUpdate never blocks the heartbeat on a slow reader.
func sendUpdate(ch chan<- HeartbeatUpdate, u HeartbeatUpdate) {
	if ch == nil {
		return
	}
	select {
	case ch <- u:
	default:
	}
}
