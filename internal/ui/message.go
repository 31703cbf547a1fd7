package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/qsync/internal/models"
)

// MsgKind enumerates all message types in the watcher.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgQueueFetched MsgKind = iota
	MsgQueueChanged
	MsgEventsClosed
)

type queueFetched struct {
	record models.QueueRecord
	found  bool
	err    error
}

// queueFetchedMsg is the constructor for [MsgQueueFetched]
func queueFetchedMsg(rec models.QueueRecord, found bool, err error) Msg {
	return Msg{kind: MsgQueueFetched, data: queueFetched{record: rec, found: found, err: err}}
}

// queueChangedMsg is the constructor for [MsgQueueChanged]
func queueChangedMsg(change models.QueueChange) Msg {
	return Msg{kind: MsgQueueChanged, data: change}
}

// eventsClosedMsg is the constructor for [MsgEventsClosed]
func eventsClosedMsg() Msg {
	return Msg{kind: MsgEventsClosed}
}
