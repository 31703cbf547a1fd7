package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/qsync/internal/models"
)

// QueueReader reads the latest committed queue. The queue service implements it.
type QueueReader interface {
	GetQueue(ctx context.Context, did string) (models.QueueRecord, bool, error)
}

// WatchModel follows one identity's queue: it shows the current record and the change events
// received on the side channel, re-reading the queue whenever an event arrives.
type WatchModel struct {
	ctx     context.Context
	reader  QueueReader
	did     string
	events  <-chan models.QueueChange
	now     func() time.Time
	width   int
	height  int
	record  models.QueueRecord
	found   bool
	loaded  bool
	closed  bool
	err     error
	changes list.Model
	help    help.Model
	keys    keyMap
}

// NewWatchModel creates a [WatchModel] for did fed by events.
func NewWatchModel(ctx context.Context, reader QueueReader, did string, events <-chan models.QueueChange) *WatchModel {
	changes := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	changes.Title = "Changes"
	changes.SetShowHelp(false)
	changes.SetFilteringEnabled(false)

	return &WatchModel{
		ctx:     ctx,
		reader:  reader,
		did:     did,
		events:  events,
		now:     time.Now,
		changes: changes,
		help:    help.New(),
		keys:    newKeyMap(),
	}
}

// Init fetches the queue and starts listening for changes.
func (m *WatchModel) Init() tea.Cmd {
	return tea.Batch(m.fetchQueue(), m.waitForChange())
}

// Update handles incoming messages and updates the model state.
func (m *WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.changes.SetSize(msg.Width-4, max(msg.Height-12, 4))
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.refresh):
			return m, m.fetchQueue()
		}

	case Msg:
		switch msg.kind {
		case MsgQueueFetched:
			res := msg.data.(queueFetched)
			m.loaded = true
			m.err = res.err
			if res.err == nil {
				m.record, m.found = res.record, res.found
			}
			return m, nil

		case MsgQueueChanged:
			change := msg.data.(models.QueueChange)
			cmd := m.changes.InsertItem(0, changeItem{change: change, receivedAt: m.now()})
			return m, tea.Batch(cmd, m.fetchQueue(), m.waitForChange())

		case MsgEventsClosed:
			m.closed = true
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.changes, cmd = m.changes.Update(msg)
	return m, cmd
}

// View renders the current record above the change list.
func (m *WatchModel) View() string {
	var b strings.Builder

	b.WriteString(styles.heading.Render(fmt.Sprintf("Queue %s", m.did)))
	b.WriteString("\n")

	switch {
	case m.err != nil:
		b.WriteString(styles.failure.Render(fmt.Sprintf("Error: %v", m.err)))
	case !m.loaded:
		b.WriteString(styles.muted.Render("Loading..."))
	case !m.found:
		b.WriteString(styles.notice.Render("No queue stored yet (showing defaults, not persisted)"))
		b.WriteString("\n")
		b.WriteString(renderSnapshot(models.EmptyQueueState()))
	default:
		b.WriteString(styles.revision.Render(fmt.Sprintf("Revision %d", m.record.Revision)))
		b.WriteString(fmt.Sprintf(" • updated %s\n", m.record.UpdatedAt.Local().Format(time.DateTime)))
		b.WriteString(renderSnapshot(m.record.State))
	}

	b.WriteString("\n\n")
	b.WriteString(m.changes.View())

	if m.closed {
		b.WriteString("\n")
		b.WriteString(styles.notice.Render("Side channel closed; press r to refresh manually"))
	}

	b.WriteString("\n\n")
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

// Record returns the last successfully read record and whether it exists.
func (m *WatchModel) Record() (models.QueueRecord, bool) {
	return m.record, m.found
}

func renderSnapshot(state []byte) string {
	s, err := models.DecodeSnapshot(state)
	if err != nil {
		return styles.muted.Render(string(state))
	}
	return fmt.Sprintf("Tracks: %d • Current: %d • Shuffle: %t • Auto-advance: %t",
		len(s.TrackIDs), s.CurrentIndex, s.Shuffle, s.AutoAdvance)
}

func (m *WatchModel) fetchQueue() tea.Cmd {
	return func() tea.Msg {
		rec, found, err := m.reader.GetQueue(m.ctx, m.did)
		return queueFetchedMsg(rec, found, err)
	}
}

func (m *WatchModel) waitForChange() tea.Cmd {
	return func() tea.Msg {
		if m.events == nil {
			return eventsClosedMsg()
		}
		change, ok := <-m.events
		if !ok {
			return eventsClosedMsg()
		}
		return queueChangedMsg(change)
	}
}
