package ui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/qsync/internal/models"
)

var _ list.Item = changeItem{}

// changeItem wraps [models.QueueChange] to implement [list.Item].
type changeItem struct {
	change     models.QueueChange
	receivedAt time.Time
}

func (i changeItem) FilterValue() string { return i.change.EventID }
func (i changeItem) Title() string       { return fmt.Sprintf("revision %d", i.change.Revision) }
func (i changeItem) Description() string {
	desc := fmt.Sprintf("received %s", i.receivedAt.Format(time.TimeOnly))
	if !i.change.UpdatedAt.IsZero() {
		desc = fmt.Sprintf("%s • written %s", desc, i.change.UpdatedAt.Local().Format(time.TimeOnly))
	}
	return desc
}
