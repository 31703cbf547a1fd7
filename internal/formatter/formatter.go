// package formatter renders queue records for the CLI (plain text, JSON, CSV, Markdown)
package formatter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/qsync/internal/models"
	"github.com/desertthunder/qsync/internal/shared"
)

const (
	FormatText     = "text"
	FormatJSON     = "json"
	FormatCSV      = "csv"
	FormatMarkdown = "markdown"
)

// Formats lists the accepted format names.
var Formats = []string{FormatText, FormatJSON, FormatCSV, FormatMarkdown}

// RecordView is the printable form of a read. Persisted is false when State is a synthesized default.
type RecordView struct {
	DID       string          `json:"did"`
	Revision  int64           `json:"revision"`
	UpdatedAt *time.Time      `json:"updated_at,omitempty"`
	Persisted bool            `json:"persisted"`
	State     json.RawMessage `json:"state"`
}

// NewRecordView builds a [RecordView] from a tri-state read, substituting [models.EmptyQueueState] when nothing is stored.
func NewRecordView(did string, rec models.QueueRecord, found bool) RecordView {
	if !found {
		return RecordView{DID: did, State: models.EmptyQueueState()}
	}
	updated := rec.UpdatedAt
	return RecordView{DID: did, Revision: rec.Revision, UpdatedAt: &updated, Persisted: true, State: rec.State}
}

// trackID renders a track id element: JSON strings are unquoted, anything else is shown verbatim.
func trackID(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// ExportToCSV lists the queue's tracks with columns: Position, TrackID, Current
func ExportToCSV(v RecordView) ([]byte, error) {
	snap, err := models.DecodeSnapshot(v.State)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write([]string{"Position", "TrackID", "Current"}); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for i, id := range snap.TrackIDs {
		record := []string{strconv.Itoa(i), trackID(id), strconv.FormatBool(i == snap.CurrentIndex)}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportToMarkdown renders the queue as a Markdown document.
func ExportToMarkdown(v RecordView) ([]byte, error) {
	snap, err := models.DecodeSnapshot(v.State)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.WriteString(fmt.Sprintf("# Queue for %s\n\n", v.DID))

	if v.Persisted {
		buf.WriteString(fmt.Sprintf("**Revision**: %d\n", v.Revision))
		buf.WriteString(fmt.Sprintf("**Updated**: %s\n", v.UpdatedAt.UTC().Format(time.RFC3339)))
	} else {
		buf.WriteString("**Revision**: none (default queue, not persisted)\n")
	}
	buf.WriteString(fmt.Sprintf("**Shuffle**: %t\n", snap.Shuffle))
	buf.WriteString(fmt.Sprintf("**Auto-advance**: %t\n\n", snap.AutoAdvance))

	buf.WriteString("## Tracks\n\n")
	if len(snap.TrackIDs) == 0 {
		buf.WriteString("_empty_\n")
	}
	for i, id := range snap.TrackIDs {
		marker := ""
		if i == snap.CurrentIndex {
			marker = " ◀ now playing"
		}
		buf.WriteString(fmt.Sprintf("%d. %s%s\n", i+1, trackID(id), marker))
	}

	return buf.Bytes(), nil
}

// ExportToText renders the queue as plain text.
func ExportToText(v RecordView) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("Identity: %s\n", v.DID))
	if v.Persisted {
		buf.WriteString(fmt.Sprintf("Revision: %d\n", v.Revision))
		buf.WriteString(fmt.Sprintf("Updated: %s\n", v.UpdatedAt.UTC().Format(time.RFC3339)))
	} else {
		buf.WriteString("Revision: none (default queue, not persisted)\n")
	}

	snap, err := models.DecodeSnapshot(v.State)
	if err != nil {
		buf.WriteString(fmt.Sprintf("State: %s\n", v.State))
		return buf.Bytes(), nil
	}

	buf.WriteString(fmt.Sprintf("Tracks: %d\n", len(snap.TrackIDs)))
	buf.WriteString(fmt.Sprintf("Current: %d\n", snap.CurrentIndex))
	buf.WriteString(fmt.Sprintf("Shuffle: %t\n", snap.Shuffle))
	buf.WriteString(fmt.Sprintf("Auto-advance: %t\n", snap.AutoAdvance))
	return buf.Bytes(), nil
}

// ExportToJSON renders the view as indented JSON.
func ExportToJSON(v RecordView) ([]byte, error) {
	data, err := shared.MarshalJSON(v, true)
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// Render dispatches on format.
func Render(v RecordView, format string) ([]byte, error) {
	switch strings.ToLower(format) {
	case FormatText, "":
		return ExportToText(v)
	case FormatJSON:
		return ExportToJSON(v)
	case FormatCSV:
		return ExportToCSV(v)
	case FormatMarkdown, "md":
		return ExportToMarkdown(v)
	default:
		return nil, fmt.Errorf("%w: unknown format %q (want one of %s)", shared.ErrInvalidArgument, format, strings.Join(Formats, ", "))
	}
}

// Extension returns the file extension for format.
func Extension(format string) string {
	switch strings.ToLower(format) {
	case FormatJSON:
		return ".json"
	case FormatCSV:
		return ".csv"
	case FormatMarkdown, "md":
		return ".md"
	default:
		return ".txt"
	}
}

// WriteExport renders v and writes it to path.
//
// Defaults to {did}_queue{ext} with ':' and '/' replaced by '_'.
func WriteExport(v RecordView, format, path string) (string, error) {
	if path == "" {
		base := strings.NewReplacer(":", "_", "/", "_").Replace(v.DID)
		path = base + "_queue" + Extension(format)
	}

	data, err := Render(v, format)
	if err != nil {
		return "", err
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write export file: %w", err)
	}
	return path, nil
}

// FormatChange renders a change event as one line.
func FormatChange(ev models.QueueChange) string {
	line := fmt.Sprintf("%s revision %d", ev.DID, ev.Revision)
	if !ev.UpdatedAt.IsZero() {
		line += " at " + ev.UpdatedAt.UTC().Format(time.RFC3339)
	}
	if ev.EventID != "" {
		line += " (" + ev.EventID + ")"
	}
	return line
}
