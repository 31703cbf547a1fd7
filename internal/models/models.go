// package models defines the data model for the queue synchronization engine
package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const emptyQueueState = `{"track_ids":[],"current_index":0,"shuffle":false,"original_order":[],"auto_advance":true}`

// EmptyQueueState returns the caller-visible default for an identity with no stored queue.
// It is never persisted by the store. Each call returns a fresh copy.
func EmptyQueueState() json.RawMessage {
	return json.RawMessage(emptyQueueState)
}

// QueueRecord is the stored playback queue of a single identity.
type QueueRecord struct {
	DID       string          `json:"did"`        // Identity key (e.g. a decentralized identifier)
	State     json.RawMessage `json:"state"`      // Opaque state document
	Revision  int64           `json:"revision"`   // Optimistic concurrency stamp, starts at 1
	UpdatedAt time.Time       `json:"updated_at"` // Set on every accepted write
}

// Validate checks that the record can be written: a non-empty identity and a JSON state document.
func (r QueueRecord) Validate() error {
	if err := ValidateDID(r.DID); err != nil {
		return err
	}
	return ValidateState(r.State)
}

// ValidateDID rejects empty or whitespace-only identity keys.
func ValidateDID(did string) error {
	if strings.TrimSpace(did) == "" {
		return fmt.Errorf("identity is required")
	}
	return nil
}

// ValidateState rejects empty or malformed state documents.
func ValidateState(state json.RawMessage) error {
	if len(state) == 0 {
		return fmt.Errorf("state is required")
	}
	if !json.Valid(state) {
		return fmt.Errorf("state is not valid JSON")
	}
	return nil
}

// QueueChange is the payload published on an identity's channel after a write.
//
// State is not carried; receivers re-read the queue, so a dropped event costs freshness only.
type QueueChange struct {
	EventID   string    `json:"event_id"`
	DID       string    `json:"did"`
	Revision  int64     `json:"revision"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewQueueChange builds the change event for a freshly written record.
func NewQueueChange(eventID string, r QueueRecord) QueueChange {
	return QueueChange{EventID: eventID, DID: r.DID, Revision: r.Revision, UpdatedAt: r.UpdatedAt}
}

// QueueSnapshot is the conventional shape of a queue state document.
// Unknown fields are ignored and missing fields stay zero.
type QueueSnapshot struct {
	TrackIDs      []json.RawMessage `json:"track_ids"`
	CurrentIndex  int               `json:"current_index"`
	Shuffle       bool              `json:"shuffle"`
	OriginalOrder []json.RawMessage `json:"original_order"`
	AutoAdvance   bool              `json:"auto_advance"`
}

// DecodeSnapshot decodes state into a [QueueSnapshot] for display.
func DecodeSnapshot(state json.RawMessage) (QueueSnapshot, error) {
	var s QueueSnapshot
	if err := json.Unmarshal(state, &s); err != nil {
		return QueueSnapshot{}, fmt.Errorf("failed to decode queue state: %w", err)
	}
	return s, nil
}
