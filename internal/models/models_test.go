package models

import (
	"encoding/json"
	"testing"
	"time"
)

func TestQueueRecordValidate(t *testing.T) {
	tc := []struct {
		name    string
		record  QueueRecord
		wantErr bool
	}{
		{name: "valid", record: QueueRecord{DID: "did:plc:abc", State: json.RawMessage(`{"track_ids":[1]}`)}},
		{name: "empty did", record: QueueRecord{DID: "", State: json.RawMessage(`{}`)}, wantErr: true},
		{name: "blank did", record: QueueRecord{DID: "  ", State: json.RawMessage(`{}`)}, wantErr: true},
		{name: "missing state", record: QueueRecord{DID: "did:plc:abc"}, wantErr: true},
		{name: "malformed state", record: QueueRecord{DID: "did:plc:abc", State: json.RawMessage(`{"track_ids":`)}, wantErr: true},
		{name: "non-object state passes through", record: QueueRecord{DID: "did:plc:abc", State: json.RawMessage(`[1,2,3]`)}},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.record.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewQueueChange(t *testing.T) {
	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	rec := QueueRecord{DID: "did:plc:u1", State: json.RawMessage(`{}`), Revision: 7, UpdatedAt: now}

	change := NewQueueChange("evt-1", rec)
	if change.EventID != "evt-1" || change.DID != "did:plc:u1" || change.Revision != 7 || !change.UpdatedAt.Equal(now) {
		t.Errorf("NewQueueChange() = %+v", change)
	}

	data, err := json.Marshal(change)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := fields["state"]; ok {
		t.Error("change payload should not carry queue state")
	}
}

func TestDecodeSnapshot(t *testing.T) {
	t.Run("conventional fields", func(t *testing.T) {
		s, err := DecodeSnapshot(json.RawMessage(`{"track_ids":[1,"b",3],"current_index":2,"shuffle":true,"auto_advance":true,"extra":1}`))
		if err != nil {
			t.Fatalf("DecodeSnapshot() error = %v", err)
		}
		if len(s.TrackIDs) != 3 || s.CurrentIndex != 2 || !s.Shuffle || !s.AutoAdvance {
			t.Errorf("DecodeSnapshot() = %+v", s)
		}
	})

	t.Run("empty default", func(t *testing.T) {
		s, err := DecodeSnapshot(EmptyQueueState())
		if err != nil {
			t.Fatalf("DecodeSnapshot() error = %v", err)
		}
		if len(s.TrackIDs) != 0 || s.CurrentIndex != 0 {
			t.Errorf("expected empty snapshot, got %+v", s)
		}
	})

	t.Run("empty default is a fresh copy", func(t *testing.T) {
		first := EmptyQueueState()
		want := string(first)
		first[0] = '['

		if got := string(EmptyQueueState()); got != want {
			t.Errorf("expected default to survive caller mutation, got %s", got)
		}
	})

	t.Run("not an object", func(t *testing.T) {
		if _, err := DecodeSnapshot(json.RawMessage(`[1,2]`)); err == nil {
			t.Error("expected error for non-object state")
		}
	})
}
