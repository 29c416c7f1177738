package liveupdate

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParseEvent(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		wantID string
		ok     bool
	}{
		{"folder id string", `{"folder_id":"42","video_count":3}`, "42", true},
		{"folder id number", `{"folder_id":42}`, "42", true},
		{"entityId", `{"entityId":"abc"}`, "abc", true},
		{"entity_id", `{"entity_id":"x1","last_synced":"2025-10-03T10:00:00Z"}`, "x1", true},
		{"folder_id wins", `{"entityId":"b","folder_id":"a"}`, "a", true},
		{"large number kept verbatim", `{"folder_id":12345678901234567890}`, "12345678901234567890", true},
		{"missing id", `{"video_count":3}`, "", false},
		{"empty id", `{"folder_id":""}`, "", false},
		{"object id", `{"folder_id":{"x":1}}`, "", false},
		{"array", `[{"folder_id":"1"}]`, "", false},
		{"null", `null`, "", false},
		{"garbage", `<html>`, "", false},
		{"two objects", `{"folder_id":"1"}{"folder_id":"2"}`, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, err := ParseEvent([]byte(tt.raw))
			if !tt.ok {
				if err == nil {
					t.Fatalf("Expected error for %s", tt.raw)
				}
				if !errors.Is(err, ErrMalformedEvent) {
					t.Errorf("Expected ErrMalformedEvent, got %v", err)
				}
				var malformed *MalformedEventError
				if !errors.As(err, &malformed) || string(malformed.Raw) != tt.raw {
					t.Errorf("Expected MalformedEventError carrying the raw payload, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseEvent() failed: %v", err)
			}
			if event.EntityID != tt.wantID {
				t.Errorf("EntityID = %q, want %q", event.EntityID, tt.wantID)
			}
		})
	}
}

func TestParseEventKeepsNumbersVerbatim(t *testing.T) {
	event, err := ParseEvent([]byte(`{"folder_id":"9","video_count":3,"size":1.50}`))
	if err != nil {
		t.Fatalf("ParseEvent() failed: %v", err)
	}
	if event.Fields["video_count"] != json.Number("3") {
		t.Errorf("video_count = %#v", event.Fields["video_count"])
	}
	if event.Fields["size"] != json.Number("1.50") {
		t.Errorf("size = %#v", event.Fields["size"])
	}
}

func TestTransportErrorUnwrap(t *testing.T) {
	err := &TransportError{URL: "http://x", StatusCode: 503, Reason: errors.New("Service Unavailable")}
	if !errors.Is(err, ErrTransport) {
		t.Error("TransportError should match ErrTransport")
	}
	if errors.Is(err, ErrMalformedEvent) {
		t.Error("TransportError must not match ErrMalformedEvent")
	}
}
