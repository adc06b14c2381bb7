package events

import (
	"testing"
	"time"
)

func TestParseRegistrationEvent(t *testing.T) {
	tests := []struct {
		name        string
		raw         string
		wantTID     string
		expectError bool
	}{
		{name: "canonical", raw: `{"event_id":"a","tid":"E001","registered_at":"2025-02-13T10:00:00Z"}`, wantTID: "E001"},
		{name: "lower case tid", raw: `{"event_id":"b","tid":" e001 "}`, wantTID: "E001"},
		{name: "missing tid", raw: `{"event_id":"c"}`, expectError: true},
		{name: "not json", raw: `{nope`, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := ParseRegistrationEvent([]byte(tt.raw))
			if tt.expectError {
				if err == nil {
					t.Fatalf("expected error, got %+v", ev)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseRegistrationEvent error: %v", err)
			}
			if ev.TID != tt.wantTID {
				t.Fatalf("got tid %q want %q", ev.TID, tt.wantTID)
			}
		})
	}
}

func TestNewRegistrationEvent(t *testing.T) {
	at := time.Date(2025, 2, 13, 23, 0, 0, 0, time.FixedZone("NZDT", 13*3600))
	ev := NewRegistrationEvent("e001", "3000AA", at)

	if ev.EventID == "" {
		t.Fatalf("expected event id")
	}
	if ev.TID != "E001" {
		t.Fatalf("got tid %q", ev.TID)
	}
	if ev.RegisteredAt.Location() != time.UTC || !ev.RegisteredAt.Equal(at) {
		t.Fatalf("unexpected registered_at %s", ev.RegisteredAt)
	}
	if other := NewRegistrationEvent("e001", "", at); other.EventID == ev.EventID {
		t.Fatalf("event ids must be unique")
	}
}
