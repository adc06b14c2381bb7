package gateway

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ScanRecord is one tag currently visible to the reader, as reported by the
// gateway for a single poll.
type ScanRecord struct {
	TIDHex    string    `json:"tidHex"`
	EPCHex    string    `json:"epcHex"`
	Auth      bool      `json:"auth"`
	FirstSeen time.Time `json:"first_seen"`
	Info      *string   `json:"info,omitempty"`
}

// ReaderStatus reports whether the physical reader is attached to the gateway.
type ReaderStatus struct {
	Connected bool `json:"connected"`
}

// timestamps without a zone are emitted by the gateway in UTC
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

// UnmarshalJSON accepts first_seen with or without a zone offset.
func (r *ScanRecord) UnmarshalJSON(data []byte) error {
	type alias ScanRecord
	var raw struct {
		alias
		FirstSeen *string `json:"first_seen"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = ScanRecord(raw.alias)
	if raw.FirstSeen != nil && *raw.FirstSeen != "" {
		ts, err := parseTimestamp(*raw.FirstSeen)
		if err != nil {
			return fmt.Errorf("decode first_seen: %w", err)
		}
		r.FirstSeen = ts
	}
	return nil
}
