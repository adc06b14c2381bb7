package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/time7/tagsync/pkg/identity"
)

// RegistrationEvent announces that a product was registered for a tag so
// other clients can refresh their registered-identifier set.
type RegistrationEvent struct {
	EventID      string    `json:"event_id"`
	TID          string    `json:"tid"`
	EPC          string    `json:"epc,omitempty"`
	RegisteredAt time.Time `json:"registered_at"`
}

// NewRegistrationEvent stamps a fresh event for tid.
func NewRegistrationEvent(tid, epc string, at time.Time) RegistrationEvent {
	return RegistrationEvent{
		EventID:      uuid.NewString(),
		TID:          identity.Normalize(tid),
		EPC:          epc,
		RegisteredAt: at.UTC(),
	}
}

// ParseRegistrationEvent unmarshals and validates an event payload.
func ParseRegistrationEvent(raw []byte) (RegistrationEvent, error) {
	var ev RegistrationEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return RegistrationEvent{}, fmt.Errorf("unmarshal registration: %w", err)
	}
	if ev.TID == "" {
		return RegistrationEvent{}, errors.New("missing tid field")
	}
	ev.TID = identity.Normalize(ev.TID)
	return ev, nil
}
