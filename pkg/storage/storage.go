package storage

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a lookup matches no row. It is a valid
// terminal state rather than a failure.
var ErrNotFound = errors.New("not found")

// Field names a column a product can be looked up by.
type Field string

const (
	FieldTID Field = "tid"
	FieldEPC Field = "epc"
)

// ProductRecord is the registry entry for one tag.
type ProductRecord struct {
	TID         string
	EPC         string
	Description string
	Origin      string
	ProducedOn  time.Time
}

// PhotoReference points at a stored photo of a product.
type PhotoReference struct {
	PhotoURL  string
	CreatedAt time.Time
}

// ScanLogEntry is the gateway's last recorded sighting of a tag.
type ScanLogEntry struct {
	TID    string
	SeenAt time.Time
	Auth   bool
	Info   *string
}

// Error wraps a failed registry read or write.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("registry %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Registry defines the read/write contract of the product registry.
type Registry interface {
	// RegisteredIDs returns the distinct, upper-cased tag identifiers known to the registry.
	RegisteredIDs(ctx context.Context) ([]string, error)
	// FindProduct is an exact match on field. Returns ErrNotFound when nothing matches.
	FindProduct(ctx context.Context, field Field, value string) (ProductRecord, error)
	// LatestPhoto returns the most recent photo for identifier or ErrNotFound.
	LatestPhoto(ctx context.Context, identifier string) (PhotoReference, error)
	UpsertProduct(ctx context.Context, p ProductRecord) error
	// UpdateProduct edits an existing product. Returns ErrNotFound when no row has p.TID.
	UpdateProduct(ctx context.Context, p ProductRecord) error
	AddPhoto(ctx context.Context, identifier string, photo PhotoReference) error
	RecentScans(ctx context.Context, limit int) ([]ScanLogEntry, error)
}
