package ewaybill

import (
	"context"
	"time"
)

// Registry is the document registry contract. Mutating methods are
// conditional: they apply only while the stored record still satisfies the
// operation's state precondition, and report whether the write happened, so
// no two operations can both observe ACTIVE and both apply a terminal
// transition.
type Registry interface {
	// Get returns the record or (nil, nil) when the document is unknown.
	Get(ctx context.Context, documentNo string) (*Record, error)

	// Create inserts a new record. The document number must be unused.
	Create(ctx context.Context, record *Record) error

	// MarkCancelled transitions ACTIVE -> CANCELLED. Returns false when the
	// record is no longer ACTIVE.
	MarkCancelled(ctx context.Context, documentNo string, cancellation Cancellation) (bool, error)

	// ReplaceTransporter swaps the assigned transporter while ACTIVE. The
	// old transporter loses access the instant the write lands.
	ReplaceTransporter(ctx context.Context, documentNo, transporterID, transporterName string, at time.Time) (bool, error)

	// ExtendValidity moves validUntil forward while ACTIVE. Returns false
	// when the record is not ACTIVE or newUntil does not exceed the stored
	// validUntil, keeping validUntil monotonically non-decreasing.
	ExtendValidity(ctx context.Context, documentNo string, newUntil, at time.Time) (bool, error)

	// ApplyPartB applies a Part-B update while ACTIVE. Repeatable; the
	// registry keeps the update as the record's latest Part-B entry.
	ApplyPartB(ctx context.Context, documentNo string, update PartBUpdate) (bool, error)

	// MarkExpiredBefore persists EXPIRED on ACTIVE records whose validity
	// lapsed before the cutoff. Returns the number of records swept.
	MarkExpiredBefore(ctx context.Context, cutoff time.Time) (int, error)

	// AppendHistory appends to the document's append-only history log.
	AppendHistory(ctx context.Context, entry HistoryEntry) error

	// ListHistory returns the full history log in append order.
	ListHistory(ctx context.Context, documentNo string) ([]HistoryEntry, error)
}

// ConsolidatedRegistry persists consolidated bills.
type ConsolidatedRegistry interface {
	CreateConsolidated(ctx context.Context, bill *ConsolidatedBill) error
	GetConsolidated(ctx context.Context, consolidatedNo string) (*ConsolidatedBill, error)
}
