// Package memory is an in-memory document registry, used by tests and by
// deployments without a database. Semantics mirror the postgres registry:
// conditional mutations check the stored status under the same lock that
// performs the write.
package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	ewaybill "ewaybill-cloud/internal/ewaybill/domain"
)

// Registry is an in-memory ewaybill.Registry and ConsolidatedRegistry.
type Registry struct {
	mu           sync.RWMutex
	records      map[string]*ewaybill.Record
	history      map[string][]ewaybill.HistoryEntry
	consolidated map[string]*ewaybill.ConsolidatedBill
	nextSeq      int64
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		records:      make(map[string]*ewaybill.Record),
		history:      make(map[string][]ewaybill.HistoryEntry),
		consolidated: make(map[string]*ewaybill.ConsolidatedBill),
	}
}

// Get returns a detached copy of the record, or (nil, nil) when unknown.
func (r *Registry) Get(ctx context.Context, documentNo string) (*ewaybill.Record, error) {
	_ = ctx
	r.mu.RLock()
	record := r.records[documentNo]
	r.mu.RUnlock()
	return record.Clone(), nil
}

// Create inserts a new record.
func (r *Registry) Create(ctx context.Context, record *ewaybill.Record) error {
	_ = ctx
	if record == nil {
		return errors.New("memory registry: nil record")
	}
	if record.DocumentNo == "" {
		return errors.New("memory registry: empty document number")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.records[record.DocumentNo]; exists {
		return errors.New("memory registry: document number already exists")
	}
	r.records[record.DocumentNo] = record.Clone()
	return nil
}

// MarkCancelled transitions ACTIVE -> CANCELLED.
func (r *Registry) MarkCancelled(ctx context.Context, documentNo string, cancellation ewaybill.Cancellation) (bool, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.records[documentNo]
	if !ok || record.Status != ewaybill.StatusActive {
		return false, nil
	}
	record.Status = ewaybill.StatusCancelled
	record.Cancellation = &cancellation
	record.UpdatedAt = cancellation.CancelledAt
	return true, nil
}

// ReplaceTransporter swaps the transporter while ACTIVE.
func (r *Registry) ReplaceTransporter(ctx context.Context, documentNo, transporterID, transporterName string, at time.Time) (bool, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.records[documentNo]
	if !ok || record.Status != ewaybill.StatusActive {
		return false, nil
	}
	record.TransporterID = transporterID
	record.TransporterName = transporterName
	record.UpdatedAt = at
	return true, nil
}

// ExtendValidity moves validUntil forward while ACTIVE; refuses regressions
// so validUntil stays monotonically non-decreasing.
func (r *Registry) ExtendValidity(ctx context.Context, documentNo string, newUntil, at time.Time) (bool, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.records[documentNo]
	if !ok || record.Status != ewaybill.StatusActive {
		return false, nil
	}
	if !newUntil.After(record.ValidUntil) {
		return false, nil
	}
	record.ValidUntil = newUntil
	record.UpdatedAt = at
	return true, nil
}

// ApplyPartB applies a Part-B update while ACTIVE.
func (r *Registry) ApplyPartB(ctx context.Context, documentNo string, update ewaybill.PartBUpdate) (bool, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.records[documentNo]
	if !ok || record.Status != ewaybill.StatusActive {
		return false, nil
	}
	if update.VehicleNumber != "" {
		record.VehicleNumber = update.VehicleNumber
	}
	record.TransMode = update.TransMode
	record.DistanceKm = update.DistanceKm
	if update.TransporterID != "" {
		record.TransporterID = update.TransporterID
	}
	entry := update
	record.LastPartB = &entry
	record.UpdatedAt = update.UpdatedAt
	return true, nil
}

// MarkExpiredBefore sweeps lapsed ACTIVE records into EXPIRED.
func (r *Registry) MarkExpiredBefore(ctx context.Context, cutoff time.Time) (int, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, record := range r.records {
		if record.Status == ewaybill.StatusActive && !record.ValidUntil.IsZero() && cutoff.After(record.ValidUntil) {
			record.Status = ewaybill.StatusExpired
			record.UpdatedAt = cutoff
			count++
		}
	}
	return count, nil
}

// AppendHistory appends to the document's history log.
func (r *Registry) AppendHistory(ctx context.Context, entry ewaybill.HistoryEntry) error {
	_ = ctx
	if entry.DocumentNo == "" {
		return errors.New("memory registry: empty document number")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextSeq++
	entry.Seq = r.nextSeq
	r.history[entry.DocumentNo] = append(r.history[entry.DocumentNo], entry)
	return nil
}

// ListHistory returns a copy of the history log in append order.
func (r *Registry) ListHistory(ctx context.Context, documentNo string) ([]ewaybill.HistoryEntry, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]ewaybill.HistoryEntry(nil), r.history[documentNo]...), nil
}

// CreateConsolidated inserts a consolidated bill.
func (r *Registry) CreateConsolidated(ctx context.Context, bill *ewaybill.ConsolidatedBill) error {
	_ = ctx
	if bill == nil {
		return errors.New("memory registry: nil consolidated bill")
	}
	if bill.ConsolidatedNo == "" {
		return errors.New("memory registry: empty consolidated number")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.consolidated[bill.ConsolidatedNo]; exists {
		return errors.New("memory registry: consolidated number already exists")
	}
	clone := *bill
	clone.Members = append([]string(nil), bill.Members...)
	r.consolidated[bill.ConsolidatedNo] = &clone
	return nil
}

// GetConsolidated returns a consolidated bill, or (nil, nil) when unknown.
func (r *Registry) GetConsolidated(ctx context.Context, consolidatedNo string) (*ewaybill.ConsolidatedBill, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	bill, ok := r.consolidated[consolidatedNo]
	if !ok {
		return nil, nil
	}
	clone := *bill
	clone.Members = append([]string(nil), bill.Members...)
	return &clone, nil
}
