package memory

import (
	"context"
	"testing"
	"time"

	ewaybill "ewaybill-cloud/internal/ewaybill/domain"
)

func seedRecord(t *testing.T, registry *Registry, documentNo string, status ewaybill.Status) time.Time {
	t.Helper()
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	record := &ewaybill.Record{
		DocumentNo:     documentNo,
		Status:         status,
		SupplierGSTIN:  "27AAPFU0939F1ZV",
		RecipientGSTIN: "29AAGCB7383J1Z4",
		ValidFrom:      now,
		ValidUntil:     now.Add(24 * time.Hour),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := registry.Create(context.Background(), record); err != nil {
		t.Fatalf("create: %v", err)
	}
	return now
}

func TestRegistry_GetUnknown(t *testing.T) {
	registry := NewRegistry()
	record, err := registry.Get(context.Background(), "missing")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if record != nil {
		t.Fatalf("expected nil for unknown document, got %+v", record)
	}
}

func TestRegistry_CreateDuplicate(t *testing.T) {
	registry := NewRegistry()
	seedRecord(t, registry, "EWB-1", ewaybill.StatusActive)
	err := registry.Create(context.Background(), &ewaybill.Record{DocumentNo: "EWB-1"})
	if err == nil {
		t.Fatalf("expected duplicate create to fail")
	}
}

func TestRegistry_GetReturnsDetachedCopy(t *testing.T) {
	registry := NewRegistry()
	seedRecord(t, registry, "EWB-1", ewaybill.StatusActive)

	first, _ := registry.Get(context.Background(), "EWB-1")
	first.Status = ewaybill.StatusCancelled

	second, _ := registry.Get(context.Background(), "EWB-1")
	if second.Status != ewaybill.StatusActive {
		t.Fatalf("mutating a returned record must not affect the store")
	}
}

func TestRegistry_MarkCancelledOnlyWhenActive(t *testing.T) {
	registry := NewRegistry()
	now := seedRecord(t, registry, "EWB-1", ewaybill.StatusActive)

	cancellation := ewaybill.Cancellation{ReasonCode: "1", Remarks: "Duplicate entry", CancelledAt: now}
	applied, err := registry.MarkCancelled(context.Background(), "EWB-1", cancellation)
	if err != nil || !applied {
		t.Fatalf("expected cancel to apply, applied=%v err=%v", applied, err)
	}

	applied, err = registry.MarkCancelled(context.Background(), "EWB-1", cancellation)
	if err != nil {
		t.Fatalf("second cancel: %v", err)
	}
	if applied {
		t.Fatalf("cancel must not apply twice")
	}
}

func TestRegistry_ExtendValidityMonotonic(t *testing.T) {
	registry := NewRegistry()
	now := seedRecord(t, registry, "EWB-1", ewaybill.StatusActive)

	applied, err := registry.ExtendValidity(context.Background(), "EWB-1", now.Add(48*time.Hour), now)
	if err != nil || !applied {
		t.Fatalf("expected extension to apply, applied=%v err=%v", applied, err)
	}

	// A regression of valid_until is refused.
	applied, err = registry.ExtendValidity(context.Background(), "EWB-1", now.Add(12*time.Hour), now)
	if err != nil {
		t.Fatalf("regressive extend: %v", err)
	}
	if applied {
		t.Fatalf("valid_until must never move backwards")
	}
}

func TestRegistry_ApplyPartBKeepsVehicleWhenOmitted(t *testing.T) {
	registry := NewRegistry()
	now := seedRecord(t, registry, "EWB-1", ewaybill.StatusActive)

	applied, err := registry.ApplyPartB(context.Background(), "EWB-1", ewaybill.PartBUpdate{
		VehicleNumber: "MH12AB1234",
		TransMode:     ewaybill.ModeRoad,
		DistanceKm:    120,
		UpdatedAt:     now,
	})
	if err != nil || !applied {
		t.Fatalf("first partb: applied=%v err=%v", applied, err)
	}

	applied, err = registry.ApplyPartB(context.Background(), "EWB-1", ewaybill.PartBUpdate{
		TransMode:  ewaybill.ModeRail,
		DistanceKm: 400,
		TransDocNo: "RR-1",
		UpdatedAt:  now.Add(time.Hour),
	})
	if err != nil || !applied {
		t.Fatalf("second partb: applied=%v err=%v", applied, err)
	}

	record, _ := registry.Get(context.Background(), "EWB-1")
	if record.VehicleNumber != "MH12AB1234" {
		t.Fatalf("omitted vehicle must keep previous value, got %q", record.VehicleNumber)
	}
	if record.TransMode != ewaybill.ModeRail {
		t.Fatalf("mode must reflect latest update, got %s", record.TransMode)
	}
}

func TestRegistry_MarkExpiredBefore(t *testing.T) {
	registry := NewRegistry()
	now := seedRecord(t, registry, "EWB-1", ewaybill.StatusActive)

	count, err := registry.MarkExpiredBefore(context.Background(), now.Add(48*time.Hour))
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one expired record, got %d", count)
	}
	record, _ := registry.Get(context.Background(), "EWB-1")
	if record.Status != ewaybill.StatusExpired {
		t.Fatalf("expected EXPIRED, got %s", record.Status)
	}
}

func TestRegistry_HistoryAppendOrder(t *testing.T) {
	registry := NewRegistry()
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	for i, kind := range []string{ewaybill.HistoryGenerated, ewaybill.HistoryPartBUpdate, ewaybill.HistoryCancellation} {
		entry := ewaybill.NewHistoryEntry("EWB-1", kind, nil, now.Add(time.Duration(i)*time.Minute))
		if err := registry.AppendHistory(context.Background(), entry); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	entries, err := registry.ListHistory(context.Background(), "EWB-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].Seq <= entries[i-1].Seq {
			t.Fatalf("seq must be strictly increasing")
		}
	}
	if entries[0].Kind != ewaybill.HistoryGenerated || entries[2].Kind != ewaybill.HistoryCancellation {
		t.Fatalf("entries out of append order: %+v", entries)
	}
}

func TestRegistry_Consolidated(t *testing.T) {
	registry := NewRegistry()
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	bill := &ewaybill.ConsolidatedBill{
		ConsolidatedNo: "CEWB-1",
		Members:        []string{"EWB-A", "EWB-B"},
		CreatedAt:      now,
	}
	if err := registry.CreateConsolidated(context.Background(), bill); err != nil {
		t.Fatalf("create consolidated: %v", err)
	}
	if err := registry.CreateConsolidated(context.Background(), bill); err == nil {
		t.Fatalf("duplicate consolidated number must fail")
	}

	fetched, err := registry.GetConsolidated(context.Background(), "CEWB-1")
	if err != nil {
		t.Fatalf("get consolidated: %v", err)
	}
	if len(fetched.Members) != 2 {
		t.Fatalf("expected two members, got %d", len(fetched.Members))
	}

	missing, err := registry.GetConsolidated(context.Background(), "CEWB-404")
	if err != nil || missing != nil {
		t.Fatalf("unknown consolidated must be (nil, nil), got %+v err=%v", missing, err)
	}
}
