package integration_test

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	ewaybill "ewaybill-cloud/internal/ewaybill/domain"
	ewaybillrepo "ewaybill-cloud/internal/ewaybill/infrastructure/postgres"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func TestEWayBillLifecycle_Postgres(t *testing.T) {
	dsn := os.Getenv("PG_DSN")
	if dsn == "" {
		t.Skip("PG_DSN not set")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	if err := applyEWayBillMigrations(db); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}

	ctx := context.Background()
	_, _ = db.ExecContext(ctx, "DELETE FROM ewaybill_history")
	_, _ = db.ExecContext(ctx, "DELETE FROM consolidated_bill_members")
	_, _ = db.ExecContext(ctx, "DELETE FROM consolidated_bills")
	_, _ = db.ExecContext(ctx, "DELETE FROM ewaybills")

	registry := ewaybillrepo.NewRegistry(db)
	now := time.Now().UTC().Truncate(time.Microsecond)

	record := &ewaybill.Record{
		DocumentNo:     "141012345678",
		Status:         ewaybill.StatusActive,
		SupplierGSTIN:  "27AAPFU0939F1ZV",
		RecipientGSTIN: "29AAGCB7383J1Z4",
		FromPINCode:    "400001",
		ToPINCode:      "560001",
		HSNCode:        "8471",
		DocumentValue:  125000,
		DistanceKm:     150,
		TransMode:      ewaybill.ModeRoad,
		ValidFrom:      now,
		ValidUntil:     now.Add(48 * time.Hour),
		CreatedAt:      now,
		UpdatedAt:      now,
		ProviderRef:    "ACK-1",
	}
	if err := registry.Create(ctx, record); err != nil {
		t.Fatalf("create: %v", err)
	}

	fetched, err := registry.Get(ctx, "141012345678")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if fetched == nil || fetched.Status != ewaybill.StatusActive {
		t.Fatalf("unexpected record: %+v", fetched)
	}

	// Part-B update keeps the record ACTIVE and sets the vehicle.
	applied, err := registry.ApplyPartB(ctx, "141012345678", ewaybill.PartBUpdate{
		VehicleNumber: "MH12AB1234",
		TransMode:     ewaybill.ModeRoad,
		DistanceKm:    150,
		UpdatedAt:     now.Add(time.Minute),
	})
	if err != nil || !applied {
		t.Fatalf("partb: applied=%v err=%v", applied, err)
	}

	// Extension only moves valid_until forward.
	applied, err = registry.ExtendValidity(ctx, "141012345678", now.Add(60*time.Hour), now.Add(2*time.Minute))
	if err != nil || !applied {
		t.Fatalf("extend: applied=%v err=%v", applied, err)
	}
	applied, err = registry.ExtendValidity(ctx, "141012345678", now.Add(12*time.Hour), now.Add(3*time.Minute))
	if err != nil {
		t.Fatalf("regressive extend: %v", err)
	}
	if applied {
		t.Fatalf("valid_until must never move backwards")
	}

	// Cancel applies exactly once.
	cancellation := ewaybill.Cancellation{ReasonCode: "1", Remarks: "Duplicate entry created by mistake", CancelledAt: now.Add(4 * time.Minute)}
	applied, err = registry.MarkCancelled(ctx, "141012345678", cancellation)
	if err != nil || !applied {
		t.Fatalf("cancel: applied=%v err=%v", applied, err)
	}
	applied, err = registry.MarkCancelled(ctx, "141012345678", cancellation)
	if err != nil {
		t.Fatalf("second cancel: %v", err)
	}
	if applied {
		t.Fatalf("cancel must not apply twice")
	}

	fetched, err = registry.Get(ctx, "141012345678")
	if err != nil {
		t.Fatalf("get after cancel: %v", err)
	}
	if fetched.Status != ewaybill.StatusCancelled || fetched.Cancellation == nil {
		t.Fatalf("expected CANCELLED with details, got %+v", fetched)
	}
	if fetched.LastPartB == nil || fetched.LastPartB.VehicleNumber != "MH12AB1234" {
		t.Fatalf("partb snapshot lost: %+v", fetched.LastPartB)
	}

	// History reads back in append order.
	for i, kind := range []string{ewaybill.HistoryGenerated, ewaybill.HistoryPartBUpdate, ewaybill.HistoryCancellation} {
		entry := ewaybill.NewHistoryEntry("141012345678", kind, map[string]any{"step": i}, now.Add(time.Duration(i)*time.Minute))
		if err := registry.AppendHistory(ctx, entry); err != nil {
			t.Fatalf("append history: %v", err)
		}
	}
	entries, err := registry.ListHistory(ctx, "141012345678")
	if err != nil {
		t.Fatalf("list history: %v", err)
	}
	if len(entries) != 3 || entries[0].Kind != ewaybill.HistoryGenerated || entries[2].Kind != ewaybill.HistoryCancellation {
		t.Fatalf("history out of order: %+v", entries)
	}

	// Consolidated round trip.
	consolidatedRepo := ewaybillrepo.NewConsolidatedRepository(db)
	bill := &ewaybill.ConsolidatedBill{
		ConsolidatedNo: "CEWB-9001",
		Members:        []string{"141012345678", "141012345679"},
		ProviderRef:    "ACK-2",
		CreatedAt:      now,
	}
	if err := consolidatedRepo.CreateConsolidated(ctx, bill); err != nil {
		t.Fatalf("create consolidated: %v", err)
	}
	stored, err := consolidatedRepo.GetConsolidated(ctx, "CEWB-9001")
	if err != nil {
		t.Fatalf("get consolidated: %v", err)
	}
	if stored == nil || len(stored.Members) != 2 || stored.Members[0] != "141012345678" {
		t.Fatalf("unexpected consolidated bill: %+v", stored)
	}
}

func TestMarkExpiredBefore_Postgres(t *testing.T) {
	dsn := os.Getenv("PG_DSN")
	if dsn == "" {
		t.Skip("PG_DSN not set")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	if err := applyEWayBillMigrations(db); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}

	ctx := context.Background()
	_, _ = db.ExecContext(ctx, "DELETE FROM ewaybills")

	registry := ewaybillrepo.NewRegistry(db)
	now := time.Now().UTC().Truncate(time.Microsecond)

	stale := &ewaybill.Record{
		DocumentNo:     "141012340001",
		Status:         ewaybill.StatusActive,
		SupplierGSTIN:  "27AAPFU0939F1ZV",
		RecipientGSTIN: "29AAGCB7383J1Z4",
		FromPINCode:    "400001",
		ToPINCode:      "560001",
		HSNCode:        "8471",
		DocumentValue:  50000,
		DistanceKm:     80,
		TransMode:      ewaybill.ModeRoad,
		ValidFrom:      now.Add(-48 * time.Hour),
		ValidUntil:     now.Add(-24 * time.Hour),
		CreatedAt:      now.Add(-48 * time.Hour),
		UpdatedAt:      now.Add(-48 * time.Hour),
	}
	if err := registry.Create(ctx, stale); err != nil {
		t.Fatalf("create: %v", err)
	}

	count, err := registry.MarkExpiredBefore(ctx, now)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one expired record, got %d", count)
	}
	fetched, _ := registry.Get(ctx, "141012340001")
	if fetched.Status != ewaybill.StatusExpired {
		t.Fatalf("expected EXPIRED, got %s", fetched.Status)
	}
}

func applyEWayBillMigrations(db *sql.DB) error {
	root := projectRoot()
	files := []string{
		filepath.Join(root, "migrations", "001_ewaybills.sql"),
		filepath.Join(root, "migrations", "002_audit.sql"),
	}
	for _, path := range files {
		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if _, err := db.Exec(string(content)); err != nil {
			return err
		}
	}
	return nil
}

func projectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return "."
	}
	return filepath.Clean(filepath.Join(dir, "..", "..", ".."))
}
