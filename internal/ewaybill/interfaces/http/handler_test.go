package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	ewaybillapp "ewaybill-cloud/internal/ewaybill/application"
	ewaybill "ewaybill-cloud/internal/ewaybill/domain"
	"ewaybill-cloud/internal/ewaybill/infrastructure/memory"
)

type staticClock struct{ now time.Time }

func (c staticClock) Now() time.Time { return c.now }

type fakeGateway struct {
	fail       bool
	documentNo string
}

func (g *fakeGateway) Submit(ctx context.Context, op ewaybillapp.Operation, documentNo string, payload any) (ewaybillapp.ProviderConfirmation, error) {
	_ = ctx
	_ = op
	_ = documentNo
	_ = payload
	if g.fail {
		return ewaybillapp.ProviderConfirmation{}, errors.New("provider unavailable")
	}
	return ewaybillapp.ProviderConfirmation{Reference: "ACK-1", DocumentNo: g.documentNo}, nil
}

func newTestHandlers(t *testing.T, gateway *fakeGateway, now time.Time) (*BillHandler, *ConsolidatedHandler, *memory.Registry) {
	t.Helper()
	registry := memory.NewRegistry()
	rules := ewaybillapp.Rules{
		CancellationWindowHours:  24,
		ExtensionCeilingHours:    72,
		MinRemarksLength:         10,
		MinExtensionReasonLength: 10,
		MinLocationLength:        3,
		ExpirySweepInterval:      10 * time.Minute,
	}
	service, err := ewaybillapp.NewService(registry, registry, gateway, staticClock{now: now}, rules)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	billHandler, err := NewBillHandler(service, nil)
	if err != nil {
		t.Fatalf("bill handler: %v", err)
	}
	consolidatedHandler, err := NewConsolidatedHandler(service, nil)
	if err != nil {
		t.Fatalf("consolidated handler: %v", err)
	}
	return billHandler, consolidatedHandler, registry
}

func seedBill(t *testing.T, registry *memory.Registry, documentNo string, createdAt time.Time) {
	t.Helper()
	record := &ewaybill.Record{
		DocumentNo:     documentNo,
		Status:         ewaybill.StatusActive,
		SupplierGSTIN:  "27AAPFU0939F1ZV",
		RecipientGSTIN: "29AAGCB7383J1Z4",
		FromPINCode:    "400001",
		ToPINCode:      "560001",
		HSNCode:        "8471",
		DocumentValue:  125000,
		DistanceKm:     150,
		TransMode:      ewaybill.ModeRoad,
		ValidFrom:      createdAt,
		ValidUntil:     createdAt.Add(48 * time.Hour),
		CreatedAt:      createdAt,
		UpdatedAt:      createdAt,
	}
	if err := registry.Create(context.Background(), record); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func TestBillHandler_Generate(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	handler, _, _ := newTestHandlers(t, &fakeGateway{documentNo: "141012345678"}, now)

	body := `{
		"supplier_gstin": "27AAPFU0939F1ZV",
		"recipient_gstin": "29AAGCB7383J1Z4",
		"from_pincode": "400001",
		"to_pincode": "560001",
		"hsn_code": "8471",
		"document_value": 125000,
		"distance_km": 150,
		"trans_mode": "1"
	}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/ewaybills", strings.NewReader(body))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var summary ewaybillapp.RecordSummary
	if err := json.Unmarshal(resp.Body.Bytes(), &summary); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if summary.DocumentNo != "141012345678" || summary.Status != ewaybill.StatusActive {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}

func TestBillHandler_CancelWindowExpired(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	handler, _, registry := newTestHandlers(t, &fakeGateway{}, now)
	seedBill(t, registry, "EWB-1", now.Add(-25*time.Hour))

	body := `{"reason_code": "1", "remarks": "Duplicate entry created by mistake"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/ewaybills/EWB-1/cancel", strings.NewReader(body))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.Code)
	}
	var payload map[string]string
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload["reason"] != string(ewaybill.ReasonWindowExpired) {
		t.Fatalf("expected WINDOW_EXPIRED, got %s", payload["reason"])
	}
}

func TestBillHandler_CancelGoodsMovementConflict(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	handler, _, registry := newTestHandlers(t, &fakeGateway{}, now)
	seedBill(t, registry, "EWB-1", now)
	applied, err := registry.ApplyPartB(context.Background(), "EWB-1", ewaybill.PartBUpdate{
		VehicleNumber: "MH12AB1234",
		TransMode:     ewaybill.ModeRoad,
		DistanceKm:    150,
		UpdatedAt:     now,
	})
	if err != nil || !applied {
		t.Fatalf("seed partb: applied=%v err=%v", applied, err)
	}

	body := `{"reason_code": "1", "remarks": "Duplicate entry created by mistake"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/ewaybills/EWB-1/cancel", strings.NewReader(body))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.Code)
	}
}

func TestBillHandler_NotFound(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	handler, _, _ := newTestHandlers(t, &fakeGateway{}, now)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/ewaybills/EWB-MISSING", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func TestBillHandler_RemoteFailureBadGateway(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	handler, _, registry := newTestHandlers(t, &fakeGateway{fail: true}, now)
	seedBill(t, registry, "EWB-1", now)

	body := `{"reason_code": "1", "remarks": "Duplicate entry created by mistake"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/ewaybills/EWB-1/cancel", strings.NewReader(body))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", resp.Code)
	}
	record, _ := registry.Get(context.Background(), "EWB-1")
	if record.Status != ewaybill.StatusActive {
		t.Fatalf("record must stay ACTIVE after a remote failure")
	}
}

func TestBillHandler_HistoryAndExport(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	handler, _, registry := newTestHandlers(t, &fakeGateway{}, now)
	seedBill(t, registry, "EWB-1", now)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/ewaybills/EWB-1/history", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("history: expected 200, got %d", resp.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/ewaybills/EWB-1/export.pdf", nil)
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("export: expected 200, got %d", resp.Code)
	}
	if got := resp.Header().Get("Content-Type"); got != "application/pdf" {
		t.Fatalf("expected pdf content type, got %s", got)
	}
	if resp.Body.Len() == 0 {
		t.Fatalf("expected pdf bytes")
	}
}

func TestConsolidatedHandler(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	_, handler, registry := newTestHandlers(t, &fakeGateway{documentNo: "CEWB-9001"}, now)
	seedBill(t, registry, "EWB-A", now)
	seedBill(t, registry, "EWB-B", now)

	body := `{"document_nos": ["EWB-A", "EWB-B"]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/consolidated", strings.NewReader(body))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("consolidate: expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/consolidated/CEWB-9001", nil)
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("get consolidated: expected 200, got %d", resp.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/consolidated/CEWB-404", nil)
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown consolidated, got %d", resp.Code)
	}
}
