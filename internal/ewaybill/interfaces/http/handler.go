// Package http exposes the E-Way Bill lifecycle operations over REST.
// Rejections carry their reason tag so clients can render the exact
// government rule that failed.
package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"ewaybill-cloud/internal/audit"
	"ewaybill-cloud/internal/auth"
	ewaybillapp "ewaybill-cloud/internal/ewaybill/application"
	ewaybill "ewaybill-cloud/internal/ewaybill/domain"
	"ewaybill-cloud/internal/ewaybill/interfaces"
)

// BillHandler handles routes under /api/v1/ewaybills.
type BillHandler struct {
	service     *ewaybillapp.Service
	auditLogger audit.Logger
}

// NewBillHandler constructs a handler.
func NewBillHandler(service *ewaybillapp.Service, auditLogger audit.Logger) (*BillHandler, error) {
	if service == nil {
		return nil, errors.New("ewaybill handler: nil service")
	}
	return &BillHandler{service: service, auditLogger: auditLogger}, nil
}

// ServeHTTP routes /api/v1/ewaybills and its document subpaths.
func (h *BillHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	if path == "/api/v1/ewaybills" {
		if r.Method == http.MethodPost {
			h.handleGenerate(w, r)
			return
		}
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if strings.HasPrefix(path, "/api/v1/ewaybills/") {
		rest := strings.TrimPrefix(path, "/api/v1/ewaybills/")
		h.handleByDocument(w, r, rest)
		return
	}
	w.WriteHeader(http.StatusNotFound)
}

func (h *BillHandler) handleByDocument(w http.ResponseWriter, r *http.Request, rest string) {
	if rest == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	parts := strings.Split(rest, "/")
	documentNo := parts[0]
	if len(parts) == 1 && r.Method == http.MethodGet {
		h.handleGet(w, r, documentNo)
		return
	}
	if len(parts) == 2 {
		switch parts[1] {
		case "history":
			if r.Method == http.MethodGet {
				h.handleHistory(w, r, documentNo)
				return
			}
		case "cancel":
			if r.Method == http.MethodPost {
				h.handleCancel(w, r, documentNo)
				return
			}
		case "transporter":
			if r.Method == http.MethodPost {
				h.handleChangeTransporter(w, r, documentNo)
				return
			}
		case "extend":
			if r.Method == http.MethodPost {
				h.handleExtendValidity(w, r, documentNo)
				return
			}
		case "partb":
			if r.Method == http.MethodPost {
				h.handleUpdatePartB(w, r, documentNo)
				return
			}
		case "export.pdf":
			if r.Method == http.MethodGet {
				h.handleExport(w, r, documentNo, "pdf")
				return
			}
		case "export.xlsx":
			if r.Method == http.MethodGet {
				h.handleExport(w, r, documentNo, "xlsx")
				return
			}
		}
	}
	w.WriteHeader(http.StatusNotFound)
}

func (h *BillHandler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req ewaybillapp.GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	summary, err := h.service.Generate(r.Context(), req)
	if err != nil {
		respondRejection(w, err)
		return
	}
	writeJSON(w, summary)
	h.logAudit(r, summary.DocumentNo, "ewaybill.generate", map[string]any{
		"supplier_gstin":  req.SupplierGSTIN,
		"recipient_gstin": req.RecipientGSTIN,
		"distance_km":     req.DistanceKm,
	})
}

func (h *BillHandler) handleGet(w http.ResponseWriter, r *http.Request, documentNo string) {
	summary, err := h.service.Get(r.Context(), documentNo)
	if err != nil {
		respondRejection(w, err)
		return
	}
	writeJSON(w, summary)
}

func (h *BillHandler) handleHistory(w http.ResponseWriter, r *http.Request, documentNo string) {
	entries, err := h.service.History(r.Context(), documentNo)
	if err != nil {
		respondRejection(w, err)
		return
	}
	if entries == nil {
		entries = []ewaybill.HistoryEntry{}
	}
	writeJSON(w, entries)
}

func (h *BillHandler) handleCancel(w http.ResponseWriter, r *http.Request, documentNo string) {
	var req ewaybillapp.CancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	req.DocumentNo = documentNo
	summary, err := h.service.Cancel(r.Context(), req)
	if err != nil {
		respondRejection(w, err)
		return
	}
	writeJSON(w, summary)
	h.logAudit(r, documentNo, "ewaybill.cancel", map[string]any{
		"reason_code": req.ReasonCode,
	})
}

func (h *BillHandler) handleChangeTransporter(w http.ResponseWriter, r *http.Request, documentNo string) {
	var req ewaybillapp.ChangeTransporterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	req.DocumentNo = documentNo
	summary, err := h.service.ChangeTransporter(r.Context(), req)
	if err != nil {
		respondRejection(w, err)
		return
	}
	writeJSON(w, summary)
	h.logAudit(r, documentNo, "ewaybill.change_transporter", map[string]any{
		"transporter_id": req.TransporterID,
	})
}

func (h *BillHandler) handleExtendValidity(w http.ResponseWriter, r *http.Request, documentNo string) {
	var req ewaybillapp.ExtendValidityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	req.DocumentNo = documentNo
	summary, err := h.service.ExtendValidity(r.Context(), req)
	if err != nil {
		respondRejection(w, err)
		return
	}
	writeJSON(w, summary)
	h.logAudit(r, documentNo, "ewaybill.extend_validity", map[string]any{
		"new_valid_until": req.NewValidUntil,
	})
}

func (h *BillHandler) handleUpdatePartB(w http.ResponseWriter, r *http.Request, documentNo string) {
	var req ewaybillapp.UpdatePartBRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	req.DocumentNo = documentNo
	summary, err := h.service.UpdatePartB(r.Context(), req)
	if err != nil {
		respondRejection(w, err)
		return
	}
	writeJSON(w, summary)
	h.logAudit(r, documentNo, "ewaybill.update_partb", map[string]any{
		"vehicle_number": req.VehicleNumber,
		"trans_doc_no":   req.TransDocNo,
	})
}

func (h *BillHandler) handleExport(w http.ResponseWriter, r *http.Request, documentNo, format string) {
	summary, err := h.service.Get(r.Context(), documentNo)
	if err != nil {
		respondRejection(w, err)
		return
	}
	history, err := h.service.History(r.Context(), documentNo)
	if err != nil {
		respondRejection(w, err)
		return
	}
	data, contentType, err := interfaces.BuildEWayBillExport(summary, history, format)
	if err != nil {
		http.Error(w, "export error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
	h.logAudit(r, documentNo, "ewaybill.export", map[string]any{"format": format})
}

func (h *BillHandler) logAudit(r *http.Request, documentNo, action string, meta map[string]any) {
	if h.auditLogger == nil {
		return
	}
	gstin := auth.GstinFromContext(r.Context())
	if gstin == "" {
		return
	}
	payload, _ := json.Marshal(meta)
	_ = h.auditLogger.Log(r.Context(), audit.Entry{
		Gstin:        gstin,
		Actor:        auth.SubjectFromContext(r.Context()),
		Role:         string(auth.RoleFromContext(r.Context())),
		Action:       action,
		ResourceType: "ewaybill",
		ResourceID:   documentNo,
		Metadata:     payload,
		IP:           audit.ClientIP(r),
		UserAgent:    r.UserAgent(),
	})
}

// ConsolidatedHandler handles routes under /api/v1/consolidated.
type ConsolidatedHandler struct {
	service     *ewaybillapp.Service
	auditLogger audit.Logger
}

// NewConsolidatedHandler constructs a handler.
func NewConsolidatedHandler(service *ewaybillapp.Service, auditLogger audit.Logger) (*ConsolidatedHandler, error) {
	if service == nil {
		return nil, errors.New("consolidated handler: nil service")
	}
	return &ConsolidatedHandler{service: service, auditLogger: auditLogger}, nil
}

// ServeHTTP routes POST /api/v1/consolidated and GET /api/v1/consolidated/{no}.
func (h *ConsolidatedHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	if path == "/api/v1/consolidated" {
		if r.Method == http.MethodPost {
			h.handleConsolidate(w, r)
			return
		}
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if strings.HasPrefix(path, "/api/v1/consolidated/") {
		consolidatedNo := strings.TrimPrefix(path, "/api/v1/consolidated/")
		if consolidatedNo != "" && !strings.Contains(consolidatedNo, "/") && r.Method == http.MethodGet {
			h.handleGet(w, r, consolidatedNo)
			return
		}
	}
	w.WriteHeader(http.StatusNotFound)
}

func (h *ConsolidatedHandler) handleConsolidate(w http.ResponseWriter, r *http.Request) {
	var req ewaybillapp.ConsolidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	bill, err := h.service.Consolidate(r.Context(), req)
	if err != nil {
		respondRejection(w, err)
		return
	}
	writeJSON(w, bill)
	h.logAudit(r, bill.ConsolidatedNo, "ewaybill.consolidate", map[string]any{
		"members": bill.Members,
	})
}

func (h *ConsolidatedHandler) handleGet(w http.ResponseWriter, r *http.Request, consolidatedNo string) {
	bill, err := h.service.GetConsolidated(r.Context(), consolidatedNo)
	if err != nil {
		respondRejection(w, err)
		return
	}
	writeJSON(w, bill)
}

func (h *ConsolidatedHandler) logAudit(r *http.Request, consolidatedNo, action string, meta map[string]any) {
	if h.auditLogger == nil {
		return
	}
	gstin := auth.GstinFromContext(r.Context())
	if gstin == "" {
		return
	}
	payload, _ := json.Marshal(meta)
	_ = h.auditLogger.Log(r.Context(), audit.Entry{
		Gstin:        gstin,
		Actor:        auth.SubjectFromContext(r.Context()),
		Role:         string(auth.RoleFromContext(r.Context())),
		Action:       action,
		ResourceType: "consolidated",
		ResourceID:   consolidatedNo,
		Metadata:     payload,
		IP:           audit.ClientIP(r),
		UserAgent:    r.UserAgent(),
	})
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}

// respondRejection maps a rejection to its HTTP status and renders the
// reason-tagged body.
func respondRejection(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	rejection, ok := ewaybill.AsRejection(err)
	if !ok {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	status := http.StatusBadRequest
	switch rejection.Reason {
	case ewaybill.ReasonInvalidFormat, ewaybill.ReasonMissingRequiredInput:
		status = http.StatusBadRequest
	case ewaybill.ReasonIneligibleState, ewaybill.ReasonGoodsMovementStarted:
		status = http.StatusConflict
	case ewaybill.ReasonWindowExpired:
		status = http.StatusUnprocessableEntity
	case ewaybill.ReasonRemoteSubmissionFailed:
		status = http.StatusBadGateway
	}
	if errors.Is(err, ewaybill.ErrNotFound) {
		status = http.StatusNotFound
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"reason":  string(rejection.Reason),
		"message": rejection.Message,
	})
}
