// Package application implements the E-Way Bill lifecycle rule engine: for
// each requested operation it evaluates the statutory preconditions against
// the current record, submits to the compliance authority once they all
// pass, and only then applies the local state transition.
package application

import (
	"context"
	"errors"
	"strings"
	"time"

	ewaybill "ewaybill-cloud/internal/ewaybill/domain"
	"ewaybill-cloud/internal/observability/metrics"
	"ewaybill-cloud/internal/timewindow"
	"ewaybill-cloud/internal/validation"
)

// Service is the lifecycle rule engine. Requests for the same document are
// serialized across the whole check-submit-write sequence; requests for
// different documents run in parallel.
type Service struct {
	registry     ewaybill.Registry
	consolidated ewaybill.ConsolidatedRegistry
	gateway      SubmissionGateway
	clock        ewaybill.Clock
	rules        Rules
	locks        *documentLocks
}

// NewService constructs the rule engine.
func NewService(registry ewaybill.Registry, consolidated ewaybill.ConsolidatedRegistry, gateway SubmissionGateway, clock ewaybill.Clock, rules Rules) (*Service, error) {
	if registry == nil {
		return nil, errors.New("ewaybill service: nil registry")
	}
	if consolidated == nil {
		return nil, errors.New("ewaybill service: nil consolidated registry")
	}
	if gateway == nil {
		return nil, errors.New("ewaybill service: nil gateway")
	}
	if clock == nil {
		return nil, errors.New("ewaybill service: nil clock")
	}
	return &Service{
		registry:     registry,
		consolidated: consolidated,
		gateway:      gateway,
		clock:        clock,
		rules:        rules,
		locks:        newDocumentLocks(),
	}, nil
}

// GenerateRequest carries the Part-A fields of a new bill.
type GenerateRequest struct {
	SupplierGSTIN   string                 `json:"supplier_gstin"`
	RecipientGSTIN  string                 `json:"recipient_gstin"`
	FromPINCode     string                 `json:"from_pincode"`
	ToPINCode       string                 `json:"to_pincode"`
	HSNCode         string                 `json:"hsn_code"`
	DocumentValue   float64                `json:"document_value"`
	DistanceKm      int                    `json:"distance_km"`
	TransMode       ewaybill.TransportMode `json:"trans_mode"`
	VehicleNumber   string                 `json:"vehicle_number,omitempty"`
	TransporterID   string                 `json:"transporter_id,omitempty"`
	TransporterName string                 `json:"transporter_name,omitempty"`
}

// CancelRequest carries a cancellation request.
type CancelRequest struct {
	DocumentNo string `json:"document_no"`
	ReasonCode string `json:"reason_code"`
	Remarks    string `json:"remarks"`
}

// ChangeTransporterRequest reassigns the transporter.
type ChangeTransporterRequest struct {
	DocumentNo      string `json:"document_no"`
	TransporterID   string `json:"transporter_id"`
	TransporterName string `json:"transporter_name,omitempty"`
}

// ExtendValidityRequest extends the validity horizon.
type ExtendValidityRequest struct {
	DocumentNo      string `json:"document_no"`
	Reason          string `json:"reason"`
	CurrentLocation string `json:"current_location"`
	NewValidUntil   string `json:"new_valid_until"`
}

// UpdatePartBRequest carries a Part-B transport-detail update.
type UpdatePartBRequest struct {
	DocumentNo      string                 `json:"document_no"`
	VehicleNumber   string                 `json:"vehicle_number,omitempty"`
	VehicleType     string                 `json:"vehicle_type,omitempty"`
	TransMode       ewaybill.TransportMode `json:"trans_mode"`
	DistanceKm      int                    `json:"distance_km"`
	TransporterID   string                 `json:"transporter_id,omitempty"`
	TransporterName string                 `json:"transporter_name,omitempty"`
	TransDocNo      string                 `json:"trans_doc_no,omitempty"`
	TransDocDate    string                 `json:"trans_doc_date,omitempty"`
}

// ConsolidateRequest groups active bills under one consolidated number.
type ConsolidateRequest struct {
	DocumentNos []string `json:"document_nos"`
}

// RecordSummary is the caller-facing view of a record.
type RecordSummary struct {
	DocumentNo      string                 `json:"document_no"`
	Status          ewaybill.Status        `json:"status"`
	SupplierGSTIN   string                 `json:"supplier_gstin"`
	RecipientGSTIN  string                 `json:"recipient_gstin"`
	VehicleNumber   string                 `json:"vehicle_number,omitempty"`
	TransporterID   string                 `json:"transporter_id,omitempty"`
	TransporterName string                 `json:"transporter_name,omitempty"`
	ValidFrom       time.Time              `json:"valid_from"`
	ValidUntil      time.Time              `json:"valid_until"`
	CreatedAt       time.Time              `json:"created_at"`
	UpdatedAt       time.Time              `json:"updated_at"`
	// CancelWindowHoursLeft is the display value, floored at zero. The raw
	// signed window value is what gates cancellation eligibility.
	CancelWindowHoursLeft float64                `json:"cancel_window_hours_left"`
	LastPartB             *ewaybill.PartBUpdate  `json:"last_partb,omitempty"`
	Cancellation          *ewaybill.Cancellation `json:"cancellation,omitempty"`
	ProviderRef           string                 `json:"provider_ref,omitempty"`
}

// Generate validates Part-A fields, submits the bill for generation and
// registers the provider-confirmed record as ACTIVE.
func (s *Service) Generate(ctx context.Context, req GenerateRequest) (*RecordSummary, error) {
	start := time.Now()
	summary, err := s.generate(ctx, req)
	observeOperation(OpGenerate, start, err)
	return summary, err
}

func (s *Service) generate(ctx context.Context, req GenerateRequest) (*RecordSummary, error) {
	if ok, reason := validation.ValidateGSTIN(req.SupplierGSTIN); !ok {
		return nil, ewaybill.Reject(ewaybill.ReasonInvalidFormat, "supplier %s", reason)
	}
	if ok, reason := validation.ValidateGSTIN(req.RecipientGSTIN); !ok {
		return nil, ewaybill.Reject(ewaybill.ReasonInvalidFormat, "recipient %s", reason)
	}
	if ok, reason := validation.ValidatePINCode(req.FromPINCode); !ok {
		return nil, ewaybill.Reject(ewaybill.ReasonInvalidFormat, "dispatch %s", reason)
	}
	if ok, reason := validation.ValidatePINCode(req.ToPINCode); !ok {
		return nil, ewaybill.Reject(ewaybill.ReasonInvalidFormat, "delivery %s", reason)
	}
	if ok, reason := validation.ValidateHSNCode(req.HSNCode); !ok {
		return nil, ewaybill.Reject(ewaybill.ReasonInvalidFormat, "%s", reason)
	}
	if req.DocumentValue <= 0 {
		return nil, ewaybill.Reject(ewaybill.ReasonInvalidFormat, "document value must be positive")
	}
	if req.DistanceKm < 0 {
		return nil, ewaybill.Reject(ewaybill.ReasonInvalidFormat, "distance must be non-negative")
	}
	if !ewaybill.ValidTransportMode(req.TransMode) {
		return nil, ewaybill.Reject(ewaybill.ReasonInvalidFormat, "transport mode %q is not recognized", req.TransMode)
	}
	vehicleNumber := ""
	if req.VehicleNumber != "" {
		if ok, reason := validation.ValidateVehicleNumber(req.VehicleNumber); !ok {
			return nil, ewaybill.Reject(ewaybill.ReasonInvalidFormat, "%s", reason)
		}
		vehicleNumber = validation.NormalizeVehicleNumber(req.VehicleNumber)
	}
	if req.TransporterID != "" {
		if ok, reason := validation.ValidateGSTIN(req.TransporterID); !ok {
			return nil, ewaybill.Reject(ewaybill.ReasonInvalidFormat, "transporter %s", reason)
		}
	}

	conf, err := s.gateway.Submit(ctx, OpGenerate, "", req)
	if err != nil {
		return nil, ewaybill.RejectSubmission(err)
	}
	if conf.DocumentNo == "" {
		return nil, ewaybill.RejectSubmission(errors.New("provider returned no document number"))
	}

	now := s.clock.Now()
	validUntil := conf.ValidUntil
	if validUntil.IsZero() {
		validUntil = ewaybill.ValidityForDistance(req.DistanceKm, now)
	}
	record := &ewaybill.Record{
		DocumentNo:      conf.DocumentNo,
		Status:          ewaybill.StatusActive,
		SupplierGSTIN:   req.SupplierGSTIN,
		RecipientGSTIN:  req.RecipientGSTIN,
		FromPINCode:     req.FromPINCode,
		ToPINCode:       req.ToPINCode,
		HSNCode:         req.HSNCode,
		DocumentValue:   req.DocumentValue,
		DistanceKm:      req.DistanceKm,
		TransMode:       req.TransMode,
		VehicleNumber:   vehicleNumber,
		TransporterID:   req.TransporterID,
		TransporterName: req.TransporterName,
		ValidFrom:       now,
		ValidUntil:      validUntil,
		CreatedAt:       now,
		UpdatedAt:       now,
		ProviderRef:     conf.Reference,
	}
	if err := s.registry.Create(ctx, record); err != nil {
		return nil, err
	}
	s.appendHistory(ctx, record.DocumentNo, ewaybill.HistoryGenerated, map[string]any{
		"provider_ref": conf.Reference,
		"valid_until":  validUntil,
	}, now)
	return s.summarize(record, now), nil
}

// Cancel voids a bill inside the cancellation window, before goods movement
// has started. The transition is terminal.
func (s *Service) Cancel(ctx context.Context, req CancelRequest) (*RecordSummary, error) {
	start := time.Now()
	summary, err := s.cancel(ctx, req)
	observeOperation(OpCancel, start, err)
	return summary, err
}

func (s *Service) cancel(ctx context.Context, req CancelRequest) (*RecordSummary, error) {
	unlock := s.locks.lock(req.DocumentNo)
	defer unlock()

	record, err := s.load(ctx, req.DocumentNo)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	if rejection := requireActive(record, now); rejection != nil {
		return nil, rejection
	}
	elapsed := timewindow.HoursElapsed(record.CreatedAt, now)
	if elapsed < 0 {
		return nil, ewaybill.Reject(ewaybill.ReasonIneligibleState, "e-way bill %s has a generation time in the future", req.DocumentNo)
	}
	if elapsed > s.rules.CancellationWindowHours {
		return nil, ewaybill.Reject(ewaybill.ReasonWindowExpired, "the %.0f-hour cancellation period from generation has expired", s.rules.CancellationWindowHours)
	}
	if record.MovementStarted() {
		return nil, ewaybill.Reject(ewaybill.ReasonGoodsMovementStarted, "goods movement has started for vehicle %s; the bill can no longer be cancelled", record.VehicleNumber)
	}
	if strings.TrimSpace(req.ReasonCode) == "" {
		return nil, ewaybill.Reject(ewaybill.ReasonMissingRequiredInput, "cancellation reason code is required")
	}
	if len(strings.TrimSpace(req.Remarks)) < s.rules.MinRemarksLength {
		return nil, ewaybill.Reject(ewaybill.ReasonMissingRequiredInput, "cancellation remarks must be at least %d characters", s.rules.MinRemarksLength)
	}

	conf, err := s.gateway.Submit(ctx, OpCancel, req.DocumentNo, req)
	if err != nil {
		return nil, ewaybill.RejectSubmission(err)
	}

	cancellation := ewaybill.Cancellation{
		ReasonCode:  req.ReasonCode,
		Remarks:     strings.TrimSpace(req.Remarks),
		CancelledAt: now,
	}
	applied, err := s.registry.MarkCancelled(ctx, req.DocumentNo, cancellation)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, ewaybill.Reject(ewaybill.ReasonIneligibleState, "e-way bill %s is no longer active", req.DocumentNo)
	}
	s.appendHistory(ctx, req.DocumentNo, ewaybill.HistoryCancellation, map[string]any{
		"reason_code":  req.ReasonCode,
		"remarks":      cancellation.Remarks,
		"provider_ref": conf.Reference,
	}, now)

	record.Status = ewaybill.StatusCancelled
	record.Cancellation = &cancellation
	record.UpdatedAt = now
	return s.summarize(record, now), nil
}

// ChangeTransporter reassigns the bill to a new transporter. The previous
// transporter loses access the moment the write lands.
func (s *Service) ChangeTransporter(ctx context.Context, req ChangeTransporterRequest) (*RecordSummary, error) {
	start := time.Now()
	summary, err := s.changeTransporter(ctx, req)
	observeOperation(OpChangeTransporter, start, err)
	return summary, err
}

func (s *Service) changeTransporter(ctx context.Context, req ChangeTransporterRequest) (*RecordSummary, error) {
	unlock := s.locks.lock(req.DocumentNo)
	defer unlock()

	record, err := s.load(ctx, req.DocumentNo)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	if rejection := requireActive(record, now); rejection != nil {
		return nil, rejection
	}
	if ok, reason := validation.ValidateGSTIN(req.TransporterID); !ok {
		return nil, ewaybill.Reject(ewaybill.ReasonInvalidFormat, "transporter %s", reason)
	}
	if record.TransporterID != "" && record.TransporterID == req.TransporterID {
		return nil, ewaybill.Reject(ewaybill.ReasonIneligibleState, "transporter %s is already assigned to e-way bill %s", req.TransporterID, req.DocumentNo)
	}

	conf, err := s.gateway.Submit(ctx, OpChangeTransporter, req.DocumentNo, req)
	if err != nil {
		return nil, ewaybill.RejectSubmission(err)
	}

	applied, err := s.registry.ReplaceTransporter(ctx, req.DocumentNo, req.TransporterID, req.TransporterName, now)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, ewaybill.Reject(ewaybill.ReasonIneligibleState, "e-way bill %s is no longer active", req.DocumentNo)
	}
	s.appendHistory(ctx, req.DocumentNo, ewaybill.HistoryTransporterChange, map[string]any{
		"old_transporter_id": record.TransporterID,
		"new_transporter_id": req.TransporterID,
		"provider_ref":       conf.Reference,
	}, now)

	record.TransporterID = req.TransporterID
	record.TransporterName = req.TransporterName
	record.UpdatedAt = now
	return s.summarize(record, now), nil
}

// ExtendValidity moves validUntil forward, bounded by the extension ceiling
// anchored at the request time.
func (s *Service) ExtendValidity(ctx context.Context, req ExtendValidityRequest) (*RecordSummary, error) {
	start := time.Now()
	summary, err := s.extendValidity(ctx, req)
	observeOperation(OpExtendValidity, start, err)
	return summary, err
}

func (s *Service) extendValidity(ctx context.Context, req ExtendValidityRequest) (*RecordSummary, error) {
	unlock := s.locks.lock(req.DocumentNo)
	defer unlock()

	record, err := s.load(ctx, req.DocumentNo)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	if rejection := requireActive(record, now); rejection != nil {
		return nil, rejection
	}
	if len(strings.TrimSpace(req.Reason)) < s.rules.MinExtensionReasonLength {
		return nil, ewaybill.Reject(ewaybill.ReasonMissingRequiredInput, "extension reason must be at least %d characters", s.rules.MinExtensionReasonLength)
	}
	if len(strings.TrimSpace(req.CurrentLocation)) < s.rules.MinLocationLength {
		return nil, ewaybill.Reject(ewaybill.ReasonMissingRequiredInput, "current location must be at least %d characters", s.rules.MinLocationLength)
	}
	newUntil, err := timewindow.ParseFlexibleDate(req.NewValidUntil)
	if err != nil {
		return nil, ewaybill.Reject(ewaybill.ReasonInvalidFormat, "new validity date %q is not parseable", req.NewValidUntil)
	}
	if !newUntil.After(now) {
		return nil, ewaybill.Reject(ewaybill.ReasonWindowExpired, "new validity must be after the current time")
	}
	if !newUntil.After(record.ValidUntil) {
		return nil, ewaybill.Reject(ewaybill.ReasonIneligibleState, "new validity must be later than the current valid-until %s", record.ValidUntil.Format(time.RFC3339))
	}
	// The extension ceiling is anchored at the request time, not at the
	// current validity or the creation time.
	ceiling := now.Add(time.Duration(s.rules.ExtensionCeilingHours * float64(time.Hour)))
	if newUntil.After(ceiling) {
		return nil, ewaybill.Reject(ewaybill.ReasonWindowExpired, "validity can be extended at most %.0f hours from now", s.rules.ExtensionCeilingHours)
	}

	conf, err := s.gateway.Submit(ctx, OpExtendValidity, req.DocumentNo, req)
	if err != nil {
		return nil, ewaybill.RejectSubmission(err)
	}

	applied, err := s.registry.ExtendValidity(ctx, req.DocumentNo, newUntil, now)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, ewaybill.Reject(ewaybill.ReasonIneligibleState, "e-way bill %s is no longer active", req.DocumentNo)
	}
	s.appendHistory(ctx, req.DocumentNo, ewaybill.HistoryValidityExtension, map[string]any{
		"reason":           strings.TrimSpace(req.Reason),
		"current_location": strings.TrimSpace(req.CurrentLocation),
		"old_valid_until":  record.ValidUntil,
		"new_valid_until":  newUntil,
		"provider_ref":     conf.Reference,
	}, now)

	record.ValidUntil = newUntil
	record.UpdatedAt = now
	return s.summarize(record, now), nil
}

// UpdatePartB applies a transport-detail update. The operation is
// repeatable; every application appends to the update history and the
// record's convenience fields reflect the latest entry.
func (s *Service) UpdatePartB(ctx context.Context, req UpdatePartBRequest) (*RecordSummary, error) {
	start := time.Now()
	summary, err := s.updatePartB(ctx, req)
	observeOperation(OpUpdatePartB, start, err)
	return summary, err
}

func (s *Service) updatePartB(ctx context.Context, req UpdatePartBRequest) (*RecordSummary, error) {
	unlock := s.locks.lock(req.DocumentNo)
	defer unlock()

	record, err := s.load(ctx, req.DocumentNo)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	if rejection := requireActive(record, now); rejection != nil {
		return nil, rejection
	}
	if req.DistanceKm < 0 {
		return nil, ewaybill.Reject(ewaybill.ReasonInvalidFormat, "distance must be non-negative")
	}
	if !ewaybill.ValidTransportMode(req.TransMode) {
		return nil, ewaybill.Reject(ewaybill.ReasonInvalidFormat, "transport mode %q is not recognized", req.TransMode)
	}

	vehicleNumber := ""
	if req.VehicleNumber != "" {
		if ok, reason := validation.ValidateVehicleNumber(req.VehicleNumber); !ok {
			return nil, ewaybill.Reject(ewaybill.ReasonInvalidFormat, "%s", reason)
		}
		vehicleNumber = validation.NormalizeVehicleNumber(req.VehicleNumber)
	}
	var transDocDate time.Time
	if req.TransDocDate != "" {
		transDocDate, err = timewindow.ParseFlexibleDate(req.TransDocDate)
		if err != nil {
			return nil, ewaybill.Reject(ewaybill.ReasonInvalidFormat, "transport document date %q is not parseable", req.TransDocDate)
		}
	}
	// Vehicle number or transport document reference; the two are not
	// mutually exclusive, but at least one must be supplied.
	hasTransDoc := req.TransDocNo != "" && !transDocDate.IsZero()
	if vehicleNumber == "" && !hasTransDoc {
		return nil, ewaybill.Reject(ewaybill.ReasonMissingRequiredInput, "either a vehicle number or a transport document number and date is required")
	}
	if req.TransporterID != "" {
		if ok, reason := validation.ValidateGSTIN(req.TransporterID); !ok {
			return nil, ewaybill.Reject(ewaybill.ReasonInvalidFormat, "transporter %s", reason)
		}
	}

	conf, err := s.gateway.Submit(ctx, OpUpdatePartB, req.DocumentNo, req)
	if err != nil {
		return nil, ewaybill.RejectSubmission(err)
	}

	update := ewaybill.PartBUpdate{
		VehicleNumber: vehicleNumber,
		VehicleType:   req.VehicleType,
		TransMode:     req.TransMode,
		DistanceKm:    req.DistanceKm,
		TransDocNo:    req.TransDocNo,
		TransDocDate:  transDocDate,
		TransporterID: req.TransporterID,
		UpdatedAt:     now,
	}
	applied, err := s.registry.ApplyPartB(ctx, req.DocumentNo, update)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, ewaybill.Reject(ewaybill.ReasonIneligibleState, "e-way bill %s is no longer active", req.DocumentNo)
	}
	s.appendHistory(ctx, req.DocumentNo, ewaybill.HistoryPartBUpdate, map[string]any{
		"update":       update,
		"provider_ref": conf.Reference,
	}, now)

	if vehicleNumber != "" {
		record.VehicleNumber = vehicleNumber
	}
	record.TransMode = req.TransMode
	record.DistanceKm = req.DistanceKm
	if req.TransporterID != "" {
		record.TransporterID = req.TransporterID
		record.TransporterName = req.TransporterName
	}
	record.LastPartB = &update
	record.UpdatedAt = now
	return s.summarize(record, now), nil
}

// Consolidate produces a consolidated bill over two or more active members.
// Members' own status and validity are untouched.
func (s *Service) Consolidate(ctx context.Context, req ConsolidateRequest) (*ewaybill.ConsolidatedBill, error) {
	start := time.Now()
	bill, err := s.consolidate(ctx, req)
	observeOperation(OpConsolidate, start, err)
	return bill, err
}

func (s *Service) consolidate(ctx context.Context, req ConsolidateRequest) (*ewaybill.ConsolidatedBill, error) {
	if len(req.DocumentNos) < 2 {
		return nil, ewaybill.Reject(ewaybill.ReasonMissingRequiredInput, "at least two e-way bills are required for consolidation")
	}
	seen := make(map[string]struct{}, len(req.DocumentNos))
	now := s.clock.Now()
	for _, documentNo := range req.DocumentNos {
		if _, dup := seen[documentNo]; dup {
			return nil, ewaybill.Reject(ewaybill.ReasonMissingRequiredInput, "e-way bill %s is listed more than once", documentNo)
		}
		seen[documentNo] = struct{}{}

		record, err := s.load(ctx, documentNo)
		if err != nil {
			return nil, err
		}
		if rejection := requireActive(record, now); rejection != nil {
			return nil, rejection
		}
	}

	conf, err := s.gateway.Submit(ctx, OpConsolidate, "", req)
	if err != nil {
		return nil, ewaybill.RejectSubmission(err)
	}
	if conf.DocumentNo == "" {
		return nil, ewaybill.RejectSubmission(errors.New("provider returned no consolidated number"))
	}

	bill := &ewaybill.ConsolidatedBill{
		ConsolidatedNo: conf.DocumentNo,
		Members:        append([]string(nil), req.DocumentNos...),
		ProviderRef:    conf.Reference,
		CreatedAt:      now,
	}
	if err := s.consolidated.CreateConsolidated(ctx, bill); err != nil {
		return nil, err
	}
	for _, documentNo := range bill.Members {
		s.appendHistory(ctx, documentNo, ewaybill.HistoryConsolidatedMember, map[string]any{
			"consolidated_no": bill.ConsolidatedNo,
		}, now)
	}
	return bill, nil
}

// Get returns the record summary with its effective status.
func (s *Service) Get(ctx context.Context, documentNo string) (*RecordSummary, error) {
	record, err := s.load(ctx, documentNo)
	if err != nil {
		return nil, err
	}
	return s.summarize(record, s.clock.Now()), nil
}

// History returns the full append-only history log for a document.
func (s *Service) History(ctx context.Context, documentNo string) ([]ewaybill.HistoryEntry, error) {
	record, err := s.load(ctx, documentNo)
	if err != nil {
		return nil, err
	}
	return s.registry.ListHistory(ctx, record.DocumentNo)
}

// GetConsolidated returns a consolidated bill.
func (s *Service) GetConsolidated(ctx context.Context, consolidatedNo string) (*ewaybill.ConsolidatedBill, error) {
	bill, err := s.consolidated.GetConsolidated(ctx, consolidatedNo)
	if err != nil {
		return nil, err
	}
	if bill == nil {
		return nil, ewaybill.RejectNotFound(consolidatedNo)
	}
	return bill, nil
}

// SweepExpired converges persisted status with elapsed validity.
func (s *Service) SweepExpired(ctx context.Context) (int, error) {
	count, err := s.registry.MarkExpiredBefore(ctx, s.clock.Now())
	if err != nil {
		return count, err
	}
	metrics.AddExpired(count)
	return count, nil
}

func (s *Service) load(ctx context.Context, documentNo string) (*ewaybill.Record, error) {
	if documentNo == "" {
		return nil, ewaybill.Reject(ewaybill.ReasonMissingRequiredInput, "document number is required")
	}
	record, err := s.registry.Get(ctx, documentNo)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, ewaybill.RejectNotFound(documentNo)
	}
	return record, nil
}

func (s *Service) summarize(record *ewaybill.Record, now time.Time) *RecordSummary {
	remaining := timewindow.HoursRemaining(record.CreatedAt, s.rules.CancellationWindowHours, now)
	return &RecordSummary{
		DocumentNo:            record.DocumentNo,
		Status:                record.EffectiveStatus(now),
		SupplierGSTIN:         record.SupplierGSTIN,
		RecipientGSTIN:        record.RecipientGSTIN,
		VehicleNumber:         record.VehicleNumber,
		TransporterID:         record.TransporterID,
		TransporterName:       record.TransporterName,
		ValidFrom:             record.ValidFrom,
		ValidUntil:            record.ValidUntil,
		CreatedAt:             record.CreatedAt,
		UpdatedAt:             record.UpdatedAt,
		CancelWindowHoursLeft: timewindow.ClampForDisplay(remaining),
		LastPartB:             record.LastPartB,
		Cancellation:          record.Cancellation,
		ProviderRef:           record.ProviderRef,
	}
}

// appendHistory is best-effort relative to the already-applied mutation:
// the state transition is the source of truth and has landed by the time
// history is appended.
func (s *Service) appendHistory(ctx context.Context, documentNo, kind string, detail any, at time.Time) {
	_ = s.registry.AppendHistory(ctx, ewaybill.NewHistoryEntry(documentNo, kind, detail, at))
}

func requireActive(record *ewaybill.Record, now time.Time) *ewaybill.Rejection {
	if status := record.EffectiveStatus(now); status != ewaybill.StatusActive {
		return ewaybill.Reject(ewaybill.ReasonIneligibleState, "e-way bill %s is %s", record.DocumentNo, status)
	}
	return nil
}

func observeOperation(op Operation, start time.Time, err error) {
	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
		if rejection, ok := ewaybill.AsRejection(err); ok {
			result = metrics.ResultRejected
			metrics.IncRejection(string(op), string(rejection.Reason))
		}
	}
	metrics.ObserveOperation(string(op), result, time.Since(start))
}
