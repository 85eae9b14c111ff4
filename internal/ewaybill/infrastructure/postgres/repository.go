// Package postgres persists E-Way Bill records. Conditional mutations are
// single UPDATE statements guarded by the status column, so concurrent
// operations on one document cannot both apply a terminal transition even
// across service instances.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	ewaybill "ewaybill-cloud/internal/ewaybill/domain"
)

// Registry is the postgres document registry.
type Registry struct {
	db *sql.DB
}

// NewRegistry constructs a registry.
func NewRegistry(db *sql.DB) *Registry {
	return &Registry{db: db}
}

const recordColumns = `document_no, status, supplier_gstin, recipient_gstin, from_pincode, to_pincode,
	hsn_code, document_value, distance_km, trans_mode, vehicle_number, transporter_id, transporter_name,
	valid_from, valid_until, created_at, updated_at, last_partb, cancel_reason_code, cancel_remarks,
	cancelled_at, provider_ref`

// Get fetches a record by document number; (nil, nil) when unknown.
func (r *Registry) Get(ctx context.Context, documentNo string) (*ewaybill.Record, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("ewaybill repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT `+recordColumns+`
FROM ewaybills
WHERE document_no = $1
LIMIT 1`, documentNo)
	return scanRecord(row)
}

// Create inserts a record. The document number column is the primary key,
// so a duplicate insert fails.
func (r *Registry) Create(ctx context.Context, record *ewaybill.Record) error {
	if r == nil || r.db == nil {
		return errors.New("ewaybill repo: nil db")
	}
	if record == nil {
		return errors.New("ewaybill repo: nil record")
	}
	lastPartB, err := marshalPartB(record.LastPartB)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
INSERT INTO ewaybills (
	document_no, status, supplier_gstin, recipient_gstin, from_pincode, to_pincode,
	hsn_code, document_value, distance_km, trans_mode, vehicle_number, transporter_id, transporter_name,
	valid_from, valid_until, created_at, updated_at, last_partb, provider_ref
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19
)`,
		record.DocumentNo, record.Status, record.SupplierGSTIN, record.RecipientGSTIN, record.FromPINCode, record.ToPINCode,
		record.HSNCode, record.DocumentValue, record.DistanceKm, record.TransMode, record.VehicleNumber, record.TransporterID, record.TransporterName,
		record.ValidFrom, record.ValidUntil, record.CreatedAt, record.UpdatedAt, lastPartB, record.ProviderRef)
	return err
}

// MarkCancelled transitions ACTIVE -> CANCELLED.
func (r *Registry) MarkCancelled(ctx context.Context, documentNo string, cancellation ewaybill.Cancellation) (bool, error) {
	if r == nil || r.db == nil {
		return false, errors.New("ewaybill repo: nil db")
	}
	result, err := r.db.ExecContext(ctx, `
UPDATE ewaybills
SET status = $1, cancel_reason_code = $2, cancel_remarks = $3, cancelled_at = $4, updated_at = $4
WHERE document_no = $5 AND status = $6`,
		ewaybill.StatusCancelled, cancellation.ReasonCode, cancellation.Remarks, cancellation.CancelledAt,
		documentNo, ewaybill.StatusActive)
	if err != nil {
		return false, err
	}
	count, _ := result.RowsAffected()
	return count > 0, nil
}

// ReplaceTransporter swaps the transporter while ACTIVE.
func (r *Registry) ReplaceTransporter(ctx context.Context, documentNo, transporterID, transporterName string, at time.Time) (bool, error) {
	if r == nil || r.db == nil {
		return false, errors.New("ewaybill repo: nil db")
	}
	result, err := r.db.ExecContext(ctx, `
UPDATE ewaybills
SET transporter_id = $1, transporter_name = $2, updated_at = $3
WHERE document_no = $4 AND status = $5`,
		transporterID, transporterName, at, documentNo, ewaybill.StatusActive)
	if err != nil {
		return false, err
	}
	count, _ := result.RowsAffected()
	return count > 0, nil
}

// ExtendValidity moves valid_until forward while ACTIVE. The monotonicity
// guard lives in the WHERE clause.
func (r *Registry) ExtendValidity(ctx context.Context, documentNo string, newUntil, at time.Time) (bool, error) {
	if r == nil || r.db == nil {
		return false, errors.New("ewaybill repo: nil db")
	}
	result, err := r.db.ExecContext(ctx, `
UPDATE ewaybills
SET valid_until = $1, updated_at = $2
WHERE document_no = $3 AND status = $4 AND valid_until < $1`,
		newUntil, at, documentNo, ewaybill.StatusActive)
	if err != nil {
		return false, err
	}
	count, _ := result.RowsAffected()
	return count > 0, nil
}

// ApplyPartB applies a Part-B update while ACTIVE. COALESCE keeps the
// existing vehicle/transporter when the update omits them.
func (r *Registry) ApplyPartB(ctx context.Context, documentNo string, update ewaybill.PartBUpdate) (bool, error) {
	if r == nil || r.db == nil {
		return false, errors.New("ewaybill repo: nil db")
	}
	lastPartB, err := marshalPartB(&update)
	if err != nil {
		return false, err
	}
	result, err := r.db.ExecContext(ctx, `
UPDATE ewaybills
SET vehicle_number = COALESCE(NULLIF($1, ''), vehicle_number),
	trans_mode = $2,
	distance_km = $3,
	transporter_id = COALESCE(NULLIF($4, ''), transporter_id),
	last_partb = $5,
	updated_at = $6
WHERE document_no = $7 AND status = $8`,
		update.VehicleNumber, update.TransMode, update.DistanceKm, update.TransporterID,
		lastPartB, update.UpdatedAt, documentNo, ewaybill.StatusActive)
	if err != nil {
		return false, err
	}
	count, _ := result.RowsAffected()
	return count > 0, nil
}

// MarkExpiredBefore sweeps lapsed ACTIVE records into EXPIRED.
func (r *Registry) MarkExpiredBefore(ctx context.Context, cutoff time.Time) (int, error) {
	if r == nil || r.db == nil {
		return 0, errors.New("ewaybill repo: nil db")
	}
	result, err := r.db.ExecContext(ctx, `
UPDATE ewaybills
SET status = $1, updated_at = $2
WHERE status = $3 AND valid_until < $2`,
		ewaybill.StatusExpired, cutoff, ewaybill.StatusActive)
	if err != nil {
		return 0, err
	}
	count, _ := result.RowsAffected()
	return int(count), nil
}

// AppendHistory appends one entry to the append-only history log.
func (r *Registry) AppendHistory(ctx context.Context, entry ewaybill.HistoryEntry) error {
	if r == nil || r.db == nil {
		return errors.New("ewaybill repo: nil db")
	}
	detail := entry.Detail
	if len(detail) == 0 {
		detail = []byte("{}")
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO ewaybill_history (document_no, kind, detail, occurred_at)
VALUES ($1,$2,$3,$4)`,
		entry.DocumentNo, entry.Kind, detail, entry.OccurredAt)
	return err
}

// ListHistory returns the history log in append order.
func (r *Registry) ListHistory(ctx context.Context, documentNo string) ([]ewaybill.HistoryEntry, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("ewaybill repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT seq, document_no, kind, detail, occurred_at
FROM ewaybill_history
WHERE document_no = $1
ORDER BY seq ASC`, documentNo)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []ewaybill.HistoryEntry
	for rows.Next() {
		var entry ewaybill.HistoryEntry
		var detail []byte
		if err := rows.Scan(&entry.Seq, &entry.DocumentNo, &entry.Kind, &detail, &entry.OccurredAt); err != nil {
			return nil, err
		}
		entry.Detail = detail
		entry.OccurredAt = entry.OccurredAt.UTC()
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*ewaybill.Record, error) {
	var record ewaybill.Record
	var vehicleNumber, transporterID, transporterName, providerRef sql.NullString
	var lastPartB []byte
	var cancelReason, cancelRemarks sql.NullString
	var cancelledAt sql.NullTime
	if err := row.Scan(
		&record.DocumentNo,
		&record.Status,
		&record.SupplierGSTIN,
		&record.RecipientGSTIN,
		&record.FromPINCode,
		&record.ToPINCode,
		&record.HSNCode,
		&record.DocumentValue,
		&record.DistanceKm,
		&record.TransMode,
		&vehicleNumber,
		&transporterID,
		&transporterName,
		&record.ValidFrom,
		&record.ValidUntil,
		&record.CreatedAt,
		&record.UpdatedAt,
		&lastPartB,
		&cancelReason,
		&cancelRemarks,
		&cancelledAt,
		&providerRef,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	record.VehicleNumber = vehicleNumber.String
	record.TransporterID = transporterID.String
	record.TransporterName = transporterName.String
	record.ProviderRef = providerRef.String
	record.ValidFrom = record.ValidFrom.UTC()
	record.ValidUntil = record.ValidUntil.UTC()
	record.CreatedAt = record.CreatedAt.UTC()
	record.UpdatedAt = record.UpdatedAt.UTC()
	if len(lastPartB) > 0 {
		var update ewaybill.PartBUpdate
		if err := json.Unmarshal(lastPartB, &update); err == nil {
			record.LastPartB = &update
		}
	}
	if cancelledAt.Valid {
		record.Cancellation = &ewaybill.Cancellation{
			ReasonCode:  cancelReason.String,
			Remarks:     cancelRemarks.String,
			CancelledAt: cancelledAt.Time.UTC(),
		}
	}
	return &record, nil
}

func marshalPartB(update *ewaybill.PartBUpdate) ([]byte, error) {
	if update == nil {
		return nil, nil
	}
	data, err := json.Marshal(update)
	if err != nil {
		return nil, errors.New("ewaybill repo: invalid partb payload")
	}
	return data, nil
}
