package postgres

import (
	"context"
	"database/sql"
	"errors"

	ewaybill "ewaybill-cloud/internal/ewaybill/domain"
)

// ConsolidatedRepository persists consolidated bills and their members.
type ConsolidatedRepository struct {
	db *sql.DB
}

// NewConsolidatedRepository constructs a repository.
func NewConsolidatedRepository(db *sql.DB) *ConsolidatedRepository {
	return &ConsolidatedRepository{db: db}
}

// CreateConsolidated inserts the bill and its member rows in one
// transaction.
func (r *ConsolidatedRepository) CreateConsolidated(ctx context.Context, bill *ewaybill.ConsolidatedBill) error {
	if r == nil || r.db == nil {
		return errors.New("consolidated repo: nil db")
	}
	if bill == nil {
		return errors.New("consolidated repo: nil bill")
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
INSERT INTO consolidated_bills (consolidated_no, provider_ref, created_at)
VALUES ($1,$2,$3)`,
		bill.ConsolidatedNo, bill.ProviderRef, bill.CreatedAt)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	for position, documentNo := range bill.Members {
		_, err := tx.ExecContext(ctx, `
INSERT INTO consolidated_bill_members (consolidated_no, document_no, position)
VALUES ($1,$2,$3)`,
			bill.ConsolidatedNo, documentNo, position)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// GetConsolidated fetches a bill with its members; (nil, nil) when unknown.
func (r *ConsolidatedRepository) GetConsolidated(ctx context.Context, consolidatedNo string) (*ewaybill.ConsolidatedBill, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("consolidated repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT consolidated_no, provider_ref, created_at
FROM consolidated_bills
WHERE consolidated_no = $1
LIMIT 1`, consolidatedNo)

	var bill ewaybill.ConsolidatedBill
	var providerRef sql.NullString
	if err := row.Scan(&bill.ConsolidatedNo, &providerRef, &bill.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	bill.ProviderRef = providerRef.String
	bill.CreatedAt = bill.CreatedAt.UTC()

	rows, err := r.db.QueryContext(ctx, `
SELECT document_no
FROM consolidated_bill_members
WHERE consolidated_no = $1
ORDER BY position ASC`, consolidatedNo)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var documentNo string
		if err := rows.Scan(&documentNo); err != nil {
			return nil, err
		}
		bill.Members = append(bill.Members, documentNo)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &bill, nil
}
