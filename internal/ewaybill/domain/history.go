package ewaybill

import (
	"encoding/json"
	"time"
)

// History entry kinds.
const (
	HistoryGenerated          = "generated"
	HistoryPartBUpdate        = "partb_update"
	HistoryTransporterChange  = "transporter_change"
	HistoryValidityExtension  = "validity_extension"
	HistoryCancellation       = "cancellation"
	HistoryConsolidatedMember = "consolidated_member"
)

// HistoryEntry is one element of a record's append-only history log.
// Entries are never updated or deleted; Seq is assigned by the registry.
type HistoryEntry struct {
	Seq        int64           `json:"seq"`
	DocumentNo string          `json:"document_no"`
	Kind       string          `json:"kind"`
	Detail     json.RawMessage `json:"detail,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// NewHistoryEntry marshals detail into a history entry. Marshal failures
// degrade to an empty detail rather than blocking the operation.
func NewHistoryEntry(documentNo, kind string, detail any, occurredAt time.Time) HistoryEntry {
	entry := HistoryEntry{
		DocumentNo: documentNo,
		Kind:       kind,
		OccurredAt: occurredAt,
	}
	if detail != nil {
		if data, err := json.Marshal(detail); err == nil {
			entry.Detail = data
		}
	}
	return entry
}
