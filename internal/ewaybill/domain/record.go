// Package ewaybill holds the E-Way Bill aggregate and the vocabulary shared
// by the lifecycle rule engine, the registries and the interface layer.
package ewaybill

import (
	"math"
	"time"
)

// Status is the lifecycle status of an E-Way Bill record. CANCELLED is
// terminal; EXPIRED is reached by time passing, never by operator action.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusExpired   Status = "EXPIRED"
	StatusCancelled Status = "CANCELLED"
)

// TransportMode is one of the four recognized transport modes.
type TransportMode string

const (
	ModeRoad TransportMode = "1"
	ModeRail TransportMode = "2"
	ModeAir  TransportMode = "3"
	ModeShip TransportMode = "4"
)

// ValidTransportMode reports whether the mode is recognized.
func ValidTransportMode(mode TransportMode) bool {
	switch mode {
	case ModeRoad, ModeRail, ModeAir, ModeShip:
		return true
	default:
		return false
	}
}

// Cancellation records the terminal transition details. It is populated if
// and only if the record status is CANCELLED.
type Cancellation struct {
	ReasonCode  string    `json:"reason_code"`
	Remarks     string    `json:"remarks"`
	CancelledAt time.Time `json:"cancelled_at"`
}

// PartBUpdate is one transport-detail (Part-B) update. Either a vehicle
// number or a transport document reference is present; both may be.
type PartBUpdate struct {
	VehicleNumber string        `json:"vehicle_number,omitempty"`
	VehicleType   string        `json:"vehicle_type,omitempty"`
	TransMode     TransportMode `json:"trans_mode"`
	DistanceKm    int           `json:"distance_km"`
	TransDocNo    string        `json:"trans_doc_no,omitempty"`
	TransDocDate  time.Time     `json:"trans_doc_date,omitempty"`
	TransporterID string        `json:"transporter_id,omitempty"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// Record is the E-Way Bill aggregate root, keyed by document number.
type Record struct {
	DocumentNo string
	Status     Status

	SupplierGSTIN  string
	RecipientGSTIN string
	FromPINCode    string
	ToPINCode      string
	HSNCode        string
	DocumentValue  float64
	DistanceKm     int

	TransMode       TransportMode
	VehicleNumber   string
	TransporterID   string
	TransporterName string

	ValidFrom  time.Time
	ValidUntil time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time

	// LastPartB mirrors the newest entry of the append-only Part-B log.
	LastPartB    *PartBUpdate
	Cancellation *Cancellation

	ProviderRef string
}

// EffectiveStatus derives the status as of now. A stored ACTIVE record whose
// validity has lapsed is EXPIRED even before the sweep has persisted it.
func (r *Record) EffectiveStatus(now time.Time) Status {
	if r.Status == StatusCancelled {
		return StatusCancelled
	}
	if !r.ValidUntil.IsZero() && now.After(r.ValidUntil) {
		return StatusExpired
	}
	return r.Status
}

// MovementStarted reports whether goods movement has begun, signalled by a
// vehicle number on the record.
func (r *Record) MovementStarted() bool {
	return r.VehicleNumber != ""
}

// Clone returns a detached copy of the record.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	clone := *r
	if r.LastPartB != nil {
		update := *r.LastPartB
		clone.LastPartB = &update
	}
	if r.Cancellation != nil {
		cancellation := *r.Cancellation
		clone.Cancellation = &cancellation
	}
	return &clone
}

// ValidityForDistance computes the statutory validity horizon: one day per
// started 100 km, minimum one day.
func ValidityForDistance(distanceKm int, from time.Time) time.Time {
	days := int(math.Ceil(float64(distanceKm) / 100))
	if days < 1 {
		days = 1
	}
	return from.Add(time.Duration(days) * 24 * time.Hour)
}

// ConsolidatedBill groups multiple active bills for one onward journey leg.
// Creating one never mutates the members' own status or validity.
type ConsolidatedBill struct {
	ConsolidatedNo string    `json:"consolidated_no"`
	Members        []string  `json:"members"`
	ProviderRef    string    `json:"provider_ref,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Clock supplies the current time. Injected so temporal-window rules are
// deterministic under test.
type Clock interface {
	Now() time.Time
}
