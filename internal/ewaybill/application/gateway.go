package application

import (
	"context"
	"time"
)

// Operation names a lifecycle operation submitted to the compliance
// authority.
type Operation string

const (
	OpGenerate          Operation = "generate"
	OpCancel            Operation = "cancel"
	OpChangeTransporter Operation = "change_transporter"
	OpExtendValidity    Operation = "extend_validity"
	OpUpdatePartB       Operation = "update_partb"
	OpConsolidate       Operation = "consolidate"
)

// ProviderConfirmation is the compliance authority's acknowledgement of a
// submitted operation.
type ProviderConfirmation struct {
	// Reference is the provider acknowledgement number.
	Reference string
	// DocumentNo is the provider-assigned document number for generate and
	// consolidate submissions; empty for mutations of an existing document.
	DocumentNo string
	// ValidUntil is the provider-stated validity horizon when the provider
	// returns one; zero otherwise.
	ValidUntil time.Time
}

// SubmissionGateway submits an operation to the external compliance
// authority. It is invoked only after every local precondition has passed;
// a failure means the operation did not happen and no local state changes.
type SubmissionGateway interface {
	Submit(ctx context.Context, op Operation, documentNo string, payload any) (ProviderConfirmation, error)
}
