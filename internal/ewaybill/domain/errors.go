package ewaybill

import (
	"errors"
	"fmt"
)

// Reason tags a precondition failure so callers can render the exact
// government-rule message for the rule that failed.
type Reason string

const (
	ReasonInvalidFormat          Reason = "INVALID_FORMAT"
	ReasonIneligibleState        Reason = "INELIGIBLE_STATE"
	ReasonWindowExpired          Reason = "WINDOW_EXPIRED"
	ReasonMissingRequiredInput   Reason = "MISSING_REQUIRED_INPUT"
	ReasonGoodsMovementStarted   Reason = "GOODS_MOVEMENT_STARTED"
	ReasonRemoteSubmissionFailed Reason = "REMOTE_SUBMISSION_FAILED"
)

// ErrNotFound indicates a missing E-Way Bill record.
var ErrNotFound = errors.New("ewaybill: not found")

// Rejection is a structured precondition failure. All rejections are
// recoverable and reported synchronously; none end the process.
type Rejection struct {
	Reason  Reason
	Message string
	err     error
}

// Reject builds a rejection with a formatted rule message.
func Reject(reason Reason, format string, args ...any) *Rejection {
	return &Rejection{Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// RejectNotFound builds an ineligible-state rejection that also unwraps to
// ErrNotFound so transports can distinguish missing documents.
func RejectNotFound(documentNo string) *Rejection {
	return &Rejection{
		Reason:  ReasonIneligibleState,
		Message: fmt.Sprintf("e-way bill %s not found", documentNo),
		err:     ErrNotFound,
	}
}

// RejectSubmission wraps a gateway failure. Local state is unchanged when
// this is returned.
func RejectSubmission(err error) *Rejection {
	return &Rejection{
		Reason:  ReasonRemoteSubmissionFailed,
		Message: "submission to compliance authority failed",
		err:     err,
	}
}

func (r *Rejection) Error() string {
	return string(r.Reason) + ": " + r.Message
}

func (r *Rejection) Unwrap() error { return r.err }

// AsRejection extracts a rejection from an error chain.
func AsRejection(err error) (*Rejection, bool) {
	var rejection *Rejection
	if errors.As(err, &rejection) {
		return rejection, true
	}
	return nil, false
}
