package errno

import "errors"

// Errno defines the error code logic
type Errno struct {
	Code    int
	Message string
}

func (e Errno) Error() string {
	return e.Message
}

// Is matches on Code, so an Errno carrying a specific reason from WithMessage
// still satisfies errors.Is against the table entry.
func (e Errno) Is(target error) bool {
	var t Errno
	if errors.As(target, &t) {
		return t.Code == e.Code
	}
	return false
}

// WithMessage returns a copy of e with a more specific message, e.g. the verdict label.
func (e Errno) WithMessage(msg string) Errno {
	return Errno{Code: e.Code, Message: e.Message + ": " + msg}
}

// Decode tries to convert an error to Errno
func Decode(err error) (int, string) {
	if err == nil {
		return OK.Code, OK.Message
	}

	var typed Errno
	if errors.As(err, &typed) {
		return typed.Code, typed.Message
	}
	var ptr *Errno
	if errors.As(err, &ptr) && ptr != nil {
		return ptr.Code, ptr.Message
	}
	return InternalServerError.Code, err.Error()
}

// Common Errors
var (
	OK                  = Errno{Code: 0, Message: "Success"}
	InternalServerError = Errno{Code: 10001, Message: "Internal server error"}
	ErrBind             = Errno{Code: 10002, Message: "Error occurred while binding the request body to the struct"}
	ErrTokenInvalid     = Errno{Code: 10003, Message: "Token invalid"}
	ErrDatabase         = Errno{Code: 10004, Message: "Database error"}
	ErrUnauthorized     = Errno{Code: 10005, Message: "Session required"}
)

// Campaign lifecycle errors (30000+)
var (
	ErrValidation           = Errno{Code: 30001, Message: "Invalid campaign draft"}
	ErrScreeningUnavailable = Errno{Code: 30101, Message: "Screening service unavailable"}
	ErrScreeningRejected    = Errno{Code: 30102, Message: "Campaign rejected by screening"}
	ErrLedgerRejected       = Errno{Code: 30201, Message: "Ledger rejected the transaction"}
	ErrLedgerUnavailable    = Errno{Code: 30202, Message: "Ledger unavailable"}
	ErrLedgerTimeout        = Errno{Code: 30203, Message: "Ledger confirmation timed out"}
	ErrOutcomeUnknown       = Errno{Code: 30204, Message: "Pending confirmation"}
	ErrNotOwner             = Errno{Code: 30301, Message: "Caller is not the campaign owner"}
	ErrNotExpired           = Errno{Code: 30302, Message: "Campaign deadline has not passed"}
	ErrAlreadyClaimed       = Errno{Code: 30303, Message: "Campaign funds already claimed"}
	ErrCampaignNotFound     = Errno{Code: 30401, Message: "Campaign not found"}
	ErrDuplicatePledge      = Errno{Code: 30402, Message: "Pledge already recorded"}
)
