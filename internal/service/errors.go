package service

import (
	"errors"
	"fmt"
)

// Error categories. Every coded error below unwraps to exactly one of them.
var (
	ErrNotFound         = errors.New("not found")
	ErrPermissionDenied = errors.New("permission denied")
	ErrInvalidInput     = errors.New("invalid input")
	ErrInvalidState     = errors.New("invalid state")
	ErrEconomic         = errors.New("economic constraint violated")
	ErrTransferFailed   = errors.New("asset transfer failed")
	ErrInternal         = errors.New("internal invariant violated")
)

// Error is a failure with a stable numeric code, reported to callers as-is.
type Error struct {
	Code int
	Name string
	kind error
}

func newError(code int, name string, kind error) *Error {
	return &Error{Code: code, Name: name, kind: kind}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (%d)", e.Name, e.Code)
}

func (e *Error) Unwrap() error {
	return e.kind
}

// Kind returns the category sentinel of the error.
func (e *Error) Kind() error {
	return e.kind
}

var (
	ErrAlreadyInitialized = newError(1000, "AlreadyInitialized", ErrInvalidState)
	ErrFeeTooHigh         = newError(1001, "FeeTooHigh", ErrEconomic)
	ErrNotOwner           = newError(1002, "NotOwner", ErrPermissionDenied)
	ErrNotInitialized     = newError(1003, "NotInitialized", ErrInvalidState)

	ErrEscrowNotFound      = newError(1100, "EscrowNotFound", ErrNotFound)
	ErrEscrowNotActive     = newError(1101, "EscrowNotActive", ErrInvalidState)
	ErrInvalidEscrowStatus = newError(1102, "InvalidEscrowStatus", ErrInvalidState)
	ErrWorkAlreadyStarted  = newError(1103, "WorkAlreadyStarted", ErrInvalidState)
	ErrWorkNotStarted      = newError(1104, "WorkNotStarted", ErrInvalidState)

	ErrJobCreationPaused      = newError(1200, "JobCreationPaused", ErrInvalidState)
	ErrInvalidDuration        = newError(1201, "InvalidDuration", ErrInvalidInput)
	ErrMilestoneCountMismatch = newError(1202, "MilestoneCountMismatch", ErrInvalidInput)
	ErrTooManyMilestones      = newError(1203, "TooManyMilestones", ErrInvalidInput)
	ErrTooManyArbiters        = newError(1204, "TooManyArbiters", ErrInvalidInput)
	ErrInvalidConfirmations   = newError(1205, "InvalidConfirmations", ErrInvalidInput)
	ErrTokenNotWhitelisted    = newError(1206, "TokenNotWhitelisted", ErrInvalidInput)

	ErrNotOpenJob           = newError(1300, "NotOpenJob", ErrInvalidState)
	ErrJobClosed            = newError(1301, "JobClosed", ErrInvalidState)
	ErrCannotApplyToOwnJob  = newError(1302, "CannotApplyToOwnJob", ErrInvalidInput)
	ErrTooManyApplications  = newError(1303, "TooManyApplications", ErrInvalidState)
	ErrOnlyDepositor        = newError(1304, "OnlyDepositor", ErrPermissionDenied)
	ErrFreelancerNotApplied = newError(1305, "FreelancerNotApplied", ErrInvalidInput)
	ErrAlreadyApplied       = newError(1306, "AlreadyApplied", ErrInvalidState)

	ErrInvalidMilestone          = newError(1400, "InvalidMilestone", ErrNotFound)
	ErrMilestoneAlreadySubmitted = newError(1401, "MilestoneAlreadySubmitted", ErrInvalidState)
	ErrMilestoneNotSubmitted     = newError(1402, "MilestoneNotSubmitted", ErrInvalidState)
	ErrMilestoneAlreadyProcessed = newError(1403, "MilestoneAlreadyProcessed", ErrInvalidState)

	ErrNothingToRefund           = newError(1500, "NothingToRefund", ErrEconomic)
	ErrDeadlineNotPassed         = newError(1501, "DeadlineNotPassed", ErrInvalidState)
	ErrEmergencyPeriodNotReached = newError(1502, "EmergencyPeriodNotReached", ErrInvalidState)
	ErrCannotRefund              = newError(1503, "CannotRefund", ErrInvalidState)
	ErrInvalidExtension          = newError(1504, "InvalidExtension", ErrInvalidInput)
	ErrCannotExtend              = newError(1505, "CannotExtend", ErrInvalidState)

	ErrOnlyBeneficiary = newError(1600, "OnlyBeneficiary", ErrPermissionDenied)
	ErrUnauthorized    = newError(1601, "Unauthorized", ErrPermissionDenied)

	ErrInvalidAmount    = newError(1700, "InvalidAmount", ErrInvalidInput)
	ErrInvalidAddress   = newError(1701, "InvalidAddress", ErrInvalidInput)
	ErrInvalidParameter = newError(1702, "InvalidParameter", ErrInvalidInput)

	ErrEscrowNotCompleted     = newError(1800, "EscrowNotCompleted", ErrInvalidState)
	ErrRatingAlreadySubmitted = newError(1801, "RatingAlreadySubmitted", ErrInvalidState)
	ErrInvalidRating          = newError(1802, "InvalidRating", ErrInvalidInput)
	ErrOnlyDepositorCanRate   = newError(1803, "OnlyDepositorCanRate", ErrPermissionDenied)

	ErrTransfer         = newError(1900, "TransferFailed", ErrTransferFailed)
	ErrCustodyUnderflow = newError(1901, "CustodyUnderflow", ErrInternal)
)

// AsError extracts the coded error from err, if any.
func AsError(err error) (*Error, bool) {
	var coded *Error
	if errors.As(err, &coded) {
		return coded, true
	}
	return nil, false
}
