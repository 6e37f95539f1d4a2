package domain

import "fmt"

// CodedError is the base domain error type. Codes are stable strings; the
// facade and boundaries map them onto their response shapes.
type CodedError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

func (e *CodedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *CodedError) Unwrap() error { return e.Cause }

// Stable error codes.
const (
	CodeNotYourTurn       = "NOT_YOUR_TURN"
	CodeInvalidAction     = "INVALID_ACTION"
	CodeInsufficientChips = "INSUFFICIENT_CHIPS"
	CodeInvalidAmount     = "INVALID_AMOUNT"
	CodeHandNotInProgress = "HAND_NOT_IN_PROGRESS"
	CodePlayerNotFound    = "PLAYER_NOT_FOUND"
	CodePlayerNotActive   = "PLAYER_NOT_ACTIVE"
	CodeActionTimeout     = "ACTION_TIMEOUT"
	CodeInternalError     = "INTERNAL_ERROR"
	CodeTableFull         = "TABLE_FULL"
	CodeSeatTaken         = "SEAT_TAKEN"

	CodeMissingField      = "MISSING_FIELD"
	CodeDuplicateIntent   = "DUPLICATE_INTENT"
	CodeForbiddenTarget   = "FORBIDDEN_TARGET"
	CodeForbiddenTiming   = "FORBIDDEN_TIMING"
	CodeForbiddenMetadata = "FORBIDDEN_METADATA"
	CodeIntentTooLong     = "INTENT_TOO_LONG"

	CodeSnapshotCorrupt = "SNAPSHOT_CORRUPT"
)

// Standard domain error constructors.

func ErrNotYourTurn() *CodedError {
	return &CodedError{Code: CodeNotYourTurn, Message: "not your turn to act"}
}

func ErrInvalidAction(msg string) *CodedError {
	return &CodedError{Code: CodeInvalidAction, Message: msg}
}

func ErrInsufficientChips(msg string) *CodedError {
	return &CodedError{Code: CodeInsufficientChips, Message: msg}
}

func ErrInvalidAmount(msg string) *CodedError {
	return &CodedError{Code: CodeInvalidAmount, Message: msg}
}

func ErrHandNotInProgress(msg string) *CodedError {
	return &CodedError{Code: CodeHandNotInProgress, Message: msg}
}

// ErrOutOfPhase reports a command arriving outside its allowed phase. The
// state it was applied to is left unchanged.
func ErrOutOfPhase(command, phase string) *CodedError {
	return &CodedError{
		Code:    CodeHandNotInProgress,
		Message: fmt.Sprintf("command %s not allowed in phase %s", command, phase),
	}
}

func ErrPlayerNotFound(msg string) *CodedError {
	return &CodedError{Code: CodePlayerNotFound, Message: msg}
}

func ErrPlayerNotActive(msg string) *CodedError {
	return &CodedError{Code: CodePlayerNotActive, Message: msg}
}

func ErrActionTimeout(msg string) *CodedError {
	return &CodedError{Code: CodeActionTimeout, Message: msg}
}

func ErrTableFull() *CodedError {
	return &CodedError{Code: CodeTableFull, Message: "table is full"}
}

func ErrSeatTaken(seat int) *CodedError {
	return &CodedError{Code: CodeSeatTaken, Message: fmt.Sprintf("seat %d is taken", seat)}
}

func ErrInternal(msg string, cause error) *CodedError {
	return &CodedError{Code: CodeInternalError, Message: msg, Cause: cause}
}

func ErrMissingField(field string) *CodedError {
	return &CodedError{Code: CodeMissingField, Message: field + " is required"}
}

func ErrDuplicateIntent(msg string) *CodedError {
	return &CodedError{Code: CodeDuplicateIntent, Message: msg}
}

func ErrForbiddenTarget(msg string) *CodedError {
	return &CodedError{Code: CodeForbiddenTarget, Message: msg}
}

func ErrForbiddenTiming(msg string) *CodedError {
	return &CodedError{Code: CodeForbiddenTiming, Message: msg}
}

func ErrForbiddenMetadata(msg string) *CodedError {
	return &CodedError{Code: CodeForbiddenMetadata, Message: msg}
}

func ErrIntentTooLong(msg string) *CodedError {
	return &CodedError{Code: CodeIntentTooLong, Message: msg}
}

func ErrSnapshotCorrupt(msg string) *CodedError {
	return &CodedError{Code: CodeSnapshotCorrupt, Message: msg}
}
