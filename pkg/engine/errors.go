package engine

import (
	"errors"

	"github.com/pokercore/holdemd/internal/domain"
)

// ResponseCode classifies the outcome of a facade request. The codes are
// the stable strings of domain.CodedError; facade operations never panic,
// and every rejection carries one of these.
type ResponseCode string

const (
	CodeOK                ResponseCode = "OK"
	CodeNotYourTurn       ResponseCode = domain.CodeNotYourTurn
	CodeInvalidAction     ResponseCode = domain.CodeInvalidAction
	CodeInsufficientChips ResponseCode = domain.CodeInsufficientChips
	CodeInvalidAmount     ResponseCode = domain.CodeInvalidAmount
	CodeHandNotInProgress ResponseCode = domain.CodeHandNotInProgress
	CodePlayerNotFound    ResponseCode = domain.CodePlayerNotFound
	CodePlayerNotActive   ResponseCode = domain.CodePlayerNotActive
	CodeActionTimeout     ResponseCode = domain.CodeActionTimeout
	CodeInternalError     ResponseCode = domain.CodeInternalError
	CodeTableFull         ResponseCode = domain.CodeTableFull
	CodeSeatTaken         ResponseCode = domain.CodeSeatTaken
)

// Result is the structured outcome of a facade operation.
type Result struct {
	Code    ResponseCode `json:"code"`
	Message string       `json:"message,omitempty"`
}

// OK reports whether the operation succeeded.
func (r Result) OK() bool { return r.Code == CodeOK }

func resultOK() Result {
	return Result{Code: CodeOK}
}

// resultFrom maps a domain error onto the response shape. Anything that is
// not a CodedError is a programmer error surfaced as INTERNAL_ERROR.
func resultFrom(err error) Result {
	var coded *domain.CodedError
	if errors.As(err, &coded) {
		return Result{Code: ResponseCode(coded.Code), Message: coded.Message}
	}
	return Result{Code: CodeInternalError, Message: err.Error()}
}
