package types

import (
	"errors"
	"fmt"
)

const (
	CodeInvalidEndpoint      = "INVALID_ENDPOINT"
	CodeUnparseableURL       = "UNPARSEABLE_URL"
	CodeUnreadableDocument   = "UNREADABLE_DOCUMENT"
	CodeMissingTab           = "MISSING_TAB"
	CodeEngineUnavailable    = "ENGINE_UNAVAILABLE"
	CodeTransportUnavailable = "TRANSPORT_UNAVAILABLE"
)

// CodedError is a typed error used for stable API mapping.
type CodedError struct {
	Code    string
	Message string
	Cause   error
}

func (e *CodedError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
}

func (e *CodedError) Unwrap() error { return e.Cause }

// Is reports whether target is a CodedError with the same code, so callers
// can match on a bare &CodedError{Code: ...} with errors.Is.
func (e *CodedError) Is(target error) bool {
	t, ok := target.(*CodedError)
	return ok && t.Code == e.Code
}

func NewError(code, msg string, cause error) error {
	return &CodedError{Code: code, Message: msg, Cause: cause}
}

// HasCode reports whether err wraps a CodedError with the given code.
func HasCode(err error, code string) bool {
	var coded *CodedError
	return errors.As(err, &coded) && coded.Code == code
}
