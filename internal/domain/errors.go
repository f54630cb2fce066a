package domain

import (
	"errors"
	"fmt"
)

// Protocol error codes. Validation and lookup failures are invalid-params;
// everything unexpected is internal. The boundary maps these onto JSON-RPC
// error codes.
type CallErrorCode int

const (
	CodeInvalidParams CallErrorCode = -32602
	CodeInternal      CallErrorCode = -32603
)

// CallError is a classified, user-reportable call failure. It must never
// cross the transport boundary unformatted.
type CallError struct {
	Code    CallErrorCode
	Message string
}

func (e *CallError) Error() string {
	return e.Message
}

// NewInvalidParams builds a user/client error.
func NewInvalidParams(format string, args ...any) *CallError {
	return &CallError{Code: CodeInvalidParams, Message: fmt.Sprintf(format, args...)}
}

// NewInternal builds a server-side error.
func NewInternal(format string, args ...any) *CallError {
	return &CallError{Code: CodeInternal, Message: fmt.Sprintf(format, args...)}
}

// AsCallError unwraps err into a CallError when possible.
func AsCallError(err error) (*CallError, bool) {
	var ce *CallError
	ok := errors.As(err, &ce)
	return ce, ok
}

// ErrMissingSession marks a call that arrived without a session identifier.
// That is a host defect, not a user error: task bookkeeping is keyed by
// session, so the call path fails hard instead of guessing.
var ErrMissingSession = errors.New("call request carries no session id")

var ErrToolNotFound = errors.New("tool not found")
var ErrTaskNotFound = errors.New("task not found")
var ErrActorNotFound = errors.New("actor not found")
var ErrInvalidToken = errors.New("invalid platform token")
