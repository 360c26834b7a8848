package services

import "errors"

type ErrorCode string

const (
	ErrorInvalid       ErrorCode = "invalid"
	ErrorForbidden     ErrorCode = "forbidden"
	ErrorNotFound      ErrorCode = "not_found"
	ErrorConflict      ErrorCode = "conflict"
	ErrorUnauthorized  ErrorCode = "unauthorized"
	ErrorPrecondition  ErrorCode = "precondition"
	ErrorMisconfigured ErrorCode = "misconfigured"
)

type ServiceError struct {
	Code    ErrorCode
	Message string
}

func (e *ServiceError) Error() string { return e.Message }

func NewInvalidError(msg string) error   { return &ServiceError{Code: ErrorInvalid, Message: msg} }
func NewForbiddenError(msg string) error { return &ServiceError{Code: ErrorForbidden, Message: msg} }
func NewNotFoundError(msg string) error  { return &ServiceError{Code: ErrorNotFound, Message: msg} }
func NewConflictError(msg string) error  { return &ServiceError{Code: ErrorConflict, Message: msg} }
func NewUnauthorizedError(msg string) error {
	return &ServiceError{Code: ErrorUnauthorized, Message: msg}
}

// NewPreconditionError marks an operation attempted before its required
// predecessor completed, e.g. resolving checklist groups before the checklist
// has any answers. Not recoverable by retrying the same call.
func NewPreconditionError(msg string) error {
	return &ServiceError{Code: ErrorPrecondition, Message: msg}
}

// NewMisconfiguredError marks a fatal server misconfiguration, e.g. a basic
// application group id that resolves to nothing.
func NewMisconfiguredError(msg string) error {
	return &ServiceError{Code: ErrorMisconfigured, Message: msg}
}

func AsServiceError(err error) (*ServiceError, bool) {
	var se *ServiceError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}
