package lobby

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
)

// Code is the machine-readable error code delivered to clients.
type Code string

const (
	CodeUnknown Code = "unknown"

	// Not found
	CodeSessionNotFound       Code = "sessionNotFound"
	CodeGroupNotFound         Code = "groupNotFound"
	CodePlayerNotFound        Code = "playerNotFound"
	CodePlayerNotFoundInGroup Code = "playerNotFoundInGroup"
	CodeVehicleNotFound       Code = "vehicleNotFound"
	CodeItemNotFound          Code = "itemNotFound"
	CodeBoxNotFound           Code = "boxNotFound"
	CodeBoxItemNotFound       Code = "boxItemNotFound"

	// Conflict
	CodePlayerAlreadyExists Code = "playerAlreadyExists"
	CodeGroupAlreadyExists  Code = "groupAlreadyExists"
	CodeAlreadyLaunched     Code = "alreadyLaunched"

	// Invalid request
	CodeInvalidPayload Code = "invalidPayload"
	CodeUnknownEvent   Code = "unknownEvent"
)

// Class groups codes by failure kind.
type Class int

const (
	ClassUnknown Class = iota
	ClassNotFound
	ClassConflict
	ClassInvalid
)

// String returns the lowercase class name.
func (c Class) String() string {
	switch c {
	case ClassNotFound:
		return "not_found"
	case ClassConflict:
		return "conflict"
	case ClassInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// Class returns the failure class of the code.
func (c Code) Class() Class {
	switch c {
	case CodeSessionNotFound, CodeGroupNotFound, CodePlayerNotFound,
		CodePlayerNotFoundInGroup, CodeVehicleNotFound, CodeItemNotFound,
		CodeBoxNotFound, CodeBoxItemNotFound:
		return ClassNotFound
	case CodePlayerAlreadyExists, CodeGroupAlreadyExists, CodeAlreadyLaunched:
		return ClassConflict
	case CodeInvalidPayload, CodeUnknownEvent:
		return ClassInvalid
	default:
		return ClassUnknown
	}
}

// GRPCCode maps the code's class onto the closest gRPC status code.
func (c Code) GRPCCode() codes.Code {
	switch c.Class() {
	case ClassNotFound:
		return codes.NotFound
	case ClassConflict:
		if c == CodeAlreadyLaunched {
			return codes.FailedPrecondition
		}
		return codes.AlreadyExists
	case ClassInvalid:
		return codes.InvalidArgument
	default:
		return codes.Unknown
	}
}

// Error is a per-request domain failure. It never leaves partial state behind
// and is delivered only to the requesting connection.
type Error struct {
	Code Code
	Data map[string]any
	Err  error
}

// Error implements error.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	if len(e.Data) > 0 {
		return fmt.Sprintf("%s %v", e.Code, e.Data)
	}
	return string(e.Code)
}

// Unwrap returns the wrapped cause, if any.
func (e *Error) Unwrap() error { return e.Err }

// NewError returns an Error with the given code and data.
func NewError(code Code, data map[string]any) *Error {
	return &Error{Code: code, Data: data}
}

// AsError converts any error into an *Error. Errors that are not domain
// errors are wrapped with CodeUnknown.
//
// Precondition: err must be non-nil.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Code: CodeUnknown, Err: err}
}

// GetCode extracts the code from err, or CodeUnknown for foreign errors.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code Code) bool {
	return err != nil && GetCode(err) == code
}

// ErrSessionNotFound returns the error for an unknown, dissolved or unbound session.
func ErrSessionNotFound(sessionID string) *Error {
	return NewError(CodeSessionNotFound, map[string]any{"sessionId": sessionID})
}

func errGroupNotFound(index int) *Error {
	return NewError(CodeGroupNotFound, map[string]any{"groupIndex": index})
}

func errPlayerNotFound(name string) *Error {
	return NewError(CodePlayerNotFound, map[string]any{"playerName": name})
}

func errPlayerNotFoundInGroup(name string, index int) *Error {
	return NewError(CodePlayerNotFoundInGroup, map[string]any{"playerName": name, "groupIndex": index})
}

func errVehicleNotFound(name string) *Error {
	return NewError(CodeVehicleNotFound, map[string]any{"vehicleName": name})
}

func errPlayerAlreadyExists(name, sessionID string) *Error {
	return NewError(CodePlayerAlreadyExists, map[string]any{"playerName": name, "sessionId": sessionID})
}

func errGroupAlreadyExists(name string) *Error {
	return NewError(CodeGroupAlreadyExists, map[string]any{"groupName": name})
}

func errAlreadyLaunched(sessionID string) *Error {
	return NewError(CodeAlreadyLaunched, map[string]any{"sessionId": sessionID})
}
