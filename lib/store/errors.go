package store

import (
	"errors"
	"fmt"
	"github.com/ValentinKolb/dProof/lib/registry"
)

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is a custom error type that wraps a return code (of type RetCode)
// and an error message.
type Error struct {
	Code RetCode // The return code
	Msg  string  // The error message.
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("StoreError (code %s): %s", e.Code, e.Msg)
}

// Is makes errors.Is(err, registry.ErrDuplicateRegistration) work across the store and rpc layers.
func (e *Error) Is(target error) bool {
	return e.Code == RetCDuplicateRegistration && target == registry.ErrDuplicateRegistration
}

// NewError creates a new StoreError with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// FromRegistryError maps an error of the registry package to a *Error.
func FromRegistryError(err error) *Error {
	if err == nil {
		return nil
	}
	var storeErr *Error
	if errors.As(err, &storeErr) {
		return storeErr
	}
	switch {
	case errors.Is(err, registry.ErrDuplicateRegistration):
		return NewError(RetCDuplicateRegistration, err.Error())
	case errors.Is(err, registry.ErrZeroTimestamp):
		return NewError(RetCInvalidOperation, err.Error())
	default:
		return NewError(RetCInternalError, err.Error())
	}
}

// IsDuplicate reports whether err signals a duplicate registration.
func IsDuplicate(err error) bool {
	return errors.Is(err, registry.ErrDuplicateRegistration)
}

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess               RetCode = iota // 0: Command executed successfully.
	RetCInternalError                        // 1: Command failed due to an internal error.
	RetCUnsupportedOperation                 // 2: Operation is not supported by underlying database.
	RetCInvalidOperation                     // 3: Invalid operation.
	RetCDuplicateRegistration                // 4: The document hash is already registered, the invocation was rolled back.
)

func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "Success"
	case RetCInternalError:
		return "InternalError"
	case RetCUnsupportedOperation:
		return "UnsupportedOperation"
	case RetCInvalidOperation:
		return "InvalidOperation"
	case RetCDuplicateRegistration:
		return "DuplicateRegistration"
	default:
		return "Unknown"
	}
}
