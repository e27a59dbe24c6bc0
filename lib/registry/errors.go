package registry

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateRegistration is returned when a hash is registered a second time.
	// The invocation must be rolled back as a whole.
	ErrDuplicateRegistration = errors.New("document already registered")
	// ErrZeroTimestamp is returned when the ledger clock reads 0.
	ErrZeroTimestamp = errors.New("ledger time must not be zero")
	// ErrMalformedRecord is returned when a stored record cannot be decoded.
	ErrMalformedRecord = errors.New("malformed record")
	// ErrInvalidKey is returned by ParseKey for strings that are no registry key.
	ErrInvalidKey = errors.New("invalid registry key")
	// ErrTxClosed is returned when a committed or discarded Tx is used again.
	ErrTxClosed = errors.New("transaction already closed")
)

// DuplicateRegistrationError carries the record that blocked a registration.
type DuplicateRegistrationError struct {
	DocHash   string
	Timestamp uint64 // registration time of the existing record
}

func (e *DuplicateRegistrationError) Error() string {
	return fmt.Sprintf("%s: %q at timestamp %d", ErrDuplicateRegistration, e.DocHash, e.Timestamp)
}

func (e *DuplicateRegistrationError) Unwrap() error {
	return ErrDuplicateRegistration
}
