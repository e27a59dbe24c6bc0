package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/ValentinKolb/dProof/lib/registry"
	"github.com/stretchr/testify/assert"
)

func TestFromRegistryError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code RetCode
	}{
		{"duplicate", &registry.DuplicateRegistrationError{DocHash: "abc", Timestamp: 1}, RetCDuplicateRegistration},
		{"wrapped duplicate", fmt.Errorf("register: %w", registry.ErrDuplicateRegistration), RetCDuplicateRegistration},
		{"zero timestamp", registry.ErrZeroTimestamp, RetCInvalidOperation},
		{"malformed", registry.ErrMalformedRecord, RetCInternalError},
		{"store error", NewError(RetCUnsupportedOperation, "nope"), RetCUnsupportedOperation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, FromRegistryError(tt.err).Code)
		})
	}
	assert.Nil(t, FromRegistryError(nil))
}

func TestIsDuplicate(t *testing.T) {
	assert.True(t, IsDuplicate(NewError(RetCDuplicateRegistration, "dup")))
	assert.True(t, IsDuplicate(fmt.Errorf("rpc: %w", NewError(RetCDuplicateRegistration, "dup"))))
	assert.True(t, errors.Is(NewError(RetCDuplicateRegistration, "dup"), registry.ErrDuplicateRegistration))
	assert.False(t, IsDuplicate(NewError(RetCInternalError, "boom")))
	assert.False(t, IsDuplicate(nil))
}

func TestErrorString(t *testing.T) {
	err := NewError(RetCDuplicateRegistration, "document already registered")
	assert.Equal(t, "StoreError (code DuplicateRegistration): document already registered", err.Error())
	assert.Equal(t, "Unknown", RetCode(99).String())
}
