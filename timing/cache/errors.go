package cache

import (
	"errors"
	"fmt"
)

// ErrIllegalParameter is matched by every ConfigurationError.
var ErrIllegalParameter = errors.New("illegal cache parameter")

// ErrAddressRange is matched by every AddressRangeError.
var ErrAddressRange = errors.New("address out of range")

// ErrUnexpectedCaller is the panic value raised when hit/miss accounting is
// reached outside of an access. It signals a defect in this package.
var ErrUnexpectedCaller = errors.New(
	"hit/miss accounting must be driven by a read or write access")

// ConfigurationError reports an invalid geometry or policy parameter.
type ConfigurationError struct {
	// Field names the offending parameter.
	Field string
	// Value is the rejected value.
	Value any
	// Reason explains the constraint that was violated.
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("illegal parameter %s=%v: %s", e.Field, e.Value, e.Reason)
}

// Is makes errors.Is(err, ErrIllegalParameter) hold.
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrIllegalParameter
}

func illegal(field string, value any, format string, args ...any) error {
	return &ConfigurationError{
		Field:  field,
		Value:  value,
		Reason: fmt.Sprintf(format, args...),
	}
}

// AddressRangeError reports an address that does not fit the configured
// address width.
type AddressRangeError struct {
	Addr  uint64
	Width int
	// Negative is set when the address was negative before conversion.
	Negative bool
}

func (e *AddressRangeError) Error() string {
	if e.Negative {
		return "address must not be negative"
	}
	return fmt.Sprintf("address 0x%x exceeds the %d-bit address space", e.Addr, e.Width)
}

// Is makes errors.Is(err, ErrAddressRange) hold.
func (e *AddressRangeError) Is(target error) bool {
	return target == ErrAddressRange
}
