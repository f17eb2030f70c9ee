package iio

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a device, channel or attribute does not exist.
	ErrNotFound = errors.New("iio: not found")
	// ErrInvalidValue is returned for values that fail validation or parsing.
	ErrInvalidValue = errors.New("iio: invalid value")
)

// ValueError reports an attribute whose raw value could not be parsed.
type ValueError struct {
	Attr string
	Raw  string
	Want string
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("attribute %s: cannot parse %q as %s", e.Attr, e.Raw, e.Want)
}

func (e *ValueError) Unwrap() error { return ErrInvalidValue }
