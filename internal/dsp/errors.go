package dsp

import (
	"errors"
	"fmt"
)

// ErrNoTone is returned when a capture carries no measurable fundamental.
var ErrNoTone = errors.New("dsp: no tone found")

func errLengthMismatch(a, b int) error {
	return fmt.Errorf("dsp: length mismatch %d != %d", a, b)
}

func errShort(n, want int) error {
	return fmt.Errorf("dsp: need at least %d samples, got %d", want, n)
}
