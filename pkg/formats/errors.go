package formats

import (
	"errors"
	"fmt"
)

// Format error kinds. A *FormatError always wraps exactly one of these.
var (
	ErrBadMagic           = errors.New("bad magic")
	ErrUnsupportedVersion = errors.New("unsupported version")
	ErrUnknownVariant     = errors.New("unknown variant")
	ErrTruncated          = errors.New("truncated data")
)

// ErrOutOfRange is returned by Reader when fewer bytes remain than a read needs.
var ErrOutOfRange = errors.New("read out of range")

// RangeError describes a Reader underrun.
type RangeError struct {
	Offset int // cursor position of the failed read
	Need   int // bytes requested
	Remain int // bytes available
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("read of %d bytes at offset %d with %d remaining", e.Need, e.Offset, e.Remain)
}

// Unwrap makes errors.Is(err, ErrOutOfRange) hold.
func (e *RangeError) Unwrap() error { return ErrOutOfRange }

// FormatError reports a decode failure. Decoding never returns partial data
// together with a FormatError.
type FormatError struct {
	Format  string // "pmx" or "vmd"
	Section string // section being decoded
	Offset  int    // byte offset where decoding stopped
	Err     error  // one of the kind sentinels above
	Cause   error  // underlying reader error, if any
}

func (e *FormatError) Error() string {
	msg := fmt.Sprintf("%s: %s: %v at offset %d", e.Format, e.Section, e.Err, e.Offset)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *FormatError) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Err, e.Cause}
	}
	return []error{e.Err}
}
