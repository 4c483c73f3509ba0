// Package dfuerr defines the error kinds the rest of this module returns,
// so callers can use errors.As instead of matching error strings. It has
// no dependencies beyond the standard library: an error-kind taxonomy has
// nothing for a third-party package to do (see DESIGN.md).
package dfuerr

import "fmt"

// TransportError wraps a failure from the USB transport layer. It is
// fatal for the operation in progress.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError reports a DFU state/status mismatch.
type ProtocolError struct {
	Kind ProtocolErrorKind
	Code uint8
	Op   string
}

// ProtocolErrorKind enumerates the §7 protocol error sub-kinds.
type ProtocolErrorKind int

const (
	// ReadOnlyProtection corresponds to the device reporting errVENDOR.
	ReadOnlyProtection ProtocolErrorKind = iota
	// InvalidAddress corresponds to the device reporting errTARGET.
	InvalidAddress
	// UnknownDfu wraps any other reported status code.
	UnknownDfu
)

func (e *ProtocolError) Error() string {
	switch e.Kind {
	case ReadOnlyProtection:
		return fmt.Sprintf("%s: read-only protection active", e.Op)
	case InvalidAddress:
		return fmt.Sprintf("%s: invalid address", e.Op)
	default:
		return fmt.Sprintf("%s: unknown DFU error(%d)", e.Op, e.Code)
	}
}

// ImageError reports a firmware image file problem: missing, empty, or
// unreadable.
type ImageError struct {
	Path string
	Err  error
}

func (e *ImageError) Error() string {
	return fmt.Sprintf("image %q: %v", e.Path, e.Err)
}

func (e *ImageError) Unwrap() error { return e.Err }

// ConfigError reports invalid user-supplied configuration input, rejected
// at CLI parse time before anything reaches the DFU layer.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config field %q: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// NotFound reports that no adapter was found within the bounded re-scan
// loop of probe.Find.
type NotFound struct{}

func (e *NotFound) Error() string {
	return "no bootloader-mode adapter found"
}

// NotReady reports that an application-mode adapter's firmware does not
// support switching to bootloader mode. The reference tool treats this
// as an unrecoverable but silent condition: it exits successfully
// without flashing or writing configuration.
type NotReady struct{}

func (e *NotReady) Error() string {
	return "application firmware does not support switching to bootloader mode"
}
