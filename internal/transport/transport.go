// Package transport defines the narrow surface the DFU core needs from a
// USB link. Nothing above this package knows whether the bytes travel over
// a raw Linux usbfs node, a libusb handle, or a mock in a test: it only
// calls these methods.
package transport

import (
	"errors"
	"time"
)

// Timeout is the fixed transfer timeout mandated for every bulk and
// control transfer against a bootloader-mode adapter.
const Timeout = 5000 * time.Millisecond

// ErrStall reports that an endpoint responded with a protocol stall
// (EPIPE), the signal a bootloader uses to say "this command doesn't
// exist on this firmware" rather than returning a normal error status.
var ErrStall = errors.New("endpoint stalled")

// Device is the per-handle surface the DFU core drives. Every method is
// blocking; there is no concurrent use of a single Device.
type Device interface {
	// BulkOut writes data to the given OUT endpoint, returning the number
	// of bytes actually written.
	BulkOut(ep byte, data []byte, timeout time.Duration) (int, error)
	// BulkIn reads up to maxLen bytes from the given IN endpoint.
	BulkIn(ep byte, maxLen int, timeout time.Duration) ([]byte, error)
	// Control issues a USB control transfer. data is filled by the device
	// on an IN transfer and read from on an OUT transfer, per bmRequestType.
	Control(bmRequestType, bRequest byte, wValue, wIndex uint16, data []byte, timeout time.Duration) (int, error)
	// Claim claims the given interface for exclusive access.
	Claim(iface int) error
	// Release releases a previously claimed interface.
	Release(iface int) error
	// Close releases the underlying OS handle. Safe to call once per Device.
	Close() error
}

// Candidate describes one enumerated, not-yet-opened USB device.
type Candidate struct {
	VendorID  uint16
	ProductID uint16

	// Open claims the underlying OS resource and returns a ready Device.
	Open func() (Device, error)
}

// Enumerator discovers USB devices currently attached to the host.
type Enumerator interface {
	Enumerate() ([]Candidate, error)
}
