// Package usbtransport implements transport.Device and transport.Enumerator
// on top of Linux's usbfs (/dev/bus/usb and /sys/bus/usb/devices), the way
// the reference USB library this tool is built on talks to raw device
// nodes: open a bus/device file descriptor and drive it with ioctls, no
// libusb or cgo involved.
package usbtransport

import (
	"errors"
	"fmt"
	"syscall"
	"time"

	"github.com/stlink-tool/stlink-tool/internal/transport"
	"github.com/stlink-tool/stlink-tool/internal/usbfs"
)

// Device is a usbfs-backed transport.Device.
type Device struct {
	fd int
}

// Open opens the usbfs node for the given bus/device address.
func Open(busNumber, deviceNumber int) (*Device, error) {
	fd, err := usbfs.OpenDevice(busNumber, deviceNumber)
	if err != nil {
		return nil, fmt.Errorf("open usb device %d/%d: %w", busNumber, deviceNumber, err)
	}
	return &Device{fd: fd}, nil
}

func msTimeout(d time.Duration) uint32 {
	return uint32(d.Milliseconds())
}

// BulkOut implements transport.Device.
func (d *Device) BulkOut(ep byte, data []byte, timeout time.Duration) (int, error) {
	return usbfs.BulkTransfer(d.fd, uint32(ep)&0xFF, msTimeout(timeout), data)
}

// BulkIn implements transport.Device.
func (d *Device) BulkIn(ep byte, maxLen int, timeout time.Duration) ([]byte, error) {
	buf := make([]byte, maxLen)
	n, err := usbfs.BulkTransfer(d.fd, (uint32(ep)&0xFF)|0x80, msTimeout(timeout), buf)
	if err != nil {
		if errors.Is(err, syscall.EPIPE) {
			return nil, transport.ErrStall
		}
		return nil, err
	}
	return buf[:n], nil
}

// Control implements transport.Device.
func (d *Device) Control(bmRequestType, bRequest byte, wValue, wIndex uint16, data []byte, timeout time.Duration) (int, error) {
	return usbfs.ControlTransfer(d.fd, bmRequestType, bRequest, wValue, wIndex, msTimeout(timeout), data)
}

// Claim implements transport.Device. A kernel driver already bound to
// the interface (the ST-Link CDC driver, most commonly) is detached
// first, the way libusb's own claim-with-detach behaves, rather than
// failing claim outright.
func (d *Device) Claim(iface int) error {
	driver, err := usbfs.GetDriver(d.fd, uint32(iface))
	if err == nil && driver != "" {
		if err := usbfs.Disconnect(d.fd, uint32(iface)); err != nil {
			return fmt.Errorf("detach kernel driver %q from interface %d: %w", driver, iface, err)
		}
	}
	return usbfs.ClaimInterface(d.fd, iface)
}

// Release implements transport.Device.
func (d *Device) Release(iface int) error {
	return usbfs.ReleaseInterface(d.fd, iface)
}

// Close implements transport.Device.
func (d *Device) Close() error {
	fd := d.fd
	d.fd = -1
	return syscall.Close(fd)
}
