package usbfs

import (
	"fmt"
	"syscall"
	"unsafe"
)

// GetDriver returns the kernel driver currently bound to iface, if any.
// Claim uses this to decide whether a detach is needed before claiming.
func GetDriver(fd int, iface uint32) (string, error) {
	data := &usbdevfs_getdriver{Interface: iface}
	_, _, e := syscall.Syscall(syscall.SYS_IOCTL, uintptr(fd), ctl_usbdevfs_getdriver, uintptr(unsafe.Pointer(data)))
	if e == syscall.Errno(0) {
		return data.String(), nil
	}
	return "", e
}

// ClaimInterface claims an interface for exclusive access. It does not
// detach a kernel driver bound to the interface; Disconnect does that.
func ClaimInterface(fd, iface int) error {
	ifno := uint32(iface)
	_, _, e := syscall.Syscall(syscall.SYS_IOCTL, uintptr(fd), ctl_usbdevfs_claiminterface, uintptr(unsafe.Pointer(&ifno)))
	if e == syscall.Errno(0) {
		return nil
	}
	return e
}

// ReleaseInterface releases a previously claimed interface.
func ReleaseInterface(fd, iface int) error {
	ifno := uint32(iface)
	_, _, e := syscall.Syscall(syscall.SYS_IOCTL, uintptr(fd), ctl_usbdevfs_releaseinterface, uintptr(unsafe.Pointer(&ifno)))
	if e == syscall.Errno(0) {
		return nil
	}
	return e
}

// Disconnect detaches the kernel driver bound to iface (USBDEVFS_DISCONNECT).
// Claim calls this before claiming an interface a kernel driver already
// owns, instead of failing outright.
func Disconnect(fd int, iface uint32) error {
	data := usbdevfs_ioctl{Interface: int32(iface), IoctlCode: int32(ctl_usbdevfs_disconnect)}
	_, _, e := syscall.Syscall(syscall.SYS_IOCTL, uintptr(fd), ctl_usbdevfs_ioctl, uintptr(unsafe.Pointer(&data)))
	if e == syscall.Errno(0) {
		return nil
	}
	return e
}

// ControlTransfer issues a USB control transfer (USBDEVFS_CONTROL). payload
// is the data stage buffer: filled by the kernel for IN transfers, read by
// the kernel for OUT transfers. timeout is in milliseconds.
func ControlTransfer(fd int, typ, request uint8, value, index uint16, timeout uint32, payload []byte) (int, error) {
	data := &usbdevfs_ctrltransfer{
		RequestType: typ,
		Request:     request,
		Value:       value,
		Index:       index,
		Timeout:     timeout,
		Length:      uint16(len(payload)),
		Data:        slicePtr(payload),
	}
	x, _, e := syscall.Syscall(syscall.SYS_IOCTL, uintptr(fd), ctl_usbdevfs_control, uintptr(unsafe.Pointer(data)))
	if e == syscall.Errno(0) {
		return int(x), nil
	}
	return int(x), e
}

// BulkTransfer issues a USB bulk transfer (USBDEVFS_BULK) on endpoint.
// payload is the transfer buffer; its length is the requested transfer
// length. timeout is in milliseconds.
func BulkTransfer(fd int, endpoint uint32, timeout uint32, payload []byte) (int, error) {
	data := &usbdevfs_bulktransfer{
		Endpoint: endpoint,
		Timeout:  timeout,
		Length:   uint32(len(payload)),
		Data:     slicePtr(payload),
	}
	x, _, e := syscall.Syscall(syscall.SYS_IOCTL, uintptr(fd), ctl_usbdevfs_bulk, uintptr(unsafe.Pointer(data)))
	if e == syscall.Errno(0) {
		return int(x), nil
	}
	return int(x), e
}

// OpenDevice opens the device node for the given bus/device address.
func OpenDevice(busNumber, deviceNumber int) (int, error) {
	devPath := fmt.Sprintf("%s/%.3d/%.3d", usbDevPath, busNumber, deviceNumber)
	fd, err := syscall.Open(devPath, syscall.O_RDWR, 0)
	if err != nil {
		return -1, err
	}
	return fd, nil
}
