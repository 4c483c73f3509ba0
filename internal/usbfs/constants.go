// Package usbfs is a thin translation of Linux's usbdevice_fs.h ioctl
// surface. It knows nothing about DFU, STLink, or any particular device;
// it only knows how to talk to /dev/bus/usb/BBB/DDD nodes.
package usbfs

const (
	usbDevPath = "/dev/bus/usb"
)

const (
	nUSBDEVFS_MAXDRIVERNAME = 255
)
