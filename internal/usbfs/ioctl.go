package usbfs

// From /usr/include/linux/usbdevice_fs.h

import (
	ioctl "github.com/daedaluz/goioctl"
	"strings"
	"unsafe"
)

var (
	ctl_usbdevfs_control          = ioctl.IOWR('U', 0, unsafe.Sizeof(usbdevfs_ctrltransfer{}))
	ctl_usbdevfs_bulk             = ioctl.IOWR('U', 2, unsafe.Sizeof(usbdevfs_bulktransfer{}))
	ctl_usbdevfs_getdriver        = ioctl.IOW('U', 8, unsafe.Sizeof(usbdevfs_getdriver{}))
	ctl_usbdevfs_claiminterface   = ioctl.IOR('U', 15, unsafe.Sizeof(uint32(0)))
	ctl_usbdevfs_releaseinterface = ioctl.IOR('U', 16, unsafe.Sizeof(uint32(0)))
	ctl_usbdevfs_ioctl            = ioctl.IOWR('U', 18, unsafe.Sizeof(usbdevfs_ioctl{}))
	ctl_usbdevfs_disconnect       = ioctl.IO('U', 22)
)

type (
	usbdevfs_ctrltransfer struct {
		RequestType uint8
		Request     uint8
		Value       uint16
		Index       uint16
		Length      uint16
		Timeout     uint32
		Data        uintptr
	}
	usbdevfs_bulktransfer struct {
		Endpoint uint32
		Length   uint32
		Timeout  uint32
		Data     uintptr
	}

	usbdevfs_getdriver struct {
		Interface uint32
		Driver    [nUSBDEVFS_MAXDRIVERNAME + 1]byte
	}

	usbdevfs_ioctl struct {
		Interface int32
		IoctlCode int32
		Data      uintptr
	}
)

func (d *usbdevfs_getdriver) String() string {
	buff := strings.Builder{}
	for _, x := range d.Driver {
		if x == 0 {
			break
		}
		buff.WriteByte(x)
	}
	return buff.String()
}

func slicePtr(s []byte) uintptr {
	if len(s) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&s[0]))
}
