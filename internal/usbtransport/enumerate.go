package usbtransport

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/stlink-tool/stlink-tool/internal/transport"
)

const sysfsDeviceDir = "/sys/bus/usb/devices"

func readSysfsAttrString(devName, attrName string) (string, error) {
	fileName := fmt.Sprintf("%s/%s/%s", sysfsDeviceDir, devName, attrName)
	data, err := os.ReadFile(fileName)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func readSysfsAttrInt(devName, attrName string, base int) (int64, error) {
	s, err := readSysfsAttrString(devName, attrName)
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(s, base, 64)
}

// Enumerator discovers candidate USB devices by walking sysfs, the way the
// reference library's EnumerateDevices/FindDevices split description from
// opening: every entry is described cheaply from sysfs text attributes and
// only Open()ed (which claims a real usbfs file descriptor) on demand.
type Enumerator struct{}

// Enumerate implements transport.Enumerator.
func (Enumerator) Enumerate() ([]transport.Candidate, error) {
	dirs, err := os.ReadDir(sysfsDeviceDir)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", sysfsDeviceDir, err)
	}

	res := make([]transport.Candidate, 0, len(dirs))
	for _, dir := range dirs {
		name := dir.Name()
		// Skip usb root hubs ("usb1") and interface sub-nodes ("1-2:1.0").
		if strings.HasPrefix(name, "usb") || strings.Contains(name, ":") {
			continue
		}
		vendor, err := readSysfsAttrInt(name, "idVendor", 16)
		if err != nil {
			continue
		}
		product, err := readSysfsAttrInt(name, "idProduct", 16)
		if err != nil {
			continue
		}
		busNum, err := readSysfsAttrInt(name, "busnum", 10)
		if err != nil {
			continue
		}
		devNum, err := readSysfsAttrInt(name, "devnum", 10)
		if err != nil {
			continue
		}
		bus, dev := int(busNum), int(devNum)
		res = append(res, transport.Candidate{
			VendorID:  uint16(vendor),
			ProductID: uint16(product),
			Open: func() (transport.Device, error) {
				return Open(bus, dev)
			},
		})
	}
	return res, nil
}
