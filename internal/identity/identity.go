// Package identity reads an adapter's identity: its firmware version,
// bootloader generation, chip id, derived keys, and embedded configuration
// sector. It depends on the dfu command layer and internal/config, and
// produces the AdapterInfo that every later operation plans against.
package identity

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/stlink-tool/stlink-tool/internal/cipher"
	"github.com/stlink-tool/stlink-tool/internal/config"
	"github.com/stlink-tool/stlink-tool/internal/dfu"
)

// Generation identifies which bootloader family an adapter runs, which in
// turn selects its flash base address and erase granularity (§4.6).
type Generation int

const (
	GenV2 Generation = iota
	GenV2_1
	GenV3
)

func (g Generation) String() string {
	switch g {
	case GenV2:
		return "V2"
	case GenV2_1:
		return "V2.1"
	case GenV3:
		return "V3"
	default:
		return "unknown"
	}
}

// AdapterInfo is everything identified about a probe before an operation
// plans its work (§3).
type AdapterInfo struct {
	SoftwareVersion uint16
	BootloaderPID   uint16
	Mode            byte
	Generation      Generation

	ChipID [12]byte

	FirmwareKey [16]byte
	AntiCloneTag [16]byte

	ReportedFlashSizeKB int
	EffectiveFlashSizeKB int
	ReservedFlashKB     int

	HardwareVersionKnown bool
	HardwareVersion      uint32
	HardwareMinor        byte
	HardwareMajor        byte

	StLinkType byte

	Config config.Record

	// ModeMismatch records the §9 (res & 0xfffc) check: the adapter
	// answered a mode probe with bits set outside the known mode range.
	// The reference tool still prints the full identity banner in this
	// case and exits successfully, performing no flash or config write,
	// rather than treating it as a hard failure.
	ModeMismatch bool
}

// CurrentMode issues the 0xF5 GETSTATE-style mode probe and returns the
// raw two-byte result packed as (data[0]<<8 | data[1]). Only when data[0]
// is 0 does it also refresh *mode. Callers that need the bitmask check of
// §9 (res & 0xfffc) apply it to this return value, unchanged.
func CurrentMode(c *dfu.Client, mode *byte) (uint16, error) {
	data, err := c.RawExchange(0xF5, nil, 2)
	if err != nil {
		return 0, err
	}
	if len(data) < 2 {
		return 0, fmt.Errorf("identity: short mode response")
	}
	if data[0] == 0 {
		*mode = data[1]
	}
	return uint16(data[0])<<8 | uint16(data[1]), nil
}

// Read performs the full stlink_read_info sequence: software version and
// bootloader PID (INFO/0x80), chip id and derived keys (MAGIC/0x08), mode
// (state probe), then on mode > 1 the optional config sector (MAGIC/0x09)
// and hardware version (MAGIC/0x0A), both of which tolerate a stall. A
// mode probe outside the known range sets ModeMismatch rather than
// failing Read: the caller still gets a fully populated AdapterInfo to
// print before deciding not to flash or write configuration.
func Read(c *dfu.Client) (AdapterInfo, error) {
	var info AdapterInfo

	verData, err := c.RawExchange(0xF1, []byte{0x80}, 6)
	if err != nil {
		return info, err
	}
	if len(verData) < 6 {
		return info, fmt.Errorf("identity: short info response")
	}
	info.SoftwareVersion = binary.BigEndian.Uint16(verData[0:2])
	info.BootloaderPID = uint16(verData[5])<<8 | uint16(verData[4])

	idData, err := c.RawExchange(0xF3, []byte{0x08}, 20)
	if err != nil {
		return info, err
	}
	if len(idData) < 20 {
		return info, fmt.Errorf("identity: short magic response")
	}
	info.ReportedFlashSizeKB = int(idData[1])<<8 | int(idData[0])
	info.EffectiveFlashSizeKB = info.ReportedFlashSizeKB
	info.StLinkType = idData[4]
	copy(info.ChipID[:], idData[8:20])

	var mode byte
	rawMode, err := CurrentMode(c, &mode)
	if err != nil {
		return info, err
	}
	info.Mode = mode
	info.ModeMismatch = rawMode&0xfffc != 0

	switch {
	case mode <= 1:
		info.Generation = GenV2
	case mode == 2:
		info.Generation = GenV2_1
	default:
		info.Generation = GenV3
	}

	info.FirmwareKey = deriveKey("I am key, wawawa", idData)
	info.AntiCloneTag = deriveKey("What are you doing", idData)

	if mode > 1 {
		cfgData, err := c.RawExchange(0xF3, []byte{0x09, 0x40, 0x00}, 0x40)
		switch {
		case err == nil:
			var raw [config.Size]byte
			copy(raw[:], cfgData)
			info.Config = config.Parse(raw)
		case errors.Is(err, dfu.ErrStall):
			// Bootloader predates the "get device config" command.
		default:
			return info, err
		}

		hwData, err := c.RawExchange(0xF3, []byte{0x0A}, 16)
		switch {
		case err == nil && len(hwData) >= 4:
			info.HardwareVersionKnown = true
			info.HardwareVersion = binary.LittleEndian.Uint32(hwData[0:4])
			flags := info.HardwareVersion & 0x00FFFFFF
			info.HardwareMinor = byte((info.HardwareVersion >> 24) & 0xF)
			info.HardwareMajor = byte((info.HardwareVersion >> 28) & 0xF)
			if flags&0x000001 != 0 {
				info.EffectiveFlashSizeKB = 128
			}
			if flags&0x000002 != 0 {
				info.ReservedFlashKB = 20
			}
		case errors.Is(err, dfu.ErrStall):
			// Bootloader predates the "get hardware version" command.
		default:
			return info, err
		}
	}

	return info, nil
}

// deriveKey builds a 16-byte key from a chip id buffer the way
// stlink_read_info does: 4 bytes at offset 0 followed by 12 bytes at
// offset 8, encrypted in place with the named literal key.
func deriveKey(literal string, idData []byte) [16]byte {
	var block [16]byte
	copy(block[0:4], idData[0:4])
	copy(block[4:16], idData[8:20])
	return cipher.Encrypt(cipher.Key([]byte(literal)), block)
}
