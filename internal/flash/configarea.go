package flash

import (
	"encoding/binary"
	"fmt"

	"github.com/stlink-tool/stlink-tool/internal/config"
	"github.com/stlink-tool/stlink-tool/internal/dfu"
	"github.com/stlink-tool/stlink-tool/internal/identity"
)

const (
	addrConfigPage  = 0x08003C00
	addrAntiClone   = 0x08003C00
	addrSTType      = 0x08003C20
	addrDevConfig   = 0x08003C30
	addrSoftVersion = 0x08003FF0

	firmwareExistsMarker = 0xA50027D3
)

// WriteConfigArea performs the six-step sequence that commits the
// identity page: erase the config page, write the anti-clone tag, the
// adapter type byte, the merged on-flash config record, the software
// version, and finally the firmware-exists marker at the top of usable
// flash. Every write in this sequence travels at DNLOAD block 2, i.e.
// always encrypted with the adapter's firmware key.
func WriteConfigArea(c *dfu.Client, info identity.AdapterInfo, newConfig [config.Size]byte, stType byte, softVersion uint16) error {
	if err := abortIfError(c); err != nil {
		return err
	}
	if err := c.Erase(addrConfigPage); err != nil {
		return fmt.Errorf("flash: erase config page: %w", err)
	}
	if err := writeBlock2(c, info, addrAntiClone, info.AntiCloneTag[:]); err != nil {
		return fmt.Errorf("flash: write anti-clone tag: %w", err)
	}

	var typeBlock [16]byte
	for i := range typeBlock {
		typeBlock[i] = 0xFF
	}
	typeBlock[0] = stType
	if err := writeBlock2(c, info, addrSTType, typeBlock[:]); err != nil {
		return fmt.Errorf("flash: write stlink type: %w", err)
	}

	if err := writeBlock2(c, info, addrDevConfig, newConfig[:]); err != nil {
		return fmt.Errorf("flash: write device config: %w", err)
	}

	var verBlock [16]byte
	for i := range verBlock {
		verBlock[i] = 0xFF
	}
	binary.BigEndian.PutUint16(verBlock[14:16], softVersion)
	if err := writeBlock2(c, info, addrSoftVersion, verBlock[:]); err != nil {
		return fmt.Errorf("flash: write software version: %w", err)
	}

	existsAddr := firmwareExistsAddress(info)
	if err := c.Erase(existsAddr); err != nil {
		return fmt.Errorf("flash: erase firmware-exists page: %w", err)
	}
	var existsBlock [16]byte
	for i := range existsBlock {
		existsBlock[i] = 0xFF
	}
	binary.LittleEndian.PutUint32(existsBlock[12:16], firmwareExistsMarker)
	if err := writeBlock2(c, info, existsAddr, existsBlock[:]); err != nil {
		return fmt.Errorf("flash: write firmware-exists marker: %w", err)
	}

	return nil
}

func writeBlock2(c *dfu.Client, info identity.AdapterInfo, addr uint32, data []byte) error {
	if err := c.SetAddressPointer(addr); err != nil {
		return err
	}
	return c.Download(data, 2, &info.FirmwareKey)
}
