package flash

import (
	"fmt"

	"github.com/stlink-tool/stlink-tool/internal/dfu"
	"github.com/stlink-tool/stlink-tool/internal/identity"
)

// ErrImageTooLarge reports that a firmware image exceeds the adapter's
// usable flash and the caller did not opt to continue anyway.
type ErrImageTooLarge struct {
	ImageBytes int
	LimitBytes uint32
}

func (e *ErrImageTooLarge) Error() string {
	return fmt.Sprintf("firmware image is %d bytes, adapter accepts at most %d", e.ImageBytes, e.LimitBytes)
}

// CheckSize reports ErrImageTooLarge if the unpadded image exceeds the
// adapter's usable flash. Callers that want to proceed anyway (the
// reference tool's interactive y/n prompt) can ignore this error.
func CheckSize(info identity.AdapterInfo, imageLen int) error {
	limit := sizeGateBytes(info)
	if uint32(imageLen) > limit {
		return &ErrImageTooLarge{ImageBytes: imageLen, LimitBytes: limit}
	}
	return nil
}

// Progress reports chunk-level progress during Write.
type Progress struct {
	Address      uint32
	WrittenBytes int
	TotalBytes   int
}

// Write programs a block-16-padded firmware image starting at the
// adapter's bootloader base address, 2KB at a time. V2/V2.1 adapters
// erase a page before every chunk; V3 adapters erase a sector only when a
// chunk starts at one of sectorTable's addresses, and otherwise use DNLOAD
// block 3 in place of block 2 to signal "no erase happened" to the
// bootloader.
func Write(c *dfu.Client, info identity.AdapterInfo, data []byte, onProgress func(Progress)) error {
	base := baseAddress(info.Generation)
	total := len(data)

	for written := 0; written < total; {
		addr := base + uint32(written)
		cur := chunkSize
		if written+cur > total {
			cur = total - written
		}

		blockNum := uint16(2)
		if info.Generation == identity.GenV3 {
			if sector := sectorForAddress(addr); sector >= 0 {
				if err := c.EraseSector(uint8(sector)); err != nil {
					return fmt.Errorf("flash: erase sector %d: %w", sector, err)
				}
			} else {
				blockNum = 3
			}
		} else {
			if err := c.Erase(addr); err != nil {
				return fmt.Errorf("flash: erase 0x%08X: %w", addr, err)
			}
		}

		if err := c.SetAddressPointer(addr); err != nil {
			return fmt.Errorf("flash: set address 0x%08X: %w", addr, err)
		}
		if err := c.Download(data[written:written+cur], blockNum, &info.FirmwareKey); err != nil {
			return fmt.Errorf("flash: download at 0x%08X: %w", addr, err)
		}

		written += cur
		if onProgress != nil {
			onProgress(Progress{Address: addr, WrittenBytes: written, TotalBytes: total})
		}
	}
	return nil
}

// abortIfError is a convenience wrapper used before the config-area
// sequence, which shares the same DNBUSY/DNLOAD_IDLE contract as image
// writes and so can be left mid-sequence by a prior failed attempt.
func abortIfError(c *dfu.Client) error {
	return c.RecoverIfError()
}
