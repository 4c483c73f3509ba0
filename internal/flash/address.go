// Package flash drives firmware programming and configuration-sector
// writes against an identified adapter: base-address selection by
// bootloader generation, the chunked erase/write loop, and the six-step
// config area sequence. It depends on internal/dfu, internal/cipher,
// internal/config, and internal/identity.
package flash

import "github.com/stlink-tool/stlink-tool/internal/identity"

const (
	chunkSize = 2 << 10 // 2048 bytes per write, per §4.6
	decryptChunkSize = 0xC00
)

// sectorTable is the V3 bootloader's 8-entry flash sector layout.
var sectorTable = [8]uint32{
	0x08000000, 0x08004000, 0x08008000, 0x0800C000,
	0x08010000, 0x08020000, 0x08040000, 0x08060000,
}

// baseAddress returns the firmware image's flash base address for the
// adapter's bootloader generation. Only V3 differs from V2/V2.1.
func baseAddress(gen identity.Generation) uint32 {
	if gen == identity.GenV3 {
		return 0x08020000
	}
	return 0x08004000
}

// sectorForAddress returns the index of the V3 sector that starts at addr,
// or -1 if addr is not the start address of any sector in this table.
func sectorForAddress(addr uint32) int {
	for i, start := range sectorTable {
		if start == addr {
			return i
		}
	}
	return -1
}

// sizeGateBytes computes the maximum firmware image size this adapter
// will accept, in bytes: the effective flash size less 1KB, less 16KB,
// less any vendor-reserved flash (ReservedFlashKB).
func sizeGateBytes(info identity.AdapterInfo) uint32 {
	kb := info.EffectiveFlashSizeKB - 1 - 16 - info.ReservedFlashKB
	if kb < 0 {
		return 0
	}
	return uint32(kb) * 1024
}

// firmwareExistsAddress returns the address of the last 16-byte slot of
// effective flash, where the firmware-exists marker is written.
func firmwareExistsAddress(info identity.AdapterInfo) uint32 {
	kb := info.EffectiveFlashSizeKB
	return 0x08000000 | ((uint32(kb) << 10) - 16)
}
