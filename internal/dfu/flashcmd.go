package dfu

import "encoding/binary"

// flashCommand sends a flash sub-command as the payload of a block-0
// DNLOAD, which always travels in the clear (§4.3 step 2).
func (c *Client) flashCommand(payload []byte) error {
	return c.Download(payload, 0, nil)
}

// SetAddressPointer issues the SET_ADDRESS_POINTER flash sub-command.
func (c *Client) SetAddressPointer(addr uint32) error {
	payload := make([]byte, 5)
	payload[0] = FlashSetAddressPointer
	binary.LittleEndian.PutUint32(payload[1:], addr)
	return c.flashCommand(payload)
}

// Erase issues the ERASE (page) flash sub-command at addr.
func (c *Client) Erase(addr uint32) error {
	payload := make([]byte, 5)
	payload[0] = FlashErase
	binary.LittleEndian.PutUint32(payload[1:], addr)
	return c.flashCommand(payload)
}

// EraseSector issues the ERASE_SECTOR flash sub-command for the given
// sector index (0-7 on the V3 bootloader's 8-sector table). The sector
// index occupies the same single low byte of the 5-byte flash command as
// an address does for ERASE/SET_ADDRESS_POINTER; the upper 3 bytes are
// zero, not the rest of an address.
func (c *Client) EraseSector(sector uint8) error {
	payload := []byte{FlashEraseSector, sector, 0, 0, 0}
	return c.flashCommand(payload)
}
