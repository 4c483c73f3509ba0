package dfu

import (
	"errors"
	"fmt"

	"github.com/stlink-tool/stlink-tool/internal/transport"
)

// ErrStall reports that the adapter's IN endpoint stalled in
// response to a probe, the signal stlink_read_info tolerates from older
// bootloaders that don't implement the "get device config" or "get
// hardware version" commands.
var ErrStall = transport.ErrStall

// RawExchange sends a single 16-byte packet (magic followed by params,
// zero-padded) and reads back up to readLen bytes. It is used by the
// identity probes (INFO, MAGIC, mode), which address raw command bytes
// directly rather than through the wValue/wIndex/wLength DNLOAD framing.
func (c *Client) RawExchange(magic byte, params []byte, readLen int) ([]byte, error) {
	if len(params) > PacketSize-1 {
		return nil, fmt.Errorf("dfu: params too long for one packet")
	}
	var pkt [PacketSize]byte
	pkt[0] = magic
	copy(pkt[1:], params)

	if err := c.sendCommand(pkt); err != nil {
		return nil, err
	}
	data, err := c.recv(readLen)
	if err != nil {
		if errors.Is(err, transport.ErrStall) {
			return nil, ErrStall
		}
		return nil, err
	}
	return data, nil
}

// ModeTrigger sends the 0xF9 mode-switch command an application-mode
// adapter uses to hand control to its bootloader. With trigger false this
// is a probe: it writes the command then reads back 2 bytes, packed as
// data[0]<<8|data[1], which the caller checks against 0x8000 before
// trusting the adapter to actually switch. With trigger true it sets the
// DFU_DNLOAD flag in the command and does not read a response, since the
// adapter re-enumerates into its bootloader immediately afterward.
func (c *Client) ModeTrigger(trigger bool) (uint16, error) {
	var pkt [PacketSize]byte
	pkt[0] = MagicMode
	if trigger {
		pkt[1] = SubDNLOAD
	}
	if err := c.sendCommand(pkt); err != nil {
		return 0, err
	}
	if trigger {
		return 0, nil
	}
	data, err := c.recv(2)
	if err != nil {
		return 0, err
	}
	if len(data) < 2 {
		return 0, fmt.Errorf("dfu: short mode-trigger response")
	}
	return uint16(data[0])<<8 | uint16(data[1]), nil
}
