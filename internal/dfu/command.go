// Package dfu implements the vendor DFU command layer: 16-byte command
// framing, the encrypted DNLOAD sequence, and status/state polling. It
// depends only on transport.Device and internal/cipher — it knows nothing
// about flash addresses, configuration sectors, or CLI flags.
package dfu

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/stlink-tool/stlink-tool/internal/cipher"
	"github.com/stlink-tool/stlink-tool/internal/dfuerr"
	"github.com/stlink-tool/stlink-tool/internal/transport"
)

// Command packet magics (offset 0).
const (
	MagicDFU   byte = 0xF3
	MagicInfo  byte = 0xF1
	MagicMode  byte = 0xF9
	MagicState byte = 0xF5
)

// DFU sub-commands (offset 1), carried by MagicDFU packets.
const (
	SubDNLOAD    byte = 0x01
	SubUPLOAD    byte = 0x02
	SubGETSTATUS byte = 0x03
	SubCLRSTATUS byte = 0x04
	SubGETSTATE  byte = 0x05
	SubABORT     byte = 0x06
	SubEXIT      byte = 0x07
)

// Flash sub-commands, carried as the payload of block-0 DNLOADs.
const (
	FlashGET                byte = 0x00
	FlashSetAddressPointer  byte = 0x21
	FlashErase              byte = 0x41
	FlashEraseSector        byte = 0x42
	FlashReadUnprotect      byte = 0x92
)

// DFU status codes (§8 errUNKNOWN table from the adapter's own error enum).
const (
	StatusOK         byte = 0x00
	StatusErrTARGET  byte = 0x01
	StatusErrVENDOR  byte = 0x0B
)

// DFU state codes.
const (
	StateAppIDLE             byte = 0
	StateAppDETACH           byte = 1
	StateDfuIDLE             byte = 2
	StateDfuDNLOAD_SYNC      byte = 3
	StateDfuDNBUSY           byte = 4
	StateDfuDNLOAD_IDLE      byte = 5
	StateDfuMANIFEST_SYNC    byte = 6
	StateDfuMANIFEST         byte = 7
	StateDfuMANIFEST_WAIT_RS byte = 8
	StateDfuUPLOAD_IDLE      byte = 9
	StateDfuERROR            byte = 10
)

// Timeout is the fixed 5000ms transfer timeout mandated by §4.2.
const Timeout = transport.Timeout

// PacketSize is the fixed size of every command packet.
const PacketSize = 16

// Status is the parsed response of a GETSTATUS command.
type Status struct {
	StatusCode     uint8
	PollTimeoutMs  uint32 // 24-bit on the wire
	StateCode      uint8
	StringIndex    uint8
}

// Client drives the 16-byte command protocol over one transport.Device. It
// does not own the device's lifetime; callers Claim/Release and Close it.
type Client struct {
	Dev        transport.Device
	EndpointIn  byte
	EndpointOut byte
	Log         *logrus.Entry
}

// New builds a Client. log may be nil, in which case wire tracing is
// discarded.
func New(dev transport.Device, epIn, epOut byte, log *logrus.Entry) *Client {
	if log == nil {
		log = logrus.NewEntry(logrus.New())
		log.Logger.SetOutput(discard{})
	}
	return &Client{Dev: dev, EndpointIn: epIn, EndpointOut: epOut, Log: log}
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

// buildPacket constructs the fixed 16-byte command packet described in
// §4.3: magic, sub-command, wValue/wIndex/wLength little-endian, zero pad.
func buildPacket(magic, sub byte, wValue, wIndex, wLength uint16) [PacketSize]byte {
	var pkt [PacketSize]byte
	pkt[0] = magic
	pkt[1] = sub
	binary.LittleEndian.PutUint16(pkt[2:4], wValue)
	binary.LittleEndian.PutUint16(pkt[4:6], wIndex)
	binary.LittleEndian.PutUint16(pkt[6:8], wLength)
	return pkt
}

func sumBytes(data []byte) uint16 {
	var sum uint16
	for _, b := range data {
		sum += uint16(b)
	}
	return sum
}

// sendCommand writes a 16-byte command packet to the OUT endpoint.
func (c *Client) sendCommand(pkt [PacketSize]byte) error {
	c.Log.WithField("packet", fmt.Sprintf("% x", pkt)).Debug("send command")
	n, err := c.Dev.BulkOut(c.EndpointOut, pkt[:], Timeout)
	if err != nil {
		return &dfuerr.TransportError{Op: "send command", Err: err}
	}
	if n != PacketSize {
		return &dfuerr.TransportError{Op: "send command", Err: fmt.Errorf("short write: %d/%d", n, PacketSize)}
	}
	return nil
}

// sendPayload writes a data payload to the OUT endpoint.
func (c *Client) sendPayload(data []byte) error {
	c.Log.WithField("len", len(data)).Debug("send payload")
	n, err := c.Dev.BulkOut(c.EndpointOut, data, Timeout)
	if err != nil {
		return &dfuerr.TransportError{Op: "send payload", Err: err}
	}
	if n != len(data) {
		return &dfuerr.TransportError{Op: "send payload", Err: fmt.Errorf("short write: %d/%d", n, len(data))}
	}
	return nil
}

// recv reads up to maxLen bytes from the IN endpoint.
func (c *Client) recv(maxLen int) ([]byte, error) {
	buf, err := c.Dev.BulkIn(c.EndpointIn, maxLen, Timeout)
	if err != nil {
		return nil, &dfuerr.TransportError{Op: "recv", Err: err}
	}
	c.Log.WithField("data", fmt.Sprintf("% x", buf)).Debug("recv")
	return buf, nil
}

// GetStatus issues GETSTATUS and parses the 6-byte response.
func (c *Client) GetStatus() (Status, error) {
	pkt := buildPacket(MagicDFU, SubGETSTATUS, 0, 0, 6)
	if err := c.sendCommand(pkt); err != nil {
		return Status{}, err
	}
	data, err := c.recv(6)
	if err != nil {
		return Status{}, err
	}
	if len(data) < 6 {
		return Status{}, &dfuerr.TransportError{Op: "getstatus", Err: fmt.Errorf("short read: %d", len(data))}
	}
	poll := uint32(data[1]) | uint32(data[2])<<8 | uint32(data[3])<<16
	return Status{
		StatusCode:    data[0],
		PollTimeoutMs: poll,
		StateCode:     data[4],
		StringIndex:   data[5],
	}, nil
}

// GetState issues GETSTATE and parses the 2-byte response, returning the
// state code.
func (c *Client) GetState() (byte, error) {
	pkt := buildPacket(MagicDFU, SubGETSTATE, 0, 0, 2)
	if err := c.sendCommand(pkt); err != nil {
		return 0, err
	}
	data, err := c.recv(2)
	if err != nil {
		return 0, err
	}
	if len(data) < 1 {
		return 0, &dfuerr.TransportError{Op: "getstate", Err: fmt.Errorf("short read")}
	}
	return data[0], nil
}

// ClearStatus issues CLRSTATUS, the required recovery step before retrying
// a DNLOAD against a probe left in dfuERROR.
func (c *Client) ClearStatus() error {
	pkt := buildPacket(MagicDFU, SubCLRSTATUS, 0, 0, 0)
	return c.sendCommand(pkt)
}

// Abort issues ABORT.
func (c *Client) Abort() error {
	pkt := buildPacket(MagicDFU, SubABORT, 0, 0, 0)
	return c.sendCommand(pkt)
}

// Exit issues EXIT, restarting the adapter into application mode.
func (c *Client) Exit() error {
	pkt := buildPacket(MagicDFU, SubEXIT, 0, 0, 0)
	return c.sendCommand(pkt)
}

// mapStatusError maps a failing status code to the §7 ProtocolError kind.
func mapStatusError(op string, status Status) error {
	switch status.StatusCode {
	case StatusErrVENDOR:
		return &dfuerr.ProtocolError{Kind: dfuerr.ReadOnlyProtection, Code: status.StatusCode, Op: op}
	case StatusErrTARGET:
		return &dfuerr.ProtocolError{Kind: dfuerr.InvalidAddress, Code: status.StatusCode, Op: op}
	default:
		return &dfuerr.ProtocolError{Kind: dfuerr.UnknownDfu, Code: status.StatusCode, Op: op}
	}
}

// Download performs the full DNLOAD sequence of §4.3 for one chunk:
// build the command (wValue=blockNum, wIndex=sum(data)%65536,
// wLength=len(data)), encrypt the payload in place when blockNum >= 2,
// send command then payload, poll status twice with the mandated sleep
// between polls, and classify any deviation as a protocol error.
//
// firmwareKey is nil for block 0 and 1, which always travel in the clear.
func (c *Client) Download(data []byte, blockNum uint16, firmwareKey *[16]byte) error {
	payload := data
	if blockNum >= 2 {
		if firmwareKey == nil {
			return fmt.Errorf("dfu: block %d requires a firmware key", blockNum)
		}
		payload = append([]byte(nil), data...)
		cipher.EncryptBytes(*firmwareKey, payload)
	}

	pkt := buildPacket(MagicDFU, SubDNLOAD, blockNum, sumBytes(data), uint16(len(payload)))
	if err := c.sendCommand(pkt); err != nil {
		return err
	}
	if err := c.sendPayload(payload); err != nil {
		return err
	}

	status, err := c.GetStatus()
	if err != nil {
		return err
	}
	if status.StateCode != StateDfuDNBUSY || status.StatusCode != StatusOK {
		return mapStatusError("dfu_download", status)
	}

	time.Sleep(time.Duration(status.PollTimeoutMs) * time.Millisecond)

	status, err = c.GetStatus()
	if err != nil {
		return err
	}
	if status.StateCode != StateDfuDNLOAD_IDLE {
		return mapStatusError("dfu_download", status)
	}
	return nil
}

// RecoverIfError clears a probe left in dfuERROR, the required recovery
// step (§4.3) before the next DNLOAD.
func (c *Client) RecoverIfError() error {
	status, err := c.GetStatus()
	if err != nil {
		return err
	}
	if status.StateCode == StateDfuERROR {
		return c.ClearStatus()
	}
	return nil
}
