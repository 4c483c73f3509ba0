package dfu

import (
	"errors"
	"testing"

	"github.com/stlink-tool/stlink-tool/internal/dfuerr"
	"github.com/stlink-tool/stlink-tool/internal/transport"
)

func TestGetStatusParses(t *testing.T) {
	dev := &mockDevice{}
	dev.queueIn([]byte{StatusOK, 0x0A, 0x00, 0x00, StateDfuDNBUSY, 0x00}, nil)
	c := New(dev, 1, 2, nil)

	st, err := c.GetStatus()
	if err != nil {
		t.Fatalf("getstatus: %v", err)
	}
	if st.StatusCode != StatusOK || st.PollTimeoutMs != 10 || st.StateCode != StateDfuDNBUSY {
		t.Fatalf("unexpected status: %+v", st)
	}
}

func TestDownloadSmallBlockStaysPlaintext(t *testing.T) {
	dev := &mockDevice{}
	dev.queueIn([]byte{StatusOK, 0, 0, 0, StateDfuDNBUSY, 0}, nil)
	dev.queueIn([]byte{StatusOK, 0, 0, 0, StateDfuDNLOAD_IDLE, 0}, nil)
	c := New(dev, 1, 2, nil)

	data := []byte{0x21, 1, 2, 3, 4}
	if err := c.Download(data, 0, nil); err != nil {
		t.Fatalf("download: %v", err)
	}
	// outs[0] is the command packet, outs[1] is the payload itself.
	if len(dev.outs) != 4 {
		t.Fatalf("expected 4 sent packets (command, payload, two GETSTATUS polls), got %d", len(dev.outs))
	}
	if string(dev.outs[1]) != string(data) {
		t.Fatalf("block 0 payload was not sent in the clear: got % x want % x", dev.outs[1], data)
	}
}

func TestDownloadEncryptsBlockTwoAndAbove(t *testing.T) {
	dev := &mockDevice{}
	dev.queueIn([]byte{StatusOK, 0, 0, 0, StateDfuDNBUSY, 0}, nil)
	dev.queueIn([]byte{StatusOK, 0, 0, 0, StateDfuDNLOAD_IDLE, 0}, nil)
	c := New(dev, 1, 2, nil)

	key := [16]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
	data := make([]byte, 16)
	for i := range data {
		data[i] = byte(i)
	}
	if err := c.Download(data, 2, &key); err != nil {
		t.Fatalf("download: %v", err)
	}
	if string(dev.outs[1]) == string(data) {
		t.Fatalf("block >= 2 payload was sent unencrypted")
	}
}

func TestDownloadMapsVendorError(t *testing.T) {
	dev := &mockDevice{}
	dev.queueIn([]byte{StatusErrVENDOR, 0, 0, 0, StateDfuERROR, 0}, nil)
	c := New(dev, 1, 2, nil)

	err := c.Download([]byte{0x41, 0, 0, 0, 0}, 0, nil)
	var perr *dfuerr.ProtocolError
	if !errors.As(err, &perr) || perr.Kind != dfuerr.ReadOnlyProtection {
		t.Fatalf("expected ReadOnlyProtection protocol error, got %v", err)
	}
}

func TestRecoverIfErrorClearsOnlyWhenInError(t *testing.T) {
	dev := &mockDevice{}
	dev.queueIn([]byte{StatusOK, 0, 0, 0, StateDfuIDLE, 0}, nil)
	c := New(dev, 1, 2, nil)
	if err := c.RecoverIfError(); err != nil {
		t.Fatalf("recover: %v", err)
	}
	if len(dev.outs) != 1 {
		t.Fatalf("expected no CLRSTATUS sent when not in error, got %d sends", len(dev.outs))
	}
}

func TestRawExchangeMapsStall(t *testing.T) {
	dev := &mockDevice{}
	dev.queueIn(nil, transport.ErrStall)
	c := New(dev, 1, 2, nil)

	_, err := c.RawExchange(0xF3, []byte{0x09, 0x40, 0x00}, 0x40)
	if !errors.Is(err, ErrStall) {
		t.Fatalf("expected ErrStall, got %v", err)
	}
}
