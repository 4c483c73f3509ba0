package probe

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stlink-tool/stlink-tool/internal/dfuerr"
	"github.com/stlink-tool/stlink-tool/internal/identity"
	"github.com/stlink-tool/stlink-tool/internal/transport"
)

type ctrlCall struct {
	bmRequestType, bRequest byte
	wValue, wIndex          uint16
}

type mockDevice struct {
	ins       [][]byte
	errs      []error
	idx       int
	ctrlCalls []ctrlCall
	claimed   map[int]bool
}

func (m *mockDevice) queueIn(data []byte, err error) {
	m.ins = append(m.ins, data)
	m.errs = append(m.errs, err)
}

func (m *mockDevice) BulkOut(ep byte, data []byte, timeout time.Duration) (int, error) {
	return len(data), nil
}

func (m *mockDevice) BulkIn(ep byte, maxLen int, timeout time.Duration) ([]byte, error) {
	if m.idx >= len(m.ins) {
		return nil, fmt.Errorf("mock: no more queued reads")
	}
	data, err := m.ins[m.idx], m.errs[m.idx]
	m.idx++
	return data, err
}

func (m *mockDevice) Control(bmRequestType, bRequest byte, wValue, wIndex uint16, data []byte, timeout time.Duration) (int, error) {
	m.ctrlCalls = append(m.ctrlCalls, ctrlCall{bmRequestType, bRequest, wValue, wIndex})
	return len(data), nil
}

func (m *mockDevice) Claim(iface int) error {
	if m.claimed == nil {
		m.claimed = map[int]bool{}
	}
	m.claimed[iface] = true
	return nil
}
func (m *mockDevice) Release(iface int) error { return nil }
func (m *mockDevice) Close() error            { return nil }

func bootloaderCandidate(vid, pid uint16, dev *mockDevice) transport.Candidate {
	return transport.Candidate{
		VendorID:  vid,
		ProductID: pid,
		Open:      func() (transport.Device, error) { return dev, nil },
	}
}

// TestOpenBootloaderReadsIdentity checks that a direct-bootloader
// candidate (S1: probe-only) is claimed and fully identified in one pass.
func TestOpenBootloaderReadsIdentity(t *testing.T) {
	dev := &mockDevice{}
	dev.queueIn([]byte{0x01, 0x02, 0, 0, 0x48, 0x37}, nil) // INFO: sw version, bootloader PID 0x3748
	var idData [20]byte
	idData[4] = 0x41 // stlink type
	copy(idData[8:20], []byte("chipid123456"))
	dev.queueIn(idData[:], nil)
	dev.queueIn([]byte{0x00, 0x01}, nil) // mode probe: data[0]=0 (refresh), data[1]=1 -> GenV2

	cand := bootloaderCandidate(vendorST, pidV2Bootloader, dev)
	result, delay, err := tryCandidate(cand, nil)
	if err != nil {
		t.Fatalf("tryCandidate: %v", err)
	}
	if delay != 0 {
		t.Fatalf("expected no delay for a ready bootloader, got %v", delay)
	}
	if result == nil {
		t.Fatal("expected a result")
	}
	if result.Info.Generation != identity.GenV2 {
		t.Fatalf("expected GenV2, got %v", result.Info.Generation)
	}
	if result.Info.BootloaderPID != pidV2Bootloader {
		t.Fatalf("expected bootloader PID 0x%X, got 0x%X", pidV2Bootloader, result.Info.BootloaderPID)
	}
	if !dev.claimed[0] {
		t.Fatal("expected interface 0 to be claimed")
	}
}

// TestSwitchApplicationTriggersAndWaits checks the application-mode path:
// a probe returning exactly 0x8000 is followed by a trigger and a delay.
func TestSwitchApplicationTriggersAndWaits(t *testing.T) {
	dev := &mockDevice{}
	dev.queueIn([]byte{0x80, 0x00}, nil) // probe response packs to 0x8000

	cand := bootloaderCandidate(vendorST, pidV21, dev)
	result, delay, err := tryCandidate(cand, nil)
	if err != nil {
		t.Fatalf("tryCandidate: %v", err)
	}
	if result != nil {
		t.Fatal("expected no result, only a mode switch")
	}
	if delay != appModeSwitchDelay {
		t.Fatalf("expected appModeSwitchDelay, got %v", delay)
	}
}

// TestSwitchApplicationRejectsUnreadyProbe checks that a probe response
// other than exactly 0x8000 surfaces as dfuerr.NotReady, which the CLI
// maps to a silent, successful exit rather than a retry or a diagnostic.
func TestSwitchApplicationRejectsUnreadyProbe(t *testing.T) {
	dev := &mockDevice{}
	dev.queueIn([]byte{0x00, 0x01}, nil) // anything other than 0x8000

	cand := bootloaderCandidate(vendorST, pidV3, dev)
	_, _, err := tryCandidate(cand, nil)
	var notReady *dfuerr.NotReady
	if !errors.As(err, &notReady) {
		t.Fatalf("expected dfuerr.NotReady, got %v", err)
	}
}

// TestDetachBMPSendsClassControlTransfer checks the Black Magic Probe
// alternate-host path issues the expected DFU_DETACH parameters.
func TestDetachBMPSendsClassControlTransfer(t *testing.T) {
	dev := &mockDevice{}
	cand := bootloaderCandidate(vendorOpenMoko, pidBMPApplication, dev)

	result, delay, err := tryCandidate(cand, nil)
	if err != nil {
		t.Fatalf("tryCandidate: %v", err)
	}
	if result != nil {
		t.Fatal("expected no result, only a detach")
	}
	if delay != bmpSwitchDelay {
		t.Fatalf("expected bmpSwitchDelay, got %v", delay)
	}
	if len(dev.ctrlCalls) != 1 {
		t.Fatalf("expected one control transfer, got %d", len(dev.ctrlCalls))
	}
	call := dev.ctrlCalls[0]
	if call.wValue != 1000 || call.wIndex != bmpInterface {
		t.Fatalf("unexpected DFU_DETACH parameters: %+v", call)
	}
}

// TestFindReturnsNotFoundWhenNothingMatches checks the bounded rescan
// loop gives up with dfuerr.NotFound rather than hanging forever.
func TestFindReturnsNotFoundWhenNothingMatches(t *testing.T) {
	enum := enumeratorFunc(func() ([]transport.Candidate, error) {
		return nil, nil
	})
	_, err := Find(enum, nil)
	var notFound *dfuerr.NotFound
	if !errors.As(err, &notFound) {
		t.Fatalf("expected dfuerr.NotFound, got %v", err)
	}
}

type enumeratorFunc func() ([]transport.Candidate, error)

func (f enumeratorFunc) Enumerate() ([]transport.Candidate, error) { return f() }
