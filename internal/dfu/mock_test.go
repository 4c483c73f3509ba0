package dfu

import (
	"fmt"
	"time"
)

// mockDevice is a scripted transport.Device: each BulkIn call returns the
// next entry queued by the test, and every BulkOut call is just recorded.
type mockDevice struct {
	outs [][]byte
	ins  [][]byte
	errs []error
}

func (m *mockDevice) BulkOut(ep byte, data []byte, timeout time.Duration) (int, error) {
	cp := append([]byte(nil), data...)
	m.outs = append(m.outs, cp)
	return len(data), nil
}

func (m *mockDevice) BulkIn(ep byte, maxLen int, timeout time.Duration) ([]byte, error) {
	if len(m.ins) == 0 {
		return nil, fmt.Errorf("mock: no more queued reads")
	}
	data := m.ins[0]
	err := m.errs[0]
	m.ins = m.ins[1:]
	m.errs = m.errs[1:]
	if err != nil {
		return nil, err
	}
	if len(data) > maxLen {
		data = data[:maxLen]
	}
	return data, nil
}

func (m *mockDevice) Control(bmRequestType, bRequest byte, wValue, wIndex uint16, data []byte, timeout time.Duration) (int, error) {
	return len(data), nil
}

func (m *mockDevice) Claim(iface int) error   { return nil }
func (m *mockDevice) Release(iface int) error { return nil }
func (m *mockDevice) Close() error            { return nil }

func (m *mockDevice) queueIn(data []byte, err error) {
	m.ins = append(m.ins, data)
	m.errs = append(m.errs, err)
}
