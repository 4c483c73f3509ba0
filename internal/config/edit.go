package config

import "fmt"

// FieldEdit is one field's requested action in an EditIntent.
type FieldEdit struct {
	Action Action
	Value  interface{} // uint16, string, or byte depending on the field; unused for Remove
}

// EditIntent carries the user's requested changes to the on-flash sector,
// expressed as --X / --rm_X CLI flag pairs. It is kept as a type distinct
// from Record, never folded into it: the on-flash sector has its own
// 64-byte index space, and session-only identity fields (adapter type,
// firmware version) that share the same CLI surface must never be mistaken
// for sector offsets by code that walks a Record.
type EditIntent struct {
	USBCurrent FieldEdit
	MSDVolume  FieldEdit
	MbedName   FieldEdit
	DFUOptions FieldEdit
	DynamicOpt FieldEdit
	MCOOutput  FieldEdit
	StartupPref FieldEdit
}

// NewEditIntent returns an EditIntent with every field defaulted to Copy,
// i.e. a no-op edit that round-trips the device's current record unchanged.
func NewEditIntent() EditIntent {
	return EditIntent{
		USBCurrent:  FieldEdit{Action: Copy},
		MSDVolume:   FieldEdit{Action: Copy},
		MbedName:    FieldEdit{Action: Copy},
		DFUOptions:  FieldEdit{Action: Copy},
		DynamicOpt:  FieldEdit{Action: Copy},
		MCOOutput:   FieldEdit{Action: Copy},
		StartupPref: FieldEdit{Action: Copy},
	}
}

// IsNoop reports whether every field in the intent is Copy, meaning Apply
// would produce a buffer identical to the source record's raw bytes.
func (e EditIntent) IsNoop() bool {
	return e.USBCurrent.Action == Copy &&
		e.MSDVolume.Action == Copy &&
		e.MbedName.Action == Copy &&
		e.DFUOptions.Action == Copy &&
		e.DynamicOpt.Action == Copy &&
		e.MCOOutput.Action == Copy &&
		e.StartupPref.Action == Copy
}

// Apply produces the 64-byte buffer to write back to the device, starting
// from cur's raw bytes and overlaying each field per the intent's action:
// Copy leaves the field's current bytes untouched, Add writes the new
// value with its sentinel, Remove clears the field (sentinel and value)
// to 0xFF. A string value longer than its field is truncated to fit,
// never rejected.
func Apply(cur Record, intent EditIntent) ([Size]byte, error) {
	out := cur.Raw

	if err := applyUint16Field(&out, offUSBCurrentSentinel, offUSBCurrentValue, 1, 'P', intent.USBCurrent, scaleUSBCurrent); err != nil {
		return out, fmt.Errorf("usb_current: %w", err)
	}
	if err := applyStringField(&out, offMSDSentinel, offMSDVolume, msdVolumeLen, 'V', ' ', intent.MSDVolume); err != nil {
		return out, fmt.Errorf("msd_volume: %w", err)
	}
	if err := applyStringField(&out, offMbedSentinel, offMbedName, mbedNameLen, 'B', 0xFF, intent.MbedName); err != nil {
		return out, fmt.Errorf("mbed_name: %w", err)
	}
	if err := applyByteField(&out, offDFUOptSentinel, offDFUOptValue, 'F', intent.DFUOptions); err != nil {
		return out, fmt.Errorf("dfu_options: %w", err)
	}
	if err := applyByteField(&out, offDynOptSentinel, offDynOptValue, 'D', intent.DynamicOpt); err != nil {
		return out, fmt.Errorf("dynamic_option: %w", err)
	}
	if err := applyByteField(&out, offMCOSentinel, offMCOValue, 'O', intent.MCOOutput); err != nil {
		return out, fmt.Errorf("mco_output: %w", err)
	}
	if err := applyByteField(&out, offStartupSentinel, offStartupValue, 'C', intent.StartupPref); err != nil {
		return out, fmt.Errorf("startup_pref: %w", err)
	}
	return out, nil
}

func scaleUSBCurrent(v uint16) byte { return byte(v / 2) }

func applyUint16Field(out *[Size]byte, sentinelOff, valueOff int, valueLen int, sentinel byte, f FieldEdit, scale func(uint16) byte) error {
	switch f.Action {
	case Copy:
		return nil
	case Remove:
		out[sentinelOff] = 0xFF
		out[valueOff] = 0xFF
		return nil
	case Add:
		v, ok := f.Value.(uint16)
		if !ok {
			return fmt.Errorf("expected uint16 value, got %T", f.Value)
		}
		out[sentinelOff] = sentinel
		out[valueOff] = scale(v)
		return nil
	default:
		return fmt.Errorf("unknown action %d", f.Action)
	}
}

func applyByteField(out *[Size]byte, sentinelOff, valueOff int, sentinel byte, f FieldEdit) error {
	switch f.Action {
	case Copy:
		return nil
	case Remove:
		out[sentinelOff] = 0xFF
		out[valueOff] = 0xFF
		return nil
	case Add:
		v, ok := f.Value.(byte)
		if !ok {
			return fmt.Errorf("expected byte value, got %T", f.Value)
		}
		out[sentinelOff] = sentinel
		out[valueOff] = v
		return nil
	default:
		return fmt.Errorf("unknown action %d", f.Action)
	}
}

func applyStringField(out *[Size]byte, sentinelOff, valueOff, fieldLen int, sentinel byte, pad byte, f FieldEdit) error {
	switch f.Action {
	case Copy:
		return nil
	case Remove:
		out[sentinelOff] = 0xFF
		for i := 0; i < fieldLen; i++ {
			out[valueOff+i] = 0xFF
		}
		return nil
	case Add:
		s, ok := f.Value.(string)
		if !ok {
			return fmt.Errorf("expected string value, got %T", f.Value)
		}
		if len(s) > fieldLen {
			s = s[:fieldLen]
		}
		out[sentinelOff] = sentinel
		copy(out[valueOff:valueOff+fieldLen], s)
		for i := len(s); i < fieldLen; i++ {
			out[valueOff+i] = pad
		}
		return nil
	default:
		return fmt.Errorf("unknown action %d", f.Action)
	}
}
