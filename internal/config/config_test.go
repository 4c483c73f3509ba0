package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func blankSector() [Size]byte {
	var b [Size]byte
	for i := range b {
		b[i] = 0xFF
	}
	return b
}

func TestParseEmptySector(t *testing.T) {
	r := Parse(blankSector())
	assert.False(t, r.HasUSBCurrent)
	assert.False(t, r.HasMSDVolume)
	assert.False(t, r.HasMbedName)
	assert.False(t, r.HasDFUOptions)
	assert.False(t, r.HasDynamicOption)
	assert.False(t, r.HasMCOOutput)
	assert.False(t, r.HasStartupPref)
}

func TestParsePopulatedFields(t *testing.T) {
	buf := blankSector()
	buf[offUSBCurrentSentinel] = 'P'
	buf[offUSBCurrentValue] = 250 // -> 500mA
	buf[offMSDSentinel] = 'V'
	copy(buf[offMSDVolume:], "NUCLEO     ")
	buf[offMbedSentinel] = 'B'
	copy(buf[offMbedName:], "ABCD")
	buf[offDFUOptSentinel] = 'F'
	buf[offDFUOptValue] = DFUOptAutostart
	buf[offDynOptSentinel] = 'D'
	buf[offDynOptValue] = DynamicMSDOn
	buf[offMCOSentinel] = 'O'
	buf[offMCOValue] = MCOHSE
	buf[offStartupSentinel] = 'C'
	buf[offStartupValue] = StartupBalanced

	r := Parse(buf)
	assert.True(t, r.HasUSBCurrent)
	assert.EqualValues(t, 500, r.USBCurrentMA)
	assert.True(t, r.HasMSDVolume)
	assert.Equal(t, "NUCLEO", r.MSDVolume)
	assert.True(t, r.HasMbedName)
	assert.Equal(t, "ABCD", r.MbedName)
	assert.True(t, r.HasDFUOptions)
	assert.Equal(t, byte(DFUOptAutostart), r.DFUOptions)
	assert.True(t, r.HasDynamicOption)
	assert.Equal(t, byte(DynamicMSDOn), r.DynamicOption)
	assert.True(t, r.HasMCOOutput)
	assert.Equal(t, byte(MCOHSE), r.MCOOutput)
	assert.True(t, r.HasStartupPref)
	assert.Equal(t, byte(StartupBalanced), r.StartupPref)
}

// TestApplyNoopPreservesBytes checks property 3: applying an all-Copy
// intent to a parsed record reproduces the original raw bytes exactly.
func TestApplyNoopPreservesBytes(t *testing.T) {
	buf := blankSector()
	buf[offUSBCurrentSentinel] = 'P'
	buf[offUSBCurrentValue] = 100
	buf[offMSDSentinel] = 'V'
	copy(buf[offMSDVolume:], "VOL        ")

	r := Parse(buf)
	out, err := Apply(r, NewEditIntent())
	require.NoError(t, err)
	assert.Equal(t, buf, out)
}

// TestApplyAddThenRemove checks property 4: composing an Add followed by a
// Remove for the same field yields a fully-cleared field, independent of
// what Add wrote.
func TestApplyAddThenRemove(t *testing.T) {
	r := Parse(blankSector())
	intent := NewEditIntent()
	intent.MbedName = FieldEdit{Action: Add, Value: "WXYZ"}

	mid, err := Apply(r, intent)
	require.NoError(t, err)
	midRecord := Parse(mid)
	require.True(t, midRecord.HasMbedName)
	assert.Equal(t, "WXYZ", midRecord.MbedName)

	removeIntent := NewEditIntent()
	removeIntent.MbedName = FieldEdit{Action: Remove}
	final, err := Apply(midRecord, removeIntent)
	require.NoError(t, err)
	finalRecord := Parse(final)
	assert.False(t, finalRecord.HasMbedName)
	assert.Equal(t, byte(0xFF), final[offMbedSentinel])
	assert.Equal(t, byte(0xFF), final[offMbedName])
}

func TestApplyAddWritesSentinelAndValue(t *testing.T) {
	r := Parse(blankSector())
	intent := NewEditIntent()
	intent.DynamicOpt = FieldEdit{Action: Add, Value: byte(DynamicMSDOff)}

	out, err := Apply(r, intent)
	require.NoError(t, err)
	assert.Equal(t, byte('D'), out[offDynOptSentinel])
	assert.Equal(t, byte(DynamicMSDOff), out[offDynOptValue])
}

// TestApplyTruncatesOversizedString checks that a string value longer
// than its field is truncated to fit rather than rejected.
func TestApplyTruncatesOversizedString(t *testing.T) {
	r := Parse(blankSector())
	intent := NewEditIntent()
	intent.MbedName = FieldEdit{Action: Add, Value: "TOOLONG"}
	out, err := Apply(r, intent)
	require.NoError(t, err)
	record := Parse(out)
	assert.True(t, record.HasMbedName)
	assert.Equal(t, "TOOLONG"[:mbedNameLen], record.MbedName)
}

func TestIsNoop(t *testing.T) {
	intent := NewEditIntent()
	assert.True(t, intent.IsNoop())
	intent.USBCurrent = FieldEdit{Action: Remove}
	assert.False(t, intent.IsNoop())
}
