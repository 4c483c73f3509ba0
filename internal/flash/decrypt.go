package flash

import "github.com/stlink-tool/stlink-tool/internal/cipher"

// DefaultDecryptKey is the literal the reference tool falls back to when
// the user asks for decryption without naming a key (§9: carried by
// value, never shared with the firmware key derived per-adapter).
var DefaultDecryptKey = cipher.Key([]byte("best performance"))

// Decrypt returns a copy of data with each 0xC00-byte chunk decrypted
// independently. The final chunk is usually shorter than 0xC00 and is not
// necessarily a multiple of the cipher's block size; cipher.DecryptBytes
// already tolerates that short tail.
func Decrypt(key [cipher.KeySize]byte, data []byte) []byte {
	out := append([]byte(nil), data...)
	for i := 0; i < len(out); i += decryptChunkSize {
		end := i + decryptChunkSize
		if end > len(out) {
			end = len(out)
		}
		cipher.DecryptBytes(key, out[i:end])
	}
	return out
}

// PadToBlock appends 0xFF bytes until data's length is a multiple of the
// cipher block size, the padding byte the reference bootloader treats as
// unprogrammed flash.
func PadToBlock(data []byte) []byte {
	rem := len(data) % cipher.BlockSize
	if rem == 0 {
		return data
	}
	pad := cipher.BlockSize - rem
	out := make([]byte, len(data)+pad)
	copy(out, data)
	for i := len(data); i < len(out); i++ {
		out[i] = 0xFF
	}
	return out
}
