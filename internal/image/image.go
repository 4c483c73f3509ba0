// Package image loads a firmware file from disk, decrypts it a chunk at a
// time when asked, and pads it to the flash layer's block size. Decryption
// always runs against the image's original (unpadded) size; the 0xFF
// padding is appended afterward and is never itself decrypted.
package image

import (
	"fmt"
	"os"

	"github.com/stlink-tool/stlink-tool/internal/dfuerr"
	"github.com/stlink-tool/stlink-tool/internal/flash"
)

// Image is a loaded firmware file ready for a flash.Write call.
type Image struct {
	Path         string
	OriginalSize int
	Data         []byte
}

// Load reads path whole, rejecting an empty file. It does not pad or
// decrypt; call Decrypt and then Pad as needed before handing Data to
// flash.Write.
func Load(path string) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &dfuerr.ImageError{Path: path, Err: err}
	}
	if len(data) == 0 {
		return nil, &dfuerr.ImageError{Path: path, Err: fmt.Errorf("firmware file is empty")}
	}
	return &Image{Path: path, OriginalSize: len(data), Data: data}, nil
}

// Decrypt replaces Data with its decrypted form, operating only over the
// image's original size (Data must not already be padded). No key is
// chosen here; a caller wanting the default key passes
// flash.DefaultDecryptKey.
func (img *Image) Decrypt(key [16]byte) {
	img.Data = flash.Decrypt(key, img.Data)
}

// SaveDecrypted writes the current (decrypted, not yet padded) contents
// alongside the source file as "<path>.dec", the sidecar the reference
// tool's --save_dec flag produces.
func (img *Image) SaveDecrypted() (string, error) {
	decPath := img.Path + ".dec"
	if err := os.WriteFile(decPath, img.Data[:img.OriginalSize], 0o644); err != nil {
		return "", &dfuerr.ImageError{Path: decPath, Err: err}
	}
	return decPath, nil
}

// Pad appends 0xFF bytes so Data is a multiple of the cipher's block
// size, the form flash.Write expects.
func (img *Image) Pad() {
	img.Data = flash.PadToBlock(img.Data)
}
