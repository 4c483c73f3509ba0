package image

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stlink-tool/stlink-tool/internal/cipher"
	"github.com/stlink-tool/stlink-tool/internal/flash"
)

func TestLoadRejectsEmptyFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.bin")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected an error for an empty firmware file")
	}
}

func TestLoadReadsWholeFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fw.bin")
	want := []byte{1, 2, 3, 4, 5}
	if err := os.WriteFile(path, want, 0o644); err != nil {
		t.Fatal(err)
	}
	img, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if img.OriginalSize != len(want) {
		t.Fatalf("original size: got %d want %d", img.OriginalSize, len(want))
	}
	if string(img.Data) != string(want) {
		t.Fatalf("data mismatch")
	}
}

// TestDecryptThenPadMatchesOriginalSizeGate checks S4: decrypting runs
// over the image's original length, and padding happens only afterward.
func TestDecryptThenPadMatchesOriginalSizeGate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fw.bin")
	plain := make([]byte, 40)
	for i := range plain {
		plain[i] = byte(i)
	}
	key := flash.DefaultDecryptKey
	enc := append([]byte(nil), plain...)
	cipher.EncryptBytes(key, enc[:32]) // leave the last 8 bytes as a short tail
	if err := os.WriteFile(path, enc, 0o644); err != nil {
		t.Fatal(err)
	}

	img, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	img.Decrypt(key)
	if string(img.Data) != string(plain) {
		t.Fatalf("decrypted data does not match original plaintext")
	}
	img.Pad()
	if len(img.Data)%16 != 0 {
		t.Fatalf("padded length %d not block aligned", len(img.Data))
	}
}

func TestSaveDecryptedWritesSidecar(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fw.bin")
	if err := os.WriteFile(path, []byte{1, 2, 3}, 0o644); err != nil {
		t.Fatal(err)
	}
	img, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	decPath, err := img.SaveDecrypted()
	if err != nil {
		t.Fatalf("save decrypted: %v", err)
	}
	if decPath != path+".dec" {
		t.Fatalf("unexpected sidecar path: %s", decPath)
	}
	got, err := os.ReadFile(decPath)
	if err != nil {
		t.Fatalf("read sidecar: %v", err)
	}
	if string(got) != "\x01\x02\x03" {
		t.Fatalf("sidecar contents mismatch: % x", got)
	}
}
