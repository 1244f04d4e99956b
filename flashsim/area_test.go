package flashsim_test

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/sdupdate-project/sdupdate/flashsim"
	"github.com/sdupdate-project/sdupdate/sdkerrors"
)

func TestOpenFileAreaRejectsUnalignedSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flash.bin")
	_, err := flashsim.OpenFileArea(path, 100, 256)
	if err == nil {
		t.Fatalf("expected error for size not a multiple of write block size")
	}
}

func TestEraseFillsWithFF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flash.bin")
	a, err := flashsim.OpenFileArea(path, 1024, 256)
	if err != nil {
		t.Fatalf("OpenFileArea: %v", err)
	}
	defer a.Close()

	if err := a.Erase(0, 1024); err != nil {
		t.Fatalf("Erase: %v", err)
	}

	buf := make([]byte, 1024)
	if err := a.Read(0, buf); err != nil {
		t.Fatalf("Read: %v", err)
	}
	want := bytes.Repeat([]byte{0xFF}, 1024)
	if !bytes.Equal(buf, want) {
		t.Fatalf("erased area is not all 0xFF")
	}
}

func TestWriteRequiresBlockAlignment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flash.bin")
	a, err := flashsim.OpenFileArea(path, 1024, 256)
	if err != nil {
		t.Fatalf("OpenFileArea: %v", err)
	}
	defer a.Close()

	err = a.Write(10, make([]byte, 256))
	if sdkerrors.KindOf(err) != sdkerrors.KindFlashWrite {
		t.Fatalf("got %v, want KindFlashWrite for unaligned offset", err)
	}

	err = a.Write(0, make([]byte, 10))
	if sdkerrors.KindOf(err) != sdkerrors.KindFlashWrite {
		t.Fatalf("got %v, want KindFlashWrite for unaligned length", err)
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flash.bin")
	a, err := flashsim.OpenFileArea(path, 1024, 256)
	if err != nil {
		t.Fatalf("OpenFileArea: %v", err)
	}
	defer a.Close()

	if err := a.Erase(0, 1024); err != nil {
		t.Fatalf("Erase: %v", err)
	}

	payload := bytes.Repeat([]byte{0x42}, 256)
	if err := a.Write(256, payload); err != nil {
		t.Fatalf("Write: %v", err)
	}

	buf := make([]byte, 256)
	if err := a.Read(256, buf); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(buf, payload) {
		t.Fatalf("read back does not match what was written")
	}
}

func TestReadWriteOutOfBounds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flash.bin")
	a, err := flashsim.OpenFileArea(path, 256, 256)
	if err != nil {
		t.Fatalf("OpenFileArea: %v", err)
	}
	defer a.Close()

	if err := a.Read(0, make([]byte, 512)); sdkerrors.KindOf(err) != sdkerrors.KindFlashRead {
		t.Fatalf("got %v, want KindFlashRead for out-of-bounds read", err)
	}
	if err := a.Write(0, make([]byte, 512)); sdkerrors.KindOf(err) != sdkerrors.KindFlashWrite {
		t.Fatalf("got %v, want KindFlashWrite for out-of-bounds write", err)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flash.bin")
	a, err := flashsim.OpenFileArea(path, 256, 256)
	if err != nil {
		t.Fatalf("OpenFileArea: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
