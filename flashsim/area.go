package flashsim

import (
	"io"
	"os"

	"github.com/sdupdate-project/sdupdate/sdkerrors"
)

// Area is the flash interface consumed by the copier and orchestrator:
// flash_area_open/_read/_erase/_write/_close, modeled as methods on an
// already-open handle.
type Area interface {
	// Size is the area's total byte length.
	Size() int64

	// Read copies len(buf) bytes starting at offset into buf.
	Read(offset int64, buf []byte) error

	// Erase sets every byte in [offset, offset+n) to 0xFF.
	Erase(offset, n int64) error

	// Write writes buf at offset. offset and len(buf) MUST both be
	// multiples of the area's write-block size.
	Write(offset int64, buf []byte) error

	// Close releases the underlying resource. Safe to call more than
	// once.
	Close() error
}

// FileArea is an Area backed by a plain host file of fixed size,
// standing in for on-chip flash in tests and the `sdupdate simulate` /
// `update` host tools.
type FileArea struct {
	f              *os.File
	size           int64
	writeBlockSize int64
	closed         bool
}

// OpenFileArea opens (creating if necessary) a file-backed flash area of
// exactly size bytes. writeBlockSize is the device's write-block
// granularity (conventionally 256); size must be a multiple of it.
func OpenFileArea(path string, size, writeBlockSize int64) (*FileArea, error) {
	if writeBlockSize <= 0 {
		return nil, sdkerrors.New(sdkerrors.KindFlashRead, "write block size must be positive")
	}
	if size%writeBlockSize != 0 {
		return nil, sdkerrors.New(sdkerrors.KindFlashRead,
			"area size %d is not a multiple of write block size %d", size, writeBlockSize)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, sdkerrors.Wrap(sdkerrors.KindFlashRead, err, "failed to open flash area backing file %s", path)
	}

	if err := f.Truncate(size); err != nil {
		f.Close()
		return nil, sdkerrors.Wrap(sdkerrors.KindFlashRead, err, "failed to size flash area backing file %s", path)
	}

	return &FileArea{f: f, size: size, writeBlockSize: writeBlockSize}, nil
}

func (a *FileArea) Size() int64 { return a.size }

func (a *FileArea) Read(offset int64, buf []byte) error {
	if offset < 0 || offset+int64(len(buf)) > a.size {
		return sdkerrors.New(sdkerrors.KindFlashRead, "read [%d,%d) out of bounds for area of size %d",
			offset, offset+int64(len(buf)), a.size)
	}
	if _, err := a.f.Seek(offset, io.SeekStart); err != nil {
		return sdkerrors.Wrap(sdkerrors.KindFlashRead, err, "seek failed")
	}
	if _, err := io.ReadFull(a.f, buf); err != nil {
		return sdkerrors.Wrap(sdkerrors.KindFlashRead, err, "flash read failed at offset %d", offset)
	}
	return nil
}

func (a *FileArea) Erase(offset, n int64) error {
	if offset < 0 || n < 0 || offset+n > a.size {
		return sdkerrors.New(sdkerrors.KindFlashErase, "erase [%d,%d) out of bounds for area of size %d",
			offset, offset+n, a.size)
	}

	erased := make([]byte, a.writeBlockSize)
	for i := range erased {
		erased[i] = 0xFF
	}

	if _, err := a.f.Seek(offset, io.SeekStart); err != nil {
		return sdkerrors.Wrap(sdkerrors.KindFlashErase, err, "seek failed")
	}

	remaining := n
	for remaining > 0 {
		chunk := a.writeBlockSize
		if remaining < chunk {
			chunk = remaining
		}
		if _, err := a.f.Write(erased[:chunk]); err != nil {
			return sdkerrors.Wrap(sdkerrors.KindFlashErase, err, "erase write failed at offset %d", offset+(n-remaining))
		}
		remaining -= chunk
	}
	return nil
}

func (a *FileArea) Write(offset int64, buf []byte) error {
	if offset%a.writeBlockSize != 0 || int64(len(buf))%a.writeBlockSize != 0 {
		return sdkerrors.New(sdkerrors.KindFlashWrite,
			"write at offset %d of %d bytes is not write-block aligned (block size %d)",
			offset, len(buf), a.writeBlockSize)
	}
	if offset < 0 || offset+int64(len(buf)) > a.size {
		return sdkerrors.New(sdkerrors.KindFlashWrite, "write [%d,%d) out of bounds for area of size %d",
			offset, offset+int64(len(buf)), a.size)
	}

	if _, err := a.f.Seek(offset, io.SeekStart); err != nil {
		return sdkerrors.Wrap(sdkerrors.KindFlashWrite, err, "seek failed")
	}
	if _, err := a.f.Write(buf); err != nil {
		return sdkerrors.Wrap(sdkerrors.KindFlashWrite, err, "flash write failed at offset %d", offset)
	}
	return nil
}

func (a *FileArea) Close() error {
	if a.closed {
		return nil
	}
	a.closed = true
	return a.f.Close()
}
