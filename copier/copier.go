// Package copier implements bidirectional block-sized streaming between
// a card file and a flash area, with erase-before-write and 0xFF tail
// padding. It is the only component that touches both storage
// substrates at once.
package copier

import (
	"io"

	"github.com/sdupdate-project/sdupdate/flashsim"
	"github.com/sdupdate-project/sdupdate/sdkerrors"
)

// ChunkSize is the fixed transfer unit used by both directions, matching
// the device's write-block size. A stack-sized buffer this small is
// deliberate: the core never allocates a buffer scaled to image size.
const ChunkSize = 256

// Backup copies the full contents of slot into dest, in ChunkSize
// pieces. The caller is responsible for the "unlink any pre-existing
// destination file first" idempotent-reset policy — dest here is
// always a freshly (re)created, empty, positioned-at-0 file.
func Backup(slot flashsim.Area, dest io.Writer) error {
	var buf [ChunkSize]byte
	remaining := slot.Size()
	offset := int64(0)
	for remaining > 0 {
		n := int64(ChunkSize)
		if remaining < n {
			n = remaining
		}
		if err := slot.Read(offset, buf[:n]); err != nil {
			return sdkerrors.Wrap(sdkerrors.KindFlashRead, err, "backup read failed at offset %d", offset)
		}
		written, err := dest.Write(buf[:n])
		if err != nil {
			return sdkerrors.Wrap(sdkerrors.KindIoError, err, "backup write failed at offset %d", offset)
		}
		if int64(written) != n {
			return sdkerrors.New(sdkerrors.KindShortWrite, "backup short write at offset %d: wrote %d of %d", offset, written, n)
		}
		offset += n
		remaining -= n
	}
	return nil
}

// Restore writes the contents of source (positioned at 0) back into
// slot. It is write_image with the candidate stream
// replaced by the backup file — the same erase-then-stream procedure.
func Restore(source io.Reader, slot flashsim.Area) error {
	return WriteImage(source, slot)
}

// WriteImage erases slot, then streams source into it in ChunkSize
// pieces. The final short read (if any) is padded to a full chunk
// with 0xFF before being written, so every flash write stays
// block-aligned. Exactly one short read terminates the loop — a
// full-chunk read always implies more data may follow.
func WriteImage(source io.Reader, slot flashsim.Area) error {
	if err := slot.Erase(0, slot.Size()); err != nil {
		return sdkerrors.Wrap(sdkerrors.KindFlashErase, err, "failed to erase slot before write")
	}

	var buf [ChunkSize]byte
	offset := int64(0)
	for {
		n, err := io.ReadFull(source, buf[:])
		if n > 0 {
			if n < ChunkSize {
				for i := n; i < ChunkSize; i++ {
					buf[i] = 0xFF
				}
			}
			if offset+ChunkSize > slot.Size() {
				return sdkerrors.New(sdkerrors.KindFlashWrite,
					"candidate image does not fit in slot: write at offset %d exceeds slot size %d", offset, slot.Size())
			}
			if werr := slot.Write(offset, buf[:]); werr != nil {
				return sdkerrors.Wrap(sdkerrors.KindFlashWrite, werr, "flash write failed at offset %d", offset)
			}
			offset += ChunkSize
		}

		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil
		}
		if err != nil {
			return sdkerrors.Wrap(sdkerrors.KindStreamRead, err, "source read failed at offset %d", offset)
		}
		// n == ChunkSize with no error: a full chunk, more data may follow.
	}
}
