package image

import (
	"crypto/sha256"
	"io"

	"github.com/sdupdate-project/sdupdate/sdkerrors"
)

// DigestChunkSize bounds the read buffer used while streaming the digest
// domain through SHA-256. Any fixed bound >= 1 preserves semantics; 256
// matches the bootloader's own stack-allocated chunk buffer so the two
// code paths (digest, slot copy) exercise identically sized I/O.
const DigestChunkSize = 256

// ComputeDigest seeks to offset 0 and streams
// header_size+image_size+protected_tlv_size bytes of stream through
// SHA-256, in chunks of at most DigestChunkSize. It fails with
// KindShortRead if the stream yields fewer bytes than requested before
// the total is reached.
func ComputeDigest(stream io.ReadSeeker, hdr Header) ([Sha256Len]byte, error) {
	var out [Sha256Len]byte

	if _, err := stream.Seek(0, io.SeekStart); err != nil {
		return out, sdkerrors.Wrap(sdkerrors.KindIoError, err, "seek to digest domain start failed")
	}

	h := sha256.New()
	buf := make([]byte, DigestChunkSize)

	remaining := hdr.DigestDomain()
	for remaining > 0 {
		want := int64(DigestChunkSize)
		if remaining < want {
			want = remaining
		}

		n, err := io.ReadFull(stream, buf[:want])
		if err != nil {
			return out, sdkerrors.Wrap(sdkerrors.KindShortRead, err,
				"digest domain truncated: %d bytes remaining", remaining)
		}

		h.Write(buf[:n])
		remaining -= int64(n)
	}

	copy(out[:], h.Sum(nil))
	return out, nil
}
