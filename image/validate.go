package image

import (
	"crypto/subtle"
	"io"

	"github.com/sdupdate-project/sdupdate/sdkerrors"
)

// Validate recomputes the digest over stream, locates the SHA-256 TLV in
// the unprotected block, and compares the two with a length-fixed
// comparison. The image is valid (nil returned) iff the header magic
// already checked out (the caller is expected to have called ReadHeader
// first), the SHA-256 TLV exists with length 32, and its value matches
// the computed digest byte-for-byte.
//
// On return (success or failure) the stream's file position is left
// unspecified; callers must seek before further reads.
func Validate(stream io.ReadSeeker, hdr Header) error {
	computed, err := ComputeDigest(stream, hdr)
	if err != nil {
		return err
	}

	it, err := BeginTlvIteration(stream, hdr)
	if err != nil {
		return err
	}

	for {
		rec, ok, err := it.Next()
		if err != nil {
			return err
		}
		if !ok {
			return sdkerrors.New(sdkerrors.KindMissingDigest,
				"unprotected TLV block contains no SHA-256 TLV")
		}
		if rec.Type != Sha256TlvType {
			continue
		}

		if rec.Length != Sha256Len {
			return sdkerrors.New(sdkerrors.KindBadTlvLength,
				"SHA-256 TLV has length %d, want %d", rec.Length, Sha256Len)
		}

		if _, err := stream.Seek(rec.Offset, io.SeekStart); err != nil {
			return sdkerrors.Wrap(sdkerrors.KindIoError, err, "seek to SHA-256 TLV value failed")
		}

		embedded := make([]byte, Sha256Len)
		if _, err := io.ReadFull(stream, embedded); err != nil {
			return sdkerrors.Wrap(sdkerrors.KindShortRead, err, "SHA-256 TLV value truncated")
		}

		if subtle.ConstantTimeCompare(embedded, computed[:]) != 1 {
			return sdkerrors.New(sdkerrors.KindDigestMismatch,
				"embedded SHA-256 does not match computed digest")
		}

		return nil
	}
}
