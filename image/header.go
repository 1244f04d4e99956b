// Package image implements the MCUboot-style image header and TLV
// trailer parser consumed by the update core: it walks a header + TLV
// trailer layout over a seekable stream without ever materializing the
// payload in memory, and computes/validates the embedded SHA-256
// integrity tag.
package image

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/sdupdate-project/sdupdate/sdkerrors"
)

const (
	// Magic is the fixed image-header magic (MCUboot IMAGE_MAGIC).
	Magic uint32 = 0x96f3b83d

	// MagicTlvProtected and MagicTlvUnprotected distinguish the two TLV
	// info-block variants (MCUboot IMAGE_TLV_PROT_INFO_MAGIC /
	// IMAGE_TLV_INFO_MAGIC).
	MagicTlvProtected   uint16 = 0x6908
	MagicTlvUnprotected uint16 = 0x6907

	// Sha256TlvType is the TLV record type carrying the embedded digest.
	Sha256TlvType uint16 = 0x10

	// Sha256Len is the required length of the SHA-256 TLV value.
	Sha256Len = 32

	// HeaderSize is the fixed byte length of the header region.
	HeaderSize = 32

	// tlvInfoSize is the byte length of a TLV info block header:
	// {magic u16, pad u16, total_size u32}.
	tlvInfoSize = 8

	// tlvRecordHeaderSize is the byte length of a TLV record header:
	// {type u16, length u16}.
	tlvRecordHeaderSize = 4
)

// Version is the image version carried in the header (not otherwise
// consulted by the update core; read past without interpretation).
type Version struct {
	Major    uint8
	Minor    uint8
	Revision uint16
	BuildNum uint32
}

// wireHeader mirrors the exact 32-byte on-disk layout.
type wireHeader struct {
	Magic            uint32
	LoadAddr         uint32
	HeaderSize       uint16
	ProtectedTlvSize uint16
	ImageSize        uint32
	Flags            uint32
	Version          Version
	_                uint32
}

// Header is the fixed-layout region at offset 0 of a candidate image.
// Fields not consulted by the update core (LoadAddr, Flags, Version) are
// kept for callers that want to display them, but the core never acts on
// them.
type Header struct {
	Magic            uint32
	LoadAddr         uint32
	HeaderSize       uint16
	ProtectedTlvSize uint16
	ImageSize        uint32
	Flags            uint32
	Version          Version
}

// DigestDomain returns the byte length of header||payload||protected-TLV,
// the range compute_digest streams.
func (h Header) DigestDomain() int64 {
	return int64(h.HeaderSize) + int64(h.ImageSize) + int64(h.ProtectedTlvSize)
}

// ReadHeader positions stream at offset 0, reads exactly HeaderSize
// bytes, and returns the parsed header. It fails with KindShortRead if
// the stream yields fewer bytes than the header size, or KindBadMagic if
// the magic doesn't match.
func ReadHeader(stream io.ReadSeeker) (Header, error) {
	var hdr Header

	if _, err := stream.Seek(0, io.SeekStart); err != nil {
		return hdr, sdkerrors.Wrap(sdkerrors.KindIoError, err, "seek to header failed")
	}

	buf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(stream, buf); err != nil {
		return hdr, sdkerrors.Wrap(sdkerrors.KindShortRead, err,
			"image header truncated: need %d bytes", HeaderSize)
	}

	var wire wireHeader
	if err := binary.Read(bytes.NewReader(buf), binary.LittleEndian, &wire); err != nil {
		return hdr, sdkerrors.Wrap(sdkerrors.KindShortRead, err, "malformed image header")
	}

	if wire.Magic != Magic {
		return hdr, sdkerrors.New(sdkerrors.KindBadMagic,
			"image magic incorrect: expected 0x%08x, got 0x%08x", Magic, wire.Magic)
	}

	hdr = Header{
		Magic:            wire.Magic,
		LoadAddr:         wire.LoadAddr,
		HeaderSize:       wire.HeaderSize,
		ProtectedTlvSize: wire.ProtectedTlvSize,
		ImageSize:        wire.ImageSize,
		Flags:            wire.Flags,
		Version:          wire.Version,
	}
	return hdr, nil
}
