package image

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/sdupdate-project/sdupdate/sdkerrors"
)

// tlvInfo is the 8-byte header of a TLV info block.
type tlvInfo struct {
	Magic     uint16
	_         uint16
	TotalSize uint32
}

// tlvRecordHeader is the 4-byte header preceding every TLV record value.
type tlvRecordHeader struct {
	Type   uint16
	Length uint16
}

// Record describes a TLV record found by the iterator. Offset points to
// the record's value (the iterator never reads the value itself); the
// caller seeks there and reads Length bytes.
type Record struct {
	Offset int64
	Type   uint16
	Length uint16
}

// Iterator walks the unprotected TLV block's record area. It is
// memory-bounded: it never reads a record's value, only its 4-byte
// header, regardless of how large the value is.
type Iterator struct {
	stream  io.ReadSeeker
	current int64
	end     int64
}

func readTlvInfo(stream io.ReadSeeker, offset int64) (tlvInfo, error) {
	var info tlvInfo

	if _, err := stream.Seek(offset, io.SeekStart); err != nil {
		return info, sdkerrors.Wrap(sdkerrors.KindIoError, err, "seek to TLV info block failed")
	}

	buf := make([]byte, tlvInfoSize)
	if _, err := io.ReadFull(stream, buf); err != nil {
		return info, sdkerrors.Wrap(sdkerrors.KindShortRead, err, "TLV info block truncated")
	}

	if err := binary.Read(bytes.NewReader(buf), binary.LittleEndian, &info); err != nil {
		return info, sdkerrors.Wrap(sdkerrors.KindShortRead, err, "malformed TLV info block")
	}

	return info, nil
}

// BeginTlvIteration seeks to the start of the trailer (header_size +
// image_size), reads the first info block, and validates it against
// header.ProtectedTlvSize (invariant I2). It returns an Iterator
// positioned at the start of the unprotected block's record area.
func BeginTlvIteration(stream io.ReadSeeker, hdr Header) (*Iterator, error) {
	offset := int64(hdr.HeaderSize) + int64(hdr.ImageSize)

	first, err := readTlvInfo(stream, offset)
	if err != nil {
		return nil, err
	}

	switch first.Magic {
	case MagicTlvProtected:
		if uint32(hdr.ProtectedTlvSize) != first.TotalSize {
			return nil, sdkerrors.New(sdkerrors.KindInconsistentTlv,
				"protected TLV size mismatch: header declares %d, block declares %d",
				hdr.ProtectedTlvSize, first.TotalSize)
		}

		offset += int64(first.TotalSize)
		second, err := readTlvInfo(stream, offset)
		if err != nil {
			return nil, err
		}
		if second.Magic != MagicTlvUnprotected {
			return nil, sdkerrors.New(sdkerrors.KindInconsistentTlv,
				"expected unprotected TLV block after protected block, got magic 0x%04x",
				second.Magic)
		}

		return &Iterator{
			stream:  stream,
			current: offset + tlvInfoSize,
			end:     offset + int64(second.TotalSize),
		}, nil

	case MagicTlvUnprotected:
		if hdr.ProtectedTlvSize != 0 {
			return nil, sdkerrors.New(sdkerrors.KindInconsistentTlv,
				"header declares a protected TLV block (size %d) but none is present",
				hdr.ProtectedTlvSize)
		}

		return &Iterator{
			stream:  stream,
			current: offset + tlvInfoSize,
			end:     offset + int64(first.TotalSize),
		}, nil

	default:
		return nil, sdkerrors.New(sdkerrors.KindInconsistentTlv,
			"unrecognized TLV info magic 0x%04x", first.Magic)
	}
}

// Next returns the next record in the unprotected block, or ok=false
// when iteration is exhausted. A record whose declared length would run
// the record past the end of the block is treated as exhaustion rather
// than an error: the iterator never reads past the block boundary.
func (it *Iterator) Next() (rec Record, ok bool, err error) {
	if it.current+tlvRecordHeaderSize > it.end {
		return Record{}, false, nil
	}

	if _, err := it.stream.Seek(it.current, io.SeekStart); err != nil {
		return Record{}, false, sdkerrors.Wrap(sdkerrors.KindIoError, err, "seek to TLV record failed")
	}

	buf := make([]byte, tlvRecordHeaderSize)
	if _, err := io.ReadFull(it.stream, buf); err != nil {
		return Record{}, false, sdkerrors.Wrap(sdkerrors.KindShortRead, err, "TLV record header truncated")
	}

	var raw tlvRecordHeader
	if err := binary.Read(bytes.NewReader(buf), binary.LittleEndian, &raw); err != nil {
		return Record{}, false, sdkerrors.Wrap(sdkerrors.KindShortRead, err, "malformed TLV record header")
	}

	recordEnd := it.current + tlvRecordHeaderSize + int64(raw.Length)
	if recordEnd > it.end {
		return Record{}, false, nil
	}

	rec = Record{
		Offset: it.current + tlvRecordHeaderSize,
		Type:   raw.Type,
		Length: raw.Length,
	}
	it.current = recordEnd
	return rec, true, nil
}
