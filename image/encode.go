package image

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"

	"github.com/sdupdate-project/sdupdate/sdkerrors"
)

// Field is a single TLV record: a type tag and its raw value bytes.
type Field struct {
	Type  uint16
	Value []byte
}

// Builder assembles a well-formed candidate image in memory. It exists
// for tests, which need to produce images the core can then parse and
// validate.
type Builder struct {
	Version       Version
	Body          []byte
	ProtectedTlvs []Field

	// ExtraUnprotectedTlvs are written into the unprotected block before
	// the SHA-256 TLV. Tests use this to exercise MissingDigest (by
	// setting SkipSha256) or to pad the block with unrelated records.
	ExtraUnprotectedTlvs []Field

	// SkipSha256, when true, omits the SHA-256 TLV entirely (used to
	// exercise KindMissingDigest).
	SkipSha256 bool

	// CorruptDigest, when non-nil, is written in place of the computed
	// digest (used to exercise KindDigestMismatch).
	CorruptDigest []byte
}

func encodeTlvBlock(magic uint16, fields []Field) []byte {
	var body bytes.Buffer
	for _, f := range fields {
		hdr := tlvRecordHeader{Type: f.Type, Length: uint16(len(f.Value))}
		binary.Write(&body, binary.LittleEndian, &hdr)
		body.Write(f.Value)
	}

	info := tlvInfo{Magic: magic, TotalSize: uint32(tlvInfoSize + body.Len())}

	var out bytes.Buffer
	binary.Write(&out, binary.LittleEndian, &info)
	out.Write(body.Bytes())
	return out.Bytes()
}

// Encode serializes the image and returns its bytes.
func (b *Builder) Encode() ([]byte, error) {
	protectedBlock := []byte{}
	if len(b.ProtectedTlvs) > 0 {
		protectedBlock = encodeTlvBlock(MagicTlvProtected, b.ProtectedTlvs)
	}

	hdr := wireHeader{
		Magic:            Magic,
		HeaderSize:       HeaderSize,
		ProtectedTlvSize: uint16(len(protectedBlock)),
		ImageSize:        uint32(len(b.Body)),
		Version:          b.Version,
	}

	var out bytes.Buffer
	if err := binary.Write(&out, binary.LittleEndian, &hdr); err != nil {
		return nil, sdkerrors.Wrap(sdkerrors.KindIoError, err, "encoding header failed")
	}
	out.Write(b.Body)
	out.Write(protectedBlock)

	digest := sha256.Sum256(out.Bytes())
	digestValue := digest[:]
	if b.CorruptDigest != nil {
		digestValue = b.CorruptDigest
	}

	unprotectedFields := append([]Field{}, b.ExtraUnprotectedTlvs...)
	if !b.SkipSha256 {
		unprotectedFields = append(unprotectedFields, Field{Type: Sha256TlvType, Value: digestValue})
	}
	out.Write(encodeTlvBlock(MagicTlvUnprotected, unprotectedFields))

	return out.Bytes(), nil
}
