package image_test

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/sdupdate-project/sdupdate/image"
	"github.com/sdupdate-project/sdupdate/sdkerrors"
)

func validImage(t *testing.T, body []byte) []byte {
	t.Helper()
	b := &image.Builder{
		Version: image.Version{Major: 1, Minor: 2, Revision: 3, BuildNum: 4},
		Body:    body,
	}
	data, err := b.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return data
}

func TestReadHeaderHappyPath(t *testing.T) {
	data := validImage(t, bytes.Repeat([]byte{0xAB}, 128))
	r := bytes.NewReader(data)

	hdr, err := image.ReadHeader(r)
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if hdr.ImageSize != 128 {
		t.Fatalf("ImageSize = %d, want 128", hdr.ImageSize)
	}
	if hdr.HeaderSize != image.HeaderSize {
		t.Fatalf("HeaderSize = %d, want %d", hdr.HeaderSize, image.HeaderSize)
	}
}

func TestReadHeaderShortRead(t *testing.T) {
	r := bytes.NewReader([]byte{1, 2, 3})
	_, err := image.ReadHeader(r)
	if sdkerrors.KindOf(err) != sdkerrors.KindShortRead {
		t.Fatalf("got %v, want KindShortRead", err)
	}
}

func TestReadHeaderBadMagic(t *testing.T) {
	data := validImage(t, []byte{1, 2, 3})
	data[0] ^= 0xFF
	r := bytes.NewReader(data)

	_, err := image.ReadHeader(r)
	if sdkerrors.KindOf(err) != sdkerrors.KindBadMagic {
		t.Fatalf("got %v, want KindBadMagic", err)
	}
}

func TestValidateHappyPath(t *testing.T) {
	data := validImage(t, bytes.Repeat([]byte{0x11}, 4096))
	r := bytes.NewReader(data)

	hdr, err := image.ReadHeader(r)
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if err := image.Validate(r, hdr); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateDigestMismatch(t *testing.T) {
	b := &image.Builder{
		Body:          []byte("firmware"),
		CorruptDigest: make([]byte, 32),
	}
	data, err := b.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	r := bytes.NewReader(data)
	hdr, err := image.ReadHeader(r)
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}

	err = image.Validate(r, hdr)
	if sdkerrors.KindOf(err) != sdkerrors.KindDigestMismatch {
		t.Fatalf("got %v, want KindDigestMismatch", err)
	}
}

func TestValidateMissingDigest(t *testing.T) {
	b := &image.Builder{
		Body:                 []byte("firmware"),
		SkipSha256:           true,
		ExtraUnprotectedTlvs: []image.Field{{Type: 0x99, Value: []byte{1, 2, 3, 4}}},
	}
	data, err := b.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	r := bytes.NewReader(data)
	hdr, err := image.ReadHeader(r)
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}

	err = image.Validate(r, hdr)
	if sdkerrors.KindOf(err) != sdkerrors.KindMissingDigest {
		t.Fatalf("got %v, want KindMissingDigest", err)
	}
}

func TestValidateBadTlvLength(t *testing.T) {
	b := &image.Builder{
		Body:       []byte("firmware"),
		SkipSha256: true,
		ExtraUnprotectedTlvs: []image.Field{
			{Type: image.Sha256TlvType, Value: []byte{1, 2, 3}},
		},
	}
	data, err := b.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	r := bytes.NewReader(data)
	hdr, err := image.ReadHeader(r)
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}

	err = image.Validate(r, hdr)
	if sdkerrors.KindOf(err) != sdkerrors.KindBadTlvLength {
		t.Fatalf("got %v, want KindBadTlvLength", err)
	}
}

func TestValidateWithProtectedTlvBlock(t *testing.T) {
	b := &image.Builder{
		Body:          []byte("firmware-with-protected-tlvs"),
		ProtectedTlvs: []image.Field{{Type: 0x01, Value: []byte("keyhash-stand-in")}},
	}
	data, err := b.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	r := bytes.NewReader(data)
	hdr, err := image.ReadHeader(r)
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if hdr.ProtectedTlvSize == 0 {
		t.Fatalf("expected non-zero ProtectedTlvSize")
	}

	if err := image.Validate(r, hdr); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestBeginTlvIterationInconsistentProtectedSize(t *testing.T) {
	b := &image.Builder{
		Body:          []byte("firmware"),
		ProtectedTlvs: []image.Field{{Type: 0x01, Value: []byte("x")}},
	}
	data, err := b.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	// Corrupt the header's declared protected_tlv_size (offset 10, the
	// low byte of the u16 field) so it disagrees with the trailer's
	// self-declared total_size (invariant I2).
	data[10] ^= 0xFF

	r := bytes.NewReader(data)
	hdr, err := image.ReadHeader(r)
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}

	_, err = image.BeginTlvIteration(r, hdr)
	if err == nil {
		t.Fatalf("expected an error from inconsistent protected TLV size")
	}
}

func TestIteratorDoesNotOverreadTruncatedRecord(t *testing.T) {
	// Hand-build an unprotected block whose sole record declares a
	// length that would run past the block's total_size.
	var buf bytes.Buffer
	hdr := struct {
		Magic            uint32
		LoadAddr         uint32
		HeaderSize       uint16
		ProtectedTlvSize uint16
		ImageSize        uint32
		Flags            uint32
		Version          [8]byte
		Pad1             uint32
	}{
		Magic:      image.Magic,
		HeaderSize: image.HeaderSize,
		ImageSize:  4,
	}
	writeLE(&buf, hdr)
	buf.Write([]byte{0xAA, 0xAA, 0xAA, 0xAA}) // body

	// info block: magic, pad, total_size=8 (header only, no room for the
	// record that follows)
	writeLE(&buf, struct {
		Magic     uint16
		Pad       uint16
		TotalSize uint32
	}{Magic: image.MagicTlvUnprotected, TotalSize: 8})
	// a record header claiming a 32-byte value, but total_size above
	// only reserved room for the 8-byte info header itself.
	writeLE(&buf, struct {
		Type   uint16
		Length uint16
	}{Type: image.Sha256TlvType, Length: 32})

	data := buf.Bytes()
	r := bytes.NewReader(data)
	h, err := image.ReadHeader(r)
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}

	it, err := image.BeginTlvIteration(r, h)
	if err != nil {
		t.Fatalf("BeginTlvIteration: %v", err)
	}

	_, ok, err := it.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if ok {
		t.Fatalf("expected iteration to stop fail-safe, got a record")
	}
}

func writeLE(buf *bytes.Buffer, v interface{}) {
	if err := binary.Write(buf, binary.LittleEndian, v); err != nil {
		panic(err)
	}
}
