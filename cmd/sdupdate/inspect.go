package main

import (
	"bytes"
	"io"

	"github.com/edsrzf/mmap-go"
	"github.com/spf13/cobra"

	"github.com/sdupdate-project/sdupdate/image"
	"github.com/sdupdate-project/sdupdate/sdkerrors"
	"github.com/sdupdate-project/sdupdate/sdlog"
)

func newInspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect <file>",
		Short: "Print an image's header and TLV records without a flash area",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(cmd, args[0])
		},
	}
	return cmd
}

// runInspect mmaps the candidate file for a zero-copy read the way a
// host-side tool is allowed to, unlike the core itself, which never
// allocates a buffer scaled to image size.
func runInspect(cmd *cobra.Command, path string) error {
	mm, closeFn, err := openMmap(path)
	if err != nil {
		return err
	}
	defer closeFn()

	r := bytes.NewReader(mm)
	hdr, err := image.ReadHeader(r)
	if err != nil {
		return err
	}

	cmd.Printf("magic:              0x%08x\n", hdr.Magic)
	cmd.Printf("header_size:        %d\n", hdr.HeaderSize)
	cmd.Printf("image_size:         %s\n", sdlog.Bytes(uint64(hdr.ImageSize)))
	cmd.Printf("protected_tlv_size: %d\n", hdr.ProtectedTlvSize)
	cmd.Printf("version:            %d.%d.%d+%d\n", hdr.Version.Major, hdr.Version.Minor, hdr.Version.Revision, hdr.Version.BuildNum)

	computed, err := image.ComputeDigest(r, hdr)
	if err != nil {
		return err
	}

	it, err := image.BeginTlvIteration(r, hdr)
	if err != nil {
		return err
	}

	for {
		rec, ok, err := it.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}

		if rec.Type == image.Sha256TlvType && rec.Length == image.Sha256Len {
			value := make([]byte, image.Sha256Len)
			if _, err := r.Seek(rec.Offset, 0); err != nil {
				return sdkerrors.Wrap(sdkerrors.KindIoError, err, "failed to seek to digest TLV")
			}
			if _, err := io.ReadFull(r, value); err != nil {
				return sdkerrors.Wrap(sdkerrors.KindShortRead, err, "failed to read digest TLV")
			}
			match := bytes.Equal(value[:], computed[:])
			cmd.Printf("tlv type=0x%04x length=%d sha256 match=%v\n", rec.Type, rec.Length, match)
			continue
		}

		cmd.Printf("tlv type=0x%04x length=%d\n", rec.Type, rec.Length)
	}

	return nil
}

func openMmap(path string) (mmap.MMap, func() error, error) {
	f, err := openReadOnly(path)
	if err != nil {
		return nil, nil, err
	}

	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, nil, sdkerrors.Wrap(sdkerrors.KindIoError, err, "failed to mmap %s", path)
	}

	return m, func() error {
		unmapErr := m.Unmap()
		closeErr := f.Close()
		if unmapErr != nil {
			return unmapErr
		}
		return closeErr
	}, nil
}
