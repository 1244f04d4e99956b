package main

import (
	"os"
	"path/filepath"

	"github.com/otiai10/copy"
	"github.com/spf13/cobra"

	"github.com/sdupdate-project/sdupdate/flashsim"
	"github.com/sdupdate-project/sdupdate/orchestrator"
	"github.com/sdupdate-project/sdupdate/sdkerrors"
	"github.com/sdupdate-project/sdupdate/sdlog"
)

func newSimulateCmd() *cobra.Command {
	var candidatePath string
	var slotSize int64
	var writeBlockSize int64

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Seed a throwaway SD-card fixture and run a real update attempt against it",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfigOrDie(cmd)

			fixtureRoot, err := os.MkdirTemp("", "sdupdate-simulate-*")
			if err != nil {
				return sdkerrors.Wrap(sdkerrors.KindIoError, err, "failed to create fixture directory")
			}
			defer os.RemoveAll(fixtureRoot)

			cfg.SDMountPoint = fixtureRoot
			updateDir := filepath.Join(fixtureRoot, cfg.UpdateDirName)
			if err := os.MkdirAll(updateDir, 0755); err != nil {
				return sdkerrors.Wrap(sdkerrors.KindIoError, err, "failed to create update directory")
			}

			if candidatePath != "" {
				dest := filepath.Join(updateDir, cfg.ImageFileName)
				if err := copy.Copy(candidatePath, dest); err != nil {
					return sdkerrors.Wrap(sdkerrors.KindIoError, err, "failed to seed candidate image")
				}
			}

			slotPath := filepath.Join(fixtureRoot, "slot.bin")
			slot, err := flashsim.OpenFileArea(slotPath, slotSize, writeBlockSize)
			if err != nil {
				return err
			}
			defer slot.Close()

			before := bytesOf(slotSize, 0x5A)
			if err := slot.Erase(0, slot.Size()); err != nil {
				return err
			}
			if err := slot.Write(0, before); err != nil {
				return err
			}

			cmd.Printf("before: slot filled with arbitrary content (%s)\n", sdlog.Bytes(uint64(slotSize)))

			o := orchestrator.New(cfg, slot, nil)
			updated := o.Run()

			cmd.Printf("updated: %v\n", updated)

			after := make([]byte, slotSize)
			if err := slot.Read(0, after); err != nil {
				return err
			}
			cmd.Printf("after: slot first 16 bytes: % x\n", after[:16])

			return nil
		},
	}

	cmd.Flags().StringVar(&candidatePath, "candidate", "", "path to a candidate image file to seed into the fixture")
	cmd.Flags().Int64Var(&slotSize, "slot-size", 64*1024, "simulated flash slot size in bytes")
	cmd.Flags().Int64Var(&writeBlockSize, "write-block-size", 256, "flash write-block granularity")

	return cmd
}

func bytesOf(n int64, b byte) []byte {
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = b
	}
	return buf
}
