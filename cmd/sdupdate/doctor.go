package main

import (
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/spf13/cobra"

	"github.com/sdupdate-project/sdupdate/flashsim"
	"github.com/sdupdate-project/sdupdate/sdkerrors"
	"github.com/sdupdate-project/sdupdate/sdlog"
)

func newDoctorCmd() *cobra.Command {
	var slotSize int64

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Preflight-check the configured SD mount point and declared flash map",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfigOrDie(cmd)

			if err := checkFlashMap(cmd, cfg.FlashMap); err != nil {
				return err
			}

			usage, err := disk.Usage(cfg.SDMountPoint)
			if err != nil {
				return sdkerrors.Wrap(sdkerrors.KindIoError, err, "failed to stat mount point %s", cfg.SDMountPoint)
			}

			cmd.Printf("mount point:  %s\n", cfg.SDMountPoint)
			cmd.Printf("total space:  %s\n", sdlog.Bytes(usage.Total))
			cmd.Printf("free space:   %s\n", sdlog.Bytes(usage.Free))

			if int64(usage.Free) < slotSize {
				cmd.Printf("WARNING: free space is smaller than the declared primary slot size (%s); a backup may not fit\n",
					sdlog.Bytes(uint64(slotSize)))
			}

			return nil
		},
	}

	cmd.Flags().Int64Var(&slotSize, "slot-size", 1<<20, "primary flash slot size, to check backup headroom")

	return cmd
}

// checkFlashMap validates a board's declared flash area table, the same
// check a "doctor"-style preflight runs before trusting a build's flash
// layout. A config with no flash_map declared skips the check entirely.
func checkFlashMap(cmd *cobra.Command, areas []flashsim.Geometry) error {
	if len(areas) == 0 {
		return nil
	}

	sorted := flashsim.SortByDeviceOffset(areas)
	cmd.Printf("flash map (%d areas):\n", len(sorted))
	for _, a := range sorted {
		cmd.Printf("  %-12s id=%d device=%d offset=0x%x size=%s\n",
			a.Name, a.ID, a.Device, a.Offset, sdlog.Bytes(uint64(a.Size)))
	}

	overlaps, idConflicts := flashsim.DetectOverlaps(areas)
	if len(overlaps) == 0 && len(idConflicts) == 0 {
		cmd.Println("flash map ok: no overlapping or conflicting areas")
		return nil
	}

	cmd.Print(flashsim.DescribeErrors(overlaps, idConflicts))
	return sdkerrors.New(sdkerrors.KindIoError, "declared flash map has %d overlap(s) and %d id conflict(s)",
		len(overlaps), len(idConflicts))
}
