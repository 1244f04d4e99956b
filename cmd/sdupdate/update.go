package main

import (
	"bufio"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/sdupdate-project/sdupdate/flashsim"
	"github.com/sdupdate-project/sdupdate/orchestrator"
)

func newUpdateCmd() *cobra.Command {
	var slotPath string
	var slotSize int64
	var writeBlockSize int64
	var assumeYes bool

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Run one update attempt against a flash-area backing file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfigOrDie(cmd)

			if !assumeYes && !confirm(cmd, slotPath) {
				cmd.Println("aborted")
				return nil
			}

			slot, err := flashsim.OpenFileArea(slotPath, slotSize, writeBlockSize)
			if err != nil {
				return err
			}
			defer slot.Close()

			o := orchestrator.New(cfg, slot, nil)
			updated := o.Run()
			cmd.Printf("updated: %v\n", updated)
			return nil
		},
	}

	cmd.Flags().StringVar(&slotPath, "slot", "slot.bin", "path to the flash-area backing file")
	cmd.Flags().Int64Var(&slotSize, "slot-size", 1<<20, "flash area size in bytes")
	cmd.Flags().Int64Var(&writeBlockSize, "write-block-size", 256, "flash write-block granularity")
	cmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "skip the interactive confirmation prompt")

	return cmd
}

// confirm prompts before overwriting slotPath, but only when stdin is
// an interactive terminal — a CI pipe never blocks on it.
func confirm(cmd *cobra.Command, slotPath string) bool {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return true
	}

	cmd.Printf("about to overwrite flash area backing file %s — continue? [y/N] ", slotPath)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	return line == "y\n" || line == "Y\n" || line == "yes\n"
}
