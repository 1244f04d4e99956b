// Package main wires the update core into a host-side command tree:
// parseCmds() builds a cobra root, persistent flags configure logging
// and config-file discovery, and leaf commands exercise the core
// end-to-end without a real board attached.
package main

import (
	"fmt"
	"os"

	"github.com/kballard/go-shellquote"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/sdupdate-project/sdupdate/config"
	"github.com/sdupdate-project/sdupdate/sdkerrors"
	"github.com/sdupdate-project/sdupdate/sdlog"
)

var (
	logLevelFlag   string
	configPathFlag string
	extraFlagsFlag string
)

func parseCmds() *cobra.Command {
	root := &cobra.Command{
		Use:   "sdupdate",
		Short: "SD-card firmware update core: inspect, simulate, and run updates",
	}

	root.PersistentFlags().StringVar(&logLevelFlag, "loglevel", "info", "log level: trace, debug, info, warn, error")
	root.PersistentFlags().StringVar(&configPathFlag, "config", "", "path to a config YAML file (defaults to <binary>.yaml)")
	root.PersistentFlags().StringVar(&extraFlagsFlag, "extra-flags", "", "extra CLI args, shell-quoted (debug escape hatch for CI)")

	root.AddCommand(newUpdateCmd())
	root.AddCommand(newInspectCmd())
	root.AddCommand(newDoctorCmd())
	root.AddCommand(newSimulateCmd())

	return root
}

func sdupdateUsage(cmd *cobra.Command, err error) error {
	if err == nil {
		return nil
	}

	if sdErr, ok := sdkerrors.Cause(err).(*sdkerrors.Error); ok {
		logrus.WithField("kind", sdErr.Kind.String()).Error(sdErr.Text)
		if logrus.GetLevel() >= logrus.DebugLevel {
			fmt.Fprintln(os.Stderr, string(sdErr.StackTrace))
		}
	} else {
		logrus.Error(err.Error())
	}
	return err
}

// applyExtraFlags re-parses --extra-flags (a single shell-quoted string,
// the shape CI tends to pass through an environment variable) against
// cmd's own flag set, so a single "--extra-flags='--loglevel debug'"
// behaves the same as typing the flags directly.
func applyExtraFlags(cmd *cobra.Command) {
	if extraFlagsFlag == "" {
		return
	}

	args, err := shellquote.Split(extraFlagsFlag)
	if err != nil {
		logrus.WithError(err).Warn("failed to parse --extra-flags, ignoring")
		return
	}

	fs := pflag.NewFlagSet("extra-flags", pflag.ContinueOnError)
	fs.AddFlagSet(cmd.Flags())
	fs.AddFlagSet(cmd.PersistentFlags())
	if err := fs.Parse(args); err != nil {
		logrus.WithError(err).Warn("failed to apply --extra-flags, ignoring")
	}
}

func loadConfigOrDie(cmd *cobra.Command) config.Config {
	applyExtraFlags(cmd)

	level, err := logrus.ParseLevel(logLevelFlag)
	if err != nil {
		level = logrus.InfoLevel
	}
	if err := sdlog.Init(level, ""); err != nil {
		fmt.Fprintln(os.Stderr, "failed to initialize logging:", err)
	}

	path := configPathFlag
	if path == "" {
		if p, err := config.DefaultPath(); err == nil {
			path = p
		}
	}

	cfg, err := config.Load(path, nil)
	if err != nil {
		logrus.WithError(err).Fatal("failed to load configuration")
	}

	return cfg
}

func main() {
	root := parseCmds()
	root.SilenceUsage = true
	if err := root.Execute(); err != nil {
		sdupdateUsage(root, err)
		os.Exit(1)
	}
}
