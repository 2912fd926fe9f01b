package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/packmill/packmill/internal/app"
	"github.com/packmill/packmill/internal/catalog"
	"github.com/packmill/packmill/pkg/helper"
)

var (
	launchChannel string
	launchVersion string
	launchVariant string
)

var launchCmd = &cobra.Command{
	Use:   "launch [file]",
	Short: "Start an installed package",
	Long: `Start the default package, or an explicitly chosen installed package
with --version. An optional file argument is passed to the executable.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}

		var pkg catalog.Package
		if launchVersion != "" {
			ch, err := catalog.ParseChannel(launchChannel)
			if err != nil {
				return err
			}
			var ok bool
			if pkg, ok = a.Catalog.Installed.Find(ch, launchVersion, launchVariant); !ok {
				return fmt.Errorf("no installed %s package with version %q", ch, launchVersion)
			}
		} else {
			var ok bool
			if pkg, ok = a.Default(); !ok {
				return fmt.Errorf("no default package set, pick one with 'packmill default set' or pass --version")
			}
		}

		var filePath string
		if len(args) == 1 {
			filePath = args[0]
		}
		if err := a.Launch(pkg, filePath); err != nil {
			return err
		}
		fmt.Printf("Launched %s %s (%s)\n", pkg.Name, pkg.Version, pkg.Build)

		if a.Cfg.Updates.CheckAtLaunch {
			notifyUpdates(a)
		}
		return nil
	},
}

// notifyUpdates runs the interval-gated update check after a launch. The
// check is opportunistic, a failure never blocks the launch.
func notifyUpdates(a *app.App) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	counts, checked, err := a.RefreshUpdates(ctx, false)
	if err != nil || !checked {
		return
	}
	if counts.Total != nil && *counts.Total > 0 {
		fmt.Printf("%s available, run 'packmill list' to see them.\n", helper.Plural(*counts.Total, "update"))
	}
}

func init() {
	launchCmd.Flags().StringVarP(&launchChannel, "channel", "c", "stable", "release channel (daily, branched, stable, lts, archived)")
	launchCmd.Flags().StringVar(&launchVersion, "version", "", "version of the installed package to start")
	launchCmd.Flags().StringVar(&launchVariant, "variant", "", "build line for daily and branched channels")
	RootCmd.AddCommand(launchCmd)
}
