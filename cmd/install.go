package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/packmill/packmill/internal/catalog"
)

var (
	installChannel string
	installVariant string
)

var installCmd = &cobra.Command{
	Use:   "install <version>",
	Short: "Download and install a package",
	Long: `Install the package with the given version from a release channel.
When the channel carries several build lines, pick one with --variant.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}

		ch, err := catalog.ParseChannel(installChannel)
		if err != nil {
			return err
		}
		pkg, err := a.Catalog.Find(ch, args[0], installVariant)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := a.Install(ctx, pkg, renderEvent(pkg)); err != nil {
			return err
		}
		fmt.Printf("Installed %s %s (%s)\n", pkg.Name, pkg.Version, pkg.Build)
		return nil
	},
}

func renderEvent(pkg catalog.Package) func(catalog.Event) {
	return func(ev catalog.Event) {
		switch ev.Kind {
		case catalog.EventStarted:
			fmt.Printf("Installing %s %s (%s)\n", pkg.Name, pkg.Version, pkg.Build)
		case catalog.EventDownloadProgress:
			printProgress("Downloading", ev.Progress)
		case catalog.EventFinishedDownloading:
			fmt.Print("\rDownloading... done\n")
		case catalog.EventExtractionProgress:
			printProgress("Extracting", ev.Progress)
		case catalog.EventFinishedExtracting:
			fmt.Print("\rExtracting... done\n")
		case catalog.EventErrored:
			fmt.Println()
		}
	}
}

func printProgress(verb string, pct float64) {
	if pct == catalog.ProgressIndeterminate {
		fmt.Printf("\r%s...", verb)
		return
	}
	fmt.Printf("\r%s... %3.0f%%", verb, pct)
}

func init() {
	installCmd.Flags().StringVarP(&installChannel, "channel", "c", "stable", "release channel (daily, branched, stable, lts, archived)")
	installCmd.Flags().StringVar(&installVariant, "variant", "", "build line for daily and branched channels")
	RootCmd.AddCommand(installCmd)
}
