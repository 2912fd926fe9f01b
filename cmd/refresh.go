package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/packmill/packmill/internal/catalog"
	"github.com/packmill/packmill/pkg/helper"
)

var refreshForce bool

var refreshCmd = &cobra.Command{
	Use:   "refresh [channel ...]",
	Short: "Fetch release listings and count available updates",
	Long: `Without arguments, check the channels enabled for update checks and
print the update counts, honoring the configured interval between checks.
With channel names (or "all") the named channels are re-fetched
unconditionally, the archive included.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if len(args) == 0 {
			counts, checked, err := a.RefreshUpdates(ctx, refreshForce)
			if err != nil {
				return err
			}
			if !checked {
				fmt.Println("Checked recently, counts from the last check (use --force to check again):")
			}
			printCounts(counts)
			return nil
		}

		channels, err := parseChannelArgs(args)
		if err != nil {
			return err
		}
		if err := a.RefreshChannels(ctx, channels...); err != nil {
			return err
		}

		if len(channels) == 0 {
			channels = catalog.Channels()
		}
		for _, ch := range channels {
			pkgs, err := a.Catalog.Packages(ch)
			if err != nil {
				return err
			}
			fmt.Printf("%s: %s\n", ch, helper.Plural(len(pkgs), "package"))
		}
		return nil
	},
}

// parseChannelArgs maps the arguments to channels. "all" anywhere means
// every channel, reported as an empty list.
func parseChannelArgs(args []string) ([]catalog.Channel, error) {
	var channels []catalog.Channel
	for _, arg := range args {
		if arg == "all" {
			return nil, nil
		}
		ch, err := catalog.ParseChannel(arg)
		if err != nil {
			return nil, err
		}
		channels = append(channels, ch)
	}
	return channels, nil
}

func printCounts(counts catalog.UpdateCounts) {
	if counts.Total == nil {
		fmt.Println("Update checks are disabled for every channel.")
		return
	}
	perChannel := []struct {
		channel catalog.Channel
		n       *int
	}{
		{catalog.ChannelDaily, counts.Daily},
		{catalog.ChannelBranched, counts.Branched},
		{catalog.ChannelStable, counts.Stable},
		{catalog.ChannelLTS, counts.LTS},
	}
	for _, pc := range perChannel {
		if pc.n == nil {
			continue
		}
		fmt.Printf("  %s: %s\n", pc.channel, helper.Plural(*pc.n, "update"))
	}
	fmt.Printf("Total: %s\n", helper.Plural(*counts.Total, "update"))
}

func init() {
	refreshCmd.Flags().BoolVarP(&refreshForce, "force", "f", false, "check even when the interval has not passed")
	RootCmd.AddCommand(refreshCmd)
}
