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
	removeChannel string
	removeVariant string
)

var removeCmd = &cobra.Command{
	Use:   "remove <version>",
	Short: "Uninstall a package",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}

		ch, err := catalog.ParseChannel(removeChannel)
		if err != nil {
			return err
		}
		pkg, ok := a.Catalog.Installed.Find(ch, args[0], removeVariant)
		if !ok {
			return fmt.Errorf("no installed %s package with version %q", ch, args[0])
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := a.Remove(ctx, pkg); err != nil {
			return err
		}
		fmt.Printf("Removed %s %s (%s)\n", pkg.Name, pkg.Version, pkg.Build)
		return nil
	},
}

func init() {
	removeCmd.Flags().StringVarP(&removeChannel, "channel", "c", "stable", "release channel (daily, branched, stable, lts, archived)")
	removeCmd.Flags().StringVar(&removeVariant, "variant", "", "build line for daily and branched channels")
	RootCmd.AddCommand(removeCmd)
}
