package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/packmill/packmill/internal/catalog"
)

var (
	defaultChannel string
	defaultVariant string
)

var defaultCmd = &cobra.Command{
	Use:   "default",
	Short: "Manage the default package",
	Long: `Show, set or clear the package that "packmill launch" starts when no
explicit version is given.`,
	RunE: runDefaultShow,
}

var defaultShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the default package",
	RunE:  runDefaultShow,
}

var defaultSetCmd = &cobra.Command{
	Use:   "set <version>",
	Short: "Designate an installed package as the default",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}

		ch, err := catalog.ParseChannel(defaultChannel)
		if err != nil {
			return err
		}
		pkg, ok := a.Catalog.Installed.Find(ch, args[0], defaultVariant)
		if !ok {
			return fmt.Errorf("no installed %s package with version %q", ch, args[0])
		}
		if err := a.SetDefault(pkg); err != nil {
			return err
		}
		fmt.Printf("Default package set to %s %s (%s)\n", pkg.Name, pkg.Version, pkg.Build)
		return nil
	},
}

var defaultClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Drop the default designation",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		if err := a.ClearDefault(); err != nil {
			return err
		}
		fmt.Println("Default package cleared.")
		return nil
	},
}

func runDefaultShow(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	def, ok := a.Default()
	if !ok {
		fmt.Println("No default package set.")
		return nil
	}
	fmt.Printf("%s %s (%s)\n", def.Name, def.Version, def.Build)
	return nil
}

func init() {
	defaultSetCmd.Flags().StringVarP(&defaultChannel, "channel", "c", "stable", "release channel (daily, branched, stable, lts, archived)")
	defaultSetCmd.Flags().StringVar(&defaultVariant, "variant", "", "build line for daily and branched channels")
	defaultCmd.AddCommand(defaultShowCmd, defaultSetCmd, defaultClearCmd)
	RootCmd.AddCommand(defaultCmd)
}
