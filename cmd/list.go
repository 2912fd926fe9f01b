package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/packmill/packmill/internal/catalog"
	"github.com/packmill/packmill/pkg/tools"
)

var (
	listChannel   string
	listInstalled bool
	listSort      string
	listJSON      bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List packages from a release channel or the installed set",
	Long: `List the known packages of one release channel, or the installed set
with --installed. The default package is marked with an asterisk.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}

		mode, err := catalog.ParseSortMode(listSort)
		if err != nil {
			return err
		}

		var pkgs []catalog.Package
		if listInstalled {
			pkgs = a.Catalog.Installed.Packages()
		} else {
			ch, err := catalog.ParseChannel(listChannel)
			if err != nil {
				return err
			}
			if pkgs, err = a.Catalog.Packages(ch); err != nil {
				return err
			}
		}
		catalog.SortPackages(pkgs, mode)

		if listJSON {
			tools.PrettyPrint(pkgs)
			return nil
		}
		if len(pkgs) == 0 {
			fmt.Println("No packages found. Run 'packmill refresh' to fetch the release listings.")
			return nil
		}

		def, hasDefault := a.Default()
		w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
		for _, p := range pkgs {
			marker := " "
			if hasDefault && def.Same(p) {
				marker = "*"
			}
			status := string(p.Status)
			if listInstalled {
				status = "installed"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				marker, p.Name, p.Version, p.Build.String(),
				p.Date.UTC().Format("2006-01-02 15:04"), status)
		}
		return w.Flush()
	},
}

func init() {
	listCmd.Flags().StringVarP(&listChannel, "channel", "c", "stable", "release channel (daily, branched, stable, lts, archived)")
	listCmd.Flags().BoolVarP(&listInstalled, "installed", "i", false, "list installed packages instead of a channel")
	listCmd.Flags().StringVarP(&listSort, "sort", "s", "", "sort order: version or date (default newest first)")
	listCmd.Flags().BoolVar(&listJSON, "json", false, "print as JSON")
	RootCmd.AddCommand(listCmd)
}
