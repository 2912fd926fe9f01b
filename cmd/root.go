package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/packmill/packmill/internal/app"
	"github.com/packmill/packmill/internal/config"
	"github.com/packmill/packmill/pkg/logger"
)

var (
	cfgFile string
	verbose bool
	Cfg     *config.Config
	Version string
)

var RootCmd = &cobra.Command{
	Use:   "packmill",
	Short: "Packmill - a package manager for versioned software builds",
	Long: `Packmill tracks five release channels (daily, branched, stable, lts,
archived), installs builds from them and launches the designated default.`,
	SilenceUsage: true,
}

func Execute(version string) error {
	Version = version
	return RootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)
	RootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.packmill/config.yaml)")
	RootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

func initConfig() {
	var err error

	Cfg, err = config.LoadConfig(cfgFile)
	if err != nil {
		fmt.Printf("Fatal: Configuration could not be loaded: %v\n", err)
		os.Exit(1)
	}

	if verbose {
		logger.SetLevel("debug")
	}
}

// newApp builds the application over the loaded configuration.
func newApp() (*app.App, error) {
	if Cfg == nil {
		return nil, fmt.Errorf("configuration not loaded")
	}
	return app.New(Cfg)
}
