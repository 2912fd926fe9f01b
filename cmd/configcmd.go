package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/packmill/packmill/internal/config"
)

var configOutput string

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter configuration file with the defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.WriteDefault(configOutput); err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", configOutput)
		return nil
	},
}

func init() {
	configInitCmd.Flags().StringVarP(&configOutput, "output", "o", "config.yaml", "where to write the configuration file")
	configCmd.AddCommand(configInitCmd)
	RootCmd.AddCommand(configCmd)
}
