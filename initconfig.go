package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mapa-rutas/internal/config"
)

var initConfigForce bool

var initConfigCmd = &cobra.Command{
	Use:   "init-config [PATH]",
	Short: "Write a config file with the default settings",
	Long: `Writes the built-in defaults as YAML so they can be edited and passed
back with --config. Environment overrides are not written.

Example:
  mapa-rutas init-config mapa-rutas.yaml
  mapa-rutas serve --config mapa-rutas.yaml`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInitConfig,
}

func init() {
	initConfigCmd.Flags().BoolVar(&initConfigForce, "force", false, "Overwrite an existing file")
	rootCmd.AddCommand(initConfigCmd)
}

func runInitConfig(cmd *cobra.Command, args []string) error {
	path := "mapa-rutas.yaml"
	if len(args) == 1 {
		path = args[0]
	}
	if _, err := os.Stat(path); err == nil && !initConfigForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	if err := config.Default().Save(path); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote default config to %s\n", path)
	return nil
}
