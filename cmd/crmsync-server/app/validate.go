package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stacklok/crmsync/internal/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate <config-file>",
	Short: "Validate a configuration file",
	Long: `Validate a configuration file without starting the server.
Secrets referenced by the file are not read.`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(config.WithConfigPath(args[0]))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "✓ Valid configuration\n")
	fmt.Fprintf(out, "  System of record: %s (%s)\n", cfg.SystemOfRecord.Name, cfg.SystemOfRecord.Type)
	for _, conn := range cfg.Connectors {
		fmt.Fprintf(out, "  Connector: %s (%s)\n", conn.Name, conn.Type)
	}
	fmt.Fprintf(out, "  Tenants: %d\n", len(cfg.Tenants))
	fmt.Fprintf(out, "  Storage: %s\n", cfg.GetStorageType())
	return nil
}
