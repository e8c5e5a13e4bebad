package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chain-gate/chaingate/internal/domain/interceptor"
)

var checkCmd = &cobra.Command{
	Use:   "check [definitions-file]",
	Short: "Validate an interceptor definitions file",
	Long: `Parse and compile an interceptor definitions YAML file without
starting the server.

Every definition is checked for a unique ID, a known kind, valid events
and phases, and a compilable expression. The exit code is non-zero when
any definition fails.

Example:
  chain-gate check ./interceptors.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]

		registry := interceptor.NewRegistry()
		count, err := loadDefinitions(path, registry)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}

		fmt.Printf("%s: %d definition(s) OK\n", path, count)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
