// Package cli implements the litmus command line.
package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/umich-dbgroup/litmus/pkg/logger"
	"github.com/umich-dbgroup/litmus/pkg/logger/console"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Debug    bool
	Format   string // "json" | "text"
	Database string
	// Tasks restricts task file commands to these task ids.
	Tasks []string
}

var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command of the litmus CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "litmus",
		Short: "litmus - disambiguate candidate SQL queries",
		Long: `Disambiguate a set of candidate SQL queries by showing the user tuples
that split the candidates, until only the intended queries remain.

The target database and the cache backend are configured through the
environment (see .env). Task files map task ids to their candidates:

  {"1": {"cqs": {"0": "SELECT ...", "1": "SELECT ..."}, "ans": ["0"]}}`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			logger.Init(console.NewConsoleLogger(console.ConsoleLoggerParams{
				Debug:  opts.Debug,
				Prefix: cmd.Name(),
				Output: cmd.ErrOrStderr(),
			}))
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Debug, "debug", "d", false, "debug logging")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "database name, overrides DATABASE_URL")
	cmd.PersistentFlags().StringSliceVarP(&opts.Tasks, "task", "t", nil, "only these task ids")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewStatsCommand(opts))
	cmd.AddCommand(NewTQCCommand(opts))
	cmd.AddCommand(NewAnalyzeCommand(opts))
	cmd.AddCommand(NewExcludesCommand(opts))
	cmd.AddCommand(NewBuildAIGCommand(opts))
	cmd.AddCommand(NewQIGCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))

	return cmd
}
