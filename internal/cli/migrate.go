package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/umich-dbgroup/litmus/internal/config"
	"github.com/umich-dbgroup/litmus/internal/store"
)

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the tables of the metadata database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.MetaDatabaseURL == "" {
				return errors.New("META_DATABASE_URL is not set")
			}
			return store.Migrate(cfg.MetaDatabaseURL)
		},
	}
	return cmd
}
