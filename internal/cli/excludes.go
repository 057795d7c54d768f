package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/umich-dbgroup/litmus/internal/task"
)

type exclusion struct {
	Task   string `json:"task"`
	Reason string `json:"reason"`
}

// NewExcludesCommand creates the excludes command.
func NewExcludesCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "excludes <tasks-file>",
		Short: "List the tasks run skips and why",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tasks, err := loadTasks(args[0], rootOpts)
			if err != nil {
				return err
			}

			out := []exclusion{}
			for _, t := range tasks {
				if reason := task.Excluded(t); reason != "" {
					out = append(out, exclusion{Task: t.ID, Reason: reason})
				}
			}
			return output(cmd.OutOrStdout(), rootOpts.Format, out, func(w io.Writer) error {
				for _, e := range out {
					if _, err := fmt.Fprintf(w, "%s\t%s\n", e.Task, e.Reason); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
	return cmd
}
