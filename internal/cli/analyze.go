package cli

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/umich-dbgroup/litmus/internal/analysis"
	"github.com/umich-dbgroup/litmus/internal/results"
)

// NewAnalyzeCommand creates the analyze command.
func NewAnalyzeCommand(rootOpts *RootOptions) *cobra.Command {
	var strategy string

	cmd := &cobra.Command{
		Use:   "analyze <results-file>...",
		Short: "Summarize the task records of one or more runs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var recs []results.Record
			for _, path := range args {
				r, err := results.ReadFile(path)
				if err != nil {
					return err
				}
				recs = append(recs, r...)
			}
			if strategy != "" {
				recs = filterStrategy(recs, strategy)
			}

			summary := analysis.Summarize(recs)
			return output(cmd.OutOrStdout(), rootOpts.Format, summary, func(w io.Writer) error {
				analysis.Render(w, summary)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&strategy, "strategy", "s", "", "only records of this strategy")
	return cmd
}

func filterStrategy(recs []results.Record, strategy string) []results.Record {
	out := recs[:0]
	for _, r := range recs {
		if r.Strategy == strategy {
			out = append(out, r)
		}
	}
	return out
}
