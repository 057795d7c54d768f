package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
)

type aigReport struct {
	Database   string        `json:"database"`
	Relations  int           `json:"relations"`
	Attributes int           `json:"attributes"`
	Edges      int           `json:"edges"`
	Elapsed    time.Duration `json:"elapsed"`
}

// NewBuildAIGCommand creates the build-aig command.
func NewBuildAIGCommand(rootOpts *RootOptions) *cobra.Command {
	var rebuild bool

	cmd := &cobra.Command{
		Use:   "build-aig",
		Short: "Build and cache the schema and attribute intersection graph",
		Long: `Load the schema of the database and build its attribute intersection
graph, storing both in the cache backend. Later runs reuse the cached graph.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuildAIG(cmd.Context(), rootOpts, rebuild, cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVar(&rebuild, "rebuild", false, "drop the cached graph first")
	return cmd
}

func runBuildAIG(ctx context.Context, opts *RootOptions, rebuild bool, out io.Writer) error {
	env, err := openEnvironment(ctx, opts)
	if err != nil {
		return err
	}
	defer env.Close()

	if rebuild {
		if err := env.catalog.Invalidate(ctx, env.conn.Name()); err != nil {
			return err
		}
	}

	start := time.Now()
	entry, err := env.catalog.Get(ctx, env.conn)
	if err != nil {
		return err
	}
	report := aigReport{
		Database:   env.conn.Name(),
		Relations:  len(entry.Schema.Relations),
		Attributes: len(entry.Schema.Attributes()),
		Edges:      entry.AIG.EdgeCount(),
		Elapsed:    time.Since(start),
	}

	return output(out, opts.Format, report, func(w io.Writer) error {
		_, err := fmt.Fprintf(w, "%s: %d relations, %d attributes, %d edges (%s)\n",
			report.Database, report.Relations, report.Attributes, report.Edges, report.Elapsed.Round(time.Millisecond))
		return err
	})
}
