package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/umich-dbgroup/litmus/internal/task"
	"github.com/umich-dbgroup/litmus/pkg/disambig"
	"github.com/umich-dbgroup/litmus/pkg/qig"
)

// QIGOptions holds flags for the qig command.
type QIGOptions struct {
	*RootOptions
	Mode  string
	Parts bool
}

type partReport struct {
	Key        string   `json:"key"`
	IDs        []int    `json:"ids"`
	Intersects []string `json:"intersects"`
}

// NewQIGCommand creates the qig command.
func NewQIGCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QIGOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "qig <tasks-file> <task-id>",
		Short: "Print the query intersection graph of a task",
		Long: `Print the query intersection graph of one task in Graphviz format, or
with --parts the partitions strategies execute.

Example:
  litmus qig tasks.json 12 | dot -Tsvg > 12.svg
  litmus qig --parts --mode type tasks.json 12`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQIG(cmd.Context(), opts, args[0], args[1], cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.Mode, "mode", "", "qig mode, type, range or position (default: LITMUS_QIG_MODE)")
	cmd.Flags().BoolVar(&opts.Parts, "parts", false, "print the partitions instead of the graph")
	return cmd
}

func runQIG(ctx context.Context, opts *QIGOptions, path, id string, out io.Writer) error {
	tasks, err := task.Load(path)
	if err != nil {
		return err
	}
	t, err := task.Find(tasks, id)
	if err != nil {
		return err
	}

	env, err := openEnvironment(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer env.Close()

	mode := env.cfg.QIGMode
	if opts.Mode != "" {
		mode = opts.Mode
	}
	m, err := qig.ParseMode(mode)
	if err != nil {
		return err
	}

	r, err := env.runner(disambig.NamePartition)
	if err != nil {
		return err
	}
	p, entry, err := r.Prepare(ctx, t)
	if err != nil {
		return err
	}
	candidates := p.Candidates.Subset(p.Candidates.IDs().Minus(p.Failed))

	g, err := qig.Build(m, candidates, entry.AIG)
	if err != nil {
		return err
	}
	if !opts.Parts {
		_, err := io.WriteString(out, g.Dot())
		return err
	}

	parts := g.PartitionSet()
	report := make([]partReport, 0, parts.Len())
	for _, part := range parts.Parts {
		pr := partReport{Key: part.Key, IDs: part.IDs.Sorted()}
		for _, in := range part.Intersects {
			pr.Intersects = append(pr.Intersects, in.String())
		}
		report = append(report, pr)
	}

	return output(out, opts.Format, report, func(w io.Writer) error {
		table := newTable(w, "Part", "CQs", "Intersects")
		for _, pr := range report {
			table.Append([]string{pr.Key, fmt.Sprint(pr.IDs), strings.Join(pr.Intersects, " ")})
		}
		table.Render()
		return nil
	})
}
