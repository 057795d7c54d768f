package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/umich-dbgroup/litmus/internal/analysis"
	"github.com/umich-dbgroup/litmus/pkg/disambig"
	"github.com/umich-dbgroup/litmus/pkg/logger"
)

type taskStats struct {
	Task     string                `json:"task"`
	CQs      int                   `json:"cqs"`
	Executed int                   `json:"executed"`
	Valid    int                   `json:"valid"`
	TimedOut int                   `json:"timed_out"`
	Errors   int                   `json:"errors"`
	Overlap  analysis.OverlapStats `json:"overlap"`
}

// NewStatsCommand creates the stats command.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats <tasks-file>",
		Short: "Execute every candidate once and report how the results overlap",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(cmd.Context(), rootOpts, args[0], cmd.OutOrStdout())
		},
	}
	return cmd
}

func runStats(ctx context.Context, opts *RootOptions, path string, out io.Writer) error {
	tasks, err := loadTasks(path, opts)
	if err != nil {
		return err
	}
	env, err := openEnvironment(ctx, opts)
	if err != nil {
		return err
	}
	defer env.Close()

	// stats never asks for feedback, any strategy will do
	r, err := env.runner(disambig.NameGreedyAll)
	if err != nil {
		return err
	}

	var all []taskStats
	for _, t := range tasks {
		o, res, err := r.Stats(ctx, t)
		if err != nil {
			return fmt.Errorf("task %s: %w", t.ID, err)
		}
		logger.Debug("[CLI] Task stats", "task", t.ID, "tuples", o.Tuples, "elapsed", res.Elapsed)
		all = append(all, taskStats{
			Task:     t.ID,
			CQs:      len(t.Queries),
			Executed: res.Executed.Len(),
			Valid:    res.Valid.Len(),
			TimedOut: res.TimedOut.Len(),
			Errors:   res.Errors.Len(),
			Overlap:  *o,
		})
	}

	return output(out, opts.Format, all, func(w io.Writer) error {
		table := newTable(w, "Task", "CQs", "Valid", "Timed out", "Errors", "Tuples", "Top overlaps")
		for _, s := range all {
			table.Append([]string{
				s.Task,
				strconv.Itoa(s.CQs),
				strconv.Itoa(s.Valid),
				strconv.Itoa(s.TimedOut),
				strconv.Itoa(s.Errors),
				strconv.Itoa(s.Overlap.Tuples),
				formatTop(s.Overlap.Top),
			})
		}
		table.Render()
		return nil
	})
}

func formatTop(top []analysis.SupportCount) string {
	parts := make([]string, len(top))
	for i, sc := range top {
		ids := make([]string, len(sc.Support))
		for j, id := range sc.Support {
			ids[j] = strconv.Itoa(id)
		}
		parts[i] = fmt.Sprintf("{%s}:%d", strings.Join(ids, ","), sc.Tuples)
	}
	return strings.Join(parts, " ")
}
