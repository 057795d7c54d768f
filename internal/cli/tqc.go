package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/montanaflynn/stats"
	"github.com/spf13/cobra"

	"github.com/umich-dbgroup/litmus/internal/runner"
	"github.com/umich-dbgroup/litmus/pkg/disambig"
	"github.com/umich-dbgroup/litmus/pkg/logger"
)

type taskConfusion struct {
	Task      string  `json:"task"`
	Confusion float64 `json:"confusion"`
}

type confusionReport struct {
	Tasks []taskConfusion `json:"tasks"`
	Mean  float64         `json:"mean"`
}

// NewTQCCommand creates the tqc command.
func NewTQCCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tqc <tasks-file>",
		Short: "Compute the task query confusion of every single answer task",
		Long: `Compute how easily the intended query of each task is confused with the
other candidates: 1 - 1/sum(|CQ ∩ TQ| / |TQ|) over the candidates that share
its projection types. Tasks without exactly one answer are skipped.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTQC(cmd.Context(), rootOpts, args[0], cmd.OutOrStdout())
		},
	}
	return cmd
}

func runTQC(ctx context.Context, opts *RootOptions, path string, out io.Writer) error {
	tasks, err := loadTasks(path, opts)
	if err != nil {
		return err
	}
	env, err := openEnvironment(ctx, opts)
	if err != nil {
		return err
	}
	defer env.Close()

	r, err := env.runner(disambig.NameGreedyAll)
	if err != nil {
		return err
	}

	report := confusionReport{Tasks: []taskConfusion{}}
	var values stats.Float64Data
	for _, t := range tasks {
		c, err := r.Confusion(ctx, t)
		if errors.Is(err, runner.ErrNoSingleAnswer) {
			logger.Info("[CLI] Skipping task", "task", t.ID, "reason", err)
			continue
		}
		if err != nil {
			return fmt.Errorf("task %s: %w", t.ID, err)
		}
		report.Tasks = append(report.Tasks, taskConfusion{Task: t.ID, Confusion: c})
		values = append(values, c)
	}
	if len(values) > 0 {
		report.Mean, _ = values.Mean()
	}

	return output(out, opts.Format, report, func(w io.Writer) error {
		table := newTable(w, "Task", "TQC")
		for _, tc := range report.Tasks {
			table.Append([]string{tc.Task, strconv.FormatFloat(tc.Confusion, 'f', 3, 64)})
		}
		table.SetFooter([]string{"Mean", strconv.FormatFloat(report.Mean, 'f', 3, 64)})
		table.Render()
		return nil
	})
}
