package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/spf13/cobra"

	"github.com/umich-dbgroup/litmus/internal/analysis"
	"github.com/umich-dbgroup/litmus/internal/results"
	"github.com/umich-dbgroup/litmus/internal/runner"
	"github.com/umich-dbgroup/litmus/pkg/disambig"
	"github.com/umich-dbgroup/litmus/pkg/logger"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Strategy string
	Out      string
	RunID    string
	Workers  int
	Store    bool
	All      bool
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <tasks-file>",
		Short: "Disambiguate every task of a task file",
		Long: `Run a disambiguation strategy over every task of a task file, answering
feedback questions from the declared answers, and print the summary.

Example:
  litmus run -s greedy_bb tasks.json -o results.jsonl
  litmus run -s partition --db imdb -t 3 -t 7 tasks.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTasks(cmd.Context(), opts, args[0], cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&opts.Strategy, "strategy", "s", "", fmt.Sprintf("strategy, one of %v", disambig.Names()))
	cmd.Flags().StringVarP(&opts.Out, "out", "o", "", "append task records to this JSON lines file")
	cmd.Flags().StringVar(&opts.RunID, "run-id", "", "run id (default: random)")
	cmd.Flags().IntVarP(&opts.Workers, "workers", "w", 0, "concurrent tasks (default: LITMUS_WORKERS)")
	cmd.Flags().BoolVar(&opts.Store, "store", false, "also store records in the metadata database")
	cmd.Flags().BoolVar(&opts.All, "all", false, "include tasks without answers or with non-SPJ candidates")
	_ = cmd.MarkFlagRequired("strategy")

	return cmd
}

func runTasks(ctx context.Context, opts *RunOptions, path string, out io.Writer) error {
	tasks, err := loadTasks(path, opts.RootOptions)
	if err != nil {
		return err
	}
	if !opts.All {
		tasks = withoutExcluded(tasks)
	}

	env, err := openEnvironment(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer env.Close()

	r, err := env.runner(opts.Strategy)
	if err != nil {
		return err
	}

	runID := opts.RunID
	if runID == "" {
		if runID, err = gonanoid.New(); err != nil {
			return err
		}
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = env.cfg.Workers
	}

	sink := &recordSink{}
	if opts.Out != "" {
		w, err := results.Create(opts.Out)
		if err != nil {
			return err
		}
		defer w.Close()
		sink.file = w
	}
	if opts.Store {
		if env.meta == nil {
			return errors.New("--store needs META_DATABASE_URL")
		}
		sink.store = results.NewStore(env.meta)
		err := sink.store.CreateRun(ctx, results.Run{
			ID:       runID,
			Database: r.Database(),
			Strategy: opts.Strategy,
			Tasks:    len(tasks),
		})
		if err != nil {
			return err
		}
	}

	logger.Info("[CLI] Starting run", "run", runID, "tasks", len(tasks), "strategy", opts.Strategy, "workers", workers)
	runErr := r.RunAll(ctx, runner.RunAllParams{
		RunID:   runID,
		Tasks:   tasks,
		Workers: workers,
		Sink:    sink,
	})
	if sink.store != nil {
		status := results.StatusFinished
		if runErr != nil {
			status = results.StatusFailed
		}
		if err := sink.store.SetRunStatus(context.WithoutCancel(ctx), runID, status, runErr); err != nil {
			logger.Error("[CLI] Failed to update run status", "run", runID, "err", err)
		}
	}
	if runErr != nil {
		return runErr
	}

	summary := analysis.Summarize(sink.records)
	return output(out, opts.Format, summary, func(w io.Writer) error {
		analysis.Render(w, summary)
		return nil
	})
}

// recordSink keeps every record for the summary and forwards it to the
// configured outputs.
type recordSink struct {
	mu      sync.Mutex
	records []results.Record
	file    *results.Writer
	store   *results.Store
}

func (s *recordSink) Write(ctx context.Context, rec results.Record) error {
	s.mu.Lock()
	s.records = append(s.records, rec)
	s.mu.Unlock()

	if s.file != nil {
		if err := s.file.Write(rec); err != nil {
			return err
		}
	}
	if s.store != nil {
		return s.store.SaveRecord(ctx, rec)
	}
	return nil
}
