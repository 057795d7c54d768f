// Package results records the outcome of every task of a run.
package results

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/umich-dbgroup/litmus/pkg/disambig"
)

// Record is the stored form of one task result.
type Record struct {
	RunID    string `json:"run_id"`
	TaskID   string `json:"task_id"`
	Database string `json:"database"`
	Strategy string `json:"strategy"`
	TotalCQ  int    `json:"total_cq"`
	// Iterations is nil when the task failed.
	Iterations *int                   `json:"iterations"`
	Reason     string                 `json:"reason,omitempty"`
	Remaining  []int                  `json:"remaining"`
	Failed     []int                  `json:"failed,omitempty"`
	Rounds     []disambig.RoundRecord `json:"rounds"`
	Totals     disambig.Meta          `json:"totals"`
	Elapsed    time.Duration          `json:"elapsed"`
}

func (r *Record) Succeeded() bool { return r.Iterations != nil }

// NewRecord copies a session result.
func NewRecord(runID, taskID, database string, totalCQ int, res *disambig.TaskResult) Record {
	return Record{
		RunID:      runID,
		TaskID:     taskID,
		Database:   database,
		Strategy:   res.Strategy,
		TotalCQ:    totalCQ,
		Iterations: res.Iterations,
		Reason:     res.Reason,
		Remaining:  res.Remaining,
		Failed:     res.Failed,
		Rounds:     res.Rounds,
		Totals:     res.Totals,
		Elapsed:    res.Elapsed,
	}
}

// Writer appends records as JSON lines. It is safe for concurrent use.
type Writer struct {
	mu  sync.Mutex
	w   *bufio.Writer
	enc *json.Encoder
	c   io.Closer
}

func NewWriter(w io.Writer) *Writer {
	bw := bufio.NewWriter(w)
	out := &Writer{w: bw, enc: json.NewEncoder(bw)}
	if c, ok := w.(io.Closer); ok {
		out.c = c
	}
	return out
}

// Create opens path for appending.
func Create(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open results file: %w", err)
	}
	return NewWriter(f), nil
}

func (w *Writer) Write(r Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.enc.Encode(r); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	return w.w.Flush()
}

func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	err := w.w.Flush()
	if w.c != nil {
		err = errors.Join(err, w.c.Close())
	}
	return err
}

// Read decodes JSON lines. Blank lines are skipped.
func Read(r io.Reader) ([]Record, error) {
	var out []Record
	dec := json.NewDecoder(r)
	for {
		var rec Record
		err := dec.Decode(&rec)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read record %d: %w", len(out)+1, err)
		}
		out = append(out, rec)
	}
}

// ReadFile reads every record of a JSON lines file.
func ReadFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open results file: %w", err)
	}
	defer f.Close()
	return Read(f)
}
