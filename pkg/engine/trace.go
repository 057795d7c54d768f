package engine

import (
	"sync"

	"github.com/umich-dbgroup/litmus/pkg/logger"
)

type TraceEventKind string

const (
	TraceEventExecuted    TraceEventKind = "executed"
	TraceEventCached      TraceEventKind = "cached"
	TraceEventTimedOut    TraceEventKind = "timed_out"
	TraceEventAbandoned   TraceEventKind = "abandoned"
	TraceEventFailed      TraceEventKind = "failed"
	TraceEventIncremental TraceEventKind = "incremental"
	TraceEventProbe       TraceEventKind = "probe"
)

// TraceEvent describes one step of a batch.
// Additive changes to this struct are backward compatible for implementers.
type TraceEvent struct {
	Kind TraceEventKind

	CQ         int
	Rows       int
	Offset     int
	Cost       float64
	DurationMs int64
	Error      string
}

// Tracer is a sink for execution events.
type Tracer interface {
	Record(event TraceEvent)
}

// MultiTracer fan-outs trace events to multiple tracers.
type MultiTracer []Tracer

func (m MultiTracer) Record(event TraceEvent) {
	for _, t := range m {
		if t == nil {
			continue
		}
		t.Record(event)
	}
}

func record(t Tracer, event TraceEvent) {
	if t == nil {
		return
	}
	t.Record(event)
}

// LogTracer writes every event at debug level.
type LogTracer struct{}

func (LogTracer) Record(event TraceEvent) {
	keyvals := []any{"cq", event.CQ}
	switch event.Kind {
	case TraceEventExecuted, TraceEventCached:
		keyvals = append(keyvals, "rows", event.Rows, "cost", event.Cost, "ms", event.DurationMs)
	case TraceEventIncremental:
		keyvals = append(keyvals, "offset", event.Offset)
	}
	if event.Error != "" {
		keyvals = append(keyvals, "err", event.Error)
	}
	logger.Debug("[Engine] "+string(event.Kind), keyvals...)
}

// ExecutionTrace counts events per kind across batches. It is safe for
// concurrent use.
type ExecutionTrace struct {
	mu     sync.Mutex
	counts map[TraceEventKind]int
	rows   int
}

type ExecutionTraceSnapshot struct {
	Counts map[TraceEventKind]int
	Rows   int
}

func NewExecutionTrace() *ExecutionTrace {
	return &ExecutionTrace{counts: make(map[TraceEventKind]int)}
}

func (t *ExecutionTrace) Record(event TraceEvent) {
	if t == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.counts[event.Kind]++
	t.rows += event.Rows
}

func (t *ExecutionTrace) Snapshot() ExecutionTraceSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	counts := make(map[TraceEventKind]int, len(t.counts))
	for k, v := range t.counts {
		counts[k] = v
	}
	return ExecutionTraceSnapshot{Counts: counts, Rows: t.rows}
}
