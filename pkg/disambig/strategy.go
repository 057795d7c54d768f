// Package disambig selects witness tuples that split a set of candidate
// queries and runs the feedback loop that narrows the set.
package disambig

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/umich-dbgroup/litmus/pkg/aig"
	"github.com/umich-dbgroup/litmus/pkg/cq"
	"github.com/umich-dbgroup/litmus/pkg/engine"
	"github.com/umich-dbgroup/litmus/pkg/qig"
)

var ErrUnknownStrategy = errors.New("unknown strategy")

const (
	NameExhaustive  = "exhaustive"
	NameGreedyAll   = "greedy_all"
	NamePartition   = "partition"
	NameGreedyBB    = "greedy_bb"
	NameGreedyFirst = "greedy_first"
	NameRandom      = "random"
	NameTopW        = "topw"
	NameL1S         = "l1s"
)

// Names lists every strategy New accepts.
func Names() []string {
	return []string{
		NameExhaustive, NameGreedyAll, NamePartition, NameGreedyBB,
		NameGreedyFirst, NameRandom, NameTopW, NameL1S,
	}
}

// Meta describes how a round went.
type Meta struct {
	Objective  float64 `json:"objective"`
	Entropy    float64 `json:"entropy"`
	TotalCQ    int     `json:"total_cq"`
	ExecCQ     int     `json:"exec_cq"`
	ValidCQ    int     `json:"valid_cq"`
	TimedOutCQ int     `json:"timed_out_cq"`
	ErrorCQ    int     `json:"error_cq"`
	Reruns     int     `json:"reruns,omitempty"`

	ParseTime time.Duration `json:"parse_time"`
	QueryTime time.Duration `json:"query_time"`
	CompTime  time.Duration `json:"comp_time"`
}

// Add accumulates counts and times of another round.
func (m *Meta) Add(o Meta) {
	m.ExecCQ += o.ExecCQ
	m.ValidCQ += o.ValidCQ
	m.TimedOutCQ += o.TimedOutCQ
	m.ErrorCQ += o.ErrorCQ
	m.Reruns += o.Reruns
	m.ParseTime += o.ParseTime
	m.QueryTime += o.QueryTime
	m.CompTime += o.CompTime
}

// Round is the input of one disambiguation round.
type Round struct {
	Candidates cq.Set
	States     cq.States
}

// Outcome is the selected witness. Witness is nil when no tuple could be
// found. States carry the execution state into the next round with the
// witness scrubbed from every cached result.
type Outcome struct {
	Witness cq.Tuple
	Support cq.IDSet
	Meta    Meta
	States  cq.States
}

// Strategy selects a witness for a round. Instances keep per task state
// (the QIG) between rounds and must not be shared across tasks.
type Strategy interface {
	Name() string
	Execute(ctx context.Context, round Round) (*Outcome, error)
}

type Deps struct {
	Executor *engine.Executor
	// AIG is required by the QIG backed strategies in range mode.
	AIG     *aig.Graph
	QIGMode qig.Mode
	// Narrow adds QIG derived range predicates to executed queries.
	Narrow     bool
	BoundLimit int
	TopTuples  int
	MaxReruns  int
	Rand       *rand.Rand
}

// New builds a strategy by name.
func New(name string, deps Deps) (Strategy, error) {
	if deps.Executor == nil {
		return nil, errors.New("strategy needs an executor")
	}
	if deps.QIGMode == "" {
		deps.QIGMode = qig.ModeRange
	}
	if deps.TopTuples <= 0 {
		deps.TopTuples = 5
	}
	if deps.Rand == nil {
		deps.Rand = rand.New(rand.NewPCG(0, 0))
	}
	b := &base{deps: deps}

	switch name {
	case NameExhaustive:
		return &exhaustive{base: b}, nil
	case NameGreedyAll:
		return &greedyAll{base: b}, nil
	case NamePartition:
		return &partition{base: b, name: NamePartition}, nil
	case NameGreedyFirst:
		return &partition{base: b, name: NameGreedyFirst, first: true}, nil
	case NameGreedyBB:
		return &greedyBB{base: b}, nil
	case NameRandom:
		return &guess{base: b, name: NameRandom}, nil
	case NameTopW:
		return &guess{base: b, name: NameTopW, byWeight: true}, nil
	case NameL1S:
		return &l1s{base: b}, nil
	default:
		return nil, fmt.Errorf("%w: %q (want one of %v)", ErrUnknownStrategy, name, Names())
	}
}

// base carries what every strategy shares.
type base struct {
	deps  Deps
	graph *qig.Graph
}

// buildQIG builds the task's graph on first use and prunes it on later rounds.
func (b *base) buildQIG(q cq.Set) (*qig.Graph, error) {
	if b.graph == nil {
		g, err := qig.Build(b.deps.QIGMode, q, b.deps.AIG)
		if err != nil {
			return nil, err
		}
		b.graph = g
		return g, nil
	}
	b.graph.Update(q.IDs())
	return b.graph, nil
}

func (b *base) constraints() func(int) []cq.Constraint {
	if !b.deps.Narrow || b.graph == nil {
		return nil
	}
	return b.graph.Constraints
}

// batch tracks the union of several engine runs in one round.
type batch struct {
	tuples   *cq.TupleMap
	states   cq.States
	executed cq.IDSet
	valid    cq.IDSet
	timedOut cq.IDSet
	errors   cq.IDSet
	elapsed  time.Duration
	// probed records the check set each tuple was last probed against.
	probed map[cq.TupleKey]string
	// dropped holds tuples every candidate returns. Later runs must not
	// bring them back with a partial support.
	dropped map[cq.TupleKey]struct{}
}

func newBatch(states cq.States) *batch {
	return &batch{
		tuples:   cq.NewTupleMap(),
		states:   states.Clone(),
		executed: cq.NewIDSet(),
		valid:    cq.NewIDSet(),
		timedOut: cq.NewIDSet(),
		errors:   cq.NewIDSet(),
		probed:   make(map[cq.TupleKey]string),
		dropped:  make(map[cq.TupleKey]struct{}),
	}
}

func (b *base) run(ctx context.Context, bt *batch, q cq.Set, ids cq.IDSet) error {
	res, err := b.deps.Executor.Run(ctx, engine.Request{
		Candidates:  q,
		IDs:         ids,
		States:      bt.states,
		Tuples:      bt.tuples,
		Constraints: b.constraints(),
	})
	if err != nil {
		return err
	}
	bt.tuples = res.Tuples
	bt.states = res.States
	bt.executed = bt.executed.Union(res.Executed)
	bt.valid = bt.valid.Union(res.Valid)
	bt.timedOut = bt.timedOut.Union(res.TimedOut)
	bt.errors = bt.errors.Union(res.Errors)
	bt.elapsed += res.Elapsed
	for k := range bt.dropped {
		if _, ok := bt.tuples.Tuple(k); ok {
			bt.tuples.Delete(k)
			bt.states = bt.states.Scrub(k)
		}
	}
	return nil
}

// drop removes a tuple every candidate returns.
func (bt *batch) drop(k cq.TupleKey) {
	bt.dropped[k] = struct{}{}
	bt.states = bt.states.Scrub(k)
	bt.tuples.Delete(k)
}

func (bt *batch) meta(q cq.Set) Meta {
	return Meta{
		TotalCQ:    len(q),
		ExecCQ:     bt.executed.Len(),
		ValidCQ:    bt.valid.Len(),
		TimedOutCQ: bt.timedOut.Len(),
		ErrorCQ:    bt.errors.Len(),
		QueryTime:  bt.elapsed,
	}
}

// outcome finishes a round: it fills the quality fields of meta and scrubs
// the witness from every cached result.
func outcome(q cq.Set, bt *batch, pick *ranked, meta Meta) *Outcome {
	if pick == nil {
		return &Outcome{Meta: meta, States: bt.states}
	}
	meta.Objective = Objective(q, pick.support)
	meta.Entropy = Entropy(q, pick.support)
	return &Outcome{
		Witness: pick.tuple,
		Support: pick.support.Clone(),
		Meta:    meta,
		States:  bt.states.Scrub(pick.key),
	}
}
