package cq

import "slices"

// Status is the execution status of a CQ within a task.
type Status uint8

const (
	Unexecuted Status = iota
	// Cached holds the complete result for the recorded constraint context.
	Cached
	// TimedOut holds the next offset for incremental fetching.
	TimedOut
	Failed
)

func (s Status) String() string {
	switch s {
	case Cached:
		return "cached"
	case TimedOut:
		return "timed_out"
	case Failed:
		return "failed"
	default:
		return "unexecuted"
	}
}

// State is one CQ's execution state. States are values; transitions return
// a new State.
type State struct {
	Status  Status
	Context string
	Tuples  []Tuple
	Offset  int
	Err     error
}

func NewCached(context string, tuples []Tuple) State {
	return State{Status: Cached, Context: context, Tuples: tuples}
}

func NewTimedOut(context string, offset int) State {
	return State{Status: TimedOut, Context: context, Offset: offset}
}

func NewFailed(err error) State {
	return State{Status: Failed, Err: err}
}

// CachedFor reports whether the state holds a usable result for context.
func (s State) CachedFor(context string) bool {
	return s.Status == Cached && s.Context == context
}

// TimedOutFor reports whether the CQ already timed out under context.
func (s State) TimedOutFor(context string) bool {
	return s.Status == TimedOut && s.Context == context
}

// Advance moves a timed out state to the next incremental offset.
func (s State) Advance() State {
	if s.Status != TimedOut {
		return s
	}
	s.Offset++
	return s
}

// Without drops a tuple from a cached result.
func (s State) Without(k TupleKey) State {
	if s.Status != Cached {
		return s
	}
	idx := slices.IndexFunc(s.Tuples, func(t Tuple) bool { return t.Key() == k })
	if idx < 0 {
		return s
	}
	s.Tuples = slices.Delete(slices.Clone(s.Tuples), idx, idx+1)
	return s
}

// States tracks the state of every CQ in a task. A missing entry is Unexecuted.
type States map[int]State

func (s States) Get(id int) State {
	return s[id]
}

func (s States) Clone() States {
	out := make(States, len(s))
	for id, st := range s {
		out[id] = st
	}
	return out
}

// Scrub removes a tuple from every cached result.
func (s States) Scrub(k TupleKey) States {
	out := make(States, len(s))
	for id, st := range s {
		out[id] = st.Without(k)
	}
	return out
}

// Retain drops states of CQs not in ids.
func (s States) Retain(ids IDSet) States {
	out := make(States, len(ids))
	for id, st := range s {
		if ids.Has(id) {
			out[id] = st
		}
	}
	return out
}
