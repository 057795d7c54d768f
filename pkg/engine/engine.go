// Package engine executes candidate queries against a database in cost
// order and collects which queries produce which tuples.
package engine

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/umich-dbgroup/litmus/pkg/cq"
	"github.com/umich-dbgroup/litmus/pkg/db"
	"github.com/umich-dbgroup/litmus/pkg/logger"
)

// DefaultMaxIncrementalFetches bounds the rows fetched per CQ during
// incremental execution.
const DefaultMaxIncrementalFetches = 1000

type Executor struct {
	db             db.Database
	cache          ResultCache
	tracer         Tracer
	maxIncremental int
}

type NewExecutorParams struct {
	DB db.Database
	// Cache defaults to a fresh MemoryCache.
	Cache  ResultCache
	Tracer Tracer
	// MaxIncrementalFetches <= 0 uses DefaultMaxIncrementalFetches.
	MaxIncrementalFetches int
}

func NewExecutor(params NewExecutorParams) *Executor {
	cache := params.Cache
	if cache == nil {
		cache = NewMemoryCache()
	}
	maxIncremental := params.MaxIncrementalFetches
	if maxIncremental <= 0 {
		maxIncremental = DefaultMaxIncrementalFetches
	}
	return &Executor{
		db:             params.DB,
		cache:          cache,
		tracer:         params.Tracer,
		maxIncremental: maxIncremental,
	}
}

func (e *Executor) DB() db.Database { return e.db }

// Request is one execution batch.
type Request struct {
	// Candidates is the live candidate set. Incremental execution checks
	// fetched rows against all of it.
	Candidates cq.Set
	// IDs selects the candidates to execute. Nil executes all of them.
	IDs    cq.IDSet
	States cq.States
	// Tuples accumulates results across batches. Nil starts empty.
	Tuples *cq.TupleMap
	// Constraints returns the narrowing predicates of a CQ. Nil runs every
	// CQ unconstrained.
	Constraints func(id int) []cq.Constraint
}

type Result struct {
	Tuples   *cq.TupleMap
	States   cq.States
	Valid    cq.IDSet
	TimedOut cq.IDSet
	Errors   cq.IDSet
	Cached   cq.IDSet
	// Executed is every CQ the batch considered.
	Executed cq.IDSet
	Elapsed  time.Duration
}

type planned struct {
	id   int
	cost float64
	cons []cq.Constraint
	sql  string
}

// Run executes a batch. CQs run in ascending estimated cost. After the
// first timeout the remaining CQs are marked timed out without running. If
// nothing produced a tuple but some CQs timed out, timed out CQs are fetched
// row by row until a row that does not belong to every candidate appears.
func (e *Executor) Run(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	ids := req.IDs
	if ids == nil {
		ids = req.Candidates.IDs()
	}
	res := &Result{
		Tuples:   req.Tuples,
		States:   req.States.Clone(),
		Valid:    cq.NewIDSet(),
		TimedOut: cq.NewIDSet(),
		Errors:   cq.NewIDSet(),
		Cached:   cq.NewIDSet(),
		Executed: cq.NewIDSet(),
	}
	if res.Tuples == nil {
		res.Tuples = cq.NewTupleMap()
	}
	if res.States == nil {
		res.States = cq.States{}
	}

	plan, err := e.plan(ctx, req, ids, res.States)
	if err != nil {
		return nil, err
	}

	timeoutSeen := false
	for _, p := range plan {
		res.Executed.Add(p.id)
		ckey := cq.ContextKey(p.cons)
		st := res.States.Get(p.id)

		if st.Status == cq.Failed {
			res.Errors.Add(p.id)
			continue
		}
		if st.CachedFor(ckey) {
			res.Cached.Add(p.id)
			e.collect(res, p.id, st.Tuples)
			record(e.tracer, TraceEvent{Kind: TraceEventCached, CQ: p.id, Rows: len(st.Tuples)})
			continue
		}
		if tuples, ok := e.cache.Get(e.cacheKey(p.sql)); ok {
			res.States[p.id] = cq.NewCached(ckey, tuples)
			res.Cached.Add(p.id)
			e.collect(res, p.id, tuples)
			record(e.tracer, TraceEvent{Kind: TraceEventCached, CQ: p.id, Rows: len(tuples)})
			continue
		}
		if st.TimedOutFor(ckey) {
			res.TimedOut.Add(p.id)
			continue
		}
		if timeoutSeen {
			res.States[p.id] = cq.NewTimedOut(ckey, 0)
			res.TimedOut.Add(p.id)
			record(e.tracer, TraceEvent{Kind: TraceEventAbandoned, CQ: p.id, Cost: p.cost})
			continue
		}

		began := time.Now()
		tuples, err := e.db.Query(ctx, p.sql)
		elapsed := time.Since(began)
		switch {
		case errors.Is(err, db.ErrTimeout):
			timeoutSeen = true
			res.States[p.id] = cq.NewTimedOut(ckey, 0)
			res.TimedOut.Add(p.id)
			record(e.tracer, TraceEvent{Kind: TraceEventTimedOut, CQ: p.id, Cost: p.cost, DurationMs: elapsed.Milliseconds()})
		case err != nil:
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			res.States[p.id] = cq.NewFailed(err)
			res.Errors.Add(p.id)
			logger.Warn("[Engine] CQ failed", "cq", p.id, "err", err)
			record(e.tracer, TraceEvent{Kind: TraceEventFailed, CQ: p.id, Error: err.Error()})
		default:
			e.cache.Put(e.cacheKey(p.sql), tuples)
			res.States[p.id] = cq.NewCached(ckey, tuples)
			e.collect(res, p.id, tuples)
			record(e.tracer, TraceEvent{Kind: TraceEventExecuted, CQ: p.id, Rows: len(tuples), Cost: p.cost, DurationMs: elapsed.Milliseconds()})
		}
	}

	if res.Tuples.Len() == 0 && res.TimedOut.Len() > 0 {
		if err := e.incremental(ctx, req, res); err != nil {
			return nil, err
		}
	}

	res.Elapsed = time.Since(start)
	logger.Debug("[Engine] Batch done",
		"executed", res.Executed.Len(), "cached", res.Cached.Len(), "valid", res.Valid.Len(),
		"timed_out", res.TimedOut.Len(), "errors", res.Errors.Len(), "elapsed", res.Elapsed)
	return res, nil
}

func (e *Executor) cacheKey(sql string) string {
	return e.db.Name() + "\x00" + sql
}

func (e *Executor) collect(res *Result, id int, tuples []cq.Tuple) {
	if len(tuples) == 0 {
		return
	}
	res.Valid.Add(id)
	for _, t := range tuples {
		res.Tuples.Add(t, id)
	}
}

// plan estimates every CQ's cost. CQs with a usable cached result cost
// nothing; CQs the planner rejects sort last.
func (e *Executor) plan(ctx context.Context, req Request, ids cq.IDSet, states cq.States) ([]planned, error) {
	plan := make([]planned, 0, ids.Len())
	for _, id := range ids.Sorted() {
		q, ok := req.Candidates[id]
		if !ok {
			return nil, fmt.Errorf("cq %d is not a candidate", id)
		}
		var cons []cq.Constraint
		if req.Constraints != nil {
			cons = req.Constraints(id)
		}
		p := planned{id: id, cons: cons, sql: q.SQL(cons, e.db)}

		st := states.Get(id)
		switch {
		case st.CachedFor(cq.ContextKey(cons)), st.Status == cq.Failed:
			p.cost = 0
		default:
			cost, err := e.db.Explain(ctx, p.sql)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				logger.Debug("[Engine] Explain failed", "cq", id, "err", err)
				cost = math.Inf(1)
			}
			p.cost = cost
		}
		plan = append(plan, p)
	}
	slices.SortStableFunc(plan, func(a, b planned) int {
		return cmp.Compare(a.cost, b.cost)
	})
	return plan, nil
}

// incremental fetches timed out CQs one row at a time, heaviest first, until
// a row that does not belong to every candidate turns up.
func (e *Executor) incremental(ctx context.Context, req Request, res *Result) error {
	order := res.TimedOut.Sorted()
	slices.SortStableFunc(order, func(a, b int) int {
		return cmp.Compare(req.Candidates[b].Weight, req.Candidates[a].Weight)
	})
	all := req.Candidates.IDs()

	for _, id := range order {
		q := req.Candidates[id]
		var cons []cq.Constraint
		if req.Constraints != nil {
			cons = req.Constraints(id)
		}
		st := res.States.Get(id)

		for range e.maxIncremental {
			row, ok, err := e.db.QueryRow(ctx, q.RowAtSQL(cons, e.db, st.Offset))
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				record(e.tracer, TraceEvent{Kind: TraceEventIncremental, CQ: id, Offset: st.Offset, Error: err.Error()})
				break
			}
			if !ok {
				break
			}
			record(e.tracer, TraceEvent{Kind: TraceEventIncremental, CQ: id, Offset: st.Offset})
			st = st.Advance()
			res.States[id] = st
			if row == nil {
				continue
			}

			support := cq.NewIDSet(id)
			for _, other := range all.Sorted() {
				if other == id || res.Errors.Has(other) {
					continue
				}
				in, err := e.TupleInQuery(ctx, row, req.Candidates[other], res.States.Get(other))
				if err != nil {
					if ctx.Err() != nil {
						return ctx.Err()
					}
					res.Errors.Add(other)
					logger.Warn("[Engine] Probe failed", "cq", other, "err", err)
					continue
				}
				if in {
					support.Add(other)
				}
			}
			if support.Equal(all) {
				continue
			}
			res.Tuples.Add(row, support.Sorted()...)
			res.Valid.Add(id)
			return nil
		}
	}
	return nil
}

// TupleInQuery reports whether t is an output row of q. Complete cached
// results answer in memory. Aggregate queries are answered by running
// them. A probe that times out answers false. A tuple whose arity does not
// match q's projections returns cq.ErrShape.
func (e *Executor) TupleInQuery(ctx context.Context, t cq.Tuple, q *cq.CQ, st cq.State) (bool, error) {
	if len(t) != len(q.Projections) {
		return false, fmt.Errorf("%w: cq %d has %d projections, tuple has %d values", cq.ErrShape, q.ID, len(q.Projections), len(t))
	}
	record(e.tracer, TraceEvent{Kind: TraceEventProbe, CQ: q.ID})
	if st.CachedFor("") {
		return containsTuple(st.Tuples, t), nil
	}
	if !q.Accepts(t) {
		return false, nil
	}

	if q.HasAggregate() {
		sql := q.SQL(nil, e.db)
		tuples, ok := e.cache.Get(e.cacheKey(sql))
		if !ok {
			var err error
			tuples, err = e.db.Query(ctx, sql)
			if errors.Is(err, db.ErrTimeout) {
				return false, nil
			}
			if err != nil {
				return false, err
			}
			e.cache.Put(e.cacheKey(sql), tuples)
		}
		return containsTuple(tuples, t), nil
	}

	sql, args, err := q.ProbeSQL(t, e.db)
	if err != nil {
		return false, err
	}
	found, err := e.db.Exists(ctx, sql, args...)
	if errors.Is(err, db.ErrTimeout) {
		return false, nil
	}
	return found, err
}

func containsTuple(tuples []cq.Tuple, t cq.Tuple) bool {
	k := t.Key()
	return slices.ContainsFunc(tuples, func(o cq.Tuple) bool { return o.Key() == k })
}
