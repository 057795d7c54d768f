package task

import (
	"time"

	"github.com/umich-dbgroup/litmus/pkg/cq"
	"github.com/umich-dbgroup/litmus/pkg/logger"
	"github.com/umich-dbgroup/litmus/pkg/parser"
	"github.com/umich-dbgroup/litmus/pkg/schema"
)

// Prepared is a task bound to a schema and ready to run.
type Prepared struct {
	Task       *Task
	Candidates cq.Set
	// States marks the candidates that failed to parse or resolve.
	States  cq.States
	Answers cq.IDSet
	// Failed holds the ids of the candidates in a failed state.
	Failed    cq.IDSet
	ParseTime time.Duration
}

type PrepareParams struct {
	Task   *Task
	Parser parser.Parser
	Schema *schema.Schema
}

// Prepare parses every candidate. A candidate that cannot be parsed stays
// in the set with a failed state so the engine counts it as an error.
func Prepare(params PrepareParams) *Prepared {
	start := time.Now()
	t := params.Task
	p := &Prepared{
		Task:       t,
		Candidates: cq.Set{},
		States:     cq.States{},
		Answers:    cq.IDSet{},
		Failed:     cq.IDSet{},
	}
	ids := make(map[string]int, len(t.Queries))

	for id, label := range t.Labels() {
		ids[label] = id
		text := t.Queries[label]
		q, err := resolve(params, id, label, text)
		if err != nil {
			logger.Debug("[Task] Candidate failed", "task", t.ID, "label", label, "err", err)
			q = &cq.CQ{ID: id, Label: label, Text: text, Weight: t.Weight(label)}
			p.States[id] = cq.NewFailed(err)
			p.Failed.Add(id)
		}
		p.Candidates[id] = q
	}
	for _, a := range t.Answers {
		p.Answers.Add(ids[a])
	}

	p.ParseTime = time.Since(start)
	logger.Info("[Task] Prepared", "task", t.ID, "candidates", len(p.Candidates), "failed", p.Failed.Len(), "parse_time", p.ParseTime)
	return p
}

func resolve(params PrepareParams, id int, label, text string) (*cq.CQ, error) {
	res, err := params.Parser.Parse(text)
	if err != nil {
		return nil, err
	}
	return parser.NewCQ(parser.NewCQParams{
		ID:     id,
		Label:  label,
		Text:   text,
		Weight: params.Task.Weight(label),
		Parsed: res,
		Schema: params.Schema,
	})
}
