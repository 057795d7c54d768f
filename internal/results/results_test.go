package results

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/umich-dbgroup/litmus/pkg/cq"
	"github.com/umich-dbgroup/litmus/pkg/disambig"
)

func sampleRecord(task string, iterations *int) Record {
	return Record{
		RunID:      "r1",
		TaskID:     task,
		Database:   "imdb",
		Strategy:   disambig.NameGreedyBB,
		TotalCQ:    4,
		Iterations: iterations,
		Remaining:  []int{2},
		Rounds: []disambig.RoundRecord{{
			Witness:   cq.Tuple{"Tom Hanks"},
			Support:   []int{0, 2},
			Confirmed: true,
			Remaining: 2,
			Meta:      disambig.Meta{TotalCQ: 4, ExecCQ: 4},
		}},
		Totals:  disambig.Meta{ExecCQ: 4, QueryTime: time.Second},
		Elapsed: 2 * time.Second,
	}
}

func TestWriterAppendsLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl")
	one := 1

	for _, rec := range []Record{sampleRecord("1", &one), sampleRecord("2", nil)} {
		w, err := Create(path)
		if err != nil {
			t.Fatalf("expected writer, got %v", err)
		}
		if err := w.Write(rec); err != nil {
			t.Fatalf("expected write to succeed, got %v", err)
		}
		if err := w.Close(); err != nil {
			t.Fatalf("expected close to succeed, got %v", err)
		}
	}

	recs, err := ReadFile(path)
	if err != nil {
		t.Fatalf("expected records, got %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
	if !recs[0].Succeeded() || *recs[0].Iterations != 1 {
		t.Fatalf("expected first record to succeed after 1 iteration")
	}
	if recs[1].Succeeded() {
		t.Fatalf("expected second record to have failed")
	}
	if got := recs[0].Rounds[0].Witness[0]; got != "Tom Hanks" {
		t.Fatalf("expected witness to survive, got %v", got)
	}
	if recs[0].Totals.QueryTime != time.Second {
		t.Fatalf("expected query time 1s, got %v", recs[0].Totals.QueryTime)
	}
}

func TestReadRejectsGarbage(t *testing.T) {
	if _, err := Read(strings.NewReader("{\"task_id\": \"1\"}\nnot json\n")); err == nil {
		t.Fatalf("expected an error")
	}
}

func TestNewRecord(t *testing.T) {
	n := 3
	res := &disambig.TaskResult{Strategy: "partition", Iterations: &n, Remaining: []int{5}, Reason: ""}
	r := NewRecord("run", "7", "mas", 9, res)
	if r.Strategy != "partition" || r.TotalCQ != 9 || *r.Iterations != 3 || r.TaskID != "7" {
		t.Fatalf("unexpected record %+v", r)
	}
}

type execConn struct {
	tag  string
	sqls []string
}

func (c *execConn) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	c.sqls = append(c.sqls, sql)
	return pgconn.NewCommandTag(c.tag), nil
}

func (c *execConn) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func (c *execConn) QueryRow(context.Context, string, ...any) pgx.Row {
	return nil
}

func TestSetRunStatusUnknownRun(t *testing.T) {
	s := NewStore(&execConn{tag: "UPDATE 0"})
	err := s.SetRunStatus(context.Background(), "missing", StatusFinished, nil)
	if !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}
}

func TestSaveRecordUpserts(t *testing.T) {
	conn := &execConn{tag: "INSERT 0 1"}
	one := 1
	if err := NewStore(conn).SaveRecord(context.Background(), sampleRecord("1", &one)); err != nil {
		t.Fatalf("expected save to succeed, got %v", err)
	}
	if len(conn.sqls) != 1 || !strings.Contains(conn.sqls[0], "ON CONFLICT (run_id, task_id)") {
		t.Fatalf("expected one upsert, got %v", conn.sqls)
	}
}

func TestDecodeColumns(t *testing.T) {
	r := Record{}
	var buf bytes.Buffer
	buf.WriteString(`[{"witness":[1],"support":[0],"confirmed":false,"remaining":3,"meta":{"total_cq":4}}]`)
	if err := decodeColumns(&r, []byte(`[1,2,3]`), buf.Bytes(), []byte(`{"exec_cq":4}`)); err != nil {
		t.Fatalf("expected decode to succeed, got %v", err)
	}
	if r.TotalCQ != 4 || len(r.Remaining) != 3 || r.Totals.ExecCQ != 4 {
		t.Fatalf("unexpected record %+v", r)
	}
}
