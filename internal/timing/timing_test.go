package timing

import (
	"context"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type floatRow float64

func (r floatRow) Scan(dest ...any) error {
	*dest[0].(*float64) = float64(r)
	return nil
}

type fakeConn struct {
	perTask float64
	args    []any
	sql     string
}

func (c *fakeConn) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	c.sql, c.args = sql, args
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (c *fakeConn) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	c.sql, c.args = sql, args
	return floatRow(c.perTask)
}

func TestPredictRunTime(t *testing.T) {
	tests := []struct {
		perTask float64
		tasks   int64
		want    int64
	}{
		{perTask: 0, tasks: 10, want: 0},
		{perTask: 1500, tasks: 4, want: 6000},
		{perTask: 2.5, tasks: 3, want: 8},
	}

	for _, tt := range tests {
		conn := &fakeConn{perTask: tt.perTask}
		got, err := PredictRunTime(context.Background(), tt.tasks, "greedy_bb", conn)
		if err != nil {
			t.Fatalf("expected prediction, got %v", err)
		}
		if got != tt.want {
			t.Fatalf("expected %d, got %d", tt.want, got)
		}
		if conn.args[0] != "greedy_bb" || conn.args[1] != History {
			t.Fatalf("unexpected args %v", conn.args)
		}
	}
}

func TestAddRunTime(t *testing.T) {
	conn := &fakeConn{}
	if err := AddRunTime(context.Background(), "partition", 12, 3400, conn); err != nil {
		t.Fatalf("expected insert to succeed, got %v", err)
	}
	if !strings.Contains(conn.sql, "run_stats") || conn.args[1] != int64(12) {
		t.Fatalf("unexpected insert %q %v", conn.sql, conn.args)
	}
}
