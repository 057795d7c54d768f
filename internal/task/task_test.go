package task

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/umich-dbgroup/litmus/pkg/cq"
	"github.com/umich-dbgroup/litmus/pkg/db/sqlite/sqlitetest"
	"github.com/umich-dbgroup/litmus/pkg/parser"
	"github.com/umich-dbgroup/litmus/pkg/schema"
)

const tasksJSON = `{
	"10": {"cqs": {"b": "SELECT movie.title FROM movie", "a": "SELECT actor.name FROM actor"}, "ans": ["a"]},
	"2": {"cqs": {"0": "SELECT director.name FROM director ORDER BY director.name"}, "ans": ["0"]},
	"x": {"cqs": {"0": "SELECT movie.title FROM movie"}, "ans": []}
}`

const tasksYAML = `
"1":
  cqs:
    "10": SELECT movie.title FROM movie
    "9": SELECT actor.name FROM actor
    "11": SELEC broken
  ans: ["9"]
  weights:
    "10": 3
`

func TestParseOrdersTasks(t *testing.T) {
	tasks, err := Parse([]byte(tasksJSON), json.Unmarshal)
	require.NoError(t, err)

	ids := []string{}
	for _, tk := range tasks {
		ids = append(ids, tk.ID)
	}
	assert.Equal(t, []string{"2", "10", "x"}, ids)
	assert.Equal(t, []string{"a", "b"}, tasks[1].Labels())
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "movies.yaml")
	require.NoError(t, os.WriteFile(path, []byte(tasksYAML), 0o644))

	tasks, err := Load(path)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, []string{"9", "10", "11"}, tasks[0].Labels())
	assert.Equal(t, 3.0, tasks[0].Weight("10"))
	assert.Equal(t, 1.0, tasks[0].Weight("9"))
}

func TestParseRejectsUnknownAnswer(t *testing.T) {
	_, err := Parse([]byte(`{"1": {"cqs": {"a": "SELECT 1"}, "ans": ["b"]}}`), json.Unmarshal)
	assert.ErrorIs(t, err, ErrUnknownAnswer)

	_, err = Parse([]byte(`{"1": {"cqs": {}, "ans": []}}`), json.Unmarshal)
	assert.ErrorIs(t, err, ErrEmptyTask)
}

func TestExcludes(t *testing.T) {
	tasks, err := Parse([]byte(tasksJSON), json.Unmarshal)
	require.NoError(t, err)

	assert.Equal(t, []string{"2", "x"}, Excludes(tasks))
	assert.Equal(t, "no answer", Excluded(tasks[2]))
	assert.Equal(t, "", Excluded(tasks[1]))
}

func TestFind(t *testing.T) {
	tasks, err := Parse([]byte(tasksJSON), json.Unmarshal)
	require.NoError(t, err)

	tk, err := Find(tasks, "10")
	require.NoError(t, err)
	assert.Equal(t, "10", tk.ID)

	_, err = Find(tasks, "404")
	assert.ErrorIs(t, err, ErrUnknownTask)
}

func TestPrepare(t *testing.T) {
	conn := sqlitetest.Open(t)
	s, err := schema.Load(context.Background(), conn, schema.LoadParams{Database: "movies"})
	require.NoError(t, err)

	tasks, err := Parse([]byte(tasksYAML), yaml.Unmarshal)
	require.NoError(t, err)

	p := Prepare(PrepareParams{Task: tasks[0], Parser: parser.NewCache(parser.PostgresParser{}), Schema: s})

	require.Len(t, p.Candidates, 3)
	assert.Equal(t, "9", p.Candidates[0].Label)
	assert.Equal(t, "actor.name", p.Candidates[0].Projections[0].Attr.String())
	assert.Equal(t, 3.0, p.Candidates[1].Weight)
	assert.Equal(t, cq.NewIDSet(0), p.Answers)
	assert.Equal(t, cq.NewIDSet(2), p.Failed)
	assert.Equal(t, cq.Failed, p.States.Get(2).Status)
	assert.Equal(t, "SELEC broken", p.Candidates[2].Text)
}
