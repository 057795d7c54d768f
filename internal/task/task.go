// Package task loads disambiguation tasks: one natural language request,
// its candidate queries and the queries the user actually meant.
package task

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	ErrUnknownTask   = errors.New("unknown task")
	ErrUnknownAnswer = errors.New("answer is not a candidate")
	ErrEmptyTask     = errors.New("task has no candidates")
)

// Task is one entry of a task file.
type Task struct {
	ID      string             `json:"-" yaml:"-"`
	Queries map[string]string  `json:"cqs" yaml:"cqs"`
	Answers []string           `json:"ans" yaml:"ans"`
	Weights map[string]float64 `json:"weights,omitempty" yaml:"weights,omitempty"`
}

// Labels returns the candidate labels in id order. The position of a label
// is the id of its CQ.
func (t *Task) Labels() []string {
	labels := make([]string, 0, len(t.Queries))
	for l := range t.Queries {
		labels = append(labels, l)
	}
	slices.SortFunc(labels, compareIDs)
	return labels
}

// Weight of a label, 1 unless the task says otherwise.
func (t *Task) Weight(label string) float64 {
	if w, ok := t.Weights[label]; ok && w > 0 {
		return w
	}
	return 1
}

func (t *Task) validate() error {
	if len(t.Queries) == 0 {
		return fmt.Errorf("task %s: %w", t.ID, ErrEmptyTask)
	}
	for _, a := range t.Answers {
		if _, ok := t.Queries[a]; !ok {
			return fmt.Errorf("task %s: %w: %q", t.ID, ErrUnknownAnswer, a)
		}
	}
	return nil
}

// Load reads a task file. Files ending in .yaml or .yml are YAML, anything
// else JSON. Tasks are returned in id order.
func Load(path string) ([]*Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read task file: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return Parse(data, yaml.Unmarshal)
	default:
		return Parse(data, json.Unmarshal)
	}
}

// Parse decodes a task file with the given unmarshal function.
func Parse(data []byte, unmarshal func([]byte, any) error) ([]*Task, error) {
	raw := map[string]*Task{}
	if err := unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode task file: %w", err)
	}
	tasks := make([]*Task, 0, len(raw))
	for id, t := range raw {
		if t == nil {
			continue
		}
		t.ID = id
		if err := t.validate(); err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	slices.SortFunc(tasks, func(a, b *Task) int { return compareIDs(a.ID, b.ID) })
	return tasks, nil
}

// Find returns the task with the given id.
func Find(tasks []*Task, id string) (*Task, error) {
	for _, t := range tasks {
		if t.ID == id {
			return t, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownTask, id)
}

// compareIDs orders numeric ids numerically and before any other id.
func compareIDs(a, b string) int {
	ai, aerr := strconv.Atoi(a)
	bi, berr := strconv.Atoi(b)
	switch {
	case aerr == nil && berr == nil:
		return cmp.Compare(ai, bi)
	case aerr == nil:
		return -1
	case berr == nil:
		return 1
	}
	return strings.Compare(a, b)
}
