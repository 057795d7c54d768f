package queue

import (
	"encoding/json"
	"time"
)

// RunMsg asks a worker to run a task file against one database.
type RunMsg struct {
	RunID         string `json:"run_id"`
	CorrelationID string `json:"correlation_id"`
	Database      string `json:"database"`
	Strategy      string `json:"strategy"`
	// Tasks is a task file in JSON form.
	Tasks json.RawMessage `json:"tasks"`
}

// RunEvent is published on EventExchange when a run ends.
type RunEvent struct {
	RunID    string        `json:"run_id"`
	Status   string        `json:"status"`
	Tasks    int           `json:"tasks"`
	Elapsed  time.Duration `json:"elapsed"`
	Error    string        `json:"error,omitempty"`
	Database string        `json:"database"`
}

// EventTopic is the routing key of the events of a run.
func EventTopic(runID, status string) string {
	return "run." + runID + "." + status
}
