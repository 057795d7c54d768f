package task

import "strings"

var nonSPJ = []string{
	"order by",
	"group by",
	"count(",
	"max(",
	"min(",
	"avg(",
	"sum(",
}

// Excluded reports why a task is left out of evaluation runs, or "" when
// it is kept.
func Excluded(t *Task) string {
	if len(t.Answers) == 0 {
		return "no answer"
	}
	for _, l := range t.Labels() {
		q := strings.ToLower(t.Queries[l])
		for _, w := range nonSPJ {
			if strings.Contains(q, w) {
				return "non-SPJ candidate " + l
			}
		}
	}
	return ""
}

// Excludes returns the ids of the excluded tasks.
func Excludes(tasks []*Task) []string {
	var out []string
	for _, t := range tasks {
		if Excluded(t) != "" {
			out = append(out, t.ID)
		}
	}
	return out
}
