package graph

import "time"

// Status of a node after a run.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusSkipped   Status = "skipped"
	StatusFailed    Status = "failed"
)

// Result holds the outcome of a graph execution.
type Result struct {
	Graph       string
	NodeResults map[string]NodeResult
	Duration    time.Duration
}

// NodeResult holds the outcome of a single node execution.
type NodeResult struct {
	Name     string
	Status   Status
	Duration time.Duration
	Output   any
	Error    error
}

// firstError returns the first failure among the given nodes, in the
// order given. Order determinism makes multi-failure levels report the
// same error every run.
func (r *Result) firstError(names []string) error {
	for _, name := range names {
		if nr, ok := r.NodeResults[name]; ok && nr.Error != nil {
			return nr.Error
		}
	}
	return nil
}
