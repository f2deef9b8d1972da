package domain

import (
	"fmt"
	"time"
)

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	RunPending   RunStatus = "pending"   // Created, no step executed yet
	RunRunning   RunStatus = "running"   // At least one step has begun
	RunCompleted RunStatus = "completed" // Reached a terminal node (absorbing)
	RunFailed    RunStatus = "failed"    // Aborted by a structural error (absorbing)
)

// IsTerminal reports whether the status is absorbing.
func (s RunStatus) IsTerminal() bool {
	return s == RunCompleted || s == RunFailed
}

// TerminationReason explains why a run stopped.
type TerminationReason string

const (
	ReasonCompleted             TerminationReason = "completed"
	ReasonMaxIterationsExceeded TerminationReason = "max_iterations_exceeded"
	ReasonEvaluationError       TerminationReason = "evaluation_error"
	ReasonDanglingEdgeTarget    TerminationReason = "dangling_edge_target"
	ReasonStorageError          TerminationReason = "storage_error"
	ReasonStepLimitExceeded     TerminationReason = "step_limit_exceeded"
	ReasonCanceled              TerminationReason = "canceled"
)

// LogEntry records one executed step.
type LogEntry struct {
	Step        int    `json:"step_index"`
	Node        string `json:"node"`
	StateBefore State  `json:"state_before"`
	StateAfter  State  `json:"state_after"`

	// Iteration is the 1-based loop count for loop nodes, 0 (omitted) otherwise.
	Iteration      int    `json:"iteration,omitempty"`
	LoopCapReached bool   `json:"loop_cap_reached,omitempty"`
	Errored        bool   `json:"errored"`
	ErrorDetail    string `json:"error_detail,omitempty"`

	// Skipped marks a loop node re-entered after its budget was spent.
	// Its tool did not run.
	Skipped bool `json:"skipped,omitempty"`

	// Next is the resolved successor. Empty when the step ended the run.
	Next      string    `json:"next,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Run is the mutable record of one graph execution.
// It is owned by exactly one execution; readers receive clones.
type Run struct {
	ID                string            `json:"run_id"`
	GraphID           string            `json:"graph_id"`
	Status            RunStatus         `json:"status"`
	State             State             `json:"state"`
	Log               []LogEntry        `json:"execution_log"`
	Iterations        map[string]int    `json:"iterations"`
	CurrentNode       string            `json:"current_node,omitempty"`
	TerminationReason TerminationReason `json:"termination_reason,omitempty"`
	Error             string            `json:"error,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
	FinishedAt        *time.Time        `json:"finished_at,omitempty"`
}

// NewRun creates a pending run. The initial state is deep copied.
func NewRun(id, graphID string, initial State, now time.Time) *Run {
	return &Run{
		ID:         id,
		GraphID:    graphID,
		Status:     RunPending,
		State:      initial.Clone(),
		Log:        []LogEntry{},
		Iterations: make(map[string]int),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

var allowedTransitions = map[RunStatus][]RunStatus{
	RunPending: {RunRunning, RunFailed},
	RunRunning: {RunCompleted, RunFailed},
}

// Transition moves the run to a new status.
// Terminal statuses are absorbing: leaving them returns ErrInvalidTransition.
func (r *Run) Transition(to RunStatus, now time.Time) error {
	for _, allowed := range allowedTransitions[r.Status] {
		if allowed == to {
			r.Status = to
			r.UpdatedAt = now
			if to.IsTerminal() {
				finished := now
				r.FinishedAt = &finished
			}
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, to)
}

// Append adds an entry to the execution log.
func (r *Run) Append(entry LogEntry) {
	r.Log = append(r.Log, entry)
	r.UpdatedAt = entry.Timestamp
}

// Visited returns the node names of the execution log, in order.
func (r *Run) Visited() []string {
	out := make([]string, len(r.Log))
	for i, e := range r.Log {
		out[i] = e.Node
	}
	return out
}

// Clone returns a deep copy so stores and readers never share mutable state with the engine.
func (r *Run) Clone() *Run {
	if r == nil {
		return nil
	}
	c := *r
	c.State = r.State.Clone()
	c.Log = make([]LogEntry, len(r.Log))
	for i, e := range r.Log {
		e.StateBefore = e.StateBefore.Clone()
		e.StateAfter = e.StateAfter.Clone()
		c.Log[i] = e
	}
	c.Iterations = make(map[string]int, len(r.Iterations))
	for k, v := range r.Iterations {
		c.Iterations[k] = v
	}
	if r.FinishedAt != nil {
		t := *r.FinishedAt
		c.FinishedAt = &t
	}
	return &c
}
