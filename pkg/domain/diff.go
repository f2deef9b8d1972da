package domain

import (
	"reflect"
)

// StepDiff summarizes what a single step changed.
// It is designed to be serialized to JSON for compact run reports.
type StepDiff struct {
	Step int    `json:"step_index"`
	Node string `json:"node"`

	// Delta contains only changed, added or deleted keys.
	// For deletions, the key is present with a nil value.
	Delta map[string]any `json:"delta,omitempty"`

	Errored bool `json:"errored,omitempty"`
}

// DiffState calculates the difference between two state snapshots.
// If old is nil, everything in new is a delta. Returns nil when nothing changed.
func DiffState(old, new State) map[string]any {
	delta := make(map[string]any)

	// Check for Added or Modified
	for k, newVal := range new {
		oldVal, exists := old[k]
		if !exists || !reflect.DeepEqual(oldVal, newVal) {
			delta[k] = newVal
		}
	}

	// Check for Deletions
	for k := range old {
		if _, exists := new[k]; !exists {
			delta[k] = nil
		}
	}

	// Return nil if delta is empty so omitempty can remove the key
	if len(delta) == 0 {
		return nil
	}
	return delta
}

// DiffLog computes the per-step deltas of an execution log.
func DiffLog(log []LogEntry) []StepDiff {
	out := make([]StepDiff, 0, len(log))
	for _, e := range log {
		out = append(out, StepDiff{
			Step:    e.Step,
			Node:    e.Node,
			Delta:   DiffState(e.StateBefore, e.StateAfter),
			Errored: e.Errored,
		})
	}
	return out
}
