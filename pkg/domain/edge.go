package domain

import (
	"encoding/json"
	"fmt"
)

// EdgeKind discriminates the Edge variants.
type EdgeKind int

const (
	// EdgeSimple routes unconditionally to Target.
	EdgeSimple EdgeKind = iota + 1
	// EdgeConditional routes to IfTrue or IfFalse depending on Condition.
	EdgeConditional
)

func (k EdgeKind) String() string {
	switch k {
	case EdgeSimple:
		return "simple"
	case EdgeConditional:
		return "conditional"
	}
	return fmt.Sprintf("EdgeKind(%d)", int(k))
}

// Edge is the outgoing routing rule of a node.
type Edge struct {
	Kind EdgeKind

	// Simple
	Target string

	// Conditional
	Condition string
	IfTrue    string
	IfFalse   string
}

// Simple creates an unconditional edge.
func Simple(target string) Edge {
	return Edge{Kind: EdgeSimple, Target: target}
}

// Conditional creates an edge that branches on a condition expression.
func Conditional(condition, ifTrue, ifFalse string) Edge {
	return Edge{Kind: EdgeConditional, Condition: condition, IfTrue: ifTrue, IfFalse: ifFalse}
}

// Targets returns every node name the edge can route to.
func (e Edge) Targets() []string {
	if e.Kind == EdgeConditional {
		return []string{e.IfTrue, e.IfFalse}
	}
	return []string{e.Target}
}

type conditionalEdgeJSON struct {
	Condition string `json:"condition"`
	True      string `json:"true"`
	False     string `json:"false"`
}

// MarshalJSON encodes a simple edge as a bare string and a conditional edge as an object.
func (e Edge) MarshalJSON() ([]byte, error) {
	switch e.Kind {
	case EdgeSimple:
		return json.Marshal(e.Target)
	case EdgeConditional:
		return json.Marshal(conditionalEdgeJSON{
			Condition: e.Condition,
			True:      e.IfTrue,
			False:     e.IfFalse,
		})
	}
	return nil, fmt.Errorf("cannot marshal edge of kind %v", e.Kind)
}

// UnmarshalJSON accepts either a bare target name or a conditional object.
func (e *Edge) UnmarshalJSON(data []byte) error {
	var target string
	if err := json.Unmarshal(data, &target); err == nil {
		*e = Simple(target)
		return nil
	}

	var cond conditionalEdgeJSON
	if err := json.Unmarshal(data, &cond); err != nil {
		return fmt.Errorf("edge must be a node name or a conditional object: %w", err)
	}
	if cond.Condition == "" {
		return fmt.Errorf("conditional edge is missing its condition")
	}
	*e = Conditional(cond.Condition, cond.True, cond.False)
	return nil
}
