package middleware

import (
	"context"
	"fmt"
	"regexp"

	"github.com/aretw0/flowline/pkg/domain"
	"github.com/aretw0/flowline/pkg/ports"
)

// Mask replaces redacted values.
const Mask = "***"

type redactingStore struct {
	ports.Store
	patterns []*regexp.Regexp
}

// NewRedactionMiddleware creates a middleware that masks the values of state
// keys matching any of the patterns, in the run state and in every log
// snapshot, before they are stored. Redaction is one way: reads return the
// masked values.
func NewRedactionMiddleware(patterns []string) (Middleware, error) {
	compiled := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid redaction pattern %q: %w", p, err)
		}
		compiled[i] = re
	}
	return func(next ports.Store) ports.Store {
		return &redactingStore{Store: next, patterns: compiled}
	}, nil
}

func (m *redactingStore) CreateRun(ctx context.Context, run *domain.Run) error {
	return m.Store.CreateRun(ctx, m.redact(run))
}

func (m *redactingStore) SaveRun(ctx context.Context, run *domain.Run) error {
	return m.Store.SaveRun(ctx, m.redact(run))
}

func (m *redactingStore) Close() error {
	return closeNext(m.Store)
}

// redact masks a deep copy so the engine's run is left untouched.
func (m *redactingStore) redact(run *domain.Run) *domain.Run {
	cloned := run.Clone()
	m.maskMap(cloned.State)
	for i := range cloned.Log {
		m.maskMap(cloned.Log[i].StateBefore)
		m.maskMap(cloned.Log[i].StateAfter)
	}
	return cloned
}

func (m *redactingStore) maskMap(state map[string]any) {
	for k, v := range state {
		if m.matches(k) {
			state[k] = Mask
			continue
		}
		m.maskValue(v)
	}
}

func (m *redactingStore) maskValue(v any) {
	switch t := v.(type) {
	case map[string]any:
		m.maskMap(t)
	case domain.State:
		m.maskMap(t)
	case []any:
		for _, item := range t {
			m.maskValue(item)
		}
	}
}

func (m *redactingStore) matches(key string) bool {
	for _, p := range m.patterns {
		if p.MatchString(key) {
			return true
		}
	}
	return false
}
