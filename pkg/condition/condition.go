package condition

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrEvaluation is wrapped by every *Error.
var ErrEvaluation = errors.New("condition evaluation failed")

// Error describes a malformed, disallowed or ill-typed expression.
type Error struct {
	Expr string // Source expression
	Pos  int    // Byte offset of the offending token
	Msg  string
}

// maxQuoted caps how much of the source an error message repeats.
const maxQuoted = 120

func (e *Error) Error() string {
	src := e.Expr
	if len(src) > maxQuoted {
		src = src[:maxQuoted] + "..."
	}
	return fmt.Sprintf("condition %q: %s (offset %d)", src, e.Msg, e.Pos)
}

func (e *Error) Unwrap() error { return ErrEvaluation }

func newError(src string, pos int, format string, args ...any) *Error {
	return &Error{Expr: src, Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

// Program is a compiled expression. It is immutable and safe for concurrent use.
type Program struct {
	src  string
	root expr
}

// Compile parses expr into a Program.
func Compile(src string) (*Program, error) {
	root, err := parse(src)
	if err != nil {
		return nil, err
	}
	return &Program{src: src, root: root}, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(src string) *Program {
	p, err := Compile(src)
	if err != nil {
		panic(err)
	}
	return p
}

// String returns the source expression.
func (p *Program) String() string { return p.src }

// Eval runs the program against a state snapshot. The state is never modified.
func (p *Program) Eval(state map[string]any) (bool, error) {
	v, err := p.root.eval(state)
	if err != nil {
		var ce *Error
		if errors.As(err, &ce) && ce.Expr == "" {
			ce.Expr = p.src
		}
		return false, err
	}
	return truthy(v), nil
}

// Evaluate compiles and runs src in one call.
func Evaluate(src string, state map[string]any) (bool, error) {
	p, err := Compile(src)
	if err != nil {
		return false, err
	}
	return p.Eval(state)
}

const defaultCacheSize = 1024

// Evaluator evaluates expressions and caches their compiled programs.
// The zero value is ready to use.
type Evaluator struct {
	mu       sync.RWMutex
	programs map[string]*Program
	// MaxCached bounds the cache; the cache is reset when it fills up.
	MaxCached int
}

// NewEvaluator returns an Evaluator with the default cache size.
func NewEvaluator() *Evaluator {
	return &Evaluator{MaxCached: defaultCacheSize}
}

// Evaluate satisfies the engine's condition evaluator contract.
func (e *Evaluator) Evaluate(ctx context.Context, src string, state map[string]any) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	p, err := e.Program(src)
	if err != nil {
		return false, err
	}
	return p.Eval(state)
}

// Program returns the cached compiled form of src, compiling it on first use.
// Compile errors are not cached.
func (e *Evaluator) Program(src string) (*Program, error) {
	e.mu.RLock()
	p, ok := e.programs[src]
	e.mu.RUnlock()
	if ok {
		return p, nil
	}

	p, err := Compile(src)
	if err != nil {
		return nil, err
	}

	limit := e.MaxCached
	if limit <= 0 {
		limit = defaultCacheSize
	}
	e.mu.Lock()
	if e.programs == nil || len(e.programs) >= limit {
		e.programs = make(map[string]*Program)
	}
	e.programs[src] = p
	e.mu.Unlock()
	return p, nil
}
