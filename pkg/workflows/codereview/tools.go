package codereview

import (
	"context"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"math"
	"strings"

	"github.com/aretw0/flowline/pkg/domain"
	"github.com/aretw0/flowline/pkg/registry"
)

// Tool names registered by Register.
const (
	ToolExtractFunctions    = "extract_functions"
	ToolCheckComplexity     = "check_complexity"
	ToolDetectIssues        = "detect_issues"
	ToolSuggestImprovements = "suggest_improvements"
	ToolCalculateQuality    = "calculate_quality_score"
	ToolApprove             = "approve_review"
	ToolRequestChanges      = "request_changes"
)

// Issue kinds reported by detect_issues.
const (
	IssueDebugCode  = "debug_code"
	IssueLongFile   = "long_file"
	IssueMissingDoc = "missing_doc"
)

const maxFileLines = 100

// Register adds the review tools to reg.
func Register(reg *registry.Registry) {
	reg.Register(ToolExtractFunctions, ExtractFunctions, "Parse state.code and list its functions")
	reg.Register(ToolCheckComplexity, CheckComplexity, "Score each function by length, loops and branches")
	reg.Register(ToolDetectIssues, DetectIssues, "Find debug prints, long files and undocumented functions")
	reg.Register(ToolSuggestImprovements, SuggestImprovements, "Turn detected issues into suggestions")
	reg.Register(ToolCalculateQuality, CalculateQualityScore, "Compute quality_score (0-100) and bump iteration")
	reg.Register(ToolApprove, verdict("approved"), "Mark the review as approved")
	reg.Register(ToolRequestChanges, verdict("changes_requested"), "Mark the review as needing changes")
}

// parseSource parses code as a Go file. Snippets without a package clause
// are wrapped in one; line numbers are reported relative to the snippet.
func parseSource(code string) (*token.FileSet, *ast.File, int, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "review.go", code, parser.ParseComments)
	if err == nil {
		return fset, file, 0, nil
	}
	if strings.HasPrefix(strings.TrimSpace(code), "package ") {
		return nil, nil, 0, err
	}
	fset = token.NewFileSet()
	file, wrappedErr := parser.ParseFile(fset, "review.go", "package review\n"+code, parser.ParseComments)
	if wrappedErr != nil {
		return nil, nil, 0, err
	}
	return fset, file, 1, nil
}

func functions(file *ast.File) []*ast.FuncDecl {
	var out []*ast.FuncDecl
	for _, decl := range file.Decls {
		if fn, ok := decl.(*ast.FuncDecl); ok {
			out = append(out, fn)
		}
	}
	return out
}

func funcName(fn *ast.FuncDecl) string {
	if fn.Recv == nil || len(fn.Recv.List) == 0 {
		return fn.Name.Name
	}
	recv := fn.Recv.List[0].Type
	if star, ok := recv.(*ast.StarExpr); ok {
		recv = star.X
	}
	if ident, ok := recv.(*ast.Ident); ok {
		return ident.Name + "." + fn.Name.Name
	}
	return fn.Name.Name
}

// ExtractFunctions writes functions and num_functions.
func ExtractFunctions(_ context.Context, state domain.State) (domain.State, error) {
	code, _ := state["code"].(string)

	var found []any
	fset, file, offset, err := parseSource(code)
	if err != nil {
		found = []any{map[string]any{"name": "parse_error", "line_start": 0, "num_args": 0}}
		state["parse_error"] = err.Error()
	} else {
		for _, fn := range functions(file) {
			args := 0
			for _, field := range fn.Type.Params.List {
				if len(field.Names) == 0 {
					args++
				}
				args += len(field.Names)
			}
			found = append(found, map[string]any{
				"name":       funcName(fn),
				"line_start": fset.Position(fn.Pos()).Line - offset,
				"num_args":   args,
			})
		}
	}
	if found == nil {
		found = []any{}
	}

	state["functions"] = found
	state["num_functions"] = len(found)
	return state, nil
}

// CheckComplexity writes complexity and avg_complexity.
// score = lines*0.1 + loops*2 + branches*1.5, per function.
func CheckComplexity(_ context.Context, state domain.State) (domain.State, error) {
	code, _ := state["code"].(string)

	scores := []any{}
	total := 0.0
	if fset, file, _, err := parseSource(code); err == nil {
		for _, fn := range functions(file) {
			lines := fset.Position(fn.End()).Line - fset.Position(fn.Pos()).Line + 1
			loops, branches := 0, 0
			if fn.Body != nil {
				ast.Inspect(fn.Body, func(n ast.Node) bool {
					switch c := n.(type) {
					case *ast.ForStmt, *ast.RangeStmt:
						loops++
					case *ast.IfStmt:
						branches++
					case *ast.CaseClause:
						if c.List != nil {
							branches++
						}
					case *ast.CommClause:
						if c.Comm != nil {
							branches++
						}
					}
					return true
				})
			}
			score := round2(float64(lines)*0.1 + float64(loops)*2 + float64(branches)*1.5)
			total += score
			scores = append(scores, map[string]any{"function": funcName(fn), "score": score})
		}
	}

	state["complexity"] = scores
	avg := 0.0
	if len(scores) > 0 {
		avg = round2(total / float64(len(scores)))
	}
	state["avg_complexity"] = avg
	return state, nil
}

// DetectIssues writes issues and num_issues.
func DetectIssues(_ context.Context, state domain.State) (domain.State, error) {
	code, _ := state["code"].(string)

	issues := []any{}
	add := func(kind, msg string) {
		issues = append(issues, map[string]any{"type": kind, "message": msg})
	}

	if _, file, _, err := parseSource(code); err == nil {
		if debugPrints(file) > 0 {
			add(IssueDebugCode, "Found print statements")
		}
		for _, fn := range functions(file) {
			if fn.Doc == nil {
				add(IssueMissingDoc, fmt.Sprintf("Function '%s' missing doc comment", funcName(fn)))
			}
		}
	} else if strings.Contains(code, "fmt.Print") || strings.Contains(code, "println(") {
		add(IssueDebugCode, "Found print statements")
	}
	if strings.Count(code, "\n")+1 > maxFileLines {
		add(IssueLongFile, "File is too long")
	}

	state["issues"] = issues
	state["num_issues"] = len(issues)
	return state, nil
}

// debugPrints counts fmt.Print* and builtin print calls.
func debugPrints(file *ast.File) int {
	count := 0
	ast.Inspect(file, func(n ast.Node) bool {
		call, ok := n.(*ast.CallExpr)
		if !ok {
			return true
		}
		switch fn := call.Fun.(type) {
		case *ast.Ident:
			if fn.Name == "print" || fn.Name == "println" {
				count++
			}
		case *ast.SelectorExpr:
			if pkg, ok := fn.X.(*ast.Ident); ok && pkg.Name == "fmt" && strings.HasPrefix(fn.Sel.Name, "Print") {
				count++
			}
		}
		return true
	})
	return count
}

// SuggestImprovements writes suggestions and num_suggestions.
func SuggestImprovements(_ context.Context, state domain.State) (domain.State, error) {
	suggestions := []any{}

	issues, _ := state["issues"].([]any)
	for _, raw := range issues {
		issue, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		switch issue["type"] {
		case IssueDebugCode:
			suggestions = append(suggestions, "Remove debug print statements before production")
		case IssueMissingDoc:
			suggestions = append(suggestions, fmt.Sprintf("Add doc comment: %v", issue["message"]))
		case IssueLongFile:
			suggestions = append(suggestions, "Consider splitting file into smaller files")
		}
	}
	if number(state["avg_complexity"], 0) > 10 {
		suggestions = append(suggestions, "Consider refactoring complex functions")
	}

	state["suggestions"] = suggestions
	state["num_suggestions"] = len(suggestions)
	return state, nil
}

// CalculateQualityScore writes quality_score and increments iteration.
func CalculateQualityScore(_ context.Context, state domain.State) (domain.State, error) {
	issues := number(state["num_issues"], 0)
	complexity := number(state["avg_complexity"], 0)

	score := 100 - issues*10 - math.Min(complexity*2, 30)
	state["quality_score"] = round2(math.Max(0, score))
	state["iteration"] = int(number(state["iteration"], 0)) + 1
	return state, nil
}

func verdict(v string) registry.ToolFunction {
	return func(_ context.Context, state domain.State) (domain.State, error) {
		state["verdict"] = v
		return state, nil
	}
}

func number(v any, def float64) float64 {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case float64:
		return n
	}
	return def
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
