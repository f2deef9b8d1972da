package codereview

import (
	"github.com/aretw0/flowline/pkg/domain"
	"github.com/aretw0/flowline/pkg/dsl"
)

// GraphID is the identifier used when the example graph is stored.
const GraphID = "code-review"

// QualityThreshold is the score a file needs to be approved.
const QualityThreshold = 70

const retryCondition = "state.get('quality_score', 0) < 70 and state.get('iteration', 0) < 3"

// Definition returns the review graph:
//
//	extract -> analyze -> detect -> improve -> score (loop) -> approve | reject
func Definition() domain.GraphDefinition {
	b := dsl.New()
	b.Add("extract").Do(ToolExtractFunctions).Describe("List the functions of the file").Go("analyze")
	b.Add("analyze").Do(ToolCheckComplexity).Describe("Measure function complexity").Go("detect")
	b.Add("detect").Do(ToolDetectIssues).Describe("Detect common issues").Go("improve")
	b.Add("improve").Do(ToolSuggestImprovements).Describe("Suggest improvements").Go("score")
	b.Add("score").
		Do(ToolCalculateQuality).
		Describe("Score the file, re-scoring while quality is low").
		Loop(retryCondition, 3).
		Branch("quality_score >= quality_threshold", "approve", "reject")
	b.Add("approve").Do(ToolApprove)
	b.Add("reject").Do(ToolRequestChanges)
	return b.Definition()
}

// Graph builds the validated review graph under id.
func Graph(id string) (*domain.Graph, error) {
	return domain.NewGraph(id, Definition())
}

// SampleCode is a small Go file with a debug print and no doc comments.
const SampleCode = `package sample

import "fmt"

func CalculateTotal(items []int) int {
	total := 0
	for _, item := range items {
		if item > 0 {
			total += item
		}
	}
	fmt.Println("Total:", total)
	return total
}

func processData(data []int) []int {
	var result []int
	for i := 0; i < len(data); i++ {
		if data[i]%2 == 0 {
			result = append(result, data[i]*2)
		} else {
			result = append(result, data[i])
		}
	}
	return result
}
`

// ExampleState returns the initial state for reviewing SampleCode.
func ExampleState() domain.State {
	return domain.State{
		"code":              SampleCode,
		"quality_threshold": QualityThreshold,
		"iteration":         0,
	}
}

// Summary condenses a finished review run.
type Summary struct {
	TotalSteps     int `json:"total_steps"`
	QualityScore   any `json:"quality_score"`
	NumIssues      any `json:"num_issues"`
	NumSuggestions any `json:"num_suggestions"`
	Iterations     any `json:"iterations"`
	Verdict        any `json:"verdict"`
}

// Summarize extracts the review figures from a run.
func Summarize(run *domain.Run) Summary {
	return Summary{
		TotalSteps:     len(run.Log),
		QualityScore:   run.State["quality_score"],
		NumIssues:      run.State["num_issues"],
		NumSuggestions: run.State["num_suggestions"],
		Iterations:     run.State["iteration"],
		Verdict:        run.State["verdict"],
	}
}
