// Package definition reads and writes graph documents.
//
// A document is the JSON or YAML form accepted by the HTTP API and the CLI:
//
//	nodes: [extract, analyze, score, done]
//	start_node: extract
//	edges:
//	  extract: analyze
//	  analyze: score
//	  score:
//	    condition: "quality_score >= 70"
//	    true: done
//	    false: analyze
//	node_configs:
//	  score:
//	    type: loop
//	    tool: calculate_quality_score
//	    loop_condition: "quality_score < 70"
//	    max_iterations: 3
//
// Decoding goes through mapstructure so both encodings share one code path.
// Validation is left to domain.NewGraph.
package definition
