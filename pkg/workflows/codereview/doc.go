// Package codereview ships a ready-made workflow that reviews a Go source
// file held in state["code"].
//
// The graph extracts functions, scores their complexity, detects common
// issues, turns them into suggestions and computes a quality score. The
// score node is a loop that re-scores while the quality stays below 70,
// at most three times, and the run ends on an approve or reject node.
package codereview
