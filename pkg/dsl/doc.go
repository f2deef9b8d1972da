/*
Package dsl provides a fluent builder for constructing workflow graphs in Go
instead of YAML or JSON documents.

Example usage:

	b := dsl.New()
	b.Add("fetch").Do("download").Go("check")
	b.Add("check").Branch("size > 1000", "compress", "store")
	b.Add("compress").Do("gzip").Loop("ratio > 0.9", 3).Go("store")
	b.Add("store").Do("upload")

	graph, err := b.Build("pipeline")
*/
package dsl
