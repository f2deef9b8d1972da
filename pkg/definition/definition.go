package definition

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"

	"github.com/aretw0/flowline/pkg/domain"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Format is the encoding of a graph document.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ErrUnsupportedFormat is returned for file extensions other than .json, .yaml and .yml.
var ErrUnsupportedFormat = errors.New("unsupported document format")

// FormatFromPath picks the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
}

// NodeSpec is the wire shape of a node config.
type NodeSpec struct {
	Type          string `mapstructure:"type"`
	Tool          string `mapstructure:"tool"`
	Description   string `mapstructure:"description"`
	LoopCondition string `mapstructure:"loop_condition"`
	MaxIterations *int   `mapstructure:"max_iterations"`
}

// Document is a decoded graph file. InitialState is optional and only
// consumed by local runs.
type Document struct {
	Nodes        []string               `mapstructure:"nodes"`
	Edges        map[string]domain.Edge `mapstructure:"edges"`
	StartNode    string                 `mapstructure:"start_node"`
	NodeConfigs  map[string]NodeSpec    `mapstructure:"node_configs"`
	InitialState map[string]any         `mapstructure:"initial_state"`

	// Unused lists keys that were present but not understood, e.g. "graph_id".
	Unused []string `mapstructure:"-"`
}

// Definition converts the document into a domain definition.
// Loop nodes without max_iterations get domain.DefaultMaxIterations.
func (d *Document) Definition() domain.GraphDefinition {
	def := domain.GraphDefinition{
		Nodes:     append([]string(nil), d.Nodes...),
		Edges:     make(map[string]domain.Edge, len(d.Edges)),
		StartNode: d.StartNode,
	}
	for from, e := range d.Edges {
		def.Edges[from] = e
	}
	if len(d.NodeConfigs) > 0 {
		def.NodeConfigs = make(map[string]domain.NodeConfig, len(d.NodeConfigs))
	}
	for name, spec := range d.NodeConfigs {
		cfg := domain.NodeConfig{
			Name:          name,
			Type:          domain.NodeType(spec.Type),
			Tool:          spec.Tool,
			Description:   spec.Description,
			LoopCondition: spec.LoopCondition,
		}
		if spec.MaxIterations != nil {
			cfg.MaxIterations = *spec.MaxIterations
		} else if t, err := domain.ParseNodeType(spec.Type); err == nil && t == domain.NodeTypeLoop {
			cfg.MaxIterations = domain.DefaultMaxIterations
		}
		def.NodeConfigs[name] = cfg
	}
	return def
}

// State returns the initial state carried by the document, never nil.
func (d *Document) State() domain.State {
	if d.InitialState == nil {
		return domain.State{}
	}
	return domain.State(d.InitialState).Clone()
}

// Parse decodes a document in the given format.
func Parse(data []byte, format Format) (*Document, error) {
	var raw any
	switch format {
	case FormatJSON:
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("failed to parse json: %w", err)
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("failed to parse yaml: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	m, ok := normalize(raw).(map[string]any)
	if !ok {
		return nil, fmt.Errorf("graph document must be an object, got %T", raw)
	}
	return FromMap(m)
}

// Decode reads a whole document from r.
func Decode(r io.Reader, format Format) (*Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}
	return Parse(data, format)
}

// Load reads a document from disk, picking the format from the extension.
func Load(path string) (*Document, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	doc, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// FromMap decodes an already unmarshalled document, e.g. an HTTP request body.
func FromMap(m map[string]any) (*Document, error) {
	var doc Document
	var md mapstructure.Metadata
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: edgeHook,
		Metadata:   &md,
		Result:     &doc,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(normalize(m)); err != nil {
		return nil, fmt.Errorf("invalid graph document: %w", err)
	}
	doc.Unused = md.Unused
	sort.Strings(doc.Unused)
	if doc.InitialState != nil {
		doc.InitialState = normalize(doc.InitialState).(map[string]any)
	}
	return &doc, nil
}

var edgeType = reflect.TypeOf(domain.Edge{})

// edgeHook turns a bare node name or a {condition, true, false} object into a domain.Edge.
func edgeHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if to != edgeType {
		return data, nil
	}
	switch v := data.(type) {
	case string:
		return domain.Simple(v), nil
	case map[string]any:
		cond, _ := v["condition"].(string)
		if cond == "" {
			return nil, fmt.Errorf("conditional edge is missing its condition")
		}
		ifTrue, _ := v["true"].(string)
		ifFalse, _ := v["false"].(string)
		return domain.Conditional(cond, ifTrue, ifFalse), nil
	case domain.Edge:
		return v, nil
	}
	return nil, fmt.Errorf("edge must be a node name or a conditional object, got %T", data)
}

// normalize rewrites YAML maps with non-string keys (e.g. the bare true and
// false keys of a conditional edge) into map[string]any, recursively.
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalize(val)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = normalize(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalize(val)
		}
		return out
	}
	return v
}

// Encode renders a definition (and an optional initial state) as a document.
func Encode(def domain.GraphDefinition, initial domain.State, format Format) ([]byte, error) {
	doc := toMap(def)
	if len(initial) > 0 {
		doc["initial_state"] = map[string]any(initial.Clone())
	}
	switch format {
	case FormatJSON:
		return json.MarshalIndent(doc, "", "  ")
	case FormatYAML:
		return yaml.Marshal(doc)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
}

func toMap(def domain.GraphDefinition) map[string]any {
	edges := make(map[string]any, len(def.Edges))
	for from, e := range def.Edges {
		switch e.Kind {
		case domain.EdgeConditional:
			edges[from] = map[string]any{"condition": e.Condition, "true": e.IfTrue, "false": e.IfFalse}
		default:
			edges[from] = e.Target
		}
	}

	out := map[string]any{
		"nodes":      append([]string(nil), def.Nodes...),
		"edges":      edges,
		"start_node": def.StartNode,
	}
	if len(def.NodeConfigs) == 0 {
		return out
	}

	configs := make(map[string]any, len(def.NodeConfigs))
	for name, cfg := range def.NodeConfigs {
		spec := map[string]any{}
		if cfg.Type != "" {
			spec["type"] = string(cfg.Type)
		}
		if cfg.Tool != "" {
			spec["tool"] = cfg.Tool
		}
		if cfg.Description != "" {
			spec["description"] = cfg.Description
		}
		if cfg.LoopCondition != "" {
			spec["loop_condition"] = cfg.LoopCondition
		}
		if cfg.MaxIterations != 0 {
			spec["max_iterations"] = cfg.MaxIterations
		}
		configs[name] = spec
	}
	out["node_configs"] = configs
	return out
}
