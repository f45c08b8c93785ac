// Package config is convgraph's JSON graph-spec loader and writer,
// grounded on the teacher's nn/serialization.go: a typed JSON document
// with opaque base64-encoded weight blobs, read and written through
// plain os.ReadFile/os.WriteFile rather than a database or RPC layer.
package config

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"

	"github.com/openfluke/convgraph/cube"
	"github.com/openfluke/convgraph/edge"
	"github.com/openfluke/convgraph/graph"
)

// NodeSpec is the JSON form of one node option bag (§6).
type NodeSpec struct {
	Name        string  `json:"name"`
	Type        string  `json:"type"`
	Size        int     `json:"size"`
	Function    string  `json:"function,omitempty"`
	Biases      string  `json:"biases,omitempty"` // base64 of little-endian float64s
	Init        string  `json:"init,omitempty"`
	Eta         float64 `json:"eta,omitempty"`
	Momentum    float64 `json:"momentum,omitempty"`
	WeightDecay float64 `json:"weight_decay,omitempty"`
}

// EdgeSpec is the JSON form of one edge option bag (§6).
type EdgeSpec struct {
	Name        string  `json:"name"`
	Type        string  `json:"type"`
	Input       string  `json:"input"`
	Output      string  `json:"output"`
	Size        *[3]int `json:"size,omitempty"`
	Stride      *[3]int `json:"stride,omitempty"`
	Filters     string  `json:"filters,omitempty"` // base64 of little-endian float64s
	Init        string  `json:"init,omitempty"`
	Eta         float64 `json:"eta,omitempty"`
	Momentum    float64 `json:"momentum,omitempty"`
	WeightDecay float64 `json:"weight_decay,omitempty"`
}

// GraphSpec is a complete, self-contained graph description: the
// output-feature-map shape plus every node and edge option bag, in
// construction order.
type GraphSpec struct {
	OutputShape [3]int     `json:"outsz"`
	Nodes       []NodeSpec `json:"nodes"`
	Edges       []EdgeSpec `json:"edges"`
}

// Parse decodes a JSON document into the ordered option-bag lists
// graph.New expects.
func Parse(data []byte) ([]graph.Options, []graph.Options, cube.Shape, error) {
	var spec GraphSpec
	if err := json.Unmarshal(data, &spec); err != nil {
		return nil, nil, cube.Shape{}, fmt.Errorf("config: parse: %w", err)
	}

	nodeOpts := make([]graph.Options, len(spec.Nodes))
	for i, n := range spec.Nodes {
		opts := graph.Options{"name": n.Name, "type": n.Type, "size": n.Size}
		if n.Function != "" {
			opts["function"] = n.Function
		}
		if n.Init != "" {
			opts["init"] = n.Init
		}
		if n.Biases != "" {
			raw, err := base64.StdEncoding.DecodeString(n.Biases)
			if err != nil {
				return nil, nil, cube.Shape{}, fmt.Errorf("config: node %s: biases: %w", n.Name, err)
			}
			opts["biases"] = raw
		}
		if n.Eta != 0 {
			opts["eta"] = n.Eta
		}
		if n.Momentum != 0 {
			opts["momentum"] = n.Momentum
		}
		if n.WeightDecay != 0 {
			opts["weight_decay"] = n.WeightDecay
		}
		nodeOpts[i] = opts
	}

	edgeOpts := make([]graph.Options, len(spec.Edges))
	for i, e := range spec.Edges {
		opts := graph.Options{"name": e.Name, "type": e.Type, "input": e.Input, "output": e.Output}
		if e.Size != nil {
			opts["size"] = cube.Shape(*e.Size)
		}
		if e.Stride != nil {
			opts["stride"] = cube.Shape(*e.Stride)
		}
		if e.Init != "" {
			opts["init"] = e.Init
		}
		if e.Filters != "" {
			raw, err := base64.StdEncoding.DecodeString(e.Filters)
			if err != nil {
				return nil, nil, cube.Shape{}, fmt.Errorf("config: edge %s: filters: %w", e.Name, err)
			}
			opts["filters"] = raw
		}
		if e.Eta != 0 {
			opts["eta"] = e.Eta
		}
		if e.Momentum != 0 {
			opts["momentum"] = e.Momentum
		}
		if e.WeightDecay != 0 {
			opts["weight_decay"] = e.WeightDecay
		}
		edgeOpts[i] = opts
	}

	return nodeOpts, edgeOpts, cube.Shape(spec.OutputShape), nil
}

// ParseFile reads and parses a graph-spec JSON file.
func ParseFile(path string) ([]graph.Options, []graph.Options, cube.Shape, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, cube.Shape{}, fmt.Errorf("config: %w", err)
	}
	return Parse(data)
}

// Build parses data and constructs a Graph in one step. rng and gpu are
// forwarded to graph.New verbatim; either may be nil.
func Build(data []byte, rng *rand.Rand, gpu edge.GPUConvolver) (*graph.Graph, error) {
	nodeOpts, edgeOpts, outsz, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return graph.New(nodeOpts, edgeOpts, outsz, rng, gpu)
}

// BuildFile reads, parses, and constructs a Graph from a JSON file.
func BuildFile(path string, rng *rand.Rand, gpu edge.GPUConvolver) (*graph.Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return Build(data, rng, gpu)
}

// Marshal serializes g's current parameter state into a GraphSpec
// document (§6's serialize, round-tripped through base64). The document's
// outsz is not filled in and is written as [0, 0, 0]: a Graph does not
// keep the output shape it was built with.
func Marshal(g *graph.Graph) ([]byte, error) {
	nodeOpts, edgeOpts := g.Serialize()

	spec := GraphSpec{Nodes: make([]NodeSpec, len(nodeOpts)), Edges: make([]EdgeSpec, len(edgeOpts))}
	for i, opts := range nodeOpts {
		spec.Nodes[i] = nodeSpecFromOptions(opts)
	}
	for i, opts := range edgeOpts {
		spec.Edges[i] = edgeSpecFromOptions(opts)
	}

	data, err := json.MarshalIndent(spec, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("config: marshal: %w", err)
	}
	return data, nil
}

// WriteFile marshals g and writes it to path.
func WriteFile(g *graph.Graph, path string) error {
	data, err := Marshal(g)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func nodeSpecFromOptions(opts graph.Options) NodeSpec {
	n := NodeSpec{
		Name:     opts.OptionalString("name", ""),
		Type:     opts.OptionalString("type", ""),
		Function: opts.OptionalString("function", ""),
		Init:     opts.OptionalString("init", ""),
	}
	if v, ok := opts["size"].(int); ok {
		n.Size = v
	}
	if v, ok := opts["biases"].([]byte); ok {
		n.Biases = base64.StdEncoding.EncodeToString(v)
	}
	if v, ok := opts["eta"].(float64); ok {
		n.Eta = v
	}
	if v, ok := opts["momentum"].(float64); ok {
		n.Momentum = v
	}
	if v, ok := opts["weight_decay"].(float64); ok {
		n.WeightDecay = v
	}
	return n
}

func edgeSpecFromOptions(opts graph.Options) EdgeSpec {
	e := EdgeSpec{
		Name:   opts.OptionalString("name", ""),
		Type:   opts.OptionalString("type", ""),
		Input:  opts.OptionalString("input", ""),
		Output: opts.OptionalString("output", ""),
		Init:   opts.OptionalString("init", ""),
	}
	if v, ok := opts["size"].(cube.Shape); ok {
		arr := [3]int(v)
		e.Size = &arr
	}
	if v, ok := opts["stride"].(cube.Shape); ok {
		arr := [3]int(v)
		e.Stride = &arr
	}
	if v, ok := opts["filters"].([]byte); ok {
		e.Filters = base64.StdEncoding.EncodeToString(v)
	}
	if v, ok := opts["eta"].(float64); ok {
		e.Eta = v
	}
	if v, ok := opts["momentum"].(float64); ok {
		e.Momentum = v
	}
	if v, ok := opts["weight_decay"].(float64); ok {
		e.WeightDecay = v
	}
	return e
}
