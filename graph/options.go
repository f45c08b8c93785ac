package graph

import (
	"fmt"

	"github.com/openfluke/convgraph/cube"
)

// ConfigError reports a construction-time problem: an unknown node/edge
// type string, a missing required option, a duplicate name, or an edge
// referencing an unknown node name (§7).
type ConfigError struct {
	Where string
	Msg   string
}

func (e *ConfigError) Error() string { return fmt.Sprintf("convgraph: %s: %s", e.Where, e.Msg) }

// GraphInconsistent reports a geometry pass finding conflicting
// stride/fov/fsize on a revisited node group (§4.6, §7).
type GraphInconsistent struct {
	Node string
	Msg  string
}

func (e *GraphInconsistent) Error() string {
	return fmt.Sprintf("convgraph: node %s: %s", e.Node, e.Msg)
}

// Options is a string-keyed option bag, the Go analogue of the option
// records described in §6. Values are stored as interface{} and read back
// with the typed helpers below: a missing or mistyped required key is
// reported as a *ConfigError, while an optional key that is absent or
// mistyped falls back to its default.
type Options map[string]interface{}

func (o Options) requireString(where, key string) (string, error) {
	v, ok := o[key]
	if !ok {
		return "", &ConfigError{Where: where, Msg: fmt.Sprintf("missing required option %q", key)}
	}
	s, ok := v.(string)
	if !ok {
		return "", &ConfigError{Where: where, Msg: fmt.Sprintf("option %q must be a string", key)}
	}
	return s, nil
}

func (o Options) requireInt(where, key string) (int, error) {
	v, ok := o[key]
	if !ok {
		return 0, &ConfigError{Where: where, Msg: fmt.Sprintf("missing required option %q", key)}
	}
	i, ok := v.(int)
	if !ok {
		return 0, &ConfigError{Where: where, Msg: fmt.Sprintf("option %q must be an int", key)}
	}
	return i, nil
}

func (o Options) requireShape(where, key string) (cube.Shape, error) {
	v, ok := o[key]
	if !ok {
		return cube.Shape{}, &ConfigError{Where: where, Msg: fmt.Sprintf("missing required option %q", key)}
	}
	s, ok := v.(cube.Shape)
	if !ok {
		return cube.Shape{}, &ConfigError{Where: where, Msg: fmt.Sprintf("option %q must be a 3-vector", key)}
	}
	return s, nil
}

func (o Options) optionalShape(key string, def cube.Shape) cube.Shape {
	if v, ok := o[key]; ok {
		if s, ok := v.(cube.Shape); ok {
			return s
		}
	}
	return def
}

func (o Options) optionalFloat(key string, def float64) float64 {
	if v, ok := o[key]; ok {
		switch t := v.(type) {
		case float64:
			return t
		case int:
			return float64(t)
		}
	}
	return def
}

// OptionalString reads a string-valued option, returning def if key is
// absent or not a string. Exported so callers outside this package (e.g.
// config's option-bag decoding) can read an Options bag without
// re-implementing the same type assertion.
func (o Options) OptionalString(key, def string) string {
	if v, ok := o[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

func (o Options) bytes(key string) ([]byte, bool) {
	v, ok := o[key]
	if !ok {
		return nil, false
	}
	b, ok := v.([]byte)
	return b, ok
}

// Clone returns a shallow copy, used by Graph.Serialize so callers may
// mutate the returned option bags without affecting the graph's own
// construction-time copies.
func (o Options) Clone() Options {
	out := make(Options, len(o))
	for k, v := range o {
		out[k] = v
	}
	return out
}
