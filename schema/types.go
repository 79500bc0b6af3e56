// Package schema turns human-authored YAML/JSON-Schema documents into
// runtime validators and into export formats for multiple consumers
// (spec.md §4.3).
//
// Schema documents are represented as the same dynamic
// map[string]interface{}/[]interface{} tree gopkg.in/yaml.v3 and
// encoding/json both decode into — there is no fixed Go struct for "a
// JSON-Schema", since the whole point of this package is to walk an
// open-ended document. This mirrors how the teacher's own config layer
// treats loosely-typed YAML documents before projecting them onto
// concrete structs (internal/common/config), generalized here to a
// document that is never projected onto a fixed struct at all.
package schema

import "fmt"

// Node is one JSON-Schema document (or subdocument) as decoded from
// YAML/JSON: an ordered-irrelevant map of keywords to values. It is a
// named (not aliased) map type: top-level bundle fields decode
// directly into Node, while nested mapping values decode as plain
// map[string]interface{} (yaml.v3 does not know to recurse a named
// map type), which is why helpers throughout this package accept
// both representations via asNode.
type Node map[string]interface{}

// Bundle is the loaded, not-yet-resolved schema declaration for one
// module (spec.md §4.3 "Loading").
type Bundle struct {
	ModuleID     string
	Description  string
	Version      string
	Documentation string
	InputSchema  Node
	OutputSchema Node
	Definitions  Node // merged `definitions`/`$defs`
	SourcePath   string
}

// LoadStrategy selects how a bundle is located (spec.md §4.3 "Loader strategies").
type LoadStrategy string

const (
	YAMLFirst   LoadStrategy = "yaml_first"
	NativeFirst LoadStrategy = "native_first"
	YAMLOnly    LoadStrategy = "yaml_only"
)

// NativeProvider supplies a code-authored bundle for a module_id, used
// as the fallback (or preference) half of yaml_first/native_first.
type NativeProvider func(moduleID string) (*Bundle, bool)

func cloneNode(n Node) Node {
	if n == nil {
		return nil
	}
	out := make(Node, len(n))
	for k, v := range n {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch t := v.(type) {
	case Node:
		return cloneNode(t)
	case map[string]interface{}:
		return cloneNode(t)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return t
	}
}

func asNode(v interface{}) (Node, bool) {
	switch t := v.(type) {
	case Node:
		return t, true
	case map[string]interface{}:
		return t, true
	case map[interface{}]interface{}:
		// yaml.v2-style map, defensively handled even though this module
		// decodes with yaml.v3 (which produces map[string]interface{}).
		out := make(Node, len(t))
		for k, val := range t {
			out[fmt.Sprintf("%v", k)] = val
		}
		return out, true
	default:
		return nil, false
	}
}

func asSlice(v interface{}) ([]interface{}, bool) {
	s, ok := v.([]interface{})
	return s, ok
}

func asString(v interface{}) (string, bool) {
	s, ok := v.(string)
	return s, ok
}
