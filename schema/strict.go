package schema

import (
	"sort"
	"strings"
)

// ToStrict applies the strict-mode transform of spec.md §4.3: strips
// `x-*` extensions and `default`, forces every object's `properties` to
// be `additionalProperties: false` and fully required, and marks
// previously-optional properties nullable so the stricter shape still
// accepts their absence-equivalent.
func ToStrict(schema Node) Node {
	return toStrict(schema)
}

func toStrict(schema Node) Node {
	if schema == nil {
		return nil
	}
	out := make(Node, len(schema))
	for k, v := range schema {
		if k == "default" || strings.HasPrefix(k, "x-") {
			continue
		}
		out[k] = v
	}

	if props, ok := asNode(out["properties"]); ok {
		required, _ := asSlice(out["required"])
		requiredSet := make(map[string]struct{}, len(required))
		for _, r := range required {
			if s, ok := asString(r); ok {
				requiredSet[s] = struct{}{}
			}
		}

		names := make([]string, 0, len(props))
		for name := range props {
			names = append(names, name)
		}
		sort.Strings(names)

		newProps := make(Node, len(props))
		newRequired := make([]interface{}, 0, len(props))
		for _, name := range names {
			pn, isNode := asNode(props[name])
			var transformed Node
			if isNode {
				transformed = toStrict(pn)
			} else {
				transformed = Node{}
			}

			if _, wasRequired := requiredSet[name]; !wasRequired {
				transformed = makeNullable(transformed)
			}
			newProps[name] = transformed
			newRequired = append(newRequired, name)
		}
		out["properties"] = newProps
		out["required"] = newRequired
		out["additionalProperties"] = false
	}

	if items, ok := asNode(out["items"]); ok {
		out["items"] = toStrict(items)
	}

	for _, key := range []string{"oneOf", "anyOf", "allOf"} {
		if members, ok := asSlice(out[key]); ok {
			transformed := make([]interface{}, len(members))
			for i, m := range members {
				if mn, ok := asNode(m); ok {
					transformed[i] = toStrict(mn)
				} else {
					transformed[i] = m
				}
			}
			out[key] = transformed
		}
	}

	return out
}

// makeNullable wraps schema so it additionally accepts null: the
// type-array form for a primitive `type`, or `oneOf: [original, {type:
// null}]` otherwise (spec.md §4.3 "Strict transform" step 3).
func makeNullable(schema Node) Node {
	typeVal, hasType := schema["type"]
	if hasType {
		if t, ok := asString(typeVal); ok && t != "object" && t != "array" {
			out := cloneNode(schema)
			out["type"] = []interface{}{t, "null"}
			return out
		}
	}
	return Node{
		"oneOf": []interface{}{schema, Node{"type": "null"}},
	}
}
