package schema

import (
	"fmt"
	"reflect"
	"regexp"
	"strconv"
)

// Options controls validator behavior that is not itself part of the
// schema document (spec.md §4.3 "Coercion mode").
type Options struct {
	// Coerce enables compatible-primitive coercion ("123" -> 123).
	// Defaults to true per spec.md ("when enabled (default)").
	Coerce bool
}

// DefaultOptions is the spec's default: coercion on.
func DefaultOptions() Options { return Options{Coerce: true} }

// Validator is a runtime validator built from a resolved (all $ref
// resolved, all allOf merged) schema document.
type Validator struct {
	schema Node
	opts   Options
}

// Build constructs a Validator from a resolved schema, merging allOf
// (object schemas only; spec.md §4.3 "allOf") and rejecting the
// explicitly unsupported keywords ("not", "if"/"then"/"else").
func Build(resolved Node, opts Options) (*Validator, error) {
	merged, err := normalizeSchema(resolved)
	if err != nil {
		return nil, err
	}
	return &Validator{schema: merged, opts: opts}, nil
}

// Validate checks data against the validator's schema and returns ok
// plus the full list of ValidationErrors found (never short-circuits).
func (v *Validator) Validate(data interface{}) (bool, []ValidationError) {
	collector := &ErrorCollector{}
	validateNode(v.schema, data, "", v.opts.Coerce, collector)
	return collector.OK(), collector.Errors()
}

// normalizeSchema rejects unsupported keywords and recursively merges
// allOf members into their containing object schema.
func normalizeSchema(schema Node) (Node, error) {
	if schema == nil {
		return Node{}, nil
	}
	out := cloneNode(schema)

	if _, ok := out["not"]; ok {
		return nil, &ParseError{Reason: "\"not\" is not supported"}
	}
	if _, ok := out["if"]; ok {
		return nil, &ParseError{Reason: "\"if\"/\"then\"/\"else\" is not supported"}
	}

	if props, ok := asNode(out["properties"]); ok {
		normalizedProps := make(Node, len(props))
		for k, v := range props {
			pn, ok := asNode(v)
			if !ok {
				normalizedProps[k] = v
				continue
			}
			nn, err := normalizeSchema(pn)
			if err != nil {
				return nil, err
			}
			normalizedProps[k] = nn
		}
		out["properties"] = normalizedProps
	}

	if items, ok := asNode(out["items"]); ok {
		ni, err := normalizeSchema(items)
		if err != nil {
			return nil, err
		}
		out["items"] = ni
	}

	if ap, ok := asNode(out["additionalProperties"]); ok {
		nap, err := normalizeSchema(ap)
		if err != nil {
			return nil, err
		}
		out["additionalProperties"] = nap
	}

	for _, key := range []string{"oneOf", "anyOf"} {
		if members, ok := asSlice(out[key]); ok {
			normalized := make([]interface{}, len(members))
			for i, m := range members {
				mn, ok := asNode(m)
				if !ok {
					normalized[i] = m
					continue
				}
				nn, err := normalizeSchema(mn)
				if err != nil {
					return nil, err
				}
				normalized[i] = nn
			}
			out[key] = normalized
		}
	}

	if members, ok := asSlice(out["allOf"]); ok {
		if err := mergeAllOfInto(out, members); err != nil {
			return nil, err
		}
	}

	return out, nil
}

func mergeAllOfInto(dst Node, members []interface{}) error {
	for _, mv := range members {
		m, ok := asNode(mv)
		if !ok {
			return &ParseError{Reason: "allOf member must be an object schema"}
		}
		normalized, err := normalizeSchema(m)
		if err != nil {
			return err
		}
		if t, ok := asString(normalized["type"]); ok && t != "object" {
			return &ParseError{Reason: fmt.Sprintf("allOf member has non-object type %q", t)}
		}
		if dstType, ok := asString(dst["type"]); ok && dstType != "object" {
			return &ParseError{Reason: fmt.Sprintf("allOf conflicts with containing type %q", dstType)}
		}

		if props, ok := asNode(normalized["properties"]); ok {
			dstProps, ok := asNode(dst["properties"])
			if !ok {
				dstProps = Node{}
			}
			for k, v := range props {
				dstProps[k] = v
			}
			dst["properties"] = dstProps
		}
		if req, ok := asSlice(normalized["required"]); ok {
			dstReq, _ := asSlice(dst["required"])
			dst["required"] = unionStrings(dstReq, req)
		}
		if ap, ok := normalized["additionalProperties"]; ok {
			if b, isBool := ap.(bool); isBool && !b {
				dst["additionalProperties"] = false
			} else if _, exists := dst["additionalProperties"]; !exists {
				dst["additionalProperties"] = ap
			}
		}
	}
	if dst["type"] == nil {
		dst["type"] = "object"
	}
	delete(dst, "allOf")
	return nil
}

func unionStrings(a, b []interface{}) []interface{} {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]interface{}, 0, len(a)+len(b))
	for _, list := range [][]interface{}{a, b} {
		for _, v := range list {
			s, _ := asString(v)
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, v)
		}
	}
	return out
}

// validateNode is the recursive workhorse. It never short-circuits:
// every applicable keyword is checked and every failure recorded.
func validateNode(schema Node, data interface{}, path string, coerce bool, c *ErrorCollector) {
	if schema == nil {
		return
	}

	data, typeOK := checkType(schema, data, path, coerce, c)

	if cv, ok := schema["const"]; ok {
		if !deepEqual(cv, data) {
			c.Add(path, "const", "value does not equal const", cv, data)
		}
	}
	if enumVals, ok := asSlice(schema["enum"]); ok {
		matched := false
		for _, e := range enumVals {
			if deepEqual(e, data) {
				matched = true
				break
			}
		}
		if !matched {
			c.Add(path, "enum", "value is not one of the allowed enum values", enumVals, data)
		}
	}

	if typeOK {
		switch v := data.(type) {
		case Node:
			validateObject(schema, v, path, coerce, c)
		case map[string]interface{}:
			validateObject(schema, Node(v), path, coerce, c)
		case []interface{}:
			validateArray(schema, v, path, coerce, c)
		case string:
			validateString(schema, v, path, c)
		case float64, int, int64:
			validateNumber(schema, toFloat(v), path, c)
		}
	}

	validateComposition(schema, data, path, coerce, c)
}

func validateComposition(schema Node, data interface{}, path string, coerce bool, c *ErrorCollector) {
	if members, ok := asSlice(schema["oneOf"]); ok {
		// Branches are first matched without coercion; coercion is tried
		// only when no branch matches as-is, the same order checkType uses.
		matches := 0
		for _, co := range []bool{false, true} {
			if co && (matches > 0 || !coerce) {
				break
			}
			for _, m := range members {
				mn, ok := asNode(m)
				if !ok {
					continue
				}
				sub := &ErrorCollector{}
				validateNode(mn, data, path, co, sub)
				if sub.OK() {
					matches++
				}
			}
		}
		if matches != 1 {
			c.Add(path, "oneOf", fmt.Sprintf("expected exactly one oneOf branch to match, got %d", matches), 1, matches)
		}
	}
	if members, ok := asSlice(schema["anyOf"]); ok {
		matches := 0
		for _, m := range members {
			mn, ok := asNode(m)
			if !ok {
				continue
			}
			sub := &ErrorCollector{}
			validateNode(mn, data, path, coerce, sub)
			if sub.OK() {
				matches++
			}
		}
		if matches == 0 {
			c.Add(path, "anyOf", "no anyOf branch matched", nil, data)
		}
	}
}

func validateObject(schema Node, data Node, path string, coerce bool, c *ErrorCollector) {
	props, _ := asNode(schema["properties"])
	required, _ := asSlice(schema["required"])

	for _, rv := range required {
		name, _ := asString(rv)
		if _, ok := data[name]; !ok {
			c.Add(joinPath(path, name), "required", fmt.Sprintf("missing required property %q", name), nil, nil)
		}
	}

	for key, val := range data {
		propSchema, hasProp := asNode(props[key])
		if hasProp {
			validateNode(propSchema, val, joinPath(path, key), coerce, c)
			continue
		}

		switch ap := schema["additionalProperties"].(type) {
		case bool:
			if !ap {
				c.Add(joinPath(path, key), "additionalProperties", fmt.Sprintf("unexpected property %q", key), nil, key)
			}
		case Node:
			validateNode(ap, val, joinPath(path, key), coerce, c)
		case map[string]interface{}:
			validateNode(Node(ap), val, joinPath(path, key), coerce, c)
		default:
			// absent additionalProperties: unknown fields allowed.
		}
	}
}

func validateArray(schema Node, data []interface{}, path string, coerce bool, c *ErrorCollector) {
	if itemSchema, ok := asNode(schema["items"]); ok {
		for i, el := range data {
			validateNode(itemSchema, el, fmt.Sprintf("%s/%d", path, i), coerce, c)
		}
	}
	if minItems, ok := asInt(schema["minItems"]); ok && len(data) < minItems {
		c.Add(path, "minItems", "array has fewer than minItems elements", minItems, len(data))
	}
	if maxItems, ok := asInt(schema["maxItems"]); ok && len(data) > maxItems {
		c.Add(path, "maxItems", "array has more than maxItems elements", maxItems, len(data))
	}
	if unique, ok := schema["uniqueItems"].(bool); ok && unique {
		seen := make([]interface{}, 0, len(data))
		for i, el := range data {
			for _, prev := range seen {
				if deepEqual(prev, el) {
					c.Add(fmt.Sprintf("%s/%d", path, i), "uniqueItems", "array elements must be unique", nil, el)
					break
				}
			}
			seen = append(seen, el)
		}
	}
}

func validateString(schema Node, data string, path string, c *ErrorCollector) {
	if minLen, ok := asInt(schema["minLength"]); ok && len(data) < minLen {
		c.Add(path, "minLength", "string shorter than minLength", minLen, len(data))
	}
	if maxLen, ok := asInt(schema["maxLength"]); ok && len(data) > maxLen {
		c.Add(path, "maxLength", "string longer than maxLength", maxLen, len(data))
	}
	if patStr, ok := asString(schema["pattern"]); ok {
		re, err := regexp.Compile(patStr)
		if err != nil {
			c.Add(path, "pattern", fmt.Sprintf("invalid pattern %q: %v", patStr, err), patStr, data)
		} else if !re.MatchString(data) {
			c.Add(path, "pattern", "string does not match pattern", patStr, data)
		}
	}
}

func validateNumber(schema Node, data float64, path string, c *ErrorCollector) {
	if min, ok := asFloat(schema["minimum"]); ok && data < min {
		c.Add(path, "minimum", "value below minimum", min, data)
	}
	if max, ok := asFloat(schema["maximum"]); ok && data > max {
		c.Add(path, "maximum", "value above maximum", max, data)
	}
	if min, ok := asFloat(schema["exclusiveMinimum"]); ok && data <= min {
		c.Add(path, "exclusiveMinimum", "value not above exclusiveMinimum", min, data)
	}
	if max, ok := asFloat(schema["exclusiveMaximum"]); ok && data >= max {
		c.Add(path, "exclusiveMaximum", "value not below exclusiveMaximum", max, data)
	}
	if mult, ok := asFloat(schema["multipleOf"]); ok && mult != 0 {
		ratio := data / mult
		if ratio != float64(int64(ratio)) {
			c.Add(path, "multipleOf", "value is not a multiple of multipleOf", mult, data)
		}
	}
}

// checkType validates (and, if coerce is enabled, attempts to coerce)
// data against the schema's `type` keyword. It returns the
// (possibly-coerced) value and whether the type ultimately matched.
func checkType(schema Node, data interface{}, path string, coerce bool, c *ErrorCollector) (interface{}, bool) {
	rawType, ok := schema["type"]
	if !ok {
		return data, true
	}

	var types []string
	switch t := rawType.(type) {
	case string:
		types = []string{t}
	default:
		if slice, ok := asSlice(rawType); ok {
			for _, v := range slice {
				if s, ok := asString(v); ok {
					types = append(types, s)
				}
			}
		}
	}
	if len(types) == 0 {
		return data, true
	}

	for _, typ := range types {
		if matchesType(typ, data) {
			return data, true
		}
	}

	if coerce {
		for _, typ := range types {
			if coerced, ok := coerceTo(typ, data); ok {
				return coerced, true
			}
		}
	}

	c.Add(path, "type", fmt.Sprintf("value does not match type %v", types), types, describe(data))
	return data, false
}

func matchesType(typ string, data interface{}) bool {
	switch typ {
	case "null":
		return data == nil
	case "boolean":
		_, ok := data.(bool)
		return ok
	case "string":
		_, ok := data.(string)
		return ok
	case "integer":
		switch v := data.(type) {
		case int, int64:
			return true
		case float64:
			return v == float64(int64(v))
		}
		return false
	case "number":
		switch data.(type) {
		case int, int64, float64:
			return true
		}
		return false
	case "object":
		switch data.(type) {
		case Node, map[string]interface{}:
			return true
		}
		return false
	case "array":
		_, ok := data.([]interface{})
		return ok
	default:
		return false
	}
}

func coerceTo(typ string, data interface{}) (interface{}, bool) {
	s, isString := data.(string)
	switch typ {
	case "integer":
		if isString {
			if iv, err := strconv.ParseInt(s, 10, 64); err == nil {
				return float64(iv), true
			}
		}
	case "number":
		if isString {
			if fv, err := strconv.ParseFloat(s, 64); err == nil {
				return fv, true
			}
		}
	case "boolean":
		if isString {
			if bv, err := strconv.ParseBool(s); err == nil {
				return bv, true
			}
		}
	case "string":
		switch v := data.(type) {
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64), true
		case bool:
			return strconv.FormatBool(v), true
		}
	}
	return nil, false
}

func joinPath(base, key string) string {
	if base == "" {
		return "/" + key
	}
	return base + "/" + key
}

func asInt(v interface{}) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case float64:
		return int(t), true
	default:
		return 0, false
	}
}

func asFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case float64:
		return t, true
	default:
		return 0, false
	}
}

func toFloat(v interface{}) float64 {
	f, _ := asFloat(v)
	return f
}

func deepEqual(a, b interface{}) bool {
	return reflect.DeepEqual(a, b)
}

func describe(v interface{}) string {
	if v == nil {
		return "null"
	}
	return fmt.Sprintf("%T", v)
}
