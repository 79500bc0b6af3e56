package binding

import (
	"reflect"
	"strings"
)

// inputSchema infers the module's input schema from the plan's single
// data parameter, or returns an empty-object schema if there is none.
func (p *funcPlan) inputSchema() (map[string]any, error) {
	if p.inputIndex < 0 {
		return map[string]any{"type": "object", "properties": map[string]any{}}, nil
	}
	return schemaForType(p.inputType), nil
}

// outputSchema infers the module's output schema from its data return
// value, or an empty-object schema if the function returns only error.
func (p *funcPlan) outputSchema() map[string]any {
	if p.outputIndex < 0 {
		return map[string]any{"type": "object", "properties": map[string]any{}}
	}
	t := p.typ.Out(p.outputIndex)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return schemaForType(t)
}

// schemaForType walks a Go type and produces the JSON-Schema subset
// defined in spec.md §4.3. Types this package can't meaningfully
// constrain (interfaces, funcs, channels) degrade to a permissive {}
// schema, per spec.md §4.9's "unsupported features degrade to a
// permissive schema".
func schemaForType(t reflect.Type) map[string]any {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	switch t.Kind() {
	case reflect.String:
		return map[string]any{"type": "string"}
	case reflect.Bool:
		return map[string]any{"type": "boolean"}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return map[string]any{"type": "integer"}
	case reflect.Float32, reflect.Float64:
		return map[string]any{"type": "number"}
	case reflect.Slice, reflect.Array:
		if t.Elem().Kind() == reflect.Uint8 {
			return map[string]any{"type": "string"} // []byte marshals as a base64 string
		}
		return map[string]any{"type": "array", "items": schemaForType(t.Elem())}
	case reflect.Map:
		return map[string]any{"type": "object", "additionalProperties": true}
	case reflect.Struct:
		return structSchema(t)
	default:
		return map[string]any{}
	}
}

// structSchema builds an object schema from a struct's exported fields,
// honoring `json:"name,omitempty"` tags the same way encoding/json
// would when (de)serializing that struct, since buildInput/mapViaJSON
// round-trip values through encoding/json rather than walking fields by
// hand.
func structSchema(t reflect.Type) map[string]any {
	properties := map[string]any{}
	var required []string

	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.PkgPath != "" { // unexported
			continue
		}
		name, omitEmpty, skip := jsonFieldName(f)
		if skip {
			continue
		}

		fieldType := f.Type
		optional := omitEmpty
		for fieldType.Kind() == reflect.Ptr {
			optional = true
			fieldType = fieldType.Elem()
		}

		properties[name] = schemaForType(fieldType)
		if !optional {
			required = append(required, name)
		}
	}

	schema := map[string]any{"type": "object", "properties": properties}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// jsonFieldName mirrors encoding/json's tag parsing: a "-" tag skips
// the field, a name before the first comma overrides the field name,
// and "omitempty" marks it optional.
func jsonFieldName(f reflect.StructField) (name string, omitEmpty bool, skip bool) {
	tag := f.Tag.Get("json")
	if tag == "-" {
		return "", false, true
	}
	if tag == "" {
		return f.Name, false, false
	}
	parts := strings.Split(tag, ",")
	name = parts[0]
	if name == "" {
		name = f.Name
	}
	for _, opt := range parts[1:] {
		if opt == "omitempty" {
			omitEmpty = true
		}
	}
	return name, omitEmpty, false
}
