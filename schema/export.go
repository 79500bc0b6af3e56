package schema

import "strings"

// Profile selects an export format (spec.md §4.3 "Export profiles").
type Profile string

const (
	Generic  Profile = "generic"
	MCP      Profile = "mcp"
	OpenAI   Profile = "openai"
	Anthropic Profile = "anthropic"
)

// Annotations are MCP tool annotations, with the spec's documented
// defaults.
type Annotations struct {
	ReadOnlyHint    bool
	DestructiveHint bool
	IdempotentHint  bool
	OpenWorldHint   bool
}

// DefaultAnnotations matches spec.md's MCP export defaults.
func DefaultAnnotations() Annotations {
	return Annotations{ReadOnlyHint: false, DestructiveHint: false, IdempotentHint: false, OpenWorldHint: true}
}

// Export is a stateless exporter: each call takes a resolved Bundle
// (input_schema/output_schema already $ref-resolved) and produces one
// consumer-specific document. No state is retained between calls.
type Export struct{}

// ToProfile renders bundle in the given export profile.
func (Export) ToProfile(bundle *Bundle, profile Profile, examples []interface{}) (Node, error) {
	switch profile {
	case Generic:
		return exportGeneric(bundle), nil
	case MCP:
		return exportMCP(bundle), nil
	case OpenAI:
		return exportOpenAI(bundle), nil
	case Anthropic:
		return exportAnthropic(bundle, examples), nil
	default:
		return nil, &ParseError{ModuleID: bundle.ModuleID, Reason: "unknown export profile " + string(profile)}
	}
}

func exportGeneric(bundle *Bundle) Node {
	return Node{
		"module_id":     bundle.ModuleID,
		"description":   bundle.Description,
		"input_schema":  cloneNode(bundle.InputSchema),
		"output_schema": cloneNode(bundle.OutputSchema),
		"definitions":   cloneNode(bundle.Definitions),
	}
}

func exportMCP(bundle *Bundle) Node {
	ann := DefaultAnnotations()
	return Node{
		"name":        bundle.ModuleID,
		"description": bundle.Description,
		"inputSchema": cloneNode(bundle.InputSchema), // x-* preserved: no stripping pass applied
		"annotations": Node{
			"readOnlyHint":    ann.ReadOnlyHint,
			"destructiveHint": ann.DestructiveHint,
			"idempotentHint":  ann.IdempotentHint,
			"openWorldHint":   ann.OpenWorldHint,
		},
	}
}

func exportOpenAI(bundle *Bundle) Node {
	strict := ToStrict(bundle.InputSchema)
	name := strings.ReplaceAll(bundle.ModuleID, ".", "_")
	return Node{
		"type": "function",
		"function": Node{
			"name":        name,
			"description": bundle.Description,
			"parameters":  strict,
			"strict":      true,
		},
	}
}

func exportAnthropic(bundle *Bundle, examples []interface{}) Node {
	stripped := stripExtensionsAndDefaults(bundle.InputSchema)
	description := bundle.Description
	if llmDesc, ok := asString(bundle.InputSchema["x-llm-description"]); ok && llmDesc != "" {
		description = llmDesc
	}
	name := strings.ReplaceAll(bundle.ModuleID, ".", "_")
	out := Node{
		"name":         name,
		"description":  description,
		"input_schema": stripped,
	}
	if len(examples) > 0 {
		out["input_examples"] = examples
	}
	return out
}

// stripExtensionsAndDefaults removes x-* and default keys without the
// rest of the strict transform (additionalProperties/required forcing),
// used by the Anthropic profile which strips but does not strictify.
func stripExtensionsAndDefaults(schema Node) Node {
	if schema == nil {
		return nil
	}
	out := make(Node, len(schema))
	for k, v := range schema {
		if k == "default" || strings.HasPrefix(k, "x-") {
			continue
		}
		if n, ok := asNode(v); ok {
			out[k] = stripExtensionsAndDefaults(n)
			continue
		}
		if s, ok := asSlice(v); ok {
			ns := make([]interface{}, len(s))
			for i, e := range s {
				if en, ok := asNode(e); ok {
					ns[i] = stripExtensionsAndDefaults(en)
				} else {
					ns[i] = e
				}
			}
			out[k] = ns
			continue
		}
		out[k] = v
	}
	return out
}
