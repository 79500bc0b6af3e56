package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToStrictStripsExtensionsAndDefaults(t *testing.T) {
	out := ToStrict(Node{
		"type":    "object",
		"x-foo":   "bar",
		"default": Node{},
		"properties": Node{
			"name": Node{"type": "string", "default": "anon", "x-hint": "y"},
		},
	})
	_, hasX := out["x-foo"]
	assert.False(t, hasX)
	_, hasDefault := out["default"]
	assert.False(t, hasDefault)

	props, _ := asNode(out["properties"])
	nameSchema, _ := asNode(props["name"])
	_, hasNameDefault := nameSchema["default"]
	assert.False(t, hasNameDefault)
}

func TestToStrictForcesAdditionalPropertiesFalseAndAllRequired(t *testing.T) {
	out := ToStrict(Node{
		"type": "object",
		"properties": Node{
			"a": Node{"type": "string"},
			"b": Node{"type": "integer"},
		},
		"required": []interface{}{"a"},
	})

	assert.Equal(t, false, out["additionalProperties"])
	required, ok := asSlice(out["required"])
	require.True(t, ok)
	assert.ElementsMatch(t, []interface{}{"a", "b"}, required)
}

func TestToStrictWrapsOptionalPrimitiveAsNullable(t *testing.T) {
	out := ToStrict(Node{
		"type":       "object",
		"properties": Node{"b": Node{"type": "integer"}},
		"required":   []interface{}{},
	})
	props, _ := asNode(out["properties"])
	b, _ := asNode(props["b"])
	types, ok := asSlice(b["type"])
	require.True(t, ok)
	assert.ElementsMatch(t, []interface{}{"integer", "null"}, types)
}

func TestToStrictWrapsOptionalNonPrimitiveWithOneOfNull(t *testing.T) {
	out := ToStrict(Node{
		"type": "object",
		"properties": Node{
			"nested": Node{
				"type":       "object",
				"properties": Node{"z": Node{"type": "string"}},
			},
		},
		"required": []interface{}{},
	})
	props, _ := asNode(out["properties"])
	nested, _ := asNode(props["nested"])
	oneOf, ok := asSlice(nested["oneOf"])
	require.True(t, ok)
	assert.Len(t, oneOf, 2)
}

func TestToStrictRecursesIntoItemsAndComposition(t *testing.T) {
	out := ToStrict(Node{
		"type":  "array",
		"items": Node{"type": "object", "properties": Node{"v": Node{"type": "string"}}},
	})
	items, _ := asNode(out["items"])
	assert.Equal(t, false, items["additionalProperties"])
}
