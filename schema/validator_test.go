package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustBuild(t *testing.T, schema Node) *Validator {
	t.Helper()
	v, err := Build(schema, DefaultOptions())
	require.NoError(t, err)
	return v
}

func TestValidateTypePrimitives(t *testing.T) {
	v := mustBuild(t, Node{"type": "integer"})
	ok, errs := v.Validate(float64(5))
	assert.True(t, ok)
	assert.Empty(t, errs)

	ok, errs = v.Validate("not a number")
	assert.False(t, ok)
	require.Len(t, errs, 1)
	assert.Equal(t, "type", errs[0].Constraint)
}

func TestValidateCoercion(t *testing.T) {
	v := mustBuild(t, Node{"type": "integer"})
	ok, _ := v.Validate("42")
	assert.True(t, ok, "coercion is on by default")

	strict, err := Build(Node{"type": "integer"}, Options{Coerce: false})
	require.NoError(t, err)
	ok, _ = strict.Validate("42")
	assert.False(t, ok)
}

func TestValidateRequiredAndAdditionalProperties(t *testing.T) {
	v := mustBuild(t, Node{
		"type": "object",
		"properties": Node{
			"name": Node{"type": "string"},
		},
		"required":             []interface{}{"name"},
		"additionalProperties": false,
	})

	ok, errs := v.Validate(Node{"name": "a", "extra": 1})
	assert.False(t, ok)
	require.Len(t, errs, 1)
	assert.Equal(t, "additionalProperties", errs[0].Constraint)

	ok, errs = v.Validate(Node{"extra": 1})
	assert.False(t, ok)
	// missing required "name" and unexpected "extra": both collected, no short-circuit.
	require.Len(t, errs, 2)
}

func TestValidateArrayConstraints(t *testing.T) {
	v := mustBuild(t, Node{
		"type":        "array",
		"items":       Node{"type": "integer"},
		"minItems":    1,
		"maxItems":    3,
		"uniqueItems": true,
	})

	ok, _ := v.Validate([]interface{}{float64(1), float64(2)})
	assert.True(t, ok)

	ok, errs := v.Validate([]interface{}{float64(1), float64(1)})
	assert.False(t, ok)
	require.Len(t, errs, 1)
	assert.Equal(t, "uniqueItems", errs[0].Constraint)

	ok, errs = v.Validate([]interface{}{})
	assert.False(t, ok)
	assert.Equal(t, "minItems", errs[0].Constraint)
}

func TestValidateNumericBounds(t *testing.T) {
	v := mustBuild(t, Node{"type": "number", "minimum": 0.0, "maximum": 10.0, "multipleOf": 2.0})
	ok, _ := v.Validate(float64(4))
	assert.True(t, ok)

	ok, errs := v.Validate(float64(5))
	assert.False(t, ok)
	assert.Equal(t, "multipleOf", errs[0].Constraint)

	ok, _ = v.Validate(float64(11))
	assert.False(t, ok)
}

func TestValidateStringConstraints(t *testing.T) {
	v := mustBuild(t, Node{"type": "string", "minLength": 2, "maxLength": 4, "pattern": "^[a-z]+$"})
	ok, _ := v.Validate("abc")
	assert.True(t, ok)
	ok, _ = v.Validate("ABC")
	assert.False(t, ok)
	ok, _ = v.Validate("a")
	assert.False(t, ok)
}

func TestValidateConstAndEnum(t *testing.T) {
	v := mustBuild(t, Node{"const": "fixed"})
	ok, _ := v.Validate("fixed")
	assert.True(t, ok)
	ok, _ = v.Validate("other")
	assert.False(t, ok)

	ev := mustBuild(t, Node{"enum": []interface{}{"a", "b"}})
	ok, _ = ev.Validate("a")
	assert.True(t, ok)
	ok, _ = ev.Validate("c")
	assert.False(t, ok)
}

func TestValidateOneOfExactlyOne(t *testing.T) {
	v := mustBuild(t, Node{
		"oneOf": []interface{}{
			Node{"type": "string"},
			Node{"type": "integer"},
		},
	})
	ok, _ := v.Validate("x")
	assert.True(t, ok)
	ok, _ = v.Validate(float64(1))
	assert.True(t, ok)
}

func TestValidateAnyOfAtLeastOne(t *testing.T) {
	v := mustBuild(t, Node{
		"anyOf": []interface{}{
			Node{"minimum": 10.0},
			Node{"maximum": 0.0},
		},
	})
	ok, _ := v.Validate(float64(20))
	assert.True(t, ok)
	ok, _ = v.Validate(float64(5))
	assert.False(t, ok)
}

func TestBuildAllOfMergesObjectSchemas(t *testing.T) {
	v, err := Build(Node{
		"allOf": []interface{}{
			Node{"type": "object", "properties": Node{"a": Node{"type": "string"}}, "required": []interface{}{"a"}},
			Node{"type": "object", "properties": Node{"b": Node{"type": "integer"}}},
		},
	}, DefaultOptions())
	require.NoError(t, err)

	ok, _ := v.Validate(Node{"a": "x", "b": float64(1)})
	assert.True(t, ok)

	ok, errs := v.Validate(Node{"b": float64(1)})
	assert.False(t, ok)
	assert.Equal(t, "required", errs[0].Constraint)
}

func TestBuildAllOfRejectsNonObjectMember(t *testing.T) {
	_, err := Build(Node{
		"allOf": []interface{}{
			Node{"type": "string"},
		},
	}, DefaultOptions())
	assert.Error(t, err)
}

func TestBuildRejectsUnsupportedKeywords(t *testing.T) {
	_, err := Build(Node{"not": Node{"type": "string"}}, DefaultOptions())
	assert.Error(t, err)

	_, err = Build(Node{"if": Node{"type": "string"}}, DefaultOptions())
	assert.Error(t, err)
}

func TestValidateNestedObjectDoesNotShortCircuit(t *testing.T) {
	v := mustBuild(t, Node{
		"type": "object",
		"properties": Node{
			"inner": Node{
				"type":       "object",
				"properties": Node{"x": Node{"type": "integer"}, "y": Node{"type": "integer"}},
				"required":   []interface{}{"x", "y"},
			},
		},
		"required": []interface{}{"inner"},
	})
	ok, errs := v.Validate(Node{"inner": Node{}})
	assert.False(t, ok)
	require.Len(t, errs, 2)
}
