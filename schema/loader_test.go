package schema

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSchemaFile(t *testing.T, dir, moduleID, content string) {
	t.Helper()
	path := filepath.Join(dir, moduleID+".yaml")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestEngineLoadBundleYAMLOnly(t *testing.T) {
	dir := t.TempDir()
	writeSchemaFile(t, dir, "payments.charge", `
description: Charges a card
input_schema:
  type: object
  properties:
    amount:
      type: integer
  required: [amount]
output_schema:
  type: object
`)
	e := NewEngine(dir, YAMLOnly, nil, DefaultOptions())
	bundle, err := e.LoadBundle("payments.charge")
	require.NoError(t, err)
	assert.Equal(t, "Charges a card", bundle.Description)

	// cached: second call hits the map, not the filesystem.
	require.NoError(t, os.Remove(filepath.Join(dir, "payments.charge.yaml")))
	bundle2, err := e.LoadBundle("payments.charge")
	require.NoError(t, err)
	assert.Same(t, bundle, bundle2)
}

func TestEngineLoadBundleYAMLOnlyMissingFails(t *testing.T) {
	dir := t.TempDir()
	e := NewEngine(dir, YAMLOnly, nil, DefaultOptions())
	_, err := e.LoadBundle("missing.module")
	require.Error(t, err)
	var nf *NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestEngineNativeFirstPrefersNative(t *testing.T) {
	dir := t.TempDir()
	writeSchemaFile(t, dir, "payments.charge", "description: from yaml\ninput_schema: {type: object}\noutput_schema: {type: object}\n")

	native := &Bundle{ModuleID: "payments.charge", Description: "from native", InputSchema: Node{"type": "object"}, OutputSchema: Node{"type": "object"}}
	e := NewEngine(dir, NativeFirst, func(id string) (*Bundle, bool) {
		if id == "payments.charge" {
			return native, true
		}
		return nil, false
	}, DefaultOptions())

	bundle, err := e.LoadBundle("payments.charge")
	require.NoError(t, err)
	assert.Equal(t, "from native", bundle.Description)
}

func TestEngineValidateInputAndOutput(t *testing.T) {
	dir := t.TempDir()
	writeSchemaFile(t, dir, "payments.charge", `
description: Charges a card
input_schema:
  type: object
  properties:
    amount:
      type: integer
  required: [amount]
  additionalProperties: false
output_schema:
  type: object
  properties:
    status:
      type: string
  required: [status]
`)
	e := NewEngine(dir, YAMLOnly, nil, DefaultOptions())

	assert.NoError(t, e.ValidateInput("payments.charge", Node{"amount": float64(100)}))
	err := e.ValidateInput("payments.charge", Node{})
	require.Error(t, err)
	var vfe *ValidationFailedError
	require.ErrorAs(t, err, &vfe)
	assert.Equal(t, "required", vfe.Errors[0].Constraint)

	assert.NoError(t, e.ValidateOutput("payments.charge", Node{"status": "ok"}))
}

func TestEngineClearCachePurgesBoth(t *testing.T) {
	dir := t.TempDir()
	writeSchemaFile(t, dir, "m", "description: d\ninput_schema: {type: object}\noutput_schema: {type: object}\n")
	e := NewEngine(dir, YAMLOnly, nil, DefaultOptions())

	_, err := e.LoadBundle("m")
	require.NoError(t, err)
	_, _, err = e.Validators("m")
	require.NoError(t, err)

	e.ClearCache()
	assert.Empty(t, e.bundles)
	assert.Empty(t, e.validators)
}

func TestEngineCrossModuleCanonicalRef(t *testing.T) {
	dir := t.TempDir()
	writeSchemaFile(t, dir, "common.amount", `
description: shared amount type
input_schema:
  type: object
output_schema:
  type: object
definitions:
  Amount:
    type: integer
    minimum: 0
`)
	writeSchemaFile(t, dir, "payments.charge", `
description: Charges a card
input_schema:
  type: object
  properties:
    amount:
      $ref: "apcore://common.amount/definitions/Amount"
  required: [amount]
output_schema:
  type: object
`)
	e := NewEngine(dir, YAMLOnly, nil, DefaultOptions())
	inputV, _, err := e.Validators("payments.charge")
	require.NoError(t, err)

	ok, _ := inputV.Validate(Node{"amount": float64(5)})
	assert.True(t, ok)
	ok, errs := inputV.Validate(Node{"amount": float64(-1)})
	assert.False(t, ok)
	assert.Equal(t, "minimum", errs[0].Constraint)
}
