package binding

import (
	"os"
	"path/filepath"

	"github.com/edgecomet/apcore/core"
	"github.com/edgecomet/apcore/internal/common/yamlutil"
	"github.com/edgecomet/apcore/registry"
)

// bindingsFile is the on-disk shape of a binding manifest (spec.md
// §4.9: "reads a file whose root contains bindings: [...]").
type bindingsFile struct {
	Bindings []Spec `yaml:"bindings"`
}

// Spec is one YAML binding entry. Exactly one of AutoSchema,
// InputSchema/OutputSchema, or SchemaRef determines the module's
// schema; the zero value (none set) behaves like AutoSchema, per
// spec.md §4.9's "default (same as auto_schema)".
type Spec struct {
	ModuleID     string         `yaml:"module_id"`
	Target       string         `yaml:"target"`
	AutoSchema   bool           `yaml:"auto_schema"`
	InputSchema  map[string]any `yaml:"input_schema"`
	OutputSchema map[string]any `yaml:"output_schema"`
	SchemaRef    string         `yaml:"schema_ref"`
	Description  string         `yaml:"description"`
	Version      string         `yaml:"version"`
	Tags         []string       `yaml:"tags"`
	Metadata     map[string]any `yaml:"metadata"`
}

// schemaRefFile is the on-disk shape of a schema_ref's external file.
type schemaRefFile struct {
	InputSchema  map[string]any `yaml:"input_schema"`
	OutputSchema map[string]any `yaml:"output_schema"`
}

// Report is what LoadBindings returns: how many bindings were
// registered, plus any non-fatal per-entry warnings. Mirrors
// registry.Discover's Report for the same reason — one bad manifest
// entry shouldn't block the rest from loading.
type Report struct {
	Registered int
	Warnings   []string
}

func (r *Report) warn(msg string) { r.Warnings = append(r.Warnings, msg) }

// LoadBindings reads the YAML manifest at path, resolves each entry's
// target against sourceRegistry — the same compile-time SourceRegistry
// Discover resolves Go-source entry points against (spec.md §4.9's
// "module import + attribute access" becomes a static lookup here,
// same Design Note as registry.Discover's step 4) — determines its
// schema per one of the four modes spec.md §4.9 describes, and
// registers the resulting module into store.
func LoadBindings(path string, sourceRegistry *registry.SourceRegistry, store *registry.Store) (*Report, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, core.NewError(core.CodeConfigError, "cannot read bindings file").WithCause(err)
	}
	var file bindingsFile
	if err := yamlutil.UnmarshalStrict(raw, &file); err != nil {
		return nil, core.NewError(core.CodeConfigError, "cannot parse bindings file").WithCause(err)
	}

	report := &Report{}
	dir := filepath.Dir(path)

	for _, spec := range file.Bindings {
		module, err := resolveBinding(spec, sourceRegistry, dir)
		if err != nil {
			report.warn(err.Error())
			continue
		}
		if err := store.Register(module, spec.Metadata); err != nil {
			report.warn("failed to register " + module.ID + ": " + err.Error())
			continue
		}
		report.Registered++
	}
	return report, nil
}

func resolveBinding(spec Spec, sourceRegistry *registry.SourceRegistry, manifestDir string) (*core.Module, error) {
	if spec.ModuleID == "" {
		return nil, core.NewError(core.CodeModuleLoad, "binding entry missing module_id")
	}
	if spec.Target == "" {
		return nil, core.NewError(core.CodeModuleLoad, "binding entry missing target").WithDetail("module_id", spec.ModuleID)
	}

	factory, ok := sourceRegistry.Lookup(spec.Target)
	if !ok {
		return nil, core.NewError(core.CodeModuleLoad, "unresolved binding target: "+spec.Target).WithDetail("module_id", spec.ModuleID)
	}
	source := factory()
	if source == nil || source.Handler == nil {
		return nil, core.NewError(core.CodeModuleLoad, "binding target produced no handler: "+spec.Target).WithDetail("module_id", spec.ModuleID)
	}

	inputSchema, outputSchema, err := resolveSchemas(spec, source, manifestDir)
	if err != nil {
		return nil, err
	}

	description := spec.Description
	if description == "" {
		description = source.Description
	}
	if description == "" {
		description = "Module " + spec.ModuleID
	}

	return &core.Module{
		ID:           spec.ModuleID,
		Description:  description,
		InputSchema:  inputSchema,
		OutputSchema: outputSchema,
		Version:      firstNonEmpty(spec.Version, source.Version),
		Tags:         firstNonEmptyTags(spec.Tags, source.Tags),
		Annotations:  core.DefaultAnnotations(),
		Metadata:     spec.Metadata,
		Handler:      source.Handler,
		OnLoad:       source.OnLoad,
		OnUnload:     source.OnUnload,
	}, nil
}

// resolveSchemas implements spec.md §4.9's four schema-determination
// modes: schema_ref (external file) beats inline input_schema/
// output_schema, which beats auto_schema/default (the target's own
// inferred or supplied schema).
func resolveSchemas(spec Spec, source *registry.ModuleSource, manifestDir string) (map[string]any, map[string]any, error) {
	if spec.SchemaRef != "" {
		refPath := spec.SchemaRef
		if !filepath.IsAbs(refPath) {
			refPath = filepath.Join(manifestDir, refPath)
		}
		raw, err := os.ReadFile(refPath)
		if err != nil {
			return nil, nil, core.NewError(core.CodeConfigError, "cannot read schema_ref file: "+spec.SchemaRef).
				WithCause(err).WithDetail("module_id", spec.ModuleID)
		}
		var ref schemaRefFile
		if err := yamlutil.UnmarshalStrict(raw, &ref); err != nil {
			return nil, nil, core.NewError(core.CodeConfigError, "cannot parse schema_ref file: "+spec.SchemaRef).
				WithCause(err).WithDetail("module_id", spec.ModuleID)
		}
		return permissiveIfNil(ref.InputSchema), permissiveIfNil(ref.OutputSchema), nil
	}

	if spec.InputSchema != nil || spec.OutputSchema != nil {
		input := spec.InputSchema
		if input == nil {
			input = source.InputSchema
		}
		output := spec.OutputSchema
		if output == nil {
			output = source.OutputSchema
		}
		return permissiveIfNil(input), permissiveIfNil(output), nil
	}

	// auto_schema: true, or the unset default (same as auto_schema):
	// use whatever the resolved target itself declared or inferred.
	return permissiveIfNil(source.InputSchema), permissiveIfNil(source.OutputSchema), nil
}

// permissiveIfNil degrades a missing schema to an open object, per
// spec.md §4.9's "unsupported features ... degrade to a permissive
// schema" — an absent schema is the limiting case of that rule. A
// schema that is present but uses a keyword the schema package's
// validator doesn't support degrades the same way inside schema.Build
// itself, not here.
func permissiveIfNil(s map[string]any) map[string]any {
	if s == nil {
		return map[string]any{"type": "object", "additionalProperties": true}
	}
	return s
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func firstNonEmptyTags(a, b []string) []string {
	if len(a) > 0 {
		return a
	}
	return b
}
