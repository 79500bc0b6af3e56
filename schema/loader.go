package schema

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/edgecomet/apcore/internal/common/yamlutil"
)

// rawBundle is the on-disk YAML shape of a schema bundle (spec.md
// §4.3 "Loading").
type rawBundle struct {
	Description   string `yaml:"description"`
	Version       string `yaml:"version"`
	Documentation string `yaml:"documentation"`
	InputSchema   Node   `yaml:"input_schema"`
	OutputSchema  Node   `yaml:"output_schema"`
	Definitions   Node   `yaml:"definitions"`
	Defs          Node   `yaml:"$defs"`
}

// pair is the resolved input+output validator pair cached per module.
type pair struct {
	Input  *Validator
	Output *Validator
}

// Engine loads schema bundles, resolves $refs, and builds/caches
// validators (spec.md §4.3 "Two caches: parsed bundles ... and
// resolved-validator pairs ..."). Grounded on the teacher's
// EGConfigManager read-mostly caching idiom
// (internal/common/config/config.go), adapted from one atomic
// snapshot to two incrementally-populated maps since entries are added
// per module_id rather than replaced wholesale.
type Engine struct {
	SchemasDir     string
	Strategy       LoadStrategy
	NativeProvider NativeProvider
	Options        Options

	mu         sync.RWMutex
	bundles    map[string]*Bundle
	validators map[string]*pair
}

// NewEngine constructs a schema Engine rooted at schemasDir.
func NewEngine(schemasDir string, strategy LoadStrategy, nativeProvider NativeProvider, opts Options) *Engine {
	return &Engine{
		SchemasDir:     schemasDir,
		Strategy:       strategy,
		NativeProvider: nativeProvider,
		Options:        opts,
		bundles:        make(map[string]*Bundle),
		validators:     make(map[string]*pair),
	}
}

func (e *Engine) pathFor(moduleID string) string {
	return filepath.Join(e.SchemasDir, moduleID+".yaml")
}

func (e *Engine) readYAML(path string) (Node, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc Node
	if err := yamlutil.UnmarshalStrict(raw, &doc); err != nil {
		return nil, &ParseError{Path: path, Reason: err.Error()}
	}
	return doc, nil
}

func (e *Engine) loadYAMLBundle(moduleID string) (*Bundle, error) {
	path := e.pathFor(moduleID)
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rb rawBundle
	if err := yamlutil.UnmarshalStrict(raw, &rb); err != nil {
		return nil, &ParseError{ModuleID: moduleID, Path: path, Reason: err.Error()}
	}

	defs := rb.Definitions
	if defs == nil {
		defs = rb.Defs
	} else if rb.Defs != nil {
		for k, v := range rb.Defs {
			defs[k] = v
		}
	}

	return &Bundle{
		ModuleID:      moduleID,
		Description:   rb.Description,
		Version:       rb.Version,
		Documentation: rb.Documentation,
		InputSchema:   rb.InputSchema,
		OutputSchema:  rb.OutputSchema,
		Definitions:   defs,
		SourcePath:    path,
	}, nil
}

// LoadBundle resolves and returns the (cached) bundle for moduleID,
// applying the engine's loader strategy (spec.md §4.3 "Loader strategies").
func (e *Engine) LoadBundle(moduleID string) (*Bundle, error) {
	e.mu.RLock()
	if b, ok := e.bundles[moduleID]; ok {
		e.mu.RUnlock()
		return b, nil
	}
	e.mu.RUnlock()

	bundle, err := e.loadByStrategy(moduleID)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.bundles[moduleID] = bundle
	e.mu.Unlock()
	return bundle, nil
}

func (e *Engine) loadByStrategy(moduleID string) (*Bundle, error) {
	tryYAML := func() (*Bundle, error) { return e.loadYAMLBundle(moduleID) }
	tryNative := func() (*Bundle, bool) {
		if e.NativeProvider == nil {
			return nil, false
		}
		return e.NativeProvider(moduleID)
	}

	switch e.Strategy {
	case YAMLOnly:
		b, err := tryYAML()
		if err != nil {
			return nil, &NotFoundError{ModuleID: moduleID}
		}
		return b, nil
	case NativeFirst:
		if b, ok := tryNative(); ok {
			return b, nil
		}
		b, err := tryYAML()
		if err != nil {
			return nil, &NotFoundError{ModuleID: moduleID}
		}
		return b, nil
	case YAMLFirst:
		fallthrough
	default:
		b, err := tryYAML()
		if err == nil {
			return b, nil
		}
		if nb, ok := tryNative(); ok {
			return nb, nil
		}
		return nil, &NotFoundError{ModuleID: moduleID}
	}
}

// ResolveModulePath implements ModuleFileResolver against this engine's
// schemasDir, for canonical `apcore://module.id/path` refs.
func (e *Engine) ResolveModulePath(moduleID string) (string, error) {
	path := e.pathFor(moduleID)
	if _, err := os.Stat(path); err != nil {
		return "", &ParseError{ModuleID: moduleID, Reason: fmt.Sprintf("cannot resolve apcore:// module: %v", err)}
	}
	return path, nil
}

func (e *Engine) resolver() *RefResolver {
	return &RefResolver{
		SchemasRoot:   e.SchemasDir,
		LoadFile:      e.readYAML,
		ResolveModule: e.ResolveModulePath,
	}
}

// Validators builds (or returns the cached) input/output Validator
// pair for moduleID: loads the bundle, resolves all $refs against both
// the input and output schema roots, and builds validators from the
// resolved documents.
func (e *Engine) Validators(moduleID string) (*Validator, *Validator, error) {
	e.mu.RLock()
	if p, ok := e.validators[moduleID]; ok {
		e.mu.RUnlock()
		return p.Input, p.Output, nil
	}
	e.mu.RUnlock()

	bundle, err := e.LoadBundle(moduleID)
	if err != nil {
		return nil, nil, err
	}

	r := e.resolver()
	resolvedInput, err := r.Resolve(withDefs(bundle.InputSchema, bundle.Definitions), bundle.SourcePath)
	if err != nil {
		return nil, nil, err
	}
	resolvedOutput, err := r.Resolve(withDefs(bundle.OutputSchema, bundle.Definitions), bundle.SourcePath)
	if err != nil {
		return nil, nil, err
	}

	inputValidator, err := Build(resolvedInput, e.Options)
	if err != nil {
		return nil, nil, err
	}
	outputValidator, err := Build(resolvedOutput, e.Options)
	if err != nil {
		return nil, nil, err
	}

	e.mu.Lock()
	e.validators[moduleID] = &pair{Input: inputValidator, Output: outputValidator}
	e.mu.Unlock()
	return inputValidator, outputValidator, nil
}

// withDefs merges definitions/$defs onto schema so local `#/definitions/Foo`
// refs resolve against the combined document (the stored root used for
// local-pointer resolution already carries Definitions separately, but
// embedding it lets navigatePointer walk `#/definitions/...` directly).
func withDefs(schema, defs Node) Node {
	out := cloneNode(schema)
	if out == nil {
		out = Node{}
	}
	if defs != nil {
		if _, ok := out["definitions"]; !ok {
			out["definitions"] = defs
		}
		if _, ok := out["$defs"]; !ok {
			out["$defs"] = defs
		}
	}
	return out
}

// ValidateInput validates data against moduleID's input schema,
// returning a ValidationFailedError carrying every detail record on
// failure (spec.md §4.3 "validate_input/validate_output").
func (e *Engine) ValidateInput(moduleID string, data interface{}) error {
	v, _, err := e.Validators(moduleID)
	if err != nil {
		return err
	}
	if ok, errs := v.Validate(data); !ok {
		return &ValidationFailedError{ModuleID: moduleID, Errors: errs}
	}
	return nil
}

// ValidateOutput validates data against moduleID's output schema.
func (e *Engine) ValidateOutput(moduleID string, data interface{}) error {
	_, v, err := e.Validators(moduleID)
	if err != nil {
		return err
	}
	if ok, errs := v.Validate(data); !ok {
		return &ValidationFailedError{ModuleID: moduleID, Errors: errs}
	}
	return nil
}

// ClearCache purges both the parsed-bundle cache and the
// resolved-validator cache.
func (e *Engine) ClearCache() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.bundles = make(map[string]*Bundle)
	e.validators = make(map[string]*pair)
}
