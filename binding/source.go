package binding

import "github.com/edgecomet/apcore/registry"

// SourceFromFunc builds a registry.ModuleSource around fn using the
// same reflection-based inference MakeFunctionModule uses. It is meant
// to back a registry.Factory registered under a binding's target
// string, e.g.:
//
//	sourceRegistry.RegisterSource("mypkg:DoThing", func() *registry.ModuleSource {
//		return binding.MustSourceFromFunc(DoThing, binding.Options{})
//	})
func SourceFromFunc(fn any, opts Options) (*registry.ModuleSource, error) {
	plan, err := planFunc(fn)
	if err != nil {
		return nil, err
	}

	inputSchema := opts.InputSchema
	if inputSchema == nil {
		inputSchema, err = plan.inputSchema()
		if err != nil {
			return nil, err
		}
	}
	outputSchema := opts.OutputSchema
	if outputSchema == nil {
		outputSchema = plan.outputSchema()
	}

	description := opts.Description
	if description == "" {
		description = "Module " + autoID(plan.value)
	}

	return &registry.ModuleSource{
		Description:  description,
		InputSchema:  inputSchema,
		OutputSchema: outputSchema,
		Version:      opts.Version,
		Tags:         opts.Tags,
		Metadata:     opts.Metadata,
		Handler:      plan,
	}, nil
}

// MustSourceFromFunc panics on a malformed fn instead of returning an
// error, matching registry.Factory's error-free `func() *ModuleSource`
// signature. A malformed binding target is a wiring bug caught at
// registration time, not a condition callers should expect to recover
// from at runtime.
func MustSourceFromFunc(fn any, opts Options) *registry.ModuleSource {
	source, err := SourceFromFunc(fn, opts)
	if err != nil {
		panic(err)
	}
	return source
}
