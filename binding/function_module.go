// Package binding lets plain Go functions and structs be registered as
// modules without hand-writing a core.Module literal: MakeFunctionModule
// infers a module's input/output schema from a function's signature via
// reflection, and LoadBindings drives that inference from a YAML
// manifest (spec.md §4.9).
package binding

import (
	"context"
	"encoding/json"
	"reflect"

	"github.com/edgecomet/apcore/core"
)

var (
	contextContextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	coreContextType    = reflect.TypeOf((*core.Context)(nil))
	errorType          = reflect.TypeOf((*error)(nil)).Elem()
)

// Options configures MakeFunctionModule. Zero-value Options infers
// everything: a generated ID, inferred schemas, and a default
// description.
type Options struct {
	ModuleID     string
	Description  string
	InputSchema  map[string]any
	OutputSchema map[string]any
	Version      string
	Tags         []string
	Annotations  *core.Annotations
	Metadata     map[string]any
}

// MakeFunctionModule builds a core.Module around fn, a Go function
// value. fn's signature determines the module's shape:
//
//   - an optional context.Context parameter, injected from the call's Go
//     context at execution time;
//   - an optional *core.Context parameter, injected from the call's
//     apcore Context;
//   - at most one remaining parameter, the module's input, which must be
//     a struct or a map[string]any — its fields (or, for a map, an open
//     schema) become the input schema unless Options.InputSchema is set;
//   - return values of the shape (T, error) or (error) alone; T may be
//     omitted, a map[string]any, or a struct.
//
// This mirrors spec.md §4.9's make_function_module, rendered onto Go's
// static types: inference walks reflect.Type instead of a dynamic
// runtime's type hints, and the injected "framework Context type" is
// core.Context (optionally paired with the idiomatic context.Context).
func MakeFunctionModule(fn any, opts Options) (*core.Module, error) {
	plan, err := planFunc(fn)
	if err != nil {
		return nil, err
	}

	moduleID := opts.ModuleID
	if moduleID == "" {
		moduleID = autoID(plan.value)
	}
	if !moduleIDPattern.MatchString(moduleID) {
		return nil, core.NewError(core.CodeModuleLoad, "binding: inferred module id does not satisfy the module id grammar").
			WithDetail("module_id", moduleID)
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
		description = "Module " + moduleID
	}

	annotations := core.DefaultAnnotations()
	if opts.Annotations != nil {
		annotations = *opts.Annotations
	}

	return &core.Module{
		ID:           moduleID,
		Description:  description,
		InputSchema:  inputSchema,
		OutputSchema: outputSchema,
		Version:      opts.Version,
		Tags:         opts.Tags,
		Annotations:  annotations,
		Metadata:     opts.Metadata,
		Handler:      plan,
	}, nil
}

// funcPlan is the result of inspecting fn's reflect.Type once; it also
// implements core.Handler, dispatching a call back through fn via
// reflect.Value.Call.
type funcPlan struct {
	value reflect.Value
	typ   reflect.Type

	ctxIndex     int // index of the context.Context parameter, or -1
	callCtxIndex int // index of the *core.Context parameter, or -1
	inputIndex   int // index of the single data parameter, or -1
	inputType    reflect.Type

	hasError    bool // last return value is error
	outputIndex int  // index of the data return value, or -1
}

// planFunc validates that fn is a function and classifies its
// parameters and return values.
func planFunc(fn any) (*funcPlan, error) {
	v := reflect.ValueOf(fn)
	if !v.IsValid() || v.Kind() != reflect.Func {
		return nil, core.NewError(core.CodeModuleLoad, "binding: MakeFunctionModule requires a function value")
	}
	t := v.Type()
	if t.IsVariadic() {
		return nil, core.NewError(core.CodeModuleLoad, "binding: variadic functions are not supported as module targets; bind a single struct or map[string]any parameter instead")
	}

	plan := &funcPlan{value: v, typ: t, ctxIndex: -1, callCtxIndex: -1, inputIndex: -1, outputIndex: -1}

	for i := 0; i < t.NumIn(); i++ {
		in := t.In(i)
		switch {
		case in == coreContextType:
			if plan.callCtxIndex != -1 {
				return nil, core.NewError(core.CodeModuleLoad, "binding: function has more than one *core.Context parameter")
			}
			plan.callCtxIndex = i
		case in == contextContextType:
			if plan.ctxIndex != -1 {
				return nil, core.NewError(core.CodeModuleLoad, "binding: function has more than one context.Context parameter")
			}
			plan.ctxIndex = i
		default:
			if plan.inputIndex != -1 {
				return nil, core.NewError(core.CodeModuleLoad, "binding: function has more than one non-context input parameter; bind a single struct or map[string]any instead").
					WithDetail("type", in.String())
			}
			if in.Kind() != reflect.Struct && !(in.Kind() == reflect.Map && in.Key().Kind() == reflect.String) {
				return nil, core.NewError(core.CodeModuleLoad, "binding: input parameter must be a struct or map[string]any").
					WithDetail("type", in.String())
			}
			plan.inputIndex = i
			plan.inputType = in
		}
	}

	numOut := t.NumOut()
	if numOut > 0 && t.Out(numOut-1) == errorType {
		plan.hasError = true
		numOut--
	}
	switch numOut {
	case 0:
		// no data return, error only (or nothing)
	case 1:
		plan.outputIndex = 0
	default:
		return nil, core.NewError(core.CodeModuleLoad, "binding: function must return at most one value plus an optional error")
	}

	return plan, nil
}

// Execute implements core.Handler: it assembles fn's arguments from the
// injected contexts and inputs, calls it, and normalizes the result.
func (p *funcPlan) Execute(ctx context.Context, callCtx *core.Context, inputs map[string]any) (map[string]any, error) {
	args := make([]reflect.Value, p.typ.NumIn())
	if p.ctxIndex >= 0 {
		if ctx == nil {
			ctx = context.Background()
		}
		args[p.ctxIndex] = reflect.ValueOf(ctx)
	}
	if p.callCtxIndex >= 0 {
		args[p.callCtxIndex] = reflect.ValueOf(callCtx)
	}
	if p.inputIndex >= 0 {
		arg, err := p.buildInput(inputs)
		if err != nil {
			return nil, err
		}
		args[p.inputIndex] = arg
	}

	results := p.value.Call(args)

	if p.hasError {
		errVal := results[len(results)-1]
		if !errVal.IsNil() {
			return nil, errVal.Interface().(error)
		}
	}
	if p.outputIndex < 0 {
		return map[string]any{}, nil
	}
	return normalizeOutput(results[p.outputIndex].Interface())
}

// buildInput constructs fn's single data argument from the raw inputs
// map: a map[string]any parameter is passed straight through, a struct
// parameter is populated via a JSON round-trip through its field tags.
func (p *funcPlan) buildInput(inputs map[string]any) (reflect.Value, error) {
	if inputs == nil {
		inputs = map[string]any{}
	}
	if p.inputType.Kind() == reflect.Map {
		return reflect.ValueOf(inputs).Convert(p.inputType), nil
	}

	raw, err := json.Marshal(inputs)
	if err != nil {
		return reflect.Value{}, core.NewError(core.CodeInvalidInput, "binding: could not marshal inputs for struct binding").WithCause(err)
	}
	ptr := reflect.New(p.inputType)
	if err := json.Unmarshal(raw, ptr.Interface()); err != nil {
		return reflect.Value{}, core.NewError(core.CodeInvalidInput, "binding: inputs do not match the bound struct").WithCause(err)
	}
	return ptr.Elem(), nil
}

// normalizeOutput applies spec.md §4.9's return-value normalization:
// nil becomes {}, a map[string]any passes through, a struct (or pointer
// to one) becomes its fields-as-mapping, anything else is wrapped as
// {"result": value}.
func normalizeOutput(v any) (map[string]any, error) {
	if v == nil {
		return map[string]any{}, nil
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return map[string]any{}, nil
		}
		rv = rv.Elem()
	}
	if !rv.IsValid() {
		return map[string]any{}, nil
	}

	switch rv.Kind() {
	case reflect.Map:
		if m, ok := rv.Interface().(map[string]any); ok {
			return m, nil
		}
		return mapViaJSON(rv.Interface())
	case reflect.Struct:
		return mapViaJSON(rv.Interface())
	default:
		return map[string]any{"result": v}, nil
	}
}

func mapViaJSON(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, core.NewError(core.CodeModuleLoad, "binding: could not marshal return value").WithCause(err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, core.NewError(core.CodeModuleLoad, "binding: marshaled return value is not a JSON object").WithCause(err)
	}
	return m, nil
}
