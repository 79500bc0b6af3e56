package main

import (
	"fmt"

	"github.com/edgecomet/apcore/core"
)

// GreetInput is the input record for examples.greet.
type GreetInput struct {
	Name string `json:"name"`
}

// GreetOutput is the output record for examples.greet.
type GreetOutput struct {
	Message string `json:"message"`
}

// greet is bound via binding.MakeFunctionModule: its *core.Context
// parameter is injected and skipped from the schema, its GreetInput
// parameter becomes the input schema, and its GreetOutput return value
// becomes the output schema's fields-as-mapping.
func greet(callCtx *core.Context, in GreetInput) (GreetOutput, error) {
	if in.Name == "" {
		return GreetOutput{}, core.NewError(core.CodeInvalidInput, "name must not be empty")
	}
	caller := callCtx.CallerID
	if caller == "" {
		caller = "@external"
	}
	return GreetOutput{Message: fmt.Sprintf("hello, %s (called by %s)", in.Name, caller)}, nil
}

// echo is bound with a permissive map[string]any input/output: it
// demonstrates the open-schema path rather than the struct path.
func echo(in map[string]any) (map[string]any, error) {
	return in, nil
}

// alwaysFails demonstrates the on_error middleware path: every call
// raises a structured error for the demo to print and the tracing/
// metrics/logging middlewares to record.
func alwaysFails(callCtx *core.Context) error {
	return core.NewError(core.CodeModuleLoad, "examples.always_fails always raises, by design of the demo")
}
