package schema

import (
	"fmt"
	"strings"

	"github.com/edgecomet/apcore/core"
)

// ValidationError is one detail record produced by validation (spec.md
// §4.3 "Validation errors"): a JSON-Pointer path, the constraint name
// that failed, a human message, and optional expected/actual values.
//
// Grounded on the teacher's internal/edge/validate.ErrorCollector
// detail-record shape (file/line/message, collected without short-
// circuiting); path/constraint/expected/actual replace file/line since
// this validator walks a document tree, not source text.
type ValidationError struct {
	Path       string
	Constraint string
	Message    string
	Expected   interface{}
	Actual     interface{}
}

func (e ValidationError) String() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %s", e.Constraint, e.Message)
	}
	return fmt.Sprintf("%s (%s): %s", e.Path, e.Constraint, e.Message)
}

// ErrorCollector accumulates ValidationErrors across a full document
// walk instead of short-circuiting on the first failure, matching the
// teacher's collect-everything validation idiom.
type ErrorCollector struct {
	errors []ValidationError
}

func (c *ErrorCollector) Add(path, constraint, message string, expected, actual interface{}) {
	c.errors = append(c.errors, ValidationError{
		Path: path, Constraint: constraint, Message: message,
		Expected: expected, Actual: actual,
	})
}

func (c *ErrorCollector) OK() bool { return len(c.errors) == 0 }

func (c *ErrorCollector) Errors() []ValidationError { return c.errors }

// ParseError is raised when a schema document fails to load or build
// into a validator (unsupported keyword, malformed allOf member, etc).
type ParseError struct {
	ModuleID string
	Path     string
	Reason   string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("schema: parse error for %s at %s: %s", e.ModuleID, e.Path, e.Reason)
}

// Code satisfies the core error-code surface (core.CodeOf), so a
// *ParseError, alone or wrapped by plain %w wrappers, resolves to the
// stable SCHEMA_PARSE_ERROR code (a core *Error wrapping it reports its
// own Code instead).
func (e *ParseError) Code() string { return core.CodeSchemaParse }

// NotFoundError is raised by yaml_only (and, on both-missing, the
// other strategies) when no schema exists for a module.
type NotFoundError struct {
	ModuleID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("schema: not found for module %q", e.ModuleID)
}

func (e *NotFoundError) Code() string { return core.CodeSchemaParse }

// CircularRefError is raised when $ref resolution revisits a reference
// already on the resolution stack, or exceeds the max_depth floor.
type CircularRefError struct {
	Chain []string
}

func (e *CircularRefError) Error() string {
	return fmt.Sprintf("schema: circular $ref chain: %s", strings.Join(e.Chain, " -> "))
}

func (e *CircularRefError) Code() string { return core.CodeSchemaCircularRef }

// ValidationFailedError is the convenience error validate_input/
// validate_output raise, carrying the full detail list.
type ValidationFailedError struct {
	ModuleID string
	Errors   []ValidationError
}

func (e *ValidationFailedError) Error() string {
	return fmt.Sprintf("schema: validation failed for %s (%d error(s)): %s",
		e.ModuleID, len(e.Errors), firstOrEmpty(e.Errors))
}

func (e *ValidationFailedError) Code() string { return core.CodeSchemaValidation }

func firstOrEmpty(errs []ValidationError) string {
	if len(errs) == 0 {
		return ""
	}
	return errs[0].String()
}
