// Package errors provides category-tagged errors for the monitoring engine.
// Categories classify failures by who can act on them (caller-correctable
// validation, missing resources, state-machine violations, isolated
// execution failures, unavailable collaborators) so the HTTP layer can map
// them to status codes without string matching.
package errors

import (
	"errors"
	"fmt"
)

// Category classifies an error for propagation and status mapping.
type Category string

const (
	// CategoryValidation marks caller-correctable input errors.
	CategoryValidation Category = "validation"
	// CategoryNotFound marks lookups of unknown rule/alert/execution ids.
	CategoryNotFound Category = "not_found"
	// CategoryInvalidState marks state-machine violations, e.g. intervening
	// on an already-resolved alert.
	CategoryInvalidState Category = "invalid_state"
	// CategoryExecution marks evaluation-time failures isolated to a single
	// rule execution. Never propagated past the execution ledger.
	CategoryExecution Category = "execution"
	// CategoryDependency marks unavailable collaborators (metric store,
	// enforcement hooks) after retries are exhausted.
	CategoryDependency Category = "dependency"
)

// Error wraps an underlying error with a category and optional context.
type Error struct {
	err      error
	category Category
	context  map[string]any
}

// Newf creates an Error from a format string. Chain Category and Context
// before handing it off, e.g.
//
//	errors.Newf("rule %d: operator required", id).Category(errors.CategoryValidation)
func Newf(format string, args ...any) *Error {
	return &Error{err: fmt.Errorf(format, args...)}
}

// New wraps an existing error.
func New(err error) *Error {
	return &Error{err: err}
}

// Category tags the error and returns it for chaining.
func (e *Error) Category(c Category) *Error {
	e.category = c
	return e
}

// Context attaches a key/value detail (e.g. the offending field name).
func (e *Error) Context(key string, value any) *Error {
	if e.context == nil {
		e.context = make(map[string]any)
	}
	e.context[key] = value
	return e
}

func (e *Error) Error() string { return e.err.Error() }

func (e *Error) Unwrap() error { return e.err }

// GetContext returns the attached context map, or nil.
func (e *Error) GetContext() map[string]any { return e.context }

// GetCategory extracts the category from an error chain. Returns the empty
// category when the chain carries no *Error.
func GetCategory(err error) Category {
	var e *Error
	if errors.As(err, &e) {
		return e.category
	}
	return ""
}

// HasCategory reports whether err carries the given category.
func HasCategory(err error, c Category) bool {
	return GetCategory(err) == c
}

// Stdlib re-exports so call sites import a single errors package.

func Is(err, target error) bool { return errors.Is(err, target) }

func As(err error, target any) bool { return errors.As(err, target) }

func Unwrap(err error) error { return errors.Unwrap(err) }

func NewStd(text string) error { return errors.New(text) }
