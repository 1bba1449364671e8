// Package errors provides attributed, definable error values, in the same
// shape as the errors package the LNS side of this protocol uses: a
// Definition is declared once per failure mode and instantiated with
// concrete attributes at the call site, which keeps §7's error taxonomy
// (protocol, regulatory, transient, time-sync, resource, fatal) queryable
// instead of stringly-typed.
package errors

import (
	"fmt"
	"strings"

	pkgerrors "github.com/pkg/errors"
)

// Definition is a named, formatted error template.
type Definition struct {
	name    string
	message string
}

// Define registers a new error definition. message may contain `{attr}`
// placeholders substituted by WithAttributes.
func Define(name, message string) *Definition {
	return &Definition{name: name, message: message}
}

// Error implements error for a bare Definition (no attributes attached).
func (d *Definition) Error() string { return d.message }

// Name returns the definition's stable identifier.
func (d *Definition) Name() string { return d.name }

// New instantiates the definition with no attributes.
func (d *Definition) New() *Error {
	return &Error{def: d, attrs: nil}
}

// WithAttributes instantiates the definition with the given alternating
// key/value attributes.
func (d *Definition) WithAttributes(kv ...interface{}) *Error {
	attrs := make(map[string]interface{}, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		if key, ok := kv[i].(string); ok {
			attrs[key] = kv[i+1]
		}
	}
	return &Error{def: d, attrs: attrs}
}

// WithCause instantiates the definition, wrapping a lower-level cause.
func (d *Definition) WithCause(cause error) *Error {
	return &Error{def: d, cause: pkgerrors.WithStack(cause)}
}

// Error is a concrete, attributed instance of a Definition.
type Error struct {
	def   *Definition
	attrs map[string]interface{}
	cause error
}

func (e *Error) Error() string {
	msg := e.def.message
	for k, v := range e.attrs {
		placeholder := "{" + k + "}"
		msg = strings.ReplaceAll(msg, placeholder, fmt.Sprintf("%v", v))
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s", msg, e.cause.Error())
	}
	return msg
}

func (e *Error) Unwrap() error { return e.cause }

// Definition returns the originating Definition, so callers can test error
// identity with Is.
func (e *Error) Definition() *Definition { return e.def }

// Is reports whether err (or anything it wraps) originated from def.
func Is(err error, def *Definition) bool {
	se, ok := From(err)
	if !ok {
		return false
	}
	return se.def == def
}

// From extracts an *Error from err, unwrapping as necessary.
func From(err error) (*Error, bool) {
	for err != nil {
		if se, ok := err.(*Error); ok {
			return se, true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return nil, false
		}
		err = u.Unwrap()
	}
	return nil, false
}

