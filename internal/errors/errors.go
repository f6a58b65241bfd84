// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package errors provides the structured error type shared by every peerbench
// component. A Kind decides how far an error travels: configuration, channel
// and environment errors abort a run, tool failures are collected.
package errors

import (
	"errors"
	"fmt"
	"sort"
)

// Kind defines the category of error.
type Kind int

const (
	KindUnknown Kind = iota
	KindInternal
	KindConfiguration
	KindRemoteExecution
	KindToolFailure
	KindEnvironment
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindInternal:
		return "internal"
	case KindConfiguration:
		return "configuration"
	case KindRemoteExecution:
		return "remote_execution"
	case KindToolFailure:
		return "tool_failure"
	case KindEnvironment:
		return "environment"
	case KindConflict:
		return "conflict"
	default:
		return "unknown"
	}
}

// Fatal reports whether errors of this kind must abort the whole run.
// Tool failures are the only kind that is recorded and survived.
func (k Kind) Fatal() bool {
	return k != KindToolFailure
}

// Error represents a structured peerbench error.
type Error struct {
	Kind       Kind
	Message    string
	Underlying error
	Attributes map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Underlying)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Underlying
}

// New creates a new Error of the specified kind.
func New(kind Kind, msg string) error {
	return &Error{
		Kind:    kind,
		Message: msg,
	}
}

// Errorf creates a new Error of the specified kind with a formatted message.
func Errorf(kind Kind, format string, args ...any) error {
	return &Error{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an existing error as a new Error of the specified kind.
func Wrap(err error, kind Kind, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{
		Kind:       kind,
		Message:    msg,
		Underlying: err,
	}
}

// Wrapf wraps an existing error as a new Error of the specified kind with a formatted message.
func Wrapf(err error, kind Kind, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &Error{
		Kind:       kind,
		Message:    fmt.Sprintf(format, args...),
		Underlying: err,
	}
}

// Attr attaches an attribute to an error. Plain errors are wrapped as KindInternal first.
func Attr(err error, key string, val any) error {
	if err == nil {
		return nil
	}

	var e *Error
	if !errors.As(err, &e) {
		e = &Error{
			Kind:       KindInternal,
			Message:    err.Error(),
			Underlying: err,
		}
	}

	if e.Attributes == nil {
		e.Attributes = make(map[string]any)
	}
	e.Attributes[key] = val
	return e
}

// GetKind returns the Kind of the outermost *Error in the chain, or KindUnknown.
func GetKind(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind reports whether the outermost *Error in err's chain has the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && GetKind(err) == kind
}

// GetAttributes returns all attributes associated with the error and its chain.
// Outer attributes win over inner ones with the same key.
func GetAttributes(err error) map[string]any {
	attrs := make(map[string]any)
	var e *Error

	tempErr := err
	for tempErr != nil {
		if !errors.As(tempErr, &e) {
			break
		}
		for k, v := range e.Attributes {
			if _, ok := attrs[k]; !ok {
				attrs[k] = v
			}
		}
		tempErr = e.Underlying
	}

	return attrs
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// Join returns an error that wraps the given errors, discarding nils.
func Join(errs ...error) error {
	return errors.Join(errs...)
}

// Fields flattens the kind and attributes of err into logger key/value pairs,
// sorted by key so the output is stable.
func Fields(err error) []any {
	if err == nil {
		return nil
	}
	attrs := GetAttributes(err)
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fields := []any{"kind", GetKind(err).String()}
	for _, k := range keys {
		fields = append(fields, k, attrs[k])
	}
	return fields
}
