// Package diagnostics implements the error kinds and warning sink described
// by the weaver's error-handling design: typed, wrapping errors for fatal
// conditions and an accumulating sink for non-fatal warnings.
package diagnostics

import "fmt"

// ParseError reports a malformed input specification. It is the shape an
// external spec reader returns when it fails; the weaver itself constructs
// one for an invalid or too-new format version.
type ParseError struct {
	Path    string
	Message string
	Err     error
}

func NewParseError(path, message string, err error) error {
	return &ParseError{Path: path, Message: message, Err: err}
}

func (e *ParseError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("parse error: %s: %s", e.Path, e.Message)
}

func (e *ParseError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// UnresolvedReferenceError reports an attachment that names a call,
// analysis, module, operation, strategy, protocol, place or enumeration by
// name with no matching entity registered.
type UnresolvedReferenceError struct {
	Kind string // "call", "analysis", "module", "operation", "strategy", "protocol", "place", "enum"
	Name string
}

func NewUnresolvedReferenceError(kind, name string) error {
	return &UnresolvedReferenceError{Kind: kind, Name: name}
}

func (e *UnresolvedReferenceError) Error() string {
	return fmt.Sprintf("unresolved reference: no %s named %q", e.Kind, e.Name)
}

// ConstraintViolationError reports duplicate names, arity/type mismatches,
// intra-call order collisions, or a reduction attached to a module that
// declares no reduction support.
type ConstraintViolationError struct {
	Scope   string
	Message string
}

func NewConstraintViolationError(scope, message string) error {
	return &ConstraintViolationError{Scope: scope, Message: message}
}

func (e *ConstraintViolationError) Error() string {
	return fmt.Sprintf("constraint violation in %s: %s", e.Scope, e.Message)
}

// LayoutError reports a cyclic layer graph, an unreachable layer, an orphan
// leaf, or a wrap-across module hosted on a layer without an
// intra-communication.
type LayoutError struct {
	Message string
}

func NewLayoutError(message string) error {
	return &LayoutError{Message: message}
}

func (e *LayoutError) Error() string {
	return fmt.Sprintf("layout error: %s", e.Message)
}

// PlacementError reports that a reduction-capable analysis cannot be
// placed anywhere consistent with its dependencies.
type PlacementError struct {
	Call    string
	Order   string
	Message string
}

func NewPlacementError(call, order, message string) error {
	return &PlacementError{Call: call, Order: order, Message: message}
}

func (e *PlacementError) Error() string {
	return fmt.Sprintf("placement error for %s/%s: %s", e.Call, e.Order, e.Message)
}

// IoError reports a missing input file or an unwritable output path.
type IoError struct {
	Path string
	Err  error
}

func NewIoError(path string, err error) error {
	return &IoError{Path: path, Err: err}
}

func (e *IoError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("io error: %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("io error: %s", e.Path)
}

func (e *IoError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
