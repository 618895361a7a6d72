package graft

import (
	"errors"
	"fmt"
)

// Sentinel errors for programmatic error handling.
// Use errors.Is() to check for these error types.
var (
	// ErrUnknownType indicates a root type that was never registered.
	// This is the only failure that aborts an entire encode or decode call.
	ErrUnknownType = errors.New("unknown type")

	// ErrUnresolvedType indicates a type reference (alias or lazy descriptor)
	// that could not be resolved to a registered type.
	ErrUnresolvedType = errors.New("unresolved type")

	// ErrUnresolvedDiscriminant indicates a discriminant with no registered type.
	ErrUnresolvedDiscriminant = errors.New("unresolved discriminant")

	// ErrUnresolvedReference indicates a reference marker that never resolved.
	ErrUnresolvedReference = errors.New("unresolved reference")

	// ErrDuplicateAlias indicates an alias already taken by another type.
	ErrDuplicateAlias = errors.New("duplicate alias")

	// ErrDuplicateDiscriminant indicates a discriminant already taken by another type.
	ErrDuplicateDiscriminant = errors.New("duplicate discriminant")

	// ErrUnknownField indicates field configuration for a field the type does not declare.
	ErrUnknownField = errors.New("unknown field")

	// ErrInvalidArgument indicates invalid constructor or constructor argument configuration.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrConversion indicates a value that could not be coerced into its declared scalar type.
	ErrConversion = errors.New("conversion failed")

	// ErrNotInjectable indicates an injection request for a type not marked injectable.
	ErrNotInjectable = errors.New("type not injectable")

	// ErrInjectionCycle indicates injectable types that depend on each other.
	ErrInjectionCycle = errors.New("injection cycle")

	// ErrConstruction indicates a factory that could not create an instance.
	ErrConstruction = errors.New("construction failed")

	// ErrMalformedNode indicates a data node whose shape does not match the declared type.
	ErrMalformedNode = errors.New("malformed node")

	// ErrInterceptor indicates a get or set interceptor that failed.
	ErrInterceptor = errors.New("interceptor failed")

	// ErrUnmarshal indicates the text codec failed to unmarshal input data.
	ErrUnmarshal = errors.New("unmarshal failed")

	// ErrMarshal indicates the text codec failed to marshal output data.
	ErrMarshal = errors.New("marshal failed")
)

// TypeError represents a registration or root type error.
// It wraps a sentinel error with the type and, when relevant, field or alias.
type TypeError struct {
	Err   error  // Underlying sentinel error (ErrUnknownType, ErrDuplicateAlias, etc.)
	Type  string // Type name that triggered the error
	Field string // Field name, if the error concerns a field
	Name  string // Alias or discriminant, if the error concerns one
}

func (e *TypeError) Error() string {
	switch {
	case e.Field != "":
		return fmt.Sprintf("%s: %s.%s", e.Err.Error(), e.Type, e.Field)
	case e.Name != "" && e.Type != "":
		return fmt.Sprintf("%s %q (type %s)", e.Err.Error(), e.Name, e.Type)
	case e.Name != "":
		return fmt.Sprintf("%s %q", e.Err.Error(), e.Name)
	case e.Type != "":
		return fmt.Sprintf("%s: %s", e.Err.Error(), e.Type)
	}
	return e.Err.Error()
}

func (e *TypeError) Unwrap() error {
	return e.Err
}

// FieldError represents a non-fatal failure localized to one position of
// the traversal. The position is reported as a reference path.
type FieldError struct {
	Err   error  // Underlying sentinel error (ErrConversion, ErrMalformedNode, etc.)
	Path  string // Path of the failing value from the traversal root
	Type  string // Declared type at that position
	Cause error  // Original error, if any
}

func (e *FieldError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s at %s (%s): %v", e.Err.Error(), e.Path, e.Type, e.Cause)
	}
	return fmt.Sprintf("%s at %s (%s)", e.Err.Error(), e.Path, e.Type)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

// CodecError represents a marshal/unmarshal error.
type CodecError struct {
	Err   error // Underlying sentinel error (ErrMarshal, ErrUnmarshal)
	Cause error // Original error from the codec
}

func (e *CodecError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Err.Error(), e.Cause)
	}
	return e.Err.Error()
}

func (e *CodecError) Unwrap() error {
	return e.Err
}

// newTypeError creates a TypeError for registration and root failures.
func newTypeError(sentinel error, typeName, field, name string) error {
	return &TypeError{
		Err:   sentinel,
		Type:  typeName,
		Field: field,
		Name:  name,
	}
}

// newFieldError creates a FieldError for a traversal failure.
func newFieldError(sentinel error, path, typeName string, cause error) *FieldError {
	return &FieldError{
		Err:   sentinel,
		Path:  path,
		Type:  typeName,
		Cause: cause,
	}
}

// newCodecError creates a CodecError for marshal/unmarshal failures.
func newCodecError(sentinel error, cause error) error {
	return &CodecError{
		Err:   sentinel,
		Cause: cause,
	}
}
