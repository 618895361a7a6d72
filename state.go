package graft

import (
	"context"
	"errors"
	"reflect"
)

// state is scoped to one top-level encode or decode call.
type state struct {
	ctx       context.Context
	reg       *Registry
	refs      ReferenceHandler
	injector  TypeInjector
	overrides map[reflect.Type]*TypeMetadata
	onFailure func(*FieldError)

	path     []segment
	failures int
}

func (s *state) push(seg segment) { s.path = append(s.path, seg) }
func (s *state) pop()             { s.path = s.path[:len(s.path)-1] }

func (s *state) pushKey(key string) { s.push(segment{key: key, isKey: true}) }
func (s *state) pushIndex(i int)    { s.push(segment{index: i}) }

func (s *state) currentPath() string {
	return formatPath(s.path)
}

// fail reports a non-fatal failure at the current position.
func (s *state) fail(sentinel error, t reflect.Type, cause error) {
	s.failAt(s.currentPath(), sentinel, t, cause)
}

func (s *state) failAt(path string, sentinel error, t reflect.Type, cause error) {
	name := "<nil>"
	if t != nil {
		name = t.String()
	}
	fe := newFieldError(sentinel, path, name, cause)
	s.failures++
	emitFailure(s.ctx, fe)
	if s.onFailure != nil {
		s.onFailure(fe)
	}
}

// opaque reports a value copied through without type information.
func (s *state) opaque(t reflect.Type) {
	emitOpaque(s.ctx, t.String(), s.currentPath())
}

// metadata returns the effective metadata of t for this call.
func (s *state) metadata(t reflect.Type) *TypeMetadata {
	t = baseType(t)
	if m, ok := s.overrides[t]; ok {
		return m
	}
	return s.reg.Metadata(t)
}

// lookup returns the effective metadata of t only if it already exists.
func (s *state) lookup(t reflect.Type) (*TypeMetadata, bool) {
	t = baseType(t)
	if m, ok := s.overrides[t]; ok {
		return m, true
	}
	return s.reg.Lookup(t)
}

// references returns the handler for values of type t.
func (s *state) references(t reflect.Type) ReferenceHandler {
	if s.refs != nil {
		return s.refs
	}
	if m, ok := s.lookup(t); ok {
		return m.ReferenceHandler()
	}
	return s.reg.globals().ReferenceHandler
}

// slot is the position a value occupies: the field it belongs to, the
// type declaring that field and the codec bound to it. Elements of a
// container share the slot of the container.
type slot struct {
	field *FieldMetadata
	owner *TypeMetadata
	codec ValueCodec
	inner bool
}

// within returns the slot of an element of a container held in sl.
func (sl slot) within() slot {
	sl.inner = true
	return sl
}

// flags are the policy values in effect at one position.
type flags struct {
	useDefault   bool
	implicit     bool
	preserveNull bool
}

// flagsAt resolves policy for a value of type t in sl: field, then the
// declaring type, then globals. Positions outside a field use the
// metadata of t when it exists.
func (s *state) flagsAt(sl slot, t reflect.Type) flags {
	if sl.field != nil && sl.owner != nil {
		return flags{
			useDefault:   sl.field.useDefaultValue(sl.owner),
			implicit:     sl.field.useImplicitConversion(sl.owner),
			preserveNull: sl.field.preserveNull(sl.owner),
		}
	}
	if t != nil {
		if m, ok := s.lookup(rootType(t)); ok {
			return flags{
				useDefault:   m.UseDefaultValue(),
				implicit:     m.UseImplicitConversion(),
				preserveNull: m.PreserveNull(),
			}
		}
	}
	g := s.reg.globals()
	return flags{
		useDefault:   g.UseDefaultValue == Enabled,
		implicit:     g.UseImplicitConversion == Enabled,
		preserveNull: g.PreserveNull == Enabled,
	}
}

// defaultAt returns the default for a value of type t in sl: the field
// default, else the type default. Resolvers run once per occurrence.
// Container elements have no default.
func (s *state) defaultAt(sl slot, t reflect.Type) (any, bool) {
	if sl.inner {
		return nil, false
	}
	if sl.field != nil {
		if v, ok := sl.field.defaultOf(); ok {
			return v, true
		}
	}
	if t == nil {
		return nil, false
	}
	if m, ok := s.lookup(t); ok {
		return m.defaultOf()
	}
	return nil, false
}

// classify returns the sentinel a factory or injector error maps to.
func classify(err error) error {
	for _, sentinel := range []error{ErrNotInjectable, ErrInjectionCycle, ErrUnresolvedType, ErrConversion} {
		if errors.Is(err, sentinel) {
			return sentinel
		}
	}
	return ErrConstruction
}

// discriminatorKey returns the key carrying discriminants for values
// declared as declared: the declared type's key when it has metadata,
// else the concrete type's key, else the global key.
func (s *state) discriminatorKey(declared reflect.Type, concrete *TypeMetadata) string {
	if declared != nil {
		if m, ok := s.lookup(declared); ok {
			return m.DiscriminatorKey()
		}
	}
	if concrete != nil {
		return concrete.DiscriminatorKey()
	}
	return s.reg.globals().DiscriminatorKey
}

// codecFor returns the leaf codec for values of t in sl, or nil when t
// is traversed structurally. A slot codec applies to every leaf below
// the slot, and to containers it accepts.
func (s *state) codecFor(t reflect.Type, sl slot) ValueCodec {
	if sl.codec != nil && (sl.codec.Accepts(t) || !isContainer(t)) {
		return sl.codec
	}
	if t.Kind() != reflect.Pointer {
		if m, ok := s.lookup(t); ok && m.codec != nil {
			return m.codec
		}
	}
	if c, ok := leafCodec(t); ok {
		return c
	}
	return nil
}

func isContainer(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Array, reflect.Interface:
		return true
	case reflect.Slice:
		return t.Elem().Kind() != reflect.Uint8
	}
	return false
}
