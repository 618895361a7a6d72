package graft

import (
	"fmt"
	"reflect"
	"sync"
)

// TypeRef describes a value type, optionally deferred, together with the
// generic arguments needed to interpret container contents.
type TypeRef struct {
	typ   reflect.Type
	alias string
	lazy  func() reflect.Type
	args  []*TypeRef

	mu       sync.Mutex
	resolved reflect.Type
}

// TypeOf describes T. Args describe T's contents when T is a container.
func TypeOf[T any](args ...*TypeRef) *TypeRef {
	return &TypeRef{typ: reflect.TypeFor[T](), args: args}
}

// TypeFor describes t.
func TypeFor(t reflect.Type, args ...*TypeRef) *TypeRef {
	return &TypeRef{typ: t, args: args}
}

// TypeNamed references a type by its registered alias. The alias is
// resolved on first use, so it may be registered after the reference is made.
func TypeNamed(alias string, args ...*TypeRef) *TypeRef {
	return &TypeRef{alias: alias, args: args}
}

// TypeLazy defers type resolution to first use, for recursive type graphs.
func TypeLazy(fn func() reflect.Type, args ...*TypeRef) *TypeRef {
	return &TypeRef{lazy: fn, args: args}
}

// Args returns the generic arguments of the reference.
func (r *TypeRef) Args() []*TypeRef {
	return r.args
}

func (r *TypeRef) String() string {
	switch {
	case r.typ != nil:
		return r.typ.String()
	case r.alias != "":
		return "alias:" + r.alias
	}
	return "lazy"
}

// resolve returns the described type. Successful resolutions are cached;
// failures are retried on the next use.
func (r *TypeRef) resolve(reg *Registry) (reflect.Type, error) {
	if r.typ != nil {
		return r.typ, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.resolved != nil {
		return r.resolved, nil
	}

	var t reflect.Type
	switch {
	case r.lazy != nil:
		t = r.lazy()
	case r.alias != "":
		if m, err := reg.ResolveByAlias(r.alias); err == nil {
			t = m.typ
			if t.Kind() == reflect.Struct {
				t = reflect.PointerTo(t)
			}
		}
	}
	if t == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnresolvedType, r)
	}
	r.resolved = t
	return t, nil
}

// typeDesc is a resolved value type plus its pending generic arguments.
type typeDesc struct {
	typ  reflect.Type
	args []*TypeRef
}

func (d typeDesc) String() string {
	if d.typ == nil {
		return "<nil>"
	}
	return d.typ.String()
}

// descOf resolves a TypeRef into a descriptor.
func descOf(reg *Registry, ref *TypeRef) (typeDesc, error) {
	t, err := ref.resolve(reg)
	if err != nil {
		return typeDesc{}, err
	}
	return typeDesc{typ: t, args: ref.args}, nil
}

// fieldDesc returns the declared value type of a field.
func fieldDesc(reg *Registry, f *FieldMetadata) (typeDesc, error) {
	args := f.args
	if f.ref == nil {
		return typeDesc{typ: f.goType, args: args}, nil
	}
	d, err := descOf(reg, f.ref)
	if err != nil {
		return typeDesc{}, err
	}
	if len(args) == 0 {
		args = d.args
	}
	d.args = args
	return d, nil
}

// elemDesc returns the element type of a slice or array descriptor.
func elemDesc(reg *Registry, d typeDesc) (typeDesc, error) {
	if len(d.args) > 0 {
		return descOf(reg, d.args[0])
	}
	return typeDesc{typ: d.typ.Elem()}, nil
}

// mapDesc returns the key and value types of a map descriptor. A single
// generic argument describes the value type.
func mapDesc(reg *Registry, d typeDesc) (typeDesc, typeDesc, error) {
	key := typeDesc{typ: d.typ.Key()}
	val := typeDesc{typ: d.typ.Elem()}

	var err error
	switch len(d.args) {
	case 0:
	case 1:
		val, err = descOf(reg, d.args[0])
	default:
		if key, err = descOf(reg, d.args[0]); err != nil {
			return key, val, err
		}
		val, err = descOf(reg, d.args[1])
	}
	return key, val, err
}

// baseType strips pointers from t.
func baseType(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}

// rootType strips pointers and containers from t, returning the type a
// top-level call must have registered.
func rootType(t reflect.Type) reflect.Type {
	for {
		switch t.Kind() {
		case reflect.Pointer, reflect.Slice, reflect.Array:
			t = t.Elem()
		case reflect.Map:
			t = t.Elem()
		default:
			return t
		}
	}
}
