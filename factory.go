package graft

import (
	"fmt"
	"reflect"
	"sync"
)

// Construction holds the values decoded for one object before the
// object exists. Factories read constructor arguments from it and mark
// the fields they consumed; the engine assigns the rest.
type Construction struct {
	values   map[string]reflect.Value
	keys     map[string]string
	raw      map[string]any
	extras   map[string]any
	consumed map[string]bool
	report   func(error)
}

func newConstruction(raw map[string]any, report func(error)) *Construction {
	return &Construction{
		values:   make(map[string]reflect.Value),
		keys:     make(map[string]string),
		raw:      raw,
		extras:   make(map[string]any),
		consumed: make(map[string]bool),
		report:   report,
	}
}

// Lookup returns the value bound to key: a decoded field looked up by
// field name or data-graph key, else the raw data node under key.
func (c *Construction) Lookup(key string) (reflect.Value, bool) {
	if v, ok := c.values[key]; ok {
		return v, true
	}
	if name, ok := c.keys[key]; ok {
		if v, ok := c.values[name]; ok {
			return v, true
		}
	}
	if node, ok := c.raw[key]; ok && node != nil {
		return reflect.ValueOf(node), true
	}
	return reflect.Value{}, false
}

// Consume marks the field behind key as set by the factory.
func (c *Construction) Consume(key string) {
	if _, ok := c.values[key]; ok {
		c.consumed[key] = true
		return
	}
	if name, ok := c.keys[key]; ok {
		c.consumed[name] = true
	}
}

// Consumed reports whether the named field was set by the factory.
func (c *Construction) Consumed(field string) bool {
	return c.consumed[field]
}

// Extras returns the data-graph entries that matched no field.
func (c *Construction) Extras() map[string]any {
	return c.extras
}

// Report records a non-fatal failure at the object being constructed.
func (c *Construction) Report(err error) {
	if c.report != nil {
		c.report(err)
	}
}

// TypeFactory creates instances of a type from a construction context.
type TypeFactory interface {
	// Build returns a non-nil pointer to a new instance of m's type.
	Build(m *TypeMetadata, c *Construction, inj TypeInjector) (reflect.Value, error)
}

// TypeFactoryFunc adapts a plain function to the TypeFactory interface.
type TypeFactoryFunc func(m *TypeMetadata, c *Construction, inj TypeInjector) (reflect.Value, error)

// Build implements TypeFactory.
func (f TypeFactoryFunc) Build(m *TypeMetadata, c *Construction, inj TypeInjector) (reflect.Value, error) {
	return f(m, c, inj)
}

type defaultFactory struct{}

// DefaultFactory calls the registered constructor with positional
// arguments, or allocates a zero instance when there is none.
// Arguments bound by key come from the construction context; arguments
// bound by type come from the injector. Unbound or failing arguments
// are passed as zero values.
func DefaultFactory() TypeFactory { return defaultFactory{} }

func (defaultFactory) Build(m *TypeMetadata, c *Construction, inj TypeInjector) (reflect.Value, error) {
	if m.ctor == nil {
		if m.typ.Kind() == reflect.Interface {
			return reflect.Value{}, fmt.Errorf("%s is abstract", m.name)
		}
		return reflect.New(m.typ), nil
	}

	args := make([]reflect.Value, len(m.ctor.params))
	for i, pt := range m.ctor.params {
		args[i] = reflect.Zero(pt)

		a, ok := m.args[i]
		if !ok {
			continue
		}
		switch {
		case a.key != "":
			v, ok := c.Lookup(a.key)
			if !ok {
				continue
			}
			if cv, ok := convertArg(v, pt); ok {
				args[i] = cv
				c.Consume(a.key)
			} else {
				c.Report(fmt.Errorf("%w: argument %d: cannot use %s as %s", ErrConversion, i, v.Type(), pt))
			}
		case a.ref != nil:
			t, err := a.ref.resolve(m.registry)
			if err != nil {
				c.Report(err)
				continue
			}
			if inj == nil {
				c.Report(fmt.Errorf("%w: argument %d: no injector", ErrNotInjectable, i))
				continue
			}
			v, err := inj.Resolve(t)
			if err != nil {
				c.Report(err)
				continue
			}
			if cv, ok := convertArg(v, pt); ok {
				args[i] = cv
			}
		}
	}

	out := m.ctor.fn.Call(args)
	if m.ctor.hasError && !out[1].IsNil() {
		return reflect.Value{}, out[1].Interface().(error)
	}

	v := out[0]
	if v.Kind() != reflect.Pointer {
		p := reflect.New(m.typ)
		p.Elem().Set(v)
		return p, nil
	}
	if v.IsNil() {
		return reflect.Value{}, fmt.Errorf("constructor of %s returned nil", m.name)
	}
	return v, nil
}

// convertArg adapts v to a parameter of type t.
func convertArg(v reflect.Value, t reflect.Type) (reflect.Value, bool) {
	vt := v.Type()
	switch {
	case vt.AssignableTo(t):
		return v, true
	case vt.Kind() == reflect.Pointer && vt.Elem().AssignableTo(t):
		if v.IsNil() {
			return reflect.Zero(t), true
		}
		return v.Elem(), true
	case t.Kind() == reflect.Pointer && vt.AssignableTo(t.Elem()):
		p := reflect.New(t.Elem())
		p.Elem().Set(v)
		return p, true
	case vt.Kind() == t.Kind() && vt.ConvertibleTo(t):
		return v.Convert(t), true
	case isNumberKind(vt.Kind()) && isNumberKind(t.Kind()):
		out := reflect.New(t).Elem()
		if err := numberInto(out, v); err != nil {
			return reflect.Value{}, false
		}
		return out, true
	}
	return reflect.Value{}, false
}

func isNumberKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

func numberInto(out, v reflect.Value) error {
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return setInt(out, v.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return setUint(out, v.Uint())
	}
	return setFloat(out, v.Float())
}

// TypeInjector supplies instances of injectable types.
type TypeInjector interface {
	// Resolve returns an instance assignable to t.
	Resolve(t reflect.Type) (reflect.Value, error)
}

// SingletonInjector builds one instance per injectable type and returns
// it on every later request. Instances are scoped to the injector.
type SingletonInjector struct {
	reg *Registry

	mu        sync.Mutex
	instances map[reflect.Type]reflect.Value
}

// NewSingletonInjector creates an injector reading metadata from reg.
func NewSingletonInjector(reg *Registry) *SingletonInjector {
	return &SingletonInjector{
		reg:       reg,
		instances: make(map[reflect.Type]reflect.Value),
	}
}

// Resolve returns the singleton for t, building it on first request.
// The injectee's own constructor arguments resolve through this injector.
func (i *SingletonInjector) Resolve(t reflect.Type) (reflect.Value, error) {
	return i.resolve(t, nil)
}

func (i *SingletonInjector) resolve(t reflect.Type, chain []reflect.Type) (reflect.Value, error) {
	base := baseType(t)
	m := i.reg.Metadata(base)
	if !m.Injectable() {
		return reflect.Value{}, newTypeError(ErrNotInjectable, m.name, "", "")
	}

	i.mu.Lock()
	inst, ok := i.instances[base]
	i.mu.Unlock()
	if ok {
		return fitInstance(inst, t), nil
	}

	for _, seen := range chain {
		if seen == base {
			return reflect.Value{}, newTypeError(ErrInjectionCycle, m.name, "", "")
		}
	}

	// A singleton whose own arguments fail is not cached; the first
	// argument failure is returned to the requester.
	var argErr error
	c := newConstruction(nil, func(err error) {
		if argErr == nil {
			argErr = err
		}
	})
	scoped := &chainedInjector{parent: i, chain: append(chain[:len(chain):len(chain)], base)}
	built, err := m.Factory().Build(m, c, scoped)
	if err == nil {
		err = argErr
	}
	if err != nil {
		return reflect.Value{}, err
	}

	// Concurrent first requests may both build; the first stored wins.
	i.mu.Lock()
	if existing, ok := i.instances[base]; ok {
		built = existing
	} else {
		i.instances[base] = built
	}
	i.mu.Unlock()

	return fitInstance(built, t), nil
}

// chainedInjector carries the chain of types under construction so
// nested requests can detect cycles.
type chainedInjector struct {
	parent *SingletonInjector
	chain  []reflect.Type
}

func (c *chainedInjector) Resolve(t reflect.Type) (reflect.Value, error) {
	return c.parent.resolve(t, c.chain)
}

// fitInstance returns the pointer instance as t or *t.
func fitInstance(inst reflect.Value, t reflect.Type) reflect.Value {
	if t.Kind() != reflect.Pointer && inst.Kind() == reflect.Pointer && inst.Type().Elem() == t {
		return inst.Elem()
	}
	return inst
}
