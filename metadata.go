package graft

import (
	"cmp"
	"reflect"
	"slices"
	"strings"

	"dario.cat/mergo"
)

// TypeMetadata describes how one type maps to plain data. There is at
// most one TypeMetadata per type in a Registry; Derive produces private
// copies for one-off overrides.
type TypeMetadata struct {
	registry *Registry
	typ      reflect.Type
	name     string
	explicit bool

	alias        string
	discriminant string
	policy       Policy
	injectable   Toggle

	defaultValue any
	defaultFunc  func() any
	ctor         *constructorSpec

	naming     NamingConvention
	references ReferenceHandler
	factory    TypeFactory
	injector   TypeInjector
	codec      ValueCodec
	custom     *CustomContext

	fields     []*FieldMetadata
	fieldIndex map[string]*FieldMetadata
	args       map[int]*ArgMetadata
}

func newTypeMetadata(reg *Registry, t reflect.Type) *TypeMetadata {
	m := &TypeMetadata{
		registry:     reg,
		typ:          t,
		name:         typeName(t),
		discriminant: typeName(t),
		custom:       &CustomContext{},
		fieldIndex:   make(map[string]*FieldMetadata),
		args:         make(map[int]*ArgMetadata),
	}
	for _, f := range scanFields(t) {
		m.fields = append(m.fields, f)
		m.fieldIndex[f.name] = f
	}
	return m
}

func typeName(t reflect.Type) string {
	if t.Name() != "" {
		return t.Name()
	}
	return t.String()
}

// Type returns the described type.
func (m *TypeMetadata) Type() reflect.Type { return m.typ }

// Name returns the canonical type name.
func (m *TypeMetadata) Name() string { return m.name }

// Alias returns the lookup alias, if any.
func (m *TypeMetadata) Alias() string { return m.alias }

// Discriminant returns the tag identifying the type in polymorphic data.
func (m *TypeMetadata) Discriminant() string { return m.discriminant }

// Registered reports whether the type was configured explicitly.
func (m *TypeMetadata) Registered() bool { return m.explicit }

// Injectable reports whether a TypeInjector may supply instances.
func (m *TypeMetadata) Injectable() bool { return m.injectable == Enabled }

// Custom returns the type's custom context.
func (m *TypeMetadata) Custom() *CustomContext { return m.custom }

// Field returns the metadata of the named field.
func (m *TypeMetadata) Field(name string) (*FieldMetadata, bool) {
	f, ok := m.fieldIndex[name]
	return f, ok
}

// Argument returns the binding of constructor parameter i.
func (m *TypeMetadata) Argument(i int) (*ArgMetadata, bool) {
	a, ok := m.args[i]
	return a, ok
}

// Fields returns the fields in traversal order.
func (m *TypeMetadata) Fields() []*FieldMetadata {
	order := m.policy.Order
	if order == OrderUnset {
		order = m.registry.globals().Order
	}
	if order == OrderDeclaration || order == OrderUnset {
		return m.fields
	}

	fields := slices.Clone(m.fields)
	slices.SortStableFunc(fields, func(a, b *FieldMetadata) int {
		c := cmp.Compare(a.Key(m), b.Key(m))
		if order == OrderDescending {
			return -c
		}
		return c
	})
	return fields
}

// UseDefaultValue reports whether absent values of the type take its default.
func (m *TypeMetadata) UseDefaultValue() bool {
	return m.policy.UseDefaultValue.resolve(m.registry.globals().UseDefaultValue == Enabled)
}

// UseImplicitConversion reports whether scalars may convert between kinds.
func (m *TypeMetadata) UseImplicitConversion() bool {
	return m.policy.UseImplicitConversion.resolve(m.registry.globals().UseImplicitConversion == Enabled)
}

// PreserveNull reports whether null is kept rather than replaced by a default.
func (m *TypeMetadata) PreserveNull() bool {
	return m.policy.PreserveNull.resolve(m.registry.globals().PreserveNull == Enabled)
}

// PreserveDiscriminator reports whether the discriminant is written even
// when the declared type matches the concrete type.
func (m *TypeMetadata) PreserveDiscriminator() bool {
	return m.policy.PreserveDiscriminator.resolve(m.registry.globals().PreserveDiscriminator == Enabled)
}

// DiscriminatorKey returns the data-graph key carrying discriminants.
func (m *TypeMetadata) DiscriminatorKey() string {
	if m.policy.DiscriminatorKey != "" {
		return m.policy.DiscriminatorKey
	}
	return m.registry.globals().DiscriminatorKey
}

// NamingConvention returns the bound convention, or nil for verbatim keys.
func (m *TypeMetadata) NamingConvention() NamingConvention {
	if m.naming != nil {
		return m.naming
	}
	return m.registry.globals().NamingConvention
}

// ReferenceHandler returns the bound handler, else the global one.
func (m *TypeMetadata) ReferenceHandler() ReferenceHandler {
	if m.references != nil {
		return m.references
	}
	return m.registry.globals().ReferenceHandler
}

// Factory returns the bound factory, else the global one.
func (m *TypeMetadata) Factory() TypeFactory {
	if m.factory != nil {
		return m.factory
	}
	return m.registry.globals().Factory
}

// Injector returns the bound injector, else the global one.
func (m *TypeMetadata) Injector() TypeInjector {
	if m.injector != nil {
		return m.injector
	}
	return m.registry.globals().Injector
}

// defaultOf returns the type-level default, invoking the resolver once.
func (m *TypeMetadata) defaultOf() (any, bool) {
	if m.defaultFunc != nil {
		return m.defaultFunc(), true
	}
	if m.defaultValue != nil {
		return m.defaultValue, true
	}
	return nil, false
}

// merge applies explicit options. Zero-valued attributes are skipped.
func (m *TypeMetadata) merge(opts TypeOptions) error {
	if err := mergo.Merge(&m.policy, opts.Policy, mergo.WithOverride); err != nil {
		return err
	}
	if opts.Alias != "" {
		m.alias = opts.Alias
	}
	if opts.Discriminant != "" {
		m.discriminant = opts.Discriminant
	}
	if opts.Injectable != Unset {
		m.injectable = opts.Injectable
	}
	if opts.DefaultValue != nil {
		m.defaultValue = opts.DefaultValue
	}
	if opts.DefaultFunc != nil {
		m.defaultFunc = opts.DefaultFunc
	}
	if opts.Constructor != nil {
		spec, ok := newConstructorSpec(m.typ, opts.Constructor)
		if !ok {
			return newTypeError(ErrInvalidArgument, m.name, "", "constructor")
		}
		m.ctor = spec
	}
	if opts.NamingConvention != nil {
		m.naming = opts.NamingConvention
	}
	if opts.ReferenceHandler != nil {
		m.references = opts.ReferenceHandler
	}
	if opts.Factory != nil {
		m.factory = opts.Factory
	}
	if opts.Injector != nil {
		m.injector = opts.Injector
	}
	if opts.Codec != nil {
		m.codec = opts.Codec
	}
	m.custom.apply(opts.Custom)
	return nil
}

// clone copies the type's own attributes. Field and argument metadata
// are shared with the original.
func (m *TypeMetadata) clone() *TypeMetadata {
	c := *m
	c.custom = m.custom.clone()
	c.fields = slices.Clone(m.fields)
	c.fieldIndex = make(map[string]*FieldMetadata, len(m.fieldIndex))
	for k, v := range m.fieldIndex {
		c.fieldIndex[k] = v
	}
	c.args = make(map[int]*ArgMetadata, len(m.args))
	for k, v := range m.args {
		c.args[k] = v
	}
	return &c
}

// FieldMetadata describes one field of a type.
type FieldMetadata struct {
	name   string
	index  []int
	goType reflect.Type

	alias    string
	tagAlias string
	ref      *TypeRef
	args     []*TypeRef
	policy   Policy

	serializable   Toggle
	deserializable Toggle

	defaultValue any
	defaultFunc  func() any

	get   Interceptor
	set   Interceptor
	codec ValueCodec

	custom *CustomContext
}

// Name returns the Go field name.
func (f *FieldMetadata) Name() string { return f.name }

// Alias returns the explicit data-graph key, if any.
func (f *FieldMetadata) Alias() string { return f.alias }

// GoType returns the Go type of the field.
func (f *FieldMetadata) GoType() reflect.Type { return f.goType }

// Custom returns the field's custom context.
func (f *FieldMetadata) Custom() *CustomContext { return f.custom }

// Key returns the data-graph key of the field as declared on owner: the
// explicit alias, the tag alias, or the name converted by owner's
// naming convention.
func (f *FieldMetadata) Key(owner *TypeMetadata) string {
	if f.alias != "" {
		return f.alias
	}
	if f.tagAlias != "" {
		return f.tagAlias
	}
	if nc := owner.NamingConvention(); nc != nil {
		return nc.Convert(f.name)
	}
	return f.name
}

// Serializable reports whether the field is written on encode.
func (f *FieldMetadata) Serializable() bool {
	return f.serializable.resolve(f.deserializable != Enabled)
}

// Deserializable reports whether the field is read on decode.
func (f *FieldMetadata) Deserializable() bool {
	return f.deserializable.resolve(f.serializable != Enabled)
}

func (f *FieldMetadata) useDefaultValue(owner *TypeMetadata) bool {
	return f.policy.UseDefaultValue.resolve(owner.UseDefaultValue())
}

func (f *FieldMetadata) useImplicitConversion(owner *TypeMetadata) bool {
	return f.policy.UseImplicitConversion.resolve(owner.UseImplicitConversion())
}

func (f *FieldMetadata) preserveNull(owner *TypeMetadata) bool {
	return f.policy.PreserveNull.resolve(owner.PreserveNull())
}

// preserveDiscriminator inherits from the value's concrete type, not
// from the declaring type.
func (f *FieldMetadata) preserveDiscriminator(concrete *TypeMetadata) bool {
	return f.policy.PreserveDiscriminator.resolve(concrete.PreserveDiscriminator())
}

// defaultOf returns the field-level default, invoking the resolver once.
func (f *FieldMetadata) defaultOf() (any, bool) {
	if f.defaultFunc != nil {
		return f.defaultFunc(), true
	}
	if f.defaultValue != nil {
		return f.defaultValue, true
	}
	return nil, false
}

func (f *FieldMetadata) merge(opts FieldOptions) error {
	if err := mergo.Merge(&f.policy, opts.Policy, mergo.WithOverride); err != nil {
		return err
	}
	if opts.Alias != "" {
		f.alias = opts.Alias
	}
	if opts.Type != nil {
		f.ref = opts.Type
	}
	if len(opts.Args) > 0 {
		f.args = opts.Args
	}
	if opts.Serializable != Unset {
		f.serializable = opts.Serializable
	}
	if opts.Deserializable != Unset {
		f.deserializable = opts.Deserializable
	}
	if opts.DefaultValue != nil {
		f.defaultValue = opts.DefaultValue
	}
	if opts.DefaultFunc != nil {
		f.defaultFunc = opts.DefaultFunc
	}
	if opts.Get != nil {
		f.get = opts.Get
	}
	if opts.Set != nil {
		f.set = opts.Set
	}
	if opts.Codec != nil {
		f.codec = opts.Codec
	}
	f.custom.apply(opts.Custom)
	return nil
}

// ArgMetadata binds one constructor parameter.
type ArgMetadata struct {
	index int
	key   string
	ref   *TypeRef
}

// Index returns the parameter position.
func (a *ArgMetadata) Index() int { return a.index }

// Key returns the construction-context key, if bound by key.
func (a *ArgMetadata) Key() string { return a.key }

// tagOptions parses a `graft:"key,opt"` struct tag.
func tagOptions(tag string) (key string, skip bool) {
	if tag == "-" {
		return "", true
	}
	key, _, _ = strings.Cut(tag, ",")
	return key, false
}
