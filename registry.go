package graft

import (
	"context"
	"reflect"
	"sync"
	"sync/atomic"

	"dario.cat/mergo"
)

// Registry maps types to their metadata and holds the global defaults
// every type inherits. Registration is serialized by the registry;
// traversals only read metadata and may run concurrently with each other
// but not with reconfiguration of the types they traverse.
type Registry struct {
	mu            sync.RWMutex
	types         map[reflect.Type]*TypeMetadata
	aliases       map[string]*TypeMetadata
	discriminants map[string]*TypeMetadata

	defaults atomic.Pointer[GlobalOptions]
}

// NewRegistry creates an empty registry with the built-in defaults:
// null preserved, defaults and implicit conversion off, "$type"
// discriminator key, declaration order, path references, singleton
// injection.
func NewRegistry() *Registry {
	r := &Registry{}
	r.init()
	return r
}

func (r *Registry) init() {
	r.types = make(map[reflect.Type]*TypeMetadata)
	r.aliases = make(map[string]*TypeMetadata)
	r.discriminants = make(map[string]*TypeMetadata)
	r.defaults.Store(&GlobalOptions{
		Policy: Policy{
			UseDefaultValue:       Disabled,
			UseImplicitConversion: Disabled,
			PreserveNull:          Enabled,
			PreserveDiscriminator: Disabled,
			DiscriminatorKey:      DefaultDiscriminatorKey,
			Order:                 OrderDeclaration,
		},
		ReferenceHandler: PathReferenceHandler(),
		Factory:          DefaultFactory(),
		Injector:         NewSingletonInjector(r),
	})
}

func (r *Registry) globals() *GlobalOptions {
	return r.defaults.Load()
}

// SetGlobalDefaults merges opts into the inherited base policies.
// Zero-valued attributes keep their current value.
func (r *Registry) SetGlobalDefaults(opts GlobalOptions) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := *r.globals()
	if err := mergo.Merge(&next.Policy, opts.Policy, mergo.WithOverride); err != nil {
		return err
	}
	if opts.NamingConvention != nil {
		next.NamingConvention = opts.NamingConvention
	}
	if opts.ReferenceHandler != nil {
		next.ReferenceHandler = opts.ReferenceHandler
	}
	if opts.Factory != nil {
		next.Factory = opts.Factory
	}
	if opts.Injector != nil {
		next.Injector = opts.Injector
	}
	r.defaults.Store(&next)
	return nil
}

// Metadata returns the metadata of t, creating implicit metadata on first use.
func (r *Registry) Metadata(t reflect.Type) *TypeMetadata {
	t = baseType(t)

	// Fast path: read-lock cache check
	r.mu.RLock()
	if m, ok := r.types[t]; ok {
		r.mu.RUnlock()
		return m
	}
	r.mu.RUnlock()

	// Slow path: build and cache with write-lock
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.metadataLocked(t)
}

// metadataLocked returns or creates metadata; r.mu must be held for writing.
func (r *Registry) metadataLocked(t reflect.Type) *TypeMetadata {
	if m, ok := r.types[t]; ok {
		return m
	}
	m := newTypeMetadata(r, t)
	r.types[t] = m
	if _, taken := r.discriminants[m.discriminant]; !taken {
		r.discriminants[m.discriminant] = m
	}
	return m
}

// Lookup returns the metadata of t if it exists.
func (r *Registry) Lookup(t reflect.Type) (*TypeMetadata, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.types[baseType(t)]
	return m, ok
}

// Register merges opts into the metadata of t, creating it on first use.
// An alias or explicit discriminant already owned by another type is
// rejected and the first registration stays in place.
func (r *Registry) Register(t reflect.Type, opts TypeOptions) (*TypeMetadata, error) {
	t = baseType(t)

	r.mu.Lock()
	m := r.metadataLocked(t)

	if opts.Alias != "" {
		if owner, ok := r.aliases[opts.Alias]; ok && owner != m {
			r.mu.Unlock()
			return nil, newTypeError(ErrDuplicateAlias, m.name, "", opts.Alias)
		}
	}
	if opts.Discriminant != "" {
		if owner, ok := r.discriminants[opts.Discriminant]; ok && owner != m {
			r.mu.Unlock()
			return nil, newTypeError(ErrDuplicateDiscriminant, m.name, "", opts.Discriminant)
		}
	}

	oldAlias, oldDiscriminant := m.alias, m.discriminant
	if err := m.merge(opts); err != nil {
		r.mu.Unlock()
		return nil, err
	}
	m.explicit = true

	if m.alias != oldAlias {
		if r.aliases[oldAlias] == m {
			delete(r.aliases, oldAlias)
		}
		r.aliases[m.alias] = m
	}
	if m.discriminant != oldDiscriminant {
		if r.discriminants[oldDiscriminant] == m {
			delete(r.discriminants, oldDiscriminant)
		}
		r.discriminants[m.discriminant] = m
	}
	r.mu.Unlock()

	emitTypeRegistered(context.Background(), m.name, m.alias)
	return m, nil
}

// RegisterField merges opts into the metadata of one field of t.
func (r *Registry) RegisterField(t reflect.Type, field string, opts FieldOptions) (*FieldMetadata, error) {
	t = baseType(t)

	r.mu.Lock()
	defer r.mu.Unlock()

	m := r.metadataLocked(t)
	f, ok := m.fieldIndex[field]
	if !ok {
		return nil, newTypeError(ErrUnknownField, m.name, field, "")
	}
	if err := f.merge(opts); err != nil {
		return nil, err
	}
	m.explicit = true
	return f, nil
}

// RegisterArgument binds constructor parameter index of t.
func (r *Registry) RegisterArgument(t reflect.Type, index int, opts ArgOptions) error {
	t = baseType(t)

	r.mu.Lock()
	defer r.mu.Unlock()

	m := r.metadataLocked(t)
	if index < 0 || (opts.Key == "") == (opts.Type == nil) {
		return newTypeError(ErrInvalidArgument, m.name, "", "argument")
	}
	if m.ctor != nil && index >= len(m.ctor.params) {
		return newTypeError(ErrInvalidArgument, m.name, "", "argument")
	}

	a, ok := m.args[index]
	if !ok {
		a = &ArgMetadata{index: index}
		m.args[index] = a
	}
	a.key, a.ref = opts.Key, opts.Type
	m.explicit = true
	return nil
}

// ResolveByAlias returns the type registered under alias.
func (r *Registry) ResolveByAlias(alias string) (*TypeMetadata, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if m, ok := r.aliases[alias]; ok {
		return m, nil
	}
	return nil, newTypeError(ErrUnresolvedType, "", "", alias)
}

// ResolveDiscriminant returns the type tagged with discriminant. Matching
// is exact and case-sensitive.
func (r *Registry) ResolveDiscriminant(discriminant string) (*TypeMetadata, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if m, ok := r.discriminants[discriminant]; ok {
		return m, nil
	}
	return nil, newTypeError(ErrUnresolvedDiscriminant, "", "", discriminant)
}

// Derive returns a private copy of t's metadata with opts applied. The
// copy is not indexed, so its alias and discriminant do not leak into
// the registry.
func (r *Registry) Derive(t reflect.Type, opts TypeOptions) (*TypeMetadata, error) {
	base := r.Metadata(t)

	r.mu.RLock()
	m := base.clone()
	r.mu.RUnlock()

	if err := m.merge(opts); err != nil {
		return nil, err
	}
	return m, nil
}

// Reset clears all metadata and restores the built-in defaults.
// This is primarily useful for test isolation.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.init()
}

var (
	defaultRegistry = NewRegistry()

	serializers   = make(map[reflect.Type]any)
	serializersMu sync.RWMutex
)

// Default returns the process-wide registry used by the package-level functions.
func Default() *Registry {
	return defaultRegistry
}

// Register configures T in the default registry.
func Register[T any](opts TypeOptions) (*TypeMetadata, error) {
	inspect[T]()
	return defaultRegistry.Register(reflect.TypeFor[T](), opts)
}

// Field configures one field of T in the default registry.
func Field[T any](name string, opts FieldOptions) (*FieldMetadata, error) {
	inspect[T]()
	return defaultRegistry.RegisterField(reflect.TypeFor[T](), name, opts)
}

// Argument binds constructor parameter index of T in the default registry.
func Argument[T any](index int, opts ArgOptions) error {
	inspect[T]()
	return defaultRegistry.RegisterArgument(reflect.TypeFor[T](), index, opts)
}

// SetDefaults updates the global defaults of the default registry.
func SetDefaults(opts GlobalOptions) error {
	return defaultRegistry.SetGlobalDefaults(opts)
}

// ResolveAlias looks up an alias in the default registry.
func ResolveAlias(alias string) (*TypeMetadata, error) {
	return defaultRegistry.ResolveByAlias(alias)
}

// Use returns a cached serializer for T bound to the default registry,
// building one on first use.
func Use[T any]() (*Serializer[T], error) {
	typ := reflect.TypeFor[T]()

	// Fast path: read-lock cache check
	serializersMu.RLock()
	if cached, ok := serializers[typ]; ok {
		serializersMu.RUnlock()
		return cached.(*Serializer[T]), nil
	}
	serializersMu.RUnlock()

	// Slow path: build and cache with write-lock
	serializersMu.Lock()
	defer serializersMu.Unlock()

	// Double-check pattern
	if cached, ok := serializers[typ]; ok {
		return cached.(*Serializer[T]), nil
	}

	inspect[T]()
	s, err := NewSerializer[T]()
	if err != nil {
		return nil, err
	}

	serializers[typ] = s
	return s, nil
}

// Reset clears the default registry and the serializer cache.
// This is primarily useful for test isolation.
func Reset() {
	serializersMu.Lock()
	defer serializersMu.Unlock()
	serializers = make(map[reflect.Type]any)
	defaultRegistry.Reset()
}
