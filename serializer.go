package graft

import (
	"context"
	"reflect"
	"time"
)

// Serializer converts values of type T to and from plain data.
//
// Serializers are safe for concurrent use. Each call builds its own
// traversal state; metadata is read from the bound registry.
type Serializer[T any] struct {
	reg       *Registry
	typ       reflect.Type
	typeName  string
	refs      ReferenceHandler
	injector  TypeInjector
	overrides map[reflect.Type]*TypeMetadata
	onFailure func(*FieldError)
}

// Option configures a Serializer.
type Option func(*config)

type config struct {
	reg       *Registry
	refs      ReferenceHandler
	injector  TypeInjector
	overrides []override
	onFailure func(*FieldError)
}

type override struct {
	typ  reflect.Type
	opts TypeOptions
}

// WithRegistry binds the serializer to reg instead of the default registry.
func WithRegistry(reg *Registry) Option {
	return func(c *config) {
		c.reg = reg
	}
}

// WithReferenceHandler uses h for every type, ignoring bound handlers.
func WithReferenceHandler(h ReferenceHandler) Option {
	return func(c *config) {
		c.refs = h
	}
}

// WithInjector uses inj for every constructor argument bound by type.
func WithInjector(inj TypeInjector) Option {
	return func(c *config) {
		c.injector = inj
	}
}

// WithOverride applies opts to a private copy of the root type's
// metadata. The shared registry is left untouched.
func WithOverride(opts TypeOptions) Option {
	return func(c *config) {
		c.overrides = append(c.overrides, override{opts: opts})
	}
}

// WithTypeOverride applies opts to a private copy of t's metadata.
func WithTypeOverride(t reflect.Type, opts TypeOptions) Option {
	return func(c *config) {
		c.overrides = append(c.overrides, override{typ: t, opts: opts})
	}
}

// WithFailureHandler calls fn for every non-fatal failure, in addition
// to the emitted signal.
func WithFailureHandler(fn func(*FieldError)) Option {
	return func(c *config) {
		c.onFailure = fn
	}
}

// NewSerializer creates a serializer for T. The root type of T (T with
// pointers and containers stripped) must be registered.
func NewSerializer[T any](opts ...Option) (*Serializer[T], error) {
	c := &config{reg: defaultRegistry}
	for _, opt := range opts {
		opt(c)
	}

	typ := reflect.TypeFor[T]()
	s := &Serializer[T]{
		reg:       c.reg,
		typ:       typ,
		typeName:  typ.String(),
		refs:      c.refs,
		injector:  c.injector,
		onFailure: c.onFailure,
	}
	if err := s.checkRoot(); err != nil {
		return nil, err
	}

	for _, o := range c.overrides {
		t := o.typ
		if t == nil {
			t = rootType(typ)
		}
		m, err := c.reg.Derive(t, o.opts)
		if err != nil {
			return nil, err
		}
		if s.overrides == nil {
			s.overrides = make(map[reflect.Type]*TypeMetadata)
		}
		s.overrides[baseType(t)] = m
	}
	return s, nil
}

// checkRoot reports ErrUnknownType when the root type was never registered.
func (s *Serializer[T]) checkRoot() error {
	root := rootType(s.typ)
	if m, ok := s.reg.Lookup(root); ok && m.Registered() {
		return nil
	}
	return newTypeError(ErrUnknownType, root.String(), "", "")
}

func (s *Serializer[T]) newState(ctx context.Context) *state {
	return &state{
		ctx:       ctx,
		reg:       s.reg,
		refs:      s.refs,
		injector:  s.injector,
		overrides: s.overrides,
		onFailure: s.onFailure,
	}
}

// Encode converts v to plain data. Field-level failures leave the
// affected positions absent and are reported through signals; the only
// error returned is an unregistered root type.
func (s *Serializer[T]) Encode(ctx context.Context, v T) (any, error) {
	start := time.Now()
	emitEncodeStart(ctx, s.typeName)

	st := s.newState(ctx)
	var retErr error
	defer func() {
		emitEncodeComplete(ctx, s.typeName, time.Since(start), st.failures, retErr)
	}()

	if retErr = s.checkRoot(); retErr != nil {
		return nil, retErr
	}

	rv := reflect.ValueOf(&v).Elem()
	node, ok := newEncoder(st).encodeSlot(rv, typeDesc{typ: s.typ}, slot{})
	if !ok {
		return nil, nil
	}
	return node, nil
}

// Decode converts plain data to a T. Failure semantics match Encode.
func (s *Serializer[T]) Decode(ctx context.Context, node any) (T, error) {
	start := time.Now()
	emitDecodeStart(ctx, s.typeName)

	st := s.newState(ctx)
	var result T
	var retErr error
	defer func() {
		emitDecodeComplete(ctx, s.typeName, time.Since(start), st.failures, retErr)
	}()

	if retErr = s.checkRoot(); retErr != nil {
		return result, retErr
	}

	dc := newDecoder(st)
	if d, ok := dc.decodeSlot(node, true, typeDesc{typ: s.typ}, slot{}); ok {
		dc.place(reflect.ValueOf(&result).Elem(), d)
	}
	dc.finish()
	return result, nil
}

// Marshal encodes v and prints the plain data with codec.
func (s *Serializer[T]) Marshal(ctx context.Context, codec Codec, v T) ([]byte, error) {
	node, err := s.Encode(ctx, v)
	if err != nil {
		return nil, err
	}
	data, err := codec.Marshal(node)
	if err != nil {
		return nil, newCodecError(ErrMarshal, err)
	}
	emitMarshaled(ctx, codec.ContentType(), s.typeName, len(data))
	return data, nil
}

// Unmarshal parses data with codec and decodes the plain data.
func (s *Serializer[T]) Unmarshal(ctx context.Context, codec Codec, data []byte) (T, error) {
	var node any
	if err := codec.Unmarshal(data, &node); err != nil {
		var zero T
		return zero, newCodecError(ErrUnmarshal, err)
	}
	emitUnmarshaled(ctx, codec.ContentType(), s.typeName, len(data))
	return s.Decode(ctx, node)
}
