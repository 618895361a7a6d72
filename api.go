// Package graft converts typed object graphs to and from plain data:
// trees of map[string]any, []any and scalars that any structured text
// format can carry.
//
// A registry holds per-type metadata describing how each field maps to
// a data-graph key, how polymorphic values are tagged, how shared and
// circular references are represented and how missing or null values
// are handled. The engine walks the object graph and the data graph in
// lock-step, applying that metadata.
//
// # Registration
//
// Every root type must be registered. Nested types get implicit
// metadata from their struct layout on first use; explicit
// configuration always wins over it.
//
//	type User struct {
//	    Name      string
//	    CreatedAt time.Time
//	}
//
//	graft.Register[User](graft.TypeOptions{
//	    NamingConvention: graft.SnakeUpperCase,
//	})
//	graft.Field[User]("Name", graft.FieldOptions{Alias: "name"})
//
//	node, _ := graft.Encode(ctx, user)
//	// map[string]any{"name": "alice", "CREATED_AT": "2024-01-02T03:04:05Z"}
//
// # Policies
//
// UseDefaultValue, UseImplicitConversion, PreserveNull and
// PreserveDiscriminator are tri-state Toggles. An Unset field policy
// inherits from the type declaring the field, which inherits from the
// registry globals.
//
// # References
//
// Objects reached twice in one call are handled by a ReferenceHandler:
//
//   - PathReferenceHandler - marker {"$ref": "$['a'][0]"} on revisit (default)
//   - DirectReferenceHandler - same node emitted again
//   - CircularReferenceHandler - root-anchored markers ("$") for back-references to the root
//   - LeadReferenceHandler - revisits dropped
//
// # Polymorphism
//
// Values declared with an interface type carry their concrete type's
// discriminant under the discriminator key (default "$type"). Decode
// resolves the discriminant through the registry.
//
// # Failures
//
// Field-level failures never abort a call. The affected position is
// left absent and the failure is emitted as a capitan signal. The only
// error returned by Encode and Decode is ErrUnknownType for an
// unregistered root.
//
// # Codec Providers
//
// Text codecs are available as subpackages:
//
//   - json - JSON encoding (application/json)
//   - yaml - YAML encoding (application/yaml)
//   - msgpack - MessagePack encoding (application/msgpack)
//   - bson - BSON encoding (application/bson)
package graft

import "context"

// Encode converts v to plain data using the default registry.
func Encode[T any](ctx context.Context, v T, opts ...Option) (any, error) {
	s, err := serializerFor[T](opts)
	if err != nil {
		return nil, err
	}
	return s.Encode(ctx, v)
}

// Decode converts plain data to a T using the default registry.
func Decode[T any](ctx context.Context, node any, opts ...Option) (T, error) {
	s, err := serializerFor[T](opts)
	if err != nil {
		var zero T
		return zero, err
	}
	return s.Decode(ctx, node)
}

// ToText encodes v and prints it with codec.
func ToText[T any](ctx context.Context, codec Codec, v T, opts ...Option) ([]byte, error) {
	s, err := serializerFor[T](opts)
	if err != nil {
		return nil, err
	}
	return s.Marshal(ctx, codec, v)
}

// FromText parses data with codec and decodes it into a T.
func FromText[T any](ctx context.Context, codec Codec, data []byte, opts ...Option) (T, error) {
	s, err := serializerFor[T](opts)
	if err != nil {
		var zero T
		return zero, err
	}
	return s.Unmarshal(ctx, codec, data)
}

// serializerFor returns the cached serializer when no options are given.
func serializerFor[T any](opts []Option) (*Serializer[T], error) {
	if len(opts) == 0 {
		return Use[T]()
	}
	return NewSerializer[T](opts...)
}
