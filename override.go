package graft

// Override interfaces allow types to bypass reflection-based traversal.
// When a type implements one of these interfaces, the engine calls the
// interface method instead of walking the type's fields.
//
// These interfaces suit generated code: a generator can implement them
// from the registered metadata and skip reflection on hot paths.

// GraphMarshaler produces the plain-data form of its receiver.
// The result must be built from maps, slices and scalars only.
type GraphMarshaler interface {
	MarshalGraph() (any, error)
}

// GraphUnmarshaler populates its receiver from a plain-data node.
// The receiver is a fresh instance created by the engine.
type GraphUnmarshaler interface {
	UnmarshalGraph(node any) error
}

// ExtraAcceptor receives data-graph keys that match no field.
// SetExtra is called once per unknown key, in key order, after all
// known fields are assigned.
type ExtraAcceptor interface {
	SetExtra(key string, value any)
}
