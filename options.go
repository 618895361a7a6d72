package graft

import "reflect"

// Toggle is a tri-state policy flag. Unset inherits from the enclosing
// scope: field from type, type from registry globals.
type Toggle int8

const (
	Unset Toggle = iota
	Enabled
	Disabled
)

// ToggleOf converts a bool into an explicit Toggle.
func ToggleOf(b bool) Toggle {
	if b {
		return Enabled
	}
	return Disabled
}

// resolve returns the flag value, or fallback when unset.
func (t Toggle) resolve(fallback bool) bool {
	switch t {
	case Enabled:
		return true
	case Disabled:
		return false
	}
	return fallback
}

// FieldOrder controls the order in which fields are traversed. Traversal
// order decides which occurrence of a shared object is emitted in full.
type FieldOrder int8

const (
	OrderUnset FieldOrder = iota
	OrderDeclaration
	OrderAscending
	OrderDescending
)

// DefaultDiscriminatorKey is the data-graph key carrying discriminants.
const DefaultDiscriminatorKey = "$type"

// Policy holds the inheritable policy axes. Zero values mean "inherit".
type Policy struct {
	UseDefaultValue       Toggle
	UseImplicitConversion Toggle
	PreserveNull          Toggle
	PreserveDiscriminator Toggle

	// DiscriminatorKey and Order apply to types and globals only.
	DiscriminatorKey string
	Order            FieldOrder
}

// Interceptor transforms a value right after it is read from a field
// (get) or right before it is written to one (set).
type Interceptor func(v any) (any, error)

// TypeOptions configures one type. Zero-valued attributes leave the
// current configuration untouched.
type TypeOptions struct {
	Policy

	// Alias is a unique lookup name for the type.
	Alias string

	// Discriminant tags the type in polymorphic data. Defaults to the type name.
	Discriminant string

	// Injectable marks the type as resolvable through a TypeInjector.
	Injectable Toggle

	// DefaultValue is used when a value of this type is absent.
	DefaultValue any

	// DefaultFunc is invoked once per absent occurrence. It takes
	// precedence over DefaultValue.
	DefaultFunc func() any

	// Constructor is a func returning T, *T, or (T|*T, error). Its
	// parameters are bound with RegisterArgument.
	Constructor any

	NamingConvention NamingConvention
	ReferenceHandler ReferenceHandler
	Factory          TypeFactory
	Injector         TypeInjector

	// Codec turns the type into a leaf handled entirely by the codec.
	Codec ValueCodec

	Custom []CustomValue
}

// FieldOptions configures one field. Zero-valued attributes leave the
// current configuration untouched.
type FieldOptions struct {
	Policy

	// Alias overrides the data-graph key; naming conventions are skipped.
	Alias string

	// Type overrides the value type derived from the Go field type.
	Type *TypeRef

	// Args describe the contents of container values: element type for
	// slices, key and value types for maps.
	Args []*TypeRef

	// Serializable and Deserializable are set independently. When
	// neither is set the field is traversed in both directions.
	Serializable   Toggle
	Deserializable Toggle

	DefaultValue any
	DefaultFunc  func() any

	Get Interceptor
	Set Interceptor

	// Codec overrides the scalar codec for the field's leaf values.
	Codec ValueCodec

	Custom []CustomValue
}

// ArgOptions binds one constructor parameter. Exactly one of Key or Type
// must be set.
type ArgOptions struct {
	// Key looks the value up in the construction context: a field name or
	// a raw data-graph key.
	Key string

	// Type resolves the value through the TypeInjector.
	Type *TypeRef
}

// GlobalOptions configures the defaults inherited by every type.
type GlobalOptions struct {
	Policy

	NamingConvention NamingConvention
	ReferenceHandler ReferenceHandler
	Factory          TypeFactory
	Injector         TypeInjector
}

// constructorSpec is a validated Constructor.
type constructorSpec struct {
	fn       reflect.Value
	params   []reflect.Type
	hasError bool
}

var errorType = reflect.TypeFor[error]()

func newConstructorSpec(target reflect.Type, fn any) (*constructorSpec, bool) {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func || v.IsNil() {
		return nil, false
	}
	ft := v.Type()
	if ft.IsVariadic() || ft.NumOut() < 1 || ft.NumOut() > 2 {
		return nil, false
	}
	out := ft.Out(0)
	if out != target && out != reflect.PointerTo(target) {
		return nil, false
	}
	if ft.NumOut() == 2 && ft.Out(1) != errorType {
		return nil, false
	}

	params := make([]reflect.Type, ft.NumIn())
	for i := range params {
		params[i] = ft.In(i)
	}
	return &constructorSpec{fn: v, params: params, hasError: ft.NumOut() == 2}, true
}
