package graft

// CustomKey identifies one entry of a CustomContext. Keys are compared by
// identity, so two keys with the same name never collide.
type CustomKey[T any] struct {
	name     string
	fallback func() T
}

// NewCustomKey creates a key. The optional fallback supplies the value
// returned for contexts where the key was never set.
func NewCustomKey[T any](name string, fallback ...func() T) *CustomKey[T] {
	k := &CustomKey[T]{name: name}
	if len(fallback) > 0 {
		k.fallback = fallback[0]
	}
	return k
}

// Name returns the key name.
func (k *CustomKey[T]) Name() string {
	return k.name
}

// Value pairs the key with v for use in TypeOptions.Custom or FieldOptions.Custom.
func (k *CustomKey[T]) Value(v T) CustomValue {
	return CustomValue{key: k, value: v}
}

// Get returns the value stored under k, falling back to the key's
// fallback resolver. ok is false only when neither exists.
func (k *CustomKey[T]) Get(c *CustomContext) (T, bool) {
	if c != nil {
		if v, ok := c.lookup(k); ok {
			if typed, ok := v.(T); ok {
				return typed, true
			}
		}
	}
	if k.fallback != nil {
		return k.fallback(), true
	}
	var zero T
	return zero, false
}

// Set stores v under k in c.
func (k *CustomKey[T]) Set(c *CustomContext, v T) {
	c.set(k, v)
}

// CustomValue is a key/value pair destined for a CustomContext.
type CustomValue struct {
	key   any
	value any
}

type customEntry struct {
	key   any
	value any
}

// CustomContext is an ordered side-table attached to type and field
// metadata. Setting an existing key replaces its value in place.
type CustomContext struct {
	entries []customEntry
	index   map[any]int
}

func (c *CustomContext) lookup(key any) (any, bool) {
	i, ok := c.index[key]
	if !ok {
		return nil, false
	}
	return c.entries[i].value, true
}

func (c *CustomContext) set(key, value any) {
	if c.index == nil {
		c.index = make(map[any]int)
	}
	if i, ok := c.index[key]; ok {
		c.entries[i].value = value
		return
	}
	c.index[key] = len(c.entries)
	c.entries = append(c.entries, customEntry{key: key, value: value})
}

// apply merges values into c in order.
func (c *CustomContext) apply(values []CustomValue) {
	for _, v := range values {
		c.set(v.key, v.value)
	}
}

// Len returns the number of entries.
func (c *CustomContext) Len() int {
	return len(c.entries)
}

// clone returns an independent copy of c.
func (c *CustomContext) clone() *CustomContext {
	out := &CustomContext{
		entries: make([]customEntry, len(c.entries)),
		index:   make(map[any]int, len(c.index)),
	}
	copy(out.entries, c.entries)
	for k, v := range c.index {
		out.index[k] = v
	}
	return out
}
