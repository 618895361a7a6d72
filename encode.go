package graft

import (
	"cmp"
	"encoding"
	"fmt"
	"reflect"
	"slices"
	"strconv"
)

// visit is the reference-map entry of an object met during encode.
type visit struct {
	path    string
	node    any
	pending bool
}

// encoder walks an object graph and produces plain data.
type encoder struct {
	*state
	seen map[identity]*visit
}

func newEncoder(s *state) *encoder {
	return &encoder{state: s, seen: make(map[identity]*visit)}
}

var graphMarshalerType = reflect.TypeFor[GraphMarshaler]()

// encodeSlot encodes v declared as d. ok is false when the position is
// absent.
func (e *encoder) encodeSlot(v reflect.Value, d typeDesc, sl slot) (any, bool) {
	if isNil(v) {
		if e.flagsAt(sl, d.typ).preserveNull {
			return nil, true
		}
		return e.encodeDefault(d, sl)
	}
	return e.encodeValue(v, d, sl)
}

// encodeDefault encodes the default for an absent value, if enabled.
func (e *encoder) encodeDefault(d typeDesc, sl slot) (any, bool) {
	if !e.flagsAt(sl, d.typ).useDefault {
		return nil, false
	}
	def, ok := e.defaultAt(sl, d.typ)
	if !ok {
		return nil, false
	}
	v := reflect.ValueOf(def)
	if isNil(v) {
		return nil, false
	}
	return e.encodeValue(v, d, sl)
}

func (e *encoder) encodeValue(v reflect.Value, d typeDesc, sl slot) (any, bool) {
	if v.Kind() == reflect.Interface {
		v = v.Elem()
	}

	if m, ok := graphMarshaler(v); ok {
		node, err := m.MarshalGraph()
		if err != nil {
			e.fail(ErrConversion, v.Type(), err)
			return nil, false
		}
		return node, true
	}

	if codec := e.codecFor(v.Type(), sl); codec != nil {
		node, err := codec.Encode(v, e.flagsAt(sl, v.Type()).implicit)
		if err != nil {
			e.fail(ErrConversion, v.Type(), err)
			return nil, false
		}
		return node, true
	}

	switch v.Kind() {
	case reflect.Pointer:
		elem := v.Elem()
		if elem.Kind() == reflect.Struct && e.codecFor(elem.Type(), sl) == nil {
			return e.encodeReferenced(v, d, sl)
		}
		inner := d
		if d.typ != nil && d.typ.Kind() == reflect.Pointer {
			inner = typeDesc{typ: d.typ.Elem(), args: d.args}
		}
		return e.encodeSlot(elem, inner, sl)
	case reflect.Struct:
		return e.encodeObject(v, d, sl, nil)
	case reflect.Map:
		return e.encodeMap(v, d, sl)
	case reflect.Slice, reflect.Array:
		return e.encodeList(v, d, sl)
	}

	e.fail(ErrConversion, v.Type(), fmt.Errorf("kind %s has no plain-data form", v.Kind()))
	return nil, false
}

// encodeReferenced encodes a struct pointer, consulting the reference
// handler when the pointer was met before in this call.
func (e *encoder) encodeReferenced(v reflect.Value, d typeDesc, sl slot) (any, bool) {
	key, _ := identityOf(v)
	if seen, ok := e.seen[key]; ok {
		return e.references(v.Type()).Revisit(Reference{
			Path:    seen.path,
			Node:    seen.node,
			Pending: seen.pending,
		})
	}
	return e.encodeObject(v.Elem(), d, sl, &key)
}

// track records the node created for key before its contents are
// encoded, so revisits from inside the node see it as pending.
func (e *encoder) track(key identity, node any) func() {
	entry := &visit{path: e.currentPath(), node: node, pending: true}
	e.seen[key] = entry
	return func() { entry.pending = false }
}

func (e *encoder) encodeObject(v reflect.Value, d typeDesc, sl slot, key *identity) (any, bool) {
	m := e.metadata(v.Type())
	out := make(map[string]any, len(m.fields)+1)
	if key != nil {
		defer e.track(*key, out)()
	}

	if e.writesDiscriminator(m, d, sl) {
		out[e.discriminatorKey(declaredType(d), m)] = m.discriminant
	}

	for _, f := range m.Fields() {
		if !f.Serializable() {
			continue
		}
		k := f.Key(m)
		e.pushKey(k)
		node, ok := e.encodeField(v.FieldByIndex(f.index), f, m)
		e.pop()
		if ok {
			out[k] = node
		}
	}
	return out, true
}

func (e *encoder) encodeField(fv reflect.Value, f *FieldMetadata, owner *TypeMetadata) (any, bool) {
	d, err := fieldDesc(e.reg, f)
	if err != nil {
		e.fail(ErrUnresolvedType, f.goType, err)
		d = typeDesc{typ: f.goType}
	}

	if f.get != nil {
		out, err := f.get(valueInterface(fv))
		if err != nil {
			e.fail(ErrInterceptor, f.goType, err)
			return nil, false
		}
		fv = reflect.ValueOf(out)
	}

	return e.encodeSlot(fv, d, slot{field: f, owner: owner, codec: f.codec})
}

// writesDiscriminator reports whether an object of type m declared as d
// carries its discriminant. Abstract declarations always do; otherwise
// the preserve-discriminator policy decides.
func (e *encoder) writesDiscriminator(m *TypeMetadata, d typeDesc, sl slot) bool {
	declared := declaredType(d)
	if declared != nil && (declared.Kind() == reflect.Interface || declared != m.typ) {
		return true
	}
	if sl.field != nil {
		return sl.field.preserveDiscriminator(m)
	}
	return m.PreserveDiscriminator()
}

func (e *encoder) encodeMap(v reflect.Value, d typeDesc, sl slot) (any, bool) {
	key, tracked := identityOf(v)
	if tracked {
		if seen, ok := e.seen[key]; ok {
			return e.references(v.Type()).Revisit(Reference{Path: seen.path, Node: seen.node, Pending: seen.pending})
		}
	}

	out := make(map[string]any, v.Len())
	if tracked {
		defer e.track(key, out)()
	}

	vd := typeDesc{typ: v.Type().Elem()}
	if d.typ != nil && d.typ.Kind() == reflect.Map && len(d.args) > 0 {
		if _, resolved, err := mapDesc(e.reg, d); err == nil {
			vd = resolved
		} else {
			e.fail(ErrUnresolvedType, d.typ, err)
		}
	}

	type entry struct {
		key string
		val reflect.Value
	}
	entries := make([]entry, 0, v.Len())
	iter := v.MapRange()
	for iter.Next() {
		k, err := mapKeyString(iter.Key())
		if err != nil {
			e.fail(ErrConversion, v.Type().Key(), err)
			continue
		}
		entries = append(entries, entry{key: k, val: iter.Value()})
	}
	slices.SortFunc(entries, func(a, b entry) int {
		return cmp.Compare(a.key, b.key)
	})

	for _, en := range entries {
		e.pushKey(en.key)
		node, ok := e.encodeSlot(en.val, vd, sl.within())
		e.pop()
		if ok {
			out[en.key] = node
		}
	}
	return out, true
}

func (e *encoder) encodeList(v reflect.Value, d typeDesc, sl slot) (any, bool) {
	key, tracked := identityOf(v)
	if tracked {
		if seen, ok := e.seen[key]; ok {
			return e.references(v.Type()).Revisit(Reference{Path: seen.path, Node: seen.node, Pending: seen.pending})
		}
	}

	out := make([]any, v.Len())
	if tracked {
		defer e.track(key, out)()
	}

	ed := typeDesc{typ: v.Type().Elem()}
	if d.typ != nil && (d.typ.Kind() == reflect.Slice || d.typ.Kind() == reflect.Array) && len(d.args) > 0 {
		if resolved, err := elemDesc(e.reg, d); err == nil {
			ed = resolved
		} else {
			e.fail(ErrUnresolvedType, d.typ, err)
		}
	}

	for i := range out {
		e.pushIndex(i)
		if node, ok := e.encodeSlot(v.Index(i), ed, sl.within()); ok {
			out[i] = node
		}
		e.pop()
	}
	return out, true
}

// graphMarshaler returns v as a GraphMarshaler when its type or its
// pointer type implements the interface.
func graphMarshaler(v reflect.Value) (GraphMarshaler, bool) {
	if v.Type().Implements(graphMarshalerType) {
		if v.Kind() == reflect.Pointer && v.IsNil() {
			return nil, false
		}
		return v.Interface().(GraphMarshaler), true
	}
	if v.Kind() != reflect.Pointer && reflect.PointerTo(v.Type()).Implements(graphMarshalerType) {
		p := reflect.New(v.Type())
		p.Elem().Set(v)
		return p.Interface().(GraphMarshaler), true
	}
	return nil, false
}

// mapKeyString renders a map key as a data-graph key.
func mapKeyString(k reflect.Value) (string, error) {
	if k.Kind() == reflect.String {
		return k.String(), nil
	}
	if tm, ok := k.Interface().(encoding.TextMarshaler); ok {
		text, err := tm.MarshalText()
		return string(text), err
	}
	switch k.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(k.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(k.Uint(), 10), nil
	case reflect.Bool:
		return strconv.FormatBool(k.Bool()), nil
	}
	return "", fmt.Errorf("map key kind %s has no text form", k.Kind())
}

// declaredType returns the declared type of d with pointers stripped.
func declaredType(d typeDesc) reflect.Type {
	if d.typ == nil {
		return nil
	}
	return baseType(d.typ)
}

// isNil reports whether v is null on the object side.
func isNil(v reflect.Value) bool {
	if !v.IsValid() {
		return true
	}
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
		return v.IsNil()
	}
	return false
}

// valueInterface returns v as an interface, nil for invalid values.
func valueInterface(v reflect.Value) any {
	if !v.IsValid() {
		return nil
	}
	return v.Interface()
}
