package graft

import (
	"encoding"
	"fmt"
	"reflect"
	"strconv"
)

// pathKey keys objects decoded at a path; identity keys them by data node.
type pathKey string

// patch fills a position once the object behind key is decoded. set
// receives the final location of the value the patch belongs to.
type patch struct {
	key any
	set func(dst, v reflect.Value)
}

// decoded is a decoded value plus the patches still pending inside it.
// A zero value with patches is a position that is itself a pending
// reference.
type decoded struct {
	value   reflect.Value
	patches []patch
}

// decoder walks a data graph and produces an object graph.
type decoder struct {
	*state
	resolved map[any]reflect.Value
	started  map[identity]bool
	waiting  map[any][]func(reflect.Value)
}

func newDecoder(s *state) *decoder {
	return &decoder{
		state:    s,
		resolved: make(map[any]reflect.Value),
		started:  make(map[identity]bool),
		waiting:  make(map[any][]func(reflect.Value)),
	}
}

var graphUnmarshalerType = reflect.TypeFor[GraphUnmarshaler]()

// settle records v under key and runs the callbacks waiting for it.
func (dc *decoder) settle(key any, v reflect.Value) {
	dc.resolved[key] = v
	waiting := dc.waiting[key]
	delete(dc.waiting, key)
	for _, fn := range waiting {
		fn(v)
	}
}

// await runs fn with the value under key, now or once it is settled.
func (dc *decoder) await(key any, fn func(reflect.Value)) {
	if v, ok := dc.resolved[key]; ok {
		fn(v)
		return
	}
	dc.waiting[key] = append(dc.waiting[key], fn)
}

// reference returns the object under key, or a pending reference to it.
func (dc *decoder) reference(key any) decoded {
	if v, ok := dc.resolved[key]; ok {
		return decoded{value: v}
	}
	return decoded{patches: []patch{{key: key, set: func(dst, v reflect.Value) { dc.assign(dst, v) }}}}
}

// place assigns d to the stable location dst and schedules its patches.
func (dc *decoder) place(dst reflect.Value, d decoded) {
	if d.value.IsValid() {
		dc.assign(dst, d.value)
	}
	for _, p := range d.patches {
		dc.await(p.key, func(v reflect.Value) { p.set(dst, v) })
	}
}

// finish reports every reference that never resolved.
func (dc *decoder) finish() {
	for key := range dc.waiting {
		path := "$"
		if pk, ok := key.(pathKey); ok {
			path = string(pk)
		}
		dc.failAt(path, ErrUnresolvedReference, nil, fmt.Errorf("no object decoded at %s", path))
	}
	clear(dc.waiting)
}

// assign stores v into dst, adapting between T and *T.
func (dc *decoder) assign(dst, v reflect.Value) bool {
	if !v.IsValid() {
		dst.Set(reflect.Zero(dst.Type()))
		return true
	}
	vt, dt := v.Type(), dst.Type()
	switch {
	case vt.AssignableTo(dt):
		dst.Set(v)
	case vt.Kind() == reflect.Pointer && vt.Elem().AssignableTo(dt):
		if v.IsNil() {
			dst.Set(reflect.Zero(dt))
		} else {
			dst.Set(v.Elem())
		}
	case dt.Kind() == reflect.Pointer && vt.AssignableTo(dt.Elem()):
		p := reflect.New(dt.Elem())
		p.Elem().Set(v)
		dst.Set(p)
	case vt.Kind() == dt.Kind() && vt.ConvertibleTo(dt):
		dst.Set(v.Convert(dt))
	default:
		dc.fail(ErrConversion, dt, fmt.Errorf("cannot assign %s to %s", vt, dt))
		return false
	}
	return true
}

// assignField applies the set interceptor of f, then assigns.
func (dc *decoder) assignField(dst reflect.Value, f *FieldMetadata, v reflect.Value) {
	if f.set != nil {
		out, err := f.set(valueInterface(v))
		if err != nil {
			dc.fail(ErrInterceptor, f.goType, err)
			return
		}
		v = reflect.ValueOf(out)
	}
	dc.assign(dst, v)
}

// decodeSlot decodes node declared as d. present is false when the
// data graph has no entry for the position.
func (dc *decoder) decodeSlot(node any, present bool, d typeDesc, sl slot) (decoded, bool) {
	if !present {
		return dc.decodeDefault(d, sl)
	}
	if node == nil {
		if dc.flagsAt(sl, d.typ).preserveNull {
			return decoded{value: reflect.Zero(d.typ)}, true
		}
		return dc.decodeDefault(d, sl)
	}
	return dc.decodeValue(node, d, sl)
}

// decodeDefault returns the default for an absent value, if enabled.
func (dc *decoder) decodeDefault(d typeDesc, sl slot) (decoded, bool) {
	if !dc.flagsAt(sl, d.typ).useDefault {
		return decoded{}, false
	}
	def, ok := dc.defaultAt(sl, d.typ)
	if !ok {
		return decoded{}, false
	}
	v := reflect.ValueOf(def)
	if !v.IsValid() {
		return decoded{}, false
	}
	return decoded{value: v}, true
}

func (dc *decoder) decodeValue(node any, d typeDesc, sl slot) (decoded, bool) {
	t := d.typ

	switch res, path := dc.references(t).Resolve(node); res {
	case ResolvePath:
		return dc.reference(pathKey(path)), true
	case ResolveAbsent:
		return decoded{}, false
	}
	if dc.references(t).SharesNodes() {
		if key, ok := nodeIdentity(node); ok {
			if v, ok := dc.resolved[key]; ok {
				return decoded{value: v}, true
			}
			if dc.started[key] {
				return dc.reference(key), true
			}
		}
	}

	switch t.Kind() {
	case reflect.Interface:
		return dc.decodeAbstract(node, d, sl)
	case reflect.Pointer:
		elem := t.Elem()
		if elem.Kind() == reflect.Struct && (dc.codecFor(elem, sl) == nil || isGraphUnmarshaler(elem)) {
			return dc.decodeObject(node, elem, sl, false)
		}
		inner, ok := dc.decodeValue(node, typeDesc{typ: elem, args: d.args}, sl)
		if !ok {
			return decoded{}, false
		}
		p := reflect.New(elem)
		dc.place(p.Elem(), inner)
		return decoded{value: p}, true
	}

	if isGraphUnmarshaler(t) {
		if t.Kind() == reflect.Struct {
			return dc.decodeObject(node, t, sl, true)
		}
		inst, ok := dc.unmarshalGraph(node, t)
		if !ok {
			return decoded{}, false
		}
		return decoded{value: inst.Elem()}, true
	}

	if codec := dc.codecFor(t, sl); codec != nil {
		v, err := codec.Decode(node, t, dc.flagsAt(sl, t).implicit)
		if err != nil {
			dc.fail(ErrConversion, t, err)
			return decoded{}, false
		}
		return decoded{value: v}, true
	}

	switch t.Kind() {
	case reflect.Struct:
		return dc.decodeObject(node, t, sl, true)
	case reflect.Map:
		return dc.decodeMap(node, d, sl)
	case reflect.Slice, reflect.Array:
		return dc.decodeList(node, d, sl)
	}

	dc.fail(ErrMalformedNode, t, fmt.Errorf("kind %s has no plain-data form", t.Kind()))
	return decoded{}, false
}

// decodeAbstract decodes a node declared with an interface type. The
// discriminator selects the concrete type; without one the node is
// copied through when the interface can hold it.
func (dc *decoder) decodeAbstract(node any, d typeDesc, sl slot) (decoded, bool) {
	t := d.typ
	entries, isObject := objectEntries(node)
	if isObject {
		if disc, ok := entries[dc.discriminatorKey(t, nil)].(string); ok {
			m, err := dc.reg.ResolveDiscriminant(disc)
			if err != nil {
				dc.fail(ErrUnresolvedDiscriminant, t, err)
				return decoded{}, false
			}
			var concrete reflect.Type
			switch {
			case m.typ.Implements(t):
				concrete = m.typ
			case m.typ.Kind() == reflect.Struct && reflect.PointerTo(m.typ).Implements(t):
				concrete = reflect.PointerTo(m.typ)
			default:
				dc.fail(ErrConversion, t, fmt.Errorf("discriminant %q names %s", disc, m.typ))
				return decoded{}, false
			}
			return dc.decodeValue(node, typeDesc{typ: concrete}, sl)
		}
	}

	nt := reflect.TypeOf(node)
	if !nt.AssignableTo(t) {
		dc.fail(ErrMalformedNode, t, fmt.Errorf("%s does not implement %s", nt, t))
		return decoded{}, false
	}
	if _, isArray := arrayItems(node); isObject || isArray {
		dc.opaque(t)
	}
	return decoded{value: reflect.ValueOf(node)}, true
}

// decodeObject decodes an object node into a new instance of struct
// type t and registers it under its path. byValue instances have no
// node identity; references to them resolve to copies, and their
// pending patches are returned to the caller.
func (dc *decoder) decodeObject(node any, t reflect.Type, sl slot, byValue bool) (decoded, bool) {
	if isGraphUnmarshaler(t) {
		inst, ok := dc.unmarshalGraph(node, t)
		if !ok {
			return decoded{}, false
		}
		dc.settle(pathKey(dc.currentPath()), inst)
		return dc.result(inst, byValue, nil), true
	}

	entries, ok := objectEntries(node)
	if !ok {
		dc.fail(ErrMalformedNode, t, fmt.Errorf("expected object, got %T", node))
		return decoded{}, false
	}

	m := dc.metadata(t)
	discKey := dc.discriminatorKey(t, m)
	if disc, ok := entries[discKey].(string); ok {
		dm, err := dc.reg.ResolveDiscriminant(disc)
		if err != nil {
			dc.fail(ErrUnresolvedDiscriminant, t, err)
			return decoded{}, false
		}
		if dm.typ != m.typ {
			dc.fail(ErrConversion, t, fmt.Errorf("discriminant %q names %s", disc, dm.typ))
			return decoded{}, false
		}
	}

	nodeKey, tracked := identity{}, false
	if !byValue && dc.references(t).SharesNodes() {
		nodeKey, tracked = nodeIdentity(node)
	}
	if tracked {
		dc.started[nodeKey] = true
	}
	path := pathKey(dc.currentPath())
	register := func(inst reflect.Value) {
		dc.settle(path, inst)
		if tracked {
			dc.settle(nodeKey, inst)
		}
	}

	type fieldValue struct {
		f *FieldMetadata
		d decoded
	}
	var values []fieldValue

	c := newConstruction(entries, func(err error) { dc.fail(classify(err), t, err) })
	known := map[string]bool{discKey: true}
	for _, f := range m.Fields() {
		k := f.Key(m)
		known[k] = true
		if !f.Deserializable() {
			continue
		}
		c.keys[k] = f.name

		raw, present := entries[k]
		dc.pushKey(k)
		fd, ok := dc.decodeField(raw, present, f, m)
		dc.pop()
		if !ok {
			continue
		}
		values = append(values, fieldValue{f: f, d: fd})
		if fd.value.IsValid() && len(fd.patches) == 0 {
			c.values[f.name] = fd.value
		}
	}
	for _, k := range sortedKeys(entries) {
		if !known[k] {
			c.extras[k] = entries[k]
		}
	}

	inst, err := m.Factory().Build(m, c, dc.injectorFor(m))
	if err != nil {
		dc.fail(ErrConstruction, t, err)
		return decoded{}, false
	}
	register(inst)

	target := inst.Elem()
	var patches []patch
	for _, fv := range values {
		if c.Consumed(fv.f.name) {
			continue
		}
		f := fv.f
		if fv.d.value.IsValid() {
			dc.pushKey(f.Key(m))
			dc.assignField(target.FieldByIndex(f.index), f, fv.d.value)
			dc.pop()
		}
		for _, p := range fv.d.patches {
			set := p.set
			if !fv.d.value.IsValid() {
				set = func(dst, v reflect.Value) { dc.assignField(dst, f, v) }
			}
			if byValue {
				patches = append(patches, patch{key: p.key, set: func(dst, v reflect.Value) {
					set(dst.FieldByIndex(f.index), v)
				}})
				continue
			}
			dst := target.FieldByIndex(f.index)
			dc.await(p.key, func(v reflect.Value) { set(dst, v) })
		}
	}

	if acceptor, ok := inst.Interface().(ExtraAcceptor); ok {
		for _, k := range sortedKeys(c.extras) {
			acceptor.SetExtra(k, c.extras[k])
		}
	}

	return dc.result(inst, byValue, patches), true
}

func isGraphUnmarshaler(t reflect.Type) bool {
	return t.Kind() != reflect.Pointer && t.Kind() != reflect.Interface &&
		reflect.PointerTo(t).Implements(graphUnmarshalerType)
}

// unmarshalGraph hands node to the GraphUnmarshaler of a new *t.
func (dc *decoder) unmarshalGraph(node any, t reflect.Type) (reflect.Value, bool) {
	inst := reflect.New(t)
	if err := inst.Interface().(GraphUnmarshaler).UnmarshalGraph(node); err != nil {
		dc.fail(ErrConversion, t, err)
		return reflect.Value{}, false
	}
	return inst, true
}

func (dc *decoder) result(inst reflect.Value, byValue bool, patches []patch) decoded {
	if byValue {
		return decoded{value: inst.Elem(), patches: patches}
	}
	return decoded{value: inst}
}

func (dc *decoder) decodeField(raw any, present bool, f *FieldMetadata, owner *TypeMetadata) (decoded, bool) {
	d, err := fieldDesc(dc.reg, f)
	if err != nil {
		dc.fail(ErrUnresolvedType, f.goType, err)
		d = typeDesc{typ: f.goType}
	}
	return dc.decodeSlot(raw, present, d, slot{field: f, owner: owner, codec: f.codec})
}

func (dc *decoder) injectorFor(m *TypeMetadata) TypeInjector {
	if dc.injector != nil {
		return dc.injector
	}
	return m.Injector()
}

func (dc *decoder) decodeMap(node any, d typeDesc, sl slot) (decoded, bool) {
	t := d.typ
	entries, ok := objectEntries(node)
	if !ok {
		dc.fail(ErrMalformedNode, t, fmt.Errorf("expected object, got %T", node))
		return decoded{}, false
	}

	kd, vd, err := mapDesc(dc.reg, d)
	if err != nil {
		dc.fail(ErrUnresolvedType, t, err)
		kd, vd = typeDesc{typ: t.Key()}, typeDesc{typ: t.Elem()}
	}

	out := reflect.MakeMapWithSize(t, len(entries))
	dc.settleContainer(node, t, out)

	for _, k := range sortedKeys(entries) {
		mk, err := parseMapKey(k, kd.typ)
		if err != nil {
			dc.pushKey(k)
			dc.fail(ErrConversion, kd.typ, err)
			dc.pop()
			continue
		}
		if !mk.Type().AssignableTo(t.Key()) {
			if !mk.Type().ConvertibleTo(t.Key()) {
				dc.pushKey(k)
				dc.fail(ErrConversion, t.Key(), fmt.Errorf("cannot use %s as %s", mk.Type(), t.Key()))
				dc.pop()
				continue
			}
			mk = mk.Convert(t.Key())
		}

		dc.pushKey(k)
		ed, ok := dc.decodeSlot(entries[k], true, vd, sl.within())
		if ok && ed.value.IsValid() {
			elem := reflect.New(t.Elem()).Elem()
			if dc.assign(elem, ed.value) {
				out.SetMapIndex(mk, elem)
			}
		}
		dc.pop()
		if !ok {
			continue
		}

		for _, p := range ed.patches {
			dc.await(p.key, func(v reflect.Value) {
				elem := reflect.New(t.Elem()).Elem()
				if cur := out.MapIndex(mk); cur.IsValid() {
					elem.Set(cur)
				}
				p.set(elem, v)
				out.SetMapIndex(mk, elem)
			})
		}
	}
	return decoded{value: out}, true
}

func (dc *decoder) decodeList(node any, d typeDesc, sl slot) (decoded, bool) {
	t := d.typ
	items, ok := arrayItems(node)
	if !ok {
		dc.fail(ErrMalformedNode, t, fmt.Errorf("expected array, got %T", node))
		return decoded{}, false
	}

	ed, err := elemDesc(dc.reg, d)
	if err != nil {
		dc.fail(ErrUnresolvedType, t, err)
		ed = typeDesc{typ: t.Elem()}
	}

	var out reflect.Value
	if t.Kind() == reflect.Slice {
		out = reflect.MakeSlice(t, len(items), len(items))
		dc.settleContainer(node, t, out)
	} else {
		out = reflect.New(t).Elem()
		if len(items) > t.Len() {
			dc.fail(ErrMalformedNode, t, fmt.Errorf("%d items exceed length %d", len(items), t.Len()))
			items = items[:t.Len()]
		}
	}

	var patches []patch
	for i, item := range items {
		dc.pushIndex(i)
		el, ok := dc.decodeSlot(item, true, ed, sl.within())
		dc.pop()
		if !ok {
			continue
		}
		if t.Kind() == reflect.Slice {
			dc.place(out.Index(i), el)
			continue
		}
		if el.value.IsValid() {
			dc.assign(out.Index(i), el.value)
		}
		for _, p := range el.patches {
			patches = append(patches, patch{key: p.key, set: func(dst, v reflect.Value) {
				p.set(dst.Index(i), v)
			}})
		}
	}
	return decoded{value: out, patches: patches}, true
}

// settleContainer registers a decoded map or slice before its contents
// are filled. Both are reference types, so later writes stay visible.
func (dc *decoder) settleContainer(node any, t reflect.Type, out reflect.Value) {
	if t.Kind() == reflect.Slice && out.Len() == 0 {
		return
	}
	dc.settle(pathKey(dc.currentPath()), out)
	if dc.references(t).SharesNodes() {
		if key, ok := nodeIdentity(node); ok {
			dc.settle(key, out)
		}
	}
}

// parseMapKey converts a data-graph key to a map key of type t.
func parseMapKey(k string, t reflect.Type) (reflect.Value, error) {
	if reflect.PointerTo(t).Implements(textUnmarshalType) {
		p := reflect.New(t)
		if err := p.Interface().(encoding.TextUnmarshaler).UnmarshalText([]byte(k)); err != nil {
			return reflect.Value{}, err
		}
		return p.Elem(), nil
	}
	out := reflect.New(t).Elem()
	switch t.Kind() {
	case reflect.String:
		out.SetString(k)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i, err := strconv.ParseInt(k, 10, t.Bits())
		if err != nil {
			return reflect.Value{}, err
		}
		out.SetInt(i)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(k, 10, t.Bits())
		if err != nil {
			return reflect.Value{}, err
		}
		out.SetUint(u)
	case reflect.Bool:
		b, err := strconv.ParseBool(k)
		if err != nil {
			return reflect.Value{}, err
		}
		out.SetBool(b)
	default:
		return reflect.Value{}, fmt.Errorf("map key kind %s has no text form", t.Kind())
	}
	return out, nil
}
