package graft

import (
	"reflect"

	"github.com/zoobzio/sentinel"
)

const tagName = "graft"

func init() {
	sentinel.Tag(tagName)
}

// inspect has sentinel scan T and the struct types it references, so
// later metadata for them comes from the sentinel cache.
func inspect[T any]() {
	_, _ = sentinel.TryScan[T]()
}

// scanFields derives implicit field metadata for t from its struct layout.
// Only exported fields whose kind can be represented as plain data are kept.
func scanFields(t reflect.Type) []*FieldMetadata {
	if t.Kind() != reflect.Struct {
		return nil
	}

	spec := scanType(t)
	fields := make([]*FieldMetadata, 0, len(spec.Fields))
	for _, sf := range spec.Fields {
		if len(sf.Index) == 0 || !representable(sf) {
			continue
		}
		key, skip := tagOptions(sf.Tags[tagName])

		f := &FieldMetadata{
			name:     sf.Name,
			index:    sf.Index,
			goType:   sf.ReflectType,
			tagAlias: key,
			custom:   &CustomContext{},
		}
		if skip {
			f.serializable = Disabled
			f.deserializable = Disabled
		}
		fields = append(fields, f)
	}
	return fields
}

// scanType returns the sentinel metadata cached for t. Types sentinel
// has not scanned, or whose cached entry belongs to another type of the
// same name, are described from reflection.
func scanType(t reflect.Type) sentinel.Metadata {
	if spec, ok := sentinel.Lookup(t.Name()); ok && describes(spec, t) {
		return spec
	}
	return reflectType(t)
}

// describes reports whether spec was extracted from t. Sentinel keys its
// cache by bare type name.
func describes(spec sentinel.Metadata, t reflect.Type) bool {
	if spec.TypeName != t.Name() || spec.PackageName != t.PkgPath() {
		return false
	}
	exported := 0
	for i := 0; i < t.NumField(); i++ {
		if t.Field(i).IsExported() {
			exported++
		}
	}
	if exported != len(spec.Fields) {
		return false
	}
	for _, f := range spec.Fields {
		if len(f.Index) != 1 || f.Index[0] >= t.NumField() {
			return false
		}
		sf := t.Field(f.Index[0])
		if sf.Name != f.Name || sf.Type != f.ReflectType || sf.Tag.Get(tagName) != f.Tags[tagName] {
			return false
		}
	}
	return true
}

func reflectType(t reflect.Type) sentinel.Metadata {
	spec := sentinel.Metadata{TypeName: t.Name(), PackageName: t.PkgPath()}
	for _, sf := range reflect.VisibleFields(t) {
		if len(sf.Index) != 1 || !sf.IsExported() {
			continue
		}
		tags := map[string]string{}
		if v := sf.Tag.Get(tagName); v != "" {
			tags[tagName] = v
		}
		spec.Fields = append(spec.Fields, sentinel.FieldMetadata{
			Name:        sf.Name,
			Type:        sf.Type.String(),
			Kind:        fieldKind(sf.Type),
			ReflectType: sf.Type,
			Index:       sf.Index,
			Tags:        tags,
		})
	}
	return spec
}

func fieldKind(t reflect.Type) sentinel.FieldKind {
	switch t.Kind() {
	case reflect.Pointer:
		return sentinel.KindPointer
	case reflect.Slice, reflect.Array:
		return sentinel.KindSlice
	case reflect.Struct:
		return sentinel.KindStruct
	case reflect.Map:
		return sentinel.KindMap
	case reflect.Interface:
		return sentinel.KindInterface
	}
	return sentinel.KindScalar
}

// representable reports whether values of the field can be mapped to
// plain data.
func representable(f sentinel.FieldMetadata) bool {
	switch f.Kind {
	case sentinel.KindStruct, sentinel.KindInterface:
		return true
	case sentinel.KindScalar:
		return representableDepth(f.ReflectType, 1)
	}
	return representableDepth(f.ReflectType, 8)
}

func representableDepth(t reflect.Type, depth int) bool {
	if depth == 0 {
		return true
	}
	switch t.Kind() {
	case reflect.Func, reflect.Chan, reflect.Complex64, reflect.Complex128, reflect.UnsafePointer, reflect.Uintptr:
		return false
	case reflect.Pointer, reflect.Slice, reflect.Array:
		return representableDepth(t.Elem(), depth-1)
	case reflect.Map:
		return representableDepth(t.Key(), depth-1) && representableDepth(t.Elem(), depth-1)
	}
	return true
}
