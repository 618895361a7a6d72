package graft

import (
	"reflect"
	"slices"
	"strconv"
	"strings"
	"unsafe"
)

// objectEntries returns the entries of an object node. Any map with
// string keys qualifies, so trees built by other decoders need no copy
// when they already use map[string]any.
func objectEntries(node any) (map[string]any, bool) {
	if m, ok := node.(map[string]any); ok {
		return m, true
	}
	v := reflect.ValueOf(node)
	if v.Kind() != reflect.Map {
		return nil, false
	}
	switch v.Type().Key().Kind() {
	case reflect.String:
		out := make(map[string]any, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = iter.Value().Interface()
		}
		return out, true
	case reflect.Interface:
		out := make(map[string]any, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			k, ok := iter.Key().Interface().(string)
			if !ok {
				return nil, false
			}
			out[k] = iter.Value().Interface()
		}
		return out, true
	}
	return nil, false
}

// arrayItems returns the items of an array node.
func arrayItems(node any) ([]any, bool) {
	if a, ok := node.([]any); ok {
		return a, true
	}
	v := reflect.ValueOf(node)
	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return nil, false
		}
		out := make([]any, v.Len())
		for i := range out {
			out[i] = v.Index(i).Interface()
		}
		return out, true
	}
	return nil, false
}

// sortedKeys returns the keys of entries in ascending order.
func sortedKeys(entries map[string]any) []string {
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// identity is the traversal-scoped identity of an object or data node.
// Slices are keyed by backing array, length and type, so distinct
// windows on one array stay distinct.
type identity struct {
	ptr unsafe.Pointer
	n   int
	typ reflect.Type
}

// identityOf returns the identity of v. Only pointers, maps and
// non-empty slices have one.
func identityOf(v reflect.Value) (identity, bool) {
	switch v.Kind() {
	case reflect.Pointer, reflect.Map:
		if v.IsNil() {
			return identity{}, false
		}
		return identity{ptr: v.UnsafePointer(), typ: v.Type()}, true
	case reflect.Slice:
		if v.Len() == 0 {
			return identity{}, false
		}
		return identity{ptr: v.UnsafePointer(), n: v.Len(), typ: v.Type()}, true
	}
	return identity{}, false
}

// nodeIdentity returns the identity of a composite data node.
func nodeIdentity(node any) (identity, bool) {
	if node == nil {
		return identity{}, false
	}
	return identityOf(reflect.ValueOf(node))
}

// segment is one step of a traversal path: a key or an index.
type segment struct {
	key   string
	index int
	isKey bool
}

// formatPath renders segments as a bracket path anchored at "$".
func formatPath(path []segment) string {
	var b strings.Builder
	b.WriteByte('$')
	for _, s := range path {
		b.WriteByte('[')
		if s.isKey {
			b.WriteByte('\'')
			for _, r := range s.key {
				if r == '\'' || r == '\\' {
					b.WriteByte('\\')
				}
				b.WriteRune(r)
			}
			b.WriteByte('\'')
		} else {
			b.WriteString(strconv.Itoa(s.index))
		}
		b.WriteByte(']')
	}
	return b.String()
}
