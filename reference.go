package graft

// ReferenceKey is the only key of a reference marker node.
const ReferenceKey = "$ref"

// Reference describes an object met again during one encode call.
type Reference struct {
	// Path is where the object was first emitted, as a bracket path from "$".
	Path string

	// Node is the node emitted at Path. It may still be filling.
	Node any

	// Pending is true while the object is an ancestor of the current
	// position, i.e. the revisit closes a cycle.
	Pending bool
}

// Resolution tells the decoder how to treat a data node.
type Resolution int8

const (
	// ResolveValue decodes the node as a value.
	ResolveValue Resolution = iota

	// ResolvePath replaces the node with the object decoded at a path.
	ResolvePath

	// ResolveAbsent drops the node.
	ResolveAbsent
)

// ReferenceHandler decides how objects seen more than once in a traversal
// are represented. First visits are always traversed in full; handlers
// only differ on revisits.
type ReferenceHandler interface {
	// Revisit returns the node to emit in place of an object already
	// encoded in this call. ok false leaves the position absent.
	Revisit(ref Reference) (node any, ok bool)

	// Resolve classifies a data node before it is decoded.
	Resolve(node any) (Resolution, string)

	// SharesNodes reports whether a data node reached twice denotes one
	// shared object on decode.
	SharesNodes() bool
}

// Marker returns the reference marker node for path.
func Marker(path string) map[string]any {
	return map[string]any{ReferenceKey: path}
}

// markerPath reports whether node is a reference marker and returns its path.
func markerPath(node any) (string, bool) {
	entries, ok := objectEntries(node)
	if !ok || len(entries) != 1 {
		return "", false
	}
	path, ok := entries[ReferenceKey].(string)
	return path, ok
}

type pathHandler struct{}

// PathReferenceHandler emits every revisit as a marker holding the path
// of the first occurrence. It round-trips arbitrary shared and cyclic
// graphs through tree-shaped formats.
func PathReferenceHandler() ReferenceHandler { return pathHandler{} }

func (pathHandler) Revisit(ref Reference) (any, bool) {
	return Marker(ref.Path), true
}

func (pathHandler) Resolve(node any) (Resolution, string) {
	if path, ok := markerPath(node); ok {
		return ResolvePath, path
	}
	return ResolveValue, ""
}

func (pathHandler) SharesNodes() bool { return false }

type directHandler struct{}

// DirectReferenceHandler emits the node of the first occurrence again.
// The output shares substructure and may be cyclic; it suits in-memory
// consumers, not text encoders.
func DirectReferenceHandler() ReferenceHandler { return directHandler{} }

func (directHandler) Revisit(ref Reference) (any, bool) {
	return ref.Node, true
}

func (directHandler) Resolve(any) (Resolution, string) {
	return ResolveValue, ""
}

func (directHandler) SharesNodes() bool { return true }

// circularHandler writes the same markers as pathHandler. Root
// revisits become "$"; other revisits cannot be expressed relative to
// the root alone and keep the absolute path of their first occurrence.
type circularHandler struct{ pathHandler }

// CircularReferenceHandler anchors markers at the traversal root. It
// suits single-root graphs where children point back to their owner:
// every such back-reference is written as the marker "$".
func CircularReferenceHandler() ReferenceHandler { return circularHandler{} }

type leadHandler struct{}

// LeadReferenceHandler drops revisits. Only the first occurrence of a
// shared object survives; cycles are cut.
func LeadReferenceHandler() ReferenceHandler { return leadHandler{} }

func (leadHandler) Revisit(Reference) (any, bool) {
	return nil, false
}

func (leadHandler) Resolve(node any) (Resolution, string) {
	if _, ok := markerPath(node); ok {
		return ResolveAbsent, ""
	}
	return ResolveValue, ""
}

func (leadHandler) SharesNodes() bool { return false }
