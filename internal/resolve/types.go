package resolve

import (
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/unsafels/internal/audit"
	"github.com/jward/unsafels/internal/store"
	"github.com/jward/unsafels/internal/syntax"
)

var (
	constPtr = audit.TypeInfo{Kind: audit.TypePointer}
	mutPtr   = audit.TypeInfo{Kind: audit.TypePointer, Mutable: true}
)

// pointerMethods keep the pointer type of their receiver.
var pointerMethods = map[string]bool{
	"add":             true,
	"sub":             true,
	"offset":          true,
	"wrapping_add":    true,
	"wrapping_sub":    true,
	"wrapping_offset": true,
	"byte_add":        true,
	"byte_sub":        true,
	"byte_offset":     true,
	"cast":            true,
}

// TypeOf infers the type of expression n from its syntax, local bindings,
// and indexed declarations.
func (r *Resolver) TypeOf(n *sitter.Node) (audit.TypeInfo, bool) {
	return r.typeOf(n, 0)
}

func (r *Resolver) typeOf(n *sitter.Node, depth int) (audit.TypeInfo, bool) {
	if n == nil || depth > maxTypeDepth {
		return audit.TypeInfo{}, false
	}
	switch n.Type() {
	case "parenthesized_expression":
		return r.typeOf(n.NamedChild(0), depth+1)

	case "type_cast_expression":
		return audit.TypeFromNode(n.ChildByFieldName("type"))

	case "reference_expression":
		return audit.TypeInfo{Kind: audit.TypeReference, Mutable: syntax.IsMutable(n)}, true

	case "identifier":
		if b, ok := r.local(n, r.f.Text(n)); ok {
			switch {
			case b.typOK:
				return b.typ, true
			case b.init != nil:
				return r.typeOf(b.init, depth+1)
			}
			return audit.TypeInfo{}, false
		}
		return r.staticType(n, syntax.PathSegments(r.f.Text(n)))

	case "scoped_identifier":
		return r.staticType(n, syntax.PathSegments(r.f.Text(n)))

	case "field_expression":
		if field := n.ChildByFieldName("field"); field != nil {
			return r.fieldType(r.f.Text(field))
		}

	case "call_expression":
		return r.callType(n, depth)

	case "macro_invocation":
		if m := n.ChildByFieldName("macro"); m != nil {
			switch lastSegment(r.f.Text(m)) {
			case "addr_of":
				return constPtr, true
			case "addr_of_mut":
				return mutPtr, true
			}
		}
	}
	return audit.TypeInfo{}, false
}

func (r *Resolver) staticType(ref *sitter.Node, segs []string) (audit.TypeInfo, bool) {
	if len(segs) == 0 {
		return audit.TypeInfo{}, false
	}
	segs = r.qualify(ref, segs)
	if d := r.candidate(ref, segs, store.KindStatic); d != nil {
		return typeInfo(d.TypeKind), true
	}
	return audit.TypeInfo{}, false
}

// callType infers the result type of a call from well-known pointer
// constructors, pointer arithmetic, and declared return types.
func (r *Resolver) callType(call *sitter.Node, depth int) (audit.TypeInfo, bool) {
	target := call.ChildByFieldName("function")
	if target != nil && target.Type() == "generic_function" {
		target = target.ChildByFieldName("function")
	}
	if target == nil {
		return audit.TypeInfo{}, false
	}

	switch target.Type() {
	case "field_expression":
		field := target.ChildByFieldName("field")
		if field == nil {
			return audit.TypeInfo{}, false
		}
		name := r.f.Text(field)
		switch name {
		case "as_ptr", "cast_const":
			return constPtr, true
		case "as_mut_ptr", "cast_mut":
			return mutPtr, true
		}
		if pointerMethods[name] {
			if t, ok := r.typeOf(target.ChildByFieldName("value"), depth+1); ok && t.Kind == audit.TypePointer {
				return t, true
			}
		}
		return r.methodReturn(name)

	case "identifier", "scoped_identifier":
		if r.f.IsMacroName(target) {
			return audit.TypeInfo{}, false
		}
		segs := syntax.PathSegments(r.f.Text(target))
		if len(segs) == 0 {
			return audit.TypeInfo{}, false
		}
		switch segs[len(segs)-1] {
		case "null":
			return constPtr, true
		case "null_mut", "into_raw":
			return mutPtr, true
		}
		if target.Type() == "identifier" {
			if b, ok := r.local(target, segs[0]); ok {
				return b.ret, b.retOK
			}
		}
		segs = r.qualify(target, segs)
		kinds := []string{store.KindFunction}
		if len(segs) > 1 {
			kinds = append(kinds, store.KindMethod)
		}
		if d := r.candidate(target, segs, kinds...); d != nil {
			return typeInfo(d.TypeKind), true
		}
	}
	return audit.TypeInfo{}, false
}
