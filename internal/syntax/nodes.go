package syntax

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// Same reports whether a and b denote the same node. smacker/go-tree-sitter
// may hand out distinct *Node values for one node, so identity is decided by
// span and type.
func Same(a, b *sitter.Node) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.StartByte() == b.StartByte() &&
		a.EndByte() == b.EndByte() &&
		a.Type() == b.Type()
}

// IsField reports whether child sits in parent's named field.
func IsField(parent, child *sitter.Node, field string) bool {
	if parent == nil {
		return false
	}
	return Same(parent.ChildByFieldName(field), child)
}

// Children returns all children of n, anonymous tokens included.
func Children(n *sitter.Node) []*sitter.Node {
	count := int(n.ChildCount())
	out := make([]*sitter.Node, 0, count)
	for i := 0; i < count; i++ {
		if c := n.Child(i); c != nil {
			out = append(out, c)
		}
	}
	return out
}

// NamedChildren returns the named children of n.
func NamedChildren(n *sitter.Node) []*sitter.Node {
	count := int(n.NamedChildCount())
	out := make([]*sitter.Node, 0, count)
	for i := 0; i < count; i++ {
		if c := n.NamedChild(i); c != nil {
			out = append(out, c)
		}
	}
	return out
}

// ChildOfType returns the first direct child of n with the given type.
func ChildOfType(n *sitter.Node, typ string) *sitter.Node {
	for _, c := range Children(n) {
		if c.Type() == typ {
			return c
		}
	}
	return nil
}

// IsUnsafeFunction reports whether n is an `unsafe fn` item.
func IsUnsafeFunction(n *sitter.Node) bool {
	if n.Type() != "function_item" && n.Type() != "function_signature_item" {
		return false
	}
	mods := ChildOfType(n, "function_modifiers")
	return mods != nil && ChildOfType(mods, "unsafe") != nil
}

// IsUnsafeBlock reports whether n is an `unsafe { ... }` block.
func IsUnsafeBlock(n *sitter.Node) bool {
	return n.Type() == "unsafe_block"
}

// Body returns the block of a function item or unsafe block, or nil.
func Body(n *sitter.Node) *sitter.Node {
	switch n.Type() {
	case "function_item":
		return n.ChildByFieldName("body")
	case "unsafe_block":
		return ChildOfType(n, "block")
	}
	return nil
}

// contextResets lists item and expression kinds whose bodies never inherit
// the unsafe context of their surroundings.
var contextResets = map[string]bool{
	"function_item":      true,
	"closure_expression": true,
	"impl_item":          true,
	"trait_item":         true,
	"mod_item":           true,
	"const_item":         true,
	"static_item":        true,
	"foreign_mod_item":   true,
}

// IsContextReset reports whether n starts a context-resetting boundary.
// An unsafe fn is both a boundary and a region of its own.
func IsContextReset(n *sitter.Node) bool {
	return contextResets[n.Type()]
}

// IsMutable reports whether n carries a direct `mut` specifier.
func IsMutable(n *sitter.Node) bool {
	return ChildOfType(n, "mutable_specifier") != nil
}

// PathSegments splits a path expression such as `crate::ffi::abort` or
// `Vec::<u8>::from_raw_parts` into its meaningful segments, dropping generic
// arguments and leading `crate`, `self`, `super` qualifiers.
func PathSegments(text string) []string {
	var b strings.Builder
	depth := 0
	for _, r := range text {
		switch {
		case r == '<':
			depth++
		case r == '>' && depth > 0:
			depth--
		case depth == 0 && r != ' ' && r != '\t' && r != '\n' && r != '\r':
			b.WriteRune(r)
		}
	}
	var segs []string
	for _, s := range strings.Split(b.String(), "::") {
		if s == "" {
			continue
		}
		if len(segs) == 0 && (s == "crate" || s == "self" || s == "super" || s == "$crate") {
			continue
		}
		segs = append(segs, s)
	}
	return segs
}

// JoinPath joins path segments with `::`.
func JoinPath(segs []string) string {
	return strings.Join(segs, "::")
}
