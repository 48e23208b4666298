package resolve

import (
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/unsafels/internal/audit"
	"github.com/jward/unsafels/internal/syntax"
)

// binding is a name found in the lexical scope of a reference: a local
// variable, a parameter, or an item declared inside a block.
type binding struct {
	decl audit.Decl

	// typ is the declared type of a variable or static.
	typ   audit.TypeInfo
	typOK bool
	// init is a let initializer to infer typ from when there is no
	// annotation.
	init *sitter.Node
	// ret is the return type of a block-level function item.
	ret   audit.TypeInfo
	retOK bool
}

// local finds name in the scopes enclosing ref. Once the walk leaves a
// function item only block-level items remain visible.
func (r *Resolver) local(ref *sitter.Node, name string) (binding, bool) {
	before := ref.StartByte()
	itemsOnly := false
	prev := ref
	for p := ref.Parent(); p != nil; prev, p = p, p.Parent() {
		switch p.Type() {
		case "block":
			if b, ok := r.blockBinding(p, name, before, itemsOnly); ok {
				return b, true
			}

		case "function_item":
			if !itemsOnly {
				if b, ok := r.paramBinding(p.ChildByFieldName("parameters"), name); ok {
					return b, true
				}
			}
			itemsOnly = true

		case "closure_expression":
			if !itemsOnly {
				if b, ok := r.paramBinding(p.ChildByFieldName("parameters"), name); ok {
					return b, true
				}
			}

		case "for_expression":
			if !itemsOnly && syntax.IsField(p, prev, "body") &&
				r.patternBinds(p.ChildByFieldName("pattern"), name) {
				return binding{}, true
			}

		case "match_arm":
			if itemsOnly {
				continue
			}
			if pat := armPattern(p); pat != nil && !contains(pat, ref) && r.patternBinds(pat, name) {
				return binding{}, true
			}

		case "if_expression", "while_expression":
			cond := p.ChildByFieldName("condition")
			if !itemsOnly && cond != nil && !syntax.Same(cond, prev) && r.conditionBinds(cond, name) {
				return binding{}, true
			}

		case "if_let_expression", "while_let_expression":
			if !itemsOnly && !syntax.IsField(p, prev, "value") &&
				r.patternBinds(p.ChildByFieldName("pattern"), name) {
				return binding{}, true
			}

		case "source_file", "mod_item", "impl_item", "trait_item", "declaration_list":
			return binding{}, false
		}
	}
	return binding{}, false
}

// blockBinding looks for name among the statements of block. A let must end
// before the reference; the last such let wins. Items are visible anywhere
// in the block but are shadowed by a preceding let.
func (r *Resolver) blockBinding(block *sitter.Node, name string, before uint32, itemsOnly bool) (binding, bool) {
	var (
		let, item     binding
		letOK, itemOK bool
	)
	for _, c := range syntax.NamedChildren(block) {
		switch c.Type() {
		case "let_declaration":
			if itemsOnly || c.EndByte() > before || !r.patternBinds(c.ChildByFieldName("pattern"), name) {
				continue
			}
			let = binding{init: c.ChildByFieldName("value")}
			let.typ, let.typOK = audit.TypeFromNode(c.ChildByFieldName("type"))
			letOK = true

		case "function_item", "static_item", "const_item":
			if b, ok := r.itemBinding(c, name, false); ok {
				item, itemOK = b, true
			}

		case "foreign_mod_item":
			body := c.ChildByFieldName("body")
			if body == nil {
				continue
			}
			for _, fi := range syntax.NamedChildren(body) {
				if b, ok := r.itemBinding(fi, name, true); ok {
					item, itemOK = b, true
				}
			}
		}
	}
	if letOK {
		return let, true
	}
	return item, itemOK
}

func (r *Resolver) itemBinding(n *sitter.Node, name string, foreign bool) (binding, bool) {
	id := n.ChildByFieldName("name")
	if id == nil || r.f.Text(id) != name {
		return binding{}, false
	}
	switch n.Type() {
	case "function_item", "function_signature_item":
		b := binding{decl: audit.Decl{Foreign: foreign, Unsafe: foreign || syntax.IsUnsafeFunction(n)}}
		b.ret, b.retOK = audit.TypeFromNode(n.ChildByFieldName("return_type"))
		return b, true
	case "static_item", "const_item":
		b := binding{decl: audit.Decl{
			Foreign:   foreign,
			StaticMut: n.Type() == "static_item" && (foreign || syntax.IsMutable(n)),
		}}
		b.typ, b.typOK = audit.TypeFromNode(n.ChildByFieldName("type"))
		return b, true
	}
	return binding{}, false
}

// paramBinding looks for name among function or closure parameters.
func (r *Resolver) paramBinding(params *sitter.Node, name string) (binding, bool) {
	if params == nil {
		return binding{}, false
	}
	for _, p := range syntax.NamedChildren(params) {
		switch p.Type() {
		case "parameter":
			if r.patternBinds(p.ChildByFieldName("pattern"), name) {
				b := binding{}
				b.typ, b.typOK = audit.TypeFromNode(p.ChildByFieldName("type"))
				return b, true
			}
		case "self_parameter", "attribute_item", "line_comment", "block_comment":
		default:
			if r.patternBinds(p, name) {
				return binding{}, true
			}
		}
	}
	return binding{}, false
}

// patternBinds reports whether pattern pat introduces name.
func (r *Resolver) patternBinds(pat *sitter.Node, name string) bool {
	if pat == nil {
		return false
	}
	switch pat.Type() {
	case "identifier", "shorthand_field_identifier":
		return r.f.Text(pat) == name
	case "scoped_identifier", "scoped_type_identifier":
		return false
	}
	for _, c := range syntax.NamedChildren(pat) {
		if syntax.IsField(pat, c, "type") {
			continue
		}
		if r.patternBinds(c, name) {
			return true
		}
	}
	return false
}

// conditionBinds reports whether an if or while condition binds name through
// `let` patterns.
func (r *Resolver) conditionBinds(cond *sitter.Node, name string) bool {
	switch cond.Type() {
	case "let_condition":
		return r.patternBinds(cond.ChildByFieldName("pattern"), name)
	case "let_chain":
		for _, c := range syntax.NamedChildren(cond) {
			if c.Type() == "let_condition" && r.conditionBinds(c, name) {
				return true
			}
		}
	}
	return false
}

// armPattern returns the pattern of a match arm without its guard.
func armPattern(arm *sitter.Node) *sitter.Node {
	mp := arm.ChildByFieldName("pattern")
	if mp == nil {
		return nil
	}
	if mp.Type() != "match_pattern" {
		return mp
	}
	for _, c := range syntax.NamedChildren(mp) {
		if !syntax.IsField(mp, c, "condition") {
			return c
		}
	}
	return nil
}

func contains(outer, inner *sitter.Node) bool {
	return outer.StartByte() <= inner.StartByte() && inner.EndByte() <= outer.EndByte()
}
