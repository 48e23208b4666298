package resolve

import (
	"slices"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/unsafels/internal/syntax"
)

// qualify rewrites the first segment of a reference through the `use`
// declarations visible from ref. A name not brought in by any `use` is
// returned unchanged.
func (r *Resolver) qualify(ref *sitter.Node, segs []string) []string {
	if full, ok := r.imported(ref, segs[0]); ok {
		return slices.Concat(full, segs[1:])
	}
	return segs
}

// imported returns the full path name is imported under, searching the
// scopes around ref from the innermost out up to the enclosing module.
// Glob imports are not followed.
func (r *Resolver) imported(ref *sitter.Node, name string) ([]string, bool) {
	for n := ref.Parent(); n != nil; n = n.Parent() {
		switch n.Type() {
		case "mod_item":
			return nil, false
		case "block", "declaration_list", "source_file":
		default:
			continue
		}
		for _, c := range syntax.NamedChildren(n) {
			if c.Type() != "use_declaration" {
				continue
			}
			if full, ok := r.useBinding(c.ChildByFieldName("argument"), nil, name); ok {
				return full, true
			}
		}
	}
	return nil, false
}

// useBinding looks for name among the bindings one use clause introduces.
// prefix is the path of the enclosing `{...}` list.
func (r *Resolver) useBinding(n *sitter.Node, prefix []string, name string) ([]string, bool) {
	if n == nil {
		return nil, false
	}
	switch n.Type() {
	case "identifier":
		if r.f.Text(n) == name {
			return slices.Concat(prefix, []string{name}), true
		}
	case "scoped_identifier":
		segs := syntax.PathSegments(r.f.Text(n))
		if len(segs) > 0 && segs[len(segs)-1] == name {
			return slices.Concat(prefix, segs), true
		}
	case "self":
		if len(prefix) > 0 && prefix[len(prefix)-1] == name {
			return prefix, true
		}
	case "use_as_clause":
		alias := n.ChildByFieldName("alias")
		path := n.ChildByFieldName("path")
		if alias == nil || path == nil || r.f.Text(alias) != name {
			return nil, false
		}
		segs := syntax.PathSegments(r.f.Text(path))
		if path.Type() == "self" {
			segs = nil
		}
		if full := slices.Concat(prefix, segs); len(full) > 0 {
			return full, true
		}
	case "scoped_use_list":
		inner := prefix
		if p := n.ChildByFieldName("path"); p != nil {
			inner = slices.Concat(prefix, syntax.PathSegments(r.f.Text(p)))
		}
		return r.useBinding(n.ChildByFieldName("list"), inner, name)
	case "use_list":
		for _, c := range syntax.NamedChildren(n) {
			if full, ok := r.useBinding(c, prefix, name); ok {
				return full, true
			}
		}
	}
	return nil, false
}

// modulePath returns the names of the inline modules enclosing n, outermost
// first.
func modulePath(f *syntax.File, n *sitter.Node) []string {
	var mods []string
	for p := n.Parent(); p != nil; p = p.Parent() {
		if p.Type() != "mod_item" {
			continue
		}
		if name := p.ChildByFieldName("name"); name != nil {
			mods = append(mods, f.Text(name))
		}
	}
	slices.Reverse(mods)
	return mods
}
