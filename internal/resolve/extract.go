package resolve

import (
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/unsafels/internal/store"
	"github.com/jward/unsafels/internal/syntax"
)

// Extract records the declarations of f that the resolver can look up:
// functions, methods, foreign items, statics, and pointer- or
// reference-typed struct fields. fileID may be zero when ds is a
// BatchedStore that will be committed later. It returns the number of
// declarations written.
func Extract(f *syntax.File, fileID int64, ds store.DataStore) (int, error) {
	x := &extractor{f: f, fileID: fileID, ds: ds}
	if err := x.walk(f.Root(), nil, "", false); err != nil {
		return x.count, err
	}
	return x.count, nil
}

type extractor struct {
	f      *syntax.File
	fileID int64
	ds     store.DataStore
	count  int
}

// walk visits n with the enclosing module path, the owning impl or trait
// type (empty outside one), and whether n sits in an extern block.
func (x *extractor) walk(n *sitter.Node, mod []string, owner string, foreign bool) error {
	for _, c := range syntax.NamedChildren(n) {
		if err := x.visit(c, mod, owner, foreign); err != nil {
			return err
		}
	}
	return nil
}

func (x *extractor) visit(n *sitter.Node, mod []string, owner string, foreign bool) error {
	switch n.Type() {
	case "mod_item":
		name := n.ChildByFieldName("name")
		body := n.ChildByFieldName("body")
		if name == nil || body == nil {
			return nil
		}
		return x.walk(body, appendPath(mod, x.f.Text(name)), "", false)

	case "foreign_mod_item":
		if body := n.ChildByFieldName("body"); body != nil {
			return x.walk(body, mod, "", true)
		}
		return nil

	case "impl_item":
		typ := n.ChildByFieldName("type")
		body := n.ChildByFieldName("body")
		if typ == nil || body == nil {
			return nil
		}
		return x.walk(body, mod, lastSegment(x.f.Text(typ)), false)

	case "trait_item":
		name := n.ChildByFieldName("name")
		body := n.ChildByFieldName("body")
		if name == nil || body == nil {
			return nil
		}
		return x.walk(body, mod, x.f.Text(name), false)

	case "function_item", "function_signature_item":
		if err := x.function(n, mod, owner, foreign); err != nil {
			return err
		}
		// Items declared inside a function body are recorded under the
		// enclosing module.
		if body := n.ChildByFieldName("body"); body != nil {
			return x.walk(body, mod, "", false)
		}
		return nil

	case "static_item":
		return x.static(n, mod, foreign)

	case "struct_item":
		return x.fields(n, mod)
	}
	return x.walk(n, mod, owner, foreign)
}

func (x *extractor) function(n *sitter.Node, mod []string, owner string, foreign bool) error {
	name := n.ChildByFieldName("name")
	if name == nil {
		return nil
	}
	kind := store.KindFunction
	path := appendPath(mod, x.f.Text(name))
	if owner != "" {
		kind = store.KindMethod
		path = []string{owner, x.f.Text(name)}
	}
	return x.insert(n, &store.Declaration{
		Name:     x.f.Text(name),
		Path:     syntax.JoinPath(path),
		Kind:     kind,
		Unsafe:   foreign || syntax.IsUnsafeFunction(n),
		Foreign:  foreign,
		TypeKind: typeKind(n.ChildByFieldName("return_type")),
	})
}

func (x *extractor) static(n *sitter.Node, mod []string, foreign bool) error {
	name := n.ChildByFieldName("name")
	if name == nil {
		return nil
	}
	return x.insert(n, &store.Declaration{
		Name:     x.f.Text(name),
		Path:     syntax.JoinPath(appendPath(mod, x.f.Text(name))),
		Kind:     store.KindStatic,
		Foreign:  foreign,
		Mutable:  foreign || syntax.IsMutable(n),
		TypeKind: typeKind(n.ChildByFieldName("type")),
	})
}

// fields records the struct's fields whose type is a pointer or reference.
func (x *extractor) fields(n *sitter.Node, mod []string) error {
	name := n.ChildByFieldName("name")
	body := n.ChildByFieldName("body")
	if name == nil || body == nil || body.Type() != "field_declaration_list" {
		return nil
	}
	for _, fd := range syntax.NamedChildren(body) {
		if fd.Type() != "field_declaration" {
			continue
		}
		fname := fd.ChildByFieldName("name")
		tk := typeKind(fd.ChildByFieldName("type"))
		if fname == nil || tk == "" {
			continue
		}
		d := &store.Declaration{
			Name:     x.f.Text(fname),
			Path:     syntax.JoinPath([]string{x.f.Text(name), x.f.Text(fname)}),
			Kind:     store.KindField,
			TypeKind: tk,
		}
		if err := x.insert(fd, d); err != nil {
			return err
		}
	}
	return nil
}

func (x *extractor) insert(n *sitter.Node, d *store.Declaration) error {
	loc := x.f.Loc(n)
	d.FileID = x.fileID
	d.StartLine = loc.Line
	d.StartCol = loc.Col
	if _, err := x.ds.InsertDeclaration(d); err != nil {
		return err
	}
	x.count++
	return nil
}

// typeKind maps a syntactic type to the store's type kind.
func typeKind(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	mut := syntax.IsMutable(n)
	switch n.Type() {
	case "pointer_type":
		if mut {
			return store.TypePtrMut
		}
		return store.TypePtrConst
	case "reference_type":
		if mut {
			return store.TypeRefMut
		}
		return store.TypeRef
	}
	return ""
}

func appendPath(mod []string, name string) []string {
	out := make([]string, 0, len(mod)+1)
	out = append(out, mod...)
	return append(out, name)
}

func lastSegment(path string) string {
	segs := syntax.PathSegments(path)
	if len(segs) == 0 {
		return ""
	}
	return segs[len(segs)-1]
}
