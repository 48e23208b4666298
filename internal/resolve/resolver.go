package resolve

import (
	"slices"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/unsafels/internal/audit"
	"github.com/jward/unsafels/internal/store"
	"github.com/jward/unsafels/internal/syntax"
)

// maxTypeDepth bounds type inference through let initializers.
const maxTypeDepth = 8

// Resolver implements audit.Resolver for one file.
type Resolver struct {
	ix     *Index
	f      *syntax.File
	fileID int64
}

var _ audit.Resolver = (*Resolver)(nil)

// Resolve looks n up in the lexical scope, then the declaration index, then
// the hints.
func (r *Resolver) Resolve(n *sitter.Node, ref audit.RefKind) (audit.Decl, bool) {
	if n == nil {
		return audit.Decl{}, false
	}
	if ref == audit.RefMethod {
		field := n.ChildByFieldName("field")
		if field == nil {
			return audit.Decl{}, false
		}
		return r.method(r.f.Text(field))
	}

	segs := syntax.PathSegments(r.f.Text(n))
	if len(segs) == 0 {
		return audit.Decl{}, false
	}
	if n.Type() == "identifier" {
		if b, ok := r.local(n, segs[0]); ok {
			return b.decl, true
		}
	}

	segs = r.qualify(n, segs)

	if ref == audit.RefCall {
		kinds := []string{store.KindFunction}
		if len(segs) > 1 {
			kinds = append(kinds, store.KindMethod)
		}
		if d := r.candidate(n, segs, kinds...); d != nil {
			return audit.Decl{Foreign: d.Foreign, Unsafe: d.Unsafe || d.Foreign}, true
		}
		return r.ix.hint(segs, false)
	}

	if d := r.candidate(n, segs, store.KindStatic); d != nil {
		return audit.Decl{Foreign: d.Foreign, StaticMut: d.Mutable}, true
	}
	return r.ix.hint(segs, false)
}

// Candidate ranks, best first.
const (
	rankSameModule = iota
	rankSameFileRoot
	rankSameFile
	rankOtherFileExact
	rankOtherFile
	rankNone
)

// candidate returns the declaration of one of kinds that segs, referenced
// from ref, most likely names: one in ref's own module, then one at the
// root of the file, then any other in the file, then ones in other files.
func (r *Resolver) candidate(ref *sitter.Node, segs []string, kinds ...string) *store.Declaration {
	inModule := syntax.JoinPath(slices.Concat(modulePath(r.f, ref), segs))
	exact := syntax.JoinPath(segs)

	var best *store.Declaration
	bestRank := rankNone
	for _, d := range r.ix.declarations(segs[len(segs)-1]) {
		if !slices.Contains(kinds, d.Kind) || !pathMatches(segs, d.Path) {
			continue
		}
		var rank int
		switch {
		case d.FileID == r.fileID && d.Path == inModule:
			rank = rankSameModule
		case d.FileID == r.fileID && d.Path == exact:
			rank = rankSameFileRoot
		case d.FileID == r.fileID:
			rank = rankSameFile
		case d.Path == exact:
			rank = rankOtherFileExact
		default:
			rank = rankOtherFile
		}
		if rank < bestRank {
			best, bestRank = d, rank
		}
	}
	return best
}

// method resolves a method call by name. Indexed methods must agree on
// unsafety; otherwise the call stays unresolved.
func (r *Resolver) method(name string) (audit.Decl, bool) {
	var (
		found    bool
		isUnsafe bool
	)
	for _, d := range r.ix.declarations(name) {
		if d.Kind != store.KindMethod {
			continue
		}
		if found && d.Unsafe != isUnsafe {
			return audit.Decl{}, false
		}
		found, isUnsafe = true, d.Unsafe
	}
	if found {
		return audit.Decl{Unsafe: isUnsafe}, true
	}
	return r.ix.hint([]string{name}, true)
}

// methodReturn returns the return type shared by every indexed method named
// name.
func (r *Resolver) methodReturn(name string) (audit.TypeInfo, bool) {
	var (
		found bool
		kind  string
	)
	for _, d := range r.ix.declarations(name) {
		if d.Kind != store.KindMethod {
			continue
		}
		if found && d.TypeKind != kind {
			return audit.TypeInfo{}, false
		}
		found, kind = true, d.TypeKind
	}
	if !found {
		return audit.TypeInfo{}, false
	}
	return typeInfo(kind), true
}

// fieldType returns the type shared by every indexed struct field named
// name. Fields are only indexed when their type is a pointer or reference.
func (r *Resolver) fieldType(name string) (audit.TypeInfo, bool) {
	var (
		found bool
		kind  string
	)
	for _, d := range r.ix.declarations(name) {
		if d.Kind != store.KindField {
			continue
		}
		if found && d.TypeKind != kind {
			return audit.TypeInfo{}, false
		}
		found, kind = true, d.TypeKind
	}
	if !found {
		return audit.TypeInfo{}, false
	}
	return typeInfo(kind), true
}
