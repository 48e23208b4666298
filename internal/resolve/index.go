// Package resolve answers the auditor's questions about names and types.
// It combines a lexical walk of the current file, the declaration index of
// every input file, and hints for code outside the inputs.
package resolve

import (
	"strings"

	"github.com/hashicorp/go-hclog"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/jward/unsafels/internal/audit"
	"github.com/jward/unsafels/internal/store"
	"github.com/jward/unsafels/internal/syntax"
)

// DefaultCacheSize is the number of names whose declarations are cached.
const DefaultCacheSize = 4096

// Hints supplies attributes for paths that have no declaration among the
// inputs. method selects method-name hints rather than path hints.
type Hints interface {
	Lookup(segs []string, method bool) (audit.Decl, bool)
}

// Index resolves names against a declaration store. It is safe for
// concurrent use once extraction has been committed.
type Index struct {
	store  *store.Store
	hints  Hints
	logger hclog.Logger
	byName *lru.Cache[string, []*store.Declaration]
}

// NewIndex returns an Index over s. hints may be nil.
func NewIndex(s *store.Store, hints Hints, cacheSize int, logger hclog.Logger) (*Index, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[string, []*store.Declaration](cacheSize)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Index{store: s, hints: hints, logger: logger, byName: cache}, nil
}

// Purge drops cached lookups. Call it after the store changes.
func (ix *Index) Purge() {
	ix.byName.Purge()
}

// ForFile returns a resolver for nodes of f. fileID is f's row in the store,
// used to prefer same-file declarations.
func (ix *Index) ForFile(f *syntax.File, fileID int64) *Resolver {
	return &Resolver{ix: ix, f: f, fileID: fileID}
}

// declarations returns every indexed declaration named name. Store errors
// are resolution gaps: they are logged and yield no candidates.
func (ix *Index) declarations(name string) []*store.Declaration {
	if decls, ok := ix.byName.Get(name); ok {
		return decls
	}
	decls, err := ix.store.DeclarationsByName(name)
	if err != nil {
		ix.logger.Debug("declaration lookup failed", "name", name, "error", err)
		return nil
	}
	ix.byName.Add(name, decls)
	return decls
}

func (ix *Index) hint(segs []string, method bool) (audit.Decl, bool) {
	if ix.hints == nil || len(segs) == 0 {
		return audit.Decl{}, false
	}
	return ix.hints.Lookup(segs, method)
}

// pathMatches reports whether a reference path and a declaration path name
// the same item, allowing either to be qualified further than the other.
func pathMatches(ref []string, decl string) bool {
	d := strings.Split(decl, "::")
	short, long := ref, d
	if len(short) > len(long) {
		short, long = long, short
	}
	off := len(long) - len(short)
	for i := range short {
		if short[i] != long[off+i] {
			return false
		}
	}
	return true
}

// typeInfo converts a store type kind into the classifier's view.
func typeInfo(kind string) audit.TypeInfo {
	switch kind {
	case store.TypePtrConst:
		return audit.TypeInfo{Kind: audit.TypePointer}
	case store.TypePtrMut:
		return audit.TypeInfo{Kind: audit.TypePointer, Mutable: true}
	case store.TypeRef:
		return audit.TypeInfo{Kind: audit.TypeReference}
	case store.TypeRefMut:
		return audit.TypeInfo{Kind: audit.TypeReference, Mutable: true}
	}
	return audit.TypeInfo{Kind: audit.TypeOther}
}
