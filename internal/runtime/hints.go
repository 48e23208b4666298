package runtime

import (
	"slices"
	"strings"
	"sync"

	"github.com/jward/unsafels/internal/audit"
	"github.com/jward/unsafels/internal/syntax"
)

type pathHint struct {
	segs []string
	decl audit.Decl
}

// Hints is a table of declaration attributes keyed by path. Declaring a
// path twice merges the attributes. Hints is safe for concurrent use.
type Hints struct {
	mu      sync.RWMutex
	paths   map[string][]pathHint // last segment → hints
	methods map[string]audit.Decl
	count   int
}

func NewHints() *Hints {
	return &Hints{
		paths:   make(map[string][]pathHint),
		methods: make(map[string]audit.Decl),
	}
}

// DeclareUnsafe marks the function at path as unsafe.
func (h *Hints) DeclareUnsafe(path string) {
	h.declare(path, audit.Decl{Unsafe: true})
}

// DeclareForeign marks the function at path as a foreign, and therefore
// unsafe, function.
func (h *Hints) DeclareForeign(path string) {
	h.declare(path, audit.Decl{Foreign: true, Unsafe: true})
}

// DeclareStaticMut marks the static at path as mutable.
func (h *Hints) DeclareStaticMut(path string) {
	h.declare(path, audit.Decl{StaticMut: true})
}

// DeclareUnsafeMethod marks every method called name as unsafe.
func (h *Hints) DeclareUnsafeMethod(name string) {
	name = strings.TrimSpace(name)
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.methods[name]; !ok {
		h.count++
	}
	h.methods[name] = audit.Decl{Unsafe: true}
}

func (h *Hints) declare(path string, d audit.Decl) {
	segs := syntax.PathSegments(path)
	if len(segs) == 0 {
		return
	}
	last := segs[len(segs)-1]

	h.mu.Lock()
	defer h.mu.Unlock()
	for i, ph := range h.paths[last] {
		if slices.Equal(ph.segs, segs) {
			h.paths[last][i].decl = merge(ph.decl, d)
			return
		}
	}
	h.paths[last] = append(h.paths[last], pathHint{segs: segs, decl: d})
	h.count++
}

// Lookup finds the hint for a reference path. An exact path match wins;
// otherwise the first hint whose path is a suffix of segs, or of which segs
// is a suffix, is used. A bare name never matches a qualified hint: callers
// qualify names brought in by `use` first, and any other bare name is some
// unrelated item. With method set, segs holds just a method name.
func (h *Hints) Lookup(segs []string, method bool) (audit.Decl, bool) {
	if len(segs) == 0 {
		return audit.Decl{}, false
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	if method {
		d, ok := h.methods[segs[len(segs)-1]]
		return d, ok
	}

	candidates := h.paths[segs[len(segs)-1]]
	for _, ph := range candidates {
		if slices.Equal(ph.segs, segs) {
			return ph.decl, true
		}
	}
	for _, ph := range candidates {
		if suffixOf(ph.segs, segs) || (len(segs) > 1 && suffixOf(segs, ph.segs)) {
			return ph.decl, true
		}
	}
	return audit.Decl{}, false
}

// Len returns the number of distinct hinted paths and methods.
func (h *Hints) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

func merge(a, b audit.Decl) audit.Decl {
	return audit.Decl{
		Foreign:   a.Foreign || b.Foreign,
		Unsafe:    a.Unsafe || b.Unsafe,
		StaticMut: a.StaticMut || b.StaticMut,
	}
}

// suffixOf reports whether short is a trailing subsequence of long.
func suffixOf(short, long []string) bool {
	if len(short) > len(long) {
		return false
	}
	return slices.Equal(short, long[len(long)-len(short):])
}
