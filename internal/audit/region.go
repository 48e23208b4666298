// Package audit locates unsafe regions in a parsed Rust file, classifies
// the unsafe actions each region directly owns, and selects what to report.
//
// Name and type resolution is supplied by the caller through Resolver, so
// the package depends on nothing but the syntax tree.
package audit

import (
	"errors"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/unsafels/internal/syntax"
)

// ErrInconsistent reports a tree that violates the locator's assumptions.
// It indicates a defect, not bad input, and aborts the file's analysis.
var ErrInconsistent = errors.New("audit: internal consistency violation")

// RegionKind distinguishes unsafe functions from unsafe blocks.
type RegionKind int

const (
	Function RegionKind = iota
	Block
)

func (k RegionKind) String() string {
	if k == Function {
		return "fn"
	}
	return "block"
}

// Region is one unsafe function or unsafe block. Actions holds only what the
// region owns directly; content of nested regions and of context-resetting
// items is never included.
type Region struct {
	Kind    RegionKind
	Loc     syntax.Location
	Parent  *Region
	Actions []Action

	node *sitter.Node
	body *sitter.Node
}

// Action is one classified unsafe operation.
type Action struct {
	Kinds   KindSet
	Loc     syntax.Location
	Excerpt string
	// Line is the full source line the action starts on.
	Line string
}

// Depth returns the number of ancestors of r.
func (r *Region) Depth() int {
	d := 0
	for p := r.Parent; p != nil; p = p.Parent {
		d++
	}
	return d
}

// Locate returns the unsafe regions of f in source order. Each region's
// parent is the nearest region that syntactically encloses it, whether or
// not a context-resetting item lies in between.
func Locate(f *syntax.File) ([]*Region, error) {
	var regions []*Region

	var walk func(n *sitter.Node, parent *Region) error
	walk = func(n *sitter.Node, parent *Region) error {
		if kind, ok := regionKind(n); ok {
			body := syntax.Body(n)
			if body == nil {
				return fmt.Errorf("%w: %s at %s has no body", ErrInconsistent, n.Type(), f.Loc(n))
			}
			r := &Region{Kind: kind, Loc: f.Loc(n), Parent: parent, node: n, body: body}
			regions = append(regions, r)
			parent = r
		}
		for _, c := range syntax.NamedChildren(n) {
			if err := walk(c, parent); err != nil {
				return err
			}
		}
		return nil
	}

	if err := walk(f.Root(), nil); err != nil {
		return nil, err
	}
	if err := checkTree(regions); err != nil {
		return nil, err
	}
	return regions, nil
}

func regionKind(n *sitter.Node) (RegionKind, bool) {
	switch {
	case n.Type() == "function_item" && syntax.IsUnsafeFunction(n):
		return Function, true
	case syntax.IsUnsafeBlock(n):
		return Block, true
	}
	return 0, false
}

// checkTree verifies that every parent link points into regions and that no
// parent chain loops.
func checkTree(regions []*Region) error {
	known := make(map[*Region]bool, len(regions))
	for _, r := range regions {
		known[r] = true
	}
	for _, r := range regions {
		steps := 0
		for p := r.Parent; p != nil; p = p.Parent {
			if !known[p] {
				return fmt.Errorf("%w: region at %s has a foreign parent", ErrInconsistent, r.Loc)
			}
			steps++
			if steps > len(regions) {
				return fmt.Errorf("%w: region at %s is part of a cycle", ErrInconsistent, r.Loc)
			}
		}
	}
	return nil
}
