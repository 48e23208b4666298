// Package syntax adapts tree-sitter's Rust grammar for the auditor: it
// parses source files, attaches spans to nodes, and offers the small set of
// node predicates the region locator, classifier, and resolver share.
package syntax

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
)

// ErrSyntax is returned for source that tree-sitter could only parse with
// error recovery. Such trees are never handed to the auditor.
var ErrSyntax = errors.New("syntax error")

// Location is a position in a source file. Line and Col are 1-based, Offset
// is the 0-based byte offset.
type Location struct {
	Line   int `json:"line"`
	Col    int `json:"col"`
	Offset int `json:"offset"`
}

func (l Location) String() string {
	return fmt.Sprintf("%d:%d", l.Line, l.Col)
}

// File is a parsed source file. It is immutable once Parse returns.
type File struct {
	Path     string
	Language string
	Source   []byte

	// Tree spans Source, with the arguments of expression macros such as
	// println! and vec! parsed as ordinary expressions.
	Tree *sitter.Tree

	lineStarts []int
}

// Parse parses src as Rust. path is only used for labelling.
func Parse(ctx context.Context, path string, src []byte) (*File, error) {
	lang := "rust"
	if l, ok := LanguageForFile(path); ok {
		lang = l
	}
	grammar, ok := ParserForLanguage(lang)
	if !ok {
		return nil, fmt.Errorf("parse %s: unsupported language %q", path, lang)
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(grammar)

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	f := &File{
		Path:       path,
		Language:   lang,
		Source:     src,
		Tree:       tree,
		lineStarts: lineStarts(src),
	}

	root := tree.RootNode()
	if root.HasError() {
		loc := f.Loc(root)
		if bad := firstError(root); bad != nil {
			loc = f.Loc(bad)
		}
		tree.Close()
		return nil, fmt.Errorf("parse %s: %w at %s", path, ErrSyntax, loc)
	}
	f.Tree = openMacros(ctx, parser, tree, src)
	return f, nil
}

// Close releases the tree-sitter tree. Nodes obtained from the file must
// not be used afterwards.
func (f *File) Close() {
	if f.Tree != nil {
		f.Tree.Close()
	}
}

// Root returns the root node of the file.
func (f *File) Root() *sitter.Node {
	return f.Tree.RootNode()
}

// Text returns the literal source text spanned by n.
func (f *File) Text(n *sitter.Node) string {
	return n.Content(f.Source)
}

// Loc returns the start location of n.
func (f *File) Loc(n *sitter.Node) Location {
	p := n.StartPoint()
	return Location{
		Line:   int(p.Row) + 1,
		Col:    int(p.Column) + 1,
		Offset: int(n.StartByte()),
	}
}

// LineCount returns the number of lines in the file.
func (f *File) LineCount() int {
	return len(f.lineStarts)
}

// Line returns the text of the 1-based line, without its terminator.
// Out-of-range lines return "".
func (f *File) Line(line int) string {
	if line < 1 || line > len(f.lineStarts) {
		return ""
	}
	start := f.lineStarts[line-1]
	end := len(f.Source)
	if line < len(f.lineStarts) {
		end = f.lineStarts[line] - 1
	}
	return string(bytes.TrimRight(f.Source[start:end], "\r"))
}

func lineStarts(src []byte) []int {
	starts := []int{0}
	for i, b := range src {
		if b == '\n' {
			starts = append(starts, i+1)
		}
	}
	return starts
}

// firstError returns the first ERROR or MISSING node in source order.
func firstError(n *sitter.Node) *sitter.Node {
	if n.IsError() || n.IsMissing() {
		return n
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		if child == nil || !(child.HasError() || child.IsMissing()) {
			continue
		}
		if bad := firstError(child); bad != nil {
			return bad
		}
	}
	return nil
}
