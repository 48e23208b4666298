package syntax

import (
	"context"

	sitter "github.com/smacker/go-tree-sitter"
)

// exprMacros lists standard macros whose arguments are plain expressions.
var exprMacros = map[string]bool{
	"print":           true,
	"println":         true,
	"eprint":          true,
	"eprintln":        true,
	"format":          true,
	"format_args":     true,
	"write":           true,
	"writeln":         true,
	"panic":           true,
	"assert":          true,
	"assert_eq":       true,
	"assert_ne":       true,
	"debug_assert":    true,
	"debug_assert_eq": true,
	"debug_assert_ne": true,
	"unreachable":     true,
	"todo":            true,
	"unimplemented":   true,
	"dbg":             true,
	"vec":             true,
}

// maxMacroPasses bounds how deeply nested invocations are opened up.
const maxMacroPasses = 4

// openMacros reparses src with the invocations of expression macros
// rewritten into ordinary expressions, so their arguments appear in the tree
// as real nodes: `println!(a, b)` becomes the call `println (a, b)` and
// `vec![x; n]` the array `     [x; n]`. Byte offsets are unchanged, so the
// new tree still spans the original source. Each pass opens one level of
// nesting. If a rewrite does not parse cleanly, the last clean tree is kept.
func openMacros(ctx context.Context, parser *sitter.Parser, tree *sitter.Tree, src []byte) *sitter.Tree {
	text := src
	for range maxMacroPasses {
		next, changed := rewriteMacros(tree.RootNode(), text)
		if !changed {
			break
		}
		t, err := parser.ParseCtx(ctx, nil, next)
		if err != nil {
			break
		}
		if t.RootNode().HasError() {
			t.Close()
			break
		}
		tree.Close()
		tree, text = t, next
	}
	return tree
}

// rewriteMacros returns a copy of src with every expression macro
// invocation under root rewritten. changed is false when there is none.
func rewriteMacros(root *sitter.Node, src []byte) (out []byte, changed bool) {
	var visit func(n *sitter.Node)
	visit = func(n *sitter.Node) {
		if n.Type() == "macro_invocation" {
			if start, end, repl, ok := macroRewrite(n, src); ok {
				if out == nil {
					out = append([]byte(nil), src...)
				}
				for i := start; i < end; i++ {
					out[i] = repl
				}
				changed = true
			}
			return
		}
		for _, c := range NamedChildren(n) {
			visit(c)
		}
	}
	visit(root)
	return out, changed
}

// macroRewrite returns the byte range of n to overwrite and the byte to
// write. Parenthesized invocations lose the `!`; bracketed ones lose the
// macro name as well and become array expressions. Braced invocations are
// left alone.
func macroRewrite(n *sitter.Node, src []byte) (start, end uint32, repl byte, ok bool) {
	name := n.ChildByFieldName("macro")
	bang := ChildOfType(n, "!")
	args := ChildOfType(n, "token_tree")
	if name == nil || bang == nil || args == nil {
		return 0, 0, 0, false
	}
	segs := PathSegments(name.Content(src))
	if len(segs) == 0 || !exprMacros[segs[len(segs)-1]] {
		return 0, 0, 0, false
	}
	switch src[args.StartByte()] {
	case '(':
		return bang.StartByte(), bang.EndByte(), ' ', true
	case '[':
		return name.StartByte(), bang.EndByte(), ' ', true
	}
	return 0, 0, 0, false
}

// IsMacroName reports whether n names a macro. The targets of the calls
// Parse opens invocations into are such names.
func (f *File) IsMacroName(n *sitter.Node) bool {
	end := int(n.EndByte())
	return end < len(f.Source) && f.Source[end] == '!' && (n.Type() == "identifier" || n.Type() == "scoped_identifier")
}
