package audit

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/unsafels/internal/syntax"
)

// RefKind says how a resolved node is used.
type RefKind int

const (
	// RefValue is an identifier or path read or written as a value.
	RefValue RefKind = iota
	// RefCall is the target of a call expression.
	RefCall
	// RefMethod is a field_expression used as a method call target.
	RefMethod
)

// Decl holds the attributes of a resolved declaration that matter to the
// classifier.
type Decl struct {
	Foreign   bool
	Unsafe    bool
	StaticMut bool
}

// TypeKind is the coarse shape of an expression's type.
type TypeKind int

const (
	TypeOther TypeKind = iota
	TypePointer
	TypeReference
)

// TypeInfo describes an expression's type as far as the classifier cares.
type TypeInfo struct {
	Kind    TypeKind
	Mutable bool
}

// Resolver supplies declaration and type facts for nodes of one file. A
// false result means the fact is unknown; the node then gets no tag.
type Resolver interface {
	Resolve(n *sitter.Node, ref RefKind) (Decl, bool)
	TypeOf(n *sitter.Node) (TypeInfo, bool)
}

// TypeFromNode converts a syntactic type into a TypeInfo.
func TypeFromNode(n *sitter.Node) (TypeInfo, bool) {
	if n == nil || n.IsError() {
		return TypeInfo{}, false
	}
	switch n.Type() {
	case "pointer_type":
		return TypeInfo{Kind: TypePointer, Mutable: syntax.IsMutable(n)}, true
	case "reference_type":
		return TypeInfo{Kind: TypeReference, Mutable: syntax.IsMutable(n)}, true
	}
	return TypeInfo{Kind: TypeOther}, true
}

// skipSubtree lists nodes that can hold identifiers but never an unsafe
// action the classifier can see.
var skipSubtree = map[string]bool{
	"token_tree":               true,
	"use_declaration":          true,
	"attribute_item":           true,
	"inner_attribute_item":     true,
	"macro_definition":         true,
	"struct_item":              true,
	"enum_item":                true,
	"union_item":               true,
	"type_item":                true,
	"extern_crate_declaration": true,
	"line_comment":             true,
	"block_comment":            true,
}

var asmMacros = map[string]bool{
	"asm":        true,
	"global_asm": true,
	"llvm_asm":   true,
}

// Analyze locates the unsafe regions of f and fills in the actions each one
// owns.
func Analyze(f *syntax.File, res Resolver) ([]*Region, error) {
	regions, err := Locate(f)
	if err != nil {
		return nil, err
	}
	for _, r := range regions {
		r.Actions = Classify(f, r, res)
	}
	return regions, nil
}

// Classify returns the actions r directly owns, in source order. Descent
// stops at context-resetting items and at nested unsafe regions.
func Classify(f *syntax.File, r *Region, res Resolver) []Action {
	var actions []Action

	var visit func(n *sitter.Node)
	visit = func(n *sitter.Node) {
		if tags := classifyNode(f, n, res); !tags.Empty() {
			loc := f.Loc(n)
			actions = append(actions, Action{
				Kinds:   tags,
				Loc:     loc,
				Excerpt: f.Text(n),
				Line:    f.Line(loc.Line),
			})
		}
		for _, c := range syntax.NamedChildren(n) {
			if owned(c) {
				visit(c)
			}
		}
	}

	for _, c := range syntax.NamedChildren(r.body) {
		if owned(c) {
			visit(c)
		}
	}
	return actions
}

// owned reports whether n's subtree still belongs to the region being
// classified.
func owned(n *sitter.Node) bool {
	if skipSubtree[n.Type()] || syntax.IsContextReset(n) {
		return false
	}
	_, nested := regionKind(n)
	return !nested
}

func classifyNode(f *syntax.File, n *sitter.Node, res Resolver) KindSet {
	var tags KindSet
	switch n.Type() {
	case "unary_expression":
		if op := n.Child(0); op != nil && op.Type() == "*" {
			if t, ok := res.TypeOf(n.NamedChild(0)); ok && t.Kind == TypePointer {
				tags = tags.With(Deref)
			}
		}

	case "identifier", "scoped_identifier":
		if isValueReference(n) && !f.IsMacroName(n) {
			if d, ok := res.Resolve(n, RefValue); ok && d.StaticMut {
				tags = tags.With(StaticMutAccess)
			}
		}

	case "call_expression":
		tags |= classifyCall(f, n, res)

	case "macro_invocation":
		if m := n.ChildByFieldName("macro"); m != nil && asmMacros[lastSegment(f.Text(m))] {
			tags = tags.With(InlineAsm)
		}

	case "type_cast_expression":
		to, toOK := TypeFromNode(n.ChildByFieldName("type"))
		from, fromOK := res.TypeOf(n.ChildByFieldName("value"))
		if toOK && fromOK && isConstToMutPointer(from, to) {
			tags = tags.With(CastConstToMut)
		}
	}
	return tags
}

func classifyCall(f *syntax.File, call *sitter.Node, res Resolver) KindSet {
	target := call.ChildByFieldName("function")
	if target == nil {
		return 0
	}
	var typeArgs *sitter.Node
	if target.Type() == "generic_function" {
		typeArgs = target.ChildByFieldName("type_arguments")
		target = target.ChildByFieldName("function")
		if target == nil {
			return 0
		}
	}

	var (
		d  Decl
		ok bool
	)
	switch target.Type() {
	case "identifier", "scoped_identifier":
		if f.IsMacroName(target) {
			return 0
		}
		if lastSegment(f.Text(target)) == "transmute" {
			if args := expressions(call.ChildByFieldName("arguments")); len(args) == 1 {
				return classifyTransmute(call, typeArgs, args[0], res)
			}
		}
		d, ok = res.Resolve(target, RefCall)
	case "field_expression":
		d, ok = res.Resolve(target, RefMethod)
	default:
		return 0
	}
	if !ok {
		return 0
	}

	switch {
	case d.Foreign:
		return NewKindSet(Ffi, UnsafeCall)
	case d.Unsafe:
		return NewKindSet(UnsafeCall)
	}
	return 0
}

// classifyTransmute tags a one-argument transmute call. Source and target
// types come from the turbofish when present, otherwise from the argument's
// type and the annotation of the binding the result is assigned to.
func classifyTransmute(call, typeArgs, arg *sitter.Node, res Resolver) KindSet {
	var (
		from, to     TypeInfo
		fromOK, toOK bool
	)
	if typeArgs != nil {
		if ts := expressions(typeArgs); len(ts) == 2 {
			from, fromOK = TypeFromNode(ts[0])
			to, toOK = TypeFromNode(ts[1])
		}
	}
	if !fromOK {
		from, fromOK = res.TypeOf(arg)
	}
	if !toOK {
		to, toOK = expectedType(call)
	}

	if fromOK && toOK {
		switch {
		case from.Kind == TypeReference && !from.Mutable && to.Kind == TypeReference && to.Mutable:
			return NewKindSet(TransmuteRefToMut)
		case isConstToMutPointer(from, to):
			return NewKindSet(CastConstToMut)
		}
	}
	return NewKindSet(Transmute)
}

func isConstToMutPointer(from, to TypeInfo) bool {
	return from.Kind == TypePointer && !from.Mutable && to.Kind == TypePointer && to.Mutable
}

// expectedType returns the annotated type of the let binding n initializes.
func expectedType(n *sitter.Node) (TypeInfo, bool) {
	p := n.Parent()
	if p == nil || p.Type() != "let_declaration" || !syntax.IsField(p, n, "value") {
		return TypeInfo{}, false
	}
	return TypeFromNode(p.ChildByFieldName("type"))
}

// isValueReference reports whether an identifier or path node is used as a
// value, as opposed to naming a pattern binding, a definition, a macro, a
// path prefix, or a call target.
func isValueReference(n *sitter.Node) bool {
	p := n.Parent()
	if p == nil {
		return false
	}
	switch p.Type() {
	case "scoped_identifier", "scoped_type_identifier", "macro_invocation",
		"closure_parameters", "label", "lifetime", "field_pattern",
		"use_as_clause", "use_list", "scoped_use_list", "meta_item", "attribute":
		return false
	case "let_declaration", "parameter", "for_expression", "let_condition":
		return !syntax.IsField(p, n, "pattern")
	case "call_expression", "generic_function":
		return !syntax.IsField(p, n, "function")
	case "match_pattern":
		return syntax.IsField(p, n, "condition")
	}
	if strings.HasSuffix(p.Type(), "_pattern") {
		return false
	}
	return !syntax.IsField(p, n, "name")
}

// expressions returns the named children of n, comments excluded.
func expressions(n *sitter.Node) []*sitter.Node {
	if n == nil {
		return nil
	}
	var out []*sitter.Node
	for _, c := range syntax.NamedChildren(n) {
		if c.Type() != "line_comment" && c.Type() != "block_comment" {
			out = append(out, c)
		}
	}
	return out
}

func lastSegment(path string) string {
	segs := syntax.PathSegments(path)
	if len(segs) == 0 {
		return ""
	}
	return segs[len(segs)-1]
}
