package store

import "time"

// Declaration kinds.
const (
	KindFunction = "function"
	KindMethod   = "method"
	KindStatic   = "static"
	KindField    = "field"
)

// Type kinds describe the shape of a declared type: a static's or field's
// own type, or a function's return type. Empty means "not a pointer or
// reference", which is all the classifier needs to know.
const (
	TypePtrConst = "ptr_const"
	TypePtrMut   = "ptr_mut"
	TypeRef      = "ref"
	TypeRefMut   = "ref_mut"
)

type File struct {
	ID          int64
	Path        string
	Language    string
	Hash        string
	LineCount   int
	LastIndexed time.Time
}

// Declaration is one item an expression may resolve to. Path is the
// qualified name inside its file: module nesting for free items
// (`ffi::abort`) and the impl or trait type for methods (`Buffer::get_raw`).
type Declaration struct {
	ID        int64
	FileID    int64
	Name      string
	Path      string
	Kind      string
	Unsafe    bool
	Foreign   bool
	Mutable   bool
	TypeKind  string
	StartLine int
	StartCol  int
}
