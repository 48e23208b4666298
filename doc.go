// Package unsafels audits Rust source for unsafe code. It finds every unsafe
// block and unsafe fn, classifies the operations each one performs (raw
// pointer dereferences, static mut accesses, FFI and unsafe calls, inline
// assembly, transmutes, const-to-mut casts), and reports the regions whose
// actions match a [Selection].
//
// # Pipeline
//
// An [Engine] works in two phases:
//
//  1. Index: each input file is parsed with tree-sitter and the declarations
//     the classifier needs (functions, methods, foreign items, statics,
//     pointer-typed fields) are written to SQLite. Unchanged files are
//     skipped by content hash when the database persists between runs.
//
//  2. Audit: each file is parsed again, its unsafe regions are located, and
//     every expression a region owns is classified against the index, the
//     file's own scopes, and the hints declared by Risor scripts.
//
// # Usage
//
//	e, err := unsafels.New("", unsafels.WithWorkers(4))
//	if err != nil { ... }
//	defer e.Close()
//
//	ctx := context.Background()
//	if err := e.IndexFiles(ctx, paths); err != nil { ... }
//	reports, err := e.Audit(ctx, paths, unsafels.SelectAll)
//
// # Hints
//
// Code outside the inputs is described by Risor scripts calling
// declare_unsafe, declare_foreign, declare_static_mut and
// declare_unsafe_method. The scripts under scripts/hints are embedded and
// run unless [WithoutDefaultHints] is given; [WithHints] adds more.
package unsafels
