package resolve

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/unsafels/internal/audit"
	"github.com/jward/unsafels/internal/runtime"
	"github.com/jward/unsafels/internal/store"
	"github.com/jward/unsafels/internal/syntax"
)

// =============================================================================
// Fixture
// =============================================================================

type fixture struct {
	s     *store.Store
	ix    *Index
	hints *runtime.Hints
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s, err := store.NewStore("")
	require.NoError(t, err)
	require.NoError(t, s.Migrate())
	t.Cleanup(func() { s.Close() })

	hints := runtime.NewHints()
	ix, err := NewIndex(s, hints, 0, nil)
	require.NoError(t, err)
	return &fixture{s: s, ix: ix, hints: hints}
}

func parse(t *testing.T, path, src string) *syntax.File {
	t.Helper()
	f, err := syntax.Parse(context.Background(), path, []byte(src))
	require.NoError(t, err)
	t.Cleanup(f.Close)
	return f
}

// add parses src, records it as path and extracts its declarations.
func (fx *fixture) add(t *testing.T, path, src string) (*syntax.File, int64) {
	t.Helper()
	f := parse(t, path, src)
	id, err := fx.s.InsertFile(&store.File{
		Path:        path,
		Language:    f.Language,
		LineCount:   f.LineCount(),
		LastIndexed: time.Now(),
	})
	require.NoError(t, err)
	_, err = Extract(f, id, fx.s)
	require.NoError(t, err)
	fx.ix.Purge()
	return f, id
}

// actions audits f and renders each action as "excerpt: kinds".
func (fx *fixture) actions(t *testing.T, f *syntax.File, id int64) []string {
	t.Helper()
	regions, err := audit.Analyze(f, fx.ix.ForFile(f, id))
	require.NoError(t, err)
	var out []string
	for _, r := range regions {
		for _, a := range r.Actions {
			out = append(out, a.Excerpt+": "+a.Kinds.String())
		}
	}
	return out
}

// letValue returns the initializer of the let binding named name.
func letValue(f *syntax.File, n *sitter.Node, name string) *sitter.Node {
	if n.Type() == "let_declaration" {
		if pat := n.ChildByFieldName("pattern"); pat != nil && f.Text(pat) == name {
			return n.ChildByFieldName("value")
		}
	}
	for _, c := range syntax.NamedChildren(n) {
		if v := letValue(f, c, name); v != nil {
			return v
		}
	}
	return nil
}

// =============================================================================
// Extraction
// =============================================================================

const extractSource = `mod ffi {
    extern "C" {
        pub fn abort();
        pub static errno: i32;
    }
}

static mut COUNTER: u32 = 0;
static LIMIT: u32 = 10;

pub unsafe fn raw() -> *const u8 {
    std::ptr::null()
}

struct Buf {
    ptr: *mut u8,
    len: usize,
    owner: &'static str,
}

impl Buf {
    unsafe fn get(&self) -> &mut u8 {
        &mut *self.ptr
    }
}

trait Reader {
    unsafe fn read_raw(&self);
}

fn outer() {
    fn inner() {}
}
`

type declSummary struct {
	Path     string
	Kind     string
	Unsafe   bool
	Foreign  bool
	Mutable  bool
	TypeKind string
	Line     int
}

func summarize(decls []*store.Declaration) []declSummary {
	var out []declSummary
	for _, d := range decls {
		out = append(out, declSummary{
			Path:     d.Path,
			Kind:     d.Kind,
			Unsafe:   d.Unsafe,
			Foreign:  d.Foreign,
			Mutable:  d.Mutable,
			TypeKind: d.TypeKind,
			Line:     d.StartLine,
		})
	}
	return out
}

func TestExtract(t *testing.T) {
	fx := newFixture(t)
	f := parse(t, "lib.rs", extractSource)
	id, err := fx.s.InsertFile(&store.File{Path: "lib.rs", Language: "rust"})
	require.NoError(t, err)

	n, err := Extract(f, id, fx.s)
	require.NoError(t, err)
	assert.Equal(t, 11, n)

	decls, err := fx.s.DeclarationsByFile(id)
	require.NoError(t, err)

	want := []declSummary{
		{Path: "ffi::abort", Kind: store.KindFunction, Unsafe: true, Foreign: true, Line: 3},
		{Path: "ffi::errno", Kind: store.KindStatic, Foreign: true, Mutable: true, Line: 4},
		{Path: "COUNTER", Kind: store.KindStatic, Mutable: true, Line: 8},
		{Path: "LIMIT", Kind: store.KindStatic, Line: 9},
		{Path: "raw", Kind: store.KindFunction, Unsafe: true, TypeKind: store.TypePtrConst, Line: 11},
		{Path: "Buf::ptr", Kind: store.KindField, TypeKind: store.TypePtrMut, Line: 16},
		{Path: "Buf::owner", Kind: store.KindField, TypeKind: store.TypeRef, Line: 18},
		{Path: "Buf::get", Kind: store.KindMethod, Unsafe: true, TypeKind: store.TypeRefMut, Line: 22},
		{Path: "Reader::read_raw", Kind: store.KindMethod, Unsafe: true, Line: 28},
		{Path: "outer", Kind: store.KindFunction, Line: 31},
		{Path: "inner", Kind: store.KindFunction, Line: 32},
	}
	if diff := cmp.Diff(want, summarize(decls)); diff != "" {
		t.Errorf("declarations mismatch (-want +got):\n%s", diff)
	}
}

func TestExtract_IntoBatch(t *testing.T) {
	fx := newFixture(t)
	f := parse(t, "lib.rs", extractSource)

	batch := store.NewBatchedStore(fx.s)
	n, err := Extract(f, 0, batch)
	require.NoError(t, err)
	assert.Equal(t, n, batch.Len())

	id, err := fx.s.InsertFile(&store.File{Path: "lib.rs", Language: "rust"})
	require.NoError(t, err)
	require.NoError(t, fx.s.CommitBatch(id, batch))

	decls, err := fx.s.DeclarationsByFile(id)
	require.NoError(t, err)
	assert.Len(t, decls, n)
}

// =============================================================================
// Resolution
// =============================================================================

func TestResolve_CrossFile(t *testing.T) {
	fx := newFixture(t)
	fx.add(t, "a.rs", `extern "C" {
    pub fn abort();
}

pub static mut COUNTER: u32 = 0;
pub static LIMIT: u32 = 3;

pub unsafe fn danger() {}
pub fn harmless() {}
`)
	f, id := fx.add(t, "b.rs", `fn main() {
    unsafe {
        abort();
        COUNTER += 1;
        let _ = LIMIT;
        danger();
        crate::a::danger();
        harmless();
    }
}
`)

	want := []string{
		"abort(): ffi, unsafe call",
		"COUNTER: static mut",
		"danger(): unsafe call",
		"crate::a::danger(): unsafe call",
	}
	assert.Equal(t, want, fx.actions(t, f, id))
}

func TestResolve_PrefersSameFile(t *testing.T) {
	fx := newFixture(t)
	fa, ida := fx.add(t, "a.rs", `pub unsafe fn helper() {}

fn a() {
    unsafe { helper(); }
}
`)
	fb, idb := fx.add(t, "b.rs", `pub fn helper() {}

fn b() {
    unsafe { helper(); }
}
`)

	assert.Equal(t, []string{"helper(): unsafe call"}, fx.actions(t, fa, ida))
	assert.Empty(t, fx.actions(t, fb, idb))
}

func TestResolve_LocalScopes(t *testing.T) {
	const globals = `unsafe fn danger() {}
`
	tests := []struct {
		name string
		body string
		want []string
	}{
		{
			name: "global",
			body: `fn main() {
    unsafe { danger(); }
}`,
			want: []string{"danger(): unsafe call"},
		},
		{
			name: "block item shadows global",
			body: `fn main() {
    fn danger() {}
    unsafe { danger(); }
}`,
		},
		{
			name: "let shadows global",
			body: `fn main() {
    let danger = || {};
    unsafe { danger(); }
}`,
		},
		{
			name: "let after reference does not shadow",
			body: `fn main() {
    unsafe { danger(); }
    let danger = || {};
    danger();
}`,
			want: []string{"danger(): unsafe call"},
		},
		{
			name: "parameter shadows global",
			body: `fn main(danger: fn()) {
    unsafe { danger(); }
}`,
		},
		{
			name: "closure parameter shadows global",
			body: `fn main() {
    let run = |danger: fn()| unsafe { danger() };
    run(|| {});
}`,
		},
		{
			name: "if let binding shadows global",
			body: `fn main() {
    let o = Some(|| {});
    if let Some(danger) = o {
        unsafe { danger(); }
    }
}`,
		},
		{
			name: "match arm binding shadows global",
			body: `fn main() {
    let o = Some(|| {});
    match o {
        Some(danger) => unsafe { danger() },
        None => {}
    }
}`,
		},
		{
			name: "for binding shadows global",
			body: `fn main() {
    for danger in [|| {}] {
        unsafe { danger(); }
    }
}`,
		},
		{
			name: "extern block in body",
			body: `fn main() {
    extern "C" {
        fn danger();
    }
    unsafe { danger(); }
}`,
			want: []string{"danger(): ffi, unsafe call"},
		},
		{
			name: "outer locals invisible to nested fn",
			body: `fn main() {
    let danger = || {};
    fn nested() {
        unsafe { danger(); }
    }
}`,
			want: []string{"danger(): unsafe call"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newFixture(t)
			f, id := fx.add(t, "main.rs", globals+tt.body+"\n")
			assert.Equal(t, tt.want, fx.actions(t, f, id))
		})
	}
}

func TestResolve_Methods(t *testing.T) {
	fx := newFixture(t)
	f, id := fx.add(t, "lib.rs", `struct A;
struct B;

impl A {
    unsafe fn poke(&self) {}
    unsafe fn run(&self) {}
}

impl B {
    fn run(&self) {}
}

fn main(a: A) {
    unsafe {
        a.poke();
        a.run();
        a.unknown();
    }
}
`)
	assert.Equal(t, []string{"a.poke(): unsafe call"}, fx.actions(t, f, id))
}

func TestResolve_Hints(t *testing.T) {
	fx := newFixture(t)
	fx.hints.DeclareUnsafe("ptr::read")
	fx.hints.DeclareForeign("libc::write")
	fx.hints.DeclareStaticMut("libc::environ")
	fx.hints.DeclareUnsafeMethod("get_unchecked")

	f, id := fx.add(t, "main.rs", `fn main() {
    let v = [1u8, 2, 3];
    let p = &v[0] as *const u8;
    unsafe {
        std::ptr::read(p);
        libc::write(1, p, 1);
        let _e = libc::environ;
        v.get_unchecked(0);
        v.len();
        *p;
    }
}
`)
	want := []string{
		"std::ptr::read(p): unsafe call",
		"libc::write(1, p, 1): ffi, unsafe call",
		"libc::environ: static mut",
		"v.get_unchecked(0): unsafe call",
		"*p: deref",
	}
	assert.Equal(t, want, fx.actions(t, f, id))
}

func TestResolve_Imports(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want []string
	}{
		{
			name: "safe std function imported by name",
			src: `use std::mem::swap;

static mut X: u32 = 0;

fn main() {
    let mut a = 1;
    let mut b = 2;
    unsafe {
        X += 1;
        swap(&mut a, &mut b);
    }
}`,
			want: []string{"X: static mut"},
		},
		{
			name: "qualified safe std function",
			src: `fn main() {
    let mut a = 1;
    unsafe { std::mem::replace(&mut a, 2); }
}`,
		},
		{
			name: "bare name without import",
			src: `fn main(p: *mut u8) {
    unsafe { write(p, 0); }
}`,
		},
		{
			name: "unsafe std function imported by name",
			src: `use std::ptr::read;

fn main(p: *const u8) {
    unsafe { read(p); }
}`,
			want: []string{"read(p): unsafe call"},
		},
		{
			name: "imported module",
			src: `use std::ptr;

fn main(p: *const u8) {
    unsafe { ptr::read(p); }
}`,
			want: []string{"ptr::read(p): unsafe call"},
		},
		{
			name: "alias",
			src: `use std::ptr::read as peek;

fn main(p: *const u8) {
    unsafe { peek(p); }
}`,
			want: []string{"peek(p): unsafe call"},
		},
		{
			name: "nested use list",
			src: `use std::{mem::replace, ptr::{self, write}};

fn main(p: *mut u8, q: *mut u8) {
    let mut a = 1;
    unsafe {
        replace(&mut a, 2);
        write(p, 0);
        ptr::swap(p, q);
    }
}`,
			want: []string{"write(p, 0): unsafe call", "ptr::swap(p, q): unsafe call"},
		},
		{
			name: "use inside function body",
			src: `fn main(p: *const u8) {
    use std::ptr::read;
    unsafe { read(p); }
}`,
			want: []string{"read(p): unsafe call"},
		},
		{
			name: "parent module import is not visible",
			src: `use std::ptr::read;

mod inner {
    fn f(p: *const u8) {
        unsafe { read(p); }
    }
}`,
		},
		{
			name: "imported foreign function",
			src: `use libc::abort;

fn main() {
    unsafe { abort(); }
}`,
			want: []string{"abort(): ffi, unsafe call"},
		},
		{
			name: "imported declaration from another module",
			src: `mod sys {
    pub unsafe fn poke() {}
}

mod app {
    use crate::sys::poke;

    fn run() {
        unsafe { poke(); }
    }
}`,
			want: []string{"poke(): unsafe call"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newFixture(t)
			fx.hints.DeclareUnsafe("ptr::read")
			fx.hints.DeclareUnsafe("ptr::write")
			fx.hints.DeclareUnsafe("ptr::swap")
			fx.hints.DeclareUnsafe("ptr::replace")
			fx.hints.DeclareForeign("libc::abort")

			f, id := fx.add(t, "main.rs", tt.src+"\n")
			if diff := cmp.Diff(tt.want, fx.actions(t, f, id)); diff != "" {
				t.Errorf("actions mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestResolve_SiblingModules(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want []string
	}{
		{
			name: "own module wins over earlier sibling",
			src: `mod a {
    pub unsafe fn f() {}
}

mod b {
    pub fn f() {}

    fn g(p: *const u8) {
        unsafe {
            let _ = *p;
            f();
        }
    }
}`,
			want: []string{"*p: deref"},
		},
		{
			name: "own module wins over later sibling",
			src: `mod a {
    pub fn f() {}
}

mod b {
    pub unsafe fn f() {}

    fn g() {
        unsafe { f(); }
    }
}`,
			want: []string{"f(): unsafe call"},
		},
		{
			name: "qualified path to sibling",
			src: `mod a {
    pub unsafe fn f() {}
}

mod b {
    pub fn f() {}

    fn g() {
        unsafe { crate::a::f(); }
    }
}`,
			want: []string{"crate::a::f(): unsafe call"},
		},
		{
			name: "crate root wins over nested module",
			src: `mod b {
    pub fn f() {}
}

unsafe fn f() {}

fn main() {
    unsafe { f(); }
}`,
			want: []string{"f(): unsafe call"},
		},
		{
			name: "statics",
			src: `mod a {
    pub static mut N: u32 = 0;
}

mod b {
    pub static N: u32 = 0;

    fn g() {
        unsafe { let _ = N; }
    }
}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newFixture(t)
			f, id := fx.add(t, "lib.rs", tt.src+"\n")
			if diff := cmp.Diff(tt.want, fx.actions(t, f, id)); diff != "" {
				t.Errorf("actions mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestResolve_IndexBeatsHints(t *testing.T) {
	fx := newFixture(t)
	fx.hints.DeclareUnsafe("read")
	f, id := fx.add(t, "main.rs", `fn read() {}

fn main() {
    unsafe { read(); }
}
`)
	assert.Empty(t, fx.actions(t, f, id))
}

func TestResolve_TransmuteAndCasts(t *testing.T) {
	fx := newFixture(t)
	f, id := fx.add(t, "main.rs", `struct Holder {
    p: *const u8,
}

fn make() -> *mut u8 {
    std::ptr::null_mut()
}

fn main(h: Holder) {
    let v = 0u8;
    let r = &v;
    let p = r as *const u8;
    unsafe {
        let _m: &mut u8 = std::mem::transmute(r);
        let _q: *mut u8 = std::mem::transmute(p);
        let _n: u32 = std::mem::transmute(v);
        let _c = p as *mut u8;
        let _d = *h.p;
        let _e = *make();
    }
}
`)
	want := []string{
		"std::mem::transmute(r): transmute & to &mut",
		"std::mem::transmute(p): cast *const to *mut",
		"std::mem::transmute(v): transmute",
		"p as *mut u8: cast *const to *mut",
		"*h.p: deref",
		"*make(): deref",
	}
	assert.Equal(t, want, fx.actions(t, f, id))
}

func TestResolve_StaleCacheUntilPurge(t *testing.T) {
	fx := newFixture(t)
	f, id := fx.add(t, "main.rs", `fn main() {
    unsafe { late(); }
}
`)
	assert.Empty(t, fx.actions(t, f, id))

	other := parse(t, "late.rs", "pub unsafe fn late() {}\n")
	otherID, err := fx.s.InsertFile(&store.File{Path: "late.rs", Language: "rust"})
	require.NoError(t, err)
	_, err = Extract(other, otherID, fx.s)
	require.NoError(t, err)

	assert.Empty(t, fx.actions(t, f, id), "cached miss survives until Purge")
	fx.ix.Purge()
	assert.Equal(t, []string{"late(): unsafe call"}, fx.actions(t, f, id))
}

// =============================================================================
// Types
// =============================================================================

func TestTypeOf(t *testing.T) {
	const template = `struct Holder {
    p: *const u8,
}

fn make() -> *mut u8 {
    std::ptr::null_mut()
}

fn main() {
    let v = [0u8; 4];
    let r = &v;
    let h = Holder { p: std::ptr::null() };
    let target = %s;
}
`
	var (
		constRef = audit.TypeInfo{Kind: audit.TypeReference}
		mutRef   = audit.TypeInfo{Kind: audit.TypeReference, Mutable: true}
	)
	tests := []struct {
		expr string
		want audit.TypeInfo
		ok   bool
	}{
		{"v.as_ptr()", constPtr, true},
		{"v.as_mut_ptr()", mutPtr, true},
		{"v.as_ptr().add(1)", constPtr, true},
		{"v.as_mut_ptr().cast::<u32>()", mutPtr, true},
		{"(v.as_ptr())", constPtr, true},
		{"v.as_ptr() as *mut u8", mutPtr, true},
		{"std::ptr::null::<u8>()", constPtr, true},
		{"std::ptr::null_mut()", mutPtr, true},
		{"Box::into_raw(Box::new(1))", mutPtr, true},
		{"std::ptr::addr_of!(v)", constPtr, true},
		{"make()", mutPtr, true},
		{"h.p", constPtr, true},
		{"r", constRef, true},
		{"&mut 0u8", mutRef, true},
		{"v", audit.TypeInfo{}, false},
		{"unknown()", audit.TypeInfo{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			fx := newFixture(t)
			f, id := fx.add(t, "main.rs", fmt.Sprintf(template, tt.expr))
			n := letValue(f, f.Root(), "target")
			require.NotNil(t, n)

			got, ok := fx.ix.ForFile(f, id).TypeOf(n)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPathMatches(t *testing.T) {
	tests := []struct {
		ref  []string
		decl string
		want bool
	}{
		{[]string{"abort"}, "abort", true},
		{[]string{"ffi", "abort"}, "abort", true},
		{[]string{"abort"}, "ffi::abort", true},
		{[]string{"ffi", "abort"}, "ffi::abort", true},
		{[]string{"sys", "abort"}, "ffi::abort", false},
		{[]string{"Buf", "get"}, "Buf::get", true},
		{[]string{"Vec", "get"}, "Buf::get", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, pathMatches(tt.ref, tt.decl), "%v vs %s", tt.ref, tt.decl)
	}
}

func TestTypeInfo(t *testing.T) {
	assert.Equal(t, constPtr, typeInfo(store.TypePtrConst))
	assert.Equal(t, mutPtr, typeInfo(store.TypePtrMut))
	assert.Equal(t, audit.TypeInfo{Kind: audit.TypeReference}, typeInfo(store.TypeRef))
	assert.Equal(t, audit.TypeInfo{Kind: audit.TypeReference, Mutable: true}, typeInfo(store.TypeRefMut))
	assert.Equal(t, audit.TypeInfo{Kind: audit.TypeOther}, typeInfo(""))
}
