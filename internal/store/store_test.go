package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate())
	t.Cleanup(func() { s.Close() })
	return s
}

// insertTestFile is a helper that inserts a file and returns it with ID set.
func insertTestFile(t *testing.T, s *Store, path string) *File {
	t.Helper()
	f := &File{Path: path, Language: "rust", Hash: "abc123", LineCount: 10, LastIndexed: time.Now().Truncate(time.Second)}
	id, err := s.InsertFile(f)
	require.NoError(t, err)
	require.Positive(t, id)
	return f
}

func insertTestDecl(t *testing.T, s *Store, fileID int64, path, kind string) *Declaration {
	t.Helper()
	d := &Declaration{FileID: fileID, Name: lastSegment(path), Path: path, Kind: kind, StartLine: 1, StartCol: 1}
	id, err := s.InsertDeclaration(d)
	require.NoError(t, err)
	require.Positive(t, id)
	return d
}

func lastSegment(path string) string {
	for i := len(path) - 1; i > 0; i-- {
		if path[i] == ':' && path[i-1] == ':' {
			return path[i+1:]
		}
	}
	return path
}

// =============================================================================
// Schema & Lifecycle
// =============================================================================

func TestMigrate_AllTablesExist(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	for _, table := range []string{"files", "declarations"} {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
		assert.Equal(t, table, name)
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	// Running migrate again should not error.
	require.NoError(t, s.Migrate())
}

func TestMigrate_WALMode(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	var mode string
	err := s.db.QueryRow("PRAGMA journal_mode").Scan(&mode)
	require.NoError(t, err)
	assert.Equal(t, "wal", mode)
}

func TestNewStore_InMemory(t *testing.T) {
	t.Parallel()
	s, err := NewStore("")
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Migrate())

	f := insertTestFile(t, s, "mem.rs")
	got, err := s.FileByPath("mem.rs")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, f.ID, got.ID)
}

// =============================================================================
// File operations
// =============================================================================

func TestFile_InsertAndRetrieve(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	now := time.Now().Truncate(time.Second)
	f := &File{Path: "/src/lib.rs", Language: "rust", Hash: "00ff", LineCount: 42, LastIndexed: now}
	id, err := s.InsertFile(f)
	require.NoError(t, err)
	require.Positive(t, id)

	got, err := s.FileByPath("/src/lib.rs")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, "/src/lib.rs", got.Path)
	assert.Equal(t, "rust", got.Language)
	assert.Equal(t, "00ff", got.Hash)
	assert.Equal(t, 42, got.LineCount)
}

func TestFile_ByPathNotFound(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	got, err := s.FileByPath("/nonexistent")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestFile_DuplicatePath(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	insertTestFile(t, s, "/a.rs")
	_, err := s.InsertFile(&File{Path: "/a.rs", Language: "rust"})
	assert.Error(t, err)
}

func TestFiles_Ordered(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	insertTestFile(t, s, "/b.rs")
	insertTestFile(t, s, "/a.rs")

	files, err := s.Files()
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "/b.rs", files[0].Path)
	assert.Equal(t, "/a.rs", files[1].Path)
}

// =============================================================================
// Declaration operations
// =============================================================================

func TestDeclaration_InsertAndQueryByFile(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	f := insertTestFile(t, s, "/lib.rs")

	d := &Declaration{
		FileID: f.ID, Name: "abort", Path: "ffi::abort", Kind: KindFunction,
		Unsafe: true, Foreign: true, StartLine: 3, StartCol: 5,
	}
	_, err := s.InsertDeclaration(d)
	require.NoError(t, err)
	insertTestDecl(t, s, f.ID, "COUNTER", KindStatic)

	decls, err := s.DeclarationsByFile(f.ID)
	require.NoError(t, err)
	require.Len(t, decls, 2)
	assert.Equal(t, "COUNTER", decls[0].Name, "ordered by position")
	assert.Equal(t, *d, *decls[1])
}

func TestDeclaration_QueryByName(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	a := insertTestFile(t, s, "/a.rs")
	b := insertTestFile(t, s, "/b.rs")
	insertTestDecl(t, s, a.ID, "ffi::abort", KindFunction)
	insertTestDecl(t, s, b.ID, "abort", KindFunction)
	insertTestDecl(t, s, b.ID, "exit", KindFunction)

	decls, err := s.DeclarationsByName("abort")
	require.NoError(t, err)
	require.Len(t, decls, 2)
	assert.Equal(t, "ffi::abort", decls[0].Path)
	assert.Equal(t, "abort", decls[1].Path)
}

func TestDeclaration_QueryByKind(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	f := insertTestFile(t, s, "/a.rs")
	insertTestDecl(t, s, f.ID, "COUNTER", KindStatic)
	insertTestDecl(t, s, f.ID, "Buf::get", KindMethod)
	insertTestDecl(t, s, f.ID, "run", KindFunction)

	decls, err := s.DeclarationsByKind(KindStatic, KindMethod)
	require.NoError(t, err)
	assert.Len(t, decls, 2)

	none, err := s.DeclarationsByKind()
	require.NoError(t, err)
	assert.Empty(t, none)
}

// =============================================================================
// DeleteFileData (transactional re-index)
// =============================================================================

func TestDeleteFileData(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	f := insertTestFile(t, s, "/main.rs")
	other := insertTestFile(t, s, "/other.rs")
	insertTestDecl(t, s, f.ID, "run", KindFunction)
	insertTestDecl(t, s, other.ID, "keep", KindFunction)

	require.NoError(t, s.DeleteFileData(f.ID))

	decls, err := s.DeclarationsByFile(f.ID)
	require.NoError(t, err)
	assert.Empty(t, decls)

	kept, err := s.DeclarationsByFile(other.ID)
	require.NoError(t, err)
	assert.Len(t, kept, 1)

	got, err := s.FileByPath("/main.rs")
	require.NoError(t, err)
	assert.NotNil(t, got, "file row survives")
}

func TestDeleteFile(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	f := insertTestFile(t, s, "/main.rs")
	insertTestDecl(t, s, f.ID, "run", KindFunction)

	require.NoError(t, s.DeleteFile(f.ID))

	got, err := s.FileByPath("/main.rs")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDeleteFileData_ReindexWithNewData(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	f := insertTestFile(t, s, "/main.rs")

	insertTestDecl(t, s, f.ID, "old_fn", KindFunction)
	require.NoError(t, s.DeleteFileData(f.ID))
	insertTestDecl(t, s, f.ID, "new_fn", KindFunction)

	decls, err := s.DeclarationsByFile(f.ID)
	require.NoError(t, err)
	require.Len(t, decls, 1)
	assert.Equal(t, "new_fn", decls[0].Name)
}

// =============================================================================
// Content hash
// =============================================================================

func TestContentHash(t *testing.T) {
	t.Parallel()
	a, err := ContentHash([]byte("fn main() {}"))
	require.NoError(t, err)
	b, err := ContentHash([]byte("fn main() {}"))
	require.NoError(t, err)
	c, err := ContentHash([]byte("fn main() { }"))
	require.NoError(t, err)

	assert.Len(t, a, 16)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestPlaceholderList(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "", placeholderList(0))
	assert.Equal(t, "?", placeholderList(1))
	assert.Equal(t, "?,?,?", placeholderList(3))
}
