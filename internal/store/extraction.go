package store

import (
	"database/sql"
	"fmt"
)

// --- File operations ---

func (s *Store) InsertFile(f *File) (int64, error) {
	res, err := s.db.Exec(
		"INSERT INTO files (path, language, hash, line_count, last_indexed) VALUES (?, ?, ?, ?, ?)",
		f.Path, f.Language, f.Hash, f.LineCount, f.LastIndexed,
	)
	if err != nil {
		return 0, fmt.Errorf("insert file: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	f.ID = id
	return id, nil
}

func (s *Store) FileByPath(path string) (*File, error) {
	f := &File{}
	err := s.db.QueryRow(
		"SELECT id, path, language, hash, line_count, last_indexed FROM files WHERE path = ?", path,
	).Scan(&f.ID, &f.Path, &f.Language, &f.Hash, &f.LineCount, &f.LastIndexed)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("file by path: %w", err)
	}
	return f, nil
}

func (s *Store) Files() ([]*File, error) {
	rows, err := s.db.Query(
		"SELECT id, path, language, hash, line_count, last_indexed FROM files ORDER BY id",
	)
	if err != nil {
		return nil, fmt.Errorf("files: %w", err)
	}
	defer rows.Close()
	var files []*File
	for rows.Next() {
		f := &File{}
		if err := rows.Scan(&f.ID, &f.Path, &f.Language, &f.Hash, &f.LineCount, &f.LastIndexed); err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// --- Declaration operations ---

func (s *Store) InsertDeclaration(d *Declaration) (int64, error) {
	id, err := insertDeclarationTx(s.db, d)
	if err != nil {
		return 0, err
	}
	d.ID = id
	return id, nil
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func insertDeclarationTx(x execer, d *Declaration) (int64, error) {
	res, err := x.Exec(
		`INSERT INTO declarations (file_id, name, path, kind, is_unsafe, is_foreign, is_mutable,
			type_kind, start_line, start_col)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.FileID, d.Name, d.Path, d.Kind, d.Unsafe, d.Foreign, d.Mutable,
		d.TypeKind, d.StartLine, d.StartCol,
	)
	if err != nil {
		return 0, fmt.Errorf("insert declaration: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

// DeclarationCols is the column list for declaration queries.
const DeclarationCols = `id, file_id, name, path, kind, is_unsafe, is_foreign, is_mutable,
	type_kind, start_line, start_col`

func scanDeclaration(scanner interface{ Scan(...any) error }) (*Declaration, error) {
	d := &Declaration{}
	err := scanner.Scan(
		&d.ID, &d.FileID, &d.Name, &d.Path, &d.Kind, &d.Unsafe, &d.Foreign, &d.Mutable,
		&d.TypeKind, &d.StartLine, &d.StartCol,
	)
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (s *Store) queryDeclarations(query string, args ...any) ([]*Declaration, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var decls []*Declaration
	for rows.Next() {
		d, err := scanDeclaration(rows)
		if err != nil {
			return nil, fmt.Errorf("scan declaration: %w", err)
		}
		decls = append(decls, d)
	}
	return decls, rows.Err()
}

// DeclarationsByName returns every declaration with the given simple name,
// ordered by file then position.
func (s *Store) DeclarationsByName(name string) ([]*Declaration, error) {
	return s.queryDeclarations(
		"SELECT "+DeclarationCols+" FROM declarations WHERE name = ? ORDER BY file_id, start_line, start_col",
		name,
	)
}

func (s *Store) DeclarationsByFile(fileID int64) ([]*Declaration, error) {
	return s.queryDeclarations(
		"SELECT "+DeclarationCols+" FROM declarations WHERE file_id = ? ORDER BY start_line, start_col",
		fileID,
	)
}

// DeclarationsByKind returns declarations of the given kinds across all files.
func (s *Store) DeclarationsByKind(kinds ...string) ([]*Declaration, error) {
	if len(kinds) == 0 {
		return nil, nil
	}
	args := make([]any, len(kinds))
	for i, k := range kinds {
		args[i] = k
	}
	return s.queryDeclarations(
		"SELECT "+DeclarationCols+" FROM declarations WHERE kind IN ("+placeholderList(len(kinds))+
			") ORDER BY file_id, start_line, start_col",
		args...,
	)
}
