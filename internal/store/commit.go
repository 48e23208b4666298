package store

import "fmt"

// CommitBatch inserts every buffered declaration from batch into SQLite
// within a single transaction. Declarations whose FileID is zero or a fake
// (negative) placeholder are attributed to fileID. On success each buffered
// declaration carries its real ID.
func (s *Store) CommitBatch(fileID int64, batch *BatchedStore) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("commit batch: begin: %w", err)
	}
	defer tx.Rollback()

	batch.mu.Lock()
	defer batch.mu.Unlock()

	realIDs := make([]int64, len(batch.Declarations))
	for i := range batch.Declarations {
		d := batch.Declarations[i]
		if d.FileID <= 0 {
			d.FileID = fileID
		}
		realID, err := insertDeclarationTx(tx, &d)
		if err != nil {
			return fmt.Errorf("commit batch: declaration %q: %w", d.Path, err)
		}
		realIDs[i] = realID
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	for i := range batch.Declarations {
		batch.Declarations[i].ID = realIDs[i]
		if batch.Declarations[i].FileID <= 0 {
			batch.Declarations[i].FileID = fileID
		}
	}
	return nil
}
