package unsafels

import (
	"context"
	"fmt"
	"sync"

	"github.com/jward/unsafels/internal/resolve"
	"github.com/jward/unsafels/internal/store"
	"github.com/jward/unsafels/internal/syntax"
)

// workItem holds everything a parallel extraction worker needs.
type workItem struct {
	path    string
	fileID  int64
	content []byte
	batch   *store.BatchedStore
}

// IndexFilesParallel indexes files using a three-phase parallel pipeline:
//
//	Phase A (serial):  Read, hash check, delete old data, prepare file records.
//	Phase B (parallel): Parse and extract into a BatchedStore per file.
//	Phase C (serial):  Commit batches to SQLite.
func (e *Engine) IndexFilesParallel(ctx context.Context, paths []string) error {
	var errs []error

	// ---- Phase A: Serial file preparation ----
	var items []workItem
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		item, skip, err := e.prepareFile(ctx, path)
		if err != nil {
			errs = append(errs, fmt.Errorf("prepare %s: %w", path, err))
			continue
		}
		if skip {
			continue
		}
		items = append(items, item)
	}

	// ---- Phase B: Parallel extraction ----
	numWorkers := e.numWorkers(len(items))

	workCh := make(chan workItem, len(items))
	for _, item := range items {
		workCh <- item
	}
	close(workCh)

	type result struct {
		item workItem
		n    int
		err  error
	}
	resultCh := make(chan result, len(items))

	var wg sync.WaitGroup
	for range numWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Each item writes to its own BatchedStore, so workers never
			// touch SQLite.
			for item := range workCh {
				n, err := e.extractFile(ctx, item)
				resultCh <- result{item: item, n: n, err: err}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	// ---- Phase C: Serial commit ----
	for res := range resultCh {
		if res.err != nil {
			_ = e.store.DeleteFile(res.item.fileID)
			errs = append(errs, fmt.Errorf("extract %s: %w", res.item.path, res.err))
			continue
		}
		if err := e.store.CommitBatch(res.item.fileID, res.item.batch); err != nil {
			_ = e.store.DeleteFile(res.item.fileID)
			errs = append(errs, fmt.Errorf("commit %s: %w", res.item.path, err))
			continue
		}
		e.logger.Debug("indexed", "file", res.item.path, "declarations", res.n)
	}

	if len(errs) > 0 {
		return fmt.Errorf("parallel indexing had %d error(s): %w", len(errs), errs[0])
	}
	return nil
}

// prepareFile does Phase A work for a single file: read, hash check,
// cleanup, file record. skip=true means the file is unchanged.
func (e *Engine) prepareFile(ctx context.Context, path string) (workItem, bool, error) {
	content, err := e.loader.Read(ctx, path)
	if err != nil {
		return workItem{}, false, err
	}
	hash, err := store.ContentHash(content)
	if err != nil {
		return workItem{}, false, fmt.Errorf("hash: %w", err)
	}

	existing, err := e.store.FileByPath(path)
	if err != nil {
		return workItem{}, false, fmt.Errorf("lookup file: %w", err)
	}
	if isUnchanged(existing, hash) {
		e.logger.Trace("unchanged", "file", path)
		return workItem{}, true, nil
	}
	if err := e.removeExisting(existing); err != nil {
		return workItem{}, false, err
	}

	fileID, err := e.insertFile(path, hash, content)
	if err != nil {
		return workItem{}, false, err
	}
	return workItem{
		path:    path,
		fileID:  fileID,
		content: content,
		batch:   store.NewBatchedStore(e.store),
	}, false, nil
}

// extractFile parses one file and extracts its declarations into the
// item's BatchedStore.
func (e *Engine) extractFile(ctx context.Context, item workItem) (int, error) {
	f, err := syntax.Parse(ctx, item.path, item.content)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return resolve.Extract(f, item.fileID, item.batch)
}
