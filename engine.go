package unsafels

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	goruntime "runtime"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/viant/afs"
	"golang.org/x/sync/errgroup"

	"github.com/jward/unsafels/internal/audit"
	"github.com/jward/unsafels/internal/resolve"
	"github.com/jward/unsafels/internal/runtime"
	"github.com/jward/unsafels/internal/store"
	"github.com/jward/unsafels/internal/syntax"
	"github.com/jward/unsafels/scripts"
)

// Engine indexes and audits Rust files.
type Engine struct {
	store   *store.Store
	runtime *runtime.Runtime
	index   *resolve.Index
	loader  *syntax.Loader
	logger  hclog.Logger

	fs           afs.Service
	hintScripts  []string
	hintsFS      fs.FS
	defaultHints bool
	cacheSize    int

	// useParallel enables the worker-pool extraction pipeline.
	useParallel bool
	// workers bounds extraction and audit concurrency; 0 means NumCPU.
	workers int
}

// Option configures an Engine.
type Option func(*Engine)

// WithParallel controls parallel extraction. When true (default), IndexFiles
// parses and extracts on a worker pool and commits batches to SQLite from a
// single goroutine. Set to false for serial mode.
func WithParallel(parallel bool) Option {
	return func(e *Engine) {
		e.useParallel = parallel
	}
}

// WithWorkers bounds the number of files processed at once. n <= 0 means
// one worker per CPU.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		e.workers = n
	}
}

// WithHints adds hint scripts, run after the default ones.
func WithHints(paths ...string) Option {
	return func(e *Engine) {
		e.hintScripts = append(e.hintScripts, paths...)
	}
}

// WithHintsFS loads the scripts given to WithHints from fsys instead of
// from disk.
func WithHintsFS(fsys fs.FS) Option {
	return func(e *Engine) {
		e.hintsFS = fsys
	}
}

// WithoutDefaultHints skips the embedded standard-library hints.
func WithoutDefaultHints() Option {
	return func(e *Engine) {
		e.defaultHints = false
	}
}

// WithLogger sets the Engine's logger. The default discards everything.
func WithLogger(l hclog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithFileSystem reads sources through fs instead of the local disk.
func WithFileSystem(fs afs.Service) Option {
	return func(e *Engine) {
		e.fs = fs
	}
}

// WithCacheSize sets how many names the resolver keeps cached.
func WithCacheSize(n int) Option {
	return func(e *Engine) {
		e.cacheSize = n
	}
}

// New creates an Engine backed by a SQLite database at dbPath. An empty
// dbPath keeps the index in memory for the lifetime of the Engine.
// Hint scripts run before New returns.
func New(dbPath string, opts ...Option) (*Engine, error) {
	s, err := store.NewStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("unsafels: open store: %w", err)
	}
	if err := s.Migrate(); err != nil {
		s.Close()
		return nil, fmt.Errorf("unsafels: migrate: %w", err)
	}

	e := &Engine{
		store:        s,
		logger:       hclog.NewNullLogger(),
		defaultHints: true,
		useParallel:  true,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.loader = syntax.NewLoader(e.fs)

	hints := runtime.NewHints()
	if err := e.loadHints(hints); err != nil {
		s.Close()
		return nil, err
	}

	e.index, err = resolve.NewIndex(s, hints, e.cacheSize, e.logger.Named("resolve"))
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("unsafels: create index: %w", err)
	}
	return e, nil
}

// loadHints runs the embedded hint scripts, then the user's.
func (e *Engine) loadHints(hints *runtime.Hints) error {
	ctx := context.Background()
	logOpt := runtime.WithRuntimeLogger(e.logger.Named("hints"))

	if e.defaultHints {
		rt := runtime.NewRuntime(hints, "", runtime.WithRuntimeFS(scripts.FS), logOpt)
		for _, p := range scripts.DefaultHints {
			if err := rt.RunScript(ctx, p, nil); err != nil {
				return fmt.Errorf("unsafels: default hints: %w", err)
			}
		}
	}

	rtOpts := []runtime.RuntimeOption{logOpt}
	if e.hintsFS != nil {
		rtOpts = append(rtOpts, runtime.WithRuntimeFS(e.hintsFS))
	}
	e.runtime = runtime.NewRuntime(hints, "", rtOpts...)
	for _, p := range e.hintScripts {
		if err := e.runtime.RunScript(ctx, p, nil); err != nil {
			return fmt.Errorf("unsafels: hints: %w", err)
		}
	}
	e.logger.Debug("hints loaded", "count", hints.Len())
	return nil
}

// Close releases the Engine's database resources.
func (e *Engine) Close() error {
	return e.store.Close()
}

// Store returns the underlying Store for direct access.
func (e *Engine) Store() *Store {
	return e.store
}

// Hints returns the hint table scripts declared into.
func (e *Engine) Hints() *Hints {
	return e.runtime.Hints()
}

func (e *Engine) numWorkers(items int) int {
	n := e.workers
	if n <= 0 {
		n = goruntime.NumCPU()
	}
	return max(1, min(n, items))
}

// IndexFiles records the declarations of the given files. When WithParallel
// is enabled, uses a worker pool for parsing and extraction with batched
// SQLite writes. Otherwise falls back to the serial path.
//
// For each file:
// 1. Read the content and hash it
// 2. Skip unchanged files (same content hash)
// 3. Delete stale data, insert/update file record
// 4. Parse and extract declarations
//
// Files indexed by an earlier run that are not among paths are dropped, so
// the index always describes exactly the current inputs. Errors on
// individual files are collected; processing continues.
func (e *Engine) IndexFiles(ctx context.Context, paths []string) error {
	var err error
	if e.useParallel {
		err = e.IndexFilesParallel(ctx, paths)
	} else {
		err = e.indexFilesSerial(ctx, paths)
	}
	if perr := e.prune(paths); perr != nil && err == nil {
		err = perr
	}
	e.index.Purge()
	return err
}

func (e *Engine) indexFilesSerial(ctx context.Context, paths []string) error {
	var errs []error
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.indexFile(ctx, path); err != nil {
			errs = append(errs, fmt.Errorf("index %s: %w", path, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("indexing had %d error(s): %w", len(errs), errs[0])
	}
	return nil
}

func (e *Engine) indexFile(ctx context.Context, path string) error {
	item, skip, err := e.prepareFile(ctx, path)
	if err != nil || skip {
		return err
	}
	f, err := syntax.Parse(ctx, path, item.content)
	if err != nil {
		_ = e.store.DeleteFile(item.fileID)
		return err
	}
	defer f.Close()

	n, err := resolve.Extract(f, item.fileID, e.store)
	if err != nil {
		_ = e.store.DeleteFile(item.fileID)
		return fmt.Errorf("extract: %w", err)
	}
	e.logger.Debug("indexed", "file", path, "declarations", n)
	return nil
}

// prune removes files that are no longer among paths.
func (e *Engine) prune(paths []string) error {
	keep := make(map[string]bool, len(paths))
	for _, p := range paths {
		keep[p] = true
	}
	files, err := e.store.Files()
	if err != nil {
		return fmt.Errorf("list files: %w", err)
	}
	for _, f := range files {
		if keep[f.Path] {
			continue
		}
		if err := e.store.DeleteFile(f.ID); err != nil {
			return fmt.Errorf("prune %s: %w", f.Path, err)
		}
		e.logger.Debug("pruned", "file", f.Path)
	}
	return nil
}

// Audit classifies the unsafe regions of each path and returns one report
// per path, in input order. Per-file failures are recorded on the report;
// the returned error is only set when ctx is cancelled. Files should have
// been indexed with IndexFiles first so calls across files resolve.
func (e *Engine) Audit(ctx context.Context, paths []string, sel Selection) ([]FileReport, error) {
	reports := make([]FileReport, len(paths))
	if len(paths) == 0 {
		return reports, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.numWorkers(len(paths)))
	for i, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			reports[i] = e.auditFile(gctx, path, sel)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}

func (e *Engine) auditFile(ctx context.Context, path string, sel Selection) FileReport {
	report := FileReport{Path: path}

	f, err := e.loader.Load(ctx, path)
	if err != nil {
		report.Err = err
		e.logger.Debug("audit failed", "file", path, "error", err)
		return report
	}
	defer f.Close()

	var fileID int64
	if rec, err := e.store.FileByPath(path); err == nil && rec != nil {
		fileID = rec.ID
	}

	regions, err := audit.Analyze(f, e.index.ForFile(f, fileID))
	if err != nil {
		report.Err = fmt.Errorf("analyze %s: %w", path, err)
		e.logger.Debug("audit failed", "file", path, "error", err)
		return report
	}
	report.Regions = audit.Select(regions, sel)
	e.logger.Debug("audited", "file", path, "regions", len(regions), "shown", len(report.Regions))
	return report
}

// skipDirs lists directory names never descended into.
var skipDirs = map[string]bool{
	"target": true,
	"vendor": true,
}

// CollectFiles expands roots into the list of files to audit. Directories
// are walked for Rust files in lexical order, skipping hidden directories,
// target and vendor. Other roots are kept as given, so a missing file is
// reported by Audit rather than dropped.
func CollectFiles(roots []string) ([]string, error) {
	var paths []string
	seen := make(map[string]bool)
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			paths = append(paths, p)
		}
	}
	for _, root := range roots {
		info, err := os.Stat(root)
		if err != nil || !info.IsDir() {
			add(root)
			continue
		}
		files, err := walkListFiles(root)
		if err != nil {
			return nil, err
		}
		for _, p := range files {
			add(p)
		}
	}
	return paths, nil
}

// walkListFiles discovers Rust files under root.
func walkListFiles(root string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			name := d.Name()
			if path != root && (strings.HasPrefix(name, ".") || skipDirs[name]) {
				return filepath.SkipDir
			}
			return nil
		}
		if _, ok := syntax.LanguageForFile(path); ok {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk directory: %w", err)
	}
	return paths, nil
}

// isUnchanged reports whether existing was indexed from content with hash.
func isUnchanged(existing *store.File, hash string) bool {
	return existing != nil && existing.Hash == hash
}

// removeExisting deletes a previously indexed version of a file.
func (e *Engine) removeExisting(existing *store.File) error {
	if existing == nil {
		return nil
	}
	if err := e.store.DeleteFile(existing.ID); err != nil {
		return fmt.Errorf("delete old data: %w", err)
	}
	return nil
}

// insertFile records a file about to be extracted.
func (e *Engine) insertFile(path, hash string, content []byte) (int64, error) {
	lang, ok := syntax.LanguageForFile(path)
	if !ok {
		lang = "rust"
	}
	fileID, err := e.store.InsertFile(&store.File{
		Path:        path,
		Language:    lang,
		Hash:        hash,
		LineCount:   bytes.Count(content, []byte{'\n'}) + 1,
		LastIndexed: time.Now(),
	})
	if err != nil {
		return 0, fmt.Errorf("insert file: %w", err)
	}
	return fileID, nil
}
