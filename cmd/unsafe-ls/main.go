package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jward/unsafels"
	"github.com/jward/unsafels/internal/config"
	"github.com/jward/unsafels/internal/logger"
)

// errFilesFailed is returned when at least one input could not be audited.
// The per-file errors have already been reported.
var errFilesFailed = errors.New("some files could not be audited")

// cli holds the flag values and output streams of one invocation.
type cli struct {
	stdout io.Writer
	stderr io.Writer

	nonFFI         bool
	ffi            bool
	format         string
	lines          bool
	db             string
	hints          []string
	noDefaultHints bool
	workers        int
	configPath     string
	logLevel       string

	// errorHandled is set once errors have been written so main() doesn't
	// double-print.
	errorHandled bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	c := &cli{stdout: os.Stdout, stderr: os.Stderr}
	if err := newRootCmd(c).ExecuteContext(ctx); err != nil {
		if !c.errorHandled {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}
		os.Exit(1)
	}
}

func newRootCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unsafe-ls [flags] PATH...",
		Short: "List unsafe regions in Rust source and what they do",
		Long: "unsafe-ls finds every unsafe block and unsafe fn in the given Rust files and\n" +
			"directories, classifies the operations each one performs, and prints the\n" +
			"regions whose actions match the selected categories (--nonffi, --ffi).",
		Args:          cobra.MinimumNArgs(1),
		SilenceErrors: true,
		SilenceUsage:  true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("format") {
				return validateFormat(c.format)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runAudit(cmd, args)
		},
	}
	cmd.SetOut(c.stdout)
	cmd.SetErr(c.stderr)

	f := cmd.Flags()
	f.BoolVarP(&c.nonFFI, "nonffi", "n", false, "report non-FFI actions")
	f.BoolVarP(&c.ffi, "ffi", "f", false, "report FFI actions")
	f.StringVar(&c.format, "format", config.FormatText, "output format: text|json|sarif")
	f.BoolVar(&c.lines, "lines", false, "print each action's full source line instead of its own text")
	f.StringVar(&c.db, "db", "", "persist the declaration index at this path (default: in memory)")
	f.StringArrayVar(&c.hints, "hints", nil, "extra hint script (repeatable)")
	f.BoolVar(&c.noDefaultHints, "no-default-hints", false, "do not load the built-in standard library hints")
	f.IntVar(&c.workers, "workers", 0, "number of files processed at once (default: one per CPU)")
	f.StringVar(&c.configPath, "config", "", "config file (default: "+config.DefaultPath+" if present)")
	f.StringVar(&c.logLevel, "log-level", "", "log level: trace|debug|info|warn|error")
	return cmd
}

// loadConfig reads the config file and environment, then applies the flags
// the user set explicitly.
func (c *cli) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("format") {
		cfg.Format = c.format
	}
	if flags.Changed("lines") {
		cfg.Lines = c.lines
	}
	if flags.Changed("db") {
		cfg.DB = c.db
	}
	if flags.Changed("hints") {
		cfg.Hints = c.hints
	}
	if flags.Changed("no-default-hints") {
		cfg.NoDefaultHints = c.noDefaultHints
	}
	if flags.Changed("workers") {
		cfg.Workers = c.workers
	}
	if flags.Changed("log-level") {
		cfg.Logger.Level = c.logLevel
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *cli) runAudit(cmd *cobra.Command, args []string) error {
	cfg, err := c.loadConfig(cmd)
	if err != nil {
		return err
	}
	err = c.audit(cmd, cfg, args)
	if err != nil && !c.errorHandled {
		return c.outputError(cfg.Format, err)
	}
	return err
}

// outputError reports a fatal error. In JSON mode it is written to stdout as
// a CLIResult envelope, otherwise main prints it to stderr.
func (c *cli) outputError(format string, err error) error {
	if format != config.FormatJSON {
		return err
	}
	c.errorHandled = true
	_ = writeJSON(c.stdout, CLIResult{Command: "audit", Error: err.Error()})
	return err
}

func (c *cli) audit(cmd *cobra.Command, cfg *config.Config, args []string) error {
	log := logger.New(cfg, "unsafe-ls", c.stderr)

	sel := unsafels.SelectionFromFlags(c.nonFFI, c.ffi)
	if sel == unsafels.SelectNone {
		log.Info("no category selected, nothing will be reported; pass --nonffi and/or --ffi")
	}

	paths, err := unsafels.CollectFiles(args)
	if err != nil {
		return err
	}
	log.Debug("collected inputs", "files", len(paths), "selection", sel.String())

	dbPath, err := resolveDBPath(cfg.DB)
	if err != nil {
		return err
	}

	opts := []unsafels.Option{
		unsafels.WithWorkers(cfg.Workers),
		unsafels.WithLogger(log),
	}
	if len(cfg.Hints) > 0 {
		opts = append(opts, unsafels.WithHints(cfg.Hints...))
	}
	if cfg.NoDefaultHints {
		opts = append(opts, unsafels.WithoutDefaultHints())
	}

	engine, err := unsafels.New(dbPath, opts...)
	if err != nil {
		return fmt.Errorf("creating engine: %w", err)
	}
	defer engine.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := engine.IndexFiles(ctx, paths); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// Unreadable and unparsable files are reported again by Audit.
		log.Debug("indexing incomplete", "error", err)
	}
	reports, err := engine.Audit(ctx, paths, sel)
	if err != nil {
		return err
	}

	if err := c.output(cfg, reports); err != nil {
		return err
	}
	if unsafels.HasErrors(reports) {
		c.errorHandled = true
		return errFilesFailed
	}
	return nil
}

// output writes reports to stdout in the configured format. In text mode
// per-file errors go to stderr.
func (c *cli) output(cfg *config.Config, reports []unsafels.FileReport) error {
	switch cfg.Format {
	case config.FormatJSON:
		return writeJSON(c.stdout, CLIResult{Command: "audit", Results: toCLIResults(reports)})
	case config.FormatSARIF:
		return writeSARIF(c.stdout, reports)
	}
	formatReportsText(c.stdout, reports, cfg.Lines)
	for _, r := range reports {
		if r.Err != nil {
			fmt.Fprintf(c.stderr, "Error: %s\n", r.Err)
		}
	}
	return nil
}

// projectMarkers identify the root of a Rust project.
var projectMarkers = []string{"Cargo.toml", ".git"}

// findProjectRoot walks up from startDir looking for a Cargo.toml or .git.
// Returns startDir if neither is found.
func findProjectRoot(startDir string) string {
	dir := startDir
	for {
		for _, m := range projectMarkers {
			if _, err := os.Stat(filepath.Join(dir, m)); err == nil {
				return dir
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached filesystem root without finding a marker.
			return startDir
		}
		dir = parent
	}
}

// resolveDBPath makes a relative --db path relative to the project root of
// the working directory and creates its parent directory. An empty path
// stays empty and selects an in-memory index.
func resolveDBPath(db string) (string, error) {
	if db == "" {
		return "", nil
	}
	if !filepath.IsAbs(db) {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("resolving database path: %w", err)
		}
		db = filepath.Join(findProjectRoot(wd), db)
	}
	if err := os.MkdirAll(filepath.Dir(db), 0o755); err != nil {
		return "", fmt.Errorf("creating %s: %w", filepath.Dir(db), err)
	}
	return db, nil
}
