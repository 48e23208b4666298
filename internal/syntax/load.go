package syntax

import (
	"context"
	"fmt"
	"os"

	"github.com/viant/afs"
)

// Loader reads source files through an afs.Service, so inputs may be local
// paths or any URL scheme afs has a manager for.
type Loader struct {
	fs afs.Service
}

// NewLoader returns a Loader backed by fs, or by afs.New() when fs is nil.
func NewLoader(fs afs.Service) *Loader {
	if fs == nil {
		fs = afs.New()
	}
	return &Loader{fs: fs}
}

// Read returns the raw content at location.
func (l *Loader) Read(ctx context.Context, location string) ([]byte, error) {
	ok, err := l.fs.Exists(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", location, err)
	}
	if !ok {
		return nil, fmt.Errorf("read %s: %w", location, os.ErrNotExist)
	}
	src, err := l.fs.DownloadWithURL(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", location, err)
	}
	return src, nil
}

// Load reads and parses the file at location.
func (l *Loader) Load(ctx context.Context, location string) (*File, error) {
	src, err := l.Read(ctx, location)
	if err != nil {
		return nil, err
	}
	return Parse(ctx, location, src)
}
