package unsafels

import (
	"github.com/jward/unsafels/internal/audit"
	"github.com/jward/unsafels/internal/runtime"
	"github.com/jward/unsafels/internal/store"
)

// Public aliases for the internal types that appear in the Engine API.

type Store = store.Store
type Hints = runtime.Hints
type Selection = audit.Selection
type RegionView = audit.RegionView
type Action = audit.Action
type Kind = audit.Kind

const (
	SelectNone   = audit.SelectNone
	SelectNonFFI = audit.SelectNonFFI
	SelectFFI    = audit.SelectFFI
	SelectAll    = audit.SelectAll
)

// SelectionFromFlags maps the --nonffi and --ffi flags onto a Selection.
func SelectionFromFlags(nonFFI, ffi bool) Selection {
	return audit.SelectionFromFlags(nonFFI, ffi)
}

// FileReport is the audit outcome for one input path. Exactly one of
// Regions and Err is meaningful: a file that failed to load or parse has no
// regions.
type FileReport struct {
	Path    string
	Regions []RegionView
	Err     error
}

// HasErrors reports whether any report carries an error.
func HasErrors(reports []FileReport) bool {
	for _, r := range reports {
		if r.Err != nil {
			return true
		}
	}
	return false
}

// SummaryText renders a region's counts as "1 deref, 2 unsafe call".
func SummaryText(r RegionView) string {
	return audit.FormatSummary(r.Summary)
}
