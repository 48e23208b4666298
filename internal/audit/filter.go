package audit

import "github.com/jward/unsafels/internal/syntax"

// Selection chooses which categories of actions are reported.
type Selection int

const (
	// SelectNone reports nothing. It is what a run with no category flag gets.
	SelectNone Selection = iota
	SelectNonFFI
	SelectFFI
	SelectAll
)

// SelectionFromFlags maps the two category flags onto a Selection.
func SelectionFromFlags(nonFFI, ffi bool) Selection {
	switch {
	case nonFFI && ffi:
		return SelectAll
	case nonFFI:
		return SelectNonFFI
	case ffi:
		return SelectFFI
	}
	return SelectNone
}

func (s Selection) String() string {
	switch s {
	case SelectNonFFI:
		return "nonffi"
	case SelectFFI:
		return "ffi"
	case SelectAll:
		return "all"
	}
	return "none"
}

// RegionView is a region as displayed under a Selection.
type RegionView struct {
	Kind    RegionKind
	Loc     syntax.Location
	Depth   int
	Actions []Action
	Summary []Count
}

// Select applies sel to regions and returns the regions left with at least
// one action, in their original order. Regions are not modified.
//
// SelectNonFFI strips Ffi, and the UnsafeCall implied by it, from foreign
// calls. SelectFFI keeps only Ffi-tagged actions, with all their tags.
func Select(regions []*Region, sel Selection) []RegionView {
	if sel == SelectNone {
		return nil
	}
	var views []RegionView
	for _, r := range regions {
		var kept []Action
		for _, a := range r.Actions {
			if a2, ok := selectAction(a, sel); ok {
				kept = append(kept, a2)
			}
		}
		if len(kept) == 0 {
			continue
		}
		views = append(views, RegionView{
			Kind:    r.Kind,
			Loc:     r.Loc,
			Depth:   r.Depth(),
			Actions: kept,
			Summary: Summarize(kept),
		})
	}
	return views
}

func selectAction(a Action, sel Selection) (Action, bool) {
	switch sel {
	case SelectAll:
		return a, !a.Kinds.Empty()
	case SelectFFI:
		return a, a.Kinds.Has(Ffi)
	case SelectNonFFI:
		if a.Kinds.Has(Ffi) {
			a.Kinds = a.Kinds.Without(Ffi).Without(UnsafeCall)
		}
		return a, !a.Kinds.Empty()
	}
	return a, false
}
