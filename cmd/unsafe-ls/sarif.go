package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/owenrumney/go-sarif/v2/sarif"

	"github.com/jward/unsafels"
	"github.com/jward/unsafels/internal/audit"
)

const (
	toolName = "unsafe-ls"
	toolURI  = "https://github.com/jward/unsafels"
)

// writeSARIF renders reports as a SARIF 2.1.0 log with one rule per action
// kind and one result per displayed action. An action with several tags is
// reported under its first tag; the message lists all of them.
func writeSARIF(w io.Writer, reports []unsafels.FileReport) error {
	report, err := sarif.New(sarif.Version210)
	if err != nil {
		return fmt.Errorf("creating SARIF report: %w", err)
	}
	run := sarif.NewRunWithInformationURI(toolName, toolURI)

	rules := make(map[audit.Kind]*sarif.ReportingDescriptor)
	for _, k := range audit.AllKinds() {
		rules[k] = run.AddRule(k.ID()).
			WithDescription(ruleDescription(k)).
			WithDefaultConfiguration(&sarif.ReportingConfiguration{Level: "warning"})
	}

	for _, rep := range reports {
		uri := filepath.ToSlash(rep.Path)
		for _, r := range rep.Regions {
			for _, a := range r.Actions {
				kinds := a.Kinds.Kinds()
				if len(kinds) == 0 {
					continue
				}
				location := sarif.NewLocation().WithPhysicalLocation(
					sarif.NewPhysicalLocation().
						WithArtifactLocation(sarif.NewArtifactLocation().WithUri(uri)).
						WithRegion(sarif.NewRegion().
							WithStartLine(a.Loc.Line).
							WithStartColumn(a.Loc.Col)),
				)
				result := sarif.NewRuleResult(rules[kinds[0]].ID).
					WithMessage(sarif.NewTextMessage(resultMessage(r, a))).
					WithLevel("warning").
					WithLocations([]*sarif.Location{location})
				run.AddResult(result)
			}
		}
	}
	report.AddRun(run)
	return report.PrettyWrite(w)
}

func ruleDescription(k audit.Kind) string {
	switch k {
	case audit.Deref:
		return "Dereference of a raw pointer"
	case audit.StaticMutAccess:
		return "Access to a mutable static"
	case audit.Ffi:
		return "Call to a foreign function"
	case audit.UnsafeCall:
		return "Call to an unsafe function or method"
	case audit.InlineAsm:
		return "Inline assembly"
	case audit.Transmute:
		return "Call to transmute"
	case audit.TransmuteRefToMut:
		return "Transmute of a shared reference to a mutable one"
	case audit.CastConstToMut:
		return "Cast of a *const pointer to *mut"
	}
	return k.String()
}

// resultMessage reads like "ffi, unsafe call in unsafe block: libc::abort()".
func resultMessage(r unsafels.RegionView, a unsafels.Action) string {
	excerpt, _, _ := strings.Cut(a.Excerpt, "\n")
	return fmt.Sprintf("%s in unsafe %s: %s", a.Kinds, r.Kind, strings.TrimSpace(excerpt))
}
