package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jward/unsafels"
	"github.com/jward/unsafels/internal/config"
)

// validFormats lists accepted values for --format.
var validFormats = []string{config.FormatText, config.FormatJSON, config.FormatSARIF}

// validateFormat checks that the --format flag value is recognized.
func validateFormat(format string) error {
	for _, f := range validFormats {
		if format == f {
			return nil
		}
	}
	return fmt.Errorf("invalid format %q: must be %s", format, strings.Join(validFormats, ", "))
}

func writeJSON(w io.Writer, result CLIResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

const excerptIndent = "    "

// formatReportsText writes one header per displayed region followed by its
// actions, indented:
//
//	src/lib.rs:12:5: block with 1 deref, 1 unsafe call
//	    *p
//	    libc::free(p)
//
// With fullLines set, each action's whole source line is printed instead,
// once per region even when several actions share it.
func formatReportsText(w io.Writer, reports []unsafels.FileReport, fullLines bool) {
	for _, rep := range reports {
		for _, r := range rep.Regions {
			fmt.Fprintf(w, "%s:%s: %s with %s\n", rep.Path, r.Loc, r.Kind, unsafels.SummaryText(r))
			if fullLines {
				writeSourceLines(w, r.Actions)
				continue
			}
			for _, a := range r.Actions {
				for _, line := range strings.Split(a.Excerpt, "\n") {
					fmt.Fprintf(w, "%s%s\n", excerptIndent, strings.TrimRight(line, " \t\r"))
				}
			}
		}
	}
}

func writeSourceLines(w io.Writer, actions []unsafels.Action) {
	seen := make(map[int]bool, len(actions))
	for _, a := range actions {
		if seen[a.Loc.Line] {
			continue
		}
		seen[a.Loc.Line] = true
		fmt.Fprintf(w, "%s%s\n", excerptIndent, strings.TrimSpace(a.Line))
	}
}
