package audit

import (
	"fmt"
	"strings"
)

// Count is the number of actions in a region carrying one tag.
type Count struct {
	Kind Kind
	N    int
}

// Summarize counts each tag across actions, in fixed kind order. An action
// with two tags contributes to both counts. Kinds with no occurrences are
// left out.
func Summarize(actions []Action) []Count {
	var totals [numKinds]int
	for _, a := range actions {
		for _, k := range a.Kinds.Kinds() {
			totals[k]++
		}
	}
	var out []Count
	for k, n := range totals {
		if n > 0 {
			out = append(out, Count{Kind: Kind(k), N: n})
		}
	}
	return out
}

// FormatSummary renders counts as "1 deref, 2 unsafe call".
func FormatSummary(counts []Count) string {
	parts := make([]string, len(counts))
	for i, c := range counts {
		parts[i] = fmt.Sprintf("%d %s", c.N, c.Kind)
	}
	return strings.Join(parts, ", ")
}
