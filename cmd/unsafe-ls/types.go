package main

import (
	"github.com/jward/unsafels"
)

// CLIResult is the top-level JSON envelope.
type CLIResult struct {
	Command string `json:"command"`
	Results any    `json:"results"`
	Error   string `json:"error,omitempty"`
}

// CLIFileResult is the audit outcome for one input file.
type CLIFileResult struct {
	File    string      `json:"file"`
	Regions []CLIRegion `json:"regions"`
	Error   string      `json:"error,omitempty"`
}

// CLIRegion is a JSON-friendly unsafe region.
type CLIRegion struct {
	Kind    string      `json:"kind"`
	Line    int         `json:"line"`
	Col     int         `json:"col"`
	Depth   int         `json:"depth"`
	Summary []CLICount  `json:"summary"`
	Actions []CLIAction `json:"actions"`
}

// CLIAction is one classified operation inside a region.
type CLIAction struct {
	Kinds []string `json:"kinds"`
	Line  int      `json:"line"`
	Col   int      `json:"col"`
	Text  string   `json:"text"`
}

// CLICount is one entry of a region summary.
type CLICount struct {
	Kind  string `json:"kind"`
	Count int    `json:"count"`
}

func toCLIResults(reports []unsafels.FileReport) []CLIFileResult {
	out := make([]CLIFileResult, 0, len(reports))
	for _, rep := range reports {
		res := CLIFileResult{File: rep.Path, Regions: []CLIRegion{}}
		if rep.Err != nil {
			res.Error = rep.Err.Error()
		}
		for _, r := range rep.Regions {
			res.Regions = append(res.Regions, toCLIRegion(r))
		}
		out = append(out, res)
	}
	return out
}

func toCLIRegion(r unsafels.RegionView) CLIRegion {
	cr := CLIRegion{
		Kind:    r.Kind.String(),
		Line:    r.Loc.Line,
		Col:     r.Loc.Col,
		Depth:   r.Depth,
		Summary: make([]CLICount, 0, len(r.Summary)),
		Actions: make([]CLIAction, 0, len(r.Actions)),
	}
	for _, c := range r.Summary {
		cr.Summary = append(cr.Summary, CLICount{Kind: c.Kind.ID(), Count: c.N})
	}
	for _, a := range r.Actions {
		ca := CLIAction{Line: a.Loc.Line, Col: a.Loc.Col, Text: a.Excerpt}
		for _, k := range a.Kinds.Kinds() {
			ca.Kinds = append(ca.Kinds, k.ID())
		}
		cr.Actions = append(cr.Actions, ca)
	}
	return cr
}
