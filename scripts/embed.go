// Package scripts holds the hint scripts shipped with unsafe-ls.
package scripts

import "embed"

// FS contains the default hint scripts, rooted at hints/.
//
//go:embed hints/*.risor
var FS embed.FS

// DefaultHints lists the scripts in FS run unless default hints are
// disabled.
var DefaultHints = []string{"hints/std.risor"}
