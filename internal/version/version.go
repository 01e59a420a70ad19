// Package version carries build metadata injected with -ldflags.
package version

import (
	"fmt"
	"runtime"
)

// Name is the binary and MCP server name.
const Name = "omirec"

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// String renders the full build line printed by `omirec version`.
func String() string {
	return fmt.Sprintf("%s %s (commit=%s, date=%s, go=%s)", Name, Version, Commit, Date, runtime.Version())
}
