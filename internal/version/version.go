// Package version carries build metadata set through -ldflags -X.
package version

import "fmt"

var (
	Version = "dev"
	Commit  = "none"
)

// String formats the build metadata for `partsub version`.
func String() string {
	return fmt.Sprintf("partsub %s (commit %s)", Version, Commit)
}
