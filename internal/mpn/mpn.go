// Package mpn turns free-text input into the ordered list of manufacturer
// part numbers sent to the resolution engine.
package mpn

import (
	"strings"

	"github.com/samber/lo"
)

var lineBreaks = strings.NewReplacer("\r\n", "\n", "\r", "\n")

// Normalize splits raw into lines, trims each one, and drops lines that are
// empty after trimming. Order and duplicates are preserved; the engine decides
// what a repeated MPN means. The result is never nil.
func Normalize(raw string) []string {
	lines := strings.Split(lineBreaks.Replace(raw), "\n")
	return lo.FilterMap(lines, func(line string, _ int) (string, bool) {
		line = strings.TrimSpace(line)
		return line, line != ""
	})
}

// Join renders mpns one per line, the inverse of Normalize for normalized input.
func Join(mpns []string) string {
	return strings.Join(mpns, "\n")
}
