package assets

import (
	"regexp"
	"strings"
)

var (
	illegalChars  = regexp.MustCompile(`[\\/*?:"<>|]`)
	whitespaceRun = regexp.MustCompile(`\s+`)
)

// SanitizeFilename strips filesystem-illegal characters and collapses
// whitespace so item names are safe to embed in object names.
func SanitizeFilename(name string) string {
	name = illegalChars.ReplaceAllString(name, "_")
	name = whitespaceRun.ReplaceAllString(name, " ")
	return strings.TrimSpace(name)
}
