package ics

import (
	"regexp"
	"strings"
)

const (
	fileExt         = ".ics"
	defaultBaseName = "event"
)

var (
	whitespaceRun = regexp.MustCompile(`\s+`)
	pathSeparator = strings.NewReplacer("/", "_", `\`, "_")
)

// FileName derives the download name from an event summary: every run of
// whitespace becomes a single underscore and ".ics" is appended.
//
//	FileName("Team Sync")      // Team_Sync.ics
//	FileName("a \t  b\nc")     // a_b_c.ics
func FileName(summary string) string {
	base := whitespaceRun.ReplaceAllString(summary, "_")
	base = pathSeparator.Replace(base)
	if base == "" || base == "." || base == ".." {
		base = defaultBaseName
	}
	return base + fileExt
}
