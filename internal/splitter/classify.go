// Package splitter turns a chat-log export into one file per calendar day.
// A line that opens a message carries a timestamp, a nickname and an
// identifier in angle or round brackets; every other line continues the
// message above it. Days are written to
// <output>/<source>/<YYYY>/<MM>/<YYYY-MM-DD>.txt and replaced in full on
// every run.
package splitter

import (
	"regexp"
	"strings"
)

// headerPattern matches a whole message header line such as
// "2024-01-01 10:00:00 nick<12345>" or "2024-01-01 9:05:00 nick(a@b.c)".
var headerPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2} \d{1,2}:\d{2}:\d{2} .+[<(].+[>)]$`)

// byteOrderMark is the decoded form of the UTF-8 BOM.
const byteOrderMark = "\uFEFF"

// ClassifiedLine is the classification of a single line.
type ClassifiedLine struct {
	Header bool
	Date   string // YYYY-MM-DD; empty unless Header
}

// Normalize strips byte-order-mark artifacts from a line.
func Normalize(line string) string {
	return strings.ReplaceAll(line, byteOrderMark, "")
}

// Classify reports whether line opens a new message and, if so, its date.
// The match covers the whole line, so a header-looking fragment embedded in
// a longer line is a continuation.
func Classify(line string) ClassifiedLine {
	if line == "" || !headerPattern.MatchString(line) {
		return ClassifiedLine{}
	}
	return ClassifiedLine{Header: true, Date: line[:10]}
}
