// Package extractor finds the workload tag a client embeds in a SQL comment,
// e.g. SELECT /* WORKLOAD_NAME=api_endpoint_1 */ * FROM t.
package extractor

import (
	"regexp"
	"strings"
)

// Marker introduces a workload tag inside a comment.
const Marker = "WORKLOAD_NAME="

var (
	// commentPattern matches the shortest /* ... */ span. As with most regex
	// engines, '.' does not cross a line break.
	commentPattern = regexp.MustCompile(`/\*.*?\*/`)

	workloadPattern = regexp.MustCompile(regexp.QuoteMeta(Marker) + `([A-Za-z0-9_:./\\-]+)`)
)

// Extract returns the workload named by the first comment in query that
// carries a tag, or "" when no comment does. It is safe for concurrent use.
func Extract(query string) string {
	if !strings.Contains(query, Marker) {
		return ""
	}
	rest := query
	for {
		loc := commentPattern.FindStringIndex(rest)
		if loc == nil {
			return ""
		}
		if m := workloadPattern.FindStringSubmatch(rest[loc[0]:loc[1]]); m != nil {
			return m[1]
		}
		rest = rest[loc[1]:]
	}
}
