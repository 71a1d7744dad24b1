package ingestion

import (
	"regexp"
	"strings"
)

// Submission ids are lowercase hyphenated slugs ("my-cool-project").
// Anything else leaves the vote unresolved: ledgered for audit, never scored.
var submissionIDPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)+$`)

// ResolveMemo maps a raw memo to a submission id, or "" when it does not
// resolve. Surrounding whitespace is tolerated; case is not. The memo is
// the voter's input, so an uppercase slug is treated as unresolved rather
// than silently corrected.
func ResolveMemo(memo string) string {
	trimmed := strings.TrimSpace(memo)
	if submissionIDPattern.MatchString(trimmed) {
		return trimmed
	}
	return ""
}
