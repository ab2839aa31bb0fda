// Package assetid extracts normalized asset identifiers and auction
// deadlines from free-form post text. All functions are deterministic and
// side-effect-free.
package assetid

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Identifiers look like "EID-123": a short alphabetic prefix, a dash, digits.
var idPattern = regexp.MustCompile(`\b[A-Za-z]{2,6}-\d{1,9}\b`)

// Deadline tags follow the platform's timestamp markup, e.g. <t:1700000000>
// or <t:1700000000:R>.
var deadlinePattern = regexp.MustCompile(`<t:(\d{1,12})(?::[a-zA-Z])?>`)

// Extract returns the normalized asset identifier found in text.
// Policy: the first match wins, unless a second, different identifier also
// appears — then the post is ambiguous and no identifier is returned, to
// avoid false-positive correlation.
func Extract(text string) (string, bool) {
	matches := idPattern.FindAllString(text, -1)
	if len(matches) == 0 {
		return "", false
	}
	first := Normalize(matches[0])
	for _, m := range matches[1:] {
		if Normalize(m) != first {
			return "", false
		}
	}
	return first, true
}

// Normalize canonicalizes an asset identifier to uppercase.
func Normalize(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}

// Deadline returns the auction end time embedded in text, if any.
// The first timestamp tag wins.
func Deadline(text string) (time.Time, bool) {
	m := deadlinePattern.FindStringSubmatch(text)
	if m == nil {
		return time.Time{}, false
	}
	unix, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(unix, 0).UTC(), true
}
