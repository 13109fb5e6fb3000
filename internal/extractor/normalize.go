// Package extractor implements the rule-based HPI -> {Demographics,
// []ExtractedFactor} pipeline, as a sequence of pure,
// independently-testable passes over token offsets rather than a single
// regex-as-program blob.
package extractor

import (
	"regexp"
	"strings"
)

// abbreviations is the fixed clinical-shorthand expansion table.
// Expansion runs before ontology synonym scanning so that an abbreviation
// in the note resolves to the same canonical-confidence match a fully
// spelled-out term would.
var abbreviations = []struct {
	pattern *regexp.Regexp
	expand  string
}{
	{regexp.MustCompile(`\bhtn\b`), "hypertension"},
	{regexp.MustCompile(`\bdm\b`), "diabetes"},
	{regexp.MustCompile(`\bsob\b`), "dyspnea"},
	{regexp.MustCompile(`\bosa\b`), "obstructive sleep apnea"},
	{regexp.MustCompile(`\buri\b`), "upper respiratory infection"},
	{regexp.MustCompile(`\bcad\b`), "coronary artery disease"},
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// Normalize lowercases the input, collapses whitespace runs to a single
// space, and expands the fixed abbreviation table. It never returns an
// error: empty input normalizes to an empty string.
func Normalize(hpi string) string {
	lower := strings.ToLower(hpi)
	collapsed := whitespaceRun.ReplaceAllString(strings.TrimSpace(lower), " ")
	for _, ab := range abbreviations {
		collapsed = ab.pattern.ReplaceAllString(collapsed, ab.expand)
	}
	return collapsed
}

// tokenOffsets splits normalized text into whitespace-delimited tokens and
// records each token's start byte offset, used by the negation and
// temporal-cue passes to count "tokens before" a match.
func tokenOffsets(normalized string) (tokens []string, starts []int) {
	start := -1
	for i, r := range normalized {
		if r == ' ' {
			if start >= 0 {
				tokens = append(tokens, normalized[start:i])
				starts = append(starts, start)
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		tokens = append(tokens, normalized[start:])
		starts = append(starts, start)
	}
	return tokens, starts
}

// tokenIndexAtOrBefore returns the index of the last token whose start
// offset is <= pos, or -1 if pos is before every token.
func tokenIndexAtOrBefore(starts []int, pos int) int {
	idx := -1
	for i, s := range starts {
		if s > pos {
			break
		}
		idx = i
	}
	return idx
}
