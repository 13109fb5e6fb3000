package extractor

import (
	"regexp"
	"strings"

	"github.com/periop-health/risk-engine/internal/domain"
	"github.com/periop-health/risk-engine/internal/ontology"
)

var negationCues = []string{"no", "denies", "without"} // "ruled out" checked as phrase below
var temporalCues = []string{"recent", "ago"}
var numericTimeRe = regexp.MustCompile(`\d+\s*(day|days|week|weeks)`)

// explicitLongAgoRe matches an explicit "N months/years ago" phrase: a
// quantified time span well outside any time-windowed factor's window,
// stated with enough confidence ("ago", not a vaguer "back") to drop the
// factor rather than merely discount it.
var explicitLongAgoRe = regexp.MustCompile(`\d+\s*(months?|years?)\s*ago`)
var lastWeekPhraseRe = regexp.MustCompile(`last\s+week`)

const negationWindow = 5
const temporalWindow = 10

// extractFactors scans normalized text for risk-factor ontology matches,
// applies negation and temporal confidence penalties, and dedups repeated
// mentions of the same token. Demographic-derived factors are handled
// separately by deriveFactors.
func extractFactors(normalized string, store *ontology.Store) []domain.ExtractedFactor {
	tokens, starts := tokenOffsets(normalized)

	byToken := map[string]*domain.ExtractedFactor{}
	var order []string

	for _, m := range store.Scan(normalized) {
		if m.TermType != domain.TermRiskFactor {
			continue
		}
		term, ok := store.Term(m.Token)
		if !ok {
			continue
		}

		if term.TimeWindowed && explicitLongAgoNear(normalized, m.Start) {
			continue // explicit "N months/years ago" drops a time-windowed factor entirely
		}

		matchTokenIdx := tokenIndexAtOrBefore(starts, m.Start)

		confidence := float64(m.Confidence)
		confidence *= negationPenalty(tokens, matchTokenIdx)
		if term.TimeWindowed {
			confidence *= temporalModifier(normalized, tokens, starts, matchTokenIdx)
		}

		existing, seen := byToken[m.Token]
		if !seen {
			f := &domain.ExtractedFactor{
				Token:          m.Token,
				PlainLabel:     term.PlainLabel,
				Confidence:     confidence,
				EvidenceText:   []string{m.Text},
				Category:       term.Category,
				SeverityWeight: term.SeverityWeight,
			}
			byToken[m.Token] = f
			order = append(order, m.Token)
			continue
		}
		existing.EvidenceText = append(existing.EvidenceText, m.Text)
		if confidence > existing.Confidence {
			existing.Confidence = confidence
		}
	}

	out := make([]domain.ExtractedFactor, 0, len(order))
	for _, tok := range order {
		out = append(out, *byToken[tok])
	}
	return out
}

// negationPenalty returns 0.1 if a negation cue occurs within negationWindow
// tokens before matchTokenIdx, else 1.0.
func negationPenalty(tokens []string, matchTokenIdx int) float64 {
	if matchTokenIdx < 0 {
		return 1.0
	}
	lo := matchTokenIdx - negationWindow
	if lo < 0 {
		lo = 0
	}
	for i := lo; i < matchTokenIdx; i++ {
		word := strings.Trim(tokens[i], ".,;:")
		for _, cue := range negationCues {
			if word == cue {
				return 0.1
			}
		}
		if word == "ruled" && i+1 < matchTokenIdx+1 && i+1 < len(tokens) && strings.Trim(tokens[i+1], ".,;:") == "out" {
			return 0.1
		}
	}
	return 1.0
}

// temporalModifier is the temporal window check for time-windowed factor
// tokens: a cue within temporalWindow tokens before
// the match keeps confidence unchanged; its absence multiplies by 0.6.
func temporalModifier(normalized string, tokens []string, starts []int, matchTokenIdx int) float64 {
	if matchTokenIdx < 0 {
		return 0.6
	}
	lo := matchTokenIdx - temporalWindow
	if lo < 0 {
		lo = 0
	}
	windowStart := starts[lo]
	windowEnd := matchTokenIdx
	var windowEndOffset int
	if windowEnd < len(starts) {
		windowEndOffset = starts[windowEnd]
	} else {
		windowEndOffset = len(normalized)
	}
	window := normalized[windowStart:windowEndOffset]

	if numericTimeRe.MatchString(window) || lastWeekPhraseRe.MatchString(window) {
		return 1.0
	}
	for i := lo; i < matchTokenIdx; i++ {
		word := strings.Trim(tokens[i], ".,;:")
		for _, cue := range temporalCues {
			if word == cue {
				return 1.0
			}
		}
	}
	return 0.6
}

// explicitLongAgoNear checks a generous window around a time-windowed
// match for an explicit "N months/years ago" phrase, which drops the
// factor entirely regardless of any other temporal cue.
func explicitLongAgoNear(normalized string, matchStart int) bool {
	lo := matchStart - 40
	if lo < 0 {
		lo = 0
	}
	hi := matchStart + 40
	if hi > len(normalized) {
		hi = len(normalized)
	}
	return explicitLongAgoRe.MatchString(normalized[lo:hi])
}

// deriveFactors turns known demographic fields into factors; these carry
// confidence 1.0 since the underlying field, not a text match, is the
// source of truth.
func deriveFactors(d domain.Demographics, store *ontology.Store) []domain.ExtractedFactor {
	var out []domain.ExtractedFactor

	if d.AgeBand != domain.AgeUnknown {
		if term, ok := store.Term(string(d.AgeBand)); ok {
			out = append(out, domain.ExtractedFactor{
				Token: term.Token, PlainLabel: term.PlainLabel, Confidence: 1.0,
				Category: term.Category, SeverityWeight: term.SeverityWeight,
			})
		}
	}

	switch d.Sex {
	case domain.SexMale:
		if term, ok := store.Term("SEX_MALE"); ok {
			out = append(out, domain.ExtractedFactor{Token: term.Token, PlainLabel: term.PlainLabel, Confidence: 1.0, Category: term.Category})
		}
	case domain.SexFemale:
		if term, ok := store.Term("SEX_FEMALE"); ok {
			out = append(out, domain.ExtractedFactor{Token: term.Token, PlainLabel: term.PlainLabel, Confidence: 1.0, Category: term.Category})
		}
	}

	return out
}
