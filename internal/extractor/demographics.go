package extractor

import (
	"regexp"
	"strconv"

	"github.com/periop-health/risk-engine/internal/domain"
	"github.com/periop-health/risk-engine/internal/ontology"
)

var ageRe = regexp.MustCompile(`(\d+)[\s-]*(year|yr|y/?o|month|mo)`)

var sexMaleRe = regexp.MustCompile(`\b(male|m/o|boy|man)\b`)
var sexFemaleRe = regexp.MustCompile(`\b(female|f/o|girl|woman)\b`)
var adultWordRe = regexp.MustCompile(`\badult\b`)

var emergentRe = regexp.MustCompile(`\b(emergent|emergency|stat)\b`)
var urgentRe = regexp.MustCompile(`\b(urgent|asap)\b`)

// extractDemographics pulls age, sex, procedure, and urgency out of
// normalized text. normalized must already have gone through Normalize.
func extractDemographics(normalized string, store *ontology.Store) domain.Demographics {
	d := domain.Demographics{AgeBand: domain.AgeUnknown, Sex: domain.SexUnknown, Urgency: domain.UrgencyElective}

	if m := ageRe.FindStringSubmatch(normalized); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			years := float64(n)
			if m[2] == "month" || m[2] == "mo" {
				years = years / 12.0
			}
			d.AgeYears = &years
			d.AgeBand = domain.BandForAge(years)
		}
	} else if adultWordRe.MatchString(normalized) {
		// "adult" with no numeric age infers the working-age band, not
		// UNKNOWN: the only inference source for AgeBand besides a parsed
		// number.
		d.AgeBand = domain.Age18to64
	}

	switch {
	case sexMaleRe.MatchString(normalized):
		d.Sex = domain.SexMale
	case sexFemaleRe.MatchString(normalized):
		d.Sex = domain.SexFemale
	}

	d.Procedure = matchProcedure(normalized, store)

	switch {
	case emergentRe.MatchString(normalized):
		d.Urgency = domain.UrgencyEmergent
	case urgentRe.MatchString(normalized):
		d.Urgency = domain.UrgencyUrgent
	default:
		d.Urgency = domain.UrgencyElective
	}

	return d
}

// matchProcedure finds the earliest-span PROCEDURE ontology match; ties on
// span start are broken by the ontology's own longest-synonym-first order.
func matchProcedure(normalized string, store *ontology.Store) string {
	best := ""
	bestStart := -1
	for _, m := range store.Scan(normalized) {
		if m.TermType != domain.TermProcedure {
			continue
		}
		if bestStart == -1 || m.Start < bestStart {
			best = m.Token
			bestStart = m.Start
		}
	}
	return best
}
