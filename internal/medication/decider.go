// Package medication implements the five-bucket recommendation decider:
// a base STANDARD set per procedure, a predicate-matched rule table, and
// deterministic conflict resolution across buckets.
package medication

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/periop-health/risk-engine/internal/domain"
	"github.com/periop-health/risk-engine/internal/ontology"
)

// weightBasedDoseRe matches a dose rule already expressed in weight-scaled
// terms: the {weight_kg} placeholder or an explicit per-kg unit.
var weightBasedDoseRe = regexp.MustCompile(`(?i)\{weight_kg\}|mg\s*/\s*kg|mcg\s*/\s*kg|units?\s*/\s*kg`)

// Decider implements domain.MedicationDecider.
type Decider struct {
	store *ontology.Store
}

func New(store *ontology.Store) *Decider {
	return &Decider{store: store}
}

// pick is the working conflict-resolution record for one medication token
// before buckets are split back out.
type pick struct {
	token           string
	bucket          domain.Bucket
	doseRule        string
	citations       []string
	justification   string
	blockingFactors []string
	grade           domain.EvidenceGrade
	unsupported     bool
}

// Decide implements domain.MedicationDecider.
func (d *Decider) Decide(demographics domain.Demographics, factors []domain.ExtractedFactor, risks []domain.RiskAssessment) (domain.MedicationBuckets, []domain.Degradation) {
	dc := decisionContext{
		demographics: demographics,
		factors:      make(map[string]float64, len(factors)),
		risks:        make(map[string]domain.RiskAssessment, len(risks)),
	}
	for _, f := range factors {
		if f.Confidence > minFactorConfidence {
			dc.factors[f.Token] = f.Confidence
		}
	}
	for _, r := range risks {
		dc.risks[r.Outcome] = r
	}

	picks := map[string]*pick{}

	for _, token := range standardSets[demographics.Procedure] {
		picks[token] = &pick{token: token, bucket: domain.BucketStandard, justification: "standard agent for this procedure"}
	}

	for _, r := range ruleTable {
		if !r.predicate(dc) {
			continue
		}
		candidate := &pick{
			token: r.medicationToken, bucket: r.bucket, doseRule: r.doseRule,
			citations: r.citations, justification: r.justification, blockingFactors: r.blockingFactors,
			grade: r.grade,
		}
		existing, ok := picks[r.medicationToken]
		if !ok || candidate.bucket.Priority() < existing.bucket.Priority() {
			picks[r.medicationToken] = candidate
		}
	}

	// CONTRAINDICATED removes the medication from every other consideration
	// regardless of priority numerics, and folds in every blocking-factor
	// rule that fired for it.
	contraindicatedBlocking := map[string][]string{}
	for _, r := range ruleTable {
		if r.bucket != domain.BucketContraindicated || !r.predicate(dc) {
			continue
		}
		contraindicatedBlocking[r.medicationToken] = append(contraindicatedBlocking[r.medicationToken], r.blockingFactors...)
	}
	for token, blocking := range contraindicatedBlocking {
		p := picks[token]
		if p == nil {
			p = &pick{token: token}
			picks[token] = p
		}
		p.bucket = domain.BucketContraindicated
		p.blockingFactors = dedupStrings(blocking)
		p.justification = fmt.Sprintf("contraindicated: %s", strings.Join(p.blockingFactors, ", "))
	}

	var out []*pick
	for _, p := range picks {
		d.resolveDoseRule(p, demographics)
		d.resolveCitations(p)
		out = append(out, p)
	}

	buckets := domain.MedicationBuckets{}
	for _, p := range out {
		rec := d.toRecommendation(p)
		switch p.bucket {
		case domain.BucketContraindicated:
			buckets.Contraindicated = append(buckets.Contraindicated, rec)
		case domain.BucketDrawNow:
			buckets.DrawNow = append(buckets.DrawNow, rec)
		case domain.BucketConsider:
			buckets.Consider = append(buckets.Consider, rec)
		case domain.BucketEnsureAvailable:
			buckets.EnsureAvailable = append(buckets.EnsureAvailable, rec)
		default:
			buckets.Standard = append(buckets.Standard, rec)
		}
	}

	sortRecommendations(buckets.Standard)
	sortRecommendations(buckets.DrawNow)
	sortRecommendations(buckets.Consider)
	sortRecommendations(buckets.EnsureAvailable)
	sortRecommendations(buckets.Contraindicated)

	return buckets, nil
}

// resolveDoseRule fills in a dose rule's symbolic placeholders, flagging
// missing_weight when a required weight is unavailable. A pediatric pick
// with no dose rule at all still gets a conservative weight-based
// placeholder per-kg rather than being left blank, and a pediatric pick
// whose fixed dose rule carries no weight-based expression at all gets
// one appended, so no pediatric recommendation ever reaches the patient
// with an adult-equivalent fixed dose.
func (d *Decider) resolveDoseRule(p *pick, demographics domain.Demographics) {
	pediatric := d.isPediatric(demographics)

	switch {
	case p.doseRule == "" && pediatric:
		p.doseRule = "per weight-based protocol {weight_kg}"
	case p.doseRule == "":
		return
	case pediatric && !weightBasedDoseRe.MatchString(p.doseRule):
		p.doseRule = p.doseRule + "; confirm against weight-based protocol ({weight_kg})"
	}

	rule := p.doseRule
	if strings.Contains(rule, "{weight_kg}") && demographics.WeightKg != nil {
		rule = strings.ReplaceAll(rule, "{weight_kg}", strconv.FormatFloat(*demographics.WeightKg, 'f', 1, 64))
	}
	if strings.Contains(rule, "{age_years}") && demographics.AgeYears != nil {
		rule = strings.ReplaceAll(rule, "{age_years}", strconv.FormatFloat(*demographics.AgeYears, 'f', 0, 64))
	}
	p.doseRule = rule
}

func (d *Decider) isPediatric(demographics domain.Demographics) bool {
	switch demographics.AgeBand {
	case domain.AgeLT1, domain.Age1to5, domain.Age6to12, domain.Age13to17:
		return true
	default:
		return false
	}
}

// resolveCitations downgrades a non-STANDARD recommendation with no
// citation to CONSIDER and flags it unsupported.
func (d *Decider) resolveCitations(p *pick) {
	if p.bucket == domain.BucketStandard {
		return
	}
	if len(p.citations) == 0 {
		p.bucket = domain.BucketConsider
		p.unsupported = true
	}
}

func (d *Decider) toRecommendation(p *pick) domain.MedicationRecommendation {
	genericName := p.token
	if term, ok := d.store.Term(p.token); ok {
		genericName = term.PlainLabel
	}

	missingWeight := strings.Contains(p.doseRule, "{weight_kg}")

	return domain.MedicationRecommendation{
		Token:          p.token,
		GenericName:    genericName,
		Bucket:         p.bucket,
		DoseRule:       p.doseRule,
		EvidenceGrade:  p.grade,
		PatientFactors: p.blockingFactors,
		Citations:      p.citations,
		Justification:  p.justification,
		MissingWeight:  missingWeight,
		Unsupported:    p.unsupported,
	}
}

func dedupStrings(in []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

// sortRecommendations orders by evidence_grade (A->D) then token
// alphabetical.
func sortRecommendations(recs []domain.MedicationRecommendation) {
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].EvidenceGrade.Rank() != recs[j].EvidenceGrade.Rank() {
			return recs[i].EvidenceGrade.Rank() < recs[j].EvidenceGrade.Rank()
		}
		return recs[i].Token < recs[j].Token
	})
}
