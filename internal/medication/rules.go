package medication

import "github.com/periop-health/risk-engine/internal/domain"

// minFactorConfidence is the threshold below which a factor is treated as
// absent for medication-decision purposes: a negated mention still appears in the raw extraction list at low
// confidence, but must not trigger a contraindication rule.
const minFactorConfidence = 0.5

// decisionContext is the evaluated view of a request a rule predicate tests
// against.
type decisionContext struct {
	demographics domain.Demographics
	factors      map[string]float64 // token -> confidence, filtered to >minFactorConfidence
	risks        map[string]domain.RiskAssessment
}

func (c decisionContext) hasFactor(token string) bool {
	_, ok := c.factors[token]
	return ok
}

func (c decisionContext) riskAtLeast(outcome string, adjustedRisk float64) bool {
	r, ok := c.risks[outcome]
	return ok && !r.NoEvidence && r.AdjustedRisk >= adjustedRisk
}

// rule is one (trigger_predicate -> medication_token -> bucket) entry.
// blockingFactors names the factors cited in a CONTRAINDICATED
// justification.
type rule struct {
	id              string
	medicationToken string
	bucket          domain.Bucket
	predicate       func(decisionContext) bool
	blockingFactors []string
	doseRule        string
	citations       []string
	justification   string
	grade           domain.EvidenceGrade
}

// standardSets is the base STANDARD recommendation set per procedure.
var standardSets = map[string][]string{
	"TONSILLECTOMY": {"PROPOFOL", "SEVOFLURANE", "FENTANYL", "DEXAMETHASONE", "ONDANSETRON"},
	"CABG":           {"PROPOFOL", "FENTANYL", "CISATRACURIUM"},
	"HERNIA_REPAIR":  {"PROPOFOL", "SEVOFLURANE", "FENTANYL"},
}

// ruleTable is the predicate-matched rule set covering the pediatric
// asthma/URI and adult cardiac/CKD scenarios, generalized to the rest of
// the seeded ontology.
var ruleTable = []rule{
	{
		id: "asthma-bronchospasm-draw-albuterol", medicationToken: "ALBUTEROL", bucket: domain.BucketDrawNow,
		predicate:     func(c decisionContext) bool { return c.hasFactor("ASTHMA") || c.hasFactor("RECENT_URI_2W") },
		doseRule:      "2.5mg nebulized, repeat PRN",
		citations:     []string{"PMID:20120001"},
		justification: "reactive airway history increases bronchospasm risk; have a rescue bronchodilator drawn",
		grade:         domain.GradeB,
	},
	{
		id: "asthma-uri-succinylcholine-contraindicated", medicationToken: "SUCCINYLCHOLINE", bucket: domain.BucketContraindicated,
		predicate:       func(c decisionContext) bool { return c.hasFactor("ASTHMA") && c.hasFactor("RECENT_URI_2W") },
		blockingFactors: []string{"ASTHMA", "RECENT_URI_2W"},
		citations:       []string{"PMID:20120002"},
		justification:   "reactive airway plus recent URI substantially raises laryngospasm/bronchospasm risk with succinylcholine",
		grade:           domain.GradeB,
	},
	{
		id: "asthma-uri-desflurane-contraindicated", medicationToken: "DESFLURANE", bucket: domain.BucketContraindicated,
		predicate:       func(c decisionContext) bool { return c.hasFactor("ASTHMA") || c.hasFactor("RECENT_URI_2W") },
		blockingFactors: []string{"ASTHMA", "RECENT_URI_2W"},
		citations:       []string{"PMID:20120003"},
		justification:   "pungent volatile, airway-irritant in reactive/recently-infected airways",
		grade:           domain.GradeC,
	},
	{
		id: "cad-ckd-nsaid-ketorolac-contraindicated", medicationToken: "KETOROLAC", bucket: domain.BucketContraindicated,
		predicate:       func(c decisionContext) bool { return c.hasFactor("CKD") },
		blockingFactors: []string{"CKD"},
		citations:       []string{"PMID:20120004"},
		justification:   "NSAID nephrotoxicity risk in chronic kidney disease",
		grade:           domain.GradeB,
	},
	{
		id: "ckd-nsaid-ibuprofen-contraindicated", medicationToken: "IBUPROFEN", bucket: domain.BucketContraindicated,
		predicate:       func(c decisionContext) bool { return c.hasFactor("CKD") },
		blockingFactors: []string{"CKD"},
		citations:       []string{"PMID:20120004"},
		justification:   "NSAID nephrotoxicity risk in chronic kidney disease",
		grade:           domain.GradeB,
	},
	{
		id: "cad-succinylcholine-contraindicated", medicationToken: "SUCCINYLCHOLINE", bucket: domain.BucketContraindicated,
		predicate:       func(c decisionContext) bool { return c.hasFactor("CAD") && c.hasFactor("HYPERTENSION") },
		blockingFactors: []string{"CAD", "HYPERTENSION"},
		citations:       []string{"PMID:20120005"},
		justification:   "sympathomimetic/hyperkalemic response risk in significant cardiac disease",
		grade:           domain.GradeC,
	},
	{
		id: "cad-cisatracurium-standard", medicationToken: "CISATRACURIUM", bucket: domain.BucketStandard,
		predicate:     func(c decisionContext) bool { return c.hasFactor("CAD") || c.hasFactor("CKD") },
		citations:     []string{"PMID:20120006"},
		justification: "organ-independent elimination, hemodynamically neutral in cardiac/renal disease",
		grade:         domain.GradeB,
	},
	{
		id: "osa-respiratory-depression-consider-fentanyl", medicationToken: "FENTANYL", bucket: domain.BucketConsider,
		predicate:     func(c decisionContext) bool { return c.hasFactor("OSA") || c.riskAtLeast("RESPIRATORY_DEPRESSION", 0.05) },
		citations:     []string{"PMID:20120007"},
		justification: "titrate opioid conservatively given sleep-disordered breathing / elevated respiratory depression risk",
		grade:         domain.GradeC,
	},
	{
		id: "ponv-high-risk-ensure-ondansetron", medicationToken: "ONDANSETRON", bucket: domain.BucketEnsureAvailable,
		predicate:     func(c decisionContext) bool { return c.riskAtLeast("POST_OP_NAUSEA_VOMITING", 0.10) },
		citations:     []string{"PMID:20120008"},
		justification: "elevated PONV risk warrants a second antiemetic on hand",
		grade:         domain.GradeC,
	},
}
