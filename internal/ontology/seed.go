package ontology

import "github.com/periop-health/risk-engine/internal/domain"

// syn is a small constructor for readability in the seed table below.
func syn(text string, c domain.SynonymConfidence) domain.Synonym {
	return domain.Synonym{Text: text, Confidence: c}
}

// SeedTerms returns the bundled closed-ontology vocabulary. cmd/server
// builds its Store from this set; the ontology_term/ontology_synonym tables
// are not read at startup. The seed set covers every factor/outcome/medication/procedure exercised by
// the end-to-end scenario tests plus a representative spread beyond them
// so the pooling/risk/decider packages have more than one context cell
// to choose between.
func SeedTerms() []*domain.OntologyTerm {
	return []*domain.OntologyTerm{
		// Outcomes
		{Token: "LARYNGOSPASM", Type: domain.TermOutcome, PlainLabel: "laryngospasm", Category: "airway", SeverityWeight: 0.9,
			Synonyms: []domain.Synonym{syn("laryngospasm", domain.ConfidenceCanonical)}},
		{Token: "BRONCHOSPASM", Type: domain.TermOutcome, PlainLabel: "bronchospasm", Category: "respiratory", SeverityWeight: 0.8,
			Synonyms: []domain.Synonym{syn("bronchospasm", domain.ConfidenceCanonical)}},
		{Token: "POST_OP_NAUSEA_VOMITING", Type: domain.TermOutcome, PlainLabel: "postoperative nausea and vomiting", Category: "gastrointestinal", SeverityWeight: 0.3,
			Synonyms: []domain.Synonym{syn("postoperative nausea and vomiting", domain.ConfidenceCanonical), syn("ponv", domain.ConfidenceWeak)}},
		{Token: "MYOCARDIAL_INFARCTION", Type: domain.TermOutcome, PlainLabel: "perioperative myocardial infarction", Category: "cardiac", SeverityWeight: 0.95,
			Synonyms: []domain.Synonym{syn("myocardial infarction", domain.ConfidenceCanonical), syn("mi", domain.ConfidenceWeak)}},
		{Token: "ACUTE_KIDNEY_INJURY", Type: domain.TermOutcome, PlainLabel: "acute kidney injury", Category: "renal", SeverityWeight: 0.7,
			Synonyms: []domain.Synonym{syn("acute kidney injury", domain.ConfidenceCanonical), syn("aki", domain.ConfidenceWeak)}},
		{Token: "RESPIRATORY_DEPRESSION", Type: domain.TermOutcome, PlainLabel: "postoperative respiratory depression", Category: "respiratory", SeverityWeight: 0.85,
			Synonyms: []domain.Synonym{syn("respiratory depression", domain.ConfidenceCanonical)}},

		// Risk factors
		{Token: "ASTHMA", Type: domain.TermRiskFactor, PlainLabel: "asthma", Category: "pulmonary", SeverityWeight: 0.6,
			Synonyms: []domain.Synonym{syn("asthma", domain.ConfidenceCanonical), syn("reactive airway disease", domain.ConfidenceSynonym)}},
		{Token: "RECENT_URI_2W", Type: domain.TermRiskFactor, PlainLabel: "upper respiratory infection within 2 weeks", Category: "respiratory", SeverityWeight: 0.5, TimeWindowed: true,
			Synonyms: []domain.Synonym{syn("upper respiratory infection", domain.ConfidenceCanonical), syn("uri", domain.ConfidenceWeak)}},
		{Token: "SMOKING_HISTORY", Type: domain.TermRiskFactor, PlainLabel: "smoking history", Category: "pulmonary", SeverityWeight: 0.4,
			Synonyms: []domain.Synonym{syn("smoking", domain.ConfidenceCanonical), syn("smoker", domain.ConfidenceSynonym), syn("tobacco use", domain.ConfidenceSynonym)}},
		{Token: "SMOKING_HEAVY", Type: domain.TermRiskFactor, PlainLabel: "heavy smoking", Category: "pulmonary", SeverityWeight: 0.7, ParentToken: "SMOKING_HISTORY",
			Synonyms: []domain.Synonym{syn("heavy smoker", domain.ConfidenceCanonical), syn("pack a day", domain.ConfidenceSynonym)}},
		{Token: "OSA", Type: domain.TermRiskFactor, PlainLabel: "obstructive sleep apnea", Category: "respiratory", SeverityWeight: 0.6,
			Synonyms: []domain.Synonym{syn("obstructive sleep apnea", domain.ConfidenceCanonical), syn("osa", domain.ConfidenceWeak)}},
		{Token: "CAD", Type: domain.TermRiskFactor, PlainLabel: "coronary artery disease", Category: "cardiac", SeverityWeight: 0.8,
			Synonyms: []domain.Synonym{syn("coronary artery disease", domain.ConfidenceCanonical), syn("cad", domain.ConfidenceWeak)}},
		{Token: "DIABETES", Type: domain.TermRiskFactor, PlainLabel: "diabetes mellitus", Category: "endocrine", SeverityWeight: 0.5,
			Synonyms: []domain.Synonym{syn("diabetes", domain.ConfidenceCanonical), syn("dm", domain.ConfidenceWeak)}},
		{Token: "HYPERTENSION", Type: domain.TermRiskFactor, PlainLabel: "hypertension", Category: "cardiac", SeverityWeight: 0.4,
			Synonyms: []domain.Synonym{syn("hypertension", domain.ConfidenceCanonical), syn("htn", domain.ConfidenceWeak)}},
		{Token: "CKD", Type: domain.TermRiskFactor, PlainLabel: "chronic kidney disease", Category: "renal", SeverityWeight: 0.7,
			Synonyms: []domain.Synonym{syn("chronic kidney disease", domain.ConfidenceCanonical), syn("ckd", domain.ConfidenceWeak), syn("ckd stage 4", domain.ConfidenceSynonym)}},
		{Token: "DYSPNEA", Type: domain.TermRiskFactor, PlainLabel: "dyspnea", Category: "respiratory", SeverityWeight: 0.5,
			Synonyms: []domain.Synonym{syn("dyspnea", domain.ConfidenceCanonical), syn("shortness of breath", domain.ConfidenceSynonym)}},

		// Demographic-derived factor tokens (confidence always set to 1.0 at derivation time)
		{Token: "AGE_LT_1", Type: domain.TermDemographic, PlainLabel: "infant", Category: "demographic"},
		{Token: "AGE_1_5", Type: domain.TermDemographic, PlainLabel: "toddler/preschool", Category: "demographic"},
		{Token: "AGE_6_12", Type: domain.TermDemographic, PlainLabel: "school age", Category: "demographic"},
		{Token: "AGE_13_17", Type: domain.TermDemographic, PlainLabel: "adolescent", Category: "demographic"},
		{Token: "AGE_18_64", Type: domain.TermDemographic, PlainLabel: "adult", Category: "demographic"},
		{Token: "AGE_GE_65", Type: domain.TermDemographic, PlainLabel: "elderly", Category: "demographic"},
		{Token: "SEX_MALE", Type: domain.TermDemographic, PlainLabel: "male", Category: "demographic"},
		{Token: "SEX_FEMALE", Type: domain.TermDemographic, PlainLabel: "female", Category: "demographic"},

		// Procedures
		{Token: "TONSILLECTOMY", Type: domain.TermProcedure, PlainLabel: "tonsillectomy", Category: "ent",
			Synonyms: []domain.Synonym{syn("tonsillectomy", domain.ConfidenceCanonical), syn("t&a", domain.ConfidenceWeak), syn("tonsillectomy and adenoidectomy", domain.ConfidenceSynonym)}},
		{Token: "CABG", Type: domain.TermProcedure, PlainLabel: "coronary artery bypass graft", Category: "cardiac",
			Synonyms: []domain.Synonym{syn("coronary artery bypass graft", domain.ConfidenceCanonical), syn("cabg", domain.ConfidenceWeak)}},
		{Token: "HERNIA_REPAIR", Type: domain.TermProcedure, PlainLabel: "hernia repair", Category: "general",
			Synonyms: []domain.Synonym{syn("hernia repair", domain.ConfidenceCanonical)}},

		// Medications
		{Token: "PROPOFOL", Type: domain.TermMedication, PlainLabel: "propofol", Category: "induction"},
		{Token: "SEVOFLURANE", Type: domain.TermMedication, PlainLabel: "sevoflurane", Category: "volatile"},
		{Token: "DESFLURANE", Type: domain.TermMedication, PlainLabel: "desflurane", Category: "volatile"},
		{Token: "FENTANYL", Type: domain.TermMedication, PlainLabel: "fentanyl", Category: "opioid"},
		{Token: "DEXAMETHASONE", Type: domain.TermMedication, PlainLabel: "dexamethasone", Category: "antiemetic/steroid"},
		{Token: "ONDANSETRON", Type: domain.TermMedication, PlainLabel: "ondansetron", Category: "antiemetic"},
		{Token: "ALBUTEROL", Type: domain.TermMedication, PlainLabel: "albuterol", Category: "bronchodilator"},
		{Token: "SUCCINYLCHOLINE", Type: domain.TermMedication, PlainLabel: "succinylcholine", Category: "neuromuscular_blocker"},
		{Token: "CISATRACURIUM", Type: domain.TermMedication, PlainLabel: "cisatracurium", Category: "neuromuscular_blocker"},
		{Token: "KETOROLAC", Type: domain.TermMedication, PlainLabel: "ketorolac", Category: "nsaid"},
		{Token: "IBUPROFEN", Type: domain.TermMedication, PlainLabel: "ibuprofen", Category: "nsaid"},
	}
}
