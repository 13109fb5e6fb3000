package domain

// Bucket is the closed set of medication recommendation buckets, ordered
// here from highest to lowest conflict-resolution priority.
type Bucket string

const (
	BucketContraindicated  Bucket = "CONTRAINDICATED"
	BucketDrawNow          Bucket = "DRAW_NOW"
	BucketConsider         Bucket = "CONSIDER"
	BucketEnsureAvailable  Bucket = "ENSURE_AVAILABLE"
	BucketStandard         Bucket = "STANDARD"
)

// bucketPriority ranks buckets for conflict resolution; lower wins.
var bucketPriority = map[Bucket]int{
	BucketContraindicated: 0,
	BucketDrawNow:         1,
	BucketConsider:        2,
	BucketEnsureAvailable: 3,
	BucketStandard:        4,
}

// Priority returns this bucket's conflict-resolution rank (lower = stronger).
func (b Bucket) Priority() int { return bucketPriority[b] }

// MedicationRecommendation is one bucketed medication guidance entry.
type MedicationRecommendation struct {
	Token          string        `json:"token"`
	GenericName    string        `json:"generic_name"`
	Bucket         Bucket        `json:"bucket"`
	Indication     string        `json:"indication"`
	DoseRule       string        `json:"dose_rule,omitempty"`
	EvidenceGrade  EvidenceGrade `json:"evidence_grade"`
	PatientFactors []string      `json:"patient_factors,omitempty"`
	Citations      []string      `json:"citations,omitempty"`
	Justification  string        `json:"justification"`
	MissingWeight  bool          `json:"missing_weight"`
	Unsupported    bool          `json:"unsupported"`
}
