package safety

import "time"

// ViolationType is the closed set of violation categories OpenVault reports.
// The set is fixed at compile time; it is part of the wire contract consumed
// by the API and audit layers and is never extended at runtime.
type ViolationType string

const (
	ViolationHarmfulContent ViolationType = "harmful_content"
	ViolationBias           ViolationType = "bias"
	ViolationPrivacy        ViolationType = "privacy"
	ViolationPIIDetected    ViolationType = "pii_detected"
	ViolationMisinformation ViolationType = "misinformation"
	ViolationManipulation   ViolationType = "manipulation"
	ViolationIllegalContent ViolationType = "illegal_content"
	ViolationProfanity      ViolationType = "profanity"
	ViolationSelfHarm       ViolationType = "self_harm"
	ViolationHateSpeech     ViolationType = "hate_speech"
	ViolationPolicy         ViolationType = "policy_violation"
)

// Valid reports whether t is one of the known violation types.
func (t ViolationType) Valid() bool {
	switch t {
	case ViolationHarmfulContent, ViolationBias, ViolationPrivacy,
		ViolationPIIDetected, ViolationMisinformation, ViolationManipulation,
		ViolationIllegalContent, ViolationProfanity, ViolationSelfHarm,
		ViolationHateSpeech, ViolationPolicy:
		return true
	}
	return false
}

// Severity is the ordered scale used for comparing and weighting violations.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank returns the numeric rank of the severity. Higher is more severe.
// Unknown severities rank below low so they never win a dominance comparison.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

// Weight returns the score penalty weight for the severity.
func (s Severity) Weight() float64 {
	switch s {
	case SeverityLow:
		return 0.1
	case SeverityMedium:
		return 0.3
	case SeverityHigh:
		return 0.6
	case SeverityCritical:
		return 1.0
	default:
		return 0.5
	}
}

// Downgrade returns the severity one step lower. Critical becomes high and
// high becomes medium; medium and low are left unchanged.
func (s Severity) Downgrade() Severity {
	switch s {
	case SeverityCritical:
		return SeverityHigh
	case SeverityHigh:
		return SeverityMedium
	default:
		return s
	}
}

// MaxEvidence caps how many matched snippets a single violation carries.
const MaxEvidence = 3

// Violation is a single detected instance of unsafe or policy-breaking
// content.
type Violation struct {
	Type        ViolationType `json:"type"`
	Severity    Severity      `json:"severity"`
	Description string        `json:"description"`
	Evidence    []string      `json:"evidence"`
	Confidence  float64       `json:"confidence"`
	Remediation string        `json:"remediation,omitempty"`
	// PolicySource identifies the policy rule that synthesized the
	// violation, e.g. "acme-content-policy v3". Empty for baseline
	// pattern detections.
	PolicySource string `json:"policy_source,omitempty"`
}

// AnalysisMetadata describes how an analysis result was produced.
type AnalysisMetadata struct {
	AnalysisID     string    `json:"analysis_id"`
	AnalysisTimeMs float64   `json:"analysis_time_ms"`
	ModelVersion   string    `json:"model_version"`
	Timestamp      time.Time `json:"timestamp"`
	TextLength     int       `json:"text_length"`
	PatternMatches int       `json:"pattern_matches"`
	PolicyVersion  string    `json:"policy_version,omitempty"`
}

// AnalysisResult is the sealed outcome of one safety analysis.
// Safe is true iff Violations is empty, and Score is 1.0 for clean text,
// decreasing as violation severity and confidence accumulate.
type AnalysisResult struct {
	Safe       bool             `json:"safe"`
	Score      float64          `json:"score"`
	Violations []Violation      `json:"violations"`
	Metadata   AnalysisMetadata `json:"metadata"`
}

// Score computes the aggregate safety score for a violation set:
// max(0, 1 - min(1, sum(severityWeight * confidence))). The sum saturates at
// 1 so the score never goes negative; duplicates compound the penalty.
func Score(violations []Violation) float64 {
	if len(violations) == 0 {
		return 1.0
	}
	var total float64
	for _, v := range violations {
		total += v.Severity.Weight() * v.Confidence
	}
	if total > 1 {
		total = 1
	}
	score := 1 - total
	if score < 0 {
		score = 0
	}
	return score
}

// MostSevere returns the index of the most severe violation, ties broken by
// earliest position. Returns -1 for an empty slice.
func MostSevere(violations []Violation) int {
	best := -1
	for i, v := range violations {
		if best < 0 || v.Severity.Rank() > violations[best].Severity.Rank() {
			best = i
		}
	}
	return best
}
