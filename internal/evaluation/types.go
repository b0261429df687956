// Package evaluation implements the validation stage: a semantic similarity
// check, an independent-judge hallucination check, and the gate that turns
// both into a verdict.
package evaluation

import "time"

// CheckVerdict is the outcome of a single check.
type CheckVerdict string

const (
	CheckPass CheckVerdict = "PASS"
	CheckFail CheckVerdict = "FAIL"
)

// Verdict is the gate's overall decision.
type Verdict string

const (
	VerdictPass         Verdict = "PASS"
	VerdictFailRetry    Verdict = "FAIL_RETRY"
	VerdictFailCritical Verdict = "FAIL_CRITICAL"
	VerdictEscalate     Verdict = "ESCALATE"
)

// Recommendation returns the action attached to v.
func (v Verdict) Recommendation() string {
	switch v {
	case VerdictPass:
		return "accept"
	case VerdictFailRetry:
		return "regenerate and re-validate"
	case VerdictFailCritical:
		return "reject, do not retry automatically"
	default:
		return "route to human review"
	}
}

// EvidencePair is what the gate evaluates. SourceMaterial must be exactly
// what the task consumed to produce ProducedArtifact.
type EvidencePair struct {
	ProducedArtifact string `json:"produced_artifact"`
	SourceMaterial   string `json:"source_material"`
}

// SimilarityResult invariant: Verdict == CheckPass iff Score >= Threshold.
type SimilarityResult struct {
	Score     float64      `json:"score"`
	Threshold float64      `json:"threshold"`
	Verdict   CheckVerdict `json:"verdict"`
}

// NewSimilarityResult clips score to [0,1] and derives the verdict.
func NewSimilarityResult(score, threshold float64) SimilarityResult {
	score = clamp01(score)
	v := CheckFail
	if score >= threshold {
		v = CheckPass
	}
	return SimilarityResult{Score: score, Threshold: threshold, Verdict: v}
}

// HallucinationVerdict invariant: FlaggedClaims is empty iff
// HasHallucination is false.
type HallucinationVerdict struct {
	HasHallucination bool     `json:"has_hallucination"`
	Confidence       float64  `json:"confidence"`
	FlaggedClaims    []string `json:"flagged_claims"`
	Reasoning        string   `json:"reasoning,omitempty"`
}

// EvaluationReport is the audit record of one validation stage. It is built
// once by Decide and never modified afterwards.
type EvaluationReport struct {
	RunID      string `json:"run_id,omitempty"`
	Workflow   string `json:"workflow,omitempty"`
	Capability string `json:"capability,omitempty"`

	Similarity    *SimilarityResult     `json:"similarity,omitempty"`
	Hallucination *HallucinationVerdict `json:"hallucination,omitempty"`

	OverallVerdict  Verdict `json:"overall_verdict"`
	Recommendation  string  `json:"recommendation"`
	Rule            int     `json:"rule"`
	Reason          string  `json:"reason"`
	ValidationError string  `json:"validation_error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

func clamp01(x float64) float64 {
	switch {
	case x != x, x < 0: // NaN counts as no similarity
		return 0
	case x > 1:
		return 1
	default:
		return x
	}
}
