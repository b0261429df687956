package evaluation

import (
	"fmt"
	"strings"
	"time"
)

const DefaultHighConfidence = 0.8

// Gate rule numbers, in evaluation order.
const (
	RuleInconclusive = 1
	RuleBothPass     = 2
	RuleBothFail     = 3
	RuleHighConfHall = 4
	RuleSingleFail   = 5
)

// ReportMeta identifies the run a report belongs to.
type ReportMeta struct {
	RunID      string
	Workflow   string
	Capability string
	CreatedAt  time.Time
}

// GateInput carries both checks' outcomes. Exactly one of Similarity and
// SimilarityErr is expected to be set, likewise for the judge.
type GateInput struct {
	Similarity    *SimilarityResult
	SimilarityErr error
	Hallucination *HallucinationVerdict
	JudgeErr      error
}

// Gate holds the thresholds of the decision table. It has no other state.
type Gate struct {
	highConfidence float64
}

// NewGate returns a gate that treats judge confidence >= highConfidence as
// high.
func NewGate(highConfidence float64) Gate {
	return Gate{highConfidence: highConfidence}
}

// Decide applies the decision table. It is a pure function of its inputs.
func (g Gate) Decide(meta ReportMeta, in GateInput) EvaluationReport {
	r := EvaluationReport{
		RunID:         meta.RunID,
		Workflow:      meta.Workflow,
		Capability:    meta.Capability,
		Similarity:    in.Similarity,
		Hallucination: in.Hallucination,
		CreatedAt:     meta.CreatedAt,
	}

	verdict, rule, reason := g.decide(in)
	r.OverallVerdict = verdict
	r.Recommendation = verdict.Recommendation()
	r.Rule = rule
	r.Reason = reason
	if rule == RuleInconclusive {
		r.ValidationError = joinErrors(in.SimilarityErr, in.JudgeErr)
	}
	return r
}

func (g Gate) decide(in GateInput) (Verdict, int, string) {
	switch {
	case in.JudgeErr != nil || in.Hallucination == nil:
		return VerdictEscalate, RuleInconclusive, "low confidence in judgment: the judge produced no verdict"
	case in.SimilarityErr != nil || in.Similarity == nil:
		return VerdictEscalate, RuleInconclusive, "low confidence in judgment: the similarity check was inconclusive"
	}

	sim, hall := in.Similarity, in.Hallucination
	switch {
	case sim.Verdict == CheckPass && !hall.HasHallucination:
		return VerdictPass, RuleBothPass,
			fmt.Sprintf("similarity %.3f >= %.2f and no unsupported claims", sim.Score, sim.Threshold)
	case sim.Verdict != CheckPass && hall.HasHallucination:
		return VerdictFailCritical, RuleBothFail,
			fmt.Sprintf("similarity %.3f < %.2f and %d unsupported claim(s)", sim.Score, sim.Threshold, len(hall.FlaggedClaims))
	case hall.HasHallucination && hall.Confidence >= g.highConfidence:
		return VerdictFailCritical, RuleHighConfHall,
			fmt.Sprintf("hallucination reported with confidence %.2f >= %.2f", hall.Confidence, g.highConfidence)
	case hall.HasHallucination:
		return VerdictFailRetry, RuleSingleFail,
			fmt.Sprintf("hallucination reported with medium confidence %.2f", hall.Confidence)
	default:
		return VerdictFailRetry, RuleSingleFail,
			fmt.Sprintf("similarity %.3f < %.2f with no unsupported claims", sim.Score, sim.Threshold)
	}
}

func joinErrors(errs ...error) string {
	var parts []string
	for _, err := range errs {
		if err != nil {
			parts = append(parts, err.Error())
		}
	}
	return strings.Join(parts, "; ")
}
