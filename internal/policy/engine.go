package policy

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openvault-ai/openvault/internal/analyzer"
	"github.com/openvault-ai/openvault/internal/redact"
	"github.com/openvault-ai/openvault/internal/safety"
)

// ErrPolicyInactive marks an attempt to evaluate a policy that is not
// active. Callers distinguish it from pipeline failures.
var ErrPolicyInactive = errors.New("policy is not active")

// Evaluation is the outcome of applying one policy on top of the baseline
// analysis. DominantAction is empty when no rule triggered.
type Evaluation struct {
	Result         *safety.AnalysisResult `json:"result"`
	DominantAction Action                 `json:"dominant_action,omitempty"`
	TriggeredRules []string               `json:"triggered_rules,omitempty"`
}

// Engine layers policy rules over the baseline safety analyzer.
type Engine struct {
	analyzer *analyzer.SafetyAnalyzer
}

// NewEngine builds a policy engine over the given analyzer.
func NewEngine(a *analyzer.SafetyAnalyzer) *Engine {
	return &Engine{analyzer: a}
}

// Evaluate runs the baseline analysis, then each rule in declaration order.
// Triggered rules append a synthesized violation tagged with the policy
// source; safe/score are recomputed over the combined set. Evaluating an
// inactive policy is a caller bug and is rejected.
func (e *Engine) Evaluate(ctx context.Context, text, textContext string, pol *Policy) (*Evaluation, error) {
	if pol == nil {
		return nil, fmt.Errorf("policy is nil")
	}
	if !pol.IsActive {
		return nil, fmt.Errorf("policy %s: %w", pol.Source(), ErrPolicyInactive)
	}

	baseline, err := e.analyzer.Analyze(ctx, text, textContext)
	if err != nil {
		return nil, err
	}

	result := *baseline
	result.Violations = append(make([]safety.Violation, 0, len(baseline.Violations)), baseline.Violations...)
	result.Metadata.PolicyVersion = pol.Version

	type triggered struct {
		rule  *Rule
		index int
	}
	var hits []triggered

	for i := range pol.Rules {
		rule := &pol.Rules[i]
		match, evidence, ok, err := e.evaluateCondition(ctx, &rule.Condition, text, baseline)
		if err != nil {
			return nil, err
		}
		if !ok {
			redact.Logf("policy %s: rule %s has malformed %s parameters, skipping",
				pol.Source(), rule.ID, rule.Condition.Type)
			continue
		}
		if !match {
			continue
		}

		hits = append(hits, triggered{rule: rule, index: i})
		result.Violations = append(result.Violations, safety.Violation{
			Type:         rule.ViolationType,
			Severity:     rule.Severity,
			Description:  rule.Description,
			Evidence:     evidence,
			Confidence:   1.0,
			PolicySource: pol.Source(),
		})
	}

	result.Score = safety.Score(result.Violations)
	result.Safe = len(result.Violations) == 0

	eval := &Evaluation{Result: &result}
	if len(hits) > 0 {
		dominant := hits[0]
		for _, h := range hits[1:] {
			if h.rule.Severity.Rank() > dominant.rule.Severity.Rank() {
				dominant = h
			}
		}
		eval.DominantAction = dominant.rule.Action
		for _, h := range hits {
			eval.TriggeredRules = append(eval.TriggeredRules, h.rule.ID)
		}
	}
	return eval, nil
}

// evaluateCondition returns (matched, evidence, wellFormed, err). A malformed
// condition within a known type reports wellFormed=false so the caller can
// skip and log without failing the whole evaluation; an analysis failure
// inside a condition is a real error and propagates, never degrading toward
// a safer-looking verdict.
func (e *Engine) evaluateCondition(ctx context.Context, c *Condition, text string, baseline *safety.AnalysisResult) (bool, []string, bool, error) {
	switch c.Type {
	case ConditionRegex:
		if c.re == nil {
			return false, nil, false, nil
		}
		found := c.re.FindAllString(text, safety.MaxEvidence)
		return len(found) > 0, found, true, nil

	case ConditionKeywordList:
		if len(c.Keywords) == 0 {
			return false, nil, false, nil
		}
		lc := strings.ToLower(text)
		var evidence []string
		for _, kw := range c.Keywords {
			if strings.Contains(lc, strings.ToLower(kw)) && len(evidence) < safety.MaxEvidence {
				evidence = append(evidence, kw)
			}
		}
		return len(evidence) > 0, evidence, true, nil

	case ConditionSemanticSimilarity:
		if c.Concept == "" || !c.hasThreshold {
			return false, nil, false, nil
		}
		interp, err := e.analyzer.Interpretability(ctx, text)
		if err != nil {
			return false, nil, true, err
		}
		for _, concept := range interp.Concepts {
			if !strings.EqualFold(concept.Concept, c.Concept) {
				continue
			}
			if concept.Strength >= c.Threshold {
				evidence := concept.SupportingTokens
				if len(evidence) > safety.MaxEvidence {
					evidence = evidence[:safety.MaxEvidence]
				}
				return true, evidence, true, nil
			}
		}
		return false, nil, true, nil

	case ConditionModelThreshold:
		if !c.hasThreshold {
			return false, nil, false, nil
		}
		// Triggers when the baseline risk (1 - score) reaches the
		// configured threshold.
		return 1.0-baseline.Score >= c.Threshold, nil, true, nil
	}
	return false, nil, false, nil
}
