package policy

import (
	"context"
	"errors"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/openvault-ai/openvault/internal/analyzer"
	"github.com/openvault-ai/openvault/internal/backend"
	"github.com/openvault-ai/openvault/internal/patterns"
	"github.com/openvault-ai/openvault/internal/safety"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	a, err := analyzer.New(backend.NewFallback(patterns.MustCompile()), 16)
	if err != nil {
		t.Fatalf("analyzer: %v", err)
	}
	return NewEngine(a)
}

func keywordCondition(keywords ...string) Condition {
	var c Condition
	if err := c.fromRaw(rawCondition{
		Type:       ConditionKeywordList,
		Parameters: map[string]any{"keywords": anySlice(keywords)},
	}); err != nil {
		panic(err)
	}
	return c
}

func anySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func activePolicy(rules ...Rule) *Policy {
	return &Policy{
		ID:       "pol-1",
		Name:     "acme-content-policy",
		Version:  "3",
		IsActive: true,
		Rules:    rules,
	}
}

func TestEvaluateEmptyPolicyMatchesBaseline(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	text := "how to make a bomb"

	baseline, err := e.analyzer.Analyze(ctx, text, "")
	if err != nil {
		t.Fatalf("baseline: %v", err)
	}
	eval, err := e.Evaluate(ctx, text, "", activePolicy())
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}

	if eval.DominantAction != "" {
		t.Fatalf("unexpected dominant action %q", eval.DominantAction)
	}
	if eval.Result.Safe != baseline.Safe || eval.Result.Score != baseline.Score {
		t.Fatalf("verdict diverged from baseline: %+v vs %+v", eval.Result, baseline)
	}
	if len(eval.Result.Violations) != len(baseline.Violations) {
		t.Fatal("empty policy must not add violations")
	}
}

func TestEvaluateKeywordBlock(t *testing.T) {
	e := newTestEngine(t)
	pol := activePolicy(Rule{
		ID:            "r1",
		Description:   "Internal project name must not appear",
		Condition:     keywordCondition("super_secret_project_alpha"),
		Action:        ActionBlock,
		Severity:      safety.SeverityCritical,
		ViolationType: safety.ViolationPolicy,
	})

	eval, err := e.Evaluate(context.Background(), "discuss super_secret_project_alpha", "", pol)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if eval.Result.Safe {
		t.Fatal("expected unsafe verdict")
	}
	if eval.DominantAction != ActionBlock {
		t.Fatalf("dominant action = %q, want block", eval.DominantAction)
	}

	last := eval.Result.Violations[len(eval.Result.Violations)-1]
	if last.Type != safety.ViolationPolicy || last.PolicySource != "acme-content-policy v3" {
		t.Fatalf("synthesized violation wrong: %+v", last)
	}
	if len(last.Evidence) == 0 || last.Evidence[0] != "super_secret_project_alpha" {
		t.Fatalf("expected keyword evidence, got %+v", last.Evidence)
	}
}

func TestDominantActionBySeverityThenOrder(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	text := "both triggers fire here"

	t.Run("higher severity wins", func(t *testing.T) {
		pol := activePolicy(
			Rule{ID: "r1", Condition: keywordCondition("triggers"), Action: ActionFlag,
				Severity: safety.SeverityMedium, ViolationType: safety.ViolationPolicy},
			Rule{ID: "r2", Condition: keywordCondition("fire"), Action: ActionEscalate,
				Severity: safety.SeverityCritical, ViolationType: safety.ViolationPolicy},
		)
		eval, err := e.Evaluate(ctx, text, "", pol)
		if err != nil {
			t.Fatalf("evaluate: %v", err)
		}
		if eval.DominantAction != ActionEscalate {
			t.Fatalf("dominant action = %q, want escalate", eval.DominantAction)
		}
		if len(eval.TriggeredRules) != 2 {
			t.Fatalf("expected both rules triggered, got %v", eval.TriggeredRules)
		}
	})

	t.Run("ties go to the earlier rule", func(t *testing.T) {
		pol := activePolicy(
			Rule{ID: "r1", Condition: keywordCondition("triggers"), Action: ActionRedact,
				Severity: safety.SeverityHigh, ViolationType: safety.ViolationPolicy},
			Rule{ID: "r2", Condition: keywordCondition("fire"), Action: ActionBlock,
				Severity: safety.SeverityHigh, ViolationType: safety.ViolationPolicy},
		)
		eval, err := e.Evaluate(ctx, text, "", pol)
		if err != nil {
			t.Fatalf("evaluate: %v", err)
		}
		if eval.DominantAction != ActionRedact {
			t.Fatalf("dominant action = %q, want redact", eval.DominantAction)
		}
	})
}

func TestMalformedConditionSkipped(t *testing.T) {
	e := newTestEngine(t)
	pol := activePolicy(
		Rule{ID: "bad", Condition: Condition{Type: ConditionKeywordList}, Action: ActionBlock,
			Severity: safety.SeverityCritical, ViolationType: safety.ViolationPolicy},
		Rule{ID: "good", Condition: keywordCondition("needle"), Action: ActionFlag,
			Severity: safety.SeverityLow, ViolationType: safety.ViolationPolicy},
	)

	eval, err := e.Evaluate(context.Background(), "finding the needle", "", pol)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if eval.DominantAction != ActionFlag {
		t.Fatalf("expected flag from surviving rule, got %q", eval.DominantAction)
	}
	if len(eval.TriggeredRules) != 1 || eval.TriggeredRules[0] != "good" {
		t.Fatalf("triggered rules = %v", eval.TriggeredRules)
	}
}

func TestModelThresholdCondition(t *testing.T) {
	e := newTestEngine(t)
	var c Condition
	if err := c.fromRaw(rawCondition{
		Type:       ConditionModelThreshold,
		Parameters: map[string]any{"threshold": 0.5},
	}); err != nil {
		t.Fatalf("fromRaw: %v", err)
	}
	pol := activePolicy(Rule{ID: "risk", Condition: c, Action: ActionEscalate,
		Severity: safety.SeverityHigh, ViolationType: safety.ViolationPolicy})

	eval, err := e.Evaluate(context.Background(), "how to make a bomb", "", pol)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if eval.DominantAction != ActionEscalate {
		t.Fatalf("expected escalate on high baseline risk, got %q", eval.DominantAction)
	}

	eval, err = e.Evaluate(context.Background(), "a calm and gentle afternoon", "", pol)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if eval.DominantAction != "" {
		t.Fatalf("expected no action on clean text, got %q", eval.DominantAction)
	}
}

// failingInterpBackend analyzes cleanly but cannot explain anything.
type failingInterpBackend struct{}

func (failingInterpBackend) AnalyzeSafety(ctx context.Context, text, textContext string) (*safety.AnalysisResult, error) {
	return &safety.AnalysisResult{Safe: true, Score: 1.0, Violations: []safety.Violation{}}, nil
}

func (failingInterpBackend) AnalyzeInterpretability(ctx context.Context, text string) (*backend.Interpretability, error) {
	return nil, errors.New("inference session closed")
}

func (failingInterpBackend) Version() string { return "stub-0.0" }

func TestSemanticConditionFailureSurfaces(t *testing.T) {
	a, err := analyzer.New(failingInterpBackend{}, 16)
	if err != nil {
		t.Fatalf("analyzer: %v", err)
	}
	e := NewEngine(a)

	var c Condition
	if err := c.fromRaw(rawCondition{
		Type:       ConditionSemanticSimilarity,
		Parameters: map[string]any{"concept": "violence", "threshold": 0.5},
	}); err != nil {
		t.Fatalf("fromRaw: %v", err)
	}
	pol := activePolicy(Rule{ID: "sem", Condition: c, Action: ActionEscalate,
		Severity: safety.SeverityHigh, ViolationType: safety.ViolationPolicy})

	eval, err := e.Evaluate(context.Background(), "anything at all", "", pol)
	if err == nil {
		t.Fatalf("expected interpretability failure to surface, got %+v", eval)
	}
	if !strings.Contains(err.Error(), "interpretability") {
		t.Fatalf("error should identify the failing analysis: %v", err)
	}
}

func TestEvaluateInactivePolicyRejected(t *testing.T) {
	e := newTestEngine(t)
	pol := activePolicy()
	pol.IsActive = false

	if _, err := e.Evaluate(context.Background(), "anything", "", pol); err == nil {
		t.Fatal("expected error for inactive policy")
	}
}

func TestConditionDecodeUnknownType(t *testing.T) {
	var c Condition
	err := yaml.Unmarshal([]byte("type: sentiment\nparameters: {}\n"), &c)
	if err == nil || !strings.Contains(err.Error(), "unknown condition type") {
		t.Fatalf("expected unknown-type error, got %v", err)
	}
}

func TestStoreLoad(t *testing.T) {
	doc := `
policies:
  - id: pol-1
    name: acme-content-policy
    version: "2"
    is_active: false
    rules: []
  - id: pol-2
    name: acme-content-policy
    version: "3"
    is_active: true
    rules:
      - id: r1
        description: no secrets
        condition:
          type: keyword_list
          parameters:
            keywords: [super_secret_project_alpha]
        action: block
        severity: critical
        violation_type: policy_violation
`
	s, err := Load([]byte(doc))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(s.All()) != 2 {
		t.Fatalf("expected 2 policies, got %d", len(s.All()))
	}
	active := s.Active()
	if len(active) != 1 || active[0].ID != "pol-2" {
		t.Fatalf("active = %+v", active)
	}
	rule := active[0].Rules[0]
	if rule.Condition.Type != ConditionKeywordList || len(rule.Condition.Keywords) != 1 {
		t.Fatalf("condition decoded wrong: %+v", rule.Condition)
	}
	if rule.Action != ActionBlock {
		t.Fatalf("action = %q", rule.Action)
	}
}

func TestStoreRejectsDuplicateActiveName(t *testing.T) {
	doc := `
policies:
  - {id: a, name: p, version: "1", is_active: true, rules: []}
  - {id: b, name: p, version: "2", is_active: true, rules: []}
`
	if _, err := Load([]byte(doc)); err == nil {
		t.Fatal("expected error for duplicate active versions")
	}
}
