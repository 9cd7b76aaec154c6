package backend

import (
	"context"
	"math"
	"testing"

	"github.com/openvault-ai/openvault/internal/patterns"
)

func TestInterpretabilityConcepts(t *testing.T) {
	f := NewFallback(patterns.MustCompile())
	out, err := f.AnalyzeInterpretability(context.Background(), "They threatened to attack and hurt people")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}

	if len(out.Concepts) == 0 {
		t.Fatal("expected at least one concept activation")
	}
	top := out.Concepts[0]
	if top.Concept != "violence" {
		t.Fatalf("expected violence as top concept, got %s", top.Concept)
	}
	if top.Strength <= 0 || top.Strength > 1 {
		t.Fatalf("strength out of range: %f", top.Strength)
	}
	if len(top.SupportingTokens) == 0 {
		t.Fatal("expected supporting tokens")
	}
}

func TestInterpretabilityFeatureRanking(t *testing.T) {
	ip := newInterpreter("test")
	out := ip.analyze("please help me understand violence in history")

	if len(out.FeatureImportance) == 0 {
		t.Fatal("expected feature importances")
	}
	for i := 1; i < len(out.FeatureImportance); i++ {
		if out.FeatureImportance[i].Importance > out.FeatureImportance[i-1].Importance {
			t.Fatalf("importances not sorted at %d", i)
		}
	}
	if out.FeatureImportance[0].Category != "violence" {
		t.Fatalf("expected violence token ranked first, got %q", out.FeatureImportance[0].Category)
	}
	if out.Metadata.NumTokens != 7 {
		t.Fatalf("expected 7 tokens, got %d", out.Metadata.NumTokens)
	}
}

func TestAttentionRowsNormalized(t *testing.T) {
	ip := newInterpreter("test")
	out := ip.analyze("one two three four")

	if len(out.AttentionWeights) != 4 {
		t.Fatalf("expected 4 attention rows, got %d", len(out.AttentionWeights))
	}
	for i, row := range out.AttentionWeights {
		sum := 0.0
		for _, w := range row {
			sum += w
		}
		if math.Abs(sum-1.0) > 1e-9 {
			t.Fatalf("row %d sums to %f", i, sum)
		}
	}
}

func TestInterpretabilityEmptyText(t *testing.T) {
	ip := newInterpreter("test")
	out := ip.analyze("")

	if len(out.FeatureImportance) != 0 || len(out.AttentionWeights) != 0 || len(out.Concepts) != 0 {
		t.Fatalf("expected empty analysis, got %+v", out)
	}
}
