package safety

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestScore(t *testing.T) {
	cases := []struct {
		name       string
		violations []Violation
		want       float64
	}{
		{"no violations", nil, 1.0},
		{
			"single low",
			[]Violation{{Severity: SeverityLow, Confidence: 0.5}},
			0.95,
		},
		{
			"single critical full confidence",
			[]Violation{{Severity: SeverityCritical, Confidence: 1.0}},
			0.0,
		},
		{
			"penalty saturates",
			[]Violation{
				{Severity: SeverityCritical, Confidence: 1.0},
				{Severity: SeverityCritical, Confidence: 1.0},
			},
			0.0,
		},
		{
			"duplicates compound",
			[]Violation{
				{Severity: SeverityMedium, Confidence: 0.5},
				{Severity: SeverityMedium, Confidence: 0.5},
			},
			0.7,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Score(tc.violations); !almostEqual(got, tc.want) {
				t.Fatalf("Score = %f, want %f", got, tc.want)
			}
		})
	}
}

func TestConfidence(t *testing.T) {
	cases := []struct {
		base  float64
		count int
		want  float64
	}{
		{0.8, 1, 0.82},
		{0.8, 5, 0.9},
		{0.8, 10, 0.9},  // bonus capped at 0.1
		{0.95, 20, 1.0}, // total capped at 1
	}

	for _, tc := range cases {
		if got := Confidence(tc.base, tc.count); !almostEqual(got, tc.want) {
			t.Fatalf("Confidence(%f, %d) = %f, want %f", tc.base, tc.count, got, tc.want)
		}
	}
}

func TestAdjustForContext(t *testing.T) {
	violations := func() []Violation {
		return []Violation{
			{Severity: SeverityCritical, Confidence: 1.0},
			{Severity: SeverityHigh, Confidence: 1.0},
			{Severity: SeverityMedium, Confidence: 1.0},
			{Severity: SeverityLow, Confidence: 1.0},
		}
	}

	t.Run("soft context downgrades one step", func(t *testing.T) {
		vs := violations()
		AdjustForContext(vs, "educational material for a safety course")

		if vs[0].Severity != SeverityHigh || !almostEqual(vs[0].Confidence, 0.7) {
			t.Fatalf("critical not downgraded: %+v", vs[0])
		}
		if vs[1].Severity != SeverityMedium || !almostEqual(vs[1].Confidence, 0.8) {
			t.Fatalf("high not downgraded: %+v", vs[1])
		}
		if vs[2].Severity != SeverityMedium || vs[3].Severity != SeverityLow {
			t.Fatal("medium/low must be untouched")
		}
	})

	t.Run("neutral context is a no-op", func(t *testing.T) {
		vs := violations()
		AdjustForContext(vs, "marketing copy")
		if vs[0].Severity != SeverityCritical || !almostEqual(vs[0].Confidence, 1.0) {
			t.Fatalf("violation modified without soft context: %+v", vs[0])
		}
	})

	t.Run("empty context is a no-op", func(t *testing.T) {
		vs := violations()
		AdjustForContext(vs, "")
		if vs[0].Severity != SeverityCritical {
			t.Fatal("violation modified with empty context")
		}
	})

	t.Run("marker is case-insensitive substring", func(t *testing.T) {
		vs := violations()
		AdjustForContext(vs, "Academic Research Survey")
		if vs[0].Severity != SeverityHigh {
			t.Fatal("expected downgrade for academic context")
		}
	})
}

func TestMostSevere(t *testing.T) {
	vs := []Violation{
		{Type: ViolationBias, Severity: SeverityHigh},
		{Type: ViolationHarmfulContent, Severity: SeverityCritical},
		{Type: ViolationIllegalContent, Severity: SeverityCritical},
	}
	if got := MostSevere(vs); got != 1 {
		t.Fatalf("MostSevere = %d, want 1 (first critical wins ties)", got)
	}
	if got := MostSevere(nil); got != -1 {
		t.Fatalf("MostSevere(nil) = %d, want -1", got)
	}
}

func TestSeverityRankOrdering(t *testing.T) {
	order := []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}
	for i := 1; i < len(order); i++ {
		if order[i].Rank() <= order[i-1].Rank() {
			t.Fatalf("%s should outrank %s", order[i], order[i-1])
		}
	}
	if Severity("bogus").Rank() != 0 {
		t.Fatal("unknown severity must rank below low")
	}
}
