package backend

import (
	"context"
	"time"

	"github.com/openvault-ai/openvault/internal/patterns"
	"github.com/openvault-ai/openvault/internal/redact"
	"github.com/openvault-ai/openvault/internal/safety"
)

const fallbackVersion = "fallback-regex-1.0.0"

// Fallback is the pure, dependency-free backend. It scans the compiled
// pattern library and derives confidence from match counts. It is always
// available and serves as the substitute when the native backend cannot be
// constructed.
type Fallback struct {
	library *patterns.Library
	interp  *interpreter
}

// NewFallback builds the fallback backend over a compiled pattern library.
func NewFallback(lib *patterns.Library) *Fallback {
	return &Fallback{
		library: lib,
		interp:  newInterpreter(fallbackVersion),
	}
}

// Version implements Backend.
func (f *Fallback) Version() string { return fallbackVersion }

// AnalyzeSafety implements Backend. Violations are emitted in the library's
// fixed category scan order; the context adjustment is applied exactly once
// after all categories are scanned.
func (f *Fallback) AnalyzeSafety(_ context.Context, text, textContext string) (*safety.AnalysisResult, error) {
	start := time.Now()

	violations, matches := ViolationsFromScan(f.library, text)
	safety.AdjustForContext(violations, textContext)

	return &safety.AnalysisResult{
		Safe:       len(violations) == 0,
		Score:      safety.Score(violations),
		Violations: violations,
		Metadata: safety.AnalysisMetadata{
			AnalysisTimeMs: float64(time.Since(start)) / float64(time.Millisecond),
			ModelVersion:   fallbackVersion,
			Timestamp:      time.Now().UTC(),
			TextLength:     len(text),
			PatternMatches: matches,
		},
	}, nil
}

// AnalyzeInterpretability implements Backend.
func (f *Fallback) AnalyzeInterpretability(_ context.Context, text string) (*Interpretability, error) {
	return f.interp.analyze(text), nil
}

// ViolationsFromScan converts pattern library matches into violations. Each
// matcher with at least one hit contributes one violation whose confidence
// grows with the match count. Privacy evidence is scrubbed so detected PII
// is not echoed back through result payloads.
func ViolationsFromScan(lib *patterns.Library, text string) ([]safety.Violation, int) {
	scan := lib.Scan(text)

	// Always non-nil: violations marshals as [] on the wire, never null.
	violations := make([]safety.Violation, 0, len(scan))
	total := 0
	for _, m := range scan {
		total += m.Count
		evidence := m.Evidence
		if m.Category.Type == safety.ViolationPrivacy {
			masked := make([]string, len(evidence))
			for i, e := range evidence {
				masked[i] = redact.PII(e)
			}
			evidence = masked
		}
		violations = append(violations, safety.Violation{
			Type:        m.Category.Type,
			Severity:    m.Category.Severity,
			Description: m.Category.Description,
			Evidence:    evidence,
			Confidence:  safety.Confidence(m.Category.BaseConfidence, m.Count),
			Remediation: m.Category.Remediation,
		})
	}
	return violations, total
}
