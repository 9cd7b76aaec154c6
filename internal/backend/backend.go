package backend

import (
	"context"

	"github.com/openvault-ai/openvault/internal/safety"
)

// Backend is the pluggable analysis capability behind the safety analyzer.
// Implementations must be side-effect-free and deterministic for identical
// inputs, and must produce the same result shape and violation taxonomy so
// that swapping backends is invisible to callers.
type Backend interface {
	// AnalyzeSafety scans text and returns a complete analysis result.
	// textContext carries the optional caller-supplied discourse context
	// used for severity adjustment.
	AnalyzeSafety(ctx context.Context, text, textContext string) (*safety.AnalysisResult, error)

	// AnalyzeInterpretability explains which tokens and concepts drive the
	// safety assessment of text.
	AnalyzeInterpretability(ctx context.Context, text string) (*Interpretability, error)

	// Version identifies the backend build, recorded in result metadata.
	Version() string
}
