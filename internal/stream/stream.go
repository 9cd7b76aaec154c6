// Package stream runs the safety pipeline over streamed model output: one
// independent analysis per chunk, plus a final pass over the full
// concatenated text that yields the authoritative verdict.
package stream

import (
	"context"
	"strings"

	"github.com/openvault-ai/openvault/internal/analyzer"
	"github.com/openvault-ai/openvault/internal/safety"
)

// ChunkStatus is the per-chunk annotation returned while a stream is open.
type ChunkStatus struct {
	Chunk        string       `json:"chunk"`
	SafetyStatus SafetyStatus `json:"safety_status"`
}

// SafetyStatus is the lightweight verdict attached to each chunk.
type SafetyStatus struct {
	IsSafe             bool `json:"is_safe"`
	ViolationsDetected int  `json:"violations_detected"`
}

// Final is the terminal event carrying the authoritative verdict over the
// whole stream.
type Final struct {
	Event               string                 `json:"event"`
	FinalSafetyAnalysis *safety.AnalysisResult `json:"final_safety_analysis"`
}

// Monitor accumulates one stream's chunks. Chunk verdicts are advisory;
// chunk-level and final verdicts may disagree, and only the final verdict is
// authoritative for audit purposes. Not safe for concurrent use; each stream
// owns its monitor.
type Monitor struct {
	analyzer    *analyzer.SafetyAnalyzer
	textContext string
	buf         strings.Builder
	chunks      int
}

// NewMonitor starts monitoring one stream. textContext applies to every
// chunk analysis and the final pass.
func NewMonitor(a *analyzer.SafetyAnalyzer, textContext string) *Monitor {
	return &Monitor{analyzer: a, textContext: textContext}
}

// Chunk analyzes one delta independently of prior chunks and appends it to
// the stream buffer.
func (m *Monitor) Chunk(ctx context.Context, delta string) (*ChunkStatus, error) {
	m.buf.WriteString(delta)
	m.chunks++

	result, err := m.analyzer.Analyze(ctx, delta, m.textContext)
	if err != nil {
		return nil, err
	}
	return &ChunkStatus{
		Chunk: delta,
		SafetyStatus: SafetyStatus{
			IsSafe:             result.Safe,
			ViolationsDetected: len(result.Violations),
		},
	}, nil
}

// Finish analyzes the full concatenated text and returns the terminal event.
func (m *Monitor) Finish(ctx context.Context) (*Final, error) {
	result, err := m.analyzer.Analyze(ctx, m.buf.String(), m.textContext)
	if err != nil {
		return nil, err
	}
	return &Final{
		Event:               "done",
		FinalSafetyAnalysis: result,
	}, nil
}

// Chunks reports how many deltas the monitor has seen.
func (m *Monitor) Chunks() int {
	return m.chunks
}
