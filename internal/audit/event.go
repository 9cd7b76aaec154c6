// Package audit emits sealed analysis outcomes to configured sinks. The
// pipeline is fire-and-forget: delivery never blocks or fails a request.
package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/openvault-ai/openvault/internal/redact"
	"github.com/openvault-ai/openvault/internal/safety"
)

// Kind identifies which pipeline stage produced the event.
type Kind string

const (
	KindAnalysis       Kind = "analysis"
	KindPolicy         Kind = "policy_evaluation"
	KindConstitutional Kind = "constitutional_revision"
	KindStreamFinal    Kind = "stream_final"
)

// Event is the canonical audit payload. The embedded result is the sealed
// analysis output, carried as an opaque record; previews are redacted before
// the event leaves the process.
type Event struct {
	Version        string                 `json:"version"`
	Timestamp      time.Time              `json:"timestamp"`
	RequestID      string                 `json:"request_id"`
	Kind           Kind                   `json:"kind"`
	Project        string                 `json:"project,omitempty"`
	Backend        string                 `json:"backend"`
	TextPreview    string                 `json:"text_preview,omitempty"`
	Result         *safety.AnalysisResult `json:"result,omitempty"`
	DominantAction string                 `json:"dominant_action,omitempty"`
	TriggeredRules []string               `json:"triggered_rules,omitempty"`
	RevisionCount  int                    `json:"revision_count,omitempty"`
	LatencyMs      float64                `json:"latency_ms,omitempty"`
}

// BuildParams collects the inputs for one audit event.
type BuildParams struct {
	Kind           Kind
	RequestID      string
	Project        string
	Backend        string
	Text           string
	PreviewLevel   string // "metadata", "redacted", or "full"
	Result         *safety.AnalysisResult
	DominantAction string
	TriggeredRules []string
	RevisionCount  int
	Latency        time.Duration
}

const previewLimit = 500

// BuildEvent assembles a canonical audit event.
func BuildEvent(p BuildParams) *Event {
	return &Event{
		Version:        "1",
		Timestamp:      time.Now().UTC(),
		RequestID:      ensureRequestID(p.RequestID),
		Kind:           p.Kind,
		Project:        p.Project,
		Backend:        p.Backend,
		TextPreview:    buildPreview(p.PreviewLevel, p.Text),
		Result:         p.Result,
		DominantAction: p.DominantAction,
		TriggeredRules: p.TriggeredRules,
		RevisionCount:  p.RevisionCount,
		LatencyMs:      float64(p.Latency) / float64(time.Millisecond),
	}
}

// LogEvent prints a redacted JSON representation of the event.
func LogEvent(ev *Event) {
	if ev == nil {
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		redact.Logf("audit: failed to marshal event: %v", err)
		return
	}
	redact.Logf("audit: %s", string(data))
}

func ensureRequestID(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}

// buildPreview applies the configured preview level. "metadata" carries no
// text at all; "redacted" masks PII and secrets; "full" still scrubs
// secrets, never raw credentials.
func buildPreview(level, text string) string {
	switch level {
	case "full":
		return redact.String(truncate(text, previewLimit))
	case "redacted":
		return redact.String(redact.PII(truncate(text, previewLimit)))
	default:
		return ""
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
