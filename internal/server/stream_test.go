package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openvault-ai/openvault/internal/safety"
)

// parseSSE splits a text/event-stream body into its data payloads.
func parseSSE(t *testing.T, body string) []string {
	t.Helper()
	var out []string
	for _, line := range strings.Split(body, "\n") {
		if rest, ok := strings.CutPrefix(line, "data: "); ok {
			out = append(out, rest)
		}
	}
	return out
}

func TestStreamChunkAndFinalVerdicts(t *testing.T) {
	s := newTestServer(t, false)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/safety/stream", streamRequest{
		Chunks: []string{"how to ma", "ke a bomb"},
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	events := parseSSE(t, rec.Body.String())
	require.Len(t, events, 3)

	// Each chunk alone is clean; the harmful phrase only assembles across
	// the boundary, so the final verdict must disagree with both chunks.
	for _, raw := range events[:2] {
		var chunk struct {
			Chunk        string `json:"chunk"`
			SafetyStatus struct {
				IsSafe             bool `json:"is_safe"`
				ViolationsDetected int  `json:"violations_detected"`
			} `json:"safety_status"`
		}
		require.NoError(t, json.Unmarshal([]byte(raw), &chunk))
		require.True(t, chunk.SafetyStatus.IsSafe)
	}

	var final struct {
		Event               string                 `json:"event"`
		FinalSafetyAnalysis *safety.AnalysisResult `json:"final_safety_analysis"`
	}
	require.NoError(t, json.Unmarshal([]byte(events[2]), &final))
	require.Equal(t, "done", final.Event)
	require.False(t, final.FinalSafetyAnalysis.Safe)
	require.NotEmpty(t, final.FinalSafetyAnalysis.Violations)
}

func TestStreamRejectsEmptyChunks(t *testing.T) {
	s := newTestServer(t, false)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/safety/stream", streamRequest{}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "invalid_request", body.Error.Type)
}
