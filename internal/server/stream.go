package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/openvault-ai/openvault/internal/audit"
	"github.com/openvault-ai/openvault/internal/redact"
	"github.com/openvault-ai/openvault/internal/stream"
)

type streamRequest struct {
	Chunks  []string `json:"chunks"`
	Context string   `json:"context,omitempty"`
}

// streamError is the in-stream error event. Once the SSE response has started
// the HTTP status is already committed, so failures surface as a terminal
// error event instead.
type streamError struct {
	Event   string `json:"event"`
	Message string `json:"message"`
	Type    string `json:"type"`
}

// handleStream replays the supplied chunks through a stream monitor and
// responds as server-sent events: one event per chunk, then the terminal
// "done" event carrying the authoritative verdict over the full text.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	var req streamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", "invalid_request")
		return
	}
	if len(req.Chunks) == 0 {
		writeError(w, http.StatusBadRequest, "chunks is required", "invalid_request")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported", "streaming_error")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	ctx := r.Context()
	start := time.Now()
	monitor := stream.NewMonitor(s.analyzer, req.Context)

	for _, chunk := range req.Chunks {
		status, err := monitor.Chunk(ctx, chunk)
		if err != nil {
			redact.Logf("stream chunk analysis failed: %v", err)
			writeSSE(w, flusher, streamError{Event: "error", Message: "chunk analysis failed", Type: "analysis_error"})
			return
		}
		writeSSE(w, flusher, status)
	}

	final, err := monitor.Finish(ctx)
	if err != nil {
		redact.Logf("stream final analysis failed: %v", err)
		writeSSE(w, flusher, streamError{Event: "error", Message: "final analysis failed", Type: "analysis_error"})
		return
	}
	writeSSE(w, flusher, final)

	result := final.FinalSafetyAnalysis
	s.tel.RecordAnalysis("stream_final", s.backendMode, projectFrom(ctx), result.Safe, len(result.Violations),
		float64(time.Since(start))/float64(time.Millisecond))
	s.emitAudit(audit.BuildParams{
		Kind:      audit.KindStreamFinal,
		RequestID: result.Metadata.AnalysisID,
		Project:   projectFrom(ctx),
		Backend:   s.backendMode,
		Result:    result,
		Latency:   time.Since(start),
	})
}

func writeSSE(w http.ResponseWriter, flusher http.Flusher, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		redact.Logf("stream: failed to marshal event: %v", err)
		return
	}
	if _, err := w.Write(append(append([]byte("data: "), data...), '\n', '\n')); err != nil {
		return
	}
	flusher.Flush()
}
