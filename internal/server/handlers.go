package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/openvault-ai/openvault/internal/audit"
	"github.com/openvault-ai/openvault/internal/constitutional"
	"github.com/openvault-ai/openvault/internal/policy"
	"github.com/openvault-ai/openvault/internal/redact"
	"github.com/openvault-ai/openvault/internal/safety"
)

type analyzeRequest struct {
	Text     string `json:"text"`
	Context  string `json:"context,omitempty"`
	PolicyID string `json:"policy_id,omitempty"`
}

// analyzeResponse carries the verdict plus policy outcome. Block verdicts use
// HTTP 403 with this same shape; only request/pipeline failures use the error
// envelope.
type analyzeResponse struct {
	Result         *safety.AnalysisResult `json:"result"`
	DominantAction policy.Action          `json:"dominant_action,omitempty"`
	TriggeredRules []string               `json:"triggered_rules,omitempty"`
	ActionTaken    string                 `json:"action_taken,omitempty"`
	RedactedText   string                 `json:"redacted_text,omitempty"`
	Revision       *constitutional.Result `json:"revision,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"backend": s.backendMode,
		"version": s.analyzer.BackendVersion(),
	})
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", "invalid_request")
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required", "invalid_request")
		return
	}

	resp, status, err := s.analyzeOne(r, &req)
	if err != nil {
		if errors.Is(err, errUnknownPolicy) {
			writeError(w, http.StatusNotFound, "policy not found: "+req.PolicyID, "unknown_policy")
			return
		}
		if errors.Is(err, policy.ErrPolicyInactive) {
			writeError(w, http.StatusConflict, "policy is not active: "+req.PolicyID, "inactive_policy")
			return
		}
		redact.Logf("analyze failed: %v", err)
		writeError(w, http.StatusInternalServerError, "analysis failed", "analysis_error")
		return
	}
	writeJSON(w, status, resp)
}

// analyzeOne runs baseline analysis or a policy evaluation for one text and
// applies the enforcement branch for the dominant action.
func (s *Server) analyzeOne(r *http.Request, req *analyzeRequest) (*analyzeResponse, int, error) {
	ctx := r.Context()
	project := projectFrom(ctx)
	start := time.Now()

	resp := &analyzeResponse{}
	status := http.StatusOK

	if req.PolicyID == "" {
		result, err := s.analyzer.Analyze(ctx, req.Text, req.Context)
		if err != nil {
			return nil, 0, err
		}
		resp.Result = result
	} else {
		pol, ok := s.policies.Get(req.PolicyID)
		if !ok {
			return nil, 0, errUnknownPolicy
		}
		eval, err := s.engine.Evaluate(ctx, req.Text, req.Context, pol)
		if err != nil {
			return nil, 0, err
		}
		resp.Result = eval.Result
		resp.DominantAction = eval.DominantAction
		resp.TriggeredRules = eval.TriggeredRules
		status = s.enforce(req, resp)

		s.tel.RecordPolicyRules(pol.Source(), string(eval.DominantAction), len(eval.TriggeredRules))
		if len(eval.TriggeredRules) > 0 {
			s.emitAudit(audit.BuildParams{
				Kind:           audit.KindPolicy,
				Project:        project,
				Backend:        s.backendMode,
				Text:           req.Text,
				Result:         eval.Result,
				DominantAction: string(eval.DominantAction),
				TriggeredRules: eval.TriggeredRules,
				Latency:        time.Since(start),
			})
		}
	}

	s.tel.RecordAnalysis("analysis", s.backendMode, project, resp.Result.Safe, len(resp.Result.Violations),
		float64(time.Since(start))/float64(time.Millisecond))
	s.emitAudit(audit.BuildParams{
		Kind:      audit.KindAnalysis,
		RequestID: resp.Result.Metadata.AnalysisID,
		Project:   project,
		Backend:   s.backendMode,
		Text:      req.Text,
		Result:    resp.Result,
		Latency:   time.Since(start),
	})

	return resp, status, nil
}

var errUnknownPolicy = errors.New("unknown policy")

// enforce applies the dominant action's branch and returns the HTTP status.
// flag and log_only are reporting-only; block converts the verdict to 403.
func (s *Server) enforce(req *analyzeRequest, resp *analyzeResponse) int {
	switch resp.DominantAction {
	case policy.ActionBlock:
		resp.ActionTaken = "blocked"
		return http.StatusForbidden
	case policy.ActionRedact:
		resp.ActionTaken = "redacted"
		resp.RedactedText = redact.PII(req.Text)
	case policy.ActionRevise:
		resp.ActionTaken = "revised"
		resp.Revision = s.reviser.ApplyPrinciples(req.Text, constitutional.Options{})
	case policy.ActionEscalate:
		resp.ActionTaken = "escalated"
	case policy.ActionFlag:
		resp.ActionTaken = "flagged"
	case policy.ActionLogOnly:
		resp.ActionTaken = "logged"
	}
	return http.StatusOK
}

type batchRequest struct {
	Items []analyzeRequest `json:"items"`
}

type batchResponse struct {
	Results []batchItemResult `json:"results"`
}

// batchItemResult reports per-item outcomes; one failing item does not fail
// the batch.
type batchItemResult struct {
	Index    int              `json:"index"`
	Response *analyzeResponse `json:"response,omitempty"`
	Error    *errorDetail     `json:"error,omitempty"`
}

const maxBatchItems = 64

func (s *Server) handleAnalyzeBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", "invalid_request")
		return
	}
	if len(req.Items) == 0 {
		writeError(w, http.StatusBadRequest, "items is required", "invalid_request")
		return
	}
	if len(req.Items) > maxBatchItems {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("batch exceeds %d items", maxBatchItems), "invalid_request")
		return
	}

	out := batchResponse{Results: make([]batchItemResult, 0, len(req.Items))}
	for i := range req.Items {
		item := &req.Items[i]
		if item.Text == "" {
			out.Results = append(out.Results, batchItemResult{
				Index: i,
				Error: &errorDetail{Message: "text is required", Type: "invalid_request"},
			})
			continue
		}
		resp, _, err := s.analyzeOne(r, item)
		if err != nil {
			detail := &errorDetail{Message: "analysis failed", Type: "analysis_error"}
			if errors.Is(err, errUnknownPolicy) {
				detail = &errorDetail{Message: "policy not found: " + item.PolicyID, Type: "unknown_policy"}
			} else if errors.Is(err, policy.ErrPolicyInactive) {
				detail = &errorDetail{Message: "policy is not active: " + item.PolicyID, Type: "inactive_policy"}
			} else {
				redact.Logf("batch item %d failed: %v", i, err)
			}
			out.Results = append(out.Results, batchItemResult{Index: i, Error: detail})
			continue
		}
		out.Results = append(out.Results, batchItemResult{Index: i, Response: resp})
	}

	writeJSON(w, http.StatusOK, out)
}

type interpretabilityRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleInterpretability(w http.ResponseWriter, r *http.Request) {
	var req interpretabilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", "invalid_request")
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required", "invalid_request")
		return
	}

	out, err := s.analyzer.Interpretability(r.Context(), req.Text)
	if err != nil {
		redact.Logf("interpretability failed: %v", err)
		writeError(w, http.StatusInternalServerError, "interpretability analysis failed", "analysis_error")
		return
	}
	writeJSON(w, http.StatusOK, out)
}

type constitutionalRequest struct {
	Text         string   `json:"text"`
	Principles   []string `json:"principles,omitempty"`
	MaxRevisions int      `json:"max_revisions,omitempty"`
	// Accepted for wire compatibility; the deterministic reviser does not
	// consult them.
	TargetAudience     string `json:"target_audience,omitempty"`
	CustomInstructions string `json:"custom_instructions,omitempty"`
}

func (s *Server) handleConstitutional(w http.ResponseWriter, r *http.Request) {
	var req constitutionalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", "invalid_request")
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required", "invalid_request")
		return
	}

	start := time.Now()
	result := s.reviser.ApplyPrinciples(req.Text, constitutional.Options{
		Principles:   req.Principles,
		MaxRevisions: req.MaxRevisions,
	})

	s.tel.RecordRevisions(result.RevisionCount)
	s.emitAudit(audit.BuildParams{
		Kind:          audit.KindConstitutional,
		Project:       projectFrom(r.Context()),
		Backend:       s.backendMode,
		Text:          req.Text,
		RevisionCount: result.RevisionCount,
		Latency:       time.Since(start),
	})

	writeJSON(w, http.StatusOK, result)
}

type policySummary struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Version   string `json:"version"`
	IsActive  bool   `json:"is_active"`
	RuleCount int    `json:"rule_count"`
}

func (s *Server) handlePolicies(w http.ResponseWriter, r *http.Request) {
	out := make([]policySummary, 0, len(s.policies.All()))
	for _, p := range s.policies.All() {
		out = append(out, policySummary{
			ID:        p.ID,
			Name:      p.Name,
			Version:   p.Version,
			IsActive:  p.IsActive,
			RuleCount: len(p.Rules),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"policies": out})
}

func (s *Server) handleAuditMetrics(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeJSON(w, http.StatusOK, map[string]uint64{"enqueued": 0, "dropped": 0})
		return
	}
	m := s.audit.MetricsSnapshot()
	writeJSON(w, http.StatusOK, map[string]uint64{
		"enqueued": m.Enqueued(),
		"dropped":  m.Dropped(),
	})
}

// emitAudit is fire-and-forget; a nil emitter still logs locally.
func (s *Server) emitAudit(p audit.BuildParams) {
	p.PreviewLevel = s.auditLevel()
	ev := audit.BuildEvent(p)
	if s.audit != nil {
		s.audit.Emit(context.Background(), ev)
		return
	}
	audit.LogEvent(ev)
}
