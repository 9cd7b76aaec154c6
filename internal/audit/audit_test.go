package audit

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/openvault-ai/openvault/internal/safety"
)

func analysisEvent(requestID string) *Event {
	return BuildEvent(BuildParams{
		Kind:      KindAnalysis,
		RequestID: requestID,
		Project:   "p1",
		Backend:   "fallback",
		Result:    &safety.AnalysisResult{Safe: true, Score: 1.0},
	})
}

func TestBuildEventPreviewLevels(t *testing.T) {
	text := "mail jane.doe@example.com the token=verysecretvalue now"

	metadata := BuildEvent(BuildParams{Kind: KindAnalysis, Text: text, PreviewLevel: "metadata"})
	if metadata.TextPreview != "" {
		t.Fatalf("metadata level must drop the preview, got %q", metadata.TextPreview)
	}

	redacted := BuildEvent(BuildParams{Kind: KindAnalysis, Text: text, PreviewLevel: "redacted"})
	if strings.Contains(redacted.TextPreview, "jane.doe@example.com") {
		t.Fatalf("email leaked: %q", redacted.TextPreview)
	}
	if strings.Contains(redacted.TextPreview, "verysecretvalue") {
		t.Fatalf("secret leaked: %q", redacted.TextPreview)
	}

	full := BuildEvent(BuildParams{Kind: KindAnalysis, Text: text, PreviewLevel: "full"})
	if strings.Contains(full.TextPreview, "verysecretvalue") {
		t.Fatalf("full preview must still scrub secrets: %q", full.TextPreview)
	}
}

func TestBuildEventGeneratesRequestID(t *testing.T) {
	ev := BuildEvent(BuildParams{Kind: KindStreamFinal})
	if ev.RequestID == "" {
		t.Fatal("expected generated request id")
	}
	if ev.Version != "1" || ev.Kind != KindStreamFinal {
		t.Fatalf("event header wrong: %+v", ev)
	}
}

func TestFileSinkWritesJSONL(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "nested", "events.jsonl")

	sink, err := NewFileSink(path)
	if err != nil {
		t.Fatalf("file sink: %v", err)
	}

	if err := sink.Deliver(context.Background(), analysisEvent("req-1")); err != nil {
		t.Fatalf("deliver 1: %v", err)
	}
	if err := sink.Deliver(context.Background(), analysisEvent("req-2")); err != nil {
		t.Fatalf("deliver 2: %v", err)
	}
	if err := sink.Close(context.Background()); err != nil {
		t.Fatalf("close sink: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}

	var decoded Event
	if err := json.Unmarshal([]byte(lines[0]), &decoded); err != nil {
		t.Fatalf("unmarshal jsonl line: %v", err)
	}
	if decoded.RequestID != "req-1" {
		t.Fatalf("expected request_id req-1, got %s", decoded.RequestID)
	}
	if decoded.Result == nil || !decoded.Result.Safe {
		t.Fatalf("result payload lost: %+v", decoded)
	}
}

func TestWebhookSinkHandlesNon2xx(t *testing.T) {
	srv := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("fail"))
	}))

	sink, err := NewWebhookSink(srv.URL, map[string]string{"X-Test": "1"}, 200*time.Millisecond)
	if err != nil {
		t.Fatalf("webhook sink: %v", err)
	}
	if err := sink.Deliver(context.Background(), analysisEvent("req-1")); err == nil {
		t.Fatalf("expected non-2xx to return error")
	} else if !strings.Contains(err.Error(), "status") {
		t.Fatalf("error should mention status, got %v", err)
	}
}

func TestEmitterDropsWhenQueueFull(t *testing.T) {
	wait := make(chan struct{})
	sink := &blockingSink{wait: wait}
	em := NewEmitter(EmitterConfig{QueueSize: 1, Workers: 1, ShutdownTimeout: time.Second}, []Sink{sink})

	ev := analysisEvent("r1")
	em.Emit(context.Background(), ev)
	em.Emit(context.Background(), ev)
	em.Emit(context.Background(), ev)

	metrics := em.MetricsSnapshot()
	if metrics.Dropped() == 0 {
		t.Fatalf("expected dropped events when queue is full")
	}

	close(wait)
	em.Close(context.Background())
}

func TestEmitterWebhookIntegration(t *testing.T) {
	var (
		mu       sync.Mutex
		received []Event
	)
	srv := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		var ev Event
		if err := json.NewDecoder(r.Body).Decode(&ev); err == nil {
			mu.Lock()
			received = append(received, ev)
			mu.Unlock()
		}
		w.WriteHeader(http.StatusOK)
	}))

	sink, err := NewWebhookSink(srv.URL, nil, time.Second)
	if err != nil {
		t.Fatalf("webhook sink: %v", err)
	}
	em := NewEmitter(EmitterConfig{QueueSize: 8, Workers: 1, ShutdownTimeout: time.Second}, []Sink{sink})
	defer em.Close(context.Background())

	for i := 0; i < 5; i++ {
		em.Emit(context.Background(), analysisEvent("integration"))
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		if len(received) >= 5 {
			mu.Unlock()
			break
		}
		mu.Unlock()
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for webhook events, got %d", len(received))
		}
		time.Sleep(20 * time.Millisecond)
	}

	metrics := em.MetricsSnapshot()
	if metrics.SinkSuccess(sink.Name()) == 0 {
		t.Fatalf("expected sink success counter to increase")
	}
	if metrics.Dropped() != 0 {
		t.Fatalf("did not expect dropped events, got %d", metrics.Dropped())
	}
}

type blockingSink struct {
	wait chan struct{}
}

func (s *blockingSink) Name() string { return "blocking" }

func (s *blockingSink) Deliver(context.Context, *Event) error {
	<-s.wait
	return nil
}

func (s *blockingSink) Close(context.Context) error {
	if s.wait != nil {
		select {
		case <-s.wait:
		default:
			close(s.wait)
		}
	}
	return nil
}

func newTestServer(t *testing.T, h http.Handler) *httptest.Server {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("skipping: cannot open listener: %v", err)
	}
	srv := httptest.NewUnstartedServer(h)
	srv.Listener = ln
	srv.Start()
	t.Cleanup(srv.Close)
	return srv
}
