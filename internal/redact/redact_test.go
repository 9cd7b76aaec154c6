package redact

import (
	"strings"
	"testing"
)

func TestStringRedaction(t *testing.T) {
	cases := []struct {
		name     string
		input    string
		disallow []string
		require  []string
	}{
		{
			name:     "bearer header",
			input:    "Authorization: Bearer sk-secret-123",
			disallow: []string{"sk-secret-123"},
			require:  []string{"[REDACTED]"},
		},
		{
			name:     "api keys slice",
			input:    "api_keys=[proj-key-1 proj-key-2]",
			disallow: []string{"proj-key-1", "proj-key-2"},
			require:  []string{"api_keys=[REDACTED]"},
		},
		{
			name:     "header key",
			input:    "x-openvault-key=ov-live-998877",
			disallow: []string{"ov-live-998877"},
			require:  []string{"[REDACTED]"},
		},
		{
			name:     "sink url",
			input:    "webhook_url=https://example.com/hooks/audit.json?sig=abc123",
			disallow: []string{"audit.json?sig=abc123"},
			require:  []string{"https://example.com/audit.json"},
		},
		{
			name:     "mixed token",
			input:    "Bearer abc key=supersecret token=anotherone endpoint=https://otel.example.test/collect/base/",
			disallow: []string{"abc", "supersecret", "anotherone", "collect/base/"},
			require:  []string{"[REDACTED]", "https://otel.example.test/[REDACTED_PATH]"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out := String(tc.input)
			for _, bad := range tc.disallow {
				if bad != "" && contains(out, bad) {
					t.Fatalf("output still contains %q: %s", bad, out)
				}
			}
			for _, want := range tc.require {
				if want == "" {
					continue
				}
				if !contains(out, want) {
					t.Fatalf("output missing required substring %q: %s", want, out)
				}
			}
		})
	}
}

func TestPIIMasking(t *testing.T) {
	cases := []struct {
		name     string
		input    string
		disallow []string
	}{
		{"ssn", "my ssn is 123-45-6789", []string{"123-45-6789"}},
		{"card", "card 4111 1111 1111 1111 on file", []string{"4111 1111 1111 1111"}},
		{"email", "reach me at jane.doe@example.com", []string{"jane.doe@example.com"}},
		{"phone", "call 555-867-5309", []string{"555-867-5309"}},
		{"address", "ships to 42 Elm Street today", []string{"42 Elm Street"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out := PII(tc.input)
			for _, bad := range tc.disallow {
				if contains(out, bad) {
					t.Fatalf("output still contains %q: %s", bad, out)
				}
			}
			if !contains(out, "[REDACTED]") {
				t.Fatalf("expected [REDACTED] marker in %q", out)
			}
		})
	}
}

func TestPIIPassthrough(t *testing.T) {
	in := "nothing sensitive here"
	if out := PII(in); out != in {
		t.Fatalf("clean text altered: %q", out)
	}
}

func contains(s, sub string) bool {
	return s != "" && sub != "" && strings.Contains(s, sub)
}
