package telemetry

import (
	"testing"
)

func TestSafeAttributesFiltersSecrets(t *testing.T) {
	kvs := map[string]interface{}{
		"text":          "should drop",
		"content":       "drop",
		"evidence":      "drop",
		"api_key":       "sk-123",
		"token":         "abc",
		"safe_key":      "ok",
		"long_string":   string(make([]byte, 600)),
		"short_string":  "fine",
		"project_id":    "proj",
		"authorization": "secret",
	}

	attrs := SafeAttributes(kvs)
	for _, a := range attrs {
		switch a.Key {
		case "text", "content", "evidence", "api_key", "authorization", "token":
			t.Fatalf("unexpected unsafe attribute %s", a.Key)
		case "long_string":
			t.Fatalf("expected long string to be skipped")
		}
	}

	var sawSafe bool
	for _, a := range attrs {
		if a.Key == "safe_key" {
			sawSafe = true
		}
	}
	if !sawSafe {
		t.Fatal("safe attribute dropped")
	}
}
