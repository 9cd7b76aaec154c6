package backend

import (
	"fmt"
	"strings"

	"github.com/openvault-ai/openvault/internal/patterns"
	"github.com/openvault-ai/openvault/internal/redact"
)

// Selection records which backend won at startup. The choice is made exactly
// once; there is no mid-flight switching.
type Selection struct {
	Backend Backend
	Mode    string // "native" or "fallback"
	Reason  string
}

// DecideFallback determines how to handle a failed native backend load.
// Production defaults to requiring the native backend; allowFallback is the
// explicit opt-out that permits the regex fallback there. It is pure so it
// can be tested without ONNX/runtime dependencies.
func DecideFallback(environment string, requireNative, allowFallback bool, loadErr error) (mode string, err error) {
	if loadErr == nil {
		return "native", nil
	}
	if requireNative {
		return "", fmt.Errorf("native backend required but unavailable: %w", loadErr)
	}
	if strings.EqualFold(environment, "production") && !allowFallback {
		return "", fmt.Errorf("native backend unavailable in production: %w", loadErr)
	}
	return "fallback", nil
}

// Select constructs the analysis backend for this process. The native backend
// is attempted once; on failure the regex fallback takes over for the whole
// process lifetime where the environment permits it.
func Select(bundleDir string, seqLen int, environment string, requireNative, allowFallback bool, lib *patterns.Library) (*Selection, error) {
	native, loadErr := LoadNative(bundleDir, seqLen, lib)

	mode, err := DecideFallback(environment, requireNative, allowFallback, loadErr)
	if err != nil {
		return nil, err
	}

	if mode == "native" {
		return &Selection{Backend: native, Mode: "native"}, nil
	}

	redact.Logf("backend: native load failed, using regex fallback: %v", loadErr)
	return &Selection{
		Backend: NewFallback(lib),
		Mode:    "fallback",
		Reason:  loadErr.Error(),
	}, nil
}
