package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	ort "github.com/yalue/onnxruntime_go"
	"gopkg.in/yaml.v3"

	"github.com/openvault-ai/openvault/internal/patterns"
	"github.com/openvault-ai/openvault/internal/safety"
)

const defaultSeqLen = 256

// LabelThresholds represents warn/block cutoffs for one classifier label.
type LabelThresholds struct {
	Warn  *float32 `yaml:"warn" json:"warn"`
	Block *float32 `yaml:"block" json:"block"`
}

// labelProfile fixes the severity and messaging attached to each classifier
// label when it fires.
type labelProfile struct {
	severity    safety.Severity
	description string
	remediation string
}

var labelProfiles = map[safety.ViolationType]labelProfile{
	safety.ViolationHarmfulContent: {
		severity:    safety.SeverityCritical,
		description: "Classifier flagged potentially harmful content",
		remediation: "Remove or rephrase violent or dangerous instructions",
	},
	safety.ViolationBias: {
		severity:    safety.SeverityHigh,
		description: "Classifier flagged potentially biased content",
		remediation: "Avoid generalizations about protected groups",
	},
	safety.ViolationPrivacy: {
		severity:    safety.SeverityHigh,
		description: "Classifier flagged personal information exposure",
		remediation: "Redact personal identifiers before sharing",
	},
	safety.ViolationIllegalContent: {
		severity:    safety.SeverityCritical,
		description: "Classifier flagged references to illegal activities",
		remediation: "Remove references to criminal activity",
	},
	safety.ViolationMisinformation: {
		severity:    safety.SeverityMedium,
		description: "Classifier flagged potential misinformation",
		remediation: "Verify claims against reliable sources",
	},
	safety.ViolationManipulation: {
		severity:    safety.SeverityHigh,
		description: "Classifier flagged manipulative language",
		remediation: "Rephrase coercive or deceptive framing",
	},
	safety.ViolationHateSpeech: {
		severity:    safety.SeverityCritical,
		description: "Classifier flagged hate speech",
		remediation: "Remove attacks on protected groups",
	},
	safety.ViolationSelfHarm: {
		severity:    safety.SeverityCritical,
		description: "Classifier flagged self-harm content",
		remediation: "Route to crisis-support response handling",
	},
	safety.ViolationProfanity: {
		severity:    safety.SeverityLow,
		description: "Classifier flagged profanity",
		remediation: "Rephrase without profanity",
	},
}

// Native is the ONNX-backed classifier backend. Inference runs over
// pre-allocated tensors guarded by a mutex; the pattern library supplies
// textual evidence for labels that also match lexically.
type Native struct {
	session    *ort.AdvancedSession
	tokenizer  *wordPieceTokenizer
	labels     []safety.ViolationType
	thresholds map[string]LabelThresholds
	seqLen     int
	version    string
	library    *patterns.Library
	interp     *interpreter

	inputIDs      *ort.Tensor[int64]
	attentionMask *ort.Tensor[int64]
	output        *ort.Tensor[float32]

	mu sync.Mutex
}

// LoadNative initializes the ONNX session, tokenizer, labels, and thresholds
// from a model bundle directory. Any missing or malformed asset is a load
// error; callers decide whether that is fatal or triggers the fallback.
func LoadNative(bundleDir string, seqLen int, lib *patterns.Library) (*Native, error) {
	if bundleDir == "" {
		return nil, errors.New("bundleDir is empty")
	}
	if seqLen <= 0 {
		seqLen = defaultSeqLen
	}

	libPath := resolveSharedLibraryPath(bundleDir)
	if libPath == "" {
		return nil, errors.New("onnxruntime shared library not found; set ONNXRUNTIME_SHARED_LIBRARY_PATH or install the runtime")
	}
	ort.SetSharedLibraryPath(libPath)
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("initialize onnxruntime: %w", err)
		}
	}

	modelPath := filepath.Join(bundleDir, "safety_classifier.onnx")
	labelsPath := filepath.Join(bundleDir, "label_map.json")
	thresholdsPath := filepath.Join(bundleDir, "thresholds.yaml")
	vocabPath := filepath.Join(bundleDir, "tokenizer", "vocab.txt")

	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("model file missing at %s: %w", modelPath, err)
	}

	labels, err := loadLabels(labelsPath)
	if err != nil {
		return nil, fmt.Errorf("load labels: %w", err)
	}

	th, err := loadThresholds(thresholdsPath)
	if err != nil {
		return nil, fmt.Errorf("load thresholds: %w", err)
	}

	tokenizer, err := loadWordPieceTokenizer(vocabPath)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer: %w", err)
	}

	inputShape := ort.NewShape(1, int64(seqLen))
	inputIDs, err := ort.NewEmptyTensor[int64](inputShape)
	if err != nil {
		return nil, fmt.Errorf("allocate input_ids tensor: %w", err)
	}
	attnMask, err := ort.NewEmptyTensor[int64](inputShape)
	if err != nil {
		return nil, fmt.Errorf("allocate attention_mask tensor: %w", err)
	}
	outputShape := ort.NewShape(1, int64(len(labels)))
	output, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		return nil, fmt.Errorf("allocate output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(
		modelPath,
		[]string{"input_ids", "attention_mask"},
		[]string{"logits"},
		[]ort.Value{inputIDs, attnMask},
		[]ort.Value{output},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("create onnx session: %w", err)
	}

	version := bundleVersion(bundleDir)
	return &Native{
		session:       session,
		tokenizer:     tokenizer,
		labels:        labels,
		thresholds:    th,
		seqLen:        seqLen,
		version:       version,
		library:       lib,
		interp:        newInterpreter(version),
		inputIDs:      inputIDs,
		attentionMask: attnMask,
		output:        output,
	}, nil
}

// Version implements Backend.
func (n *Native) Version() string { return n.version }

// AnalyzeSafety implements Backend. Classifier scores above a label's warn
// threshold become violations; textual evidence comes from the pattern
// library where the same category also matches lexically. ML-only detections
// carry empty evidence.
func (n *Native) AnalyzeSafety(ctx context.Context, text, textContext string) (*safety.AnalysisResult, error) {
	if n == nil || n.session == nil || n.tokenizer == nil {
		return nil, errors.New("native backend not initialized")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()

	scores, err := n.classify(text)
	if err != nil {
		return nil, err
	}

	lexical, matches := ViolationsFromScan(n.library, text)
	byType := make(map[safety.ViolationType]safety.Violation, len(lexical))
	for _, v := range lexical {
		if _, seen := byType[v.Type]; !seen {
			byType[v.Type] = v
		}
	}

	violations := make([]safety.Violation, 0, len(n.labels))
	for i, label := range n.labels {
		score := scores[i]
		th, ok := n.thresholds[string(label)]
		if !ok || th.Warn == nil || score < *th.Warn {
			continue
		}

		profile, ok := labelProfiles[label]
		if !ok {
			profile = labelProfile{
				severity:    safety.SeverityMedium,
				description: "Classifier flagged " + string(label),
			}
		}
		severity := profile.severity
		if th.Block == nil || score < *th.Block {
			severity = warnSeverity(profile.severity)
		}

		var evidence []string
		if lex, ok := byType[label]; ok {
			evidence = lex.Evidence
		}
		violations = append(violations, safety.Violation{
			Type:        label,
			Severity:    severity,
			Description: profile.description,
			Evidence:    evidence,
			Confidence:  float64(score),
			Remediation: profile.remediation,
		})
	}

	// Lexical hits the classifier missed still count.
	flagged := make(map[safety.ViolationType]bool, len(violations))
	for _, v := range violations {
		flagged[v.Type] = true
	}
	for _, v := range lexical {
		if !flagged[v.Type] {
			violations = append(violations, v)
			flagged[v.Type] = true
		}
	}

	safety.AdjustForContext(violations, textContext)

	return &safety.AnalysisResult{
		Safe:       len(violations) == 0,
		Score:      safety.Score(violations),
		Violations: violations,
		Metadata: safety.AnalysisMetadata{
			AnalysisTimeMs: float64(time.Since(start)) / float64(time.Millisecond),
			ModelVersion:   n.version,
			Timestamp:      time.Now().UTC(),
			TextLength:     len(text),
			PatternMatches: matches,
		},
	}, nil
}

// AnalyzeInterpretability implements Backend.
func (n *Native) AnalyzeInterpretability(ctx context.Context, text string) (*Interpretability, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return n.interp.analyze(text), nil
}

func (n *Native) classify(text string) ([]float32, error) {
	inputIDs, attn := n.tokenizer.Encode(text, n.seqLen)

	n.mu.Lock()
	defer n.mu.Unlock()

	copy(n.inputIDs.GetData(), inputIDs)
	copy(n.attentionMask.GetData(), attn)

	if err := n.session.Run(); err != nil {
		return nil, fmt.Errorf("onnx run: %w", err)
	}

	raw := n.output.GetData()
	scores := make([]float32, len(n.labels))
	for i := range scores {
		if i >= len(raw) {
			break
		}
		scores[i] = float32(1.0 / (1.0 + math.Exp(-float64(raw[i]))))
	}
	return scores, nil
}

func warnSeverity(s safety.Severity) safety.Severity {
	switch s {
	case safety.SeverityCritical:
		return safety.SeverityHigh
	case safety.SeverityHigh:
		return safety.SeverityMedium
	case safety.SeverityMedium:
		return safety.SeverityLow
	default:
		return safety.SeverityLow
	}
}

func bundleVersion(bundleDir string) string {
	data, err := os.ReadFile(filepath.Join(bundleDir, "VERSION"))
	if err == nil {
		if v := strings.TrimSpace(string(data)); v != "" {
			return "native-onnx-" + v
		}
	}
	return "native-onnx-1.0.0"
}

func loadLabels(path string) ([]safety.ViolationType, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var names []string
	var arr []string
	if err := json.Unmarshal(data, &arr); err == nil && len(arr) > 0 {
		names = arr
	} else {
		var m map[string]string
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, err
		}
		names = make([]string, len(m))
		for k, v := range m {
			idx, convErr := strconv.Atoi(k)
			if convErr != nil {
				return nil, fmt.Errorf("invalid label index %q: %w", k, convErr)
			}
			if idx < 0 || idx >= len(m) {
				return nil, fmt.Errorf("label index %d out of range", idx)
			}
			names[idx] = v
		}
	}

	out := make([]safety.ViolationType, 0, len(names))
	for _, name := range names {
		vt := safety.ViolationType(name)
		if !vt.Valid() {
			return nil, fmt.Errorf("unknown violation label %q", name)
		}
		out = append(out, vt)
	}
	return out, nil
}

func loadThresholds(path string) (map[string]LabelThresholds, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var wrapper struct {
		Thresholds map[string]LabelThresholds `yaml:"thresholds"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, err
	}
	if wrapper.Thresholds == nil {
		wrapper.Thresholds = make(map[string]LabelThresholds)
	}
	return wrapper.Thresholds, nil
}

// resolveSharedLibraryPath locates a platform-specific onnxruntime shared
// library. ONNXRUNTIME_SHARED_LIBRARY_PATH wins when set.
func resolveSharedLibraryPath(bundleDir string) string {
	if env := strings.TrimSpace(os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH")); env != "" {
		return env
	}

	names := []string{
		"libonnxruntime.dylib",
		"onnxruntime.dylib",
		"libonnxruntime.so",
		"onnxruntime.so",
		"onnxruntime.dll",
	}
	dirs := []string{
		bundleDir,
		filepath.Join(bundleDir, "lib"),
		".",
		"/opt/homebrew/lib",
		"/usr/local/lib",
		"/usr/lib",
	}

	for _, dir := range dirs {
		for _, name := range names {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate
			}
		}
	}
	return ""
}
