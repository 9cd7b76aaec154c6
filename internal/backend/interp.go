package backend

import (
	"sort"
	"strings"
	"time"
)

// Interpretability explains which tokens and concepts drive the safety
// assessment of a text.
type Interpretability struct {
	FeatureImportance []FeatureImportance `json:"feature_importance"`
	AttentionWeights  [][]float64         `json:"attention_weights"`
	Concepts          []ConceptActivation `json:"concepts"`
	Metadata          InterpMetadata      `json:"metadata"`
}

// FeatureImportance scores a single token's contribution.
type FeatureImportance struct {
	Token      string  `json:"token"`
	Importance float64 `json:"importance"`
	Position   int     `json:"position"`
	Category   string  `json:"category"`
}

// ConceptActivation reports how strongly a safety concept is present.
type ConceptActivation struct {
	Concept          string   `json:"concept"`
	Strength         float64  `json:"strength"`
	Confidence       float64  `json:"confidence"`
	SupportingTokens []string `json:"supporting_tokens"`
}

// InterpMetadata describes how the interpretability analysis was produced.
type InterpMetadata struct {
	AnalysisTimeMs float64   `json:"analysis_time_ms"`
	ModelVersion   string    `json:"model_version"`
	Timestamp      time.Time `json:"timestamp"`
	TextLength     int       `json:"text_length"`
	NumTokens      int       `json:"num_tokens"`
}

const (
	maxImportanceFeatures = 20
	maxAttentionTokens    = 50
	maxSupportingTokens   = 5
)

type conceptSpec struct {
	name       string
	importance float64
	keywords   []string
}

// Concept order fixes the tie-break for equal strengths.
var conceptSpecs = []conceptSpec{
	{"violence", 0.9, []string{"harm", "hurt", "attack", "kill", "violence"}},
	{"bias", 0.8, []string{"stereotype", "prejudice", "discriminate", "racist", "sexist"}},
	{"privacy", 0.7, []string{"personal", "private", "confidential", "secret"}},
	{"helpfulness", 0.6, []string{"help", "assist", "support", "guide", "beneficial"}},
	{"honesty", 0.5, []string{"truth", "honest", "accurate", "factual", "reliable"}},
}

// interpreter is the deterministic keyword-concept interpretability engine
// shared by both backends.
type interpreter struct {
	version string
}

func newInterpreter(version string) *interpreter {
	return &interpreter{version: version}
}

func (ip *interpreter) analyze(text string) *Interpretability {
	start := time.Now()
	tokens := strings.Fields(text)

	out := &Interpretability{
		FeatureImportance: featureImportance(tokens),
		AttentionWeights:  attentionWeights(tokens),
		Concepts:          conceptActivations(text, tokens),
	}
	out.Metadata = InterpMetadata{
		AnalysisTimeMs: float64(time.Since(start)) / float64(time.Millisecond),
		ModelVersion:   ip.version,
		Timestamp:      time.Now().UTC(),
		TextLength:     len(text),
		NumTokens:      len(tokens),
	}
	return out
}

func matchConcept(token string) (conceptSpec, bool) {
	lc := strings.ToLower(token)
	for _, c := range conceptSpecs {
		for _, kw := range c.keywords {
			if strings.Contains(lc, kw) {
				return c, true
			}
		}
	}
	return conceptSpec{}, false
}

func featureImportance(tokens []string) []FeatureImportance {
	out := make([]FeatureImportance, 0, len(tokens))
	for i, token := range tokens {
		importance := 0.1
		category := "neutral"
		if c, ok := matchConcept(token); ok {
			importance = c.importance
			category = c.name
		}
		out = append(out, FeatureImportance{
			Token:      token,
			Importance: importance,
			Position:   i,
			Category:   category,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Importance > out[j].Importance
	})
	if len(out) > maxImportanceFeatures {
		out = out[:maxImportanceFeatures]
	}
	return out
}

// attentionWeights approximates attention as inverse token distance with a
// boost toward safety-relevant tokens, each row normalized to sum to 1.
func attentionWeights(tokens []string) [][]float64 {
	n := len(tokens)
	if n > maxAttentionTokens {
		n = maxAttentionTokens
	}
	matrix := make([][]float64, 0, n)
	for i := 0; i < n; i++ {
		row := make([]float64, n)
		sum := 0.0
		for j := 0; j < n; j++ {
			distance := float64(i - j)
			if distance < 0 {
				distance = -distance
			}
			w := 1.0 / (1.0 + distance*0.1)
			if _, ok := matchConcept(tokens[j]); ok {
				w += 0.3
			}
			if w > 1 {
				w = 1
			}
			row[j] = w
			sum += w
		}
		if sum > 0 {
			for j := range row {
				row[j] /= sum
			}
		}
		matrix = append(matrix, row)
	}
	return matrix
}

func conceptActivations(text string, tokens []string) []ConceptActivation {
	lc := strings.ToLower(text)
	var out []ConceptActivation
	for _, c := range conceptSpecs {
		strength := 0.0
		matched := 0
		var supporting []string
		for _, kw := range c.keywords {
			if !strings.Contains(lc, kw) {
				continue
			}
			strength += 0.2
			matched++
			for _, token := range tokens {
				if strings.Contains(strings.ToLower(token), kw) && len(supporting) < maxSupportingTokens {
					supporting = append(supporting, token)
				}
			}
		}
		if strength == 0 {
			continue
		}
		if strength > 1 {
			strength = 1
		}
		out = append(out, ConceptActivation{
			Concept:          c.name,
			Strength:         strength,
			Confidence:       float64(matched) / float64(len(c.keywords)),
			SupportingTokens: supporting,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Strength > out[j].Strength
	})
	return out
}
