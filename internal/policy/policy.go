package policy

import (
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/openvault-ai/openvault/internal/safety"
)

// Action is the enforcement branch a triggered rule requests. The engine
// never enforces; it only reports the dominant action for the caller.
type Action string

const (
	ActionBlock    Action = "block"
	ActionFlag     Action = "flag"
	ActionRedact   Action = "redact"
	ActionRevise   Action = "revise"
	ActionEscalate Action = "escalate"
	ActionLogOnly  Action = "log_only"
)

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	switch a {
	case ActionBlock, ActionFlag, ActionRedact, ActionRevise, ActionEscalate, ActionLogOnly:
		return true
	}
	return false
}

// ConditionType discriminates the condition union.
type ConditionType string

const (
	ConditionRegex              ConditionType = "regex"
	ConditionKeywordList        ConditionType = "keyword_list"
	ConditionSemanticSimilarity ConditionType = "semantic_similarity"
	ConditionModelThreshold     ConditionType = "model_threshold"
)

// Condition is a tagged union over the four condition types. Exactly one
// variant's fields are meaningful, determined by Type. Unknown types are a
// decode error; a known type with malformed parameters decodes but is
// skipped and logged at evaluation time.
type Condition struct {
	Type ConditionType

	// regex
	Pattern string
	re      *regexp.Regexp

	// keyword_list
	Keywords []string

	// semantic_similarity
	Concept string

	// semantic_similarity, model_threshold
	Threshold    float64
	hasThreshold bool
}

type rawCondition struct {
	Type       ConditionType  `yaml:"type" json:"type"`
	Parameters map[string]any `yaml:"parameters" json:"parameters"`
}

// UnmarshalYAML decodes the {type, parameters} wire shape into the union.
func (c *Condition) UnmarshalYAML(value *yaml.Node) error {
	var raw rawCondition
	if err := value.Decode(&raw); err != nil {
		return err
	}
	return c.fromRaw(raw)
}

// UnmarshalJSON decodes the {type, parameters} wire shape into the union.
func (c *Condition) UnmarshalJSON(data []byte) error {
	var raw rawCondition
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	return c.fromRaw(raw)
}

func (c *Condition) fromRaw(raw rawCondition) error {
	switch raw.Type {
	case ConditionRegex:
		pattern, _ := raw.Parameters["pattern"].(string)
		c.Pattern = pattern
		if pattern != "" {
			// Bad patterns leave re nil; the rule is skipped at
			// evaluation, not rejected at load.
			c.re, _ = regexp.Compile("(?i)" + pattern)
		}
	case ConditionKeywordList:
		if list, ok := raw.Parameters["keywords"].([]any); ok {
			for _, item := range list {
				if kw, ok := item.(string); ok && kw != "" {
					c.Keywords = append(c.Keywords, kw)
				}
			}
		}
	case ConditionSemanticSimilarity:
		concept, _ := raw.Parameters["concept"].(string)
		c.Concept = concept
		c.Threshold, c.hasThreshold = asFloat(raw.Parameters["threshold"])
	case ConditionModelThreshold:
		c.Threshold, c.hasThreshold = asFloat(raw.Parameters["threshold"])
	default:
		return fmt.Errorf("unknown condition type %q", raw.Type)
	}
	c.Type = raw.Type
	return nil
}

func asFloat(v any) (float64, bool) {
	switch num := v.(type) {
	case float64:
		return num, true
	case int:
		return float64(num), true
	case int64:
		return float64(num), true
	default:
		return 0, false
	}
}

// Rule is one policy rule: a condition plus the violation it synthesizes and
// the action it requests when triggered.
type Rule struct {
	ID            string               `yaml:"id"`
	Description   string               `yaml:"description"`
	Condition     Condition            `yaml:"condition"`
	Action        Action               `yaml:"action"`
	Severity      safety.Severity      `yaml:"severity"`
	ViolationType safety.ViolationType `yaml:"violation_type"`
}

// Policy is a named, versioned, activatable bundle of rules layered on top
// of the baseline analysis. Identity is (Name, Version). Policies are
// read-only inputs here; administration lives elsewhere.
type Policy struct {
	ID          string    `yaml:"id" json:"id"`
	Name        string    `yaml:"name" json:"name"`
	Description string    `yaml:"description" json:"description"`
	Version     string    `yaml:"version" json:"version"`
	IsActive    bool      `yaml:"is_active" json:"is_active"`
	Rules       []Rule    `yaml:"rules" json:"-"`
	CreatedAt   time.Time `yaml:"created_at" json:"created_at"`
	UpdatedAt   time.Time `yaml:"updated_at" json:"updated_at"`
}

// Source is the policy tag stamped on synthesized violations.
func (p *Policy) Source() string {
	return p.Name + " v" + p.Version
}
