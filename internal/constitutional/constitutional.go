// Package constitutional implements the bounded critique-revise loop that
// rewrites text to satisfy a prioritized set of principles.
package constitutional

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Priority orders principles within a revision iteration.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

func (p Priority) rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	case PriorityLow:
		return 2
	default:
		return 3
	}
}

// Principle is one constitutional guideline with its deterministic critique
// keywords and revision replacement table.
type Principle struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Description     string   `json:"description"`
	CritiqueRequest string   `json:"critique_request"`
	RevisionRequest string   `json:"revision_request"`
	Priority        Priority `json:"priority"`

	keywords     []string
	replacements []replacement
	severity     int
	suggestions  []string
}

type replacement struct {
	from string
	to   string
}

// Critique is one principle's finding for one iteration.
type Critique struct {
	Principle  string   `json:"principle"`
	Violation  string   `json:"violation"`
	Suggestion []string `json:"suggestion"`
	Severity   int      `json:"severity"` // 1-10
}

// Result is the outcome of one applyPrinciples run.
type Result struct {
	Original      string     `json:"original"`
	Revised       string     `json:"revised"`
	Critiques     []Critique `json:"critiques"`
	RevisionCount int        `json:"revision_count"`
	Principles    []string   `json:"principles"`
	// AppliedSuccessfully mirrors revisionCount >= 0 and is therefore
	// always true. Kept for wire compatibility; see the exhausted-budget
	// discussion in DESIGN.md.
	AppliedSuccessfully bool `json:"applied_successfully"`
}

// Declaration order breaks priority ties.
var defaultPrinciples = []Principle{
	{
		ID:              "harmlessness",
		Name:            "Harmlessness",
		Description:     "Avoid content that could cause harm",
		CritiqueRequest: "Identify language that could encourage or describe harm",
		RevisionRequest: "Rewrite to remove harmful language while keeping intent",
		Priority:        PriorityHigh,
		keywords:        []string{"kill", "destroy", "attack", "hurt", "harm", "weapon"},
		replacements: []replacement{
			{"kill", "stop"},
			{"destroy", "remove"},
			{"attack", "address"},
			{"hurt", "affect"},
			{"harm", "impact"},
			{"weapon", "tool"},
		},
		severity:    8,
		suggestions: []string{"Replace violent verbs with neutral alternatives", "Reframe the goal without aggression"},
	},
	{
		ID:              "privacy_protection",
		Name:            "Privacy Protection",
		Description:     "Protect personal and confidential information",
		CritiqueRequest: "Identify exposure of personal or confidential details",
		RevisionRequest: "Remove or generalize personal details",
		Priority:        PriorityHigh,
		keywords:        []string{"ssn", "password", "home address", "credit card"},
		replacements: []replacement{
			{"ssn", "personal identifier"},
			{"password", "credential"},
			{"home address", "location"},
			{"credit card", "payment method"},
		},
		severity:    7,
		suggestions: []string{"Generalize identifying details", "Drop credentials entirely"},
	},
	{
		ID:              "honesty",
		Name:            "Honesty",
		Description:     "Be truthful and avoid overclaiming",
		CritiqueRequest: "Identify absolute or unverifiable claims",
		RevisionRequest: "Soften absolute claims to accurate ones",
		Priority:        PriorityMedium,
		keywords:        []string{"guaranteed", "always works", "never fails", "proven fact"},
		replacements: []replacement{
			{"guaranteed", "likely"},
			{"always works", "usually works"},
			{"never fails", "rarely fails"},
			{"proven fact", "supported claim"},
		},
		severity:    5,
		suggestions: []string{"Qualify absolute statements", "Cite the basis for claims"},
	},
	{
		ID:              "helpfulness",
		Name:            "Helpfulness",
		Description:     "Prefer constructive, actionable phrasing",
		CritiqueRequest: "Identify dismissive or unhelpful phrasing",
		RevisionRequest: "Rewrite dismissals into constructive guidance",
		Priority:        PriorityLow,
		keywords:        []string{"impossible", "can't be done", "give up", "useless"},
		replacements: []replacement{
			{"impossible", "challenging"},
			{"can't be done", "difficult to do"},
			{"give up", "reconsider"},
			{"useless", "limited"},
		},
		severity:    3,
		suggestions: []string{"Offer an alternative instead of a dead end"},
	},
}

// Reviser runs the critique-revise loop over a fixed principle registry.
type Reviser struct {
	registry []Principle
	byID     map[string]*Principle
}

// NewReviser builds a reviser over the default principle registry.
func NewReviser() *Reviser {
	r := &Reviser{registry: defaultPrinciples}
	r.byID = make(map[string]*Principle, len(r.registry))
	for i := range r.registry {
		r.byID[r.registry[i].ID] = &r.registry[i]
	}
	return r
}

// Principles returns the registry in declaration order.
func (r *Reviser) Principles() []Principle {
	return r.registry
}

// DefaultMaxRevisions bounds the loop when the caller does not.
const DefaultMaxRevisions = 3

// Options tunes one ApplyPrinciples run.
type Options struct {
	// Principles selects registry entries by id; empty selects all.
	// Unknown ids are dropped silently and degrade to pass-through.
	Principles   []string
	MaxRevisions int
}

// ApplyPrinciples runs the bounded critique-revise loop. Each iteration
// critiques the current text against every selected principle in priority
// order; any violation triggers that principle's replacement table. The loop
// stops early at a fixed point (an iteration with zero violations) or when
// the revision budget is exhausted.
func (r *Reviser) ApplyPrinciples(text string, opts Options) *Result {
	maxRevisions := opts.MaxRevisions
	if maxRevisions <= 0 {
		maxRevisions = DefaultMaxRevisions
	}

	selected := r.selectPrinciples(opts.Principles)
	result := &Result{
		Original:   text,
		Revised:    text,
		Critiques:  []Critique{},
		Principles: []string{},
	}
	for _, p := range selected {
		result.Principles = append(result.Principles, p.Name)
	}

	current := text
	for iteration := 0; iteration < maxRevisions; iteration++ {
		violated := false
		for _, p := range selected {
			critique, ok := critique(current, p)
			if !ok {
				continue
			}
			violated = true
			result.Critiques = append(result.Critiques, critique)

			revised := revise(current, p)
			if revised != current {
				current = revised
				result.RevisionCount++
			}
		}
		if !violated {
			break
		}
	}

	result.Revised = current
	result.AppliedSuccessfully = result.RevisionCount >= 0
	return result
}

// selectPrinciples resolves the requested ids against the registry and
// orders them by priority, declaration order breaking ties.
func (r *Reviser) selectPrinciples(ids []string) []*Principle {
	var out []*Principle
	if len(ids) == 0 {
		for i := range r.registry {
			out = append(out, &r.registry[i])
		}
	} else {
		for _, id := range ids {
			if p, ok := r.byID[id]; ok {
				out = append(out, p)
			}
		}
	}

	declared := make(map[*Principle]int, len(out))
	for i := range r.registry {
		declared[&r.registry[i]] = i
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority.rank() != out[j].Priority.rank() {
			return out[i].Priority.rank() < out[j].Priority.rank()
		}
		return declared[out[i]] < declared[out[j]]
	})
	return out
}

// critique reports whether text violates the principle's keyword set.
func critique(text string, p *Principle) (Critique, bool) {
	lc := strings.ToLower(text)
	for _, kw := range p.keywords {
		if strings.Contains(lc, kw) {
			return Critique{
				Principle:  p.Name,
				Violation:  "Text contains flagged term \"" + kw + "\"",
				Suggestion: p.suggestions,
				Severity:   p.severity,
			}, true
		}
	}
	return Critique{}, false
}

// revise applies the principle's replacement table case-insensitively,
// preserving surrounding text.
func revise(text string, p *Principle) string {
	out := text
	for _, rep := range p.replacements {
		out = replaceFold(out, rep.from, rep.to)
	}
	return out
}

// replaceFold is a case-insensitive strings.ReplaceAll. Matching walks the
// original string rune by rune so multibyte text around a match is carried
// through byte-for-byte; lowercasing a copy and reusing its offsets would
// misalign whenever folding changes byte length.
func replaceFold(s, from, to string) string {
	if from == "" {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); {
		if n, ok := foldPrefixLen(s[i:], from); ok {
			b.WriteString(to)
			i += n
			continue
		}
		_, size := utf8.DecodeRuneInString(s[i:])
		b.WriteString(s[i : i+size])
		i += size
	}
	return b.String()
}

// foldPrefixLen reports the byte length of the prefix of s that matches from
// under simple case folding, if any.
func foldPrefixLen(s, from string) (int, bool) {
	i := 0
	for _, fr := range from {
		r, size := utf8.DecodeRuneInString(s[i:])
		if size == 0 || !foldEq(r, fr) {
			return 0, false
		}
		i += size
	}
	return i, true
}

func foldEq(a, b rune) bool {
	if a == b {
		return true
	}
	for r := unicode.SimpleFold(a); r != a; r = unicode.SimpleFold(r) {
		if r == b {
			return true
		}
	}
	return false
}
