package patterns

import (
	"fmt"
	"regexp"

	"github.com/openvault-ai/openvault/internal/safety"
)

// Category bundles the compiled matchers for one violation category along
// with the defaults applied to every detection in that category.
type Category struct {
	Type           safety.ViolationType
	Severity       safety.Severity
	BaseConfidence float64
	Description    string
	Remediation    string
	Matchers       []*regexp.Regexp
}

// Library holds the compiled per-category matcher sets. It is built once at
// startup and never mutated afterwards; extending the pattern set requires a
// new deployment.
type Library struct {
	categories []Category
}

type categorySpec struct {
	vtype          safety.ViolationType
	severity       safety.Severity
	baseConfidence float64
	description    string
	remediation    string
	patterns       []string
}

// Scan order is fixed: harmful, bias, privacy, illegal, misinformation.
var defaultSpecs = []categorySpec{
	{
		vtype:          safety.ViolationHarmfulContent,
		severity:       safety.SeverityCritical,
		baseConfidence: 0.95,
		description:    "Text contains potentially harmful content",
		remediation:    "Remove or rephrase violent or dangerous instructions",
		patterns: []string{
			`(?i)\b(kill|murder|assassinate|eliminate)\s+(someone|people|person)\b`,
			`(?i)\b(how\s+to\s+)?(make|create|build)\s+(a\s+)?(bomb|weapon|explosive)\b`,
			`(?i)\b(suicide|self\s*harm|cut\s+myself)\b`,
			`(?i)\b(harm|hurt|damage|destroy)\s+(yourself|others|someone)\b`,
			`(?i)\b(violence|violent|attack|assault)\b`,
		},
	},
	{
		vtype:          safety.ViolationBias,
		severity:       safety.SeverityHigh,
		baseConfidence: 0.8,
		description:    "Text contains potentially biased content",
		remediation:    "Avoid generalizations about protected groups",
		patterns: []string{
			`(?i)\b(women|men)\s+are\s+(naturally|always|never)\b`,
			`(?i)\b(black|white|asian|hispanic)\s+people\s+are\b`,
			`(?i)\b(muslims|christians|jews)\s+are\s+(all|always)\b`,
			`(?i)\b(old|young)\s+people\s+(can't|cannot|shouldn't)\b`,
			`(?i)\b(stereotype|prejudice|discriminate)\b`,
		},
	},
	{
		vtype:          safety.ViolationPrivacy,
		severity:       safety.SeverityHigh,
		baseConfidence: 0.9,
		description:    "Text contains personally identifiable information",
		remediation:    "Redact personal identifiers before sharing",
		patterns: []string{
			`\b\d{3}-\d{2}-\d{4}\b`,
			`\b\d{4}\s?\d{4}\s?\d{4}\s?\d{4}\b`,
			`\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`,
			`\b\d{3}-\d{3}-\d{4}\b`,
			`(?i)\b\d{1,5}\s\w+\s(street|st|avenue|ave|road|rd|drive|dr)\b`,
		},
	},
	{
		vtype:          safety.ViolationIllegalContent,
		severity:       safety.SeverityCritical,
		baseConfidence: 0.85,
		description:    "Text contains references to illegal activities",
		remediation:    "Remove references to criminal activity",
		patterns: []string{
			`(?i)\b(illegal|criminal|unlawful)\s+activity\b`,
			`(?i)\b(drug\s+dealing|sell\s+drugs|buy\s+cocaine)\b`,
			`(?i)\b(money\s+laundering|tax\s+evasion)\b`,
			`(?i)\b(hack|steal|rob|fraud)\s+(someone|system|bank)\b`,
		},
	},
	{
		vtype:          safety.ViolationMisinformation,
		severity:       safety.SeverityMedium,
		baseConfidence: 0.75,
		description:    "Text contains potential misinformation",
		remediation:    "Verify claims against reliable sources",
		patterns: []string{
			`(?i)vaccines?\s+(cause|causes)\s+autism`,
			`(?i)covid\s+is\s+a\s+hoax`,
			`(?i)climate\s+change\s+is\s+(fake|a\s+hoax)`,
			`(?i)earth\s+is\s+flat`,
			`(?i)5g\s+(causes|spreads)\s+covid`,
		},
	},
}

// Compile builds the default library. Any pattern that fails to compile is a
// startup error; callers must treat it as fatal and refuse to serve traffic.
func Compile() (*Library, error) {
	return compileSpecs(defaultSpecs)
}

func compileSpecs(specs []categorySpec) (*Library, error) {
	lib := &Library{categories: make([]Category, 0, len(specs))}
	for _, spec := range specs {
		cat := Category{
			Type:           spec.vtype,
			Severity:       spec.severity,
			BaseConfidence: spec.baseConfidence,
			Description:    spec.description,
			Remediation:    spec.remediation,
			Matchers:       make([]*regexp.Regexp, 0, len(spec.patterns)),
		}
		for _, p := range spec.patterns {
			re, err := regexp.Compile(p)
			if err != nil {
				return nil, fmt.Errorf("compile %s pattern %q: %w", spec.vtype, p, err)
			}
			cat.Matchers = append(cat.Matchers, re)
		}
		lib.categories = append(lib.categories, cat)
	}
	return lib, nil
}

// MustCompile is Compile for package-level initialization in tests.
func MustCompile() *Library {
	lib, err := Compile()
	if err != nil {
		panic(err)
	}
	return lib
}

// Categories returns the categories in their fixed scan order.
func (l *Library) Categories() []Category {
	return l.categories
}

// Match is one matcher hit with the raw matched snippets.
type Match struct {
	Category Category
	Count    int
	Evidence []string
}

// Scan runs every matcher in every category against text, in scan order.
// Each matcher that hits at least once contributes one Match carrying up to
// safety.MaxEvidence raw matched substrings.
func (l *Library) Scan(text string) []Match {
	var out []Match
	for _, cat := range l.categories {
		for _, re := range cat.Matchers {
			found := re.FindAllString(text, -1)
			if len(found) == 0 {
				continue
			}
			evidence := found
			if len(evidence) > safety.MaxEvidence {
				evidence = evidence[:safety.MaxEvidence]
			}
			out = append(out, Match{
				Category: cat,
				Count:    len(found),
				Evidence: append([]string(nil), evidence...),
			})
		}
	}
	return out
}
