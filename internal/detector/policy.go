package detector

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"phivault/internal/core"
)

// Policy is the optional YAML-driven detector configuration: which entity
// categories to leave untouched and any deployment-specific patterns.
//
//	skip_types:
//	  - DIAGNOSIS
//	  - MEDICATION
//	patterns:
//	  - type: MRN
//	    regex: '\bACME-\d{7}\b'
//	    confidence: 0.97
type Policy struct {
	// SkipTypes lists entity categories excluded from substitution.
	// Omitting the key keeps the default medical skip-set; an explicit
	// empty list substitutes everything.
	SkipTypes *[]string `yaml:"skip_types"`

	// Patterns are additional matchers evaluated after the built-in set.
	Patterns []PolicyPattern `yaml:"patterns"`
}

// PolicyPattern is one custom regex matcher definition.
type PolicyPattern struct {
	Type       string  `yaml:"type"`
	Regex      string  `yaml:"regex"`
	Confidence float64 `yaml:"confidence"`
	// Group selects a capture group to report instead of the whole match.
	Group int `yaml:"group"`
}

// LoadPolicy reads and validates a policy file.
func LoadPolicy(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read detector policy: %w", err)
	}

	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse detector policy: %w", err)
	}
	for i, pp := range p.Patterns {
		if pp.Type == "" {
			return nil, fmt.Errorf("detector policy pattern %d: type is required", i)
		}
		if _, err := regexp.Compile(pp.Regex); err != nil {
			return nil, fmt.Errorf("detector policy pattern %d: %w", i, err)
		}
	}
	return &p, nil
}

// Options converts the policy into detector options.
func (p *Policy) Options() []Option {
	var opts []Option

	if p.SkipTypes != nil {
		types := make([]core.EntityType, 0, len(*p.SkipTypes))
		for _, t := range *p.SkipTypes {
			types = append(types, core.EntityType(t))
		}
		opts = append(opts, WithSkipTypes(types))
	}

	if len(p.Patterns) > 0 {
		matchers := make([]Matcher, 0, len(p.Patterns))
		for _, pp := range p.Patterns {
			confidence := pp.Confidence
			if confidence <= 0 {
				confidence = 0.9
			}
			matchers = append(matchers, &regexMatcher{
				entityType: core.EntityType(pp.Type),
				confidence: confidence,
				group:      pp.Group,
				exprs:      []*regexp.Regexp{regexp.MustCompile(pp.Regex)},
			})
		}
		opts = append(opts, WithMatchers(matchers...))
	}
	return opts
}
