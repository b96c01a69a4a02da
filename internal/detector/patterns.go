package detector

import (
	"regexp"
	"strings"

	"phivault/internal/core"
)

// regexMatcher emits a span for every match of any of its expressions.
// When group is nonzero the span covers that capture group instead of the
// whole match.
type regexMatcher struct {
	entityType core.EntityType
	confidence float64
	group      int
	exprs      []*regexp.Regexp
}

func (m *regexMatcher) Type() core.EntityType { return m.entityType }

func (m *regexMatcher) Match(text string) []core.Span {
	var spans []core.Span
	for _, re := range m.exprs {
		for _, idx := range re.FindAllStringSubmatchIndex(text, -1) {
			start, end := idx[2*m.group], idx[2*m.group+1]
			if start < 0 || end <= start {
				continue
			}
			spans = append(spans, core.Span{
				Type:       m.entityType,
				Start:      start,
				End:        end,
				Confidence: m.confidence,
				Value:      text[start:end],
			})
		}
	}
	return spans
}

// contextMatcher accepts a match only when one of its keywords appears in
// the surrounding window. Used for bare identifier formats that are too
// generic on their own.
type contextMatcher struct {
	entityType core.EntityType
	confidence float64
	expr       *regexp.Regexp
	keywords   []string
	window     int
}

func (m *contextMatcher) Type() core.EntityType { return m.entityType }

func (m *contextMatcher) Match(text string) []core.Span {
	var spans []core.Span
	for _, idx := range m.expr.FindAllStringIndex(text, -1) {
		start, end := idx[0], idx[1]
		lo := max(0, start-m.window)
		hi := min(len(text), end+m.window)
		context := strings.ToLower(text[lo:hi])

		found := false
		for _, kw := range m.keywords {
			if strings.Contains(context, kw) {
				found = true
				break
			}
		}
		if !found {
			continue
		}
		spans = append(spans, core.Span{
			Type:       m.entityType,
			Start:      start,
			End:        end,
			Confidence: m.confidence,
			Value:      text[start:end],
		})
	}
	return spans
}

// nameMatcher detects personal names while excluding healthcare provider
// names (preceded by a clinical title) and common clinical vocabulary that
// happens to be capitalized.
type nameMatcher struct {
	providerExpr *regexp.Regexp
	exprs        []*regexp.Regexp // each with the name in capture group 1
	stopwords    map[string]struct{}
}

func (m *nameMatcher) Type() core.EntityType { return core.EntityName }

func (m *nameMatcher) Match(text string) []core.Span {
	providerSpans := m.providerExpr.FindAllStringIndex(text, -1)

	var spans []core.Span
	for _, re := range m.exprs {
		for _, idx := range re.FindAllStringSubmatchIndex(text, -1) {
			start, end := idx[2], idx[3]
			if start < 0 || end <= start {
				continue
			}
			if coveredBy(providerSpans, start, end) {
				continue
			}
			value := text[start:end]
			if m.allStopwords(value) {
				continue
			}
			spans = append(spans, core.Span{
				Type:       core.EntityName,
				Start:      start,
				End:        end,
				Confidence: 0.95,
				Value:      value,
			})
		}
	}
	return spans
}

// allStopwords reports whether every word of the candidate is clinical
// vocabulary rather than a name.
func (m *nameMatcher) allStopwords(candidate string) bool {
	words := strings.Fields(candidate)
	if len(words) == 0 {
		return true
	}
	for _, w := range words {
		if _, ok := m.stopwords[strings.TrimRight(w, ".,")]; !ok {
			return false
		}
	}
	return true
}

func coveredBy(spans [][]int, start, end int) bool {
	for _, s := range spans {
		if start >= s[0] && end <= s[1] {
			return true
		}
	}
	return false
}

// DefaultSkipTypes returns the entity categories excluded from substitution
// by default: clinical content stays readable in the transformed output.
func DefaultSkipTypes() []core.EntityType {
	return []core.EntityType{
		core.EntityDiagnosis,
		core.EntityMedication,
		core.EntityCondition,
		core.EntityLabValue,
		core.EntityProcedure,
	}
}

// nameStopwords is capitalized clinical and calendar vocabulary that the
// name patterns would otherwise flag.
var nameStopwords = []string{
	"Type", "Diabetes", "Hypertension", "Blood", "Pressure", "Heart", "Rate",
	"Glucose", "Insulin", "Metformin", "Lisinopril", "Daily", "Twice",
	"Morning", "Evening", "January", "February", "March", "April", "May", "June",
	"July", "August", "September", "October", "November", "December",
	"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday",
	"North", "South", "East", "West", "Central", "General", "Hospital",
	"Clinic", "Center", "Medical", "Health", "Care", "Service", "Department",
	"Emergency", "Primary", "Secondary", "Internal", "Family",
	"Physical", "Mental", "Behavioral", "Cognitive", "Memory", "Sleep",
	"Pain", "Chronic", "Acute", "Severe", "Moderate", "Mild", "Normal",
	"Abnormal", "Positive", "Negative", "Stable", "Critical", "Fair", "Good",
	"Poor", "Excellent", "Test", "Result", "Lab", "Report", "Study",
	"Clinical", "Trial", "Research", "Protocol", "Standard", "Guideline",
	"Patient", "Provider", "Doctor", "Nurse", "Name",
}

// defaultMatchers returns the built-in Safe Harbor matcher set.
func defaultMatchers() []Matcher {
	stopwords := make(map[string]struct{}, len(nameStopwords))
	for _, w := range nameStopwords {
		stopwords[w] = struct{}{}
	}

	return []Matcher{
		&nameMatcher{
			providerExpr: regexp.MustCompile(`\b(?:Dr\.?|Doctor|MD|RN|NP|PA|Nurse|Physician|Therapist|Psychiatrist|Psychologist|Counselor)\s+[A-Z][a-z]+(?:\s+[A-Z][a-z]+)*`),
			exprs: []*regexp.Regexp{
				// Labeled fields; the label match is case-insensitive.
				regexp.MustCompile(`(?i)Name:\s*([A-Z][a-zA-Z]+(?:\s+[A-Z][a-zA-Z]+)*)`),
				regexp.MustCompile(`(?i)Patient:\s*([A-Z][a-zA-Z]+(?:\s+[A-Z][a-zA-Z]+)*)`),
				// Names with courtesy titles.
				regexp.MustCompile(`\b((?:Mr\.?|Mrs\.?|Ms\.?|Miss)\s+[A-Z][a-z]+(?:\s+[A-Z][a-z]+)?)\b`),
				// Named relatives.
				regexp.MustCompile(`\b(?:mother|father|sister|brother|spouse|wife|husband|son|daughter|parent)\s+([A-Z][a-z]+(?:\s+[A-Z][a-z]+)*)`),
				// First Last immediately before identifying context.
				regexp.MustCompile(`\b([A-Z][a-z]+\s+[A-Z][a-z]+)\s*(?:DOB|Phone|Address|,|\n|$|works|lives|employed|called|contacted|visited)`),
				// Greetings.
				regexp.MustCompile(`(?:Hello|Hi|Dear|Hey)\s+([A-Z][a-z]+)`),
				// Names after naming verbs.
				regexp.MustCompile(`(?:called|named|contacted)\s+([A-Z][a-z]+(?:\s+[A-Z][a-z]+)*)`),
				// Sentence-initial single names followed by conversational verbs.
				regexp.MustCompile(`(?:^|\.\s+)([A-Z][a-z]+)(?:\s*[:,]|\s+(?:how|are|is|was|has|had|will|would|can|could|should))`),
				// A whole value that is exactly "First Last".
				regexp.MustCompile(`^([A-Z][a-z]+\s+[A-Z][a-z]+)$`),
			},
			stopwords: stopwords,
		},
		&regexMatcher{
			entityType: core.EntityEmail,
			confidence: 0.99,
			exprs: []*regexp.Regexp{
				regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`),
			},
		},
		&regexMatcher{
			entityType: core.EntityPhone,
			confidence: 0.95,
			exprs: []*regexp.Regexp{
				regexp.MustCompile(`\b\d{3}[-.]?\d{3}[-.]?\d{4}\b`),
				regexp.MustCompile(`\(\d{3}\)\s*\d{3}[-.]?\d{4}\b`),
				regexp.MustCompile(`\+1[-.\s]?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}\b`),
			},
		},
		&regexMatcher{
			entityType: core.EntitySSN,
			confidence: 0.98,
			exprs: []*regexp.Regexp{
				regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
			},
		},
		&regexMatcher{
			entityType: core.EntityDate,
			confidence: 0.9,
			exprs: []*regexp.Regexp{
				regexp.MustCompile(`\b\d{1,2}[/-]\d{1,2}[/-]\d{2,4}\b`),
				regexp.MustCompile(`\b\d{4}[/-]\d{1,2}[/-]\d{1,2}\b`),
				regexp.MustCompile(`(?i)\b\d{1,2}\s+(?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)[a-z]*\s+\d{2,4}\b`),
				regexp.MustCompile(`(?i)\b(?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)[a-z]*\s+\d{1,2},?\s+\d{2,4}\b`),
			},
		},
		&regexMatcher{
			entityType: core.EntityCreditCard,
			confidence: 0.95,
			exprs: []*regexp.Regexp{
				regexp.MustCompile(`\b\d{4}[\s-]?\d{4}[\s-]?\d{4}[\s-]?\d{4}\b`),
			},
		},
		&regexMatcher{
			entityType: core.EntityZIP,
			confidence: 0.85,
			exprs: []*regexp.Regexp{
				regexp.MustCompile(`\b\d{5}(?:-\d{4})?\b`),
			},
		},
		&regexMatcher{
			entityType: core.EntityAddress,
			confidence: 0.9,
			exprs: []*regexp.Regexp{
				regexp.MustCompile(`\b\d+\s+[A-Za-z\s]+(?:St|Street|Ave|Avenue|Rd|Road|Dr|Drive|Ln|Lane|Blvd|Boulevard|Way|Court|Ct|Plaza|Place|Pl)\.?\s*,?\s*[A-Za-z\s]+,?\s*[A-Z]{2}\s+\d{5}(?:-\d{4})?`),
			},
		},
		&regexMatcher{
			entityType: core.EntityMRN,
			confidence: 0.95,
			exprs: []*regexp.Regexp{
				regexp.MustCompile(`(?i)\b(?:MRN|Medical Record Number)[\s:#-]*[A-Z0-9-]+\b`),
				regexp.MustCompile(`(?i)\bPatient ID[\s:#-]*[A-Z0-9-]+\b`),
				regexp.MustCompile(`\b[A-Z]{2,4}-\d{6,10}\b`),
			},
		},
		&regexMatcher{
			entityType: core.EntityInsuranceID,
			confidence: 0.95,
			group:      1,
			exprs: []*regexp.Regexp{
				regexp.MustCompile(`(?i)Insurance ID:\s*([A-Z0-9]+)`),
				regexp.MustCompile(`(?i)\b(?:Member ID|Policy Number)[\s:#-]*([A-Z0-9-]+)\b`),
			},
		},
		&contextMatcher{
			entityType: core.EntityInsuranceID,
			confidence: 0.85,
			expr:       regexp.MustCompile(`\b[A-Z]{1,3}\d{6,12}\b`),
			keywords:   []string{"insurance", "member", "policy", "beneficiary"},
			window:     20,
		},
		&regexMatcher{
			entityType: core.EntityLicense,
			confidence: 0.9,
			exprs: []*regexp.Regexp{
				regexp.MustCompile(`(?i)\b(?:License|Certificate)[\s#:]*[A-Z0-9-]+\b`),
			},
		},
		&regexMatcher{
			entityType: core.EntityVehicleID,
			confidence: 0.95,
			exprs: []*regexp.Regexp{
				regexp.MustCompile(`(?i)\b(?:License Plate|Plate)[\s:#]*[A-Z0-9-]+\b`),
				regexp.MustCompile(`(?i)\bVIN[\s:#]*[A-Z0-9]{17}\b`),
			},
		},
		&regexMatcher{
			entityType: core.EntityDeviceID,
			confidence: 0.95,
			exprs: []*regexp.Regexp{
				regexp.MustCompile(`(?i)\b(?:Serial Number|Serial|SN)[\s:#]*[A-Z0-9-]+\b`),
				regexp.MustCompile(`(?i)\bDevice(?:\s+ID)?[\s:#]*[A-Z0-9-]+\b`),
				regexp.MustCompile(`(?i)\b(?:Pacemaker|Pump|Implant)\s+(?:ID|Serial)[\s:#]*[A-Z0-9-]+\b`),
			},
		},
		&regexMatcher{
			entityType: core.EntityURL,
			confidence: 0.99,
			exprs: []*regexp.Regexp{
				regexp.MustCompile(`https?://[^\s]+`),
			},
		},
		&regexMatcher{
			entityType: core.EntityIPAddress,
			confidence: 0.95,
			exprs: []*regexp.Regexp{
				regexp.MustCompile(`\b(?:[0-9]{1,3}\.){3}[0-9]{1,3}\b`),
			},
		},
		&regexMatcher{
			entityType: core.EntityBiometric,
			confidence: 0.95,
			exprs: []*regexp.Regexp{
				regexp.MustCompile(`(?i)\b(?:Fingerprint|Retinal|Voiceprint|Facial Recognition)(?:\s+ID)?[\s:#]*[A-Z0-9-]+\b`),
			},
		},
		&regexMatcher{
			entityType: core.EntityTrialID,
			confidence: 0.95,
			exprs: []*regexp.Regexp{
				regexp.MustCompile(`\bNCT\d{8}\b`),
			},
		},
		&regexMatcher{
			entityType: core.EntityEmployeeID,
			confidence: 0.9,
			exprs: []*regexp.Regexp{
				regexp.MustCompile(`(?i)\b(?:Employee ID|EID)[\s:#]*[A-Z0-9-]+\b`),
			},
		},
	}
}
