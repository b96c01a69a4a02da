package detector

import (
	"context"
	"testing"

	"phivault/internal/core"
)

func detectTypes(t *testing.T, d *Detector, text string) []core.Span {
	t.Helper()
	spans, degraded := d.Detect(context.Background(), text)
	if degraded {
		t.Fatalf("detection degraded without an external recognizer")
	}
	return spans
}

func TestDetectSafeHarborCategories(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		wantType core.EntityType
		wantVal  string
	}{
		{"email", "contact me at jane.doe@example.com please", core.EntityEmail, "jane.doe@example.com"},
		{"phone", "call 555-123-4567 tomorrow", core.EntityPhone, "555-123-4567"},
		{"phone parenthesized", "call (555) 123-4567 tomorrow", core.EntityPhone, "(555) 123-4567"},
		{"ssn", "SSN is 123-45-6789 on file", core.EntitySSN, "123-45-6789"},
		{"date slash", "admitted on 01/15/1960 for observation", core.EntityDate, "01/15/1960"},
		{"date month name", "seen on March 3, 2019 by staff", core.EntityDate, "March 3, 2019"},
		{"zip", "lives in area 62704 currently", core.EntityZIP, "62704"},
		{"mrn labeled", "MRN: ABC-1234567", core.EntityMRN, "MRN: ABC-1234567"},
		{"trial id", "enrolled in NCT12345678 last year", core.EntityTrialID, "NCT12345678"},
		{"url", "records at https://portal.example.com/chart", core.EntityURL, "https://portal.example.com/chart"},
		{"ip", "logged in from 192.168.1.50 at night", core.EntityIPAddress, "192.168.1.50"},
		{"insurance labeled", "Member ID: XYZ123456789", core.EntityInsuranceID, "XYZ123456789"},
		{"employee id", "Employee ID: E-4482", core.EntityEmployeeID, "Employee ID: E-4482"},
	}

	d := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spans := detectTypes(t, d, tt.text)
			if len(spans) != 1 {
				t.Fatalf("got %d spans, want 1: %+v", len(spans), spans)
			}
			if spans[0].Type != tt.wantType {
				t.Errorf("got type %s, want %s", spans[0].Type, tt.wantType)
			}
			if spans[0].Value != tt.wantVal {
				t.Errorf("got value %q, want %q", spans[0].Value, tt.wantVal)
			}
		})
	}
}

func TestDetectLabeledNameAndDate(t *testing.T) {
	d := New()
	spans := detectTypes(t, d, "Name: Jane Doe, DOB: 01/15/1960")

	if len(spans) != 2 {
		t.Fatalf("got %d spans, want 2: %+v", len(spans), spans)
	}
	if spans[0].Type != core.EntityName || spans[0].Value != "Jane Doe" {
		t.Errorf("first span = %s %q, want NAME \"Jane Doe\"", spans[0].Type, spans[0].Value)
	}
	if spans[1].Type != core.EntityDate || spans[1].Value != "01/15/1960" {
		t.Errorf("second span = %s %q, want DATE \"01/15/1960\"", spans[1].Type, spans[1].Value)
	}
}

func TestDetectSkipsFieldLabels(t *testing.T) {
	d := New()

	for _, text := range []string{
		"Name: Jane Doe, DOB: 01/15/1960",
		"Seen earlier. Name: Jane Doe",
	} {
		spans := detectTypes(t, d, text)
		for _, s := range spans {
			if s.Value == "Name" {
				t.Errorf("field label flagged as NAME in %q: %+v", text, s)
			}
		}
	}
}

func TestDetectLowercaseLabeledName(t *testing.T) {
	d := New()
	spans := detectTypes(t, d, "name: jane doe")

	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1: %+v", len(spans), spans)
	}
	if spans[0].Type != core.EntityName || spans[0].Value != "jane doe" {
		t.Errorf("got %s %q, want NAME \"jane doe\"", spans[0].Type, spans[0].Value)
	}
}

func TestDetectExcludesProviderNames(t *testing.T) {
	d := New()

	spans := detectTypes(t, d, "Patient was examined. Dr. Sarah Mitchell reviewed the labs.")
	for _, s := range spans {
		if s.Type == core.EntityName {
			t.Errorf("provider name flagged as NAME: %q", s.Value)
		}
	}

	spans = detectTypes(t, d, "Follow up scheduled with Mr. Robert Hayes next week.")
	found := false
	for _, s := range spans {
		if s.Type == core.EntityName {
			found = true
		}
	}
	if !found {
		t.Errorf("titled patient name not detected: %+v", spans)
	}
}

func TestDetectExcludesClinicalVocabulary(t *testing.T) {
	d := New()
	spans := detectTypes(t, d, "Name: Blood Pressure")
	for _, s := range spans {
		if s.Type == core.EntityName {
			t.Errorf("clinical vocabulary flagged as NAME: %q", s.Value)
		}
	}
}

func TestDetectResolvesOverlaps(t *testing.T) {
	d := New()

	// The labeled MRN pattern and the bare-format pattern both hit; only
	// the longer match survives.
	spans := detectTypes(t, d, "record MRN: ABC-1234567 attached")
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1: %+v", len(spans), spans)
	}
	if spans[0].Type != core.EntityMRN {
		t.Errorf("got type %s, want MRN", spans[0].Type)
	}
	if spans[0].Value != "MRN: ABC-1234567" {
		t.Errorf("got %q, want the longer match", spans[0].Value)
	}
}

func TestDetectOrdersSpansByOffset(t *testing.T) {
	d := New()
	spans := detectTypes(t, d, "reach 555-123-4567 or jane@example.com or 10.0.0.1")
	if len(spans) != 3 {
		t.Fatalf("got %d spans, want 3: %+v", len(spans), spans)
	}
	for i := 1; i < len(spans); i++ {
		if spans[i].Start < spans[i-1].End {
			t.Errorf("spans out of order: %+v", spans)
		}
	}
}

// stubMatcher flags fixed values for skip-set tests.
type stubMatcher struct {
	entityType core.EntityType
	value      string
}

func (m stubMatcher) Type() core.EntityType { return m.entityType }

func (m stubMatcher) Match(text string) []core.Span {
	var spans []core.Span
	for i := 0; i+len(m.value) <= len(text); i++ {
		if text[i:i+len(m.value)] == m.value {
			spans = append(spans, core.Span{
				Type: m.entityType, Start: i, End: i + len(m.value),
				Confidence: 0.9, Value: m.value,
			})
		}
	}
	return spans
}

func TestSkipSetPreservesMedicalContent(t *testing.T) {
	med := stubMatcher{entityType: core.EntityMedication, value: "Metformin"}
	text := "taking Metformin daily"

	d := New(WithMatchers(med))
	spans := detectTypes(t, d, text)
	for _, s := range spans {
		if s.Type == core.EntityMedication {
			t.Errorf("medication span not skipped: %+v", s)
		}
	}

	// An explicit empty skip-set substitutes everything.
	d = New(WithMatchers(med), WithSkipTypes(nil))
	spans = detectTypes(t, d, text)
	found := false
	for _, s := range spans {
		if s.Type == core.EntityMedication && s.Value == "Metformin" {
			found = true
		}
	}
	if !found {
		t.Errorf("medication span missing with empty skip-set: %+v", spans)
	}
}

func TestDetectNoEntities(t *testing.T) {
	d := New()
	spans := detectTypes(t, d, "the quick brown fox jumps over the lazy dog")
	if len(spans) != 0 {
		t.Errorf("got %d spans, want 0: %+v", len(spans), spans)
	}
}
