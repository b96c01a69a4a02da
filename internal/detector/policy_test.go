package detector

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"phivault/internal/core"
)

func writePolicy(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policy.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadPolicyCustomPattern(t *testing.T) {
	path := writePolicy(t, `
patterns:
  - type: MRN
    regex: '\bchart#\d{4}\b'
    confidence: 0.97
`)

	policy, err := LoadPolicy(path)
	if err != nil {
		t.Fatalf("LoadPolicy: %v", err)
	}

	d := New(policy.Options()...)
	spans, _ := d.Detect(context.Background(), "see chart#4821 for history")
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1: %+v", len(spans), spans)
	}
	if spans[0].Type != core.EntityMRN || spans[0].Value != "chart#4821" {
		t.Errorf("got %s %q", spans[0].Type, spans[0].Value)
	}
}

func TestLoadPolicySkipTypes(t *testing.T) {
	path := writePolicy(t, `
skip_types:
  - SSN
`)

	policy, err := LoadPolicy(path)
	if err != nil {
		t.Fatalf("LoadPolicy: %v", err)
	}

	d := New(policy.Options()...)
	spans, _ := d.Detect(context.Background(), "SSN is 123-45-6789 on file")
	for _, s := range spans {
		if s.Type == core.EntitySSN {
			t.Errorf("skipped type detected: %+v", s)
		}
	}
}

func TestLoadPolicyRejectsBadRegex(t *testing.T) {
	path := writePolicy(t, `
patterns:
  - type: MRN
    regex: '(['
`)

	if _, err := LoadPolicy(path); err == nil {
		t.Fatal("expected error for invalid regex")
	}
}

func TestLoadPolicyRequiresType(t *testing.T) {
	path := writePolicy(t, `
patterns:
  - regex: 'x'
`)

	if _, err := LoadPolicy(path); err == nil {
		t.Fatal("expected error for missing type")
	}
}

func TestLoadPolicyMissingFile(t *testing.T) {
	if _, err := LoadPolicy(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
