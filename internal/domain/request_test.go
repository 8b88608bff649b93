package domain

import (
	"strings"
	"testing"
)

func TestValidate(t *testing.T) {
	valid := GenerationRequest{Topic: "Q1 report", Mode: ModePPT}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid request rejected: %v", err)
	}

	cases := []struct {
		name string
		req  GenerationRequest
	}{
		{"empty topic", GenerationRequest{Topic: "  ", Mode: ModePPT}},
		{"bad mode", GenerationRequest{Topic: "x", Mode: Mode("invalid")}},
		{"missing mode", GenerationRequest{Topic: "x"}},
	}
	for _, tc := range cases {
		err := tc.req.Validate()
		if err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
		classified := Classify(err, KindGeneratorError)
		if classified.Kind != KindInvalidRequest {
			t.Fatalf("%s: kind = %s, want %s", tc.name, classified.Kind, KindInvalidRequest)
		}
	}
}

func TestFingerprintStable(t *testing.T) {
	a := GenerationRequest{Topic: "Q1 report", Mode: ModePPT, UseNetwork: true}
	b := GenerationRequest{Topic: "Q1 report", Mode: ModePPT, UseNetwork: true}
	if a.Fingerprint() != b.Fingerprint() {
		t.Fatalf("identical requests must share a fingerprint")
	}
	c := GenerationRequest{Topic: "Q1 report", Mode: ModeDoc, UseNetwork: true}
	if a.Fingerprint() == c.Fingerprint() {
		t.Fatalf("different modes must not collide")
	}
	d := GenerationRequest{Topic: "Q1 report", Mode: ModePPT, UseNetwork: false}
	if a.Fingerprint() == d.Fingerprint() {
		t.Fatalf("use_network must be part of the fingerprint")
	}
}

func TestQueryOutlinePrecedence(t *testing.T) {
	req := GenerationRequest{
		Topic:     "Q1 report",
		OutlineMD: "# Intro\n# Numbers",
		Mode:      ModePPT,
	}
	q := req.Query()
	if !strings.Contains(q, "# Intro") {
		t.Fatalf("outline missing from query: %q", q)
	}
	if strings.Contains(q, "Q1 report") {
		t.Fatalf("topic should be superseded by outline: %q", q)
	}
}

func TestQueryTemplateHint(t *testing.T) {
	req := GenerationRequest{Topic: "Q1 report", TemplateHint: "acme corporate", Mode: ModePPT}
	q := req.Query()
	if !strings.Contains(q, "Acme Corporate") {
		t.Fatalf("hint not normalized: %q", q)
	}
	if !strings.HasPrefix(q, "Q1 report") {
		t.Fatalf("topic missing: %q", q)
	}
}

func TestModeMapping(t *testing.T) {
	cases := []struct {
		mode Mode
		tool string
		ext  string
	}{
		{ModePPT, "gen_ppt", "pptx"},
		{ModePPTFast, "gen_ppt_fast", "pptx"},
		{ModeDoc, "gen_doc", "docx"},
		{ModeExcel, "gen_excel", "xlsx"},
	}
	for _, tc := range cases {
		if got := tc.mode.Tool(); got != tc.tool {
			t.Fatalf("%s tool = %q, want %q", tc.mode, got, tc.tool)
		}
		if got := tc.mode.ExportExtension(); got != tc.ext {
			t.Fatalf("%s ext = %q, want %q", tc.mode, got, tc.ext)
		}
	}
}
