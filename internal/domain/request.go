package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Mode enumerates supported generation targets.
type Mode string

const (
	ModePPT     Mode = "ppt"
	ModePPTFast Mode = "ppt-fast"
	ModeDoc     Mode = "doc"
	ModeExcel   Mode = "excel"
)

// Valid reports whether the mode is one of the recognized values.
func (m Mode) Valid() bool {
	switch m {
	case ModePPT, ModePPTFast, ModeDoc, ModeExcel:
		return true
	}
	return false
}

// Tool returns the generator tool name invoked for this mode.
func (m Mode) Tool() string {
	switch m {
	case ModePPT:
		return "gen_ppt"
	case ModeDoc:
		return "gen_doc"
	case ModeExcel:
		return "gen_excel"
	default:
		return "gen_ppt_fast"
	}
}

// ExportExtension returns the artifact extension the generator exports for
// this mode.
func (m Mode) ExportExtension() string {
	switch m {
	case ModeDoc:
		return "docx"
	case ModeExcel:
		return "xlsx"
	default:
		return "pptx"
	}
}

// GenerationRequest captures one logical document-generation job. Immutable
// once submitted.
type GenerationRequest struct {
	Topic        string `json:"topic"`
	TemplateHint string `json:"template_hint,omitempty"`
	UseNetwork   bool   `json:"use_network"`
	Mode         Mode   `json:"mode"`
	OutlineMD    string `json:"outline_md,omitempty"`
}

// Validate checks the request shape without touching any collaborator.
func (r GenerationRequest) Validate() error {
	if strings.TrimSpace(r.Topic) == "" {
		return NewError(KindInvalidRequest, "topic is required")
	}
	if !r.Mode.Valid() {
		return NewError(KindInvalidRequest, "unsupported mode %q", string(r.Mode))
	}
	return nil
}

// Fingerprint returns a stable digest over all request fields. Two requests
// with the same fingerprint describe the same logical job.
func (r GenerationRequest) Fingerprint() string {
	h := sha256.New()
	for _, field := range []string{r.Topic, r.TemplateHint, string(r.Mode), r.OutlineMD, fmt.Sprintf("%t", r.UseNetwork)} {
		h.Write([]byte(field))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

var hintCaser = cases.Title(language.Und)

// Query composes the generator query text. An outline takes precedence over
// the bare topic; a template hint is appended as a styling directive with the
// hint normalized to title case so brand names render consistently.
func (r GenerationRequest) Query() string {
	var b strings.Builder
	if outline := strings.TrimSpace(r.OutlineMD); outline != "" {
		b.WriteString("Generate from the following outline:\n")
		b.WriteString(outline)
		b.WriteString("\n")
	} else {
		b.WriteString(strings.TrimSpace(r.Topic))
	}
	if hint := strings.TrimSpace(r.TemplateHint); hint != "" {
		b.WriteString(" Template/brand requirements: ")
		b.WriteString(hintCaser.String(hint))
		b.WriteString(".")
	}
	return strings.TrimSpace(b.String())
}
