package assembler

import (
	"github.com/local/redactor/internal/clean"
	"github.com/local/redactor/internal/content"
	"github.com/local/redactor/internal/detect"
	"github.com/local/redactor/internal/geom"
	"github.com/local/redactor/internal/redact"
	"github.com/local/redactor/internal/verify"
)

// Page actions.
const (
	ActionKeep   = "keep"
	ActionRedact = "redact"
	ActionDelete = "delete"
)

// PageAction marks a 0-based page.
type PageAction struct {
	Index  int    `json:"index"`
	Action string `json:"action"`
}

// FileRequest describes one input. Path may be a local path, file://,
// s3://bucket/key or an http(s) URL.
type FileRequest struct {
	Path        string              `json:"path"`
	Pages       []PageAction        `json:"pages,omitempty"`
	MasksByPage map[int][]geom.Mask `json:"masks_by_page,omitempty"`
}

// Request is one batch.
type Request struct {
	Files           []FileRequest  `json:"files"`
	OutputDirectory string         `json:"output_directory"`
	Suffix          string         `json:"suffix"`
	Mode            redact.Mode    `json:"mode"`
	Cleaning        clean.Options  `json:"cleaning"`
	Rules           []detect.Rule  `json:"rules,omitempty"`
	UseOCR          bool           `json:"use_ocr,omitempty"`
	Verify          verify.Options `json:"verify,omitempty"`
}

// FileReport describes the processing of one input.
type FileReport struct {
	Input        string         `json:"input"`
	Output       string         `json:"output"`
	Format       string         `json:"format"`
	Strategy     string         `json:"strategy,omitempty"`
	Pages        map[int]string `json:"pages,omitempty"`
	Detected     int            `json:"detected,omitempty"`
	Deleted      int            `json:"deleted,omitempty"`
	Cleaned      []clean.Result `json:"cleaned,omitempty"`
	Warnings     []string       `json:"warnings,omitempty"`
	Verification *verify.Result `json:"verification,omitempty"`
	RenderFailed bool           `json:"render_failed,omitempty"`
}

// Result is the batch outcome. Success holds exactly when Errors is empty.
type Result struct {
	Success        bool         `json:"success"`
	ProcessedFiles []string     `json:"processed_files"`
	Errors         []string     `json:"errors"`
	Warnings       []string     `json:"warnings,omitempty"`
	Files          []FileReport `json:"files,omitempty"`

	// Failures holds the error behind each entry of Errors, in order.
	Failures []error `json:"-"`
}

// Analysis summarizes a document before redaction.
type Analysis struct {
	PageTypes          []content.Class `json:"pageTypes"`
	HasForms           bool            `json:"hasForms"`
	HasAnnotations     bool            `json:"hasAnnotations"`
	HasMetadata        bool            `json:"hasMetadata"`
	HasAttachments     bool            `json:"hasAttachments"`
	HasJavaScript      bool            `json:"hasJavascript"`
	RecommendedMode    redact.Mode     `json:"recommendedMode"`
	AlreadyRedacted    bool            `json:"alreadyRedacted"` // carries our provenance stamp
	HasExtractableText *bool           `json:"hasExtractableText,omitempty"`
}
