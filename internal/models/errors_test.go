package models

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassifyErrorRetryableKeywords(t *testing.T) {
	tests := []struct {
		message   string
		retryable bool
		category  ErrorCategory
	}{
		{"operation timeout after 30s", true, ErrorTransient},
		{"Network connection refused", true, ErrorTransient},
		{"temporary failure in name resolution", true, ErrorTransient},
		{"resource unavailable", true, ErrorTransient},
		{"too many requests, slow down", true, ErrorTransient},
		{"out of memory while rendering", true, ErrorTransient},
		{"syntax error near token", false, ErrorContent},
		{"unsupported diagram type: c4", false, ErrorContent},
		{"permission denied: /out", false, ErrorConfiguration},
		{"no space left on device", false, ErrorResource},
		{"disk full", false, ErrorResource},
		{"something inexplicable", false, ErrorUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			ee := ClassifyError(errors.New(tt.message), PhaseExporting, "docs/a.md", FormatSVG)
			if ee.Retryable != tt.retryable {
				t.Errorf("retryable: expected %v, got %v", tt.retryable, ee.Retryable)
			}
			if ee.Category != tt.category {
				t.Errorf("category: expected %s, got %s", tt.category, ee.Category)
			}
			if ee.File != "docs/a.md" {
				t.Errorf("file context lost: %q", ee.File)
			}
		})
	}
}

func TestClassifyErrorNonRetryableWins(t *testing.T) {
	// "no space left" beats the retryable "resource unavailable" style
	// fragments even when both would match.
	ee := ClassifyError(errors.New("no space left on device: write timeout"), PhaseExporting, "", FormatPNG)
	if ee.Retryable {
		t.Error("disk-full errors must not be retried")
	}
	if ee.Category != ErrorResource {
		t.Errorf("expected resource category, got %s", ee.Category)
	}
}

func TestClassifyErrorPassesThroughExportErrors(t *testing.T) {
	orig := &ExportError{Code: CodeCancelled, Message: "cancelled", Category: ErrorTransient}
	got := ClassifyError(orig, PhaseCleanup, "x", FormatSVG)
	if got != orig {
		t.Error("already-classified errors should pass through unchanged")
	}
}

func TestClassifyErrorNil(t *testing.T) {
	if ClassifyError(nil, PhaseExporting, "", FormatSVG) != nil {
		t.Error("nil error should classify to nil")
	}
}

func TestClassifyErrorUnwrapsWrappedMessages(t *testing.T) {
	wrapped := fmt.Errorf("render failed: %w", errors.New("Network timeout"))
	ee := ClassifyError(wrapped, PhaseExporting, "", FormatSVG)
	if !ee.Retryable {
		t.Error("wrapped transient message should stay retryable")
	}
}

func TestBuildErrorReportGroupsAndDeduplicates(t *testing.T) {
	errs := []*ExportError{
		{Category: ErrorContent, Suggestions: []string{"Fix the diagram source in the reported file"}},
		{Category: ErrorContent, Suggestions: []string{"Fix the diagram source in the reported file"}},
		{Category: ErrorConfiguration, Suggestions: []string{"Install the mermaid CLI"}},
		nil,
	}

	report := BuildErrorReport(errs)

	if report.Total != 3 {
		t.Errorf("expected 3 counted errors, got %d", report.Total)
	}
	if len(report.ByCategory[ErrorContent]) != 2 {
		t.Errorf("expected 2 content errors, got %d", len(report.ByCategory[ErrorContent]))
	}
	if len(report.Suggestions) != 2 {
		t.Errorf("expected de-duplicated suggestions, got %v", report.Suggestions)
	}
}

func TestExportErrorMessageFormat(t *testing.T) {
	withFile := &ExportError{Code: CodeRenderFailed, Message: "boom", File: "docs/a.md"}
	if withFile.Error() != "RENDER_FAILED: boom (docs/a.md)" {
		t.Errorf("unexpected message: %s", withFile.Error())
	}
	withoutFile := &ExportError{Code: CodeRenderFailed, Message: "boom"}
	if withoutFile.Error() != "RENDER_FAILED: boom" {
		t.Errorf("unexpected message: %s", withoutFile.Error())
	}
}
