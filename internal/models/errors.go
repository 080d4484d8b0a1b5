// -----------------------------------------------------------------------
// Export Errors - Categorized error taxonomy with recovery suggestions
// -----------------------------------------------------------------------

package models

import (
	"fmt"
	"strings"
)

// ErrorCategory classifies export failures for retry and reporting decisions.
type ErrorCategory string

const (
	// ErrorTransient covers timeouts, network failures, and rate limits.
	// Transient errors are retried with backoff up to the policy limit.
	ErrorTransient ErrorCategory = "transient"
	// ErrorConfiguration covers missing tools, invalid settings, and
	// permission problems. Never retried.
	ErrorConfiguration ErrorCategory = "configuration"
	// ErrorContent covers invalid diagram syntax and unsupported diagram
	// types. Never retried, attributed to the specific file.
	ErrorContent ErrorCategory = "content"
	// ErrorResource covers memory and disk exhaustion. Out-of-memory is
	// retryable (pressure may pass), disk-full is not.
	ErrorResource ErrorCategory = "resource"
	// ErrorUnknown is the default bucket, treated as non-retryable.
	ErrorUnknown ErrorCategory = "unknown"
)

// ErrorSeverity grades user-facing impact.
type ErrorSeverity string

const (
	SeverityWarning  ErrorSeverity = "warning"
	SeverityError    ErrorSeverity = "error"
	SeverityCritical ErrorSeverity = "critical"
)

// Stable error codes surfaced in results and reports.
const (
	CodeCircularDependencies = "CIRCULAR_DEPENDENCIES"
	CodeMissingDependency    = "MISSING_DEPENDENCY"
	CodeInvalidConfig        = "INVALID_CONFIG"
	CodeNoStrategyAvailable  = "NO_STRATEGY_AVAILABLE"
	CodeRenderFailed         = "RENDER_FAILED"
	CodeWriteFailed          = "WRITE_FAILED"
	CodeOutputMissing        = "OUTPUT_MISSING"
	CodeOperationTimeout     = "OPERATION_TIMEOUT"
	CodeCancelled            = "CANCELLED"
)

// ExportError is the structured error carried by job and batch results.
type ExportError struct {
	Code        string        `json:"code"`
	Message     string        `json:"message"`
	Category    ErrorCategory `json:"category"`
	Severity    ErrorSeverity `json:"severity"`
	Phase       ExportPhase   `json:"phase,omitempty"`
	File        string        `json:"file,omitempty"`
	Format      ExportFormat  `json:"format,omitempty"`
	Retryable   bool          `json:"retryable"`
	Suggestions []string      `json:"suggestions,omitempty"`
}

// Error implements the error interface.
func (e *ExportError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.File)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// retryableFragments are message substrings that mark an error as transient.
var retryableFragments = []string{
	"timeout",
	"network",
	"temporary",
	"resource unavailable",
	"too many requests",
	"out of memory",
}

// nonRetryableFragments override the transient classification even when a
// retryable fragment also matches (disk-full beats out-of-memory style cases).
var nonRetryableFragments = []string{
	"no space left",
	"disk full",
	"permission denied",
	"syntax error",
	"unsupported diagram",
}

// ClassifyError wraps an arbitrary error into an ExportError using the
// keyword heuristic. Already-classified errors pass through unchanged.
func ClassifyError(err error, phase ExportPhase, file string, format ExportFormat) *ExportError {
	if err == nil {
		return nil
	}
	if ee, ok := err.(*ExportError); ok {
		return ee
	}

	msg := err.Error()
	lower := strings.ToLower(msg)

	for _, frag := range nonRetryableFragments {
		if strings.Contains(lower, frag) {
			return &ExportError{
				Code:        CodeRenderFailed,
				Message:     msg,
				Category:    categorizeNonRetryable(frag),
				Severity:    SeverityError,
				Phase:       phase,
				File:        file,
				Format:      format,
				Retryable:   false,
				Suggestions: suggestionsFor(frag),
			}
		}
	}

	for _, frag := range retryableFragments {
		if strings.Contains(lower, frag) {
			return &ExportError{
				Code:      CodeRenderFailed,
				Message:   msg,
				Category:  ErrorTransient,
				Severity:  SeverityWarning,
				Phase:     phase,
				File:      file,
				Format:    format,
				Retryable: true,
				Suggestions: []string{
					"The failure looks transient; it will be retried automatically",
				},
			}
		}
	}

	return &ExportError{
		Code:      CodeRenderFailed,
		Message:   msg,
		Category:  ErrorUnknown,
		Severity:  SeverityError,
		Phase:     phase,
		File:      file,
		Format:    format,
		Retryable: false,
	}
}

func categorizeNonRetryable(fragment string) ErrorCategory {
	switch fragment {
	case "no space left", "disk full":
		return ErrorResource
	case "permission denied":
		return ErrorConfiguration
	case "syntax error", "unsupported diagram":
		return ErrorContent
	}
	return ErrorUnknown
}

func suggestionsFor(fragment string) []string {
	switch fragment {
	case "no space left", "disk full":
		return []string{"Free disk space or choose another output directory"}
	case "permission denied":
		return []string{"Choose an output directory you have write access to"}
	case "syntax error", "unsupported diagram":
		return []string{"Fix the diagram source in the reported file"}
	}
	return nil
}

// ErrorReport groups a collection of export errors by category with
// de-duplicated recovery suggestions, for end-of-run diagnostics.
type ErrorReport struct {
	Total       int                              `json:"total"`
	ByCategory  map[ErrorCategory][]*ExportError `json:"by_category"`
	Suggestions []string                         `json:"suggestions"`
}

// BuildErrorReport consolidates errors into a report.
func BuildErrorReport(errs []*ExportError) *ErrorReport {
	report := &ErrorReport{
		ByCategory: make(map[ErrorCategory][]*ExportError),
	}
	seen := make(map[string]bool)
	for _, e := range errs {
		if e == nil {
			continue
		}
		report.Total++
		report.ByCategory[e.Category] = append(report.ByCategory[e.Category], e)
		for _, s := range e.Suggestions {
			if !seen[s] {
				seen[s] = true
				report.Suggestions = append(report.Suggestions, s)
			}
		}
	}
	return report
}
