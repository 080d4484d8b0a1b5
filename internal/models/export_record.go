package models

import "time"

// ExportRecord is the persisted summary of one completed batch, stored in
// badger for history queries and health diagnostics.
type ExportRecord struct {
	ID          string            `badgerhold:"key" json:"id"`
	BatchID     string            `json:"batch_id"`
	Strategy    ExecutionStrategy `json:"strategy"`
	TotalJobs   int               `json:"total_jobs"`
	Succeeded   int               `json:"succeeded"`
	Failed      int               `json:"failed"`
	Skipped     int               `json:"skipped"`
	TotalBytes  int64             `json:"total_bytes"`
	Duration    time.Duration     `json:"duration"`
	OutputDir   string            `json:"output_dir"`
	Formats     []ExportFormat    `json:"formats"`
	CompletedAt time.Time         `json:"completed_at"`
}

// NewExportRecord builds a record from a finished batch result.
func NewExportRecord(batch *Batch, result *BatchResult) *ExportRecord {
	return &ExportRecord{
		ID:          "export_" + batch.ID,
		BatchID:     batch.ID,
		Strategy:    result.Strategy,
		TotalJobs:   result.Summary.TotalJobs,
		Succeeded:   result.Summary.Succeeded,
		Failed:      result.Summary.Failed,
		Skipped:     result.Summary.Skipped,
		TotalBytes:  result.Summary.TotalBytes,
		Duration:    result.Performance.TotalDuration,
		OutputDir:   batch.Config.OutputDirectory,
		Formats:     batch.Config.Formats,
		CompletedAt: result.CompletedAt,
	}
}
