package interfaces

import (
	"context"

	"github.com/GSejas/mermaid-export-pro/internal/models"
)

// HistoryListOptions filters export history queries.
type HistoryListOptions struct {
	Limit     int
	OnlyFails bool
}

// ExportHistoryStorage persists completed batch summaries.
type ExportHistoryStorage interface {
	// SaveRecord stores one export record.
	SaveRecord(ctx context.Context, record *models.ExportRecord) error

	// GetRecord fetches a record by batch ID.
	GetRecord(ctx context.Context, batchID string) (*models.ExportRecord, error)

	// ListRecords returns records newest first.
	ListRecords(ctx context.Context, opts *HistoryListOptions) ([]*models.ExportRecord, error)

	// Close closes the underlying store.
	Close() error
}
