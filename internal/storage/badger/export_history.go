package badger

import (
	"context"
	"errors"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/GSejas/mermaid-export-pro/internal/interfaces"
	"github.com/GSejas/mermaid-export-pro/internal/models"
)

// ExportHistoryStorage implements the ExportHistoryStorage interface for Badger
type ExportHistoryStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewExportHistoryStorage creates a new ExportHistoryStorage instance
func NewExportHistoryStorage(db *BadgerDB, logger arbor.ILogger) interfaces.ExportHistoryStorage {
	return &ExportHistoryStorage{
		db:     db,
		logger: logger,
	}
}

func (s *ExportHistoryStorage) SaveRecord(ctx context.Context, record *models.ExportRecord) error {
	if err := s.db.Store().Upsert(record.ID, record); err != nil {
		return fmt.Errorf("failed to save export record: %w", err)
	}
	s.logger.Debug().Str("batch_id", record.BatchID).Msg("Export record saved")
	return nil
}

func (s *ExportHistoryStorage) GetRecord(ctx context.Context, batchID string) (*models.ExportRecord, error) {
	var record models.ExportRecord
	err := s.db.Store().Get("export_"+batchID, &record)
	if errors.Is(err, badgerhold.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get export record: %w", err)
	}
	return &record, nil
}

func (s *ExportHistoryStorage) ListRecords(ctx context.Context, opts *interfaces.HistoryListOptions) ([]*models.ExportRecord, error) {
	query := &badgerhold.Query{}
	if opts != nil && opts.OnlyFails {
		query = badgerhold.Where("Failed").Gt(0)
	}
	query = query.SortBy("CompletedAt").Reverse()
	if opts != nil && opts.Limit > 0 {
		query = query.Limit(opts.Limit)
	}

	var records []*models.ExportRecord
	if err := s.db.Store().Find(&records, query); err != nil {
		return nil, fmt.Errorf("failed to list export records: %w", err)
	}
	return records, nil
}

func (s *ExportHistoryStorage) Close() error {
	return nil
}
