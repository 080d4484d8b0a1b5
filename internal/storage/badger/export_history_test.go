package badger

import (
	"context"
	"testing"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/GSejas/mermaid-export-pro/internal/interfaces"
	"github.com/GSejas/mermaid-export-pro/internal/models"
)

func newTestStorage(t *testing.T) interfaces.ExportHistoryStorage {
	t.Helper()

	tmpDir := t.TempDir()

	options := badgerhold.DefaultOptions
	options.Dir = tmpDir
	options.ValueDir = tmpDir
	options.Logger = nil

	store, err := badgerhold.Open(options)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	db := &BadgerDB{store: store}
	return NewExportHistoryStorage(db, arbor.NewLogger())
}

func record(batchID string, failed int, completedAt time.Time) *models.ExportRecord {
	return &models.ExportRecord{
		ID:          "export_" + batchID,
		BatchID:     batchID,
		Strategy:    models.StrategySequential,
		TotalJobs:   4,
		Succeeded:   4 - failed,
		Failed:      failed,
		Formats:     []models.ExportFormat{models.FormatSVG},
		CompletedAt: completedAt,
	}
}

func TestSaveAndGetRecord(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	rec := record("batch-1", 0, time.Now())
	if err := storage.SaveRecord(ctx, rec); err != nil {
		t.Fatalf("Failed to save record: %v", err)
	}

	got, err := storage.GetRecord(ctx, "batch-1")
	if err != nil {
		t.Fatalf("Failed to get record: %v", err)
	}
	if got == nil {
		t.Fatal("Expected record, got nil")
	}
	if got.BatchID != "batch-1" || got.Succeeded != 4 {
		t.Errorf("Record round-trip mismatch: %+v", got)
	}
}

func TestGetRecordNotFound(t *testing.T) {
	storage := newTestStorage(t)

	got, err := storage.GetRecord(context.Background(), "missing")
	if err != nil {
		t.Fatalf("Missing record should not error: %v", err)
	}
	if got != nil {
		t.Errorf("Expected nil for missing record, got %+v", got)
	}
}

func TestSaveRecordIsUpsert(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	rec := record("batch-2", 0, time.Now())
	if err := storage.SaveRecord(ctx, rec); err != nil {
		t.Fatal(err)
	}
	rec.Failed = 2
	rec.Succeeded = 2
	if err := storage.SaveRecord(ctx, rec); err != nil {
		t.Fatalf("Second save should upsert: %v", err)
	}

	got, err := storage.GetRecord(ctx, "batch-2")
	if err != nil {
		t.Fatal(err)
	}
	if got.Failed != 2 {
		t.Errorf("Expected updated record, got failed=%d", got.Failed)
	}
}

func TestListRecordsNewestFirst(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i, id := range []string{"old", "mid", "new"} {
		if err := storage.SaveRecord(ctx, record(id, 0, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatal(err)
		}
	}

	records, err := storage.ListRecords(ctx, nil)
	if err != nil {
		t.Fatalf("Failed to list records: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("Expected 3 records, got %d", len(records))
	}
	if records[0].BatchID != "new" || records[2].BatchID != "old" {
		t.Errorf("Expected newest-first ordering, got %s, %s, %s",
			records[0].BatchID, records[1].BatchID, records[2].BatchID)
	}
}

func TestListRecordsOnlyFails(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	now := time.Now()
	storage.SaveRecord(ctx, record("clean", 0, now))
	storage.SaveRecord(ctx, record("broken", 2, now.Add(time.Minute)))

	records, err := storage.ListRecords(ctx, &interfaces.HistoryListOptions{OnlyFails: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0].BatchID != "broken" {
		t.Errorf("Expected only the failed batch, got %d records", len(records))
	}
}

func TestListRecordsLimit(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	base := time.Now()
	for i := 0; i < 5; i++ {
		id := string(rune('a' + i))
		if err := storage.SaveRecord(ctx, record(id, 0, base.Add(time.Duration(i)*time.Second))); err != nil {
			t.Fatal(err)
		}
	}

	records, err := storage.ListRecords(ctx, &interfaces.HistoryListOptions{Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Errorf("Expected 2 records, got %d", len(records))
	}
	if records[0].BatchID != "e" {
		t.Errorf("Limit should keep the newest records, got %s first", records[0].BatchID)
	}
}
