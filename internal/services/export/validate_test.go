package export

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GSejas/mermaid-export-pro/internal/models"
)

func batchWithJobs(jobs ...*models.ExportJob) *models.Batch {
	return &models.Batch{ID: models.NewBatchID(), Jobs: jobs}
}

func TestValidateBatchAcceptsEmptyDependencies(t *testing.T) {
	batch := batchWithJobs(
		&models.ExportJob{ID: "j1"},
		&models.ExportJob{ID: "j2"},
	)
	assert.Empty(t, ValidateBatch(batch))
}

func TestValidateBatchRejectsCycle(t *testing.T) {
	batch := batchWithJobs(
		&models.ExportJob{ID: "j1", Dependencies: []string{"j2"}},
		&models.ExportJob{ID: "j2", Dependencies: []string{"j1"}},
	)

	errs := ValidateBatch(batch)
	require.Len(t, errs, 1)
	assert.Equal(t, models.CodeCircularDependencies, errs[0].Code)
}

func TestValidateBatchRejectsLongerCycle(t *testing.T) {
	batch := batchWithJobs(
		&models.ExportJob{ID: "j1", Dependencies: []string{"j2"}},
		&models.ExportJob{ID: "j2", Dependencies: []string{"j3"}},
		&models.ExportJob{ID: "j3", Dependencies: []string{"j1"}},
	)

	errs := ValidateBatch(batch)
	require.Len(t, errs, 1)
	assert.Equal(t, models.CodeCircularDependencies, errs[0].Code)
}

func TestValidateBatchRejectsUnknownDependency(t *testing.T) {
	batch := batchWithJobs(
		&models.ExportJob{ID: "j1", Dependencies: []string{"ghost"}},
	)

	errs := ValidateBatch(batch)
	require.Len(t, errs, 1)
	assert.Equal(t, models.CodeMissingDependency, errs[0].Code)
}

func TestValidateBatchAcceptsDag(t *testing.T) {
	batch := batchWithJobs(
		&models.ExportJob{ID: "j1"},
		&models.ExportJob{ID: "j2", Dependencies: []string{"j1"}},
		&models.ExportJob{ID: "j3", Dependencies: []string{"j1", "j2"}},
	)
	assert.Empty(t, ValidateBatch(batch))
}
