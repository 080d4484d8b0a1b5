package export

import (
	"fmt"

	"github.com/GSejas/mermaid-export-pro/internal/models"
)

// ValidateBatch checks dependency integrity across a batch: every
// referenced job id must exist in the batch, and the dependency graph must
// be acyclic. The planner never populates dependencies today, so an
// empty-dependency batch is trivially valid; the machinery guards future
// graph-building callers.
func ValidateBatch(batch *models.Batch) []*models.ExportError {
	var errs []*models.ExportError

	byID := make(map[string]*models.ExportJob, len(batch.Jobs))
	for _, job := range batch.Jobs {
		byID[job.ID] = job
	}

	for _, job := range batch.Jobs {
		for _, dep := range job.Dependencies {
			if _, ok := byID[dep]; !ok {
				errs = append(errs, &models.ExportError{
					Code:     models.CodeMissingDependency,
					Message:  fmt.Sprintf("job %s depends on unknown job %s", job.ID, dep),
					Category: models.ErrorConfiguration,
					Severity: models.SeverityError,
					Phase:    models.PhasePlanning,
				})
			}
		}
	}

	if cycle := findCycle(batch.Jobs, byID); cycle != "" {
		errs = append(errs, &models.ExportError{
			Code:     models.CodeCircularDependencies,
			Message:  fmt.Sprintf("dependency cycle detected involving job %s", cycle),
			Category: models.ErrorConfiguration,
			Severity: models.SeverityError,
			Phase:    models.PhasePlanning,
		})
	}

	return errs
}

// findCycle runs a depth-first search with a recursion-stack set; any
// back-edge is a cycle. Returns the id of a job on the cycle, or "".
func findCycle(jobs []*models.ExportJob, byID map[string]*models.ExportJob) string {
	const (
		unvisited = 0
		inStack   = 1
		done      = 2
	)
	state := make(map[string]int, len(jobs))

	var visit func(id string) string
	visit = func(id string) string {
		switch state[id] {
		case inStack:
			return id
		case done:
			return ""
		}
		state[id] = inStack
		if job, ok := byID[id]; ok {
			for _, dep := range job.Dependencies {
				if found := visit(dep); found != "" {
					return found
				}
			}
		}
		state[id] = done
		return ""
	}

	for _, job := range jobs {
		if state[job.ID] == unvisited {
			if found := visit(job.ID); found != "" {
				return found
			}
		}
	}
	return ""
}
