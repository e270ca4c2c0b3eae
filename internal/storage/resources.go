package storage

import (
	"fmt"

	"github.com/Epistemic-Technology/doc-commenter/models"
)

// RunURI returns the resource URI of a run report.
func RunURI(runID string) string {
	return fmt.Sprintf("commenter://runs/%s", runID)
}

// CalculateResourcePaths generates all available resource URIs for a run.
// Returns the report URI, one URI per entry, and the entry template.
func CalculateResourcePaths(report *models.RunReport) []string {
	paths := []string{RunURI(report.RunID)}
	for _, e := range report.Entries {
		paths = append(paths, fmt.Sprintf("%s/entries/%d", RunURI(report.RunID), e.Entry))
	}
	return append(paths, RunURI(report.RunID)+"/entries/{entry}")
}
