package ingest

import (
	"github.com/aveledo/examflow/internal/domain"
)

// ItemStatus is the outcome kind for one file in a batch. Expected outcomes
// (duplicates) are ordinary variants, not errors.
type ItemStatus string

// Possible per-item outcomes
const (
	ItemSuccess   ItemStatus = "success"
	ItemDuplicate ItemStatus = "duplicate"
	ItemError     ItemStatus = "error"
)

// ItemResult is the outcome for a single file, in the position matching the
// input file list.
type ItemResult struct {
	FilePath  string     `json:"file"`
	Status    ItemStatus `json:"status"`
	SheetID   string     `json:"sheet_id,omitempty"`
	StudentID string     `json:"student_id,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// BatchResult aggregates the per-item outcomes of one ingestion batch.
// Always: Succeeded + Failed + Duplicates == Total, and len(Details) == Total
// in the original file order.
type BatchResult struct {
	Total      int          `json:"total"`
	Succeeded  int          `json:"success"`
	Failed     int          `json:"failed"`
	Duplicates int          `json:"duplicates"`
	Details    []ItemResult `json:"details"`
}

func successItem(path string, sheet *domain.Sheet) ItemResult {
	return ItemResult{
		FilePath:  path,
		Status:    ItemSuccess,
		SheetID:   sheet.ID.String(),
		StudentID: sheet.Identity.StudentID,
	}
}

func duplicateItem(path string) ItemResult {
	return ItemResult{
		FilePath: path,
		Status:   ItemDuplicate,
	}
}

func errorItem(path string, err error) ItemResult {
	return ItemResult{
		FilePath: path,
		Status:   ItemError,
		Error:    err.Error(),
	}
}

// tally fills in the aggregate counters from the detail list.
func tally(details []ItemResult) *BatchResult {
	result := &BatchResult{
		Total:   len(details),
		Details: details,
	}
	for _, item := range details {
		switch item.Status {
		case ItemSuccess:
			result.Succeeded++
		case ItemDuplicate:
			result.Duplicates++
		case ItemError:
			result.Failed++
		}
	}
	return result
}
