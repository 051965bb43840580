package validation

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/branchops/csv-validator/internal/models"
)

// MaxSampleRows caps how many sample row numbers one error group keeps.
const MaxSampleRows = 10

// DefaultDetailLimit caps the normalized detail text used as a grouping key.
const DefaultDetailLimit = 200

// SummaryAggregator consumes the unordered violation stream of one file.
// Aggregation is commutative: the grouping key is (ruleKind, normalized
// detail), counts are exact, and the sample list always holds the smallest
// row numbers, so worker interleaving never changes the final summary.
// Safe for concurrent use by multiple workers.
type SummaryAggregator struct {
	mu          sync.Mutex
	filename    string
	detailLimit int
	grouped     models.GroupedErrors
	erroredRows map[int]struct{}
	totalRows   int
}

// NewSummaryAggregator returns an empty aggregator for one file.
// detailLimit <= 0 selects the default.
func NewSummaryAggregator(filename string, detailLimit int) *SummaryAggregator {
	if detailLimit <= 0 || detailLimit > DefaultDetailLimit {
		detailLimit = DefaultDetailLimit
	}
	return &SummaryAggregator{
		filename:    filename,
		detailLimit: detailLimit,
		grouped:     make(models.GroupedErrors),
		erroredRows: make(map[int]struct{}),
	}
}

// RecordRow registers one processed data row and its violations.
func (a *SummaryAggregator) RecordRow(rowNumber int, violations []models.Violation) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.totalRows++
	if len(violations) > 0 {
		a.erroredRows[rowNumber] = struct{}{}
	}
	for _, v := range violations {
		a.add(v)
	}
}

// RecordHeaderViolation registers a header-level violation. Header defects
// appear in the grouped errors and the rendered summary but do not count a
// data row as errored.
func (a *SummaryAggregator) RecordHeaderViolation(v models.Violation) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.add(v)
}

func (a *SummaryAggregator) add(v models.Violation) {
	detail := a.normalizeDetail(v.Detail)

	details, ok := a.grouped[v.Kind]
	if !ok {
		details = make(map[string]*models.ErrorGroup)
		a.grouped[v.Kind] = details
	}
	group, ok := details[detail]
	if !ok {
		group = &models.ErrorGroup{}
		details[detail] = group
	}

	group.Count++
	if v.RowNumber > 0 {
		insertSample(group, v.RowNumber)
	}
}

// insertSample keeps the ascending sample list holding the smallest row
// numbers seen, capped at MaxSampleRows. Displaced samples move into the
// overflow counter, never out of the exact count.
func insertSample(group *models.ErrorGroup, rowNumber int) {
	idx := sort.SearchInts(group.Rows, rowNumber)
	group.Rows = append(group.Rows, 0)
	copy(group.Rows[idx+1:], group.Rows[idx:])
	group.Rows[idx] = rowNumber

	if len(group.Rows) > MaxSampleRows {
		group.Rows = group.Rows[:MaxSampleRows]
		group.OverflowRows++
	}
}

// TotalRows returns the number of data rows recorded so far.
func (a *SummaryAggregator) TotalRows() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.totalRows
}

// ErrorCount returns the number of data rows with at least one violation.
func (a *SummaryAggregator) ErrorCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.erroredRows)
}

// Summarize freezes the aggregate into a FileSummary. The grouped errors are
// a deep copy taken under the lock: after a watchdog abort, workers that were
// wedged may resume and keep mutating the live map, so the summary handed to
// the sinks must be fully detached. The copy is full and untruncated; only
// the rendered summary message is lossy.
func (a *SummaryAggregator) Summarize(branchID string, validationDate time.Time) *models.FileSummary {
	a.mu.Lock()
	defer a.mu.Unlock()

	totalRows := a.totalRows
	errorCount := len(a.erroredRows)
	accuracy := AccuracyRate(totalRows, errorCount)
	grouped := a.grouped.Clone()

	return &models.FileSummary{
		Filename:       a.filename,
		BranchID:       branchID,
		ValidationDate: validationDate,
		TotalRows:      totalRows,
		ErrorCount:     errorCount,
		AccuracyRate:   accuracy,
		GroupedErrors:  grouped,
		SummaryMessage: FormatSummaryMessage(a.filename, totalRows, errorCount, accuracy, grouped),
		Category:       models.CategoryForAccuracy(accuracy),
		DetectedAt:     time.Now(),
	}
}

// normalizeDetail caps the grouping key. Limits too small to carry an
// ellipsis cut plainly; both forms truncate on a rune boundary.
func (a *SummaryAggregator) normalizeDetail(detail string) string {
	if len(detail) <= a.detailLimit {
		return detail
	}
	if a.detailLimit <= 3 {
		return truncate(detail, a.detailLimit)
	}
	return truncate(detail, a.detailLimit-3) + "..."
}

// AccuracyRate computes the percentage of rows with zero violations, rounded
// to one decimal. An empty file is 100% accurate.
func AccuracyRate(totalRows, errorCount int) float64 {
	if totalRows == 0 {
		return 100.0
	}
	accuracy := float64(totalRows-errorCount) / float64(totalRows) * 100.0
	accuracy = math.Round(accuracy*10) / 10
	return math.Max(0.0, math.Min(100.0, accuracy))
}
