package models

import (
	"io"
	"sort"
	"time"
)

// RuleKind identifies the validation rule a violation belongs to.
type RuleKind string

const (
	RuleHeader     RuleKind = "HEADER"
	RuleDelimiter  RuleKind = "DELIMITER"
	RuleDecimal    RuleKind = "DECIMAL"
	RuleDateFormat RuleKind = "DATE_FORMAT"
	RuleNumeric    RuleKind = "NUMERIC"
	RuleStatus     RuleKind = "STATUS"
	RuleEmptyField RuleKind = "EMPTY_FIELD"
)

// SeverityOrder ranks rule kinds for summary rendering, highest first.
var SeverityOrder = []RuleKind{
	RuleHeader,
	RuleDelimiter,
	RuleDecimal,
	RuleDateFormat,
	RuleNumeric,
	RuleStatus,
	RuleEmptyField,
}

// SeverityRank returns the rendering rank of a rule kind. Unknown kinds sort last.
func SeverityRank(kind RuleKind) int {
	for i, k := range SeverityOrder {
		if k == kind {
			return i
		}
	}
	return len(SeverityOrder)
}

// RawRow is one data line of a file, owned by a single queue slot until a
// worker consumes it. Row numbers are 1-based and exclude the header.
type RawRow struct {
	Number   int
	Fields   []string
	Raw      string
	Filename string
}

// Violation is one detected rule failure on a specific row. Immutable once
// produced. RowNumber 0 marks header-level violations.
type Violation struct {
	RowNumber int
	Kind      RuleKind
	FieldName string
	Detail    string
	RawRow    string
}

// ErrorGroup aggregates violations sharing (kind, normalized detail).
// Rows always holds the smallest row numbers in ascending order, capped at
// ten; OverflowRows counts the samples that did not fit. Count is exact and
// never truncated.
type ErrorGroup struct {
	Count        int   `json:"count"`
	Rows         []int `json:"rows"`
	OverflowRows int   `json:"overflow_rows,omitempty"`
}

// GroupedErrors maps rule kind -> normalized detail -> group.
type GroupedErrors map[RuleKind]map[string]*ErrorGroup

// Clone returns a deep copy, including the sample slices, safe to hand to
// another goroutine while the original keeps being mutated.
func (g GroupedErrors) Clone() GroupedErrors {
	out := make(GroupedErrors, len(g))
	for kind, details := range g {
		copied := make(map[string]*ErrorGroup, len(details))
		for detail, group := range details {
			c := *group
			c.Rows = append([]int(nil), group.Rows...)
			copied[detail] = &c
		}
		out[kind] = copied
	}
	return out
}

// TotalViolations sums the exact counts across every group.
func (g GroupedErrors) TotalViolations() int {
	total := 0
	for _, details := range g {
		for _, group := range details {
			total += group.Count
		}
	}
	return total
}

// CountsByKind returns the exact violation count per rule kind.
func (g GroupedErrors) CountsByKind() map[RuleKind]int {
	counts := make(map[RuleKind]int, len(g))
	for kind, details := range g {
		for _, group := range details {
			counts[kind] += group.Count
		}
	}
	return counts
}

// SortedDetails returns the detail keys of one kind ordered by count
// descending, ties broken lexicographically for determinism.
func (g GroupedErrors) SortedDetails(kind RuleKind) []string {
	details := make([]string, 0, len(g[kind]))
	for detail := range g[kind] {
		details = append(details, detail)
	}
	sort.Slice(details, func(i, j int) bool {
		a, b := g[kind][details[i]], g[kind][details[j]]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return details[i] < details[j]
	})
	return details
}

// Category buckets a file by its accuracy rate.
type Category string

const (
	CategoryPerfect  Category = "Perfect"
	CategoryGood     Category = "Good"
	CategoryMedium   Category = "Medium"
	CategoryCritical Category = "Critical"
)

// CategoryForAccuracy derives the category from an accuracy rate (0-100).
func CategoryForAccuracy(rate float64) Category {
	switch {
	case rate == 100.0:
		return CategoryPerfect
	case rate >= 80.0:
		return CategoryGood
	case rate >= 50.0:
		return CategoryMedium
	default:
		return CategoryCritical
	}
}

// FileSummary is the aggregated, persisted outcome for one validated file.
// Unique per (BranchID, Filename, ValidationDate); re-validation upserts.
type FileSummary struct {
	Filename       string        `json:"filename"`
	BranchID       string        `json:"branch_id"`
	ValidationDate time.Time     `json:"validation_date"`
	TotalRows      int           `json:"total_rows"`
	ErrorCount     int           `json:"error_count"`
	AccuracyRate   float64       `json:"accuracy_rate"`
	GroupedErrors  GroupedErrors `json:"error_summary"`
	SummaryMessage string        `json:"summary_message"`
	Category       Category      `json:"category"`
	Checksum       string        `json:"checksum,omitempty"`
	DetectedAt     time.Time     `json:"detected_at"`
}

// FileStatus is the terminal or in-flight state of one file in a run.
type FileStatus string

const (
	StatusDiscovered  FileStatus = "Discovered"
	StatusReading     FileStatus = "Reading"
	StatusValidating  FileStatus = "Validating"
	StatusSummarizing FileStatus = "Summarizing"
	StatusLogged      FileStatus = "Logged"
	StatusFailed      FileStatus = "Failed"
)

// FileResult records the terminal status of one file for the end-of-run report.
type FileResult struct {
	Filename string
	BranchID string
	Status   FileStatus
	Reason   string
	Partial  bool
	Summary  *FileSummary
}

// FileTask is the input contract from the upload/storage collaborator: a
// readable stream plus identifying metadata. Folder and filename convention
// parsing happens before a task is built.
type FileTask struct {
	BranchID       string
	Filename       string
	ValidationDate time.Time
	Open           func() (io.ReadCloser, error)
}

// SessionStats aggregates one orchestrator run. Mutated only by the
// orchestrator goroutine between files, so it carries no lock.
type SessionStats struct {
	FilesScanned   int
	FilesProcessed int
	FilesFailed    int
	TotalRows      int
	TotalErrors    int
	PerRuleKind    map[RuleKind]int
	PerCategory    map[Category]int
	StartTime      time.Time
	EndTime        time.Time
}

// Elapsed returns the run duration in seconds.
func (s *SessionStats) Elapsed() float64 {
	end := s.EndTime
	if end.IsZero() {
		end = time.Now()
	}
	return end.Sub(s.StartTime).Seconds()
}

// RowsPerSecond returns the processing rate, zero when no time elapsed.
func (s *SessionStats) RowsPerSecond() float64 {
	elapsed := s.Elapsed()
	if elapsed <= 0 {
		return 0
	}
	return float64(s.TotalRows) / elapsed
}
