package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/branchops/csv-validator/internal/models"
)

const validHeader = "roundId;gameId;createDate;updateDate;betAmount;winAmount;status"

type MockSink struct {
	mock.Mock
}

func (m *MockSink) Persist(summary *models.FileSummary) error {
	args := m.Called(summary)
	return args.Error(0)
}

// recordingSink keeps every persisted summary keyed by its identity triple so
// tests can check idempotent re-validation behavior.
type recordingSink struct {
	summaries map[string]*models.FileSummary
}

func newRecordingSink() *recordingSink {
	return &recordingSink{summaries: make(map[string]*models.FileSummary)}
}

func (s *recordingSink) Persist(summary *models.FileSummary) error {
	key := fmt.Sprintf("%s|%s|%s", summary.BranchID, summary.Filename, summary.ValidationDate.Format("2006-01-02"))
	s.summaries[key] = summary
	return nil
}

func csvTask(branchID, filename, content string) models.FileTask {
	return models.FileTask{
		BranchID:       branchID,
		Filename:       filename,
		ValidationDate: time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(content)), nil
		},
	}
}

func buildCSV(dataRows ...string) string {
	var b strings.Builder
	b.WriteString(validHeader)
	b.WriteString("\n")
	for _, row := range dataRows {
		b.WriteString(row)
		b.WriteString("\n")
	}
	return b.String()
}

func validRow(id int) string {
	return fmt.Sprintf("R%03d;G001;2026-02-02 10:00:00;2026-02-02 10:00:05;100,50;201,00;won", id)
}

func badStatusRow(id int) string {
	return fmt.Sprintf("R%03d;G001;2026-02-02 10:00:00;2026-02-02 10:00:05;100,50;201,00;pending", id)
}

func TestService_Run_CleanFile(t *testing.T) {
	sink := newRecordingSink()
	service := NewService(sink, Config{Workers: 2})

	report := service.Run(context.Background(), "session-1",
		[]models.FileTask{csvTask("BR-01", "clean.csv", buildCSV(validRow(1), validRow(2), validRow(3)))})

	require.Len(t, report.Files, 1)
	file := report.Files[0]
	assert.Equal(t, models.StatusLogged, file.Status)
	require.NotNil(t, file.Summary)
	assert.Equal(t, 3, file.Summary.TotalRows)
	assert.Equal(t, 0, file.Summary.ErrorCount)
	assert.Equal(t, 100.0, file.Summary.AccuracyRate)
	assert.Equal(t, models.CategoryPerfect, file.Summary.Category)
	assert.NotEmpty(t, file.Summary.Checksum)

	assert.Equal(t, 1, report.Stats.FilesScanned)
	assert.Equal(t, 1, report.Stats.FilesProcessed)
	assert.Equal(t, 0, report.Stats.FilesFailed)
	assert.Equal(t, 3, report.Stats.TotalRows)
}

func TestService_Run_ErrorCountsRowsWithErrors(t *testing.T) {
	sink := newRecordingSink()
	service := NewService(sink, Config{Workers: 4})

	// 8 rows, 5 of them defective.
	content := buildCSV(
		badStatusRow(1), badStatusRow(2), validRow(3), badStatusRow(4),
		validRow(5), badStatusRow(6), badStatusRow(7), validRow(8),
	)

	report := service.Run(context.Background(), "session-1",
		[]models.FileTask{csvTask("BR-01", "daily.csv", content)})

	require.Len(t, report.Files, 1)
	summary := report.Files[0].Summary
	require.NotNil(t, summary)
	assert.Equal(t, 8, summary.TotalRows)
	assert.Equal(t, 5, summary.ErrorCount)
	assert.Equal(t, 37.5, summary.AccuracyRate)
	assert.Equal(t, models.CategoryCritical, summary.Category)
	assert.Contains(t, summary.SummaryMessage, "Accuracy: 37.5% (5/8 rows with errors)")
}

func TestService_Run_HeaderViolationDoesNotAbortFile(t *testing.T) {
	sink := newRecordingSink()
	service := NewService(sink, Config{Workers: 2})

	content := "gameId;roundId;createDate;updateDate;betAmount;winAmount;status\n" +
		validRow(1) + "\n" + badStatusRow(2) + "\n"

	report := service.Run(context.Background(), "session-1",
		[]models.FileTask{csvTask("BR-01", "badheader.csv", content)})

	require.Len(t, report.Files, 1)
	file := report.Files[0]
	assert.Equal(t, models.StatusLogged, file.Status)

	summary := file.Summary
	require.NotNil(t, summary)
	assert.Equal(t, 2, summary.TotalRows, "data rows are still validated after a bad header")
	assert.Equal(t, 1, summary.ErrorCount, "header defects never count a data row as errored")
	assert.Contains(t, summary.GroupedErrors, models.RuleHeader)
	assert.Contains(t, summary.SummaryMessage, "Header Error")
}

func TestService_Run_EmptyFileIsLoggedNotFailed(t *testing.T) {
	sink := newRecordingSink()
	service := NewService(sink, Config{Workers: 2})

	report := service.Run(context.Background(), "session-1",
		[]models.FileTask{csvTask("BR-01", "empty.csv", "")})

	require.Len(t, report.Files, 1)
	file := report.Files[0]
	assert.Equal(t, models.StatusLogged, file.Status)

	summary := file.Summary
	require.NotNil(t, summary)
	assert.Equal(t, 0, summary.TotalRows)
	assert.Equal(t, 100.0, summary.AccuracyRate)
	group := summary.GroupedErrors[models.RuleHeader]["file is empty"]
	require.NotNil(t, group)
	assert.Equal(t, 1, group.Count)
}

func TestService_Run_FileFailureIsIsolated(t *testing.T) {
	sink := newRecordingSink()
	service := NewService(sink, Config{Workers: 2})

	broken := models.FileTask{
		BranchID:       "BR-01",
		Filename:       "broken.csv",
		ValidationDate: time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC),
		Open: func() (io.ReadCloser, error) {
			return nil, errors.New("permission denied")
		},
	}

	report := service.Run(context.Background(), "session-1", []models.FileTask{
		csvTask("BR-01", "first.csv", buildCSV(validRow(1))),
		broken,
		csvTask("BR-01", "third.csv", buildCSV(validRow(1), validRow(2))),
	})

	require.Len(t, report.Files, 3)
	assert.Equal(t, models.StatusLogged, report.Files[0].Status)
	assert.Equal(t, models.StatusFailed, report.Files[1].Status)
	assert.Contains(t, report.Files[1].Reason, "permission denied")
	assert.Equal(t, models.StatusLogged, report.Files[2].Status, "a failed file never aborts the rest of the run")

	assert.Equal(t, 2, report.Stats.FilesProcessed)
	assert.Equal(t, 1, report.Stats.FilesFailed)
	assert.Equal(t, 3, report.Stats.TotalRows, "failed files contribute zero rows to the totals")
}

func TestService_Run_SinkFailureMarksFileFailed(t *testing.T) {
	sink := new(MockSink)
	sink.On("Persist", mock.Anything).Return(&models.PersistenceError{Sink: "store", Err: errors.New("connection refused")})

	service := NewService(sink, Config{Workers: 2})
	report := service.Run(context.Background(), "session-1",
		[]models.FileTask{csvTask("BR-01", "daily.csv", buildCSV(validRow(1)))})

	require.Len(t, report.Files, 1)
	file := report.Files[0]
	assert.Equal(t, models.StatusFailed, file.Status)
	assert.Contains(t, file.Reason, "connection refused")
	assert.NotNil(t, file.Summary, "the summary is kept for the report even when persistence fails")
	assert.Equal(t, 1, report.Stats.FilesFailed)
}

func TestService_Run_RevalidationOverwritesSameTriple(t *testing.T) {
	sink := newRecordingSink()
	service := NewService(sink, Config{Workers: 2})

	tasks := []models.FileTask{
		csvTask("BR-01", "daily.csv", buildCSV(badStatusRow(1), validRow(2))),
	}
	service.Run(context.Background(), "session-1", tasks)

	// Second run of the same (branch, filename, date) with a corrected file.
	fixed := []models.FileTask{
		csvTask("BR-01", "daily.csv", buildCSV(validRow(1), validRow(2))),
	}
	service.Run(context.Background(), "session-2", fixed)

	require.Len(t, sink.summaries, 1, "same identity triple upserts a single record")
	summary := sink.summaries["BR-01|daily.csv|2026-02-02"]
	require.NotNil(t, summary)
	assert.Equal(t, 0, summary.ErrorCount)
	assert.Equal(t, 100.0, summary.AccuracyRate)
}

func TestService_Run_CancelledContextFailsRemainingFiles(t *testing.T) {
	sink := newRecordingSink()
	service := NewService(sink, Config{Workers: 2})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report := service.Run(ctx, "session-1", []models.FileTask{
		csvTask("BR-01", "a.csv", buildCSV(validRow(1))),
		csvTask("BR-01", "b.csv", buildCSV(validRow(1))),
	})

	require.Len(t, report.Files, 2)
	for _, file := range report.Files {
		assert.Equal(t, models.StatusFailed, file.Status)
		assert.Contains(t, file.Reason, "cancelled")
	}
	assert.Equal(t, 2, report.Stats.FilesFailed)
	assert.Empty(t, sink.summaries)
}

func TestService_Run_TinyDetailLimitDoesNotCrashHeaderPath(t *testing.T) {
	// Header violations are recorded outside the worker pool's fault
	// recovery, so the smallest configurable detail limit must still be safe.
	sink := newRecordingSink()
	service := NewService(sink, Config{Workers: 2, DetailTruncateLimit: 1})

	content := "wrong;header;line\n" + badStatusRow(1) + "\n"

	report := service.Run(context.Background(), "session-1",
		[]models.FileTask{csvTask("BR-01", "tiny.csv", content)})

	require.Len(t, report.Files, 1)
	file := report.Files[0]
	assert.Equal(t, models.StatusLogged, file.Status)

	summary := file.Summary
	require.NotNil(t, summary)
	assert.Equal(t, 1, summary.TotalRows)
	assert.Equal(t, 1, summary.ErrorCount, "row defects are still accounted at the tiny limit")
	assert.Contains(t, summary.GroupedErrors, models.RuleHeader)
}

func TestService_Run_BlankLinesKeepRowNumbers(t *testing.T) {
	sink := newRecordingSink()
	service := NewService(sink, Config{Workers: 1})

	content := validHeader + "\n" + badStatusRow(1) + "\n\n" + badStatusRow(2) + "\n"

	report := service.Run(context.Background(), "session-1",
		[]models.FileTask{csvTask("BR-01", "gaps.csv", content)})

	summary := report.Files[0].Summary
	require.NotNil(t, summary)
	assert.Equal(t, 2, summary.TotalRows, "blank lines are skipped, not validated")

	require.Len(t, summary.GroupedErrors[models.RuleStatus], 1)
	var group *models.ErrorGroup
	for _, g := range summary.GroupedErrors[models.RuleStatus] {
		group = g
	}
	require.NotNil(t, group)
	assert.Equal(t, []int{1, 3}, group.Rows, "the blank line keeps its physical position in the numbering")
}
