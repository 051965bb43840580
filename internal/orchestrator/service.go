// Package orchestrator sequences files through the validation pipeline:
// files run one at a time, rows of each file run in parallel, and a failure
// in one file never aborts the rest of the run.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/branchops/csv-validator/internal/models"
	"github.com/branchops/csv-validator/internal/pipeline"
	"github.com/branchops/csv-validator/internal/validation"
)

// Sink receives each completed file summary. The dual sink satisfies it.
type Sink interface {
	Persist(summary *models.FileSummary) error
}

// Config sizes one validation service.
type Config struct {
	Workers             int
	QueueCapacity       int
	ChunkSize           int
	WatchdogTimeout     time.Duration
	RawRowCaptureLimit  int
	DetailTruncateLimit int
}

// SessionReport is the end-of-run report: every file's terminal status plus
// the aggregate session counts. Failed files contribute zero rows and errors
// to the totals but are named explicitly.
type SessionReport struct {
	SessionID string
	Stats     models.SessionStats
	Files     []models.FileResult
}

// Service wires the rule engine, pipeline, aggregator, and sink for a run.
type Service struct {
	engine *validation.RuleEngine
	pipe   *pipeline.Pipeline
	sink   Sink
	cfg    Config
}

func NewService(sink Sink, cfg Config) *Service {
	engine := validation.NewRuleEngine(cfg.RawRowCaptureLimit)
	return &Service{
		engine: engine,
		pipe: pipeline.New(engine, pipeline.Config{
			Workers:         cfg.Workers,
			QueueCapacity:   cfg.QueueCapacity,
			WatchdogTimeout: cfg.WatchdogTimeout,
		}),
		sink: sink,
		cfg:  cfg,
	}
}

// Run validates every task sequentially and returns the session report.
// SessionStats is mutated only here, between files, so it needs no lock.
func (s *Service) Run(ctx context.Context, sessionID string, tasks []models.FileTask) *SessionReport {
	report := &SessionReport{
		SessionID: sessionID,
		Stats: models.SessionStats{
			FilesScanned: len(tasks),
			PerRuleKind:  make(map[models.RuleKind]int),
			PerCategory:  make(map[models.Category]int),
			StartTime:    time.Now(),
		},
	}

	for i, task := range tasks {
		if ctx.Err() != nil {
			for _, remaining := range tasks[i:] {
				report.Files = append(report.Files, models.FileResult{
					Filename: remaining.Filename,
					BranchID: remaining.BranchID,
					Status:   models.StatusFailed,
					Reason:   "run cancelled before file was processed",
				})
				report.Stats.FilesFailed++
			}
			break
		}

		result := s.processFile(ctx, task)
		report.Files = append(report.Files, result)

		if result.Status == models.StatusLogged && result.Summary != nil {
			report.Stats.FilesProcessed++
			report.Stats.TotalRows += result.Summary.TotalRows
			report.Stats.TotalErrors += result.Summary.ErrorCount
			report.Stats.PerCategory[result.Summary.Category]++
			for kind, count := range result.Summary.GroupedErrors.CountsByKind() {
				report.Stats.PerRuleKind[kind] += count
			}
			log.Println(validation.FormatConsoleLine(result.Filename,
				result.Summary.TotalRows, result.Summary.ErrorCount, result.Summary.AccuracyRate))
		} else {
			report.Stats.FilesFailed++
			log.Printf("[FAILED] %s: %s", result.Filename, result.Reason)
		}
	}

	report.Stats.EndTime = time.Now()
	return report
}

// processFile walks one file through its state machine:
// Discovered -> Reading -> Validating -> Summarizing -> {Logged | Failed}.
func (s *Service) processFile(ctx context.Context, task models.FileTask) models.FileResult {
	result := models.FileResult{
		Filename: task.Filename,
		BranchID: task.BranchID,
		Status:   models.StatusDiscovered,
	}

	result.Status = models.StatusReading
	rc, err := task.Open()
	if err != nil {
		return failed(result, &models.FileReadError{Filename: task.Filename, Err: err})
	}
	defer rc.Close()

	reader := validation.NewChunkedReader(rc, task.Filename, s.cfg.ChunkSize)
	agg := validation.NewSummaryAggregator(task.Filename, s.cfg.DetailTruncateLimit)

	header, err := reader.Header()
	switch {
	case errors.Is(err, validation.ErrEmptyFile):
		agg.RecordHeaderViolation(models.Violation{
			Kind:   models.RuleHeader,
			Detail: "file is empty",
		})
	case err != nil:
		return failed(result, err)
	default:
		if v := s.engine.ValidateHeader(header); v != nil {
			agg.RecordHeaderViolation(*v)
		}
	}

	result.Status = models.StatusValidating
	pipeResult, pipeErr := s.pipe.Run(ctx, reader, agg)
	if pipeErr != nil {
		var readErr *models.FileReadError
		switch {
		case errors.As(pipeErr, &readErr):
			return failed(result, pipeErr)
		case errors.Is(pipeErr, pipeline.ErrWatchdogTimeout),
			errors.Is(pipeErr, context.Canceled),
			errors.Is(pipeErr, context.DeadlineExceeded):
			// Keep the accepted work: summarize what the workers finished
			// and mark the result explicitly partial.
			result.Partial = true
		default:
			return failed(result, pipeErr)
		}
	}
	if pipeResult.WorkerFaults > 0 {
		log.Printf("%s: %d rows skipped after worker faults", task.Filename, pipeResult.WorkerFaults)
	}

	result.Status = models.StatusSummarizing
	summary, err := s.summarize(agg, task)
	if err != nil {
		return failed(result, err)
	}
	if !result.Partial {
		summary.Checksum = reader.Checksum()
	}

	if err := s.sink.Persist(summary); err != nil {
		result.Summary = summary
		return failed(result, err)
	}

	result.Status = models.StatusLogged
	result.Summary = summary
	if result.Partial {
		result.Reason = "aborted by watchdog or cancellation, summary covers processed rows only"
	}
	return result
}

// summarize freezes the aggregate, converting an internal summarizer fault
// into an AggregationError instead of letting it take down the run.
func (s *Service) summarize(agg *validation.SummaryAggregator, task models.FileTask) (summary *models.FileSummary, err error) {
	defer func() {
		if r := recover(); r != nil {
			summary = nil
			err = &models.AggregationError{Filename: task.Filename, Err: fmt.Errorf("%v", r)}
		}
	}()
	return agg.Summarize(task.BranchID, task.ValidationDate), nil
}

func failed(result models.FileResult, err error) models.FileResult {
	result.Status = models.StatusFailed
	result.Reason = err.Error()
	return result
}
