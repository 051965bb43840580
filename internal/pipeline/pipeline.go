// Package pipeline runs the bounded producer/consumer engine that applies
// validation rules in parallel across the rows of one file.
package pipeline

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"time"

	"github.com/branchops/csv-validator/internal/models"
	"github.com/branchops/csv-validator/internal/validation"
)

// ErrWatchdogTimeout marks a stalled run aborted with partial stats.
var ErrWatchdogTimeout = errors.New("pipeline watchdog timeout")

// RowSource yields numbered rows until io.EOF. The ChunkedReader satisfies it.
type RowSource interface {
	Next() (models.RawRow, error)
}

// Validator checks one row. The rule engine satisfies it.
type Validator interface {
	Validate(row models.RawRow) []models.Violation
}

// Aggregator receives per-row results from the workers.
type Aggregator interface {
	RecordRow(rowNumber int, violations []models.Violation)
}

type messageKind int

const (
	messageRow messageKind = iota
	messageShutdown
)

// message is the tagged queue payload. Shutdown is an explicit token, never
// a reused sentinel row value.
type message struct {
	kind messageKind
	row  models.RawRow
}

// Config sizes one pipeline run.
type Config struct {
	Workers         int
	QueueCapacity   int
	WatchdogTimeout time.Duration
}

const (
	DefaultWorkers         = 4
	DefaultQueueCapacity   = 1000
	DefaultWatchdogTimeout = 2 * time.Minute
)

func (c Config) withDefaults() Config {
	if c.Workers < 1 {
		c.Workers = DefaultWorkers
	}
	if c.QueueCapacity < 1 {
		c.QueueCapacity = DefaultQueueCapacity
	}
	if c.WatchdogTimeout <= 0 {
		c.WatchdogTimeout = DefaultWatchdogTimeout
	}
	return c
}

// Result reports what one pipeline run accomplished. Partial marks a run
// aborted by the watchdog: the counts are valid for the rows that finished,
// abandoned in-flight rows are not counted at all.
type Result struct {
	RowsRead      int
	RowsProcessed int
	Violations    int
	WorkerFaults  int
	Partial       bool
}

// Pipeline validates the rows of one file with a bounded work queue and a
// fixed worker pool. Parallelism is within a file across rows; the producer
// blocks on a full queue so peak memory stays bounded regardless of file
// size.
type Pipeline struct {
	validator Validator
	cfg       Config
}

// New returns a pipeline applying the given validator. Zero config fields
// fall back to the defaults.
func New(validator Validator, cfg Config) *Pipeline {
	return &Pipeline{validator: validator, cfg: cfg.withDefaults()}
}

// Run streams every row of source through the worker pool into agg. It
// returns once all workers have exited, the watchdog fires, or the source
// fails. A cancelled context stops enqueueing and flushes shutdown tokens;
// workers drain what they already dequeued before exiting.
func (p *Pipeline) Run(ctx context.Context, source RowSource, agg Aggregator) (Result, error) {
	queue := make(chan message, p.cfg.QueueCapacity)
	stats := &processingStats{}

	var wg sync.WaitGroup
	for i := 0; i < p.cfg.Workers; i++ {
		wg.Add(1)
		go p.worker(&wg, queue, agg, stats)
	}

	rowsRead, readErr := p.produce(ctx, source, queue)

	// One shutdown token per worker, flushed asynchronously so a wedged
	// pool cannot block the producer past the watchdog.
	go func() {
		for i := 0; i < p.cfg.Workers; i++ {
			queue <- message{kind: messageShutdown}
		}
	}()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	partial := false
	select {
	case <-done:
	case <-time.After(p.cfg.WatchdogTimeout):
		partial = true
	}

	processed, violations, faults := stats.snapshot()
	result := Result{
		RowsRead:      rowsRead,
		RowsProcessed: processed,
		Violations:    violations,
		WorkerFaults:  faults,
		Partial:       partial,
	}

	if readErr != nil {
		return result, readErr
	}
	if partial {
		return result, ErrWatchdogTimeout
	}
	return result, nil
}

// produce feeds rows into the queue until the source is exhausted, the
// source fails, or the context is cancelled.
func (p *Pipeline) produce(ctx context.Context, source RowSource, queue chan<- message) (int, error) {
	rowsRead := 0
	for {
		row, err := source.Next()
		if err == io.EOF {
			return rowsRead, nil
		}
		if err != nil {
			return rowsRead, err
		}

		select {
		case queue <- message{kind: messageRow, row: row}:
			rowsRead++
		case <-ctx.Done():
			return rowsRead, ctx.Err()
		}
	}
}

func (p *Pipeline) worker(wg *sync.WaitGroup, queue <-chan message, agg Aggregator, stats *processingStats) {
	defer wg.Done()
	for msg := range queue {
		if msg.kind == messageShutdown {
			return
		}
		p.processRow(msg.row, agg, stats)
	}
}

// processRow applies the validator to one row. A fault while processing a
// single row is caught here, recorded, and the worker moves on to the next
// queued row instead of terminating the pool.
func (p *Pipeline) processRow(row models.RawRow, agg Aggregator, stats *processingStats) {
	defer func() {
		if r := recover(); r != nil {
			stats.addFault()
			log.Printf("worker fault on row %d of %s: %v", row.Number, row.Filename, r)
		}
	}()

	violations := p.validator.Validate(row)
	agg.RecordRow(row.Number, violations)
	stats.addRow(len(violations))
}

// processingStats is the per-file counter block shared by the workers,
// guarded by one coarse lock: per-row work is light enough that contention
// does not matter.
type processingStats struct {
	mu            sync.Mutex
	rowsProcessed int
	violations    int
	workerFaults  int
}

func (s *processingStats) addRow(violations int) {
	s.mu.Lock()
	s.rowsProcessed++
	s.violations += violations
	s.mu.Unlock()
}

func (s *processingStats) addFault() {
	s.mu.Lock()
	s.workerFaults++
	s.mu.Unlock()
}

func (s *processingStats) snapshot() (rows, violations, faults int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rowsProcessed, s.violations, s.workerFaults
}

var _ Validator = (*validation.RuleEngine)(nil)
var _ Aggregator = (*validation.SummaryAggregator)(nil)
var _ RowSource = (*validation.ChunkedReader)(nil)
