package logging

import (
	"errors"

	"github.com/branchops/csv-validator/internal/models"
)

// SummaryStore is the durable half of the dual sink.
type SummaryStore interface {
	UpsertFileSummary(summary *models.FileSummary) error
}

// SummaryLog is the append-only half of the dual sink.
type SummaryLog interface {
	LogFileSummary(summary *models.FileSummary) error
}

// DualSink persists one completed FileSummary into both sinks. The sinks
// fail independently: a durable-store failure never suppresses the log
// append and vice versa. Dry-run mode suppresses only the durable write.
type DualSink struct {
	store  SummaryStore
	log    SummaryLog
	dryRun bool
}

func NewDualSink(store SummaryStore, log SummaryLog, dryRun bool) *DualSink {
	return &DualSink{store: store, log: log, dryRun: dryRun}
}

// Persist writes the summary to both sinks and reports every failure.
func (d *DualSink) Persist(summary *models.FileSummary) error {
	var errs []error

	if !d.dryRun && d.store != nil {
		if err := d.store.UpsertFileSummary(summary); err != nil {
			errs = append(errs, &models.PersistenceError{Sink: "store", Err: err})
		}
	}

	if d.log != nil {
		if err := d.log.LogFileSummary(summary); err != nil {
			errs = append(errs, &models.PersistenceError{Sink: "log", Err: err})
		}
	}

	return errors.Join(errs...)
}
