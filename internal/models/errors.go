package models

import "fmt"

// FileReadError marks an I/O or decoding failure on one file. The file is
// reported Failed; the run continues with the remaining files.
type FileReadError struct {
	Filename string
	Err      error
}

func (e *FileReadError) Error() string {
	return fmt.Sprintf("read %s: %v", e.Filename, e.Err)
}

func (e *FileReadError) Unwrap() error { return e.Err }

// AggregationError marks an internal summarizer fault for one file.
type AggregationError struct {
	Filename string
	Err      error
}

func (e *AggregationError) Error() string {
	return fmt.Sprintf("aggregate %s: %v", e.Filename, e.Err)
}

func (e *AggregationError) Unwrap() error { return e.Err }

// PersistenceError marks a failure in one sink. The other sink is attempted
// regardless, so a single summary can surface two independent instances.
type PersistenceError struct {
	Sink string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s sink: %v", e.Sink, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
