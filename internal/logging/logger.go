// Package logging writes the append-only, date-partitioned validation log:
// one structured record per validated file plus one session summary per run.
package logging

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/branchops/csv-validator/internal/models"
)

// ValidationLogger appends JSON records to the day's validation log file.
type ValidationLogger struct {
	logger       *zap.Logger
	file         *os.File
	path         string
	sessionID    string
	sessionStart time.Time
}

// NewValidationLogger opens (or creates) the log file for today under
// logDir. An empty sessionID gets a fresh UUID.
func NewValidationLogger(logDir, sessionID string) (*ValidationLogger, error) {
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory %s: %w", logDir, err)
	}

	path := filepath.Join(logDir, fmt.Sprintf("csv_validation_%s.log", time.Now().Format("2006-01-02")))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", path, err)
	}

	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "timestamp"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderCfg.MessageKey = "type"
	encoderCfg.LevelKey = zapcore.OmitKey
	encoderCfg.CallerKey = zapcore.OmitKey

	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(file), zap.InfoLevel)

	return &ValidationLogger{
		logger:       zap.New(core),
		file:         file,
		path:         path,
		sessionID:    sessionID,
		sessionStart: time.Now(),
	}, nil
}

// SessionID returns the identifier stamped on every record of this run.
func (l *ValidationLogger) SessionID() string { return l.sessionID }

// Path returns the log file location.
func (l *ValidationLogger) Path() string { return l.path }

// LogFileSummary appends one file-summary record and flushes it.
func (l *ValidationLogger) LogFileSummary(summary *models.FileSummary) error {
	l.logger.Info("file_summary",
		zap.String("session_id", l.sessionID),
		zap.String("branch_id", summary.BranchID),
		zap.String("filename", summary.Filename),
		zap.String("validation_date", summary.ValidationDate.Format("2006-01-02")),
		zap.Int("total_rows", summary.TotalRows),
		zap.Int("error_count", summary.ErrorCount),
		zap.Float64("accuracy_rate", summary.AccuracyRate),
		zap.String("category", string(summary.Category)),
		zap.String("checksum", summary.Checksum),
		zap.Any("error_summary", summary.GroupedErrors),
	)
	return l.sync()
}

// LogSessionSummary appends the end-of-run record and flushes it.
func (l *ValidationLogger) LogSessionSummary(stats *models.SessionStats) error {
	l.logger.Info("session_summary",
		zap.String("session_id", l.sessionID),
		zap.Time("session_start", stats.StartTime),
		zap.Time("session_end", stats.EndTime),
		zap.Int("total_files", stats.FilesScanned),
		zap.Int("processed_files", stats.FilesProcessed),
		zap.Int("failed_files", stats.FilesFailed),
		zap.Int("total_rows", stats.TotalRows),
		zap.Int("total_errors", stats.TotalErrors),
		zap.Any("rule_kind_totals", stats.PerRuleKind),
		zap.Any("category_stats", stats.PerCategory),
		zap.Float64("processing_time_seconds", stats.Elapsed()),
		zap.Float64("rows_per_second", stats.RowsPerSecond()),
	)
	return l.sync()
}

func (l *ValidationLogger) sync() error {
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("failed to flush validation log %s: %w", l.path, err)
	}
	return nil
}

// Close flushes and closes the underlying log file.
func (l *ValidationLogger) Close() error {
	_ = l.logger.Sync()
	return l.file.Close()
}

// ReadLogFile parses a JSONL validation log into generic records.
func ReadLogFile(path string) ([]map[string]any, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", path, err)
	}
	defer file.Close()

	var records []map[string]any
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var record map[string]any
		if err := json.Unmarshal(line, &record); err != nil {
			return nil, fmt.Errorf("failed to parse log line: %w", err)
		}
		records = append(records, record)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read log file %s: %w", path, err)
	}
	return records, nil
}
