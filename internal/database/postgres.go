package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/branchops/csv-validator/internal/models"
)

// Store is the durable sink for validation summaries.
type Store interface {
	CreateValidationSummariesTable() error
	UpsertFileSummary(summary *models.FileSummary) error
	IsFileUnchanged(branchID, filename string, validationDate time.Time, checksum string) (bool, error)
	GetValidationStatistics(start, end time.Time, branchID string) (*models.ValidationStatistics, error)
	GetBranchSummaries(branchID string, validationDate time.Time) ([]models.FileSummary, error)
}

// ConnectDB opens a pgx connection pool.
func ConnectDB(connStr string) (*pgxpool.Pool, error) {
	dbpool, err := pgxpool.New(context.Background(), connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %v", err)
	}
	return dbpool, nil
}

type PostgresStore struct {
	dbpool *pgxpool.Pool
	ctx    context.Context
}

func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{dbpool: pool, ctx: ctx}
}

func (s *PostgresStore) CreateValidationSummariesTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS validation_summaries (
		id SERIAL PRIMARY KEY,
		branch_id VARCHAR(50) NOT NULL,
		filename VARCHAR(255) NOT NULL,
		validation_date DATE NOT NULL,
		total_rows INTEGER NOT NULL,
		error_count INTEGER NOT NULL,
		accuracy_rate NUMERIC(5, 1) NOT NULL,
		grouped_errors JSONB,
		summary_message TEXT,
		category VARCHAR(20) NOT NULL CHECK (category IN ('Perfect', 'Good', 'Medium', 'Critical')),
		checksum VARCHAR(64),
		detected_at TIMESTAMP NOT NULL,
		UNIQUE (branch_id, filename, validation_date)
	);`

	_, err := s.dbpool.Exec(s.ctx, query)
	if err != nil {
		return fmt.Errorf("error creating validation_summaries table: %v", err)
	}
	return nil
}

// UpsertFileSummary writes one summary record keyed by
// (branch_id, filename, validation_date). Re-validating the same file for
// the same date updates the existing record, it never duplicates it.
func (s *PostgresStore) UpsertFileSummary(summary *models.FileSummary) error {
	groupedErrors, err := json.Marshal(summary.GroupedErrors)
	if err != nil {
		return fmt.Errorf("error marshaling grouped errors for %s: %v", summary.Filename, err)
	}

	query := `
	INSERT INTO validation_summaries
		(branch_id, filename, validation_date, total_rows, error_count, accuracy_rate,
		 grouped_errors, summary_message, category, checksum, detected_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	ON CONFLICT (branch_id, filename, validation_date) DO UPDATE SET
		total_rows = EXCLUDED.total_rows,
		error_count = EXCLUDED.error_count,
		accuracy_rate = EXCLUDED.accuracy_rate,
		grouped_errors = EXCLUDED.grouped_errors,
		summary_message = EXCLUDED.summary_message,
		category = EXCLUDED.category,
		checksum = EXCLUDED.checksum,
		detected_at = EXCLUDED.detected_at;`

	_, err = s.dbpool.Exec(s.ctx, query,
		summary.BranchID, summary.Filename, summary.ValidationDate,
		summary.TotalRows, summary.ErrorCount, summary.AccuracyRate,
		groupedErrors, summary.SummaryMessage, string(summary.Category),
		summary.Checksum, summary.DetectedAt)
	if err != nil {
		return fmt.Errorf("error upserting file summary for %s: %v", summary.Filename, err)
	}
	return nil
}

// IsFileUnchanged reports whether a summary already exists for the key with
// the same content checksum, meaning a re-validation would not change it.
func (s *PostgresStore) IsFileUnchanged(branchID, filename string, validationDate time.Time, checksum string) (bool, error) {
	if checksum == "" {
		return false, nil
	}

	query := `
	SELECT id
	FROM validation_summaries
	WHERE branch_id = $1 AND filename = $2 AND validation_date = $3 AND checksum = $4;`

	var id int
	err := s.dbpool.QueryRow(s.ctx, query, branchID, filename, validationDate, checksum).Scan(&id)
	if err != nil {
		if err == pgx.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("error finding summary by checksum: %v", err)
	}
	return true, nil
}

// GetValidationStatistics aggregates persisted summaries, optionally
// filtered by detection time range and branch.
func (s *PostgresStore) GetValidationStatistics(start, end time.Time, branchID string) (*models.ValidationStatistics, error) {
	where := "WHERE ($1::timestamp IS NULL OR detected_at >= $1)" +
		" AND ($2::timestamp IS NULL OR detected_at <= $2)" +
		" AND ($3 = '' OR branch_id = $3)"

	var startArg, endArg interface{}
	if !start.IsZero() {
		startArg = start
	}
	if !end.IsZero() {
		endArg = end
	}

	stats := &models.ValidationStatistics{CategoryCounts: make(map[models.Category]int)}

	totalsQuery := `
	SELECT COUNT(id), COALESCE(SUM(error_count), 0), COALESCE(SUM(total_rows), 0), COALESCE(AVG(accuracy_rate), 0)
	FROM validation_summaries ` + where
	err := s.dbpool.QueryRow(s.ctx, totalsQuery, startArg, endArg, branchID).
		Scan(&stats.TotalFiles, &stats.TotalErrors, &stats.TotalRows, &stats.AvgAccuracy)
	if err != nil {
		return nil, fmt.Errorf("error querying summary totals: %w", err)
	}

	categoryQuery := `
	SELECT category, COUNT(id)
	FROM validation_summaries ` + where + `
	GROUP BY category`
	rows, err := s.dbpool.Query(s.ctx, categoryQuery, startArg, endArg, branchID)
	if err != nil {
		return nil, fmt.Errorf("error querying category counts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var category string
		var count int
		if err := rows.Scan(&category, &count); err != nil {
			return nil, fmt.Errorf("error scanning category count: %w", err)
		}
		stats.CategoryCounts[models.Category(category)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating category counts: %w", err)
	}

	topQuery := `
	SELECT filename, error_count, accuracy_rate
	FROM validation_summaries ` + where + `
	ORDER BY error_count DESC
	LIMIT 10`
	topRows, err := s.dbpool.Query(s.ctx, topQuery, startArg, endArg, branchID)
	if err != nil {
		return nil, fmt.Errorf("error querying top error files: %w", err)
	}
	defer topRows.Close()
	for topRows.Next() {
		var stat models.FileErrorStat
		if err := topRows.Scan(&stat.Filename, &stat.ErrorCount, &stat.AccuracyRate); err != nil {
			return nil, fmt.Errorf("error scanning top error file: %w", err)
		}
		stats.TopErrorFiles = append(stats.TopErrorFiles, stat)
	}
	if err := topRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating top error files: %w", err)
	}

	return stats, nil
}

// GetBranchSummaries returns every summary persisted for one branch and date.
func (s *PostgresStore) GetBranchSummaries(branchID string, validationDate time.Time) ([]models.FileSummary, error) {
	query := `
	SELECT branch_id, filename, validation_date, total_rows, error_count, accuracy_rate,
	       grouped_errors, summary_message, category, COALESCE(checksum, ''), detected_at
	FROM validation_summaries
	WHERE branch_id = $1 AND validation_date = $2
	ORDER BY filename;`

	rows, err := s.dbpool.Query(s.ctx, query, branchID, validationDate)
	if err != nil {
		return nil, fmt.Errorf("error querying branch summaries: %w", err)
	}
	defer rows.Close()

	var summaries []models.FileSummary
	for rows.Next() {
		var summary models.FileSummary
		var groupedErrors []byte
		var category string
		if err := rows.Scan(&summary.BranchID, &summary.Filename, &summary.ValidationDate,
			&summary.TotalRows, &summary.ErrorCount, &summary.AccuracyRate,
			&groupedErrors, &summary.SummaryMessage, &category, &summary.Checksum, &summary.DetectedAt); err != nil {
			return nil, fmt.Errorf("error scanning branch summary: %w", err)
		}
		summary.Category = models.Category(category)
		if len(groupedErrors) > 0 {
			if err := json.Unmarshal(groupedErrors, &summary.GroupedErrors); err != nil {
				return nil, fmt.Errorf("error unmarshaling grouped errors for %s: %w", summary.Filename, err)
			}
		}
		summaries = append(summaries, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating branch summaries: %w", err)
	}

	return summaries, nil
}
