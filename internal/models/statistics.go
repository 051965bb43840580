package models

// FileErrorStat is one row of the top-error-files report.
type FileErrorStat struct {
	Filename     string  `json:"filename"`
	ErrorCount   int     `json:"error_count"`
	AccuracyRate float64 `json:"accuracy_rate"`
}

// ValidationStatistics aggregates persisted summaries for reporting.
type ValidationStatistics struct {
	TotalFiles     int              `json:"total_files"`
	TotalErrors    int              `json:"total_errors"`
	TotalRows      int              `json:"total_rows"`
	AvgAccuracy    float64          `json:"avg_accuracy"`
	CategoryCounts map[Category]int `json:"category_counts"`
	TopErrorFiles  []FileErrorStat  `json:"top_error_files"`
}
