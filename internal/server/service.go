// Package server exposes a read-only reporting API over persisted
// validation summaries.
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/branchops/csv-validator/internal/database"
)

type StatsService struct {
	Store database.Store
}

func NewStatsService(store database.Store) *StatsService {
	return &StatsService{Store: store}
}

// GetStatistics serves aggregate validation statistics, optionally filtered
// by ?start_date=YYYY-MM-DD, ?end_date=YYYY-MM-DD and ?branch_id=.
func (h *StatsService) GetStatistics(w http.ResponseWriter, r *http.Request) {
	var start, end time.Time
	var err error

	if s := r.URL.Query().Get("start_date"); s != "" {
		start, err = time.Parse("2006-01-02", s)
		if err != nil {
			http.Error(w, "Invalid 'start_date' format. Use YYYY-MM-DD.", http.StatusBadRequest)
			return
		}
	}
	if e := r.URL.Query().Get("end_date"); e != "" {
		end, err = time.Parse("2006-01-02", e)
		if err != nil {
			http.Error(w, "Invalid 'end_date' format. Use YYYY-MM-DD.", http.StatusBadRequest)
			return
		}
		// Make the end date inclusive of its whole day.
		end = end.Add(24*time.Hour - time.Second)
	}

	stats, err := h.Store.GetValidationStatistics(start, end, r.URL.Query().Get("branch_id"))
	if err != nil {
		http.Error(w, "Failed to retrieve validation statistics", http.StatusInternalServerError)
		return
	}

	writeJSON(w, stats)
}

// GetBranchSummaries serves every file summary of one branch for one
// validation date (?date=YYYY-MM-DD, default yesterday).
func (h *StatsService) GetBranchSummaries(w http.ResponseWriter, r *http.Request) {
	branchID := chi.URLParam(r, "branchID")
	if branchID == "" {
		http.Error(w, "Branch ID is required in the URL path /branches/{branchID}/summaries", http.StatusBadRequest)
		return
	}

	date := time.Now().AddDate(0, 0, -1).Truncate(24 * time.Hour)
	if d := r.URL.Query().Get("date"); d != "" {
		var err error
		date, err = time.Parse("2006-01-02", d)
		if err != nil {
			http.Error(w, "Invalid 'date' format. Use YYYY-MM-DD.", http.StatusBadRequest)
			return
		}
	}

	summaries, err := h.Store.GetBranchSummaries(branchID, date)
	if err != nil {
		http.Error(w, "Failed to retrieve branch summaries", http.StatusInternalServerError)
		return
	}

	writeJSON(w, summaries)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}
