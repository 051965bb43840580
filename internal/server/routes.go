package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter mounts the reporting endpoints.
func NewRouter(svc *StatsService) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/statistics", svc.GetStatistics)
	r.Get("/branches/{branchID}/summaries", svc.GetBranchSummaries)

	return r
}
