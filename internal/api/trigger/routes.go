// Package trigger provides the /sync endpoints for manually running sync batches.
package trigger

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/stacklok/repo-activity-sync/internal/api/common"
	"github.com/stacklok/repo-activity-sync/internal/registry"
	"github.com/stacklok/repo-activity-sync/internal/status"
	"github.com/stacklok/repo-activity-sync/internal/sync/coordinator"
)

const (
	// StatusSuccess marks a batch in which every repository synced cleanly
	StatusSuccess = "success"

	// StatusCompletedWithErrors marks a batch that finished with per-repository errors
	StatusCompletedWithErrors = "completed_with_errors"
)

// StatusSource exposes the scheduler state
type StatusSource interface {
	Snapshot() status.Snapshot
}

// Response is the body returned by the trigger endpoints
type Response struct {
	Status                   string                        `json:"status"`
	Message                  string                        `json:"message"`
	TriggeredAt              time.Time                     `json:"triggered_at"`
	RepositoriesProcessed    int                           `json:"repositories_processed"`
	ContributionsFetched     int                           `json:"contributions_fetched"`
	ContributionsUpserted    int                           `json:"contributions_upserted"`
	ProcessedRepositoryLinks []string                      `json:"processed_repository_links"`
	Errors                   []coordinator.RepositoryError `json:"errors"`
	ProcessingTimeMs         int64                         `json:"processing_time_ms"`
}

// NewResponse converts a batch result into its wire form
func NewResponse(result *coordinator.BatchResult) Response {
	resp := Response{
		Status:                   StatusSuccess,
		Message:                  result.Message(),
		TriggeredAt:              result.TriggeredAt.UTC(),
		RepositoriesProcessed:    result.RepositoriesProcessed,
		ContributionsFetched:     result.ContributionsFetched,
		ContributionsUpserted:    result.ContributionsUpserted,
		ProcessedRepositoryLinks: result.ProcessedRepositoryLinks,
		Errors:                   result.Errors,
		ProcessingTimeMs:         result.ProcessingTime.Milliseconds(),
	}
	if len(result.Errors) > 0 {
		resp.Status = StatusCompletedWithErrors
	}
	if resp.ProcessedRepositoryLinks == nil {
		resp.ProcessedRepositoryLinks = []string{}
	}
	if resp.Errors == nil {
		resp.Errors = []coordinator.RepositoryError{}
	}
	return resp
}

// Routes holds the dependencies of the sync endpoints
type Routes struct {
	runner coordinator.BatchRunner
	status StatusSource
}

// Router creates the /sync router. The status endpoint is only served when
// a status source is given.
func Router(runner coordinator.BatchRunner, statusSource StatusSource) http.Handler {
	routes := &Routes{runner: runner, status: statusSource}

	r := chi.NewRouter()
	r.Post("/trigger", routes.triggerAll)
	r.Post("/trigger/*", routes.triggerRepository)
	r.Get("/health", healthHandler)
	if statusSource != nil {
		r.Get("/status", routes.getStatus)
	}

	return r
}

// triggerAll handles POST /sync/trigger
func (rt *Routes) triggerAll(w http.ResponseWriter, r *http.Request) {
	rt.run(w, r, coordinator.All())
}

// triggerRepository handles POST /sync/trigger/{repository}.
// The repository is either its UUID or its (optionally URL-escaped) link.
func (rt *Routes) triggerRepository(w http.ResponseWriter, r *http.Request) {
	identifier, err := common.GetAndValidateURLParam(r, "*")
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	scope := coordinator.SingleByLink(identifier)
	if id, parseErr := uuid.Parse(identifier); parseErr == nil {
		scope = coordinator.Single(id)
	}
	rt.run(w, r, scope)
}

func (rt *Routes) run(w http.ResponseWriter, r *http.Request, scope coordinator.Scope) {
	ctx := r.Context()

	result, err := rt.runner.RunBatch(ctx, scope)
	if err != nil {
		code, message := statusForError(ctx, err)
		if code >= http.StatusInternalServerError {
			slog.ErrorContext(ctx, "Manual sync failed", "scope", scope.String(), "error", err)
		}
		common.WriteErrorResponse(w, message, code)
		return
	}

	common.WriteJSONResponse(w, NewResponse(result), http.StatusOK)
}

// statusForError maps a batch error to its HTTP status and message
func statusForError(ctx context.Context, err error) (int, string) {
	switch {
	case errors.Is(err, registry.ErrInvalidRepositoryLink):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, registry.ErrRepositoryNotFound):
		return http.StatusNotFound, err.Error()
	case ctx.Err() != nil:
		return http.StatusServiceUnavailable, "request cancelled before the sync finished"
	default:
		return http.StatusInternalServerError, "sync failed: " + err.Error()
	}
}

// healthHandler handles GET /sync/health
func healthHandler(w http.ResponseWriter, _ *http.Request) {
	common.WriteJSONResponse(w, map[string]string{"status": "healthy"}, http.StatusOK)
}

// getStatus handles GET /sync/status
func (rt *Routes) getStatus(w http.ResponseWriter, _ *http.Request) {
	common.WriteJSONResponse(w, rt.status.Snapshot(), http.StatusOK)
}
