package httpx

import (
	"net/http"
	"strconv"

	"github.com/m-navaneeth8770/queuectl/internal/domain/model"
	"github.com/m-navaneeth8770/queuectl/internal/service"
)

const defaultListLimit = 50

// QueueHandlers serves the read-only JSON APIs over the queue.
type QueueHandlers struct {
	Svc       *service.QueueService
	Snapshots *service.StatsCache
}

func registerQueueRoutes(mux *http.ServeMux, h *QueueHandlers) {
	mux.HandleFunc("GET /api/stats", h.handleStats)
	mux.HandleFunc("GET /api/metrics", h.handleMetrics)
	mux.HandleFunc("GET /api/jobs", h.handleListJobs)
	mux.HandleFunc("GET /api/jobs/{id}", h.handleGetJob)
	mux.HandleFunc("GET /api/dlq", h.handleListDLQ)
}

// handleStats returns the combined stats and metrics snapshot, served from
// the cache when one is configured.
func (h *QueueHandlers) handleStats(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.Snapshots.Snapshot(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, snapshot)
}

func (h *QueueHandlers) handleMetrics(w http.ResponseWriter, r *http.Request) {
	metrics, err := h.Svc.Metrics(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, metrics)
}

func (h *QueueHandlers) handleListJobs(w http.ResponseWriter, r *http.Request) {
	filter := model.JobFilter{
		State: model.JobState(r.URL.Query().Get("state")),
		Limit: queryLimit(r, defaultListLimit),
	}

	jobs, err := h.Svc.List(r.Context(), filter)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"jobs": jobs, "count": len(jobs)})
}

func (h *QueueHandlers) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.Svc.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, job)
}

func (h *QueueHandlers) handleListDLQ(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.Svc.ListDLQ(r.Context(), queryLimit(r, defaultListLimit))
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"jobs": jobs, "count": len(jobs)})
}

// queryLimit parses the limit query parameter, falling back on garbage.
func queryLimit(r *http.Request, fallback int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		return fallback
	}
	return limit
}
