package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/sitegen-api/internal/api/shared"
	"github.com/phrazzld/sitegen-api/internal/platform/logger"
	"github.com/phrazzld/sitegen-api/internal/service"
)

// JobHandler exposes the job control surface over HTTP.
type JobHandler struct {
	jobs service.JobService
}

// NewJobHandler creates a new JobHandler.
func NewJobHandler(jobs service.JobService) *JobHandler {
	return &JobHandler{jobs: jobs}
}

// Routes registers the handler under r. requireAdmin guards queue
// administration and is applied after authentication.
func (h *JobHandler) Routes(r chi.Router, requireAdmin func(http.Handler) http.Handler) {
	r.Post("/websites/generate", h.GenerateWebsite)
	r.Post("/websites/{websiteId}/generate-more-blogs", h.GenerateMoreBlogs)

	r.Route("/websites/jobs", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(requireAdmin)
			r.Get("/stats", h.Stats)
			r.Post("/clear-pending", h.ClearPending)
			r.Post("/pause", h.Pause)
			r.Post("/resume", h.Resume)
		})
		r.Get("/{jobId}", h.GetJobStatus)
		r.Delete("/{jobId}", h.CancelJob)
	})
}

// GenerateWebsite handles POST /websites/generate.
func (h *JobHandler) GenerateWebsite(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	var req GenerateWebsiteRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := shared.ValidateRequest(&req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, SanitizeValidationError(err))
		return
	}

	job, err := h.jobs.EnqueueWebsiteGeneration(r.Context(), caller, service.GenerateWebsiteRequest{
		DomainID:           uuid.MustParse(req.DomainID),
		TemplateKey:        req.TemplateKey,
		ContactFormEnabled: req.ContactFormEnabled,
	})
	if err != nil {
		HandleAPIError(w, r, err, "Failed to queue website generation")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusAccepted, JobAcceptedResponse{
		JobID:   job.ID,
		Message: "Website generation queued",
	})
}

// GenerateMoreBlogs handles POST /websites/{websiteId}/generate-more-blogs.
func (h *JobHandler) GenerateMoreBlogs(w http.ResponseWriter, r *http.Request) {
	caller, websiteID, ok := handleCallerAndPathUUID(w, r, "websiteId")
	if !ok {
		return
	}

	var req MoreBlogsRequest
	if err := shared.DecodeOptionalJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}

	job, err := h.jobs.EnqueueMoreBlogs(r.Context(), caller, service.MoreBlogsRequest{
		WebsiteID: websiteID,
		Quantity:  req.Quantity,
	})
	if err != nil {
		HandleAPIError(w, r, err, "Failed to queue blog generation")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusAccepted, JobAcceptedResponse{
		JobID:   job.ID,
		Message: "Blog generation queued",
	})
}

// GetJobStatus handles GET /websites/jobs/{jobId}.
func (h *JobHandler) GetJobStatus(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	jobID, err := getJobID(r)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	job, err := h.jobs.GetStatus(r.Context(), caller, jobID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to get job status")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, jobToStatusResponse(job))
}

// CancelJob handles DELETE /websites/jobs/{jobId}.
func (h *JobHandler) CancelJob(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	jobID, err := getJobID(r)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	if err := h.jobs.Cancel(r.Context(), caller, jobID); err != nil {
		HandleAPIError(w, r, err, "Failed to cancel job")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, JobAcceptedResponse{
		JobID:   jobID,
		Message: "Job cancelled",
	})
}

// Stats handles GET /websites/jobs/stats.
func (h *JobHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.jobs.Stats(r.Context())
	if err != nil {
		HandleAPIError(w, r, err, "Failed to get queue stats")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, stats)
}

// ClearPending handles POST /websites/jobs/clear-pending.
func (h *JobHandler) ClearPending(w http.ResponseWriter, r *http.Request) {
	n, err := h.jobs.ClearPending(r.Context())
	if err != nil {
		HandleAPIError(w, r, err, "Failed to clear pending jobs")
		return
	}
	logger.FromContext(r.Context()).Info("pending jobs cleared by admin", "count", n)
	shared.RespondWithJSON(w, r, http.StatusOK, ClearPendingResponse{Cleared: n})
}

// Pause handles POST /websites/jobs/pause.
func (h *JobHandler) Pause(w http.ResponseWriter, r *http.Request) {
	if err := h.jobs.Pause(r.Context()); err != nil {
		HandleAPIError(w, r, err, "Failed to pause queue")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, QueueStateResponse{Paused: true})
}

// Resume handles POST /websites/jobs/resume.
func (h *JobHandler) Resume(w http.ResponseWriter, r *http.Request) {
	if err := h.jobs.Resume(r.Context()); err != nil {
		HandleAPIError(w, r, err, "Failed to resume queue")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, QueueStateResponse{Paused: false})
}
