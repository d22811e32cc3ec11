package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/pkg/errors"

	"dzchess-analyzer/internal/jobs"
	"dzchess-analyzer/internal/model"
	"dzchess-analyzer/pkg/apierror"
	"dzchess-analyzer/pkg/response"
	"dzchess-analyzer/pkg/uid"
)

// JobService is the part of the job runner the HTTP layer uses.
type JobService interface {
	Submit(ctx context.Context, req model.JobRequest) (*model.Job, error)
	Status(ctx context.Context, id string) (*model.Job, error)
	Cancel(ctx context.Context, id string) (*model.Job, error)
}

// JobHandler handles ingestion job requests.
type JobHandler struct {
	jobs     JobService
	validate *validator.Validate
}

// NewJobHandler creates a new job handler.
func NewJobHandler(jobs JobService) *JobHandler {
	return &JobHandler{jobs: jobs, validate: validator.New()}
}

// Submit handles POST /api/v1/jobs
func (h *JobHandler) Submit(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 64<<10))
	if err != nil {
		response.Error(w, apierror.BadRequest("failed to read request body"))
		return
	}
	defer r.Body.Close()

	var req model.JobRequest
	if err := json.Unmarshal(body, &req); err != nil {
		response.Error(w, apierror.BadRequest("invalid JSON"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.Error(w, err)
		return
	}

	job, err := h.jobs.Submit(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	w.Header().Set("Location", "/api/v1/jobs/"+job.ID)
	response.Accepted(w, job)
}

// Get handles GET /api/v1/jobs/{id}
func (h *JobHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := jobID(w, r)
	if !ok {
		return
	}
	job, err := h.jobs.Status(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.OK(w, job)
}

// Cancel handles DELETE /api/v1/jobs/{id}
func (h *JobHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := jobID(w, r)
	if !ok {
		return
	}
	job, err := h.jobs.Cancel(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.Accepted(w, job)
}

func (h *JobHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, jobs.ErrStopped) {
		response.Error(w, apierror.ServiceUnavailable("server is shutting down"))
		return
	}
	apiErr := apierror.FromError(err)
	if apiErr.StatusCode >= http.StatusInternalServerError {
		logErr(r, err, "job request failed")
	}
	response.Error(w, apiErr)
}

func jobID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if !uid.Valid(id) {
		response.Error(w, apierror.NotFound("job not found"))
		return "", false
	}
	return id, true
}
