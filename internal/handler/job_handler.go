package handler

import (
	"errors"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gradelab/scriptgrade-backend/internal/model"
	"github.com/gradelab/scriptgrade-backend/internal/repository"
	"github.com/gradelab/scriptgrade-backend/internal/response"
	"github.com/gradelab/scriptgrade-backend/internal/service"
	"github.com/gradelab/scriptgrade-backend/internal/validator"
)

// JobHandler handles answer-script submission and job lifecycle
// endpoints.
type JobHandler struct {
	jobService *service.JobService
}

// NewJobHandler creates a new JobHandler.
func NewJobHandler(jobService *service.JobService) *JobHandler {
	return &JobHandler{jobService: jobService}
}

// Submit godoc
// POST /api/v1/jobs
// Accepts a multipart answer-script upload and enqueues it for grading.
func (h *JobHandler) Submit(c *gin.Context) {
	var req model.SubmitJobRequest
	if err := c.ShouldBind(&req); err != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, validator.TranslateErrors(err))
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrFileRequired)
		return
	}
	defer file.Close()

	job, err := h.jobService.Submit(c.Request.Context(), &req, file, header)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUnsupportedFileType):
			response.Fail(c, http.StatusBadRequest, response.ErrUnsupportedFile)
		case errors.Is(err, service.ErrFileTooLarge):
			response.Fail(c, http.StatusBadRequest, response.ErrFileTooLarge)
		default:
			failPipelineError(c, err)
		}
		return
	}

	response.Success(c, http.StatusAccepted, job)
}

// Get godoc
// GET /api/v1/jobs/:id
// Returns the full job record including answers and execution log.
func (h *JobHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	job, err := h.jobService.Get(c.Request.Context(), id)
	if err != nil {
		failPipelineError(c, err)
		return
	}

	response.Success(c, http.StatusOK, job)
}

// List godoc
// GET /api/v1/jobs?state=&student_id=&limit=
// Lists jobs newest first.
func (h *JobHandler) List(c *gin.Context) {
	filter := repository.JobFilter{
		StudentID: c.Query("student_id"),
	}
	if s := c.Query("state"); s != "" {
		state := model.JobState(s)
		filter.State = &state
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	jobs, err := h.jobService.List(c.Request.Context(), filter, limit)
	if err != nil {
		failPipelineError(c, err)
		return
	}

	response.Success(c, http.StatusOK, jobs)
}

// Delete godoc
// DELETE /api/v1/jobs/:id
// Removes a job record with its stored pages and report.
func (h *JobHandler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	deleted, err := h.jobService.Delete(c.Request.Context(), id)
	if err != nil {
		failPipelineError(c, err)
		return
	}
	if !deleted {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

// DownloadReport godoc
// GET /api/v1/jobs/:id/report
// Streams the rendered report artifact.
func (h *JobHandler) DownloadReport(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	job, err := h.jobService.Get(c.Request.Context(), id)
	if err != nil {
		failPipelineError(c, err)
		return
	}
	if job.ReportPath == "" {
		response.Fail(c, http.StatusNotFound, response.ErrReportNotReady)
		return
	}

	c.FileAttachment(job.ReportPath, filepath.Base(job.ReportPath))
}
