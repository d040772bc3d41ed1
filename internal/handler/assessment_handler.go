package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gradelab/scriptgrade-backend/internal/model"
	"github.com/gradelab/scriptgrade-backend/internal/pipeline"
	"github.com/gradelab/scriptgrade-backend/internal/response"
	"github.com/gradelab/scriptgrade-backend/internal/validator"
)

// AssessmentHandler exposes the recomputation entry points: regrade,
// manual review and report rendering.
type AssessmentHandler struct {
	driver *pipeline.Driver
}

// NewAssessmentHandler creates a new AssessmentHandler.
func NewAssessmentHandler(driver *pipeline.Driver) *AssessmentHandler {
	return &AssessmentHandler{driver: driver}
}

// Regrade godoc
// POST /api/v1/jobs/:id/regrade
// Re-runs grading over the structured answers, optionally against a
// different reference key.
func (h *AssessmentHandler) Regrade(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.RegradeRequest
	if c.Request.ContentLength > 0 {
		if fields := validator.Bind(c, &req); fields != nil {
			response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
			return
		}
	}

	var refID *uuid.UUID
	if req.ReferenceID != "" {
		parsed, err := uuid.Parse(req.ReferenceID)
		if err != nil {
			response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
			return
		}
		refID = &parsed
	}

	job, err := h.driver.Regrade(c.Request.Context(), id, refID)
	if err != nil {
		failPipelineError(c, err)
		return
	}

	response.Success(c, http.StatusOK, job)
}

// Review godoc
// POST /api/v1/jobs/:id/review
// Applies manual per-question overrides and recomputes all aggregates.
func (h *AssessmentHandler) Review(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.ReviewRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	job, err := h.driver.Review(c.Request.Context(), id, req.Overrides, req.ReviewerName)
	if err != nil {
		failPipelineError(c, err)
		return
	}

	response.Success(c, http.StatusOK, job)
}

// Render godoc
// POST /api/v1/jobs/:id/render
// Renders (or re-renders) the report artifact for a finished job.
func (h *AssessmentHandler) Render(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.RenderRequest
	if c.Request.ContentLength > 0 {
		if fields := validator.Bind(c, &req); fields != nil {
			response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
			return
		}
	}

	job, err := h.driver.Render(c.Request.Context(), id, req.Format)
	if err != nil {
		failPipelineError(c, err)
		return
	}

	response.Success(c, http.StatusOK, job)
}
