package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/gradelab/scriptgrade-backend/internal/config"
	"github.com/gradelab/scriptgrade-backend/internal/model"
	"github.com/gradelab/scriptgrade-backend/internal/response"
	"github.com/gradelab/scriptgrade-backend/internal/service"
	"github.com/gradelab/scriptgrade-backend/internal/validator"
)

// ReferenceHandler handles reference answer key endpoints.
type ReferenceHandler struct {
	refService *service.ReferenceService
	rdb        *redis.Client
}

// NewReferenceHandler creates a new ReferenceHandler.
func NewReferenceHandler(refService *service.ReferenceService, rdb *redis.Client) *ReferenceHandler {
	return &ReferenceHandler{refService: refService, rdb: rdb}
}

// Create godoc
// POST /api/v1/references
// Uploads a reference answer script.
func (h *ReferenceHandler) Create(c *gin.Context) {
	var req model.CreateReferenceRequest
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

	ref, err := h.refService.Create(c.Request.Context(), &req, file, header)
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

	response.Success(c, http.StatusCreated, ref)
}

// Get godoc
// GET /api/v1/references/:id
func (h *ReferenceHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	ref, err := h.refService.Get(c.Request.Context(), id)
	if err != nil {
		failPipelineError(c, err)
		return
	}

	response.Success(c, http.StatusOK, ref)
}

// List godoc
// GET /api/v1/references?exam_name=&limit=
func (h *ReferenceHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	refs, err := h.refService.List(c.Request.Context(), c.Query("exam_name"), limit)
	if err != nil {
		failPipelineError(c, err)
		return
	}

	response.Success(c, http.StatusOK, refs)
}

// Process godoc
// POST /api/v1/references/:id/process
// Enqueues the reference for extraction and structuring.
func (h *ReferenceHandler) Process(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	// Existence check before enqueueing so callers get a 404 now, not a
	// silent worker failure later.
	ref, err := h.refService.Get(c.Request.Context(), id)
	if err != nil {
		failPipelineError(c, err)
		return
	}
	if ref.Status == model.ReferenceStatusProcessing {
		response.Fail(c, http.StatusConflict, response.ErrJobBusy)
		return
	}

	if err := h.rdb.RPush(c.Request.Context(), config.WorkerKey.ProcessReferencesQueue, id.String()).Err(); err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusAccepted, gin.H{"queued": true})
}

// Activate godoc
// POST /api/v1/references/:id/activate
func (h *ReferenceHandler) Activate(c *gin.Context) {
	h.setActive(c, true)
}

// Deactivate godoc
// POST /api/v1/references/:id/deactivate
func (h *ReferenceHandler) Deactivate(c *gin.Context) {
	h.setActive(c, false)
}

func (h *ReferenceHandler) setActive(c *gin.Context, active bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	ref, err := h.refService.SetActive(c.Request.Context(), id, active)
	if err != nil {
		failPipelineError(c, err)
		return
	}

	response.Success(c, http.StatusOK, ref)
}

// Delete godoc
// DELETE /api/v1/references/:id
func (h *ReferenceHandler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	deleted, err := h.refService.Delete(c.Request.Context(), id)
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
