package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gradelab/scriptgrade-backend/internal/pipeline"
	"github.com/gradelab/scriptgrade-backend/internal/response"
)

// failPipelineError maps orchestration errors onto HTTP status codes
// and typed API error codes.
func failPipelineError(c *gin.Context, err error) {
	var (
		notFound   *pipeline.NotFoundError
		validation *pipeline.ValidationError
		capability *pipeline.CapabilityError
	)

	switch {
	case errors.Is(err, pipeline.ErrJobBusy):
		response.Fail(c, http.StatusConflict, response.ErrJobBusy)
	case errors.As(err, &notFound):
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	case errors.As(err, &validation):
		response.Fail(c, http.StatusConflict, response.ErrIllegalState)
	case errors.As(err, &capability):
		response.Fail(c, http.StatusBadGateway, response.ErrProviderFailure)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}
