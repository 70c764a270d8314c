package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/workflow-orchestrator/internal/application/port"
	"github.com/garyjia/workflow-orchestrator/internal/application/service"
	"github.com/garyjia/workflow-orchestrator/internal/domain/workflow"
)

// statusFor maps service and domain errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case service.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, service.ErrInstanceAlreadyRunning), errors.Is(err, port.ErrVersionConflict):
		return http.StatusConflict
	case errors.Is(err, workflow.ErrInvalidDefinition):
		return http.StatusBadRequest
	case workflow.IsDomainError(err):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handlers) fail(c *gin.Context, op string, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed", "operation", op, "org_id", orgID(c), "error", err)
		msg = "internal server error"
	}

	resp := Response{Success: false, Error: msg}
	var de *workflow.DomainError
	if errors.As(err, &de) {
		resp.Rule = de.Rule
	}
	c.JSON(status, resp)
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, Response{Success: false, Error: msg})
}
