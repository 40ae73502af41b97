package evaluation

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"dealguard/internal/logger"
	"dealguard/pkg/errors"
)

type Handler struct {
	service *Service
	log     logger.Logger
}

func NewHandler(service *Service, log logger.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	v1 := router.Group("/api/v1")
	{
		v1.POST("/evaluations", h.Evaluate)
	}
}

// Evaluate godoc
// @Summary      Evaluate a batch of records
// @Description  Resolve the effective rule set for the given user and org, evaluate every record against it, and return violations per record with a summary, diagnostics and a remediation plan
// @Tags         evaluations
// @Accept       json
// @Produce      json
// @Param        request  body      EvaluateRequest  true  "Records to evaluate plus tenant identity"
// @Success      200      {object}  EvaluationResult
// @Failure      400      {object}  errors.ErrorResponse
// @Failure      500      {object}  errors.ErrorResponse
// @Router       /evaluations [post]
func (h *Handler) Evaluate(c *gin.Context) {
	var req EvaluateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}

	result, err := h.service.Evaluate(c.Request.Context(), req)
	if err != nil {
		h.log.ErrorwCtx(c.Request.Context(), "Request error", "error", err, "path", c.Request.URL.Path)
		c.JSON(errors.ToHTTPStatus(err), errors.ToErrorResponse(err))
		return
	}

	c.JSON(http.StatusOK, result)
}
