package management

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"dealguard/internal/constants"
	"dealguard/internal/logger"
	"dealguard/internal/rules"
	"dealguard/pkg/errors"
)

type BaseHandler struct {
	Service Service
	Logger  logger.Logger
}

func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	h.Logger.ErrorwCtx(c.Request.Context(), "Request error", "error", err, "path", c.Request.URL.Path)

	status := errors.ToHTTPStatus(err)
	response := errors.ToErrorResponse(err)

	c.JSON(status, response)
}

type Handler struct {
	BaseHandler
}

func NewHandler(service Service, log logger.Logger) *Handler {
	return &Handler{
		BaseHandler: BaseHandler{
			Service: service,
			Logger:  log,
		},
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	v1 := router.Group("/api/v1")
	{
		ruleRoutes := v1.Group("/rules")
		{
			ruleRoutes.GET("", h.ListEffectiveRules)
			ruleRoutes.GET("/global", h.ListGlobalRules)
			ruleRoutes.PUT("/global/:id/override", h.UpsertOverride)
			ruleRoutes.DELETE("/global/:id/override", h.DeleteOverride)
			ruleRoutes.GET("/custom", h.ListCustomRules)
			ruleRoutes.POST("/custom", h.CreateCustomRule)
			ruleRoutes.GET("/custom/:id", h.GetCustomRule)
			ruleRoutes.PATCH("/custom/:id", h.UpdateCustomRule)
			ruleRoutes.DELETE("/custom/:id", h.DeleteCustomRule)
			ruleRoutes.GET("/custom/:id/versions", h.GetCustomRuleVersions)
			ruleRoutes.GET("/metadata", h.GetMetadata)
			ruleRoutes.GET("/summary", h.GetSummary)
		}

		audit := v1.Group("/audit")
		{
			audit.GET("/logs", h.GetAuditLogs)
		}
	}
}

// ListEffectiveRules godoc
// @Summary      List effective rules
// @Description  Resolve the catalog, overrides and custom rules into the effective rule set for a user and org
// @Tags         rules
// @Accept       json
// @Produce      json
// @Param        userId  query     string  false  "User id"
// @Param        orgId   query     string  false  "Organization id"
// @Success      200     {object}  RulesListResponse
// @Failure      500     {object}  errors.ErrorResponse
// @Router       /rules [get]
func (h *Handler) ListEffectiveRules(c *gin.Context) {
	effective, err := h.Service.ListEffectiveRules(c.Request.Context(), c.Query("userId"), c.Query("orgId"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, RulesListResponse{Rules: effective, Total: len(effective)})
}

// ListGlobalRules godoc
// @Summary      List global rules
// @Description  List the rule catalog with override status applied, disabled rules included
// @Tags         rules
// @Accept       json
// @Produce      json
// @Param        userId  query     string  false  "User id"
// @Param        orgId   query     string  false  "Organization id"
// @Success      200     {object}  RulesListResponse
// @Failure      500     {object}  errors.ErrorResponse
// @Router       /rules/global [get]
func (h *Handler) ListGlobalRules(c *gin.Context) {
	globals, err := h.Service.ListGlobalRules(c.Request.Context(), c.Query("userId"), c.Query("orgId"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, RulesListResponse{Rules: globals, Total: len(globals)})
}

// ListCustomRules godoc
// @Summary      List custom rules
// @Description  List the custom rules visible to a user and org
// @Tags         custom-rules
// @Accept       json
// @Produce      json
// @Param        userId  query     string  false  "User id"
// @Param        orgId   query     string  false  "Organization id"
// @Success      200     {object}  CustomRulesListResponse
// @Failure      500     {object}  errors.ErrorResponse
// @Router       /rules/custom [get]
func (h *Handler) ListCustomRules(c *gin.Context) {
	customRules, err := h.Service.ListCustomRules(c.Request.Context(), c.Query("userId"), c.Query("orgId"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, CustomRulesListResponse{Rules: customRules, Total: len(customRules)})
}

// CreateCustomRule godoc
// @Summary      Create a custom rule
// @Description  Create a tenant-authored rule; a custom rule reusing a catalog rule id supersedes the catalog rule
// @Tags         custom-rules
// @Accept       json
// @Produce      json
// @Param        rule  body      CreateCustomRuleRequest  true  "Custom rule data"
// @Success      201   {object}  rules.CustomRule
// @Failure      400   {object}  errors.ErrorResponse
// @Failure      409   {object}  errors.ErrorResponse
// @Failure      500   {object}  errors.ErrorResponse
// @Router       /rules/custom [post]
func (h *Handler) CreateCustomRule(c *gin.Context) {
	var req CreateCustomRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}

	rule, err := h.Service.CreateCustomRule(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, rule)
}

// GetCustomRule godoc
// @Summary      Get a custom rule
// @Description  Get one custom rule by row id
// @Tags         custom-rules
// @Accept       json
// @Produce      json
// @Param        id   path      string  true  "Custom rule id"
// @Success      200  {object}  rules.CustomRule
// @Failure      404  {object}  errors.ErrorResponse
// @Failure      500  {object}  errors.ErrorResponse
// @Router       /rules/custom/{id} [get]
func (h *Handler) GetCustomRule(c *gin.Context) {
	rule, err := h.Service.GetCustomRule(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, rule)
}

// UpdateCustomRule godoc
// @Summary      Update a custom rule
// @Description  Patch a custom rule; only the fields present in the body change
// @Tags         custom-rules
// @Accept       json
// @Produce      json
// @Param        id    path      string                   true  "Custom rule id"
// @Param        rule  body      UpdateCustomRuleRequest  true  "Fields to update"
// @Success      200   {object}  rules.CustomRule
// @Failure      400   {object}  errors.ErrorResponse
// @Failure      404   {object}  errors.ErrorResponse
// @Failure      500   {object}  errors.ErrorResponse
// @Router       /rules/custom/{id} [patch]
func (h *Handler) UpdateCustomRule(c *gin.Context) {
	var req UpdateCustomRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}

	rule, err := h.Service.UpdateCustomRule(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, rule)
}

// DeleteCustomRule godoc
// @Summary      Delete a custom rule
// @Tags         custom-rules
// @Accept       json
// @Produce      json
// @Param        id   path      string  true  "Custom rule id"
// @Success      204  "No Content"
// @Failure      404  {object}  errors.ErrorResponse
// @Failure      500  {object}  errors.ErrorResponse
// @Router       /rules/custom/{id} [delete]
func (h *Handler) DeleteCustomRule(c *gin.Context) {
	if err := h.Service.DeleteCustomRule(c.Request.Context(), c.Param("id")); err != nil {
		h.HandleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// UpsertOverride godoc
// @Summary      Create a global rule override
// @Description  Disable or re-parameterize one catalog rule for an org or user; a second override for the same rule and scope is a conflict
// @Tags         overrides
// @Accept       json
// @Produce      json
// @Param        id        path      string                 true  "Catalog rule id"
// @Param        override  body      UpsertOverrideRequest  true  "Override data"
// @Success      201       {object}  rules.GlobalRuleOverride
// @Failure      400       {object}  errors.ErrorResponse
// @Failure      409       {object}  errors.ErrorResponse
// @Failure      422       {object}  errors.ErrorResponse
// @Failure      500       {object}  errors.ErrorResponse
// @Router       /rules/global/{id}/override [put]
func (h *Handler) UpsertOverride(c *gin.Context) {
	var req UpsertOverrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}

	override, err := h.Service.UpsertOverride(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, override)
}

// DeleteOverride godoc
// @Summary      Delete a global rule override
// @Description  Revert one catalog rule back to its default for the given scope
// @Tags         overrides
// @Accept       json
// @Produce      json
// @Param        id       path      string  true  "Catalog rule id"
// @Param        scope    query     string  true  "Override scope (org or user)"
// @Param        scopeId  query     string  true  "Org or user id"
// @Success      204      "No Content"
// @Failure      400      {object}  errors.ErrorResponse
// @Failure      404      {object}  errors.ErrorResponse
// @Failure      500      {object}  errors.ErrorResponse
// @Router       /rules/global/{id}/override [delete]
func (h *Handler) DeleteOverride(c *gin.Context) {
	scope := rules.Scope(c.Query("scope"))
	scopeID := c.Query("scopeId")
	if !scope.Valid() || scopeID == "" {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(
			errors.ErrValidation.WithDetail("message", "scope and scopeId query parameters are required")))
		return
	}

	if err := h.Service.DeleteOverride(c.Request.Context(), c.Param("id"), scope, scopeID); err != nil {
		h.HandleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetMetadata godoc
// @Summary      Get rule authoring metadata
// @Description  Operators with their metadata, known fields, stages, categories, severities, remediation owners and scopes
// @Tags         rules
// @Accept       json
// @Produce      json
// @Success      200  {object}  MetadataResponse
// @Router       /rules/metadata [get]
func (h *Handler) GetMetadata(c *gin.Context) {
	c.JSON(http.StatusOK, h.Service.Metadata())
}

// GetSummary godoc
// @Summary      Get rule availability summary
// @Description  Counts of the effective rule set for a user and org, split by category, severity and scope
// @Tags         rules
// @Accept       json
// @Produce      json
// @Param        userId  query     string  false  "User id"
// @Param        orgId   query     string  false  "Organization id"
// @Success      200     {object}  rules.RuleCounts
// @Failure      500     {object}  errors.ErrorResponse
// @Router       /rules/summary [get]
func (h *Handler) GetSummary(c *gin.Context) {
	counts, err := h.Service.Summary(c.Request.Context(), c.Query("userId"), c.Query("orgId"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, counts)
}

// GetCustomRuleVersions godoc
// @Summary      Get custom rule version history
// @Tags         custom-rules
// @Accept       json
// @Produce      json
// @Param        id   path      string  true  "Custom rule id"
// @Success      200  {array}   RuleVersion
// @Failure      500  {object}  errors.ErrorResponse
// @Router       /rules/custom/{id}/versions [get]
func (h *Handler) GetCustomRuleVersions(c *gin.Context) {
	versions, err := h.Service.GetRuleVersions(c.Request.Context(), EntityCustomRule, c.Param("id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, versions)
}

// GetAuditLogs godoc
// @Summary      Get audit logs
// @Description  Audit logs of rule writes, optionally filtered by entity id or entity type
// @Tags         audit
// @Accept       json
// @Produce      json
// @Param        entity_id    query     string  false  "Filter by entity id"
// @Param        entity_type  query     string  false  "Filter by entity type (override, custom_rule)"
// @Param        limit        query     int     false  "Maximum number of logs to return (1-1000)" default(100)
// @Success      200          {array}   AuditLog
// @Failure      500          {object}  errors.ErrorResponse
// @Router       /audit/logs [get]
func (h *Handler) GetAuditLogs(c *gin.Context) {
	entityID := c.Query("entity_id")
	entityType := c.Query("entity_type")
	limit := parseLimit(c.Query("limit"))

	var entityIDPtr *string
	if entityID != "" {
		entityIDPtr = &entityID
	}

	logs, err := h.Service.GetAuditLogs(c.Request.Context(), entityIDPtr, entityType, limit)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, logs)
}

func parseLimit(limitStr string) int {
	if limitStr == "" {
		return constants.DefaultLimit
	}
	parsed, err := strconv.Atoi(limitStr)
	if err != nil || parsed <= 0 || parsed > constants.MaxLimit {
		return constants.DefaultLimit
	}
	return parsed
}
