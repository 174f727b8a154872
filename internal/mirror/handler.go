package mirror

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"warden/internal/condition"
	"warden/internal/logger"
	"warden/internal/rules"
	"warden/pkg/errors"
	"warden/pkg/metrics"
)

type Handler struct {
	manager   *Manager
	previewer *condition.Previewer
	logger    logger.Logger
}

func NewHandler(manager *Manager, log logger.Logger) *Handler {
	return &Handler{
		manager:   manager,
		previewer: condition.NewPreviewer(),
		logger:    log,
	}
}

func (h *Handler) handleError(c *gin.Context, err error) {
	h.logger.ErrorwCtx(c.Request.Context(), "Request error", "error", err, "path", c.Request.URL.Path)

	c.JSON(errors.ToHTTPStatus(err), errors.ToErrorResponse(err))
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	v1 := router.Group("/api/v1")
	{
		conditions := v1.Group("/conditions")
		{
			conditions.POST("/validate", h.ValidateCondition)
			conditions.POST("/preview", h.PreviewCondition)
		}

		owners := v1.Group("/owners/:owner")
		{
			owners.POST("/session", h.InitSession)
			owners.DELETE("/session", h.DisposeSession)
			owners.POST("/resync", h.Resync)

			ownerRules := owners.Group("/rules")
			{
				ownerRules.GET("", h.ListRules)
				ownerRules.GET("/counts", h.TabCounts)
				ownerRules.GET("/in-progress", h.InProgressRules)
				ownerRules.POST("", h.CreateRule)
				ownerRules.PATCH("/:id", h.UpdateRule)
				ownerRules.DELETE("/:id", h.PermanentDeleteRule)
				ownerRules.POST("/:id/soft-delete", h.SoftDeleteRule)
				ownerRules.POST("/:id/recover", h.RecoverRule)
				ownerRules.POST("/:id/toggle-status", h.ToggleStatus)
				ownerRules.GET("/:id/expansion", h.RowExpansion)
				ownerRules.POST("/:id/expansion", h.ToggleRowExpansion)
			}
		}
	}
}

// session resolves the owner's live mirror session or reports that none has
// been initialized.
func (h *Handler) session(c *gin.Context) (*Service, bool) {
	ownerID := c.Param("owner")
	session, ok := h.manager.Session(ownerID)
	if !ok {
		h.handleError(c, errors.ErrNotFound.
			WithDetail("message", "no mirror session for owner; initialize one first").
			WithDetail("owner_id", ownerID))
		return nil, false
	}
	return session, true
}

type confirmationRequest struct {
	Confirmation string `json:"confirmation"`
}

type validateConditionRequest struct {
	Condition string `json:"condition"`
}

type previewConditionRequest struct {
	Condition string                 `json:"condition" binding:"required"`
	Sample    map[string]interface{} `json:"sample" binding:"required"`
}

// InitSession godoc
// @Summary      Initialize a mirror session
// @Description  Loads the owner's rules and subscribes to their changefeed, replacing any existing session
// @Tags         sessions
// @Produce      json
// @Param        owner  path  string  true  "Owner ID"
// @Success      201  {object}  TabCounts
// @Failure      400  {object}  errors.ErrorResponse
// @Failure      502  {object}  errors.ErrorResponse
// @Router       /owners/{owner}/session [post]
func (h *Handler) InitSession(c *gin.Context) {
	session, err := h.manager.InitSession(c.Request.Context(), c.Param("owner"))
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, session.TabCounts())
}

// DisposeSession godoc
// @Summary      Dispose a mirror session
// @Tags         sessions
// @Produce      json
// @Param        owner  path  string  true  "Owner ID"
// @Success      204
// @Failure      404  {object}  errors.ErrorResponse
// @Router       /owners/{owner}/session [delete]
func (h *Handler) DisposeSession(c *gin.Context) {
	if err := h.manager.DisposeSession(c.Param("owner")); err != nil {
		h.handleError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// Resync godoc
// @Summary      Force a full resynchronization from the remote store
// @Tags         sessions
// @Produce      json
// @Param        owner  path  string  true  "Owner ID"
// @Success      200  {object}  TabCounts
// @Failure      404  {object}  errors.ErrorResponse
// @Failure      502  {object}  errors.ErrorResponse
// @Router       /owners/{owner}/resync [post]
func (h *Handler) Resync(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}

	if err := session.Resync(c.Request.Context(), "manual"); err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, session.TabCounts())
}

// ListRules godoc
// @Summary      List rules in a tab
// @Description  Filters the mirror by tab (active, all, attention, deleted) with optional substring search
// @Tags         rules
// @Produce      json
// @Param        owner   path   string  true   "Owner ID"
// @Param        tab     query  string  false  "Tab name"  default(all)
// @Param        q       query  string  false  "Search query"
// @Param        column  query  string  false  "Search column (name, category, description, condition)"
// @Success      200  {array}   models.Rule
// @Failure      400  {object}  errors.ErrorResponse
// @Failure      404  {object}  errors.ErrorResponse
// @Router       /owners/{owner}/rules [get]
func (h *Handler) ListRules(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}

	tab := c.DefaultQuery("tab", TabAll)
	result, err := session.FilterRules(tab, c.Query("q"), c.Query("column"))
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// TabCounts godoc
// @Summary      Tab membership counts
// @Description  Counts reflect tab membership over the full mirror, independent of any search
// @Tags         rules
// @Produce      json
// @Param        owner  path  string  true  "Owner ID"
// @Success      200  {object}  TabCounts
// @Failure      404  {object}  errors.ErrorResponse
// @Router       /owners/{owner}/rules/counts [get]
func (h *Handler) TabCounts(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, session.TabCounts())
}

// InProgressRules godoc
// @Summary      List in-progress rules
// @Description  The in-progress partition; these rules appear in no tab
// @Tags         rules
// @Produce      json
// @Param        owner  path  string  true  "Owner ID"
// @Success      200  {array}   models.Rule
// @Failure      404  {object}  errors.ErrorResponse
// @Router       /owners/{owner}/rules/in-progress [get]
func (h *Handler) InProgressRules(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, session.InProgressRules())
}

// CreateRule godoc
// @Summary      Create a rule
// @Tags         rules
// @Accept       json
// @Produce      json
// @Param        owner  path  string                    true  "Owner ID"
// @Param        rule   body  rules.CreateRuleRequest   true  "Rule data"
// @Success      201  {object}  models.Rule
// @Failure      400  {object}  errors.ErrorResponse
// @Failure      409  {object}  errors.ErrorResponse
// @Failure      502  {object}  errors.ErrorResponse
// @Router       /owners/{owner}/rules [post]
func (h *Handler) CreateRule(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}

	var req rules.CreateRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}

	rule, err := session.CreateRule(c.Request.Context(), req)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, rule)
}

// UpdateRule godoc
// @Summary      Patch a rule
// @Tags         rules
// @Accept       json
// @Produce      json
// @Param        owner  path  string                    true  "Owner ID"
// @Param        id     path  string                    true  "Rule ID"
// @Param        patch  body  rules.UpdateRuleRequest   true  "Fields to change"
// @Success      200  {object}  models.Rule
// @Failure      400  {object}  errors.ErrorResponse
// @Failure      404  {object}  errors.ErrorResponse
// @Failure      502  {object}  errors.ErrorResponse
// @Router       /owners/{owner}/rules/{id} [patch]
func (h *Handler) UpdateRule(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}

	var req rules.UpdateRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}

	rule, err := session.UpdateRule(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, rule)
}

// SoftDeleteRule godoc
// @Summary      Soft-delete a rule
// @Description  Requires the rule's exact name as confirmation; forces status to inactive
// @Tags         rules
// @Accept       json
// @Produce      json
// @Param        owner         path  string               true  "Owner ID"
// @Param        id            path  string               true  "Rule ID"
// @Param        confirmation  body  confirmationRequest  true  "Typed rule name"
// @Success      204
// @Failure      400  {object}  errors.ErrorResponse
// @Failure      404  {object}  errors.ErrorResponse
// @Failure      502  {object}  errors.ErrorResponse
// @Router       /owners/{owner}/rules/{id}/soft-delete [post]
func (h *Handler) SoftDeleteRule(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}

	var req confirmationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}

	if err := session.SoftDelete(c.Request.Context(), c.Param("id"), req.Confirmation); err != nil {
		h.handleError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// RecoverRule godoc
// @Summary      Recover a soft-deleted rule
// @Description  Clears the deletion flag; the status stays as soft-delete left it
// @Tags         rules
// @Produce      json
// @Param        owner  path  string  true  "Owner ID"
// @Param        id     path  string  true  "Rule ID"
// @Success      204
// @Failure      404  {object}  errors.ErrorResponse
// @Failure      502  {object}  errors.ErrorResponse
// @Router       /owners/{owner}/rules/{id}/recover [post]
func (h *Handler) RecoverRule(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}

	if err := session.Recover(c.Request.Context(), c.Param("id")); err != nil {
		h.handleError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// PermanentDeleteRule godoc
// @Summary      Permanently delete a rule
// @Description  Irreversible; requires the rule's exact name as confirmation
// @Tags         rules
// @Accept       json
// @Produce      json
// @Param        owner         path  string               true  "Owner ID"
// @Param        id            path  string               true  "Rule ID"
// @Param        confirmation  body  confirmationRequest  true  "Typed rule name"
// @Success      204
// @Failure      400  {object}  errors.ErrorResponse
// @Failure      404  {object}  errors.ErrorResponse
// @Failure      502  {object}  errors.ErrorResponse
// @Router       /owners/{owner}/rules/{id} [delete]
func (h *Handler) PermanentDeleteRule(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}

	var req confirmationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}

	if err := session.PermanentDelete(c.Request.Context(), c.Param("id"), req.Confirmation); err != nil {
		h.handleError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// ToggleStatus godoc
// @Summary      Toggle a rule between active and inactive
// @Description  Rejected for rules in warning or in_progress; those need an explicit status
// @Tags         rules
// @Produce      json
// @Param        owner  path  string  true  "Owner ID"
// @Param        id     path  string  true  "Rule ID"
// @Success      200  {object}  models.Rule
// @Failure      400  {object}  errors.ErrorResponse
// @Failure      404  {object}  errors.ErrorResponse
// @Failure      502  {object}  errors.ErrorResponse
// @Router       /owners/{owner}/rules/{id}/toggle-status [post]
func (h *Handler) ToggleStatus(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}

	rule, err := session.ToggleStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, rule)
}

// RowExpansion godoc
// @Summary      Read a row's expansion state
// @Tags         view
// @Produce      json
// @Param        owner  path  string  true  "Owner ID"
// @Param        id     path  string  true  "Rule ID"
// @Success      200  {object}  map[string]bool
// @Failure      404  {object}  errors.ErrorResponse
// @Router       /owners/{owner}/rules/{id}/expansion [get]
func (h *Handler) RowExpansion(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{"expanded": session.IsRowExpanded(c.Param("id"))})
}

// ToggleRowExpansion godoc
// @Summary      Toggle a row's expansion state
// @Tags         view
// @Produce      json
// @Param        owner  path  string  true  "Owner ID"
// @Param        id     path  string  true  "Rule ID"
// @Success      200  {object}  map[string]bool
// @Failure      404  {object}  errors.ErrorResponse
// @Router       /owners/{owner}/rules/{id}/expansion [post]
func (h *Handler) ToggleRowExpansion(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{"expanded": session.ToggleRowExpansion(c.Param("id"))})
}

// ValidateCondition godoc
// @Summary      Validate a condition expression
// @Description  Checks the restricted boolean grammar and returns every problem found
// @Tags         conditions
// @Accept       json
// @Produce      json
// @Param        condition  body  validateConditionRequest  true  "Condition text"
// @Success      200  {object}  condition.Result
// @Failure      400  {object}  errors.ErrorResponse
// @Router       /conditions/validate [post]
func (h *Handler) ValidateCondition(c *gin.Context) {
	var req validateConditionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}

	result := condition.Validate(req.Condition)
	if result.Valid {
		metrics.IncConditionValidation("valid")
	} else {
		metrics.IncConditionValidation("invalid")
	}

	c.JSON(http.StatusOK, result)
}

// PreviewCondition godoc
// @Summary      Preview a condition against a sample payload
// @Description  Transpiles the condition to CEL and reports whether the sample would match
// @Tags         conditions
// @Accept       json
// @Produce      json
// @Param        request  body  previewConditionRequest  true  "Condition and sample payload"
// @Success      200  {object}  condition.PreviewResult
// @Failure      400  {object}  errors.ErrorResponse
// @Router       /conditions/preview [post]
func (h *Handler) PreviewCondition(c *gin.Context) {
	var req previewConditionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}

	result, err := h.previewer.Preview(c.Request.Context(), req.Condition, req.Sample)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
