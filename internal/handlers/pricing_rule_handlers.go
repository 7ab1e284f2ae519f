package handlers

import (
	"net/http"

	"lounge_backend/internal/services"

	"github.com/gin-gonic/gin"
)

// PricingRuleHandler holds the pricing rule service.
type PricingRuleHandler struct {
	ruleService services.PricingRuleService
}

// NewPricingRuleHandler creates a new PricingRuleHandler.
func NewPricingRuleHandler(s services.PricingRuleService) *PricingRuleHandler {
	return &PricingRuleHandler{ruleService: s}
}

func (h *PricingRuleHandler) CreateRule(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	var req services.CreatePricingRuleRequest
	if !bindJSON(c, &req, "CreateRule") {
		return
	}
	rule, err := h.ruleService.CreateRule(c.Request.Context(), actor, req)
	if err != nil {
		respondServiceError(c, err, "CreateRule")
		return
	}
	c.JSON(http.StatusCreated, rule)
}

func (h *PricingRuleHandler) GetRule(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "pricing rule")
	if !ok {
		return
	}
	rule, err := h.ruleService.GetRule(c.Request.Context(), actor, id)
	if err != nil {
		respondServiceError(c, err, "GetRule")
		return
	}
	c.JSON(http.StatusOK, rule)
}

func (h *PricingRuleHandler) ListRules(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	rules, err := h.ruleService.ListRules(c.Request.Context(), actor)
	if err != nil {
		respondServiceError(c, err, "ListRules")
		return
	}
	c.JSON(http.StatusOK, rules)
}
