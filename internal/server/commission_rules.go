package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	ruledomain "github.com/smallbiznis/settleway/internal/commissionrule/domain"
)

type createCommissionRuleRequest struct {
	Category        ruledomain.RuleCategory `json:"category"`
	Name            string                  `json:"name"`
	MinValue        float64                 `json:"min_value"`
	MaxValue        *float64                `json:"max_value"`
	RuleType        ruledomain.RuleType     `json:"rule_type"`
	BasePayoutCents int64                   `json:"base_payout_cents"`
	PerKmCents      int64                   `json:"per_km_cents"`
	RateBps         int64                   `json:"rate_bps"`
	FlatFeeCents    int64                   `json:"flat_fee_cents"`
}

func (s *Server) CreateCommissionRule(c *gin.Context) {
	var req createCommissionRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.ruleSvc.Create(c.Request.Context(), ruledomain.CreateRequest{
		Category:        req.Category,
		Name:            strings.TrimSpace(req.Name),
		MinValue:        req.MinValue,
		MaxValue:        req.MaxValue,
		RuleType:        req.RuleType,
		BasePayoutCents: req.BasePayoutCents,
		PerKmCents:      req.PerKmCents,
		RateBps:         req.RateBps,
		FlatFeeCents:    req.FlatFeeCents,
		Actor:           actorFrom(c),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type updateCommissionRuleRequest struct {
	Name            *string              `json:"name"`
	MinValue        *float64             `json:"min_value"`
	MaxValue        *float64             `json:"max_value"`
	ClearMaxValue   bool                 `json:"clear_max_value"`
	RuleType        *ruledomain.RuleType `json:"rule_type"`
	BasePayoutCents *int64               `json:"base_payout_cents"`
	PerKmCents      *int64               `json:"per_km_cents"`
	RateBps         *int64               `json:"rate_bps"`
	FlatFeeCents    *int64               `json:"flat_fee_cents"`
}

func (s *Server) UpdateCommissionRule(c *gin.Context) {
	var req updateCommissionRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.ruleSvc.Update(c.Request.Context(), c.Param("id"), ruledomain.UpdateRequest{
		Name:            req.Name,
		MinValue:        req.MinValue,
		MaxValue:        req.MaxValue,
		ClearMaxValue:   req.ClearMaxValue,
		RuleType:        req.RuleType,
		BasePayoutCents: req.BasePayoutCents,
		PerKmCents:      req.PerKmCents,
		RateBps:         req.RateBps,
		FlatFeeCents:    req.FlatFeeCents,
		Actor:           actorFrom(c),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListCommissionRules(c *gin.Context) {
	category := ruledomain.RuleCategory(c.Query("category"))

	resp, err := s.ruleSvc.List(c.Request.Context(), category)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetCommissionRule(c *gin.Context) {
	resp, err := s.ruleSvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ActivateCommissionRule(c *gin.Context) {
	resp, err := s.ruleSvc.SetActive(c.Request.Context(), c.Param("id"), true, actorFrom(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DeactivateCommissionRule(c *gin.Context) {
	resp, err := s.ruleSvc.SetActive(c.Request.Context(), c.Param("id"), false, actorFrom(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DeleteCommissionRule(c *gin.Context) {
	if err := s.ruleSvc.Delete(c.Request.Context(), c.Param("id"), actorFrom(c)); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"deleted": true}})
}

// ResolveCommissionTier answers "which tier applies to this value",
// used by admins to sanity-check the configured ranges.
func (s *Server) ResolveCommissionTier(c *gin.Context) {
	category := ruledomain.RuleCategory(c.Query("category"))

	value, err := strconv.ParseFloat(strings.TrimSpace(c.Query("value")), 64)
	if err != nil {
		AbortWithError(c, newValidationError("value", "invalid_value", "value must be a number"))
		return
	}

	resp, err := s.ruleSvc.ResolveTier(c.Request.Context(), category, value)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func actorFrom(c *gin.Context) string {
	actor := strings.TrimSpace(c.GetHeader("X-Actor"))
	if actor == "" {
		return "admin"
	}
	return actor
}
