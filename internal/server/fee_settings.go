package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	feedomain "github.com/smallbiznis/settleway/internal/feesettings/domain"
)

type createFeeSettingsRequest struct {
	DeliveryFeeCents           int64                        `json:"delivery_fee_cents"`
	DeliveryFeeRanges          []feedomain.DeliveryFeeRange `json:"delivery_fee_ranges"`
	FreeDeliveryThresholdCents int64                        `json:"free_delivery_threshold_cents"`
	PlatformFeeCents           int64                        `json:"platform_fee_cents"`
	GSTRateBps                 int64                        `json:"gst_rate_bps"`
	Activate                   bool                         `json:"activate"`
}

func (s *Server) CreateFeeSettings(c *gin.Context) {
	var req createFeeSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.feeSvc.Create(c.Request.Context(), feedomain.CreateRequest{
		DeliveryFeeCents:           req.DeliveryFeeCents,
		DeliveryFeeRanges:          req.DeliveryFeeRanges,
		FreeDeliveryThresholdCents: req.FreeDeliveryThresholdCents,
		PlatformFeeCents:           req.PlatformFeeCents,
		GSTRateBps:                 req.GSTRateBps,
		Activate:                   req.Activate,
		Actor:                      actorFrom(c),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type updateFeeSettingsRequest struct {
	DeliveryFeeCents           *int64                       `json:"delivery_fee_cents"`
	DeliveryFeeRanges          []feedomain.DeliveryFeeRange `json:"delivery_fee_ranges"`
	FreeDeliveryThresholdCents *int64                       `json:"free_delivery_threshold_cents"`
	PlatformFeeCents           *int64                       `json:"platform_fee_cents"`
	GSTRateBps                 *int64                       `json:"gst_rate_bps"`
}

func (s *Server) UpdateFeeSettings(c *gin.Context) {
	var req updateFeeSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.feeSvc.Update(c.Request.Context(), c.Param("id"), feedomain.UpdateRequest{
		DeliveryFeeCents:           req.DeliveryFeeCents,
		DeliveryFeeRanges:          req.DeliveryFeeRanges,
		FreeDeliveryThresholdCents: req.FreeDeliveryThresholdCents,
		PlatformFeeCents:           req.PlatformFeeCents,
		GSTRateBps:                 req.GSTRateBps,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ActivateFeeSettings(c *gin.Context) {
	resp, err := s.feeSvc.Activate(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListFeeSettings(c *gin.Context) {
	resp, err := s.feeSvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// GetActiveFeeSettings returns the settings the calculator would use
// right now, falling back to defaults when nothing is configured.
func (s *Server) GetActiveFeeSettings(c *gin.Context) {
	resp, err := s.feeSvc.Resolve(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
