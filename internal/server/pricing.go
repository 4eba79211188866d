package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	pricingdomain "github.com/smallbiznis/settleway/internal/pricing/domain"
)

type quoteOrderRequest struct {
	RestaurantRef string                   `json:"restaurant_ref"`
	Items         []pricingdomain.LineItem `json:"items"`
	CouponCode    string                   `json:"coupon_code"`
}

func (s *Server) QuoteOrder(c *gin.Context) {
	var req quoteOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.pricingSvc.Quote(c.Request.Context(), pricingdomain.QuoteRequest{
		RestaurantRef: strings.TrimSpace(req.RestaurantRef),
		Items:         req.Items,
		CouponCode:    strings.TrimSpace(req.CouponCode),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
