package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	settlementdomain "github.com/smallbiznis/settleway/internal/settlement/domain"
)

type calculateSettlementRequest struct {
	OrderID string `json:"order_id"`
}

func (s *Server) CalculateSettlement(c *gin.Context) {
	var req calculateSettlementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	orderID, err := parseSnowflake(req.OrderID)
	if err != nil {
		AbortWithError(c, newValidationError("order_id", "invalid_order_id", "order_id must be a valid id"))
		return
	}

	resp, err := s.settlementSvc.Calculate(c.Request.Context(), settlementdomain.CalculateRequest{
		OrderID: orderID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type settlementStatusChangeRequest struct {
	OrderID string                             `json:"order_id"`
	Status  string                             `json:"status"`
	Stage   settlementdomain.CancellationStage `json:"stage"`
}

// SettlementStatusChange is the order platform's lifecycle callback:
// confirmed holds escrow, delivered releases it, cancelled refunds per
// the stage policy.
func (s *Server) SettlementStatusChange(c *gin.Context) {
	var req settlementStatusChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	orderID, err := parseSnowflake(req.OrderID)
	if err != nil {
		AbortWithError(c, newValidationError("order_id", "invalid_order_id", "order_id must be a valid id"))
		return
	}
	if strings.TrimSpace(req.Status) == "" {
		AbortWithError(c, newValidationError("status", "invalid_status", "status is required"))
		return
	}

	resp, err := s.settlementSvc.OnStatusChange(c.Request.Context(), settlementdomain.StatusChangeRequest{
		OrderID: orderID,
		Status:  strings.TrimSpace(req.Status),
		Stage:   req.Stage,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetSettlement(c *gin.Context) {
	orderID, err := parseSnowflake(c.Param("orderId"))
	if err != nil {
		AbortWithError(c, newValidationError("order_id", "invalid_order_id", "order_id must be a valid id"))
		return
	}

	resp, err := s.settlementSvc.Get(c.Request.Context(), orderID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListSettlements(c *gin.Context) {
	req := settlementdomain.ListRequest{
		SettlementStatus: settlementdomain.SettlementStatus(c.Query("settlement_status")),
		EscrowStatus:     settlementdomain.EscrowStatus(c.Query("escrow_status")),
	}

	if raw := strings.TrimSpace(c.Query("restaurant_id")); raw != "" {
		id, err := parseSnowflake(raw)
		if err != nil {
			AbortWithError(c, newValidationError("restaurant_id", "invalid_restaurant_id", "restaurant_id must be a valid id"))
			return
		}
		req.RestaurantID = &id
	}
	if raw := strings.TrimSpace(c.Query("delivery_partner_id")); raw != "" {
		id, err := parseSnowflake(raw)
		if err != nil {
			AbortWithError(c, newValidationError("delivery_partner_id", "invalid_delivery_partner_id", "delivery_partner_id must be a valid id"))
			return
		}
		req.DeliveryPartnerID = &id
	}

	if err := c.ShouldBindQuery(&req.Pagination); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.Pagination = req.Pagination.Normalized()

	items, total, err := s.settlementSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  items,
		"total": total,
		"page":  req.Pagination.Page,
		"size":  req.Pagination.Size,
	})
}

func parseSnowflake(raw string) (snowflake.ID, error) {
	return snowflake.ParseString(strings.TrimSpace(raw))
}
